package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Quality labels understood by the negotiator and estimator
const (
	QualityBest = "best"
)

// Download engines selectable in the settings file
const (
	EngineYTDLP = "ytdlp"
	EngineHTTP  = "http"
)

// Default values
const (
	DefaultMaxConcurrentDownloads = 4
	DefaultVideoQuality           = "1080p"
	DefaultAudioQuality           = QualityBest
	DefaultFilenameTemplate       = "%(title)s.%(ext)s"
	DefaultEngine                 = EngineYTDLP

	MinConcurrentDownloads = 1
	MaxConcurrentDownloads = 10
)

// Settings is an immutable configuration snapshot. Components receive it by
// value at construction; a changed configuration is a new snapshot, compared
// via Signature rather than shared mutable state.
type Settings struct {
	MaxConcurrentDownloads int    `yaml:"max_concurrent_downloads"`
	PreferredVideoQuality  string `yaml:"preferred_video_quality"`
	PreferredVideoFormat   string `yaml:"preferred_video_format"`
	PreferredAudioQuality  string `yaml:"preferred_audio_quality"`
	PreferredAudioFormat   string `yaml:"preferred_audio_format"`
	AudioOnly              bool   `yaml:"audio_only"`

	DownloadDirectory    string `yaml:"download_directory"`
	FilenameTemplate     string `yaml:"filename_template"`
	EnableSizeEstimation bool   `yaml:"enable_size_estimation"`
	Engine               string `yaml:"engine"`
	RateLimitBPS         int64  `yaml:"rate_limit_bps"`

	ProxyServerType string `yaml:"proxy_server_type"`
	ProxyServerAddr string `yaml:"proxy_server_addr"`
	ProxyServerPort string `yaml:"proxy_server_port"`
}

type fileSettings struct {
	MaxConcurrentDownloads *int    `yaml:"max_concurrent_downloads"`
	PreferredVideoQuality  *string `yaml:"preferred_video_quality"`
	PreferredVideoFormat   *string `yaml:"preferred_video_format"`
	PreferredAudioQuality  *string `yaml:"preferred_audio_quality"`
	PreferredAudioFormat   *string `yaml:"preferred_audio_format"`
	AudioOnly              *bool   `yaml:"audio_only"`

	DownloadDirectory    *string `yaml:"download_directory"`
	FilenameTemplate     *string `yaml:"filename_template"`
	EnableSizeEstimation *bool   `yaml:"enable_size_estimation"`
	Engine               *string `yaml:"engine"`
	RateLimitBPS         *int64  `yaml:"rate_limit_bps"`

	ProxyServerType *string `yaml:"proxy_server_type"`
	ProxyServerAddr *string `yaml:"proxy_server_addr"`
	ProxyServerPort *string `yaml:"proxy_server_port"`
}

// Default returns the built-in settings snapshot
func Default() Settings {
	return Settings{
		MaxConcurrentDownloads: DefaultMaxConcurrentDownloads,
		PreferredVideoQuality:  DefaultVideoQuality,
		PreferredAudioQuality:  DefaultAudioQuality,
		FilenameTemplate:       DefaultFilenameTemplate,
		EnableSizeEstimation:   true,
		Engine:                 DefaultEngine,
	}
}

// Load merges the YAML file at path over the defaults. A missing file is not
// an error; a malformed one is.
func Load(path string) (Settings, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Settings{}, fmt.Errorf("read settings %s: %w", path, err)
	}

	var file fileSettings
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Settings{}, fmt.Errorf("parse settings %s: %w", path, err)
	}

	merge(&cfg, file)
	cfg.Clamp()
	return cfg, nil
}

func merge(cfg *Settings, file fileSettings) {
	if file.MaxConcurrentDownloads != nil {
		cfg.MaxConcurrentDownloads = *file.MaxConcurrentDownloads
	}
	if file.PreferredVideoQuality != nil {
		cfg.PreferredVideoQuality = *file.PreferredVideoQuality
	}
	if file.PreferredVideoFormat != nil {
		cfg.PreferredVideoFormat = *file.PreferredVideoFormat
	}
	if file.PreferredAudioQuality != nil {
		cfg.PreferredAudioQuality = *file.PreferredAudioQuality
	}
	if file.PreferredAudioFormat != nil {
		cfg.PreferredAudioFormat = *file.PreferredAudioFormat
	}
	if file.AudioOnly != nil {
		cfg.AudioOnly = *file.AudioOnly
	}
	if file.DownloadDirectory != nil {
		cfg.DownloadDirectory = *file.DownloadDirectory
	}
	if file.FilenameTemplate != nil && *file.FilenameTemplate != "" {
		cfg.FilenameTemplate = *file.FilenameTemplate
	}
	if file.EnableSizeEstimation != nil {
		cfg.EnableSizeEstimation = *file.EnableSizeEstimation
	}
	if file.Engine != nil && *file.Engine != "" {
		cfg.Engine = *file.Engine
	}
	if file.RateLimitBPS != nil {
		cfg.RateLimitBPS = *file.RateLimitBPS
	}
	if file.ProxyServerType != nil {
		cfg.ProxyServerType = *file.ProxyServerType
	}
	if file.ProxyServerAddr != nil {
		cfg.ProxyServerAddr = *file.ProxyServerAddr
	}
	if file.ProxyServerPort != nil {
		cfg.ProxyServerPort = *file.ProxyServerPort
	}
}

// Clamp normalizes out-of-range values in place
func (s *Settings) Clamp() {
	if s.MaxConcurrentDownloads < MinConcurrentDownloads {
		s.MaxConcurrentDownloads = MinConcurrentDownloads
	}
	if s.MaxConcurrentDownloads > MaxConcurrentDownloads {
		s.MaxConcurrentDownloads = MaxConcurrentDownloads
	}
	if s.PreferredVideoQuality == "" {
		s.PreferredVideoQuality = DefaultVideoQuality
	}
	if s.PreferredAudioQuality == "" {
		s.PreferredAudioQuality = DefaultAudioQuality
	}
	if s.FilenameTemplate == "" {
		s.FilenameTemplate = DefaultFilenameTemplate
	}
	if s.Engine != EngineYTDLP && s.Engine != EngineHTTP {
		s.Engine = DefaultEngine
	}
	if s.RateLimitBPS < 0 {
		s.RateLimitBPS = 0
	}
}

// ProxyURL assembles the proxy URL, or "" when the proxy is not configured
func (s Settings) ProxyURL() string {
	if s.ProxyServerType == "" || s.ProxyServerAddr == "" || s.ProxyServerPort == "" {
		return ""
	}
	return fmt.Sprintf("%s://%s:%s", s.ProxyServerType, s.ProxyServerAddr, s.ProxyServerPort)
}

// Signature reflects the settings that affect format selection and size
// estimates. Estimation caches are replaced wholesale when it changes.
func (s Settings) Signature() string {
	return strings.Join([]string{
		fmt.Sprintf("audio_only=%t", s.AudioOnly),
		s.PreferredAudioFormat,
		s.PreferredAudioQuality,
		s.PreferredVideoFormat,
		s.PreferredVideoQuality,
	}, "|")
}
