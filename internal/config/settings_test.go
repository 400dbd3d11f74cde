package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.MaxConcurrentDownloads != DefaultMaxConcurrentDownloads {
		t.Errorf("MaxConcurrentDownloads = %d, expected %d", cfg.MaxConcurrentDownloads, DefaultMaxConcurrentDownloads)
	}
	if cfg.PreferredVideoQuality != DefaultVideoQuality {
		t.Errorf("PreferredVideoQuality = %q, expected %q", cfg.PreferredVideoQuality, DefaultVideoQuality)
	}
	if cfg.Engine != EngineYTDLP {
		t.Errorf("Engine = %q, expected %q", cfg.Engine, EngineYTDLP)
	}
	if !cfg.EnableSizeEstimation {
		t.Error("expected size estimation enabled by default")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg != Default() {
		t.Errorf("missing file produced non-default settings: %+v", cfg)
	}
}

func TestLoad_MergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	content := []byte(`
max_concurrent_downloads: 2
preferred_video_quality: 720p
audio_only: true
proxy_server_type: socks5
proxy_server_addr: 127.0.0.1
proxy_server_port: "9050"
`)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MaxConcurrentDownloads != 2 {
		t.Errorf("MaxConcurrentDownloads = %d, expected 2", cfg.MaxConcurrentDownloads)
	}
	if cfg.PreferredVideoQuality != "720p" {
		t.Errorf("PreferredVideoQuality = %q, expected 720p", cfg.PreferredVideoQuality)
	}
	if !cfg.AudioOnly {
		t.Error("expected audio_only true")
	}
	// Unset keys keep defaults
	if cfg.FilenameTemplate != DefaultFilenameTemplate {
		t.Errorf("FilenameTemplate = %q, expected default", cfg.FilenameTemplate)
	}
	if got := cfg.ProxyURL(); got != "socks5://127.0.0.1:9050" {
		t.Errorf("ProxyURL() = %q", got)
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte("max_concurrent_downloads: [not an int"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed settings file")
	}
}

func TestClamp(t *testing.T) {
	cfg := Settings{MaxConcurrentDownloads: 0, Engine: "bogus", RateLimitBPS: -5}
	cfg.Clamp()

	if cfg.MaxConcurrentDownloads != MinConcurrentDownloads {
		t.Errorf("MaxConcurrentDownloads = %d, expected clamp to %d", cfg.MaxConcurrentDownloads, MinConcurrentDownloads)
	}
	if cfg.Engine != DefaultEngine {
		t.Errorf("Engine = %q, expected default", cfg.Engine)
	}
	if cfg.RateLimitBPS != 0 {
		t.Errorf("RateLimitBPS = %d, expected 0", cfg.RateLimitBPS)
	}

	cfg = Settings{MaxConcurrentDownloads: 99}
	cfg.Clamp()
	if cfg.MaxConcurrentDownloads != MaxConcurrentDownloads {
		t.Errorf("MaxConcurrentDownloads = %d, expected clamp to %d", cfg.MaxConcurrentDownloads, MaxConcurrentDownloads)
	}
}

func TestSignature(t *testing.T) {
	a := Default()
	b := Default()

	if a.Signature() != b.Signature() {
		t.Error("identical settings produced different signatures")
	}

	b.PreferredVideoQuality = "480p"
	if a.Signature() == b.Signature() {
		t.Error("quality change did not alter the signature")
	}

	c := Default()
	c.AudioOnly = true
	if a.Signature() == c.Signature() {
		t.Error("audio_only change did not alter the signature")
	}

	// Non-format settings do not participate
	d := Default()
	d.MaxConcurrentDownloads = 9
	if a.Signature() != d.Signature() {
		t.Error("concurrency change altered the signature")
	}
}

func TestProxyURL_Unconfigured(t *testing.T) {
	cfg := Default()
	if got := cfg.ProxyURL(); got != "" {
		t.Errorf("ProxyURL() = %q, expected empty", got)
	}
}
