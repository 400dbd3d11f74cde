package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperfield/yt-channel-downloader/internal/config"
	"github.com/hyperfield/yt-channel-downloader/internal/fetch"
	"github.com/hyperfield/yt-channel-downloader/internal/media"
	"github.com/hyperfield/yt-channel-downloader/internal/platform"
	"github.com/hyperfield/yt-channel-downloader/internal/ytdlp"
)

// rootOptions carries the flag values shared by the subcommands.
type rootOptions struct {
	configPath  string
	maxParallel int
	audioOnly   bool
	quality     string
	format      string
	outputDir   string
	engine      string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "ytcd",
		Short: "Download media and estimate batch sizes",
		Long:  "ytcd schedules bounded-concurrency media downloads and estimates total size and ETA for URL batches.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceErrors:     true,
		SilenceUsage:      true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "Path to settings file")
	pf.IntVarP(&opts.maxParallel, "max-parallel", "p", 0, "Maximum simultaneous downloads (1-10)")
	pf.BoolVar(&opts.audioOnly, "audio-only", false, "Download or estimate audio tracks only")
	pf.StringVarP(&opts.quality, "quality", "q", "", `Preferred quality ("best", "1080p", "320k", ...)`)
	pf.StringVarP(&opts.format, "format", "f", "", "Preferred container format (mp4, webm, m4a, ...)")
	pf.StringVarP(&opts.outputDir, "output-dir", "o", "", "Directory to place finished files in")
	pf.StringVar(&opts.engine, "engine", "", `Transfer engine: "ytdlp" or "http"`)

	root.AddCommand(newDownloadCommand(opts))
	root.AddCommand(newEstimateCommand(opts))

	return root
}

// loadSettings merges the settings file with the command line, flags
// winning, and validates the result.
func (o *rootOptions) loadSettings(cmd *cobra.Command) (config.Settings, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("max-parallel") {
		cfg.MaxConcurrentDownloads = o.maxParallel
	}
	if flags.Changed("audio-only") {
		cfg.AudioOnly = o.audioOnly
	}
	if flags.Changed("quality") {
		if cfg.AudioOnly {
			cfg.PreferredAudioQuality = o.quality
		} else {
			cfg.PreferredVideoQuality = o.quality
		}
	}
	if flags.Changed("format") {
		if cfg.AudioOnly {
			cfg.PreferredAudioFormat = o.format
		} else {
			cfg.PreferredVideoFormat = o.format
		}
	}
	if flags.Changed("output-dir") {
		cfg.DownloadDirectory = o.outputDir
	}
	if flags.Changed("engine") {
		if o.engine != config.EngineYTDLP && o.engine != config.EngineHTTP {
			return cfg, fmt.Errorf("unknown engine %q", o.engine)
		}
		cfg.Engine = o.engine
	}

	if cfg.DownloadDirectory == "" {
		dir, err := platform.GetHomeDownloadsDir()
		if err != nil {
			return cfg, err
		}
		cfg.DownloadDirectory = dir
	}

	cfg.Clamp()
	return cfg, nil
}

// buildResolver always uses yt-dlp for metadata; the http engine only
// replaces the transfer itself.
func buildResolver() media.Resolver {
	return ytdlp.NewClient()
}

func buildExecutor(cfg config.Settings) media.Executor {
	if cfg.Engine == config.EngineHTTP {
		return fetch.NewHTTPExecutor(cfg)
	}
	return ytdlp.NewClient()
}
