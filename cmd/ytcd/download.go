package main

import (
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hyperfield/yt-channel-downloader/internal/config"
	"github.com/hyperfield/yt-channel-downloader/internal/download"
	"github.com/hyperfield/yt-channel-downloader/internal/estimate"
	"github.com/hyperfield/yt-channel-downloader/internal/media"
	"github.com/hyperfield/yt-channel-downloader/internal/model"
	"github.com/hyperfield/yt-channel-downloader/internal/platform"
)

func newDownloadCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "download [urls...]",
		Short: "Download one or more media URLs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadSettings(cmd)
			if err != nil {
				return err
			}
			if err := platform.CreateDirectoryIfNotExists(cfg.DownloadDirectory); err != nil {
				return err
			}

			var failed atomic.Int64
			sink := func(e model.Event) {
				switch ev := e.(type) {
				case model.ProgressEvent:
					fmt.Printf("[%d] %5.1f%%  %s\n", ev.Index, ev.Percent, ev.Speed)
				case model.CompletedEvent:
					fmt.Printf("[%d] done\n", ev.Index)
				case model.FailedEvent:
					failed.Add(1)
					fmt.Printf("[%d] failed: %s\n", ev.Index, ev.Reason)
				case model.CancelledEvent:
					fmt.Printf("[%d] cancelled at %.1f%%\n", ev.Index, ev.Percent)
				}
			}

			resolver := buildResolver()
			svc := download.NewService(cfg, resolver, buildExecutor(cfg), nil, sink)

			if cfg.EnableSizeEstimation {
				printBatchEstimate(resolver, cfg, args)
			}

			for i, url := range args {
				if _, err := svc.Submit(download.Spec{Index: i, URL: url}); err != nil {
					return err
				}
			}

			// First interrupt cancels everything in flight; a second
			// one falls through to the default handler.
			interrupt := make(chan os.Signal, 1)
			signal.Notify(interrupt, os.Interrupt)
			go func() {
				<-interrupt
				fmt.Fprintln(os.Stderr, "interrupted, cancelling downloads")
				signal.Stop(interrupt)
				svc.CancelAll()
			}()

			svc.Wait()
			signal.Stop(interrupt)

			if n := failed.Load(); n > 0 {
				return fmt.Errorf("%d of %d downloads failed", n, len(args))
			}
			return nil
		},
	}
}

// printBatchEstimate runs one estimation pass before the downloads start.
// Failures here only cost the preview, never the batch.
func printBatchEstimate(resolver media.Resolver, cfg config.Settings, urls []string) {
	results := make(chan estimate.Result, 1)
	eng := estimate.NewEngine(resolver, cfg, nil, func(r estimate.Result) {
		results <- r
	})

	rows := make([]estimate.Row, len(urls))
	for i, url := range urls {
		rows[i] = estimate.Row{Index: i, URL: url}
	}
	eng.Start(rows)

	timeout := estimate.MinWatchdogTimeout + time.Duration(len(rows))*estimate.PerRowWatchdogCost
	select {
	case res := <-results:
		if res.Cancelled || res.TotalBytes <= 0 {
			return
		}
		total := humanize.Bytes(uint64(res.TotalBytes))
		if res.HasUnknown {
			fmt.Printf("estimated total: at least %s (some sizes unknown)\n", total)
		} else {
			fmt.Printf("estimated total: %s\n", total)
		}
	case <-time.After(timeout):
	}
}
