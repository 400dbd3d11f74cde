package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hyperfield/yt-channel-downloader/internal/estimate"
	"github.com/hyperfield/yt-channel-downloader/internal/progress"
)

func newEstimateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "estimate [urls...]",
		Short: "Estimate the total download size of a URL batch",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadSettings(cmd)
			if err != nil {
				return err
			}

			results := make(chan estimate.Result, 1)
			eng := estimate.NewEngine(buildResolver(), cfg, nil, func(r estimate.Result) {
				results <- r
			})

			rows := make([]estimate.Row, len(args))
			for i, url := range args {
				rows[i] = estimate.Row{Index: i, URL: url}
			}
			eng.Start(rows)

			timeout := estimate.MinWatchdogTimeout + time.Duration(len(rows))*estimate.PerRowWatchdogCost
			var res estimate.Result
			select {
			case res = <-results:
			case <-time.After(timeout):
				return fmt.Errorf("estimation timed out")
			}
			if res.Cancelled {
				return fmt.Errorf("estimation abandoned")
			}

			indexes := make([]int, 0, len(res.PerRow))
			for idx := range res.PerRow {
				indexes = append(indexes, idx)
			}
			sort.Ints(indexes)
			for _, idx := range indexes {
				size := res.PerRow[idx]
				if size == nil {
					fmt.Printf("[%d] %s  %s\n", idx, progress.UnknownValue, args[idx])
					continue
				}
				fmt.Printf("[%d] %s  %s\n", idx, humanize.Bytes(uint64(*size)), args[idx])
			}

			total := humanize.Bytes(uint64(res.TotalBytes))
			if res.HasUnknown {
				fmt.Printf("total: at least %s (some sizes unknown)\n", total)
			} else {
				fmt.Printf("total: %s\n", total)
			}
			return nil
		},
	}
}
