// Command drag-sim fires concurrent random drag/drop transfers at a podium
// server and verifies the ranking they leave behind.
package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/podium/internal/dragsim"
	"github.com/okian/podium/pkg/logger"
)

// Default simulation constants.
const (
	defaultSize       = 10
	defaultItems      = 25
	defaultDrags      = 5000
	defaultWorkers    = 2 // multiplier for runtime.NumCPU()
	defaultTimeout    = 30 * time.Second
	defaultRunTimeout = 10 * time.Minute
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfg       dragsim.Config
		logFormat string
		logLevel  string
	)

	cmd := &cobra.Command{
		Use:   "drag-sim",
		Short: "Stress a podium ranking with concurrent drag/drop transfers",
		Example: `  drag-sim
  drag-sim --drags 50000 --workers 32 --url http://localhost:8080
  drag-sim --ranking demo --size 5 --items 8 --seed 42 --verbose`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.Init(logger.WithFormat(logFormat), logger.WithWriter(cmd.ErrOrStderr())); err != nil {
				return err
			}
			if err := logger.SetLevelString(logLevel); err != nil {
				return err
			}
			if cfg.Seed == 0 {
				cfg.Seed = uint64(time.Now().UnixNano())
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
			defer cancel()

			r, err := dragsim.NewRunner(cfg, dragsim.WithLogger(logger.Named("drag-sim")))
			if err != nil {
				return err
			}
			_, err = r.Run(ctx)
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", "http://localhost:9080", "Base URL of the service")
	f.StringVar(&cfg.RankingID, "ranking", "", "Ranking id to create (default: generated by the server)")
	f.IntVar(&cfg.Size, "size", defaultSize, "Number of ranking positions")
	f.IntVar(&cfg.Items, "items", defaultItems, "Number of backlog items")
	f.IntVar(&cfg.Drags, "drags", defaultDrags, "Number of transfers to submit")
	f.IntVar(&cfg.Workers, "workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent transfers in flight")
	f.DurationVar(&cfg.Timeout, "timeout", defaultTimeout, "HTTP request timeout")
	f.Uint64Var(&cfg.Seed, "seed", 0, "Seed of the drag generator (default: time based)")
	f.BoolVar(&cfg.Verbose, "verbose", false, "Log every rejected transfer")
	f.StringVar(&logFormat, "log-format", "text", "Log format (text|json)")
	f.StringVar(&logLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	return cmd
}
