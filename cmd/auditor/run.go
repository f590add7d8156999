package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/eigerco/auditor/internal/node"
	"github.com/eigerco/auditor/pkg/log"
)

func runCommand(flags *rootFlags) *cobra.Command {
	var (
		storePath string
		interval  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd.Flags())
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("store") {
				cfg.Store.Path = storePath
			}
			if cmd.Flags().Changed("interval") {
				cfg.Node.StepInterval = interval
			}
			if cfg.Store.Path == "" {
				log.Root.Warn().Msg("no store path configured, state is kept in memory only")
			}

			n, err := node.New(cfg)
			if err != nil {
				return err
			}
			defer n.Close() //nolint:errcheck

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return n.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&storePath, "store", "", "pebble directory, overrides the configuration")
	cmd.Flags().DurationVar(&interval, "interval", 0, "time between steps, overrides the configuration")
	return cmd
}
