package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eigerco/auditor/internal/audit"
	"github.com/eigerco/auditor/internal/params"
	"github.com/eigerco/auditor/internal/store"
	"github.com/eigerco/auditor/internal/ticktime"
	"github.com/eigerco/auditor/pkg/db/pebble"
)

func openSnapshot(path string, p params.Params) (audit.Snapshot, *store.State, error) {
	if path == "" {
		return audit.Snapshot{}, nil, errors.New("a store path is required")
	}
	kv, err := pebble.NewKVStore(pebble.WithPath(path))
	if err != nil {
		return audit.Snapshot{}, nil, fmt.Errorf("open store: %w", err)
	}
	s := store.NewState(kv)
	snap, err := s.Load(p)
	if err != nil {
		s.Close() //nolint:errcheck
		return audit.Snapshot{}, nil, err
	}
	return snap, s, nil
}

func inspectCommand(flags *rootFlags) *cobra.Command {
	var (
		storePath string
		from, to  uint32
		events    bool
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the stored snapshot or its event journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd.Flags())
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("store") {
				storePath = cfg.Store.Path
			}
			snap, s, err := openSnapshot(storePath, cfg.Params)
			if err != nil {
				return err
			}
			defer s.Close() //nolint:errcheck

			out := cmd.OutOrStdout()
			if !events {
				dump, err := store.Dump(snap)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, dump)
				return nil
			}

			entries, err := s.Events(ticktime.Tick(from), ticktime.Tick(to))
			if err != nil {
				return err
			}
			enc := json.NewEncoder(out)
			for _, e := range entries {
				line := struct {
					Tick  ticktime.Tick `json:"tick"`
					Step  uint64        `json:"step"`
					Kind  string        `json:"kind"`
					Event any           `json:"event"`
				}{e.Tick, e.Step, e.Event.Kind().String(), e.Event}
				if err := enc.Encode(line); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&storePath, "store", "", "pebble directory, defaults to the configured one")
	cmd.Flags().BoolVar(&events, "events", false, "print the event journal instead of the snapshot")
	cmd.Flags().Uint32Var(&from, "from", 0, "first journal tick")
	cmd.Flags().Uint32Var(&to, "to", uint32(ticktime.MaxTick), "journal tick to stop before")
	return cmd
}

func diffCommand() *cobra.Command {
	var preset string
	cmd := &cobra.Command{
		Use:   "diff <store-a> <store-b>",
		Short: "Show a unified diff between the snapshots of two stores",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := params.Preset(preset)
			if err != nil {
				return err
			}
			a, sa, err := openSnapshot(args[0], p)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			defer sa.Close() //nolint:errcheck
			b, sb, err := openSnapshot(args[1], p)
			if err != nil {
				return fmt.Errorf("%s: %w", args[1], err)
			}
			defer sb.Close() //nolint:errcheck

			diff, err := store.Diff(a, b, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), diff)
			return nil
		},
	}
	cmd.Flags().StringVar(&preset, "preset", "default", "params preset both snapshots were taken with")
	return cmd
}
