package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/eigerco/auditor/internal/params"
)

func paramsCommand(flags *rootFlags) *cobra.Command {
	var preset string
	cmd := &cobra.Command{
		Use:   "params",
		Short: "Print the effective protocol parameters as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd.Flags())
			if err != nil {
				return err
			}
			p := cfg.Params
			if cmd.Flags().Changed("preset") {
				if p, err = params.Preset(preset); err != nil {
					return err
				}
			}
			if err := p.Validate(); err != nil {
				return err
			}
			b, err := yaml.Marshal(p)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(b))
			return nil
		},
	}
	cmd.Flags().StringVar(&preset, "preset", "", "print a preset (default, tiny) instead of the configuration")
	return cmd
}
