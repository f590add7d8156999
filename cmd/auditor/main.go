// Command auditor runs the storage audit scheduler.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/eigerco/auditor/internal/config"
	"github.com/eigerco/auditor/pkg/log"
)

type rootFlags struct {
	configPath string
	logLevel   string
	logType    string
}

func (f *rootFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.configPath, "config", "c", "", "path to the YAML configuration file")
	fs.StringVar(&f.logLevel, "log-level", "", "log level, overrides the configuration")
	fs.StringVar(&f.logType, "log-type", "", "console or json, overrides the configuration")
}

// load reads the configuration, applies the flag overrides and initialises
// logging.
func (f *rootFlags) load(fs *pflag.FlagSet) (*config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		var err error
		if cfg, err = config.Load(f.configPath); err != nil {
			return nil, err
		}
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if fs.Changed("log-type") {
		cfg.Log.Type = f.logType
	}

	level, err := log.ParseLogLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	loggerType, err := log.ParseLoggerType(cfg.Log.Type)
	if err != nil {
		return nil, err
	}
	log.Init(log.Options{LogLevel: level, Type: loggerType, Output: os.Stderr})
	return cfg, nil
}

func rootCommand() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:           "auditor",
		Short:         "Challenges storage providers to prove they still hold their data",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags.register(cmd.PersistentFlags())

	cmd.AddCommand(
		runCommand(flags),
		paramsCommand(flags),
		inspectCommand(flags),
		diffCommand(),
	)
	return cmd
}

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
