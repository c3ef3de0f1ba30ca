package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/neurlang/fakevoice/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type rootFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:           "fakevoice",
		Short:         "AI generated voice detector",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to the YAML configuration file")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override server.log_level (debug, info, warn, error)")

	cmd.AddCommand(
		newServeCmd(flags),
		newAnalyzeCmd(flags),
		newMelCmd(),
		newVersionCmd(),
	)
	return cmd
}

// load reads the configuration and applies command line overrides.
func (f *rootFlags) load() (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.logLevel != "" {
		cfg.Server.LogLevel = config.LogLevel(f.logLevel)
		if err := config.Validate(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "fakevoice "+version)
		},
	}
}
