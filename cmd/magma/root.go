package main

import (
	"log/slog"

	"github.com/UnknownOlympus/magma/internal/config"
	"github.com/spf13/cobra"
)

var (
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "magma",
	Short:         "Describe the geology of a map location",
	SilenceUsage:  true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		cfg = config.MustLoad()
		logger = setupLogger(cfg.Env)

		return cfg.Validate()
	},
}

// Execute runs the command selected on the command line.
func Execute() error {
	return rootCmd.Execute()
}
