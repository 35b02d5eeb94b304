package main

import (
	"github.com/spf13/cobra"

	"github.com/Strob0t/taskrelay/internal/config"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "taskrelay",
		Short:         "Relay planned work to a coding agent",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigFile, "path to the YAML config file")

	root.AddCommand(
		newServeCmd(&configPath),
		newHashKeyCmd(),
		newMigrateCmd(&configPath),
		newStatusCmd(&configPath),
	)
	return root
}
