package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/okian/flaggy/pkg/logger"
)

func newRootCmd() *cobra.Command {
	var (
		configPath string
		jsonLogs   bool
	)
	cmd := &cobra.Command{
		Use:           "flaggy",
		Short:         "Flag quiz game server with live leaderboards",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			// config.Load reads the file path from the environment.
			if configPath != "" {
				if err := os.Setenv("FLAGGY_CONFIG", configPath); err != nil {
					return err
				}
			}
			return logger.Init(logger.WithJSON(jsonLogs))
		},
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("FLAGGY_CONFIG"), "path to YAML config")
	cmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "emit JSON log lines")
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newLoadTestCmd())
	return cmd
}
