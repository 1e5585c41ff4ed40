package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	rootCmd := &cobra.Command{
		Use:           "trawlerd",
		Short:         "Trawler content-discovery daemon",
		Long:          "trawlerd polls subscribed sources for new content, queues discovered items, and drives them through the configured analyzer.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), configFlag)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newVersionCommand())
	rootCmd.AddCommand(newConfigCommand(&configFlag))
	rootCmd.AddCommand(newPreflightCommand(&configFlag))

	return rootCmd
}
