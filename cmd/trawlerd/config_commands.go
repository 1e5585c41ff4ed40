package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"trawler/internal/config"
)

func newConfigCommand(configFlag *string) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and manage configuration",
	}
	configCmd.AddCommand(newConfigCheckCommand(configFlag))
	configCmd.AddCommand(newConfigInitCommand(configFlag))
	return configCmd
}

func newConfigCheckCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Resolve and validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, found, err := config.Load(*configFlag)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if found {
				fmt.Fprintf(out, "Config file: %s\n", path)
			} else {
				fmt.Fprintf(out, "No config file found (searched %s); defaults in effect\n", path)
			}
			fmt.Fprintf(out, "Data directory: %s\n", cfg.Storage.DataDir)
			fmt.Fprintf(out, "Database: %s\n", cfg.DatabasePath())
			fmt.Fprintf(out, "Scheduler enabled: %t\n", cfg.Scheduler.Enabled)
			if cfg.Analyzer.Endpoint == "" {
				fmt.Fprintln(out, "Analyzer endpoint: (not configured)")
			} else {
				fmt.Fprintf(out, "Analyzer endpoint: %s\n", cfg.Analyzer.Endpoint)
			}
			fmt.Fprintln(out, "Configuration OK")
			return nil
		},
	}
}

func newConfigInitCommand(configFlag *string) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a sample configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := *configFlag
			if path == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return err
				}
				path = defaultPath
			}
			expanded, err := config.ExpandPath(path)
			if err != nil {
				return err
			}
			if _, err := os.Stat(expanded); err == nil && !force {
				return errors.New("config file already exists; use --force to overwrite")
			}
			if err := config.CreateSample(expanded); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sample configuration written to %s\n", expanded)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}
