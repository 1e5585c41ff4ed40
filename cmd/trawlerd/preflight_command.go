package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"trawler/internal/config"
	"trawler/internal/preflight"
)

func newPreflightCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "preflight",
		Short: "Run environment checks without starting the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, _, err := config.Load(*configFlag)
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}

			results := preflight.RunAll(cmd.Context(), cfg)

			rows := make([][]string, 0, len(results))
			for _, result := range results {
				status := "FAIL"
				if result.Passed {
					status = "OK"
				}
				rows = append(rows, []string{result.Name, status, result.Detail})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Check", "Status", "Detail"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft},
			))

			if !preflight.AllPassed(results) {
				return errors.New("one or more preflight checks failed")
			}
			return nil
		},
	}
}
