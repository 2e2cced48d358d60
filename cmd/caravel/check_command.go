package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"caravel/internal/faults"
	"caravel/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify mounts, remote access and mail settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return faults.Wrap(faults.ErrConfiguration, "config", "directories", "", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Project: %s\n", cfg.Project.Name)

			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg, store)
			rows := make([][]string, 0, len(results))
			for _, result := range results {
				status := "ok"
				if !result.Passed {
					status = "FAIL"
				}
				rows = append(rows, []string{result.Name, status, result.Detail})
			}
			fmt.Fprintln(out, renderTable(out, []string{"Check", "Status", "Detail"}, rows, []columnAlignment{alignLeft, alignLeft, alignLeft}))

			if failed := preflight.Failed(results); len(failed) > 0 {
				return faults.Wrap(faults.ErrConfiguration, "preflight", "check", fmt.Sprintf("%d of %d checks failed", len(failed), len(results)), nil)
			}
			fmt.Fprintln(out, "All checks passed")
			return nil
		},
	}
}
