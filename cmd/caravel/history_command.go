package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"caravel/internal/ledger"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		limit   int
		project string
		allRuns bool
	)

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recent runs or the items of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			history, err := ledger.OpenHistory(cmd.Context(), cfg.HistoryPath())
			if err != nil {
				return fmt.Errorf("open run history: %w", err)
			}
			defer history.Close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				items, err := history.Items(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if len(items) == 0 {
					fmt.Fprintf(out, "No items recorded for run %s\n", args[0])
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, item := range items {
					rows = append(rows, []string{item.Upload, item.Family, string(item.Outcome), strconv.Itoa(item.IssueCount), item.Error})
				}
				fmt.Fprintln(out, renderTable(out, []string{"Mount", "Family", "Outcome", "Issues", "Error"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft}))
				return nil
			}

			filter := project
			if filter == "" && !allRuns {
				filter = cfg.Project.Name
			}
			runs, err := history.Recent(cmd.Context(), filter, limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintf(out, "No runs recorded in %s\n", history.Path())
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				rows = append(rows, []string{
					run.RunID,
					run.Project,
					run.Started.Local().Format("2006-01-02 15:04:05"),
					run.Finished.Sub(run.Started).Round(time.Second).String(),
					run.Status,
					strconv.Itoa(run.Integrated),
					strconv.Itoa(run.Reported),
					strconv.Itoa(run.Internal),
					strconv.Itoa(run.Skipped),
				})
			}
			fmt.Fprintln(out, renderTable(out,
				[]string{"Run", "Project", "Started", "Took", "Status", "Integrated", "Reported", "Internal", "Skipped"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	cmd.Flags().StringVar(&project, "project", "", "Only show runs for this project (default: configured project)")
	cmd.Flags().BoolVar(&allRuns, "all", false, "Show runs for every project")
	return cmd
}
