package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"caravel/internal/fileutil"
	"caravel/internal/layout"
)

type layoutOptions struct {
	project string
}

func newLayoutCommand(ctx *commandContext) *cobra.Command {
	var opts layoutOptions

	layoutCmd := &cobra.Command{
		Use:   "layout",
		Short: "Query the newest saved layout of a family",
		Long: "Every processed mount leaves a layout snapshot in the work directory. " +
			"These commands query the newest snapshot of a project and family.",
	}
	layoutCmd.PersistentFlags().StringVar(&opts.project, "project", "", "Project identifier (default: project.name)")

	layoutCmd.AddCommand(newLayoutKeysCommand(ctx, &opts))
	layoutCmd.AddCommand(newLayoutValuesCommand(ctx, &opts))
	layoutCmd.AddCommand(newLayoutFilterCommand(ctx, &opts))
	layoutCmd.AddCommand(newLayoutExportCommand(ctx, &opts))
	return layoutCmd
}

func loadLatestLayout(ctx *commandContext, opts *layoutOptions, family string) (*layout.Snapshot, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	project := strings.TrimSpace(opts.project)
	if project == "" {
		project = cfg.Project.Name
	}
	if project == "" {
		return nil, errors.New("project is required (set project.name or pass --project)")
	}
	snap, err := layout.LatestSnapshot(cfg.LayoutsDir(), project, family)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("no layout saved for %s/%s yet; it is written when `caravel run` processes a %s mount", project, family, family)
	}
	if err != nil {
		return nil, fmt.Errorf("load layout: %w", err)
	}
	return snap, nil
}

func newLayoutKeysCommand(ctx *commandContext, opts *layoutOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "keys <family>",
		Short: "List the layouts and entity keys present",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := loadLatestLayout(ctx, opts, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Snapshot: %s\n", snap.Taken.Local().Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "Layouts: %s\n", joinOrNone(snap.Index.Layouts()))
			fmt.Fprintf(out, "Keys: %s\n", joinOrNone(snap.Index.Keys()))
			return nil
		},
	}
}

func newLayoutValuesCommand(ctx *commandContext, opts *layoutOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "values <family> <key>",
		Short: "List the distinct values of an entity key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := loadLatestLayout(ctx, opts, args[0])
			if err != nil {
				return err
			}
			if err := layout.CheckKey(args[1]); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, value := range snap.Index.Values(args[1]) {
				fmt.Fprintln(out, value)
			}
			return nil
		},
	}
}

func newLayoutFilterCommand(ctx *commandContext, opts *layoutOptions) *cobra.Command {
	var layoutName string

	cmd := &cobra.Command{
		Use:   "filter <family> [key=value]...",
		Short: "List the files matching every key=value rule",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rules := make(map[string]string, len(args)-1)
			for _, arg := range args[1:] {
				key, value, ok := strings.Cut(arg, "=")
				if !ok || key == "" {
					return fmt.Errorf("rule %q is not key=value", arg)
				}
				rules[key] = value
			}
			snap, err := loadLatestLayout(ctx, opts, args[0])
			if err != nil {
				return err
			}
			files, err := snap.Index.Filter(layoutName, rules)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(files) == 0 {
				fmt.Fprintln(out, "No matching files")
				return nil
			}
			rows := make([][]string, 0, len(files))
			for _, file := range files {
				rows = append(rows, []string{file.Path, file.Subject, file.Session, file.Suffix, strconv.FormatInt(file.Size, 10)})
			}
			fmt.Fprintln(out, renderTable(out, []string{"Path", "Subject", "Session", "Suffix", "Bytes"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight}))
			return nil
		},
	}
	cmd.Flags().StringVar(&layoutName, "layout", "*", "Layout to search (sourcedata, rawdata, derivatives, phenotype, \"\" for the root, * for all)")
	return cmd
}

func newLayoutExportCommand(ctx *commandContext, opts *layoutOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <family>",
		Short: "Write the newest layout index as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := loadLatestLayout(ctx, opts, args[0])
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(snap.Index, "", "  ")
			if err != nil {
				return fmt.Errorf("encode layout: %w", err)
			}
			data = append(data, '\n')
			if output == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := fileutil.WriteFileAtomic(output, data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote layout to %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file (default: stdout)")
	return cmd
}

func joinOrNone(values []string) string {
	if len(values) == 0 {
		return "(none)"
	}
	return strings.Join(values, ", ")
}
