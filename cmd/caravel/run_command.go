package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"caravel/internal/config"
	"caravel/internal/faults"
	"caravel/internal/ledger"
	"caravel/internal/logging"
	"caravel/internal/notifications"
	"caravel/internal/preflight"
	"caravel/internal/runlock"
	"caravel/internal/workflow"
)

type runOptions struct {
	project    string
	mounts     []string
	subjects   string
	workDir    string
	restricted bool
	overwrite  bool
	verbose    int
	skipChecks bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Validate every configured upload mount once",
		Long: "Admit every upload mount, validate it with the plugin of its family, " +
			"integrate clean uploads into the collected mount and publish a report for the rest.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := applyRunOverrides(cmd, cfg, opts); err != nil {
				return err
			}
			return executeRun(cmd, cfg, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.project, "project", "", "Project identifier (overrides project.name)")
	flags.StringSliceVarP(&opts.mounts, "mount", "m", nil, "Upload mount path; repeat for several (overrides project.mounts)")
	flags.StringVar(&opts.subjects, "subjects", "", "File listing allowed subject identifiers")
	flags.StringVar(&opts.workDir, "work-dir", "", "Working directory for logs, reports and history")
	flags.BoolVar(&opts.restricted, "restricted", false, "Run only the structural validators")
	flags.BoolVar(&opts.overwrite, "overwrite", false, "Replace datasets already present in the collected mount")
	flags.CountVarP(&opts.verbose, "verbose", "v", "Increase log verbosity (-v info, -vv debug)")
	flags.BoolVar(&opts.skipChecks, "skip-checks", false, "Skip the preflight checks")
	return cmd
}

func applyRunOverrides(cmd *cobra.Command, cfg *config.Config, opts runOptions) error {
	flags := cmd.Flags()
	if flags.Changed("project") {
		cfg.Project.Name = opts.project
	}
	if flags.Changed("mount") {
		cfg.Project.Mounts = opts.mounts
	}
	if flags.Changed("subjects") {
		cfg.Project.SubjectsFile = opts.subjects
	}
	if flags.Changed("work-dir") {
		cfg.Paths.WorkDir = opts.workDir
	}
	if flags.Changed("restricted") {
		cfg.Validation.Restricted = opts.restricted
	}
	if flags.Changed("overwrite") {
		cfg.Validation.AllowOverwrite = opts.overwrite
	}
	if err := cfg.Normalize(); err != nil {
		return faults.Wrap(faults.ErrConfiguration, "config", "overrides", "", err)
	}
	if err := cfg.ValidateRun(); err != nil {
		return faults.Wrap(faults.ErrConfiguration, "config", "validate", "", err)
	}
	return nil
}

func executeRun(cmd *cobra.Command, cfg *config.Config, opts runOptions) error {
	runCtx := cmd.Context()
	if err := cfg.EnsureDirectories(); err != nil {
		return faults.Wrap(faults.ErrConfiguration, "config", "directories", "", err)
	}

	guard, err := runlock.Acquire(cfg.LockPath())
	if err != nil {
		return err
	}
	defer guard.Release()

	started := time.Now()
	stamp := started.Format(ledger.StampFormat)
	runID := uuid.NewString()

	logger, closer, err := logging.New(logging.Options{
		Level:       logging.LevelForVerbosity(cfg.Logging.Level, opts.verbose),
		Format:      cfg.Logging.Format,
		OutputPaths: []string{filepath.Join(cfg.LogDir(), "stdout_"+stamp+".log")},
		Writers:     []io.Writer{cmd.ErrOrStderr()},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closer.Close()
	logger.Debug("run lock held", logging.String("path", guard.Path()), logging.String(logging.FieldRunID, runID))

	if cfg.Logging.RetentionDays > 0 {
		logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
			logging.RetentionTarget{Dir: cfg.LogDir(), Pattern: "stdout_*.log"},
		)
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	if !opts.skipChecks {
		if failed := preflight.Failed(preflight.RunAll(runCtx, cfg, store)); len(failed) > 0 {
			for _, result := range failed {
				logging.ErrorWithContext(logger, "preflight check failed", "preflight_failed",
					logging.String("check", result.Name),
					logging.String("detail", result.Detail),
					logging.String(logging.FieldErrorHint, "run `caravel check` for the full list"),
				)
			}
			return faults.Wrap(faults.ErrConfiguration, "preflight", "run", fmt.Sprintf("%d check(s) failed, first: %s: %s", len(failed), failed[0].Name, failed[0].Detail), nil)
		}
	}

	registry, err := newRegistry(cfg)
	if err != nil {
		return err
	}
	subjects, err := workflow.LoadSubjects(cfg.Project.SubjectsFile)
	if err != nil {
		return err
	}

	history, err := ledger.OpenHistory(runCtx, cfg.HistoryPath())
	if err != nil {
		return fmt.Errorf("open run history: %w", err)
	}
	defer history.Close()
	archiver, err := ledger.NewArchiver(runCtx, cfg.Ledger)
	if err != nil {
		return faults.Wrap(faults.ErrConfiguration, "ledger", "archive", "", err)
	}
	if archiver != nil {
		defer archiver.Close()
	}

	manager := workflow.NewManager(cfg, runID, workflow.Dependencies{
		Store:    store,
		Registry: registry,
		Ledger:   ledger.New(cfg.LogDir(), history, archiver, logger),
		Mailer:   notifications.NewMailer(cfg, logger),
		Operator: notifications.NewOperator(cfg, logger),
		Subjects: subjects,
		Version:  version,
		Started:  started,
	}, logger)

	summary, runErr := manager.Run(runCtx)
	printRunSummary(cmd.OutOrStdout(), summary)
	if runErr != nil {
		return runErr
	}
	return outcomeError(summary)
}

// outcomeError turns per-mount failures of a finished run into the command's
// error. A mount can end Integrated and still carry an error, for example
// when its share permission could not be restored.
func outcomeError(summary workflow.Summary) error {
	if n := summary.Counts[ledger.OutcomeInternalError]; n > 0 {
		return fmt.Errorf("%d mount(s) failed with an internal error; support has been notified", n)
	}
	var failed []string
	for _, item := range summary.Record.Outputs {
		if item.Error != "" {
			failed = append(failed, item.Upload+": "+item.Error)
		}
	}
	if len(failed) > 0 {
		return errors.New("mounts need operator attention: " + strings.Join(failed, "; "))
	}
	return nil
}

func printRunSummary(out io.Writer, summary workflow.Summary) {
	if summary.RunID == "" {
		return
	}
	rows := make([][]string, 0, len(summary.Record.Outputs))
	for _, item := range summary.Record.Outputs {
		issues := ""
		if item.Report != nil {
			issues = strconv.Itoa(item.Report.IssueCount())
		}
		rows = append(rows, []string{item.Upload, item.Family, string(item.Outcome), issues})
	}
	fmt.Fprintf(out, "Run %s %s in %s\n", summary.RunID, summary.Status, summary.Duration.Round(time.Millisecond))
	if len(rows) > 0 {
		fmt.Fprintln(out, renderTable(out, []string{"Mount", "Family", "Outcome", "Issues"}, rows, []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight}))
	}
	if summary.Paths.Outputs != "" {
		fmt.Fprintf(out, "Ledger: %s\n", summary.Paths.Outputs)
	}
}
