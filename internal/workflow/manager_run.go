package workflow

import (
	"context"
	"errors"
	"sort"
	"time"

	"caravel/internal/admission"
	"caravel/internal/discovery"
	"caravel/internal/faults"
	"caravel/internal/integration"
	"caravel/internal/ledger"
	"caravel/internal/lock"
	"caravel/internal/logging"
	"caravel/internal/notifications"
	"caravel/internal/report"
	"caravel/internal/validation"
)

// Summary is what a finished run reports back to the CLI.
type Summary struct {
	RunID    string
	Status   string
	Reason   string
	Counts   map[ledger.Outcome]int
	Record   ledger.Record
	Paths    ledger.Paths
	Duration time.Duration
}

// pipeline holds the per-run collaborators built once admission succeeded.
type pipeline struct {
	locks     *lock.Manager
	runner    *validation.Runner
	mover     *integration.Mover
	publisher *report.Publisher
	notifier  *notifications.Notifier
	caps      map[string]validation.Capabilities
	stamp     string
}

// Run processes every configured mount. The returned error is non-nil only
// when the run aborted or its ledger could not be written; per-mount
// failures are reported through Summary.Counts.
func (m *Manager) Run(ctx context.Context) (Summary, error) {
	started := m.deps.Started
	if started.IsZero() {
		started = m.now()
	}
	ctx = logging.WithRunID(ctx, m.runID)
	logger := logging.WithContext(ctx, m.logger)
	if m.deps.Store == nil || m.deps.Registry == nil || m.deps.Ledger == nil {
		return Summary{RunID: m.runID}, faults.Wrap(faults.ErrConfiguration, "workflow", "run", "store, registry and ledger are required", nil)
	}

	run := m.deps.Ledger.Begin(m.runID, m.cfg.Project.Name, m.cfg.Redacted(), m.runtimeInfo(), started)
	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.Int("mounts", len(m.cfg.Project.Mounts)),
		logging.Bool("restricted", m.cfg.Validation.Restricted),
	)

	p, items, fatalErr := m.prepare(ctx, run)
	if fatalErr == nil {
		p.stamp = run.Stamp()
		for _, item := range items {
			record, err := m.processItem(ctx, p, item)
			run.Add(record)
			switch faults.Classify(err) {
			case faults.ClassFatal:
				fatalErr = err
			case faults.ClassItemFailure:
				logging.ErrorWithContext(logging.WithContext(logging.WithMount(ctx, item.UploadName), m.logger),
					"mount failed; continuing with remaining mounts", "item_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "support has been notified; see the local report for details"),
					logging.String(logging.FieldImpact, "mount left locked and unchanged"),
				)
			}
			if fatalErr != nil || ctx.Err() != nil {
				break
			}
		}
		if fatalErr == nil && ctx.Err() != nil {
			fatalErr = ctx.Err()
		}
	}

	status, reason := ledger.StatusCompleted, ""
	if fatalErr != nil {
		status, reason = ledger.StatusAborted, fatalErr.Error()
		logging.ErrorWithContext(logger, "run aborted", "run_aborted",
			logging.Error(fatalErr),
			logging.String(logging.FieldErrorHint, "fix the configuration or mount named in the error and rerun"),
			logging.String(logging.FieldImpact, "remaining mounts were not processed"),
		)
	}

	finalizeCtx := context.WithoutCancel(ctx)
	record, paths, ledgerErr := run.Finalize(finalizeCtx, status, reason, m.now())
	summary := Summary{
		RunID:    m.runID,
		Status:   status,
		Reason:   reason,
		Counts:   record.Tally(),
		Record:   record,
		Paths:    paths,
		Duration: m.now().Sub(started),
	}
	m.publishSummary(finalizeCtx, summary)

	if fatalErr != nil {
		return summary, fatalErr
	}
	if ledgerErr != nil {
		return summary, faults.Wrap(faults.ErrInternal, "workflow", "finalize", "write run ledger", ledgerErr)
	}
	logger.Info("run finished",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Int("integrated", summary.Counts[ledger.OutcomeIntegrated]),
		logging.Int("reported", summary.Counts[ledger.OutcomeReported]),
		logging.Int("internal", summary.Counts[ledger.OutcomeInternalError]),
		logging.Int("skipped", summary.Counts[ledger.OutcomeSkipped]),
		logging.Duration("duration", summary.Duration),
	)
	return summary, nil
}

// prepare discovers shares, admits every mount and resolves the families of
// the admitted ones. Any error it returns is fatal.
func (m *Manager) prepare(ctx context.Context, run *ledger.Run) (*pipeline, []admission.WorkItem, error) {
	if len(m.cfg.Project.Mounts) == 0 {
		return nil, nil, faults.Wrap(faults.ErrConfiguration, "workflow", "prepare", "no mounts configured", nil)
	}
	scratch, err := m.scratchDir()
	if err != nil {
		return nil, nil, faults.Wrap(faults.ErrConfiguration, "workflow", "prepare", "work directory", err)
	}

	directory, err := discovery.Discover(ctx, m.deps.Store, m.logger)
	if err != nil {
		return nil, nil, err
	}
	locks := lock.NewManager(m.deps.Store, scratch, "caravel run "+m.runID, m.logger)
	admitter := admission.NewAdmitter(m.deps.Store, directory, locks, scratch, m.logger)

	var items []admission.WorkItem
	for _, mount := range m.cfg.Project.Mounts {
		result, err := admitter.Admit(ctx, mount)
		if err != nil {
			return nil, nil, err
		}
		if result.Decision == admission.SkippedLocked {
			run.Add(ledger.ItemRecord{
				Mount:   result.Item.UploadDir,
				Upload:  result.Item.UploadName,
				Family:  result.Item.Family,
				Outcome: ledger.OutcomeSkipped,
			})
			continue
		}
		items = append(items, result.Item)
	}

	caps, err := m.deps.Registry.Resolve(familiesOf(items)...)
	if err != nil {
		return nil, nil, err
	}

	project := m.cfg.Project.Name
	return &pipeline{
		locks:     locks,
		runner:    validation.NewRunner(m.cfg.Validation.Restricted, m.deps.Subjects, m.logger),
		mover:     integration.NewMover(m.deps.Store, m.cfg.Validation.AllowOverwrite, m.logger),
		publisher: report.NewPublisher(m.deps.Store, m.cfg.ReportsDir(), project, m.logger),
		notifier:  notifications.NewNotifier(m.deps.Mailer, project, m.cfg.Mail.SupportAddress, m.logger),
		caps:      caps,
	}, items, nil
}

func (m *Manager) publishSummary(ctx context.Context, summary Summary) {
	err := m.deps.Operator.Publish(ctx, notifications.RunSummary{
		Project:    m.cfg.Project.Name,
		RunID:      summary.RunID,
		Integrated: summary.Counts[ledger.OutcomeIntegrated],
		Reported:   summary.Counts[ledger.OutcomeReported],
		Internal:   summary.Counts[ledger.OutcomeInternalError],
		Skipped:    summary.Counts[ledger.OutcomeSkipped],
		Aborted:    summary.Status == ledger.StatusAborted,
		Reason:     summary.Reason,
		Duration:   summary.Duration,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.WarnWithContext(m.logger, "operator summary not delivered", "ntfy_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check [ntfy].topic"),
		)
	}
}

func familiesOf(items []admission.WorkItem) []string {
	seen := make(map[string]struct{}, len(items))
	var out []string
	for _, item := range items {
		if _, ok := seen[item.Family]; ok {
			continue
		}
		seen[item.Family] = struct{}{}
		out = append(out, item.Family)
	}
	sort.Strings(out)
	return out
}
