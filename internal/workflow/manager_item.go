package workflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"caravel/internal/admission"
	"caravel/internal/faults"
	"caravel/internal/layout"
	"caravel/internal/ledger"
	"caravel/internal/logging"
	"caravel/internal/notifications"
	"caravel/internal/remote"
	"caravel/internal/report"
	"caravel/internal/validation"
)

// Stage names used in logs.
const (
	stageLockdown  = "lockdown"
	stageIndex     = "index"
	stageValidate  = "validate"
	stageIntegrate = "integrate"
	stagePublish   = "publish"
	stageNotify    = "notify"
)

// processItem walks one admitted mount to its terminal outcome. Once
// lockdown succeeded the share permission is restored and the lock marker
// left set on every path. A lockdown failure is fatal.
func (m *Manager) processItem(ctx context.Context, p *pipeline, item admission.WorkItem) (rec ledger.ItemRecord, err error) {
	ctx = logging.WithMount(ctx, item.UploadName)
	logger := logging.WithContext(ctx, m.logger).With(logging.String(logging.FieldFamily, item.Family))
	rec = ledger.ItemRecord{
		Mount:   item.UploadDir,
		Upload:  item.UploadName,
		Collect: item.CollectName,
		Family:  item.Family,
	}

	stageCtx := logging.WithStage(ctx, stageLockdown)
	if err := m.deps.Store.SetPermission(stageCtx, item.ShareID, remote.PermissionRead); err != nil {
		return lockdownFailed(rec, "set share read-only", err)
	}
	defer func() {
		if restoreErr := m.restorePermission(ctx, logger, item); restoreErr != nil {
			rec.Error = joinErrors(rec.Error, restoreErr.Error())
			if err == nil {
				err = restoreErr
			}
		}
	}()
	if err := p.locks.Set(stageCtx, item.LockMarkerPath); err != nil {
		return lockdownFailed(rec, "set lock marker", err)
	}

	stageCtx = logging.WithStage(ctx, stageIndex)
	idx, err := layout.Build(item.UploadDir)
	if err != nil {
		return m.failInternal(stageCtx, p, item, rec, validation.NewInternalFailure(nil, "index", err))
	}
	if path, err := layout.SaveSnapshot(m.cfg.LayoutsDir(), m.cfg.Project.Name, item.Family, m.now(), idx); err != nil {
		logging.WarnWithContext(logger, "layout snapshot not saved", "snapshot_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the layouts directory under the work dir"),
		)
	} else {
		logger.Debug("layout snapshot saved", logging.String("path", path), logging.Int("files", len(idx.Files)))
	}

	stageCtx = logging.WithStage(ctx, stageValidate)
	caps := p.caps[item.Family]
	rpt := p.runner.Run(stageCtx, item.Family, caps, item.CollectDir, idx)
	rec.Report = &rpt

	switch rpt.Kind() {
	case validation.InternalFailure:
		return m.failInternal(stageCtx, p, item, rec, rpt)
	case validation.Clean:
		return m.integrate(logging.WithStage(ctx, stageIntegrate), p, item, rec, rpt)
	default:
		return m.publish(logging.WithStage(ctx, stagePublish), p, item, rec, rpt)
	}
}

func (m *Manager) integrate(ctx context.Context, p *pipeline, item admission.WorkItem, rec ledger.ItemRecord, rpt validation.Report) (ledger.ItemRecord, error) {
	datasets, err := p.runner.ListDatasets(ctx, item.Family, p.caps[item.Family], item.UploadDir)
	if err != nil {
		return m.failInternal(ctx, p, item, rec, validation.NewInternalFailure(rpt.Map(), "listDatasets", err))
	}

	result, err := p.mover.Integrate(ctx, item, datasets)
	rec.Moved, rec.Skipped = result.Moved, result.Skipped
	if err != nil {
		return m.failInternal(ctx, p, item, rec, validation.NewInternalFailure(rpt.Map(), "integration", err))
	}

	if err := p.publisher.RemoveStale(ctx, item); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, m.logger), "stale report not removed", "stale_report_kept",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "delete report.json and report.docx from the mount by hand"),
		)
	}
	m.relock(ctx, p, item)
	m.saveAudit(ctx, p, item, &rec, rpt)

	rec.Outcome = ledger.OutcomeIntegrated
	m.notify(ctx, p, item, notifications.OutcomePass, notifications.MailContext{Moved: rec.Moved, Skipped: rec.Skipped}, rpt, nil)
	return rec, nil
}

func (m *Manager) publish(ctx context.Context, p *pipeline, item admission.WorkItem, rec ledger.ItemRecord, rpt validation.Report) (ledger.ItemRecord, error) {
	artifacts, err := p.publisher.SaveLocal(item, rpt, p.stamp)
	if err != nil {
		return m.failInternal(ctx, p, item, rec, validation.NewInternalFailure(rpt.Map(), "report", err))
	}
	rec.ReportJSON, rec.ReportDOCX = artifacts.JSON, artifacts.DOCX
	if err := p.publisher.Publish(ctx, item, artifacts); err != nil {
		return m.failInternal(ctx, p, item, rec, validation.NewInternalFailure(rpt.Map(), "publish", err))
	}
	m.relock(ctx, p, item)

	rec.Outcome = ledger.OutcomeReported
	attachments := []notifications.Attachment{
		{Name: report.JSONName, Path: artifacts.JSON},
		{Name: report.DOCXName, Path: artifacts.DOCX},
	}
	m.notify(ctx, p, item, notifications.OutcomeFail, notifications.MailContext{}, rpt, attachments)
	return rec, nil
}

// lockdownFailed aborts the run: a store that refuses mutating calls before
// indexing is misconfigured for every mount, so nobody is mailed.
func lockdownFailed(rec ledger.ItemRecord, message string, err error) (ledger.ItemRecord, error) {
	rec.Outcome = ledger.OutcomeInternalError
	rec.Error = joinErrors(rec.Error, err.Error())
	return rec, faults.Wrap(faults.ErrAdmission, "workflow", stageLockdown, message, err)
}

// failInternal records rpt as the item's internal failure, keeps a local
// audit copy and mails support plus contributors. The returned error is an
// item failure.
func (m *Manager) failInternal(ctx context.Context, p *pipeline, item admission.WorkItem, rec ledger.ItemRecord, rpt validation.Report) (ledger.ItemRecord, error) {
	rec.Report = &rpt
	rec.Outcome = ledger.OutcomeInternalError
	rec.Error = joinErrors(rec.Error, rpt.Detail())
	m.saveAudit(ctx, p, item, &rec, rpt)
	m.notify(ctx, p, item, notifications.OutcomeInternalError, notifications.MailContext{}, rpt, nil)
	return rec, faults.Wrap(faults.ErrInternal, "workflow", "process", item.UploadName, errors.New(rpt.Detail()))
}

// saveAudit keeps the local copy of every report, clean or not.
func (m *Manager) saveAudit(ctx context.Context, p *pipeline, item admission.WorkItem, rec *ledger.ItemRecord, rpt validation.Report) {
	if rec.ReportJSON != "" {
		return
	}
	artifacts, err := p.publisher.SaveLocal(item, rpt, p.stamp)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, m.logger), "local report copy not saved", "audit_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the local_reports directory under the work dir"),
		)
		return
	}
	rec.ReportJSON, rec.ReportDOCX = artifacts.JSON, artifacts.DOCX
}

// relock re-sets the marker at the end of a branch. The marker normally
// survives from lock-down; a failure here only loses that guarantee.
func (m *Manager) relock(ctx context.Context, p *pipeline, item admission.WorkItem) {
	if err := p.locks.Set(ctx, item.LockMarkerPath); err != nil {
		logging.ErrorWithContext(logging.WithContext(ctx, m.logger), "lock marker not re-set", "relock_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "upload "+item.LockMarkerPath+" by hand before the next run"),
			logging.String(logging.FieldImpact, "the mount may be processed again next run"),
		)
	}
}

func (m *Manager) notify(ctx context.Context, p *pipeline, item admission.WorkItem, outcome notifications.Outcome, mc notifications.MailContext, rpt validation.Report, attachments []notifications.Attachment) {
	ctx = logging.WithStage(ctx, stageNotify)
	if err := p.notifier.Notify(ctx, item, outcome, mc, rpt, attachments); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, m.logger), "outcome mail not sent", "mail_failed",
			logging.String("outcome", string(outcome)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the [mail] settings and the SMTP relay"),
		)
	}
}

func (m *Manager) restorePermission(ctx context.Context, logger *slog.Logger, item admission.WorkItem) error {
	if err := m.deps.Store.SetPermission(context.WithoutCancel(ctx), item.ShareID, remote.PermissionAll); err != nil {
		logging.ErrorWithContext(logger, "share permission not restored", "permission_restore_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "restore full access on share "+item.ShareID+" by hand"),
			logging.String(logging.FieldImpact, "contributors cannot upload to the mount"),
		)
		return faults.Wrap(faults.ErrIntegration, "workflow", "restore permission", item.UploadName, err)
	}
	return nil
}

func joinErrors(existing, next string) string {
	if strings.TrimSpace(existing) == "" {
		return next
	}
	return existing + "; " + next
}
