package report

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"caravel/internal/admission"
	"caravel/internal/faults"
	"caravel/internal/fileutil"
	"caravel/internal/logging"
	"caravel/internal/remote"
	"caravel/internal/validation"
)

// Names of the artifacts as contributors see them inside their mount.
const (
	JSONName = "report.json"
	DOCXName = "report.docx"
)

// Artifacts locates the local audit copies of one report.
type Artifacts struct {
	JSON string `json:"json"`
	DOCX string `json:"docx"`
}

// Publisher writes local audit copies and uploads dirty reports.
type Publisher struct {
	store    remote.Store
	localDir string
	project  string
	logger   *slog.Logger
}

// NewPublisher returns a publisher keeping audit copies under localDir.
func NewPublisher(store remote.Store, localDir, project string, logger *slog.Logger) *Publisher {
	return &Publisher{
		store:    store,
		localDir: localDir,
		project:  project,
		logger:   logging.NewComponentLogger(logger, "report"),
	}
}

// SaveLocal writes local_reports/<upload>/report_<stamp>.json and .docx.
func (p *Publisher) SaveLocal(item admission.WorkItem, r validation.Report, stamp string) (Artifacts, error) {
	dir := filepath.Join(p.localDir, item.UploadName)
	artifacts := Artifacts{
		JSON: filepath.Join(dir, fmt.Sprintf("report_%s.json", stamp)),
		DOCX: filepath.Join(dir, fmt.Sprintf("report_%s.docx", stamp)),
	}

	data, err := EncodeJSON(r)
	if err != nil {
		return Artifacts{}, faults.Wrap(faults.ErrInternal, "report", "save local", "encode json", err)
	}
	if err := fileutil.WriteFileAtomic(artifacts.JSON, data, 0o644); err != nil {
		return Artifacts{}, faults.Wrap(faults.ErrInternal, "report", "save local", artifacts.JSON, err)
	}

	var doc bytes.Buffer
	if err := RenderDOCX(&doc, p.document(item, stamp), r); err != nil {
		return Artifacts{}, faults.Wrap(faults.ErrInternal, "report", "save local", "render docx", err)
	}
	if err := fileutil.WriteFileAtomic(artifacts.DOCX, doc.Bytes(), 0o644); err != nil {
		return Artifacts{}, faults.Wrap(faults.ErrInternal, "report", "save local", artifacts.DOCX, err)
	}
	return artifacts, nil
}

func (p *Publisher) document(item admission.WorkItem, stamp string) Document {
	return Document{
		Title: "Validation report for " + item.UploadName,
		Meta: [][2]string{
			{"Project", p.project},
			{"Family", item.Family},
			{"Run", stamp},
		},
	}
}

// RemoveStale deletes report artifacts left in the mount by an earlier run.
func (p *Publisher) RemoveStale(ctx context.Context, item admission.WorkItem) error {
	for _, name := range []string{JSONName, DOCXName} {
		target := remote.Join(item.UploadRemote, name)
		exists, err := p.store.Exists(ctx, target)
		if err != nil {
			return faults.Wrap(faults.ErrIntegration, "report", "remove stale", target, err)
		}
		if !exists {
			continue
		}
		if err := p.store.Delete(ctx, target); err != nil {
			return faults.Wrap(faults.ErrIntegration, "report", "remove stale", target, err)
		}
		p.logger.Debug("stale report removed", logging.String("path", target))
	}
	return nil
}

// Publish replaces any stale report in the mount with the given artifacts.
func (p *Publisher) Publish(ctx context.Context, item admission.WorkItem, artifacts Artifacts) error {
	if err := p.RemoveStale(ctx, item); err != nil {
		return err
	}
	uploads := []struct{ local, name string }{
		{artifacts.JSON, JSONName},
		{artifacts.DOCX, DOCXName},
	}
	for _, upload := range uploads {
		target := remote.Join(item.UploadRemote, upload.name)
		if err := p.store.Upload(ctx, upload.local, target); err != nil {
			return faults.Wrap(faults.ErrIntegration, "report", "publish", target, err)
		}
	}
	logging.WithContext(ctx, p.logger).Info("report published",
		logging.String("json", remote.Join(item.UploadRemote, JSONName)),
		logging.String("docx", remote.Join(item.UploadRemote, DOCXName)),
	)
	return nil
}
