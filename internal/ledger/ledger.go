package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"caravel/internal/fileutil"
	"caravel/internal/logging"
)

// ErrFinalized is returned when a run is written a second time.
var ErrFinalized = errors.New("run already finalized")

// Ledger writes run records. History and Archiver are optional.
type Ledger struct {
	logDir   string
	history  *History
	archiver Archiver
	logger   *slog.Logger
}

// New returns a ledger writing JSON documents under logDir.
func New(logDir string, history *History, archiver Archiver, logger *slog.Logger) *Ledger {
	return &Ledger{
		logDir:   logDir,
		history:  history,
		archiver: archiver,
		logger:   logging.NewComponentLogger(logger, "ledger"),
	}
}

// Run accumulates one run's outputs until Finalize.
type Run struct {
	ledger *Ledger

	mu        sync.Mutex
	record    Record
	finalized bool
}

// Begin starts a run. inputs must already have secrets redacted.
func (l *Ledger) Begin(runID, project string, inputs any, runtime Runtime, started time.Time) *Run {
	return &Run{
		ledger: l,
		record: Record{
			RunID:   runID,
			Project: project,
			Started: started,
			Inputs:  inputs,
			Runtime: runtime,
			Outputs: []ItemRecord{},
		},
	}
}

// Stamp returns the run's artifact timestamp.
func (r *Run) Stamp() string {
	return r.record.Stamp()
}

// Add appends an item outcome. Adds after Finalize are dropped.
func (r *Run) Add(item ItemRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return
	}
	r.record.Outputs = append(r.record.Outputs, item)
}

// Paths of the documents written by Finalize.
type Paths struct {
	Inputs  string
	Outputs string
	Runtime string
}

// Finalize writes the run once. Archive and history failures are logged and
// do not fail the call once the local documents exist.
func (r *Run) Finalize(ctx context.Context, status, reason string, finished time.Time) (Record, Paths, error) {
	r.mu.Lock()
	if r.finalized {
		r.mu.Unlock()
		return Record{}, Paths{}, ErrFinalized
	}
	r.finalized = true
	r.record.Status = status
	r.record.Reason = reason
	r.record.Finished = finished
	record := r.record
	r.mu.Unlock()

	l := r.ledger
	stamp := record.Stamp()
	paths := Paths{
		Inputs:  filepath.Join(l.logDir, fmt.Sprintf("inputs_%s.json", stamp)),
		Outputs: filepath.Join(l.logDir, fmt.Sprintf("outputs_%s.json", stamp)),
		Runtime: filepath.Join(l.logDir, fmt.Sprintf("runtime_%s.json", stamp)),
	}
	outputs := struct {
		RunID    string       `json:"run_id"`
		Status   string       `json:"status"`
		Reason   string       `json:"reason,omitempty"`
		Started  time.Time    `json:"started"`
		Finished time.Time    `json:"finished"`
		Items    []ItemRecord `json:"items"`
	}{record.RunID, record.Status, record.Reason, record.Started, record.Finished, record.Outputs}

	docs := []struct {
		path  string
		value any
	}{
		{paths.Inputs, record.Inputs},
		{paths.Outputs, outputs},
		{paths.Runtime, record.Runtime},
	}
	for _, doc := range docs {
		data, err := json.MarshalIndent(doc.value, "", "  ")
		if err != nil {
			return record, paths, fmt.Errorf("encode %s: %w", filepath.Base(doc.path), err)
		}
		if err := fileutil.WriteFileAtomic(doc.path, data, 0o644); err != nil {
			return record, paths, fmt.Errorf("write %s: %w", filepath.Base(doc.path), err)
		}
		if l.archiver != nil {
			if err := l.archiver.Archive(ctx, stamp+"/"+filepath.Base(doc.path), data); err != nil {
				logging.WarnWithContext(l.logger, "ledger archive failed", "ledger_archive_failed",
					logging.String("document", filepath.Base(doc.path)),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check [ledger] bucket credentials"),
					logging.String(logging.FieldImpact, "local ledger documents are still written"),
				)
			}
		}
	}

	if l.history != nil {
		if err := l.history.Insert(ctx, record); err != nil {
			logging.WarnWithContext(l.logger, "run history insert failed", "history_insert_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "delete caravel.db if the schema is out of date"),
			)
		}
	}

	tally := record.Tally()
	l.logger.Info("run finalized",
		logging.String(logging.FieldRunID, record.RunID),
		logging.String("status", record.Status),
		logging.Int("integrated", tally[OutcomeIntegrated]),
		logging.Int("reported", tally[OutcomeReported]),
		logging.Int("internal", tally[OutcomeInternalError]),
		logging.Int("skipped", tally[OutcomeSkipped]),
	)
	return record, paths, nil
}
