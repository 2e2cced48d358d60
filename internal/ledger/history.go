package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes. Older databases are
// rejected with ErrSchemaMismatch rather than migrated.
const schemaVersion = 2

// ErrSchemaMismatch indicates the history database was created by another
// schema version.
var ErrSchemaMismatch = errors.New("history schema version mismatch")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// History is the SQLite-backed run history.
type History struct {
	db   *sql.DB
	path string
}

// RunRow summarizes one stored run.
type RunRow struct {
	RunID      string
	Project    string
	Status     string
	Reason     string
	Started    time.Time
	Finished   time.Time
	Integrated int
	Reported   int
	Internal   int
	Skipped    int
}

// ItemRow is one stored item outcome.
type ItemRow struct {
	Upload     string
	Family     string
	Outcome    Outcome
	IssueCount int
	Error      string
}

// OpenHistory opens or creates the database at path.
func OpenHistory(ctx context.Context, path string) (*History, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure history dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	h := &History{db: db, path: path}
	if err := h.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return h, nil
}

// Close closes the database.
func (h *History) Close() error {
	if h == nil || h.db == nil {
		return nil
	}
	return h.db.Close()
}

// Path returns the database file path.
func (h *History) Path() string { return h.path }

func (h *History) initSchema(ctx context.Context) error {
	var tableExists int
	err := h.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return h.createSchema(ctx)
	}

	var version int
	if err := h.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to reset history)",
			ErrSchemaMismatch, version, schemaVersion, filepath.Base(h.path))
	}
	return nil
}

func (h *History) createSchema(ctx context.Context) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Insert stores a finalized run and its items in one transaction.
func (h *History) Insert(ctx context.Context, record Record) error {
	tally := record.Tally()
	return retryOnBusy(ctx, func() error {
		tx, err := h.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin insert tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		_, err = tx.ExecContext(ctx,
			`INSERT INTO runs (
                run_id, project, status, reason, started_at, finished_at,
                integrated, reported, internal, skipped
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			record.RunID,
			record.Project,
			record.Status,
			record.Reason,
			unixNanos(record.Started),
			unixNanos(record.Finished),
			tally[OutcomeIntegrated],
			tally[OutcomeReported],
			tally[OutcomeInternalError],
			tally[OutcomeSkipped],
		)
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		for _, item := range record.Outputs {
			issues := 0
			if item.Report != nil {
				issues = item.Report.IssueCount()
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO run_items (run_id, upload, family, outcome, issue_count, error)
                 VALUES (?, ?, ?, ?, ?, ?)`,
				record.RunID, item.Upload, item.Family, string(item.Outcome), issues, item.Error,
			); err != nil {
				return fmt.Errorf("insert run item %s: %w", item.Upload, err)
			}
		}
		return tx.Commit()
	})
}

// Recent returns up to limit runs, newest first. A project filter of ""
// matches every project.
func (h *History) Recent(ctx context.Context, project string, limit int) ([]RunRow, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT run_id, project, status, reason, started_at, finished_at,
                     integrated, reported, internal, skipped
              FROM runs`
	args := []any{}
	if project != "" {
		query += " WHERE project = ?"
		args = append(args, project)
	}
	query += " ORDER BY started_at DESC, run_id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var row RunRow
		var started, finished int64
		if err := rows.Scan(&row.RunID, &row.Project, &row.Status, &row.Reason, &started, &finished,
			&row.Integrated, &row.Reported, &row.Internal, &row.Skipped); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		row.Started = fromUnixNanos(started)
		row.Finished = fromUnixNanos(finished)
		out = append(out, row)
	}
	return out, rows.Err()
}

// Items returns the stored item outcomes of runID in insertion order.
func (h *History) Items(ctx context.Context, runID string) ([]ItemRow, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT upload, family, outcome, issue_count, error FROM run_items WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query run items: %w", err)
	}
	defer rows.Close()

	var out []ItemRow
	for rows.Next() {
		var row ItemRow
		var outcome string
		if err := rows.Scan(&row.Upload, &row.Family, &outcome, &row.IssueCount, &row.Error); err != nil {
			return nil, fmt.Errorf("scan run item: %w", err)
		}
		row.Outcome = Outcome(outcome)
		out = append(out, row)
	}
	return out, rows.Err()
}

// Timestamps are stored as unix nanoseconds so ORDER BY is chronological.
// The zero time is stored as 0.
func unixNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil || !isSQLiteBusy(lastErr) {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > busyRetryMaxBackoff {
			delay = busyRetryMaxBackoff
		}
	}
	return lastErr
}
