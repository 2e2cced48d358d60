// Package lock manages the per-mount work-in-progress marker.
//
// The marker is a plain file inside the upload area. Its presence makes
// admission skip the mount. It carries no lease or expiry: a marker left by
// a crashed run stays until an operator clears it (caravel unlock). Two runs
// on different hosts can both observe "unlocked" before either sets the
// marker; runs on one host are serialized by the runlock package.
package lock

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"caravel/internal/faults"
	"caravel/internal/logging"
	"caravel/internal/remote"
)

// MarkerName is the file name of the lock marker inside an upload mount.
const MarkerName = ".caravel-lock"

// Manager checks, sets and clears lock markers through the remote store.
type Manager struct {
	store   remote.Store
	scratch string
	owner   string
	logger  *slog.Logger
	now     func() time.Time
}

// NewManager returns a manager that stages marker files in scratchDir and
// writes owner into every marker it sets.
func NewManager(store remote.Store, scratchDir, owner string, logger *slog.Logger) *Manager {
	return &Manager{
		store:   store,
		scratch: scratchDir,
		owner:   owner,
		logger:  logging.NewComponentLogger(logger, "lock"),
		now:     time.Now,
	}
}

// IsLocked reports whether the marker exists.
func (m *Manager) IsLocked(ctx context.Context, markerPath string) (bool, error) {
	exists, err := m.store.Exists(ctx, markerPath)
	if err != nil {
		return false, faults.Wrap(faults.ErrRejected, "lock", "check", markerPath, err)
	}
	return exists, nil
}

// Set uploads the marker. Setting an existing marker is a no-op.
func (m *Manager) Set(ctx context.Context, markerPath string) error {
	locked, err := m.IsLocked(ctx, markerPath)
	if err != nil {
		return err
	}
	if locked {
		m.logger.Debug("lock marker already present", logging.String("marker", markerPath))
		return nil
	}

	body := fmt.Sprintf("owner=%s\nlocked_at=%s\n", m.owner, m.now().UTC().Format(time.RFC3339))
	local, err := stageFile(m.scratch, "lock-*", []byte(body))
	if err != nil {
		return faults.Wrap(faults.ErrInternal, "lock", "stage marker", markerPath, err)
	}
	defer os.Remove(local)

	if err := m.store.Upload(ctx, local, markerPath); err != nil {
		return err
	}
	m.logger.Info("lock marker set", logging.String("marker", markerPath))
	return nil
}

// Clear deletes the marker. Clearing an absent marker is a no-op.
func (m *Manager) Clear(ctx context.Context, markerPath string) error {
	locked, err := m.IsLocked(ctx, markerPath)
	if err != nil {
		return err
	}
	if !locked {
		return nil
	}
	if err := m.store.Delete(ctx, markerPath); err != nil {
		return err
	}
	m.logger.Info("lock marker cleared", logging.String("marker", markerPath))
	return nil
}

// stageFile writes data to a new temp file in dir and returns its path.
func stageFile(dir, pattern string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	file, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", err
	}
	if _, err := file.Write(data); err != nil {
		_ = file.Close()
		_ = os.Remove(file.Name())
		return "", err
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(file.Name())
		return "", err
	}
	return file.Name(), nil
}

// StageEmpty writes a zero-byte file to dir for marker-style uploads.
func StageEmpty(dir, pattern string) (string, error) {
	return stageFile(dir, pattern, nil)
}
