// Package integration relocates validated datasets from an upload mount into
// its collected mount.
//
// Destination state is read from the remote store, which is the side the
// moves act on. Source emptiness is read from the local view of the upload
// mount; every mutation goes through the remote store.
package integration

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"caravel/internal/admission"
	"caravel/internal/faults"
	"caravel/internal/fileutil"
	"caravel/internal/logging"
	"caravel/internal/remote"
)

// Result lists what happened to each dataset.
type Result struct {
	Moved   []string `json:"moved"`
	Skipped []string `json:"skipped"`
}

// Mover runs the create-parents, move, prune sequence per dataset.
type Mover struct {
	store          remote.Store
	allowOverwrite bool
	logger         *slog.Logger
}

// NewMover returns a mover. With allowOverwrite false, datasets already
// present in the collected mount are skipped.
func NewMover(store remote.Store, allowOverwrite bool, logger *slog.Logger) *Mover {
	return &Mover{
		store:          store,
		allowOverwrite: allowOverwrite,
		logger:         logging.NewComponentLogger(logger, "integration"),
	}
}

func integrationError(operation, message string, err error) error {
	return faults.Wrap(faults.ErrIntegration, "integration", operation, message, err)
}

// Integrate moves every dataset of item. It stops at the first failure; the
// returned Result still lists the datasets handled before it.
func (m *Mover) Integrate(ctx context.Context, item admission.WorkItem, datasets []string) (Result, error) {
	logger := logging.WithContext(ctx, m.logger)
	var result Result
	for _, dataset := range datasets {
		segments := splitDataset(dataset)
		if len(segments) == 0 {
			continue
		}
		rel := strings.Join(segments, "/")
		src := remote.Join(item.UploadRemote, rel)
		dst := remote.Join(item.CollectRemote, rel)

		exists, err := m.store.Exists(ctx, dst)
		if err != nil {
			return result, integrationError("check destination", rel, err)
		}
		if exists && !m.allowOverwrite {
			logger.Info("dataset already collected; skipping",
				logging.String("dataset", rel),
				logging.String(logging.FieldEventType, "dataset_skipped"),
			)
			result.Skipped = append(result.Skipped, rel)
			continue
		}

		if err := m.createParents(ctx, item, segments); err != nil {
			return result, err
		}
		if err := m.store.Move(ctx, src, dst, m.allowOverwrite); err != nil {
			return result, integrationError("move", rel, err)
		}
		result.Moved = append(result.Moved, rel)
		logger.Info("dataset integrated", logging.String("dataset", rel), logging.Bool("replaced", exists))

		if err := m.pruneSource(ctx, item, segments); err != nil {
			return result, err
		}
	}
	return result, nil
}

// createParents walks the destination prefixes top-down.
func (m *Mover) createParents(ctx context.Context, item admission.WorkItem, segments []string) error {
	for i := 1; i < len(segments); i++ {
		prefix := strings.Join(segments[:i], "/")
		parent := remote.Join(item.CollectRemote, prefix)
		exists, err := m.store.Exists(ctx, parent)
		if err != nil {
			return integrationError("check parent", prefix, err)
		}
		if exists {
			continue
		}
		if err := m.store.CreateDir(ctx, parent); err != nil {
			return integrationError("create parent", prefix, err)
		}
	}
	return nil
}

// pruneSource walks the source prefixes bottom-up and removes the ones left
// empty by the move.
func (m *Mover) pruneSource(ctx context.Context, item admission.WorkItem, segments []string) error {
	for i := len(segments) - 1; i >= 1; i-- {
		prefix := strings.Join(segments[:i], "/")
		empty, err := fileutil.IsEmptyDir(filepath.Join(item.UploadDir, filepath.FromSlash(prefix)))
		if err != nil {
			return integrationError("check source ancestor", prefix, err)
		}
		if !empty {
			continue
		}
		if err := m.store.Delete(ctx, remote.Join(item.UploadRemote, prefix)); err != nil {
			return integrationError("prune source ancestor", prefix, err)
		}
		m.logger.Debug("pruned empty source directory", logging.String("dir", prefix))
	}
	return nil
}

func splitDataset(dataset string) []string {
	var out []string
	for _, part := range strings.Split(strings.ReplaceAll(dataset, "\\", "/"), "/") {
		if part == "" || part == "." {
			continue
		}
		out = append(out, part)
	}
	return out
}
