package ledger

import (
	"context"
	"fmt"

	"caravel/internal/config"
)

// Archiver copies finalized ledger documents to off-host storage.
type Archiver interface {
	Archive(ctx context.Context, name string, data []byte) error
	Close() error
}

// NewArchiver returns the archiver selected by [ledger].archive, or nil when
// archiving is disabled.
func NewArchiver(ctx context.Context, cfg config.Ledger) (Archiver, error) {
	switch cfg.Archive {
	case "":
		return nil, nil
	case config.ArchiveS3:
		archiver, err := NewS3Archiver(ctx, S3Config{
			Bucket:   cfg.Bucket,
			Region:   cfg.Region,
			Endpoint: cfg.Endpoint,
			Prefix:   cfg.Prefix,
		})
		if err != nil {
			return nil, err
		}
		return archiver, nil
	case config.ArchiveGCS:
		archiver, err := NewGCSArchiver(ctx, GCSConfig{Bucket: cfg.Bucket, Prefix: cfg.Prefix})
		if err != nil {
			return nil, err
		}
		return archiver, nil
	default:
		return nil, fmt.Errorf("unsupported ledger archive %q", cfg.Archive)
	}
}
