package ledger

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
)

// GCSConfig locates the GCS bucket for ledger documents.
type GCSConfig struct {
	Bucket string
	Prefix string
}

// GCSArchiver uploads ledger documents to Google Cloud Storage using
// application default credentials.
type GCSArchiver struct {
	client *storage.Client
	bucket string
	prefix string
}

func NewGCSArchiver(ctx context.Context, cfg GCSConfig) (*GCSArchiver, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs archive requires a bucket")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCSArchiver{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (a *GCSArchiver) Archive(ctx context.Context, name string, data []byte) error {
	w := a.client.Bucket(a.bucket).Object(a.prefix + name).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs write %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs close %s: %w", name, err)
	}
	return nil
}

func (a *GCSArchiver) Close() error {
	return a.client.Close()
}
