package storage

import (
	"context"
	"errors"
	"fmt"

	"barbeintiaden/photo-archive/internal/config"
)

// Backend is a remote file store addressed by absolute slash-separated names
// such as "/photos/<owner>/<millis>.jpg".
type Backend interface {
	// MakeDir ensures dir exists. It succeeds when dir is already there.
	// Flat object stores treat it as a no-op.
	MakeDir(ctx context.Context, dir string) error

	// Write stores data under name, replacing nothing: names are unique per
	// upload.
	Write(ctx context.Context, name string, data []byte, contentType string) error

	// Read returns the full content stored under name.
	Read(ctx context.Context, name string) ([]byte, error)

	// Remove permanently deletes name. It returns ErrObjectNotFound when the
	// backend can tell that name does not exist.
	Remove(ctx context.Context, name string) error
}

// Error constants for storage layer
var (
	ErrObjectNotFound     = errors.New("object not found in storage")
	ErrInvalidRef         = errors.New("invalid blob reference")
	ErrStorageUnavailable = errors.New("object storage unavailable")
)

// NewConnector picks the backend named by cfg.Backend. Nothing is dialled
// until the returned Connector runs.
func NewConnector(cfg config.StorageConfig) (Connector, error) {
	switch cfg.Backend {
	case "s3":
		return NewS3Connector(cfg.S3), nil
	case "gcs":
		return NewGCSConnector(cfg.GCS), nil
	case "azure":
		return NewAzureConnector(cfg.Azure), nil
	case "local":
		return NewLocalConnector(cfg.Local.Dir), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
