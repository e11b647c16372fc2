package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// localStorage keeps blobs as files below a directory. It is meant for
// development and tests.
type localStorage struct {
	rootDir string
}

// NewLocalConnector returns a Connector for a directory on the local disk.
func NewLocalConnector(dir string) Connector {
	return func(ctx context.Context) (Backend, error) {
		return NewLocalStorage(dir)
	}
}

// NewLocalStorage creates dir if needed and serves blobs from it.
func NewLocalStorage(dir string) (Backend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory %q: %w", dir, err)
	}
	return &localStorage{rootDir: dir}, nil
}

func (b *localStorage) path(name string) string {
	return filepath.Join(b.rootDir, filepath.FromSlash(strings.TrimPrefix(name, "/")))
}

func (b *localStorage) MakeDir(ctx context.Context, dir string) error {
	if err := os.MkdirAll(b.path(dir), 0o755); err != nil {
		return fmt.Errorf("creating directory %q: %w", dir, err)
	}
	return nil
}

// Write stores data through a temp file and a rename, so readers never see
// a partial blob. The parent directory must exist.
func (b *localStorage) Write(ctx context.Context, name string, data []byte, contentType string) error {
	target := b.path(name)
	tmpPath := filepath.Join(filepath.Dir(target), ".tmp-"+uuid.NewString())

	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("writing %q: %w", name, err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file to %q: %w", name, err)
	}
	return nil
}

func (b *localStorage) Read(ctx context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(b.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, name)
		}
		return nil, fmt.Errorf("reading %q: %w", name, err)
	}
	return data, nil
}

func (b *localStorage) Remove(ctx context.Context, name string) error {
	err := os.Remove(b.path(name))
	if os.IsNotExist(err) {
		return ErrObjectNotFound
	}
	if err != nil {
		return fmt.Errorf("removing %q: %w", name, err)
	}
	return nil
}
