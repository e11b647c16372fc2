package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"barbeintiaden/photo-archive/internal/config"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSAPI is the part of the GCS client the backend calls.
type GCSAPI interface {
	NewWriter(ctx context.Context, bucket, object, contentType string) io.WriteCloser
	NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error)
	Delete(ctx context.Context, bucket, object string) error
}

// realGCSClient wraps the official GCS client to satisfy GCSAPI.
type realGCSClient struct {
	client *gcs.Client
}

func (c *realGCSClient) NewWriter(ctx context.Context, bucket, object, contentType string) io.WriteCloser {
	w := c.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	return w
}

func (c *realGCSClient) NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	return c.client.Bucket(bucket).Object(object).NewReader(ctx)
}

func (c *realGCSClient) Delete(ctx context.Context, bucket, object string) error {
	return c.client.Bucket(bucket).Object(object).Delete(ctx)
}

type gcsStorage struct {
	client GCSAPI
	bucket string
}

// NewGCSConnector returns a Connector for a Google Cloud Storage bucket.
// Without a credentials file the application default credentials are used.
func NewGCSConnector(cfg config.GCSConfig) Connector {
	return func(ctx context.Context) (Backend, error) {
		var opts []option.ClientOption
		if cfg.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		}
		if cfg.Endpoint != "" {
			opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
		}
		client, err := gcs.NewClient(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("creating GCS client: %w", err)
		}
		if _, err := client.Bucket(cfg.Bucket).Attrs(ctx); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("cannot access bucket %q: %w", cfg.Bucket, err)
		}
		slog.Info("GCS storage initialized", "bucket", cfg.Bucket)
		return NewGCSStorage(cfg.Bucket, &realGCSClient{client: client}), nil
	}
}

// NewGCSStorage wraps an existing client.
func NewGCSStorage(bucket string, client GCSAPI) Backend {
	return &gcsStorage{client: client, bucket: bucket}
}

func (s *gcsStorage) MakeDir(ctx context.Context, dir string) error {
	return nil
}

func (s *gcsStorage) Write(ctx context.Context, name string, data []byte, contentType string) error {
	w := s.client.NewWriter(ctx, s.bucket, objectKey(name), contentType)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	// The upload is only committed by Close.
	return w.Close()
}

func (s *gcsStorage) Read(ctx context.Context, name string) ([]byte, error) {
	r, err := s.client.NewReader(ctx, s.bucket, objectKey(name))
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, name)
		}
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (s *gcsStorage) Remove(ctx context.Context, name string) error {
	err := s.client.Delete(ctx, s.bucket, objectKey(name))
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return ErrObjectNotFound
	}
	return err
}
