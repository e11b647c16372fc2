package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"barbeintiaden/photo-archive/internal/config"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// AzureBlobAPI is the part of the Azure Blob client the backend calls.
type AzureBlobAPI interface {
	UploadBlob(ctx context.Context, container, name string, data []byte, contentType string) error
	DownloadBlob(ctx context.Context, container, name string) ([]byte, error)
	DeleteBlob(ctx context.Context, container, name string) error
}

// realAzureClient wraps the official Azure SDK client to satisfy AzureBlobAPI.
type realAzureClient struct {
	client *azblob.Client
}

// newRealAzureClient authenticates with the connection string when present,
// otherwise with managed identity or the default credential chain.
func newRealAzureClient(cfg config.AzureConfig) (*realAzureClient, error) {
	if cfg.ConnectionString != "" {
		client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
		if err != nil {
			return nil, fmt.Errorf("creating Azure Blob client from connection string: %w", err)
		}
		return &realAzureClient{client: client}, nil
	}

	if cfg.UseManagedIdentity {
		cred, err := azidentity.NewManagedIdentityCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("creating Azure managed identity credential: %w", err)
		}
		client, err := azblob.NewClient(cfg.AccountURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("creating Azure Blob client with managed identity: %w", err)
		}
		return &realAzureClient{client: client}, nil
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("creating Azure credential: %w", err)
	}
	client, err := azblob.NewClient(cfg.AccountURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("creating Azure Blob client: %w", err)
	}
	return &realAzureClient{client: client}, nil
}

func (c *realAzureClient) UploadBlob(ctx context.Context, container, name string, data []byte, contentType string) error {
	_, err := c.client.UploadBuffer(ctx, container, name, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	return err
}

func (c *realAzureClient) DownloadBlob(ctx context.Context, container, name string) ([]byte, error) {
	resp, err := c.client.DownloadStream(ctx, container, name, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (c *realAzureClient) DeleteBlob(ctx context.Context, container, name string) error {
	_, err := c.client.DeleteBlob(ctx, container, name, nil)
	return err
}

type azureStorage struct {
	client    AzureBlobAPI
	container string
}

// NewAzureConnector returns a Connector for an Azure Blob Storage container.
func NewAzureConnector(cfg config.AzureConfig) Connector {
	return func(ctx context.Context) (Backend, error) {
		client, err := newRealAzureClient(cfg)
		if err != nil {
			return nil, err
		}
		slog.Info("Azure storage initialized", "container", cfg.Container)
		return NewAzureStorage(cfg.Container, client), nil
	}
}

// NewAzureStorage wraps an existing client.
func NewAzureStorage(container string, client AzureBlobAPI) Backend {
	return &azureStorage{client: client, container: container}
}

func (s *azureStorage) MakeDir(ctx context.Context, dir string) error {
	return nil
}

func (s *azureStorage) Write(ctx context.Context, name string, data []byte, contentType string) error {
	return s.client.UploadBlob(ctx, s.container, objectKey(name), data, contentType)
}

func (s *azureStorage) Read(ctx context.Context, name string) ([]byte, error) {
	data, err := s.client.DownloadBlob(ctx, s.container, objectKey(name))
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, name)
		}
		return nil, err
	}
	return data, nil
}

func (s *azureStorage) Remove(ctx context.Context, name string) error {
	err := s.client.DeleteBlob(ctx, s.container, objectKey(name))
	if err != nil && bloberror.HasCode(err, bloberror.BlobNotFound) {
		return ErrObjectNotFound
	}
	return err
}
