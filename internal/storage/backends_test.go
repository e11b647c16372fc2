package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"barbeintiaden/photo-archive/internal/config"

	gcs "cloud.google.com/go/storage"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- local ---

func TestLocalStorageRoundTrip(t *testing.T) {
	dir := t.TempDir()
	b, err := NewLocalStorage(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, b.MakeDir(ctx, "/photos/u1"))
	require.NoError(t, b.MakeDir(ctx, "/photos/u1"))
	require.NoError(t, b.Write(ctx, "/photos/u1/1.jpg", []byte("img"), "image/jpeg"))

	onDisk, err := os.ReadFile(filepath.Join(dir, "photos", "u1", "1.jpg"))
	require.NoError(t, err)
	assert.Equal(t, []byte("img"), onDisk)

	data, err := b.Read(ctx, "/photos/u1/1.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("img"), data)

	require.NoError(t, b.Remove(ctx, "/photos/u1/1.jpg"))
	assert.ErrorIs(t, b.Remove(ctx, "/photos/u1/1.jpg"), ErrObjectNotFound)
	_, err = b.Read(ctx, "/photos/u1/1.jpg")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestLocalStorageWriteNeedsDirectory(t *testing.T) {
	b, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, b.Write(context.Background(), "/missing/1.jpg", []byte("x"), "image/jpeg"))
}

// --- s3 ---

type mockS3Client struct {
	objects     map[string][]byte
	contentType map[string]string
	deleteErr   error
}

func newMockS3Client() *mockS3Client {
	return &mockS3Client{objects: map[string][]byte{}, contentType: map[string]string{}}
}

func (m *mockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	m.objects[aws.ToString(params.Key)] = data
	m.contentType[aws.ToString(params.Key)] = aws.ToString(params.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := m.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("missing")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3Client) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if m.deleteErr != nil {
		return nil, m.deleteErr
	}
	delete(m.objects, aws.ToString(params.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3Client) HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, nil
}

func TestS3Storage(t *testing.T) {
	client := newMockS3Client()
	b := NewS3Storage("photos", client)
	ctx := context.Background()

	require.NoError(t, b.MakeDir(ctx, "/root/u1"))
	require.NoError(t, b.Write(ctx, "/root/u1/1.png", []byte("png"), "image/png"))
	assert.Equal(t, []byte("png"), client.objects["root/u1/1.png"])
	assert.Equal(t, "image/png", client.contentType["root/u1/1.png"])

	data, err := b.Read(ctx, "/root/u1/1.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), data)

	_, err = b.Read(ctx, "/root/u1/2.png")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	require.NoError(t, b.Remove(ctx, "/root/u1/1.png"))
	assert.Empty(t, client.objects)

	client.deleteErr = errors.New("throttled")
	assert.EqualError(t, b.Remove(ctx, "/root/u1/1.png"), "throttled")
}

// --- gcs ---

type fakeGCSWriter struct {
	buf    bytes.Buffer
	commit func([]byte)
}

func (w *fakeGCSWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }
func (w *fakeGCSWriter) Close() error {
	w.commit(w.buf.Bytes())
	return nil
}

type fakeGCSClient struct {
	objects map[string][]byte
}

func (c *fakeGCSClient) NewWriter(ctx context.Context, bucket, object, contentType string) io.WriteCloser {
	return &fakeGCSWriter{commit: func(b []byte) { c.objects[object] = append([]byte(nil), b...) }}
}

func (c *fakeGCSClient) NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	data, ok := c.objects[object]
	if !ok {
		return nil, gcs.ErrObjectNotExist
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (c *fakeGCSClient) Delete(ctx context.Context, bucket, object string) error {
	if _, ok := c.objects[object]; !ok {
		return gcs.ErrObjectNotExist
	}
	delete(c.objects, object)
	return nil
}

func TestGCSStorage(t *testing.T) {
	client := &fakeGCSClient{objects: map[string][]byte{}}
	b := NewGCSStorage("photos", client)
	ctx := context.Background()

	require.NoError(t, b.Write(ctx, "/root/u1/1.gif", []byte("gif"), "image/gif"))
	assert.Equal(t, []byte("gif"), client.objects["root/u1/1.gif"])

	data, err := b.Read(ctx, "/root/u1/1.gif")
	require.NoError(t, err)
	assert.Equal(t, []byte("gif"), data)

	require.NoError(t, b.Remove(ctx, "/root/u1/1.gif"))
	assert.ErrorIs(t, b.Remove(ctx, "/root/u1/1.gif"), ErrObjectNotFound)
	_, err = b.Read(ctx, "/root/u1/1.gif")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

// --- azure ---

type fakeAzureClient struct {
	blobs map[string][]byte
}

func blobNotFound() error {
	return &azcore.ResponseError{ErrorCode: string(bloberror.BlobNotFound), StatusCode: 404}
}

func (c *fakeAzureClient) UploadBlob(ctx context.Context, container, name string, data []byte, contentType string) error {
	c.blobs[name] = data
	return nil
}

func (c *fakeAzureClient) DownloadBlob(ctx context.Context, container, name string) ([]byte, error) {
	data, ok := c.blobs[name]
	if !ok {
		return nil, blobNotFound()
	}
	return data, nil
}

func (c *fakeAzureClient) DeleteBlob(ctx context.Context, container, name string) error {
	if _, ok := c.blobs[name]; !ok {
		return blobNotFound()
	}
	delete(c.blobs, name)
	return nil
}

func TestAzureStorage(t *testing.T) {
	client := &fakeAzureClient{blobs: map[string][]byte{}}
	b := NewAzureStorage("photos", client)
	ctx := context.Background()

	require.NoError(t, b.Write(ctx, "/root/u1/1.webp", []byte("webp"), "image/webp"))
	data, err := b.Read(ctx, "/root/u1/1.webp")
	require.NoError(t, err)
	assert.Equal(t, []byte("webp"), data)

	require.NoError(t, b.Remove(ctx, "/root/u1/1.webp"))
	assert.ErrorIs(t, b.Remove(ctx, "/root/u1/1.webp"), ErrObjectNotFound)
	_, err = b.Read(ctx, "/root/u1/1.webp")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestBlobStoreOverLocalBackend(t *testing.T) {
	b, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	s := newTestBlobStore(b, "")
	ctx := context.Background()

	ref, err := s.Store(ctx, []byte("bytes"), "a.svg", "owner")
	require.NoError(t, err)

	data, ct, err := s.Read(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("bytes"), data)
	assert.Equal(t, "image/svg+xml", ct)

	require.NoError(t, s.Delete(ctx, ref))
	require.NoError(t, s.Delete(ctx, ref))
}

func TestNewConnectorUnknownBackend(t *testing.T) {
	_, err := NewConnector(configWithBackend("ftp"))
	assert.Error(t, err)

	c, err := NewConnector(configWithBackend("local"))
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func configWithBackend(name string) config.StorageConfig {
	return config.StorageConfig{Backend: name, Local: config.LocalConfig{Dir: "./blobs"}}
}
