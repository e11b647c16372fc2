package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strconv"
	"sync"
	"testing"
	"time"

	"barbeintiaden/photo-archive/internal/domain"
	"barbeintiaden/photo-archive/internal/repository"
	"barbeintiaden/photo-archive/internal/repository/memory"
	"barbeintiaden/photo-archive/internal/validation"

	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

func newGate() *validation.Gate {
	return validation.NewGate(func() time.Time { return testNow })
}

// fakeBlobs records calls and can be told to fail.
type fakeBlobs struct {
	mu        sync.Mutex
	stored    map[string][]byte
	deleted   []string
	storeErr  error
	deleteErr error
	seq       int
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{stored: make(map[string][]byte)}
}

func (f *fakeBlobs) Store(ctx context.Context, data []byte, filename, ownerID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.storeErr != nil {
		return "", f.storeErr
	}
	f.seq++
	ref := "/photos/" + ownerID + "/" + strconv.Itoa(f.seq) + ".jpg"
	f.stored[ref] = data
	return ref, nil
}

func (f *fakeBlobs) Resolve(ref string) string {
	return "/api/photos/" + ref
}

func (f *fakeBlobs) Delete(ctx context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ref)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.stored, ref)
	return nil
}

func (f *fakeBlobs) storeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stored)
}

type countingCache struct {
	mu    sync.Mutex
	calls int
}

func (c *countingCache) Invalidate() {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
}

func (c *countingCache) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// failingStore wraps a memory store and makes photo inserts fail.
type failingStore struct {
	*memory.Store
	insertErr error
}

func (s *failingStore) Privileged() repository.PrivilegedClient {
	return &failingPrivileged{PrivilegedClient: s.Store.Privileged(), insertErr: s.insertErr}
}

type failingPrivileged struct {
	repository.PrivilegedClient
	insertErr error
}

func (c *failingPrivileged) InsertPhoto(ctx context.Context, in domain.NewPhoto) (*domain.Photo, error) {
	return nil, c.insertErr
}

// racingStore reports a conflict on the first user insert, as if another
// request had registered the same email first.
type racingStore struct {
	*memory.Store
}

func (s *racingStore) Privileged() repository.PrivilegedClient {
	return &racingPrivileged{PrivilegedClient: s.Store.Privileged()}
}

type racingPrivileged struct {
	repository.PrivilegedClient
}

func (c *racingPrivileged) InsertUser(ctx context.Context, in domain.NewUser) (*domain.User, error) {
	if _, err := c.PrivilegedClient.InsertUser(ctx, in); err != nil {
		return nil, err
	}
	return nil, repository.ErrConflict
}

type fixture struct {
	store    *memory.Store
	blobs    *fakeBlobs
	cache    *countingCache
	photos   PhotoService
	member   *domain.User
	pending  *domain.User
	admin    *domain.User
	comments CommentService
	admins   AdminService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	f := &fixture{
		store: store,
		blobs: newFakeBlobs(),
		cache: &countingCache{},
	}
	f.photos = NewPhotoService(store, f.blobs, newGate(), f.cache)
	f.comments = NewCommentService(store, newGate(), f.cache)
	f.admins = NewAdminService(store, newGate())

	member := store.SeedUser(domain.User{Email: "member@example.com", Name: "Member", Approved: true})
	pending := store.SeedUser(domain.User{Email: "pending@example.com", Name: "Pending"})
	admin := store.SeedUser(domain.User{Email: "admin@example.com", Name: "Admin", Approved: true, IsAdmin: true})
	f.member, f.pending, f.admin = &member, &pending, &admin
	return f
}

func jpeg(name string, data []byte) UploadFile {
	return UploadFile{
		Name:        name,
		Size:        int64(len(data)),
		ContentType: "image/jpeg",
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// unopenable fails the test if the service reads the file.
func unopenable(t *testing.T, name string, size int64, contentType string) UploadFile {
	return UploadFile{
		Name:        name,
		Size:        size,
		ContentType: contentType,
		Open: func() (io.ReadCloser, error) {
			t.Errorf("file %s opened", name)
			return nil, errors.New("must not be opened")
		},
	}
}

func mustPhoto(t *testing.T, f *fixture, year string) *domain.Photo {
	t.Helper()
	p, err := f.photos.UploadPhoto(context.Background(), f.member, UploadRequest{
		Year: year,
		File: jpeg("p.jpg", []byte("jpeg")),
	})
	require.NoError(t, err)
	return p
}
