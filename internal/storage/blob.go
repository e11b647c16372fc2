package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultRoot is the folder photos are filed under when none is configured.
const DefaultRoot = "/barbeintiaden/photos"

// ProxyPrefix is the route that serves blobs without a public link.
const ProxyPrefix = "/api/photos/"

var contentTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"svg":  "image/svg+xml",
}

// BlobOptions configures a BlobStore.
type BlobOptions struct {
	// Root is the folder every blob lives under.
	Root string
	// PublicBaseURL, when set, makes Resolve return direct links
	// (PublicBaseURL + reference) instead of proxy paths.
	PublicBaseURL string
	// Now is the clock used for blob names.
	Now func() time.Time
}

// BlobStore files photo bytes under <root>/<owner>/<unixMillis>.<ext> and
// translates references into addresses a browser can load.
type BlobStore struct {
	session       *Session
	root          string
	publicBaseURL string
	now           func() time.Time

	mu        sync.Mutex
	lastStamp int64
}

// NewBlobStore creates a BlobStore over session.
func NewBlobStore(session *Session, opts BlobOptions) *BlobStore {
	root := strings.TrimSpace(opts.Root)
	if root == "" {
		root = DefaultRoot
	}
	root = path.Clean("/" + root)
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &BlobStore{
		session:       session,
		root:          root,
		publicBaseURL: strings.TrimRight(opts.PublicBaseURL, "/"),
		now:           now,
	}
}

// Root returns the configured root folder.
func (s *BlobStore) Root() string {
	return s.root
}

// Store writes data for ownerID and returns the blob reference. The owner
// folder is created first if it does not exist.
func (s *BlobStore) Store(ctx context.Context, data []byte, filename, ownerID string) (string, error) {
	if ownerID == "" || strings.ContainsAny(ownerID, "/\\") || ownerID == "." || ownerID == ".." {
		return "", fmt.Errorf("%w: owner %q", ErrInvalidRef, ownerID)
	}
	backend, err := s.session.Backend(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	dir := s.root + "/" + ownerID
	if err := backend.MakeDir(ctx, dir); err != nil {
		return "", fmt.Errorf("%w: create folder %s: %v", ErrStorageUnavailable, dir, err)
	}

	ext := Extension(filename)
	ref := dir + "/" + strconv.FormatInt(s.stamp(), 10) + "." + ext
	if err := backend.Write(ctx, ref, data, ContentType(ref)); err != nil {
		return "", fmt.Errorf("%w: write %s: %v", ErrStorageUnavailable, ref, err)
	}
	return ref, nil
}

// stamp returns the current time in milliseconds, bumped past the previous
// stamp so that uploads in the same millisecond get distinct names.
func (s *BlobStore) stamp() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms := s.now().UnixMilli()
	if ms <= s.lastStamp {
		ms = s.lastStamp + 1
	}
	s.lastStamp = ms
	return ms
}

// Resolve returns the address a client loads ref from.
func (s *BlobStore) Resolve(ref string) string {
	if s.publicBaseURL != "" {
		return s.publicBaseURL + ref
	}
	return ProxyPrefix + EncodeRef(ref)
}

// Read returns the bytes stored at ref and their content type.
func (s *BlobStore) Read(ctx context.Context, ref string) ([]byte, string, error) {
	if err := s.checkRef(ref); err != nil {
		return nil, "", err
	}
	backend, err := s.session.Backend(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	data, err := backend.Read(ctx, ref)
	if err != nil {
		return nil, "", err
	}
	return data, ContentType(ref), nil
}

// Delete permanently removes ref. A blob that is already gone counts as
// deleted.
func (s *BlobStore) Delete(ctx context.Context, ref string) error {
	if err := s.checkRef(ref); err != nil {
		return err
	}
	backend, err := s.session.Backend(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if err := backend.Remove(ctx, ref); err != nil && !errors.Is(err, ErrObjectNotFound) {
		return err
	}
	return nil
}

// checkRef rejects references that escape the root folder.
func (s *BlobStore) checkRef(ref string) error {
	if ref == "" || !strings.HasPrefix(ref, "/") || path.Clean(ref) != ref {
		return fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	if !strings.HasPrefix(ref, s.root+"/") {
		return fmt.Errorf("%w: %q is outside %s", ErrInvalidRef, ref, s.root)
	}
	return nil
}

// EncodeRef turns ref into a single path segment. Each folder segment is
// path-escaped with "+" written as %2B, and the segments are joined by "+".
func EncodeRef(ref string) string {
	segments := strings.Split(ref, "/")
	for i, seg := range segments {
		segments[i] = strings.ReplaceAll(url.PathEscape(seg), "+", "%2B")
	}
	return strings.Join(segments, "+")
}

// DecodeRef reverses EncodeRef. A segment whose escapes do not decode is
// kept literally.
func DecodeRef(encoded string) string {
	segments := strings.Split(encoded, "+")
	for i, seg := range segments {
		if decoded, err := url.PathUnescape(seg); err == nil {
			segments[i] = decoded
		}
	}
	return strings.Join(segments, "/")
}

// Extension returns the lower-cased extension of filename, or "jpg" when it
// has none usable.
func Extension(filename string) string {
	i := strings.LastIndexByte(filename, '.')
	if i < 0 || i == len(filename)-1 {
		return "jpg"
	}
	ext := strings.ToLower(filename[i+1:])
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return "jpg"
		}
	}
	return ext
}

// ContentType maps the extension of name to a MIME type. Unknown extensions
// are served as JPEG.
func ContentType(name string) string {
	ext := ""
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		ext = strings.ToLower(name[i+1:])
	}
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	return "image/jpeg"
}
