// Package memory implements repository.MetadataStore in process memory. It is
// used by tests and by the "memory" database engine for local development.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"barbeintiaden/photo-archive/internal/domain"
	"barbeintiaden/photo-archive/internal/repository"

	"github.com/google/uuid"
)

// Store keeps photos, comments and users in maps guarded by one lock.
type Store struct {
	mu       sync.RWMutex
	photos   map[string]domain.Photo
	comments map[string]domain.Comment
	users    map[string]domain.User
	now      func() time.Time
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		photos:   make(map[string]domain.Photo),
		comments: make(map[string]domain.Comment),
		users:    make(map[string]domain.User),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Scoped returns a read client for viewerID. Any signed-in viewer sees every
// photo and comment; an anonymous viewer sees none, matching the row policy of
// the SQL engine.
func (s *Store) Scoped(viewerID string) repository.ScopedClient {
	return &scopedClient{store: s, viewerID: viewerID}
}

// Privileged returns a client without row filtering.
func (s *Store) Privileged() repository.PrivilegedClient {
	return &privilegedClient{store: s}
}

func (s *Store) Close(ctx context.Context) error {
	return nil
}

// SeedUser stores u as-is, generating an ID when it is empty.
func (s *Store) SeedUser(u domain.User) domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.tick()
	}
	s.users[u.ID] = u
	return u
}

// tick returns a creation timestamp strictly after any previous one so that
// ordering by created_at is deterministic. Caller holds mu.
func (s *Store) tick() time.Time {
	t := s.now()
	for _, p := range s.photos {
		if !t.After(p.CreatedAt) {
			t = p.CreatedAt.Add(time.Microsecond)
		}
	}
	for _, c := range s.comments {
		if !t.After(c.CreatedAt) {
			t = c.CreatedAt.Add(time.Microsecond)
		}
	}
	for _, u := range s.users {
		if !t.After(u.CreatedAt) {
			t = u.CreatedAt.Add(time.Microsecond)
		}
	}
	return t
}

func (s *Store) withAuthor(p domain.Photo) domain.Photo {
	if u, ok := s.users[p.UserID]; ok {
		p.Author = u.Author()
	}
	return p
}

func (s *Store) getPhoto(id string) (*domain.Photo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.photos[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	p = s.withAuthor(p)
	return &p, nil
}

func (s *Store) listPhotos(filter func(domain.Photo) bool) []domain.Photo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Photo, 0, len(s.photos))
	for _, p := range s.photos {
		if filter(p) {
			out = append(out, s.withAuthor(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year > out[j].Year
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *Store) getUser(match func(domain.User) bool) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if match(u) {
			cp := u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

type scopedClient struct {
	store    *Store
	viewerID string
}

func (c *scopedClient) anonymous() bool {
	return c.viewerID == ""
}

func (c *scopedClient) GetPhoto(ctx context.Context, id string) (*domain.Photo, error) {
	if c.anonymous() {
		return nil, repository.ErrNotFound
	}
	return c.store.getPhoto(id)
}

func (c *scopedClient) ListPhotos(ctx context.Context) ([]domain.Photo, error) {
	if c.anonymous() {
		return []domain.Photo{}, nil
	}
	return c.store.listPhotos(func(domain.Photo) bool { return true }), nil
}

func (c *scopedClient) ListPhotosByYear(ctx context.Context, year int) ([]domain.Photo, error) {
	if c.anonymous() {
		return []domain.Photo{}, nil
	}
	return c.store.listPhotos(func(p domain.Photo) bool { return p.Year == year }), nil
}

func (c *scopedClient) ListYears(ctx context.Context) ([]int, error) {
	if c.anonymous() {
		return []int{}, nil
	}
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	seen := make(map[int]struct{})
	years := []int{}
	for _, p := range c.store.photos {
		if _, ok := seen[p.Year]; ok {
			continue
		}
		seen[p.Year] = struct{}{}
		years = append(years, p.Year)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))
	return years, nil
}

func (c *scopedClient) ListComments(ctx context.Context, photoID string) ([]domain.Comment, error) {
	if c.anonymous() {
		return []domain.Comment{}, nil
	}
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	out := []domain.Comment{}
	for _, cm := range c.store.comments {
		if cm.PhotoID != photoID {
			continue
		}
		if u, ok := c.store.users[cm.UserID]; ok {
			cm.Author = u.Author()
		}
		out = append(out, cm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type privilegedClient struct {
	store *Store
}

func (c *privilegedClient) InsertPhoto(ctx context.Context, in domain.NewPhoto) (*domain.Photo, error) {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()
	p := domain.Photo{
		ID:          uuid.NewString(),
		UserID:      in.UserID,
		URL:         in.URL,
		BlobPath:    in.BlobPath,
		Title:       in.Title,
		Description: in.Description,
		Year:        in.Year,
		CreatedAt:   s.tick(),
	}
	s.photos[p.ID] = p
	return &p, nil
}

func (c *privilegedClient) GetPhoto(ctx context.Context, id string) (*domain.Photo, error) {
	return c.store.getPhoto(id)
}

func (c *privilegedClient) DeletePhoto(ctx context.Context, id string) error {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.photos[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.photos, id)
	for cid, cm := range s.comments {
		if cm.PhotoID == id {
			delete(s.comments, cid)
		}
	}
	return nil
}

func (c *privilegedClient) InsertComment(ctx context.Context, in domain.NewComment) (*domain.Comment, error) {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.photos[in.PhotoID]; !ok {
		return nil, repository.ErrNotFound
	}
	cm := domain.Comment{
		ID:        uuid.NewString(),
		PhotoID:   in.PhotoID,
		UserID:    in.UserID,
		Content:   in.Content,
		CreatedAt: s.tick(),
	}
	s.comments[cm.ID] = cm
	return &cm, nil
}

func (c *privilegedClient) InsertUser(ctx context.Context, in domain.NewUser) (*domain.User, error) {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, in.Email) {
			return nil, repository.ErrConflict
		}
	}
	u := domain.User{
		ID:        uuid.NewString(),
		Email:     in.Email,
		Name:      in.Name,
		Image:     in.Image,
		CreatedAt: s.tick(),
	}
	s.users[u.ID] = u
	return &u, nil
}

func (c *privilegedClient) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return c.store.getUser(func(u domain.User) bool { return strings.EqualFold(u.Email, email) })
}

func (c *privilegedClient) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return c.store.getUser(func(u domain.User) bool { return u.ID == id })
}

func (c *privilegedClient) ListPendingUsers(ctx context.Context) ([]domain.User, error) {
	s := c.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.User{}
	for _, u := range s.users {
		if !u.Approved {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (c *privilegedClient) SetUserApproval(ctx context.Context, id string, approved bool) error {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.Approved = approved
	s.users[id] = u
	return nil
}
