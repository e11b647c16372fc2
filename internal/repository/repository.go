package repository

import (
	"barbeintiaden/photo-archive/internal/domain" // Import our defined domain models
	"context"                                     // Standard for request-scoped deadlines, cancellation signals, etc.
	"errors"
	"fmt"
)

// Error constants for repository layer
var (
	ErrNotFound = RepositoryError("not found")
	ErrConflict = RepositoryError("already exists")
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// PersistenceError is returned when the backing store rejects a read or write.
// Message carries the backend's own description of the failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Persistence wraps err as a PersistenceError unless it is already one of the
// repository sentinels, which pass through untouched.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
		return err
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// MetadataStore hands out the two access levels over the same schema.
// Callers pick one explicitly at every call site; nothing is inferred.
type MetadataStore interface {
	// Scoped returns a client whose reads are filtered by the row policy for
	// viewerID. An empty viewerID means an anonymous caller.
	Scoped(viewerID string) ScopedClient

	// Privileged returns a client that bypasses row policy. It must only be
	// used after the caller has been authorized by the service layer.
	Privileged() PrivilegedClient

	// Close releases connections held by the store.
	Close(ctx context.Context) error
}

// ScopedClient defines the read paths that run with the caller's permissions.
type ScopedClient interface {
	GetPhoto(ctx context.Context, id string) (*domain.Photo, error)
	// ListPhotos orders by year desc, then created_at desc.
	ListPhotos(ctx context.Context) ([]domain.Photo, error)
	// ListPhotosByYear orders by created_at desc.
	ListPhotosByYear(ctx context.Context, year int) ([]domain.Photo, error)
	// ListYears returns the distinct photo years, newest first.
	ListYears(ctx context.Context) ([]int, error)
	// ListComments orders by created_at asc.
	ListComments(ctx context.Context, photoID string) ([]domain.Comment, error)
}

// PrivilegedClient defines writes (and the reads that support them) that
// bypass row policy.
type PrivilegedClient interface {
	InsertPhoto(ctx context.Context, photo domain.NewPhoto) (*domain.Photo, error)
	GetPhoto(ctx context.Context, id string) (*domain.Photo, error)
	// DeletePhoto removes the photo and, in the same operation, its comments.
	DeletePhoto(ctx context.Context, id string) error

	InsertComment(ctx context.Context, comment domain.NewComment) (*domain.Comment, error)

	InsertUser(ctx context.Context, user domain.NewUser) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	// ListPendingUsers returns users with approved = false, newest first.
	ListPendingUsers(ctx context.Context) ([]domain.User, error)
	SetUserApproval(ctx context.Context, id string, approved bool) error
}
