package service

import (
	"context"
	"errors"
)

// --- Error Definitions ---
var (
	ErrUnauthorized       = errors.New("sign in required")
	ErrNotApproved        = errors.New("account is waiting for approval")
	ErrForbidden          = errors.New("admin rights required")
	ErrPhotoNotFound      = errors.New("photo not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrStorageUnavailable = errors.New("photo storage unavailable")
)

// BlobStore is the part of the object store the orchestrators need.
type BlobStore interface {
	Store(ctx context.Context, data []byte, filename, ownerID string) (string, error)
	Resolve(ref string) string
	Delete(ctx context.Context, ref string) error
}

// CacheInvalidator drops cached listing pages after a write.
type CacheInvalidator interface {
	Invalidate()
}

type noopInvalidator struct{}

func (noopInvalidator) Invalidate() {}

func invalidatorOrNoop(c CacheInvalidator) CacheInvalidator {
	if c == nil {
		return noopInvalidator{}
	}
	return c
}
