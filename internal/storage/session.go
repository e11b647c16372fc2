package storage

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Connector opens an authenticated backend client.
type Connector func(ctx context.Context) (Backend, error)

// Session holds the process-wide backend client. The client is opened on
// first use; concurrent first callers share a single attempt. A failed
// attempt is not remembered, so the next call tries again.
type Session struct {
	connect Connector
	group   singleflight.Group

	mu      sync.RWMutex
	backend Backend
}

// NewSession returns a Session that opens its backend with connect.
func NewSession(connect Connector) *Session {
	return &Session{connect: connect}
}

// NewReadySession returns a Session around an already open backend.
func NewReadySession(b Backend) *Session {
	return &Session{backend: b}
}

// Backend returns the open backend, connecting if needed.
func (s *Session) Backend(ctx context.Context) (Backend, error) {
	s.mu.RLock()
	b := s.backend
	s.mu.RUnlock()
	if b != nil {
		return b, nil
	}

	v, err, shared := s.group.Do("session", func() (interface{}, error) {
		s.mu.RLock()
		existing := s.backend
		s.mu.RUnlock()
		if existing != nil {
			return existing, nil
		}

		// The attempt outlives a single caller's cancellation since others
		// may be waiting on it.
		b, err := s.connect(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.backend = b
		s.mu.Unlock()
		slog.Info("storage session established")
		return b, nil
	})
	if err != nil {
		slog.Warn("storage session failed", "error", err, "shared", shared)
		return nil, err
	}
	return v.(Backend), nil
}
