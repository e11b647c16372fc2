package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"barbeintiaden/photo-archive/internal/domain"
	"barbeintiaden/photo-archive/internal/repository"
)

// Identity is what the identity provider vouches for in a verified token.
type Identity struct {
	Email string
	Name  string
	Image string
}

// --- Service Interface ---
type AuthService interface {
	// Resolve maps a verified identity to its archive user, registering it
	// on first sign-in.
	Resolve(ctx context.Context, id Identity) (*domain.User, error)
	GetJWTSecret() string
}

// --- Service Implementation ---

// authService implements the AuthService interface.
type authService struct {
	store     repository.MetadataStore
	jwtSecret string
}

// NewAuthService creates a new instance of authService.
func NewAuthService(store repository.MetadataStore, jwtSecret string) AuthService {
	if jwtSecret == "" {
		panic("JWT secret cannot be empty") // Critical configuration
	}
	return &authService{store: store, jwtSecret: jwtSecret}
}

// Resolve runs with the privileged client: the caller is not yet known to
// the row policy until their user row exists.
func (s *authService) Resolve(ctx context.Context, id Identity) (*domain.User, error) {
	email := strings.TrimSpace(id.Email)
	if email == "" {
		return nil, ErrUnauthorized
	}
	db := s.store.Privileged()

	user, err := db.GetUserByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	// First sign-in: register as unapproved
	user, err = db.InsertUser(ctx, domain.NewUser{Email: email, Name: id.Name, Image: id.Image})
	if err != nil {
		// Another request registered the same email in between.
		if errors.Is(err, repository.ErrConflict) {
			return db.GetUserByEmail(ctx, email)
		}
		return nil, repository.Persistence("create user", err)
	}
	slog.InfoContext(ctx, "user registered", "user_id", user.ID, "email", user.Email)
	return user, nil
}

// GetJWTSecret returns the JWT secret for middleware authentication
func (s *authService) GetJWTSecret() string {
	return s.jwtSecret
}
