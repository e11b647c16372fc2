package service

import (
	"context"
	"errors"
	"log/slog"

	"barbeintiaden/photo-archive/internal/domain"
	"barbeintiaden/photo-archive/internal/repository"
	"barbeintiaden/photo-archive/internal/validation"
)

// --- Service Interface ---
type AdminService interface {
	ListPendingUsers(ctx context.Context, caller *domain.User) ([]domain.User, error)
	SetApproval(ctx context.Context, caller *domain.User, userID string, approved *bool) error
}

// --- Service Implementation ---

type adminService struct {
	store repository.MetadataStore
	gate  *validation.Gate
}

// NewAdminService creates a new instance of adminService.
func NewAdminService(store repository.MetadataStore, gate *validation.Gate) AdminService {
	return &adminService{store: store, gate: gate}
}

func requireAdmin(caller *domain.User) error {
	if caller == nil {
		return ErrUnauthorized
	}
	if !caller.CanModerate() {
		return ErrForbidden
	}
	return nil
}

// ListPendingUsers returns users still waiting for approval, newest first.
func (s *adminService) ListPendingUsers(ctx context.Context, caller *domain.User) ([]domain.User, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	return s.store.Privileged().ListPendingUsers(ctx)
}

// SetApproval approves or rejects a user. Rejecting keeps the account but
// leaves it unable to upload.
func (s *adminService) SetApproval(ctx context.Context, caller *domain.User, userID string, approved *bool) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}

	in, err := s.gate.Approval(validation.ApprovalInput{UserID: userID, Approved: approved})
	if err != nil {
		return err
	}

	if err := s.store.Privileged().SetUserApproval(ctx, in.UserID, *in.Approved); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return repository.Persistence("update user approval", err)
	}
	slog.InfoContext(ctx, "user approval changed", "user_id", in.UserID, "approved", *in.Approved, "by", caller.ID)
	return nil
}
