package service

import (
	"context"
	"errors"

	"barbeintiaden/photo-archive/internal/domain"
	"barbeintiaden/photo-archive/internal/repository"
	"barbeintiaden/photo-archive/internal/validation"
)

// --- Service Interface ---
type CommentService interface {
	AddComment(ctx context.Context, caller *domain.User, photoID, content string) (*domain.Comment, error)
}

// --- Service Implementation ---

type commentService struct {
	store repository.MetadataStore
	gate  *validation.Gate
	cache CacheInvalidator
}

// NewCommentService creates a new instance of commentService. cache may be nil.
func NewCommentService(store repository.MetadataStore, gate *validation.Gate, cache CacheInvalidator) CommentService {
	return &commentService{store: store, gate: gate, cache: invalidatorOrNoop(cache)}
}

// AddComment posts a comment as caller. Any signed-in user may comment;
// approval is only required for uploads.
func (s *commentService) AddComment(ctx context.Context, caller *domain.User, photoID, content string) (*domain.Comment, error) {
	if caller == nil {
		return nil, ErrUnauthorized
	}

	in, err := s.gate.Comment(validation.CommentInput{PhotoID: photoID, Content: content})
	if err != nil {
		return nil, err
	}

	comment, err := s.store.Privileged().InsertComment(ctx, domain.NewComment{
		PhotoID: in.PhotoID,
		UserID:  caller.ID,
		Content: in.Content,
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPhotoNotFound
		}
		return nil, repository.Persistence("create comment", err)
	}

	s.cache.Invalidate()
	comment.Author = caller.Author()
	return comment, nil
}
