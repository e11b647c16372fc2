package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"barbeintiaden/photo-archive/internal/domain"
	"barbeintiaden/photo-archive/internal/metrics"
	"barbeintiaden/photo-archive/internal/repository"
	"barbeintiaden/photo-archive/internal/validation"
)

// UploadFile is one file of an upload form. Open is only called once the
// request has passed validation and authorization.
type UploadFile struct {
	Name        string
	Size        int64
	ContentType string
	Open        func() (io.ReadCloser, error)
}

// UploadRequest carries the raw form fields of a single photo.
type UploadRequest struct {
	Title       string
	Description string
	Year        string
	File        UploadFile
}

// BatchFailure names a file that could not be uploaded.
type BatchFailure struct {
	FileName string `json:"fileName"`
	Error    string `json:"error"`
}

// BatchResult tallies a multi-file upload.
type BatchResult struct {
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Photos    []domain.Photo `json:"photos"`
	Failures  []BatchFailure `json:"failures,omitempty"`
}

// PhotoDetail is a photo together with its comments, oldest first.
type PhotoDetail struct {
	Photo    domain.Photo     `json:"photo"`
	Comments []domain.Comment `json:"comments"`
}

// --- Service Interface ---
type PhotoService interface {
	UploadPhoto(ctx context.Context, caller *domain.User, req UploadRequest) (*domain.Photo, error)
	// UploadPhotos uploads each file in turn with the shared form fields.
	// A failing file does not stop the others.
	UploadPhotos(ctx context.Context, caller *domain.User, title, description, year string, files []UploadFile) (BatchResult, error)
	DeletePhoto(ctx context.Context, caller *domain.User, photoID string) error

	ListPhotos(ctx context.Context, caller *domain.User, year *int) ([]domain.Photo, error)
	ListYears(ctx context.Context, caller *domain.User) ([]int, error)
	GetPhoto(ctx context.Context, caller *domain.User, photoID string) (*PhotoDetail, error)
}

// --- Service Implementation ---

type photoService struct {
	store repository.MetadataStore
	blobs BlobStore
	gate  *validation.Gate
	cache CacheInvalidator
}

// NewPhotoService creates a new instance of photoService. cache may be nil.
func NewPhotoService(store repository.MetadataStore, blobs BlobStore, gate *validation.Gate, cache CacheInvalidator) PhotoService {
	return &photoService{
		store: store,
		blobs: blobs,
		gate:  gate,
		cache: invalidatorOrNoop(cache),
	}
}

// UploadPhoto validates the form, checks the caller, stores the bytes and
// records the photo. When the row cannot be written the blob stays behind and
// is reported as orphaned; it is never rolled back.
func (s *photoService) UploadPhoto(ctx context.Context, caller *domain.User, req UploadRequest) (*domain.Photo, error) {
	photo, outcome, err := s.upload(ctx, caller, req)
	metrics.UploadsTotal.WithLabelValues(outcome).Inc()
	return photo, err
}

func (s *photoService) upload(ctx context.Context, caller *domain.User, req UploadRequest) (*domain.Photo, string, error) {
	// 1. Validate
	in, err := s.gate.PhotoUpload(validation.PhotoUploadRequest{
		Title:       req.Title,
		Description: req.Description,
		Year:        req.Year,
		FileName:    req.File.Name,
		Size:        req.File.Size,
		ContentType: req.File.ContentType,
	})
	if err != nil {
		return nil, metrics.OutcomeValidationFailed, err
	}

	// 2. Authorize
	if caller == nil {
		return nil, metrics.OutcomeUnauthorized, ErrUnauthorized
	}
	if !caller.CanUpload() {
		return nil, metrics.OutcomeNotApproved, ErrNotApproved
	}

	// 3. Read the bytes, bounded by the size limit
	data, err := readFile(req.File)
	if err != nil {
		var verr *validation.Error
		if errors.As(err, &verr) {
			return nil, metrics.OutcomeValidationFailed, err
		}
		return nil, metrics.OutcomeReadFailed, err
	}

	// 4. Store the blob
	ref, err := s.blobs.Store(ctx, data, in.FileName, caller.ID)
	if err != nil {
		if !errors.Is(err, ErrStorageUnavailable) {
			err = fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
		}
		return nil, metrics.OutcomeStorageUnavailable, err
	}

	// 5. Record the photo
	photo, err := s.store.Privileged().InsertPhoto(ctx, domain.NewPhoto{
		UserID:      caller.ID,
		URL:         s.blobs.Resolve(ref),
		BlobPath:    ref,
		Title:       in.Title,
		Description: in.Description,
		Year:        in.Year,
	})
	if err != nil {
		slog.WarnContext(ctx, "orphaned blob: photo row not created",
			"blob_path", ref, "user_id", caller.ID, "error", err)
		metrics.OrphanedBlobsTotal.Inc()
		return nil, metrics.OutcomePersistenceFailed, repository.Persistence("create photo", err)
	}

	// 6. Invalidate listings
	s.cache.Invalidate()

	photo.Author = caller.Author()
	slog.InfoContext(ctx, "photo uploaded", "photo_id", photo.ID, "user_id", caller.ID, "year", photo.Year)
	return photo, metrics.OutcomeSuccess, nil
}

func readFile(f UploadFile) ([]byte, error) {
	if f.Open == nil {
		return nil, &validation.Error{Fields: map[string]string{"file": "file is required"}}
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %s: %w", f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, validation.MaxPhotoSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload %s: %w", f.Name, err)
	}
	if len(data) > validation.MaxPhotoSize {
		return nil, &validation.Error{Fields: map[string]string{"file": "file cannot be larger than 10MB"}}
	}
	return data, nil
}

func (s *photoService) UploadPhotos(ctx context.Context, caller *domain.User, title, description, year string, files []UploadFile) (BatchResult, error) {
	res := BatchResult{Photos: []domain.Photo{}}
	if len(files) == 0 {
		return res, &validation.Error{Fields: map[string]string{"file": "at least one file is required"}}
	}

	for _, f := range files {
		photo, err := s.UploadPhoto(ctx, caller, UploadRequest{
			Title:       title,
			Description: description,
			Year:        year,
			File:        f,
		})
		if err != nil {
			// A caller who may not upload fails the same way for every file.
			if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrNotApproved) {
				return res, err
			}
			res.Failed++
			res.Failures = append(res.Failures, BatchFailure{FileName: f.Name, Error: publicMessage(err)})
			continue
		}
		res.Succeeded++
		res.Photos = append(res.Photos, *photo)
	}
	return res, nil
}

// publicMessage hides backend detail from batch reports.
func publicMessage(err error) string {
	var verr *validation.Error
	if errors.As(err, &verr) {
		return verr.Error()
	}
	if errors.Is(err, ErrStorageUnavailable) {
		return "failed to store photo"
	}
	return "failed to save photo"
}

// DeletePhoto removes a photo and its comments. A blob that cannot be deleted
// is logged and left behind; the row is removed regardless.
func (s *photoService) DeletePhoto(ctx context.Context, caller *domain.User, photoID string) error {
	// 1. Authorize
	if caller == nil {
		return ErrUnauthorized
	}
	if !caller.CanModerate() {
		return ErrForbidden
	}

	// 2. Fetch
	db := s.store.Privileged()
	photo, err := db.GetPhoto(ctx, photoID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPhotoNotFound
		}
		return err
	}

	// 3. Best-effort blob removal; rows imported without a blob have none.
	if photo.BlobPath != "" {
		if err := s.blobs.Delete(ctx, photo.BlobPath); err != nil {
			slog.WarnContext(ctx, "failed to delete photo blob, removing row anyway",
				"photo_id", photo.ID, "blob_path", photo.BlobPath, "error", err)
			metrics.BlobDeleteFailuresTotal.Inc()
		}
	}

	// 4. Delete row and comments
	if err := db.DeletePhoto(ctx, photo.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPhotoNotFound
		}
		return err
	}

	// 5. Invalidate listings
	s.cache.Invalidate()
	metrics.PhotosDeletedTotal.Inc()
	slog.InfoContext(ctx, "photo deleted", "photo_id", photo.ID, "by", caller.ID)
	return nil
}

func (s *photoService) ListPhotos(ctx context.Context, caller *domain.User, year *int) ([]domain.Photo, error) {
	db := s.store.Scoped(viewerID(caller))
	if year != nil {
		return db.ListPhotosByYear(ctx, *year)
	}
	return db.ListPhotos(ctx)
}

func (s *photoService) ListYears(ctx context.Context, caller *domain.User) ([]int, error) {
	return s.store.Scoped(viewerID(caller)).ListYears(ctx)
}

func (s *photoService) GetPhoto(ctx context.Context, caller *domain.User, photoID string) (*PhotoDetail, error) {
	db := s.store.Scoped(viewerID(caller))
	photo, err := db.GetPhoto(ctx, photoID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPhotoNotFound
		}
		return nil, err
	}
	comments, err := db.ListComments(ctx, photo.ID)
	if err != nil {
		return nil, err
	}
	return &PhotoDetail{Photo: *photo, Comments: comments}, nil
}

func viewerID(u *domain.User) string {
	if u == nil {
		return ""
	}
	return u.ID
}
