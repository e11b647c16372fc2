package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"barbeintiaden/photo-archive/internal/domain"
	"barbeintiaden/photo-archive/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var photoRowColumns = []string{"id", "user_id", "url", "blob_path", "title", "description", "year", "created_at", "name", "image"}

func strPtr(s string) *string { return &s }

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface, pgxmock.PgxPoolIface) {
	t.Helper()
	scoped, err := pgxmock.NewPool()
	require.NoError(t, err)
	service, err := pgxmock.NewPool()
	require.NoError(t, err)
	s, err := NewStore(scoped, service)
	require.NoError(t, err)
	t.Cleanup(func() {
		scoped.Close()
		service.Close()
	})
	return s, scoped, service
}

func TestNewStoreRequiresBothPools(t *testing.T) {
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer pool.Close()

	_, err = NewStore(pool, nil)
	assert.Error(t, err)
}

func TestScopedListPhotosSetsViewer(t *testing.T) {
	s, scoped, _ := newMockStore(t)
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	scoped.ExpectBegin()
	scoped.ExpectExec("set_config").WithArgs("viewer-1").WillReturnResult(pgxmock.NewResult("SELECT", 1))
	scoped.ExpectQuery("FROM photos p").WillReturnRows(
		pgxmock.NewRows(photoRowColumns).
			AddRow("p-2", "u-1", "/api/photos/a", "/photos/u-1/2.jpg", strPtr("Fest"), (*string)(nil), 2023, created, strPtr("Ada"), (*string)(nil)).
			AddRow("p-1", "u-1", "/api/photos/b", "/photos/u-1/1.jpg", (*string)(nil), (*string)(nil), 2019, created, (*string)(nil), (*string)(nil)),
	)
	scoped.ExpectCommit()

	photos, err := s.Scoped("viewer-1").ListPhotos(context.Background())
	require.NoError(t, err)
	require.Len(t, photos, 2)
	assert.Equal(t, "p-2", photos[0].ID)
	assert.Equal(t, "Fest", *photos[0].Title)
	require.NotNil(t, photos[0].Author)
	assert.Equal(t, "Ada", photos[0].Author.Name)
	assert.Nil(t, photos[1].Author)
	require.NoError(t, scoped.ExpectationsWereMet())
}

func TestScopedGetPhotoNotFound(t *testing.T) {
	s, scoped, _ := newMockStore(t)

	scoped.ExpectBegin()
	scoped.ExpectExec("set_config").WithArgs("").WillReturnResult(pgxmock.NewResult("SELECT", 1))
	scoped.ExpectQuery("WHERE p.id").WithArgs("missing").WillReturnError(pgx.ErrNoRows)
	scoped.ExpectRollback()

	_, err := s.Scoped("").GetPhoto(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	require.NoError(t, scoped.ExpectationsWereMet())
}

func TestScopedListYears(t *testing.T) {
	s, scoped, _ := newMockStore(t)

	scoped.ExpectBegin()
	scoped.ExpectExec("set_config").WithArgs("viewer-1").WillReturnResult(pgxmock.NewResult("SELECT", 1))
	scoped.ExpectQuery("SELECT DISTINCT year").WillReturnRows(pgxmock.NewRows([]string{"year"}).AddRow(2023).AddRow(2019))
	scoped.ExpectCommit()

	years, err := s.Scoped("viewer-1").ListYears(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{2023, 2019}, years)
	require.NoError(t, scoped.ExpectationsWereMet())
}

func TestScopedReadWrapsBeginFailure(t *testing.T) {
	s, scoped, _ := newMockStore(t)
	scoped.ExpectBegin().WillReturnError(errors.New("connection refused"))

	_, err := s.Scoped("viewer-1").ListPhotos(context.Background())
	var perr *repository.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "fetch photos", perr.Op)
}

func TestInsertPhotoReturnsRow(t *testing.T) {
	s, _, service := newMockStore(t)
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	in := domain.NewPhoto{
		UserID:   "u-1",
		URL:      "/api/photos/+photos+u-1+1.jpg",
		BlobPath: "/photos/u-1/1.jpg",
		Title:    strPtr("Fest"),
		Year:     2023,
	}

	service.ExpectQuery("INSERT INTO photos").
		WithArgs(in.UserID, in.URL, in.BlobPath, pgxmock.AnyArg(), pgxmock.AnyArg(), in.Year).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "url", "blob_path", "title", "description", "year", "created_at"}).
			AddRow("p-1", in.UserID, in.URL, in.BlobPath, strPtr("Fest"), (*string)(nil), 2023, created))

	photo, err := s.Privileged().InsertPhoto(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "p-1", photo.ID)
	assert.Equal(t, 2023, photo.Year)
	assert.Equal(t, created, photo.CreatedAt)
	require.NoError(t, service.ExpectationsWereMet())
}

func TestInsertPhotoFailureIsPersistenceError(t *testing.T) {
	s, _, service := newMockStore(t)
	service.ExpectQuery("INSERT INTO photos").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23514", Message: "check violation"})

	_, err := s.Privileged().InsertPhoto(context.Background(), domain.NewPhoto{UserID: "u-1", Year: 1900})
	var perr *repository.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "create photo", perr.Op)
}

func TestDeletePhoto(t *testing.T) {
	s, _, service := newMockStore(t)

	service.ExpectExec("DELETE FROM photos").WithArgs("p-1").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	service.ExpectExec("DELETE FROM photos").WithArgs("p-2").WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, s.Privileged().DeletePhoto(context.Background(), "p-1"))
	assert.ErrorIs(t, s.Privileged().DeletePhoto(context.Background(), "p-2"), repository.ErrNotFound)
	require.NoError(t, service.ExpectationsWereMet())
}

func TestInsertCommentOnMissingPhoto(t *testing.T) {
	s, _, service := newMockStore(t)
	service.ExpectQuery("INSERT INTO comments").
		WithArgs("p-404", "u-1", "hello").
		WillReturnError(&pgconn.PgError{Code: "23503"})

	_, err := s.Privileged().InsertComment(context.Background(), domain.NewComment{PhotoID: "p-404", UserID: "u-1", Content: "hello"})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestInsertUserDuplicateEmail(t *testing.T) {
	s, _, service := newMockStore(t)
	service.ExpectQuery("INSERT INTO users").
		WithArgs("ada@example.com", "Ada", "").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := s.Privileged().InsertUser(context.Background(), domain.NewUser{Email: "ada@example.com", Name: "Ada"})
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestGetPhotoMalformedID(t *testing.T) {
	s, _, service := newMockStore(t)
	service.ExpectQuery("WHERE p.id").WithArgs("not-a-uuid").WillReturnError(&pgconn.PgError{Code: "22P02"})

	_, err := s.Privileged().GetPhoto(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSetUserApproval(t *testing.T) {
	s, _, service := newMockStore(t)
	service.ExpectExec("UPDATE users SET approved").WithArgs("u-1", true).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	service.ExpectExec("UPDATE users SET approved").WithArgs("u-2", true).WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, s.Privileged().SetUserApproval(context.Background(), "u-1", true))
	assert.ErrorIs(t, s.Privileged().SetUserApproval(context.Background(), "u-2", true), repository.ErrNotFound)
	require.NoError(t, service.ExpectationsWereMet())
}

func TestListPendingUsers(t *testing.T) {
	s, _, service := newMockStore(t)
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	service.ExpectQuery("WHERE approved = false").WillReturnRows(
		pgxmock.NewRows([]string{"id", "email", "name", "image", "approved", "is_admin", "created_at"}).
			AddRow("u-3", "new@example.com", "New", "", false, false, created),
	)

	users, err := s.Privileged().ListPendingUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "new@example.com", users[0].Email)
	assert.False(t, users[0].Approved)
}
