package memory

import (
	"context"
	"testing"

	"barbeintiaden/photo-archive/internal/domain"
	"barbeintiaden/photo-archive/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedPhoto(t *testing.T, s *Store, userID string, year int) *domain.Photo {
	t.Helper()
	p, err := s.Privileged().InsertPhoto(context.Background(), domain.NewPhoto{
		UserID:   userID,
		URL:      "/api/photos/x",
		BlobPath: "/photos/" + userID + "/x.jpg",
		Year:     year,
	})
	require.NoError(t, err)
	return p
}

func TestListPhotosOrdering(t *testing.T) {
	s := NewStore()
	u := s.SeedUser(domain.User{Email: "ada@example.com", Name: "Ada", Approved: true})

	old := seedPhoto(t, s, u.ID, 2019)
	first2023 := seedPhoto(t, s, u.ID, 2023)
	second2023 := seedPhoto(t, s, u.ID, 2023)

	photos, err := s.Scoped(u.ID).ListPhotos(context.Background())
	require.NoError(t, err)
	require.Len(t, photos, 3)
	assert.Equal(t, []string{second2023.ID, first2023.ID, old.ID}, []string{photos[0].ID, photos[1].ID, photos[2].ID})
	require.NotNil(t, photos[0].Author)
	assert.Equal(t, "Ada", photos[0].Author.Name)

	byYear, err := s.Scoped(u.ID).ListPhotosByYear(context.Background(), 2023)
	require.NoError(t, err)
	assert.Len(t, byYear, 2)

	years, err := s.Scoped(u.ID).ListYears(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{2023, 2019}, years)
}

func TestAnonymousViewerSeesNothing(t *testing.T) {
	s := NewStore()
	u := s.SeedUser(domain.User{Email: "ada@example.com", Approved: true})
	p := seedPhoto(t, s, u.ID, 2020)

	photos, err := s.Scoped("").ListPhotos(context.Background())
	require.NoError(t, err)
	assert.Empty(t, photos)

	_, err = s.Scoped("").GetPhoto(context.Background(), p.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	got, err := s.Scoped(u.ID).GetPhoto(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
}

func TestDeletePhotoCascadesComments(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	u := s.SeedUser(domain.User{Email: "ada@example.com", Approved: true})
	p := seedPhoto(t, s, u.ID, 2020)
	other := seedPhoto(t, s, u.ID, 2021)

	for _, text := range []string{"first", "second"} {
		_, err := s.Privileged().InsertComment(ctx, domain.NewComment{PhotoID: p.ID, UserID: u.ID, Content: text})
		require.NoError(t, err)
	}
	_, err := s.Privileged().InsertComment(ctx, domain.NewComment{PhotoID: other.ID, UserID: u.ID, Content: "stays"})
	require.NoError(t, err)

	comments, err := s.Scoped(u.ID).ListComments(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "first", comments[0].Content)

	require.NoError(t, s.Privileged().DeletePhoto(ctx, p.ID))

	comments, err = s.Scoped(u.ID).ListComments(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, comments)

	comments, err = s.Scoped(u.ID).ListComments(ctx, other.ID)
	require.NoError(t, err)
	assert.Len(t, comments, 1)

	assert.ErrorIs(t, s.Privileged().DeletePhoto(ctx, p.ID), repository.ErrNotFound)
}

func TestInsertCommentOnMissingPhoto(t *testing.T) {
	s := NewStore()
	_, err := s.Privileged().InsertComment(context.Background(), domain.NewComment{PhotoID: "nope", UserID: "u", Content: "hi"})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUsers(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	priv := s.Privileged()

	u, err := priv.InsertUser(ctx, domain.NewUser{Email: "Ada@Example.com", Name: "Ada"})
	require.NoError(t, err)
	assert.False(t, u.Approved)
	assert.False(t, u.IsAdmin)

	_, err = priv.InsertUser(ctx, domain.NewUser{Email: "ada@example.com"})
	assert.ErrorIs(t, err, repository.ErrConflict)

	byEmail, err := priv.GetUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	pending, err := priv.ListPendingUsers(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, priv.SetUserApproval(ctx, u.ID, true))
	pending, err = priv.ListPendingUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	assert.ErrorIs(t, priv.SetUserApproval(ctx, "missing", true), repository.ErrNotFound)
}
