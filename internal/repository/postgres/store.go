// Package postgres implements repository.MetadataStore on PostgreSQL.
//
// Two connections are used. The scoped connection logs in as a role that is
// subject to row-level security; every scoped read runs in a short
// transaction that first publishes the viewer id for the policies. The
// service connection logs in as a role that bypasses row security and
// carries all writes.
package postgres

import (
	"context"
	"errors"

	"barbeintiaden/photo-archive/internal/domain"
	"barbeintiaden/photo-archive/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool used by the store. pgxmock pools
// satisfy it as well.
type DB interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// querier is what both a pool and a transaction offer.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements repository.MetadataStore.
type Store struct {
	scoped  DB
	service DB
}

// NewStore builds a Store from the scoped and the service connections.
func NewStore(scoped, service DB) (*Store, error) {
	if scoped == nil || service == nil {
		return nil, errors.New("postgres store requires scoped and service pools")
	}
	return &Store{scoped: scoped, service: service}, nil
}

func (s *Store) Scoped(viewerID string) repository.ScopedClient {
	return &scopedClient{db: s.scoped, viewerID: viewerID}
}

func (s *Store) Privileged() repository.PrivilegedClient {
	return &privilegedClient{db: s.service}
}

func (s *Store) Close(ctx context.Context) error {
	s.scoped.Close()
	if s.service != s.scoped {
		s.service.Close()
	}
	return nil
}

const photoColumns = `p.id::text, p.user_id::text, p.url, coalesce(p.blob_path, ''), p.title, p.description, p.year, p.created_at, u.name, u.image`

const selectPhotos = `
SELECT ` + photoColumns + `
FROM photos p
LEFT JOIN users u ON u.id = p.user_id
`

const userColumns = `id::text, email, name, image, approved, is_admin, created_at`

func scanPhoto(row pgx.Row) (*domain.Photo, error) {
	var p domain.Photo
	var authorName, authorImage *string
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.URL,
		&p.BlobPath,
		&p.Title,
		&p.Description,
		&p.Year,
		&p.CreatedAt,
		&authorName,
		&authorImage,
	)
	if err != nil {
		return nil, err
	}
	if authorName != nil {
		p.Author = &domain.Author{Name: *authorName}
		if authorImage != nil {
			p.Author.Image = *authorImage
		}
	}
	return &p, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Image, &u.Approved, &u.IsAdmin, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func collectPhotos(rows pgx.Rows) ([]domain.Photo, error) {
	defer rows.Close()
	photos := []domain.Photo{}
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, err
		}
		photos = append(photos, *p)
	}
	return photos, rows.Err()
}

// translate maps driver errors onto repository sentinels. A malformed uuid
// can never match a row, so it reads as not found.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "22P02": // invalid_text_representation
			return repository.ErrNotFound
		case "23503": // foreign_key_violation
			return repository.ErrNotFound
		case "23505": // unique_violation
			return repository.ErrConflict
		}
	}
	return repository.Persistence(op, err)
}

// --- scoped client ---

type scopedClient struct {
	db       DB
	viewerID string
}

// read runs fn in a transaction where the row policies see c.viewerID.
func (c *scopedClient) read(ctx context.Context, op string, fn func(q querier) error) error {
	tx, err := c.db.Begin(ctx)
	if err != nil {
		return repository.Persistence(op, err)
	}
	defer tx.Rollback(ctx) // no-op once committed

	if _, err := tx.Exec(ctx, `SELECT set_config('`+viewerSetting+`', $1, true)`, c.viewerID); err != nil {
		return repository.Persistence(op, err)
	}
	if err := fn(tx); err != nil {
		return translate(op, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return repository.Persistence(op, err)
	}
	return nil
}

func (c *scopedClient) GetPhoto(ctx context.Context, id string) (*domain.Photo, error) {
	var photo *domain.Photo
	err := c.read(ctx, "fetch photo", func(q querier) error {
		var err error
		photo, err = scanPhoto(q.QueryRow(ctx, selectPhotos+`WHERE p.id = $1`, id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return photo, nil
}

func (c *scopedClient) ListPhotos(ctx context.Context) ([]domain.Photo, error) {
	var photos []domain.Photo
	err := c.read(ctx, "fetch photos", func(q querier) error {
		rows, err := q.Query(ctx, selectPhotos+`ORDER BY p.year DESC, p.created_at DESC`)
		if err != nil {
			return err
		}
		photos, err = collectPhotos(rows)
		return err
	})
	return photos, err
}

func (c *scopedClient) ListPhotosByYear(ctx context.Context, year int) ([]domain.Photo, error) {
	var photos []domain.Photo
	err := c.read(ctx, "fetch photos", func(q querier) error {
		rows, err := q.Query(ctx, selectPhotos+`WHERE p.year = $1 ORDER BY p.created_at DESC`, year)
		if err != nil {
			return err
		}
		photos, err = collectPhotos(rows)
		return err
	})
	return photos, err
}

func (c *scopedClient) ListYears(ctx context.Context) ([]int, error) {
	years := []int{}
	err := c.read(ctx, "fetch years", func(q querier) error {
		rows, err := q.Query(ctx, `SELECT DISTINCT year FROM photos ORDER BY year DESC`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var y int
			if err := rows.Scan(&y); err != nil {
				return err
			}
			years = append(years, y)
		}
		return rows.Err()
	})
	return years, err
}

func (c *scopedClient) ListComments(ctx context.Context, photoID string) ([]domain.Comment, error) {
	comments := []domain.Comment{}
	err := c.read(ctx, "fetch comments", func(q querier) error {
		rows, err := q.Query(ctx, `
SELECT c.id::text, c.photo_id::text, c.user_id::text, c.content, c.created_at, u.name, u.image
FROM comments c
LEFT JOIN users u ON u.id = c.user_id
WHERE c.photo_id = $1
ORDER BY c.created_at ASC
`, photoID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var cm domain.Comment
			var authorName, authorImage *string
			if err := rows.Scan(&cm.ID, &cm.PhotoID, &cm.UserID, &cm.Content, &cm.CreatedAt, &authorName, &authorImage); err != nil {
				return err
			}
			if authorName != nil {
				cm.Author = &domain.Author{Name: *authorName}
				if authorImage != nil {
					cm.Author.Image = *authorImage
				}
			}
			comments = append(comments, cm)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return comments, nil
}

// --- privileged client ---

type privilegedClient struct {
	db DB
}

func (c *privilegedClient) InsertPhoto(ctx context.Context, in domain.NewPhoto) (*domain.Photo, error) {
	query := `
INSERT INTO photos (user_id, url, blob_path, title, description, year)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id::text, user_id::text, url, coalesce(blob_path, ''), title, description, year, created_at
`
	var p domain.Photo
	err := c.db.QueryRow(ctx, query,
		in.UserID,
		in.URL,
		in.BlobPath,
		in.Title,
		in.Description,
		in.Year,
	).Scan(
		&p.ID,
		&p.UserID,
		&p.URL,
		&p.BlobPath,
		&p.Title,
		&p.Description,
		&p.Year,
		&p.CreatedAt,
	)
	if err != nil {
		// A missing owner row is a rejected write here, not an absent photo.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, repository.Persistence("create photo", err)
		}
		return nil, translate("create photo", err)
	}
	return &p, nil
}

func (c *privilegedClient) GetPhoto(ctx context.Context, id string) (*domain.Photo, error) {
	p, err := scanPhoto(c.db.QueryRow(ctx, selectPhotos+`WHERE p.id = $1`, id))
	if err != nil {
		return nil, translate("fetch photo", err)
	}
	return p, nil
}

// DeletePhoto relies on the ON DELETE CASCADE rule of comments.photo_id, so
// the photo and its comments go in one statement.
func (c *privilegedClient) DeletePhoto(ctx context.Context, id string) error {
	tag, err := c.db.Exec(ctx, `DELETE FROM photos WHERE id = $1`, id)
	if err != nil {
		return translate("delete photo", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (c *privilegedClient) InsertComment(ctx context.Context, in domain.NewComment) (*domain.Comment, error) {
	query := `
INSERT INTO comments (photo_id, user_id, content)
VALUES ($1, $2, $3)
RETURNING id::text, photo_id::text, user_id::text, content, created_at
`
	var cm domain.Comment
	err := c.db.QueryRow(ctx, query, in.PhotoID, in.UserID, in.Content).Scan(
		&cm.ID,
		&cm.PhotoID,
		&cm.UserID,
		&cm.Content,
		&cm.CreatedAt,
	)
	if err != nil {
		return nil, translate("create comment", err)
	}
	return &cm, nil
}

func (c *privilegedClient) InsertUser(ctx context.Context, in domain.NewUser) (*domain.User, error) {
	query := `
INSERT INTO users (email, name, image, approved, is_admin)
VALUES ($1, $2, $3, false, false)
RETURNING ` + userColumns
	u, err := scanUser(c.db.QueryRow(ctx, query, in.Email, in.Name, in.Image))
	if err != nil {
		return nil, translate("create user", err)
	}
	return u, nil
}

func (c *privilegedClient) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	u, err := scanUser(c.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		return nil, translate("fetch user", err)
	}
	return u, nil
}

func (c *privilegedClient) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	u, err := scanUser(c.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, translate("fetch user", err)
	}
	return u, nil
}

func (c *privilegedClient) ListPendingUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := c.db.Query(ctx, `SELECT `+userColumns+` FROM users WHERE approved = false ORDER BY created_at DESC`)
	if err != nil {
		return nil, translate("fetch pending users", err)
	}
	defer rows.Close()
	users := []domain.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, translate("fetch pending users", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("fetch pending users", err)
	}
	return users, nil
}

func (c *privilegedClient) SetUserApproval(ctx context.Context, id string, approved bool) error {
	tag, err := c.db.Exec(ctx, `UPDATE users SET approved = $2 WHERE id = $1`, id, approved)
	if err != nil {
		return translate("update user approval", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
