// Package mongo implements repository.MetadataStore on MongoDB.
//
// MongoDB has no row security, so the signed-in rule of the scoped client is
// applied here in the store. The comment cascade of DeletePhoto runs inside a
// multi-document transaction when the deployment supports one.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"barbeintiaden/photo-archive/internal/domain"
	"barbeintiaden/photo-archive/internal/repository"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	photoCollectionName   = "photos"
	commentCollectionName = "comments"
	userCollectionName    = "users"
)

// Options tunes a Store.
type Options struct {
	// Transactions wraps the photo delete cascade in a session transaction.
	// It needs a replica set or sharded cluster.
	Transactions bool
}

// Store implements repository.MetadataStore.
type Store struct {
	client   *mongo.Client
	photos   *mongo.Collection
	comments *mongo.Collection
	users    *mongo.Collection
	opts     Options
	now      func() time.Time
}

// NewStore creates a Store over db. client is used to start sessions and is
// disconnected by Close.
func NewStore(client *mongo.Client, db *mongo.Database, opts Options) *Store {
	if !opts.Transactions {
		slog.Warn("mongo transactions disabled: a photo delete removes its comments in a separate step",
			"database", db.Name())
	}
	return &Store{
		client:   client,
		photos:   db.Collection(photoCollectionName),
		comments: db.Collection(commentCollectionName),
		users:    db.Collection(userCollectionName),
		opts:     opts,
		// BSON datetimes carry milliseconds only.
		now: func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

func (s *Store) Scoped(viewerID string) repository.ScopedClient {
	return &scopedClient{store: s, viewerID: viewerID}
}

func (s *Store) Privileged() repository.PrivilegedClient {
	return &privilegedClient{store: s}
}

func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return DisconnectDB(ctx, s.client)
}

// EnsureIndexes creates the indexes the queries and the unique email rule
// rely on. It is safe to call on every start.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if _, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	if _, err := s.photos.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "year", Value: -1}, {Key: "createdAt", Value: -1}},
	}); err != nil {
		return fmt.Errorf("create photo indexes: %w", err)
	}
	if _, err := s.comments.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "photoId", Value: 1}, {Key: "createdAt", Value: 1}},
	}); err != nil {
		return fmt.Errorf("create comment indexes: %w", err)
	}
	return nil
}

// photoDoc is a photo joined with its owner by $lookup.
type photoDoc struct {
	domain.Photo `bson:",inline"`
	Authors      []domain.Author `bson:"author"`
}

type commentDoc struct {
	domain.Comment `bson:",inline"`
	Authors        []domain.Author `bson:"author"`
}

func authorLookup() bson.D {
	return bson.D{{Key: "$lookup", Value: bson.D{
		{Key: "from", Value: userCollectionName},
		{Key: "localField", Value: "userId"},
		{Key: "foreignField", Value: "_id"},
		{Key: "as", Value: "author"},
	}}}
}

func (s *Store) findPhotos(ctx context.Context, op string, filter bson.M, sortBy bson.D, limit int64) ([]domain.Photo, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: filter}},
		{{Key: "$sort", Value: sortBy}},
	}
	if limit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: limit}})
	}
	pipeline = append(pipeline, authorLookup())

	cursor, err := s.photos.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, repository.Persistence(op, err)
	}
	var docs []photoDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, repository.Persistence(op, err)
	}

	photos := make([]domain.Photo, 0, len(docs))
	for _, d := range docs {
		p := d.Photo
		if len(d.Authors) > 0 {
			a := d.Authors[0]
			p.Author = &a
		}
		photos = append(photos, p)
	}
	return photos, nil
}

func (s *Store) getPhoto(ctx context.Context, id string) (*domain.Photo, error) {
	photos, err := s.findPhotos(ctx, "fetch photo", bson.M{"_id": id}, bson.D{{Key: "_id", Value: 1}}, 1)
	if err != nil {
		return nil, err
	}
	if len(photos) == 0 {
		return nil, repository.ErrNotFound
	}
	return &photos[0], nil
}

func (s *Store) getUser(ctx context.Context, filter bson.M) (*domain.User, error) {
	var user domain.User
	if err := s.users.FindOne(ctx, filter).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, repository.Persistence("fetch user", err)
	}
	return &user, nil
}

// --- scoped client ---

type scopedClient struct {
	store    *Store
	viewerID string
}

func (c *scopedClient) anonymous() bool {
	return c.viewerID == ""
}

func (c *scopedClient) GetPhoto(ctx context.Context, id string) (*domain.Photo, error) {
	if c.anonymous() {
		return nil, repository.ErrNotFound
	}
	return c.store.getPhoto(ctx, id)
}

func (c *scopedClient) ListPhotos(ctx context.Context) ([]domain.Photo, error) {
	if c.anonymous() {
		return []domain.Photo{}, nil
	}
	return c.store.findPhotos(ctx, "fetch photos", bson.M{},
		bson.D{{Key: "year", Value: -1}, {Key: "createdAt", Value: -1}}, 0)
}

func (c *scopedClient) ListPhotosByYear(ctx context.Context, year int) ([]domain.Photo, error) {
	if c.anonymous() {
		return []domain.Photo{}, nil
	}
	return c.store.findPhotos(ctx, "fetch photos", bson.M{"year": year},
		bson.D{{Key: "createdAt", Value: -1}}, 0)
}

func (c *scopedClient) ListYears(ctx context.Context) ([]int, error) {
	if c.anonymous() {
		return []int{}, nil
	}
	values, err := c.store.photos.Distinct(ctx, "year", bson.M{})
	if err != nil {
		return nil, repository.Persistence("fetch years", err)
	}
	years := make([]int, 0, len(values))
	for _, v := range values {
		switch y := v.(type) {
		case int32:
			years = append(years, int(y))
		case int64:
			years = append(years, int(y))
		case float64:
			years = append(years, int(y))
		default:
			return nil, repository.Persistence("fetch years", fmt.Errorf("unexpected year type %T", v))
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))
	return years, nil
}

func (c *scopedClient) ListComments(ctx context.Context, photoID string) ([]domain.Comment, error) {
	if c.anonymous() {
		return []domain.Comment{}, nil
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"photoId": photoID}}},
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: 1}}}},
		authorLookup(),
	}
	cursor, err := c.store.comments.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, repository.Persistence("fetch comments", err)
	}
	var docs []commentDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, repository.Persistence("fetch comments", err)
	}
	comments := make([]domain.Comment, 0, len(docs))
	for _, d := range docs {
		cm := d.Comment
		if len(d.Authors) > 0 {
			a := d.Authors[0]
			cm.Author = &a
		}
		comments = append(comments, cm)
	}
	return comments, nil
}

// --- privileged client ---

type privilegedClient struct {
	store *Store
}

func (c *privilegedClient) InsertPhoto(ctx context.Context, in domain.NewPhoto) (*domain.Photo, error) {
	p := domain.Photo{
		ID:          uuid.NewString(),
		UserID:      in.UserID,
		URL:         in.URL,
		BlobPath:    in.BlobPath,
		Title:       in.Title,
		Description: in.Description,
		Year:        in.Year,
		CreatedAt:   c.store.now(),
	}
	if _, err := c.store.photos.InsertOne(ctx, p); err != nil {
		return nil, repository.Persistence("create photo", err)
	}
	return &p, nil
}

func (c *privilegedClient) GetPhoto(ctx context.Context, id string) (*domain.Photo, error) {
	return c.store.getPhoto(ctx, id)
}

// DeletePhoto removes the photo document and every comment pointing at it.
func (c *privilegedClient) DeletePhoto(ctx context.Context, id string) error {
	cascade := func(ctx context.Context) error {
		res, err := c.store.photos.DeleteOne(ctx, bson.M{"_id": id})
		if err != nil {
			return err
		}
		if res.DeletedCount == 0 {
			return repository.ErrNotFound
		}
		_, err = c.store.comments.DeleteMany(ctx, bson.M{"photoId": id})
		return err
	}

	if !c.store.opts.Transactions || c.store.client == nil {
		return repository.Persistence("delete photo", cascade(ctx))
	}

	session, err := c.store.client.StartSession()
	if err != nil {
		return repository.Persistence("delete photo", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, cascade(sc)
	})
	return repository.Persistence("delete photo", err)
}

func (c *privilegedClient) InsertComment(ctx context.Context, in domain.NewComment) (*domain.Comment, error) {
	// No foreign keys here; check the photo explicitly.
	err := c.store.photos.FindOne(ctx, bson.M{"_id": in.PhotoID},
		options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, repository.Persistence("create comment", err)
	}

	cm := domain.Comment{
		ID:        uuid.NewString(),
		PhotoID:   in.PhotoID,
		UserID:    in.UserID,
		Content:   in.Content,
		CreatedAt: c.store.now(),
	}
	if _, err := c.store.comments.InsertOne(ctx, cm); err != nil {
		return nil, repository.Persistence("create comment", err)
	}
	return &cm, nil
}

func (c *privilegedClient) InsertUser(ctx context.Context, in domain.NewUser) (*domain.User, error) {
	u := domain.User{
		ID:        uuid.NewString(),
		Email:     in.Email,
		Name:      in.Name,
		Image:     in.Image,
		CreatedAt: c.store.now(),
	}
	if _, err := c.store.users.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, repository.ErrConflict
		}
		return nil, repository.Persistence("create user", err)
	}
	return &u, nil
}

func (c *privilegedClient) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return c.store.getUser(ctx, bson.M{"email": email})
}

func (c *privilegedClient) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return c.store.getUser(ctx, bson.M{"_id": id})
}

func (c *privilegedClient) ListPendingUsers(ctx context.Context) ([]domain.User, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := c.store.users.Find(ctx, bson.M{"approved": false}, findOptions)
	if err != nil {
		return nil, repository.Persistence("fetch pending users", err)
	}
	users := []domain.User{}
	if err := cursor.All(ctx, &users); err != nil {
		return nil, repository.Persistence("fetch pending users", err)
	}
	return users, nil
}

func (c *privilegedClient) SetUserApproval(ctx context.Context, id string, approved bool) error {
	res, err := c.store.users.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"approved": approved}})
	if err != nil {
		return repository.Persistence("update user approval", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}
