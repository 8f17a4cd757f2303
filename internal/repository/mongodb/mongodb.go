// Package mongodb implements the domain repositories on MongoDB. Every
// follow-edge and like mutation is a single FindOneAndUpdate, so the match
// and the mutation are atomic per document.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/msomdec/murmur/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	usersCollection = "users"
	postsCollection = "posts"
	blobsCollection = "blobs"
)

// DB is a MongoDB-backed document store.
type DB struct {
	client *mongo.Client
	db     *mongo.Database

	users *UserRepository
	posts *PostRepository
	files *fileStore
}

// New connects to uri and selects the named database.
func New(ctx context.Context, uri, database string) (*DB, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	db := client.Database(database)
	return &DB{
		client: client,
		db:     db,
		users:  &UserRepository{coll: db.Collection(usersCollection)},
		posts:  &PostRepository{coll: db.Collection(postsCollection)},
		files:  &fileStore{coll: db.Collection(blobsCollection)},
	}, nil
}

// Migrate creates the indexes the repositories rely on. Creating an
// existing index is a no-op, so Migrate is idempotent.
func (d *DB) Migrate(ctx context.Context) error {
	_, err := d.db.Collection(usersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create users email index: %w", err)
	}

	_, err = d.db.Collection(postsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "author", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create posts author index: %w", err)
	}
	return nil
}

func (d *DB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return d.client.Disconnect(ctx)
}

// Drop removes the whole database. Used by tests.
func (d *DB) Drop(ctx context.Context) error {
	return d.db.Drop(ctx)
}

func (d *DB) Users() domain.UserRepository { return d.users }

func (d *DB) Posts() domain.PostRepository { return d.posts }

func (d *DB) FileStore() domain.FileStore { return d.files }

func newID() string {
	return uuid.NewString()
}

func now() time.Time {
	// BSON dates carry millisecond precision.
	return time.Now().UTC().Truncate(time.Millisecond)
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
