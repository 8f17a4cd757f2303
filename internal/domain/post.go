package domain

import (
	"context"
	"time"
)

// Post is a short text update, optionally a reply and optionally carrying
// media blobs stored in the FileStore.
type Post struct {
	ID         string
	AuthorID   string
	Content    string
	ParentID   string // Empty when the post is not a reply
	MediaKeys  []string
	Likes      []string
	LikesCount int
	CreatedAt  time.Time
}

// PostRepository defines persistence operations for posts.
type PostRepository interface {
	Create(ctx context.Context, post *Post) error
	GetByID(ctx context.Context, id string) (*Post, error)
	Exists(ctx context.Context, id string) (bool, error)
	// ListByAuthor returns a page of posts, newest first, without likes.
	ListByAuthor(ctx context.Context, authorID string, limit, offset int) ([]Post, error)
	Delete(ctx context.Context, id string) error

	// AddLike adds userID to the post's likes and increments the count in a
	// single conditional update. ErrNoMatch when the post is missing or
	// userID already likes it.
	AddLike(ctx context.Context, postID, userID string) (*Post, error)
	// DeleteLike is the inverse of AddLike. ErrNoMatch when the post is
	// missing or userID does not like it.
	DeleteLike(ctx context.Context, postID, userID string) (*Post, error)
}

// FileStore abstracts raw blob storage for post media.
type FileStore interface {
	Save(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
