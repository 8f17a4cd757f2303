package domain

import (
	"context"
	"time"
)

const (
	SubjectUserFollowed   = "user.followed"
	SubjectUserUnfollowed = "user.unfollowed"
	SubjectPostCreated    = "post.created"
	SubjectPostLiked      = "post.liked"
	SubjectPostUnliked    = "post.unliked"
)

// FollowEvent is published after a follow edge is created or removed.
type FollowEvent struct {
	FollowerID string    `json:"follower_id"`
	FollowedID string    `json:"followed_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// LikeEvent is published after a like is added or removed.
type LikeEvent struct {
	PostID     string    `json:"post_id"`
	UserID     string    `json:"user_id"`
	LikesCount int       `json:"likes_count"`
	Timestamp  time.Time `json:"timestamp"`
}

// PostCreatedEvent is published after a post is stored.
type PostCreatedEvent struct {
	PostID    string    `json:"post_id"`
	AuthorID  string    `json:"author_id"`
	ParentID  string    `json:"parent_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventPublisher delivers domain events. Publishing is best effort: callers
// log failures and never roll back a committed mutation because of them.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, event any) error
}
