package domain

import (
	"context"
	"time"
)

// MaxFollowed caps how many users a single account may follow.
const MaxFollowed = 1001

// User represents a registered account.
type User struct {
	ID             string
	Email          string
	Name           string
	PasswordHash   string
	Permissions    Permissions
	Followed       []string
	Followers      []string
	FollowedCount  int
	FollowersCount int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Profile is the public projection of a user.
type Profile struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	FollowedCount  int    `json:"followedCount"`
	FollowersCount int    `json:"followersCount"`
}

// Profile returns the public projection of u.
func (u *User) Profile() Profile {
	return Profile{
		ID:             u.ID,
		Name:           u.Name,
		FollowedCount:  u.FollowedCount,
		FollowersCount: u.FollowersCount,
	}
}

// UserRepository defines persistence operations for users.
//
// The follow-edge methods are single-document conditional updates. Each one
// mutates the set and its stored counter together and returns the
// post-mutation document, or ErrNoMatch when the predicate did not match.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, id, email, name string) (*User, error)
	SetPasswordHash(ctx context.Context, id, hash string) (*User, error)
	Delete(ctx context.Context, id string) error

	GetAvatar(ctx context.Context, id string) ([]byte, error)
	SetAvatar(ctx context.Context, id string, data []byte) error

	// FindNotFollowing returns the user only if it does not follow followedID.
	FindNotFollowing(ctx context.Context, id, followedID string) (*User, error)
	// FindFollowing returns the user only if it follows followedID.
	FindFollowing(ctx context.Context, id, followedID string) (*User, error)

	// AddFollower adds followerID to id's followers unless already present.
	AddFollower(ctx context.Context, id, followerID string) (*User, error)
	// RemoveFollower removes followerID from id's followers if present.
	RemoveFollower(ctx context.Context, id, followerID string) (*User, error)
	// AddFollowed adds followedID to id's followed set unless already present
	// or the set already holds limit entries.
	AddFollowed(ctx context.Context, id, followedID string, limit int) (*User, error)
	// RemoveFollowed removes followedID from id's followed set if present.
	RemoveFollowed(ctx context.Context, id, followedID string) (*User, error)
}
