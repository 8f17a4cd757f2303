package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/msomdec/murmur/internal/domain"
)

const userColumns = `id, email, name, password_hash, permissions, followed, followers,
	followed_count, followers_count, created_at, updated_at`

// Correlated predicates over the JSON set columns of the current users row.
const (
	followedContains  = `EXISTS (SELECT 1 FROM json_each(users.followed) WHERE json_each.value = ?)`
	followersContains = `EXISTS (SELECT 1 FROM json_each(users.followers) WHERE json_each.value = ?)`
)

// UserRepository implements domain.UserRepository using SQLite.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new SQLite-backed UserRepository.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db.SqlDB}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u                   domain.User
		followed, followers string
		created, updated    int64
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Permissions,
		&followed, &followers, &u.FollowedCount, &u.FollowersCount, &created, &updated)
	if err != nil {
		return nil, err
	}
	if u.Followed, err = decodeSet(followed); err != nil {
		return nil, err
	}
	if u.Followers, err = decodeSet(followers); err != nil {
		return nil, err
	}
	u.CreatedAt = fromUnix(created)
	u.UpdatedAt = fromUnix(updated)
	return &u, nil
}

// queryUser runs a single-row query and maps no rows to notFound.
func (r *UserRepository) queryUser(ctx context.Context, notFound error, op, query string, args ...any) (*domain.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		user.ID = newID()
	}
	followed, err := encodeSet(user.Followed)
	if err != nil {
		return err
	}
	followers, err := encodeSet(user.Followers)
	if err != nil {
		return err
	}

	ts := now()
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, password_hash, permissions, followed, followers,
		                    followed_count, followers_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.Name, user.PasswordHash, user.Permissions, followed, followers,
		len(user.Followed), len(user.Followers), toUnix(ts), toUnix(ts),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return domain.ErrDuplicateEmail
		}
		return fmt.Errorf("insert user: %w", err)
	}

	user.FollowedCount = len(user.Followed)
	user.FollowersCount = len(user.Followers)
	user.CreatedAt = ts
	user.UpdatedAt = ts
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.queryUser(ctx, domain.ErrNotFound, "query user by id",
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.queryUser(ctx, domain.ErrNotFound, "query user by email",
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

func (r *UserRepository) Update(ctx context.Context, id, email, name string) (*domain.User, error) {
	user, err := r.queryUser(ctx, domain.ErrNotFound, "update user",
		`UPDATE users SET email = ?, name = ?, updated_at = ? WHERE id = ? RETURNING `+userColumns,
		email, name, toUnix(now()), id)
	if isUniqueConstraintError(err) {
		return nil, domain.ErrDuplicateEmail
	}
	return user, err
}

func (r *UserRepository) SetPasswordHash(ctx context.Context, id, hash string) (*domain.User, error) {
	return r.queryUser(ctx, domain.ErrNotFound, "set password hash",
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ? RETURNING `+userColumns,
		hash, toUnix(now()), id)
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetAvatar returns the stored avatar, or nil when the user has none.
func (r *UserRepository) GetAvatar(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx, `SELECT avatar FROM users WHERE id = ?`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("query avatar: %w", err)
	}
	return data, nil
}

// SetAvatar replaces the avatar; nil data clears it.
func (r *UserRepository) SetAvatar(ctx context.Context, id string, data []byte) error {
	var value any
	if data != nil {
		value = data
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET avatar = ?, updated_at = ? WHERE id = ?`, value, toUnix(now()), id)
	if err != nil {
		return fmt.Errorf("update avatar: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *UserRepository) FindNotFollowing(ctx context.Context, id, followedID string) (*domain.User, error) {
	return r.queryUser(ctx, domain.ErrNoMatch, "find not following",
		`SELECT `+userColumns+` FROM users WHERE id = ? AND NOT `+followedContains, id, followedID)
}

func (r *UserRepository) FindFollowing(ctx context.Context, id, followedID string) (*domain.User, error) {
	return r.queryUser(ctx, domain.ErrNoMatch, "find following",
		`SELECT `+userColumns+` FROM users WHERE id = ? AND `+followedContains, id, followedID)
}

func (r *UserRepository) AddFollower(ctx context.Context, id, followerID string) (*domain.User, error) {
	return r.queryUser(ctx, domain.ErrNoMatch, "add follower",
		`UPDATE users
		 SET followers = json_insert(followers, '$[#]', ?),
		     followers_count = followers_count + 1,
		     updated_at = ?
		 WHERE id = ? AND NOT `+followersContains+`
		 RETURNING `+userColumns,
		followerID, toUnix(now()), id, followerID)
}

func (r *UserRepository) RemoveFollower(ctx context.Context, id, followerID string) (*domain.User, error) {
	return r.queryUser(ctx, domain.ErrNoMatch, "remove follower",
		`UPDATE users
		 SET followers = (SELECT json_group_array(value) FROM json_each(users.followers) WHERE value <> ?),
		     followers_count = followers_count - 1,
		     updated_at = ?
		 WHERE id = ? AND `+followersContains+`
		 RETURNING `+userColumns,
		followerID, toUnix(now()), id, followerID)
}

func (r *UserRepository) AddFollowed(ctx context.Context, id, followedID string, limit int) (*domain.User, error) {
	return r.queryUser(ctx, domain.ErrNoMatch, "add followed",
		`UPDATE users
		 SET followed = json_insert(followed, '$[#]', ?),
		     followed_count = followed_count + 1,
		     updated_at = ?
		 WHERE id = ? AND json_array_length(followed) < ? AND NOT `+followedContains+`
		 RETURNING `+userColumns,
		followedID, toUnix(now()), id, limit, followedID)
}

func (r *UserRepository) RemoveFollowed(ctx context.Context, id, followedID string) (*domain.User, error) {
	return r.queryUser(ctx, domain.ErrNoMatch, "remove followed",
		`UPDATE users
		 SET followed = (SELECT json_group_array(value) FROM json_each(users.followed) WHERE value <> ?),
		     followed_count = followed_count - 1,
		     updated_at = ?
		 WHERE id = ? AND `+followedContains+`
		 RETURNING `+userColumns,
		followedID, toUnix(now()), id, followedID)
}
