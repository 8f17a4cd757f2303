package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/msomdec/murmur/internal/domain"
)

const postColumns = `id, author_id, content, parent_id, media, likes, likes_count, created_at`

const likesContain = `EXISTS (SELECT 1 FROM json_each(posts.likes) WHERE json_each.value = ?)`

// PostRepository implements domain.PostRepository using SQLite.
type PostRepository struct {
	db *sql.DB
}

// NewPostRepository creates a new SQLite-backed PostRepository.
func NewPostRepository(db *DB) *PostRepository {
	return &PostRepository{db: db.SqlDB}
}

func scanPost(row rowScanner) (*domain.Post, error) {
	var (
		p            domain.Post
		media, likes string
		created      int64
	)
	err := row.Scan(&p.ID, &p.AuthorID, &p.Content, &p.ParentID, &media, &likes, &p.LikesCount, &created)
	if err != nil {
		return nil, err
	}
	if p.MediaKeys, err = decodeSet(media); err != nil {
		return nil, err
	}
	if p.Likes, err = decodeSet(likes); err != nil {
		return nil, err
	}
	p.CreatedAt = fromUnix(created)
	return &p, nil
}

func (r *PostRepository) queryPost(ctx context.Context, notFound error, op, query string, args ...any) (*domain.Post, error) {
	post, err := scanPost(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return post, nil
}

func (r *PostRepository) Create(ctx context.Context, post *domain.Post) error {
	if post.ID == "" {
		post.ID = newID()
	}
	media, err := encodeSet(post.MediaKeys)
	if err != nil {
		return err
	}

	ts := now()
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO posts (id, author_id, content, parent_id, media, likes, likes_count, created_at)
		 VALUES (?, ?, ?, ?, ?, '[]', 0, ?)`,
		post.ID, post.AuthorID, post.Content, post.ParentID, media, toUnix(ts),
	)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}

	post.Likes = []string{}
	post.LikesCount = 0
	post.CreatedAt = ts
	return nil
}

func (r *PostRepository) GetByID(ctx context.Context, id string) (*domain.Post, error) {
	return r.queryPost(ctx, domain.ErrNotFound, "query post by id",
		`SELECT `+postColumns+` FROM posts WHERE id = ?`, id)
}

func (r *PostRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM posts WHERE id = ?)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check post exists: %w", err)
	}
	return exists, nil
}

func (r *PostRepository) ListByAuthor(ctx context.Context, authorID string, limit, offset int) ([]domain.Post, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, author_id, content, parent_id, media, '[]', likes_count, created_at
		 FROM posts WHERE author_id = ?
		 ORDER BY created_at DESC, id
		 LIMIT ? OFFSET ?`, authorID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list posts by author: %w", err)
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, *p)
	}
	return posts, rows.Err()
}

func (r *PostRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
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

func (r *PostRepository) AddLike(ctx context.Context, postID, userID string) (*domain.Post, error) {
	return r.queryPost(ctx, domain.ErrNoMatch, "add like",
		`UPDATE posts
		 SET likes = json_insert(likes, '$[#]', ?),
		     likes_count = likes_count + 1
		 WHERE id = ? AND NOT `+likesContain+`
		 RETURNING `+postColumns,
		userID, postID, userID)
}

func (r *PostRepository) DeleteLike(ctx context.Context, postID, userID string) (*domain.Post, error) {
	return r.queryPost(ctx, domain.ErrNoMatch, "delete like",
		`UPDATE posts
		 SET likes = (SELECT json_group_array(value) FROM json_each(posts.likes) WHERE value <> ?),
		     likes_count = likes_count - 1
		 WHERE id = ? AND `+likesContain+`
		 RETURNING `+postColumns,
		userID, postID, userID)
}
