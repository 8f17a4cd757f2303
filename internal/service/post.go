package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/msomdec/murmur/internal/domain"
	"github.com/msomdec/murmur/internal/metrics"
	"go.opentelemetry.io/otel/attribute"
)

// PostsPerPage is the size of one page of an author's posts.
const PostsPerPage = 10

// PostService manages posts, their media and their likes.
type PostService struct {
	posts  domain.PostRepository
	files  domain.FileStore
	images *ImageProcessor
	events domain.EventPublisher
}

// NewPostService creates a new PostService.
func NewPostService(posts domain.PostRepository, files domain.FileStore, images *ImageProcessor, events domain.EventPublisher) *PostService {
	return &PostService{posts: posts, files: files, images: images, events: events}
}

// Create stores a new post by authorID. Media are normalized by the image
// pipeline and saved to the file store before the post itself; they are
// removed again if the post cannot be stored.
func (s *PostService) Create(ctx context.Context, authorID, content, parentID string, media [][]byte) (*domain.Post, error) {
	in := PostInput{
		Content:  strings.TrimSpace(content),
		ParentID: strings.TrimSpace(parentID),
		Media:    media,
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	if in.ParentID != "" {
		exists, err := s.posts.Exists(ctx, in.ParentID)
		if err != nil {
			return nil, fmt.Errorf("check parent post: %w", err)
		}
		if !exists {
			return nil, fmt.Errorf("%w: cannot reply to a post that does not exist", domain.ErrInvalidInput)
		}
	}

	processed := make([][]byte, len(in.Media))
	for i, data := range in.Media {
		out, err := s.images.PostImage(data)
		if err != nil {
			return nil, err
		}
		processed[i] = out
	}

	var keys []string
	for _, data := range processed {
		key := "posts/" + uuid.NewString()
		if err := s.files.Save(ctx, key, data); err != nil {
			s.removeFiles(ctx, keys)
			return nil, fmt.Errorf("save media: %w", err)
		}
		keys = append(keys, key)
	}

	post := &domain.Post{
		AuthorID:  authorID,
		Content:   in.Content,
		ParentID:  in.ParentID,
		MediaKeys: keys,
	}
	if err := s.posts.Create(ctx, post); err != nil {
		s.removeFiles(ctx, keys)
		return nil, fmt.Errorf("create post: %w", err)
	}

	s.publish(ctx, domain.SubjectPostCreated, domain.PostCreatedEvent{
		PostID:    post.ID,
		AuthorID:  post.AuthorID,
		ParentID:  post.ParentID,
		Timestamp: post.CreatedAt,
	})
	return post, nil
}

// Get returns a post by ID.
func (s *PostService) Get(ctx context.Context, id string) (*domain.Post, error) {
	return s.posts.GetByID(ctx, id)
}

// ListByAuthor returns page (zero-based) of authorID's posts, newest first.
// An empty page is ErrNotFound.
func (s *PostService) ListByAuthor(ctx context.Context, authorID string, page int) ([]domain.Post, error) {
	if page < 0 {
		return nil, fmt.Errorf("%w: page has to be equal or larger than 0", domain.ErrInvalidInput)
	}

	posts, err := s.posts.ListByAuthor(ctx, authorID, PostsPerPage, page*PostsPerPage)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	if len(posts) == 0 {
		return nil, fmt.Errorf("%w: page %d is empty", domain.ErrNotFound, page)
	}
	return posts, nil
}

// Media returns the index-th media blob of a post.
func (s *PostService) Media(ctx context.Context, postID string, index int) ([]byte, error) {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(post.MediaKeys) {
		return nil, fmt.Errorf("%w: post has no media %d", domain.ErrNotFound, index)
	}
	return s.files.Get(ctx, post.MediaKeys[index])
}

// Delete removes a post and its media. Only the author or a caller with
// PermManagePosts may delete it.
func (s *PostService) Delete(ctx context.Context, caller domain.Caller, postID string) error {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if !caller.CanManagePost(post.AuthorID) {
		return domain.ErrForbidden
	}

	if err := s.posts.Delete(ctx, postID); err != nil {
		return err
	}
	s.removeFiles(ctx, post.MediaKeys)
	return nil
}

// AddLike records that userID likes postID. It returns ErrNoMatch when the
// post does not exist or the user already likes it.
func (s *PostService) AddLike(ctx context.Context, postID, userID string) (_ *domain.Post, err error) {
	ctx, span := startSpan(ctx, "PostService.AddLike",
		attribute.String("post", postID), attribute.String("user", userID))
	defer func() {
		metrics.LikeOps.WithLabelValues("like", outcome(err)).Inc()
		endSpan(span, err)
	}()

	post, err := s.posts.AddLike(ctx, postID, userID)
	if err != nil {
		return nil, err
	}
	s.publishLike(ctx, domain.SubjectPostLiked, post, userID)
	return post, nil
}

// DeleteLike removes userID's like from postID. It returns ErrNoMatch when
// the post does not exist or the user does not like it.
func (s *PostService) DeleteLike(ctx context.Context, postID, userID string) (_ *domain.Post, err error) {
	ctx, span := startSpan(ctx, "PostService.DeleteLike",
		attribute.String("post", postID), attribute.String("user", userID))
	defer func() {
		metrics.LikeOps.WithLabelValues("unlike", outcome(err)).Inc()
		endSpan(span, err)
	}()

	post, err := s.posts.DeleteLike(ctx, postID, userID)
	if err != nil {
		return nil, err
	}
	s.publishLike(ctx, domain.SubjectPostUnliked, post, userID)
	return post, nil
}

func (s *PostService) publishLike(ctx context.Context, subject string, post *domain.Post, userID string) {
	s.publish(ctx, subject, domain.LikeEvent{
		PostID:     post.ID,
		UserID:     userID,
		LikesCount: post.LikesCount,
		Timestamp:  time.Now().UTC(),
	})
}

func (s *PostService) publish(ctx context.Context, subject string, event any) {
	if err := s.events.Publish(ctx, subject, event); err != nil {
		slog.Warn("publish post event", "subject", subject, "error", err)
	}
}

// removeFiles deletes blobs best effort.
func (s *PostService) removeFiles(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := s.files.Delete(ctx, key); err != nil && !errors.Is(err, domain.ErrNotFound) {
			slog.Warn("delete media blob", "key", key, "error", err)
		}
	}
}
