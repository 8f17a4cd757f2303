package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/msomdec/murmur/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type postDoc struct {
	ID         string    `bson:"_id"`
	AuthorID   string    `bson:"author"`
	Content    string    `bson:"content"`
	ParentID   string    `bson:"parent,omitempty"`
	Media      []string  `bson:"media"`
	Likes      []string  `bson:"likes"`
	LikesCount int       `bson:"likesCount"`
	CreatedAt  time.Time `bson:"createdAt"`
}

func (d *postDoc) toDomain() *domain.Post {
	return &domain.Post{
		ID:         d.ID,
		AuthorID:   d.AuthorID,
		Content:    d.Content,
		ParentID:   d.ParentID,
		MediaKeys:  orEmpty(d.Media),
		Likes:      orEmpty(d.Likes),
		LikesCount: d.LikesCount,
		CreatedAt:  d.CreatedAt,
	}
}

// PostRepository implements domain.PostRepository using MongoDB.
type PostRepository struct {
	coll *mongo.Collection
}

func (r *PostRepository) Create(ctx context.Context, post *domain.Post) error {
	if post.ID == "" {
		post.ID = newID()
	}
	doc := postDoc{
		ID:        post.ID,
		AuthorID:  post.AuthorID,
		Content:   post.Content,
		ParentID:  post.ParentID,
		Media:     orEmpty(post.MediaKeys),
		Likes:     []string{},
		CreatedAt: now(),
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert post: %w", err)
	}

	post.Likes = doc.Likes
	post.LikesCount = 0
	post.CreatedAt = doc.CreatedAt
	return nil
}

func (r *PostRepository) GetByID(ctx context.Context, id string) (*domain.Post, error) {
	var doc postDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find post: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *PostRepository) Exists(ctx context.Context, id string) (bool, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count post: %w", err)
	}
	return n > 0, nil
}

func (r *PostRepository) ListByAuthor(ctx context.Context, authorID string, limit, offset int) ([]domain.Post, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit)).
		SetProjection(bson.M{"likes": 0})

	cur, err := r.coll.Find(ctx, bson.M{"author": authorID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find posts by author: %w", err)
	}
	defer cur.Close(ctx)

	var posts []domain.Post
	for cur.Next(ctx) {
		var doc postDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode post: %w", err)
		}
		posts = append(posts, *doc.toDomain())
	}
	return posts, cur.Err()
}

func (r *PostRepository) Delete(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostRepository) findAndUpdate(ctx context.Context, filter, update bson.M, op string) (*domain.Post, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc postDoc
	if err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNoMatch
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return doc.toDomain(), nil
}

func (r *PostRepository) AddLike(ctx context.Context, postID, userID string) (*domain.Post, error) {
	return r.findAndUpdate(ctx,
		bson.M{"_id": postID, "likes": bson.M{"$ne": userID}},
		bson.M{
			"$addToSet": bson.M{"likes": userID},
			"$inc":      bson.M{"likesCount": 1},
		},
		"add like")
}

func (r *PostRepository) DeleteLike(ctx context.Context, postID, userID string) (*domain.Post, error) {
	return r.findAndUpdate(ctx,
		bson.M{"_id": postID, "likes": userID},
		bson.M{
			"$pull": bson.M{"likes": userID},
			"$inc":  bson.M{"likesCount": -1},
		},
		"delete like")
}
