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

type userDoc struct {
	ID             string    `bson:"_id"`
	Email          string    `bson:"email"`
	Name           string    `bson:"name"`
	PasswordHash   string    `bson:"password"`
	Permissions    int       `bson:"permissions"`
	Avatar         []byte    `bson:"avatar,omitempty"`
	Followed       []string  `bson:"followed"`
	Followers      []string  `bson:"followers"`
	FollowedCount  int       `bson:"followedCount"`
	FollowersCount int       `bson:"followersCount"`
	CreatedAt      time.Time `bson:"createdAt"`
	UpdatedAt      time.Time `bson:"updatedAt"`
}

func (d *userDoc) toDomain() *domain.User {
	return &domain.User{
		ID:             d.ID,
		Email:          d.Email,
		Name:           d.Name,
		PasswordHash:   d.PasswordHash,
		Permissions:    domain.Permissions(d.Permissions),
		Followed:       orEmpty(d.Followed),
		Followers:      orEmpty(d.Followers),
		FollowedCount:  d.FollowedCount,
		FollowersCount: d.FollowersCount,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

// Avatars are only loaded by GetAvatar.
var withoutAvatar = bson.M{"avatar": 0}

// UserRepository implements domain.UserRepository using MongoDB.
type UserRepository struct {
	coll *mongo.Collection
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		user.ID = newID()
	}
	ts := now()
	doc := userDoc{
		ID:             user.ID,
		Email:          user.Email,
		Name:           user.Name,
		PasswordHash:   user.PasswordHash,
		Permissions:    int(user.Permissions),
		Followed:       orEmpty(user.Followed),
		Followers:      orEmpty(user.Followers),
		FollowedCount:  len(user.Followed),
		FollowersCount: len(user.Followers),
		CreatedAt:      ts,
		UpdatedAt:      ts,
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicateEmail
		}
		return fmt.Errorf("insert user: %w", err)
	}

	user.FollowedCount = doc.FollowedCount
	user.FollowersCount = doc.FollowersCount
	user.CreatedAt = ts
	user.UpdatedAt = ts
	return nil
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M, notFound error, op string) (*domain.User, error) {
	var doc userDoc
	err := r.coll.FindOne(ctx, filter, options.FindOne().SetProjection(withoutAvatar)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return doc.toDomain(), nil
}

// findAndUpdate applies update to the document matching filter and returns
// the post-mutation document.
func (r *UserRepository) findAndUpdate(ctx context.Context, filter, update bson.M, notFound error, op string) (*domain.User, error) {
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(withoutAvatar)

	var doc userDoc
	err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound
		}
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return doc.toDomain(), nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"_id": id}, domain.ErrNotFound, "find user by id")
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"email": email}, domain.ErrNotFound, "find user by email")
}

func (r *UserRepository) Update(ctx context.Context, id, email, name string) (*domain.User, error) {
	return r.findAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"email": email, "name": name, "updatedAt": now()}},
		domain.ErrNotFound, "update user")
}

func (r *UserRepository) SetPasswordHash(ctx context.Context, id, hash string) (*domain.User, error) {
	return r.findAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"password": hash, "updatedAt": now()}},
		domain.ErrNotFound, "set password hash")
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *UserRepository) GetAvatar(ctx context.Context, id string) ([]byte, error) {
	var doc struct {
		Avatar []byte `bson:"avatar"`
	}
	opts := options.FindOne().SetProjection(bson.M{"avatar": 1})
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find avatar: %w", err)
	}
	return doc.Avatar, nil
}

func (r *UserRepository) SetAvatar(ctx context.Context, id string, data []byte) error {
	update := bson.M{"$set": bson.M{"avatar": data, "updatedAt": now()}}
	if data == nil {
		update = bson.M{"$unset": bson.M{"avatar": ""}, "$set": bson.M{"updatedAt": now()}}
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("update avatar: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *UserRepository) FindNotFollowing(ctx context.Context, id, followedID string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"_id": id, "followed": bson.M{"$ne": followedID}}, domain.ErrNoMatch, "find not following")
}

func (r *UserRepository) FindFollowing(ctx context.Context, id, followedID string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"_id": id, "followed": followedID}, domain.ErrNoMatch, "find following")
}

func (r *UserRepository) AddFollower(ctx context.Context, id, followerID string) (*domain.User, error) {
	return r.findAndUpdate(ctx,
		bson.M{"_id": id, "followers": bson.M{"$ne": followerID}},
		bson.M{
			"$addToSet": bson.M{"followers": followerID},
			"$inc":      bson.M{"followersCount": 1},
			"$set":      bson.M{"updatedAt": now()},
		},
		domain.ErrNoMatch, "add follower")
}

func (r *UserRepository) RemoveFollower(ctx context.Context, id, followerID string) (*domain.User, error) {
	return r.findAndUpdate(ctx,
		bson.M{"_id": id, "followers": followerID},
		bson.M{
			"$pull": bson.M{"followers": followerID},
			"$inc":  bson.M{"followersCount": -1},
			"$set":  bson.M{"updatedAt": now()},
		},
		domain.ErrNoMatch, "remove follower")
}

func (r *UserRepository) AddFollowed(ctx context.Context, id, followedID string, limit int) (*domain.User, error) {
	return r.findAndUpdate(ctx,
		bson.M{
			"_id":      id,
			"followed": bson.M{"$ne": followedID},
			// The array holds fewer than limit entries.
			fmt.Sprintf("followed.%d", limit-1): bson.M{"$exists": false},
		},
		bson.M{
			"$addToSet": bson.M{"followed": followedID},
			"$inc":      bson.M{"followedCount": 1},
			"$set":      bson.M{"updatedAt": now()},
		},
		domain.ErrNoMatch, "add followed")
}

func (r *UserRepository) RemoveFollowed(ctx context.Context, id, followedID string) (*domain.User, error) {
	return r.findAndUpdate(ctx,
		bson.M{"_id": id, "followed": followedID},
		bson.M{
			"$pull": bson.M{"followed": followedID},
			"$inc":  bson.M{"followedCount": -1},
			"$set":  bson.M{"updatedAt": now()},
		},
		domain.ErrNoMatch, "remove followed")
}
