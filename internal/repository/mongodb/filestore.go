package mongodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/msomdec/murmur/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// fileStore implements domain.FileStore as one document per blob.
type fileStore struct {
	coll *mongo.Collection
}

type blobDoc struct {
	Key  string `bson:"_id"`
	Data []byte `bson:"data"`
}

func (s *fileStore) Save(ctx context.Context, key string, data []byte) error {
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": key}, blobDoc{Key: key, Data: data},
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save blob: %w", err)
	}
	return nil
}

func (s *fileStore) Get(ctx context.Context, key string) ([]byte, error) {
	var doc blobDoc
	if err := s.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get blob: %w", err)
	}
	return doc.Data, nil
}

func (s *fileStore) Delete(ctx context.Context, key string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}
