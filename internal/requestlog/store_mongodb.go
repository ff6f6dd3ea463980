package requestlog

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"modelgate/internal/storage"
)

const mongoCollection = "request_log"

// MongoDBStore persists entries to a MongoDB collection.
type MongoDBStore struct {
	coll    *mongo.Collection
	cleanup *cleanupLoop
}

// NewMongoDBStore creates the store and its indexes.
func NewMongoDBStore(st storage.Storage, retentionDays int) (*MongoDBStore, error) {
	db, ok := st.MongoDatabase().(*mongo.Database)
	if !ok || db == nil {
		return nil, fmt.Errorf("mongodb database is required")
	}

	coll := db.Collection(mongoCollection)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "timestamp", Value: 1}}},
		{Keys: bson.D{{Key: "provider", Value: 1}}},
	}
	if _, err := coll.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, fmt.Errorf("failed to create request_log indexes: %w", err)
	}

	s := &MongoDBStore{coll: coll}
	s.cleanup = startCleanup(s.prune, retentionDays)
	return s, nil
}

// WriteBatch inserts entries as documents. Unordered inserts let the batch
// continue past an individual duplicate.
func (s *MongoDBStore) WriteBatch(ctx context.Context, entries []*Entry) error {
	docs := make([]interface{}, 0, len(entries))
	for _, e := range entries {
		docs = append(docs, bson.M{
			"_id":         e.ID,
			"timestamp":   e.Timestamp.UTC(),
			"duration_ns": e.DurationNs,
			"endpoint":    e.Endpoint,
			"provider":    e.Provider,
			"model":       e.Model,
			"status_code": e.StatusCode,
			"request_id":  e.RequestID,
			"client_ip":   e.ClientIP,
			"stream":      e.Stream,
			"error_type":  e.ErrorType,
		})
	}

	opts := options.InsertMany().SetOrdered(false)
	if _, err := s.coll.InsertMany(ctx, docs, opts); err != nil {
		return fmt.Errorf("failed to insert request log batch: %w", err)
	}
	return nil
}

// Flush is a no-op; writes are committed per batch.
func (s *MongoDBStore) Flush(_ context.Context) error {
	return nil
}

// Close stops the cleanup loop. The client is owned by the storage layer.
func (s *MongoDBStore) Close() error {
	s.cleanup.stop()
	return nil
}

func (s *MongoDBStore) prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.coll.DeleteMany(ctx, bson.M{
		"timestamp": bson.M{"$lt": cutoff.UTC()},
	})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
