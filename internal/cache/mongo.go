package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"perfkit/internal/storage"
)

const (
	mongoEntriesCollection  = "request_cache"
	mongoCountersCollection = "request_cache_counters"
)

// MongoStore keeps entries in a MongoDB collection keyed by cache key.
// A counter document hands out insertion sequence numbers.
type MongoStore struct {
	entries    *mongo.Collection
	counters   *mongo.Collection
	storage    storage.Mongo
	maxEntries int
}

type mongoEntry struct {
	Key     string `bson:"_id"`
	Seq     int64  `bson:"seq"`
	Payload string `bson:"payload"`
	// Unix nanoseconds; BSON dates only keep milliseconds.
	StoredAt int64 `bson:"stored_at_ns"`
}

// NewMongoStore creates the collection indexes if needed. The store takes
// ownership of st and closes it in Close.
func NewMongoStore(ctx context.Context, st storage.Mongo, maxEntries int) (*MongoStore, error) {
	db := st.Database()
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	entries := db.Collection(mongoEntriesCollection)
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "seq", Value: 1}}},
	}
	if _, err := entries.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, fmt.Errorf("failed to create cache indexes: %w", err)
	}

	return &MongoStore{
		entries:    entries,
		counters:   db.Collection(mongoCountersCollection),
		storage:    st,
		maxEntries: maxEntries,
	}, nil
}

// Get retrieves the entry stored under key.
func (s *MongoStore) Get(ctx context.Context, key string) (*Entry, error) {
	var doc mongoEntry
	if err := s.entries.FindOne(ctx, bson.M{"_id": key}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}
	return &Entry{Payload: Payload(doc.Payload), Timestamp: time.Unix(0, doc.StoredAt)}, nil
}

// Set upserts entry, assigning a sequence number only on insert, and
// evicts the lowest sequence numbers past capacity.
func (s *MongoStore) Set(ctx context.Context, key string, entry *Entry) (int, error) {
	seq, err := s.nextSeq(ctx)
	if err != nil {
		return 0, err
	}

	_, err = s.entries.UpdateOne(ctx,
		bson.M{"_id": key},
		bson.M{
			"$set": bson.M{
				"payload":      string(entry.Payload),
				"stored_at_ns": entry.Timestamp.UnixNano(),
			},
			"$setOnInsert": bson.M{"seq": seq},
		},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to set cache entry: %w", err)
	}

	return s.evict(ctx)
}

func (s *MongoStore) nextSeq(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": mongoEntriesCollection},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate cache sequence: %w", err)
	}
	return counter.Seq, nil
}

func (s *MongoStore) evict(ctx context.Context) (int, error) {
	total, err := s.entries.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	over := total - int64(s.maxEntries)
	if over <= 0 {
		return 0, nil
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "seq", Value: 1}}).
		SetLimit(over).
		SetProjection(bson.M{"_id": 1})
	cursor, err := s.entries.Find(ctx, bson.D{}, opts)
	if err != nil {
		return 0, fmt.Errorf("failed to find evicted entries: %w", err)
	}
	var oldest []struct {
		Key string `bson:"_id"`
	}
	if err := cursor.All(ctx, &oldest); err != nil {
		return 0, fmt.Errorf("failed to read evicted entries: %w", err)
	}

	keys := make([]string, 0, len(oldest))
	for _, d := range oldest {
		keys = append(keys, d.Key)
	}
	res, err := s.entries.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": keys}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete evicted entries: %w", err)
	}
	return int(res.DeletedCount), nil
}

// Len returns the number of stored entries.
func (s *MongoStore) Len(ctx context.Context) (int, error) {
	n, err := s.entries.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return int(n), nil
}

// Close closes the underlying storage.
func (s *MongoStore) Close() error {
	return s.storage.Close()
}
