package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultRedisPrefix is the default key prefix for cache entries in Redis.
	DefaultRedisPrefix = "perfkit:requests"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379" or "redis://:password@host:6379/0")
	URL string

	// Prefix namespaces all keys (defaults to "perfkit:requests")
	Prefix string

	// TTL is the Redis expiry of each entry (defaults to DefaultTTL)
	TTL time.Duration

	// MaxEntries bounds the number of entries (defaults to DefaultMaxEntries)
	MaxEntries int
}

// RedisStore implements Store using Redis for distributed storage.
// This is suitable for multi-instance deployments behind a load balancer.
//
// Entries live under <prefix>:e:<xxhash(key)>. Insertion order is a sorted
// set scored by a monotonically increasing sequence, so FIFO eviction pops
// the lowest scores.
type RedisStore struct {
	client     *redis.Client
	prefix     string
	ttl        time.Duration
	maxEntries int
}

type redisEntry struct {
	Key string `json:"key"`
	Entry
}

// NewRedisStore connects to Redis and creates a store.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	s := NewRedisStoreWithClient(client, cfg)
	slog.Info("redis cache connected", "prefix", s.prefix, "ttl", s.ttl, "max_entries", s.maxEntries)
	return s, nil
}

// NewRedisStoreWithClient creates a store on an existing client. The store
// takes ownership of the client and closes it in Close.
func NewRedisStoreWithClient(client *redis.Client, cfg RedisConfig) *RedisStore {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &RedisStore{
		client:     client,
		prefix:     prefix,
		ttl:        ttl,
		maxEntries: maxEntries,
	}
}

func hashKey(key string) string {
	return strconv.FormatUint(xxhash.Sum64String(key), 16)
}

func (s *RedisStore) entryKey(h string) string { return s.prefix + ":e:" + h }
func (s *RedisStore) orderKey() string { return s.prefix + ":order" }
func (s *RedisStore) seqKey() string { return s.prefix + ":seq" }

// Get retrieves the entry stored under key.
func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := s.client.Get(ctx, s.entryKey(hashKey(key))).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // No entry yet, not an error
		}
		return nil, fmt.Errorf("failed to get cache entry from redis: %w", err)
	}

	var stored redisEntry
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to parse cache entry from redis: %w", err)
	}
	if stored.Key != key {
		return nil, nil // hash collision with another request
	}
	return &stored.Entry, nil
}

// Set stores entry under key and evicts past capacity.
func (s *RedisStore) Set(ctx context.Context, key string, entry *Entry) (int, error) {
	data, err := json.Marshal(redisEntry{Key: key, Entry: *entry})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	seq, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to allocate cache sequence: %w", err)
	}

	h := hashKey(key)
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.entryKey(h), data, s.ttl)
	// NX keeps the first insertion position on overwrite.
	pipe.ZAddNX(ctx, s.orderKey(), redis.Z{Score: float64(seq), Member: h})
	card := pipe.ZCard(ctx, s.orderKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to set cache entry in redis: %w", err)
	}

	over := card.Val() - int64(s.maxEntries)
	if over <= 0 {
		return 0, nil
	}

	popped, err := s.client.ZPopMin(ctx, s.orderKey(), over).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to evict cache entries: %w", err)
	}
	keys := make([]string, 0, len(popped))
	for _, z := range popped {
		keys = append(keys, s.entryKey(fmt.Sprint(z.Member)))
	}
	if len(keys) > 0 {
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			return len(keys), fmt.Errorf("failed to delete evicted entries: %w", err)
		}
	}
	return len(keys), nil
}

// Len returns the number of tracked entries, including ones Redis has
// already expired but FIFO eviction has not yet removed.
func (s *RedisStore) Len(ctx context.Context) (int, error) {
	n, err := s.client.ZCard(ctx, s.orderKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return int(n), nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
