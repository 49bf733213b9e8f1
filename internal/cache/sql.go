package cache

import (
	"context"
	"fmt"
	"time"

	"perfkit/internal/storage"
)

const sqlTable = "perfkit_request_cache"

// SQLStore keeps entries in a SQLite or PostgreSQL table. Insertion order
// is the row's sequence number, which an upsert leaves untouched.
type SQLStore struct {
	db         storage.SQL
	maxEntries int
}

// NewSQLStore creates the cache table if needed. The store takes ownership
// of st and closes it in Close.
func NewSQLStore(ctx context.Context, db storage.SQL, maxEntries int) (*SQLStore, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	var ddl string
	switch db.Type() {
	case storage.TypeSQLite:
		ddl = `CREATE TABLE IF NOT EXISTS ` + sqlTable + ` (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			cache_key TEXT NOT NULL UNIQUE,
			payload TEXT NOT NULL,
			stored_at INTEGER NOT NULL
		)`
	case storage.TypePostgreSQL:
		ddl = `CREATE TABLE IF NOT EXISTS ` + sqlTable + ` (
			seq BIGSERIAL PRIMARY KEY,
			cache_key TEXT NOT NULL UNIQUE,
			payload TEXT NOT NULL,
			stored_at BIGINT NOT NULL
		)`
	default:
		return nil, fmt.Errorf("unsupported storage type for cache: %s", db.Type())
	}

	if _, err := db.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("failed to create cache table: %w", err)
	}
	return &SQLStore{db: db, maxEntries: maxEntries}, nil
}

// Get retrieves the entry stored under key.
func (s *SQLStore) Get(ctx context.Context, key string) (*Entry, error) {
	var (
		payload  string
		storedAt int64
	)
	err := s.db.QueryRow(ctx,
		`SELECT payload, stored_at FROM `+sqlTable+` WHERE cache_key = ?`, key,
	).Scan(&payload, &storedAt)
	if err != nil {
		if s.db.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}
	return &Entry{Payload: Payload(payload), Timestamp: time.Unix(0, storedAt)}, nil
}

// Set upserts entry and deletes every row older than the newest maxEntries.
func (s *SQLStore) Set(ctx context.Context, key string, entry *Entry) (int, error) {
	_, err := s.db.Exec(ctx,
		`INSERT INTO `+sqlTable+` (cache_key, payload, stored_at) VALUES (?, ?, ?)
		ON CONFLICT (cache_key) DO UPDATE SET payload = excluded.payload, stored_at = excluded.stored_at`,
		key, string(entry.Payload), entry.Timestamp.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to set cache entry: %w", err)
	}

	evicted, err := s.db.Exec(ctx,
		`DELETE FROM `+sqlTable+` WHERE seq <= (
			SELECT seq FROM `+sqlTable+` ORDER BY seq DESC LIMIT 1 OFFSET ?
		)`,
		s.maxEntries,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to evict cache entries: %w", err)
	}
	return int(evicted), nil
}

// Len returns the number of stored entries.
func (s *SQLStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM `+sqlTable).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return n, nil
}

// Close closes the underlying storage.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
