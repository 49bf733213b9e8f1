// Package cache provides a memoizing fetch layer for JSON HTTP resources.
// Responses are stored per (url, options) pair and served from the cache
// while younger than the TTL. Stores are bounded: once the entry count
// exceeds the cap, the oldest-inserted entries are evicted first (FIFO, not
// LRU), whether or not they are still fresh.
package cache

import (
	"context"
	"time"
)

const (
	// DefaultTTL is how long an entry is served without refetching.
	DefaultTTL = 5 * time.Minute

	// DefaultMaxEntries is the default store capacity.
	DefaultMaxEntries = 50
)

// Entry is a cached response payload and the time it was stored.
type Entry struct {
	Payload   Payload   `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Fresh reports whether the entry is still within ttl at now.
func (e *Entry) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.Timestamp) < ttl
}

// Store defines the interface for cache entry storage.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get retrieves the entry stored under key.
	// Returns nil, nil if there is no entry.
	Get(ctx context.Context, key string) (*Entry, error)

	// Set stores entry under key, overwriting any previous value without
	// changing the key's insertion position, then evicts the oldest entries
	// past capacity. It returns the number of evicted entries.
	Set(ctx context.Context, key string, entry *Entry) (int, error)

	// Len returns the number of stored entries.
	Len(ctx context.Context) (int, error)

	// Close releases any resources held by the store.
	Close() error
}
