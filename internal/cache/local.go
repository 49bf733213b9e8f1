package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const snapshotVersion = 1

// LocalStore implements Store in process memory.
// This is suitable for single-instance deployments. When a snapshot path is
// set, entries are loaded from it on open and written back on Close.
type LocalStore struct {
	mu         sync.RWMutex
	maxEntries int
	entries    map[string]*Entry
	order      []string // insertion order, oldest first
	filePath   string
}

type snapshot struct {
	Version int             `json:"version"`
	Entries []snapshotEntry `json:"entries"`
}

type snapshotEntry struct {
	Key string `json:"key"`
	Entry
}

// NewLocalStore creates an in-memory store holding at most maxEntries.
// A non-positive maxEntries uses DefaultMaxEntries.
func NewLocalStore(maxEntries int) *LocalStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &LocalStore{
		maxEntries: maxEntries,
		entries:    make(map[string]*Entry),
	}
}

// OpenLocalStore creates an in-memory store backed by a snapshot file.
// A missing file is not an error; an empty filePath disables snapshots.
func OpenLocalStore(maxEntries int, filePath string) (*LocalStore, error) {
	s := NewLocalStore(maxEntries)
	s.filePath = filePath
	if filePath == "" {
		return s, nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil // No snapshot yet, not an error
		}
		return nil, fmt.Errorf("failed to read cache snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse cache snapshot: %w", err)
	}
	for i := range snap.Entries {
		e := snap.Entries[i].Entry
		s.put(snap.Entries[i].Key, &e)
	}
	return s, nil
}

// Get retrieves the entry stored under key.
func (s *LocalStore) Get(_ context.Context, key string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

// Set stores entry under key and evicts past capacity.
func (s *LocalStore) Set(_ context.Context, key string, entry *Entry) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *entry
	return s.put(key, &cp), nil
}

func (s *LocalStore) put(key string, e *Entry) int {
	if _, exists := s.entries[key]; !exists {
		s.order = append(s.order, key)
	}
	s.entries[key] = e

	evicted := 0
	for len(s.order) > s.maxEntries {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.entries, oldest)
		evicted++
	}
	return evicted
}

// Len returns the number of stored entries.
func (s *LocalStore) Len(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order), nil
}

// Keys returns the stored keys, oldest first.
func (s *LocalStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Close writes the snapshot file, if one is configured.
func (s *LocalStore) Close() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.filePath == "" {
		return nil
	}

	snap := snapshot{Version: snapshotVersion, Entries: make([]snapshotEntry, 0, len(s.order))}
	for _, key := range s.order {
		snap.Entries = append(snap.Entries, snapshotEntry{Key: key, Entry: *s.entries[key]})
	}

	// Ensure directory exists
	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache snapshot: %w", err)
	}

	// Write atomically using temp file + rename
	tmpFile := s.filePath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write cache snapshot: %w", err)
	}
	if err := os.Rename(tmpFile, s.filePath); err != nil {
		os.Remove(tmpFile) // Clean up temp file
		return fmt.Errorf("failed to rename cache snapshot: %w", err)
	}

	return nil
}
