package catalog

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	models    []string
	fetchedAt time.Time
}

// MemoryStore implements Store with an in-process map. This is the default
// backend for single-instance deployments.
//
// The mutex covers only map access; callers perform network fetches outside
// of it.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates an in-memory catalog store with the given TTL.
// A non-positive TTL falls back to DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return newMemoryStore(ttl, time.Now)
}

// newMemoryStore allows tests to inject a clock.
func newMemoryStore(ttl time.Duration, now func() time.Time) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     now,
	}
}

// Get returns the provider's cached models, evicting the entry if it has
// expired.
func (s *MemoryStore) Get(_ context.Context, provider string) ([]string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[provider]
	if !ok {
		return nil, false, nil
	}
	if s.now().Sub(entry.fetchedAt) > s.ttl {
		delete(s.entries, provider)
		return nil, false, nil
	}
	return entry.models, true, nil
}

// Put overwrites the provider's entry, stamping the current time.
func (s *MemoryStore) Put(_ context.Context, provider string, models []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[provider] = memoryEntry{
		models:    models,
		fetchedAt: s.now(),
	}
	return nil
}

// Snapshot returns all live entries. Expired entries are evicted as they
// are encountered.
func (s *MemoryStore) Snapshot(_ context.Context) (map[string][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make(map[string][]string, len(s.entries))
	for provider, entry := range s.entries {
		if now.Sub(entry.fetchedAt) > s.ttl {
			delete(s.entries, provider)
			continue
		}
		out[provider] = entry.models
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
