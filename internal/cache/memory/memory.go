// Package memory is the degraded cache mode used when Redis is unreachable.
// It keeps the same TTL and pattern-invalidation semantics, but entries live
// in a single process: nothing is shared across replicas and everything is
// lost on restart.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sync"
	"time"
)

type entry struct {
	data      []byte
	counter   int64
	isCounter bool
	expiresAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	now     func() time.Time
}

func NewStore() *Store {
	return &Store{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// NewStoreWithClock is for tests that need to step time past TTLs.
func NewStoreWithClock(now func() time.Time) *Store {
	return &Store{
		entries: make(map[string]*entry),
		now:     now,
	}
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	e := &entry{data: data}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}

	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()
	return nil
}

func (s *Store) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return false, nil
	}
	if e.expired(s.now()) {
		s.evict(key)
		return false, nil
	}
	if e.isCounter {
		data, err := json.Marshal(e.counter)
		if err != nil {
			return false, err
		}
		return true, json.Unmarshal(data, dest)
	}
	if err := json.Unmarshal(e.data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return true, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.evict(key)
	return nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return false, nil
	}
	if e.expired(s.now()) {
		s.evict(key)
		return false, nil
	}
	return true, nil
}

func (s *Store) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || !e.isCounter || e.expired(s.now()) {
		e = &entry{isCounter: true}
		if ttl > 0 {
			e.expiresAt = s.now().Add(ttl)
		}
		s.entries[key] = e
	}
	e.counter++
	return e.counter, nil
}

func (s *Store) ClearPattern(ctx context.Context, pattern string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	now := s.now()
	for key, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, key)
			continue
		}
		matched, err := path.Match(pattern, key)
		if err != nil {
			return deleted, fmt.Errorf("bad cache pattern %q: %w", pattern, err)
		}
		if matched {
			delete(s.entries, key)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) evict(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}
