package counter

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore implements Store with a mutex-guarded map. Counters expire
// lazily on access; window keys are time-scoped so stale entries are also
// dropped opportunistically during writes.
//
// For multi-process deployments, use RedisStore instead.
type InMemoryStore struct {
	mu       sync.Mutex
	counters map[string]*entry
	now      func() time.Time
}

type entry struct {
	count     int64
	expiresAt time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		counters: make(map[string]*entry),
		now:      time.Now,
	}
}

// WithClock overrides the store clock. Test hook.
func (s *InMemoryStore) WithClock(now func() time.Time) *InMemoryStore {
	s.now = now
	return s
}

func (s *InMemoryStore) Get(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.counters[key]
	if !ok {
		return 0, nil
	}
	if s.expired(e) {
		delete(s.counters, key)
		return 0, nil
	}
	return e.count, nil
}

func (s *InMemoryStore) Increment(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.increment(key), nil
}

func (s *InMemoryStore) Expire(_ context.Context, key string, ttlSeconds int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.counters[key]; ok {
		e.expiresAt = s.now().Add(time.Duration(ttlSeconds) * time.Second)
	}
	return nil
}

func (s *InMemoryStore) IncrementAndExpire(_ context.Context, key string, ttlSeconds int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := s.increment(key)
	s.counters[key].expiresAt = s.now().Add(time.Duration(ttlSeconds) * time.Second)
	return count, nil
}

// increment assumes the lock is held.
func (s *InMemoryStore) increment(key string) int64 {
	e, ok := s.counters[key]
	if !ok || s.expired(e) {
		e = &entry{}
		s.counters[key] = e
	}
	e.count++
	return e.count
}

func (s *InMemoryStore) expired(e *entry) bool {
	return !e.expiresAt.IsZero() && s.now().After(e.expiresAt)
}

// Len reports live counters. Test hook.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counters)
}
