package audit

import (
	"context"
	"sync"
)

// InMemoryStore keeps the most recent events in a bounded ring so a
// misbehaving client cannot grow process memory without bound.
type InMemoryStore struct {
	mu       sync.RWMutex
	events   []Event
	capacity int
}

const defaultCapacity = 10000

func NewInMemoryStore(capacity int) *InMemoryStore {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &InMemoryStore{capacity: capacity}
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	if len(s.events) > s.capacity {
		// Evict oldest beyond capacity
		s.events = s.events[len(s.events)-s.capacity:]
	}
	return nil
}

// List returns up to limit events, newest first.
func (s *InMemoryStore) List(_ context.Context, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.events) {
		limit = len(s.events)
	}
	out := make([]Event, 0, limit)
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.events[i])
	}
	return out, nil
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}
