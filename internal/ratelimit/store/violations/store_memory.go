// Package violations keeps a bounded in-memory record of denied attempts
// for the observability surface.
package violations

import (
	"sync"

	"faregate/internal/ratelimit/models"
)

const defaultCapacity = 10000

// InMemoryStore is a fixed-capacity ring buffer of violations. Once full,
// the oldest record is evicted for each append, so a sustained attack
// cannot grow process memory without bound.
type InMemoryStore struct {
	mu       sync.RWMutex
	records  []models.RateLimitViolation
	start    int // index of oldest record
	size     int
	capacity int
}

func NewInMemoryStore(capacity int) *InMemoryStore {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &InMemoryStore{
		records:  make([]models.RateLimitViolation, capacity),
		capacity: capacity,
	}
}

// Append records a violation, evicting the oldest when full.
func (s *InMemoryStore) Append(v models.RateLimitViolation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := (s.start + s.size) % s.capacity
	s.records[idx] = v
	if s.size < s.capacity {
		s.size++
	} else {
		s.start = (s.start + 1) % s.capacity
	}
}

// List returns up to limit violations, newest first, optionally filtered by
// rule id. limit <= 0 means no limit.
func (s *InMemoryStore) List(limit int, ruleID string) []models.RateLimitViolation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > s.size {
		limit = s.size
	}
	out := make([]models.RateLimitViolation, 0, limit)
	for i := s.size - 1; i >= 0 && len(out) < limit; i-- {
		v := s.records[(s.start+i)%s.capacity]
		if ruleID != "" && v.RuleID != ruleID {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Len reports the number of retained violations.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}
