package rules

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"faregate/internal/ratelimit/models"
)

const (
	cacheKindRateLimit     = "rateLimit"
	cacheKindAccessControl = "accessControl"
)

// Store is the in-process rule index. It is the only mutable shared state
// in the engine; a single mutex guards both rule maps. Reads hand out
// copies so an in-flight evaluation is never affected by a concurrent
// update or delete.
//
// Every mutation writes through to the external cache best-effort: a cache
// failure is logged and swallowed because the in-memory copy is
// authoritative for this process.
type Store struct {
	mu          sync.RWMutex
	rateRules   map[string]models.RateLimitRule
	accessRules map[string]models.AccessControlRule
	cache       Cache
	logger      *slog.Logger
}

// Option configures a Store instance.
type Option func(*Store)

// WithLogger sets the structured logger for write-through failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a rule store. A nil cache degrades to NoopCache.
func New(cache Cache, opts ...Option) *Store {
	if cache == nil {
		cache = NoopCache{}
	}
	s := &Store{
		rateRules:   make(map[string]models.RateLimitRule),
		accessRules: make(map[string]models.AccessControlRule),
		cache:       cache,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PutRateLimitRule inserts or replaces a rule and writes it through.
func (s *Store) PutRateLimitRule(ctx context.Context, rule *models.RateLimitRule) {
	s.mu.Lock()
	s.rateRules[rule.ID] = *rule
	s.mu.Unlock()

	s.writeThrough(ctx, models.RuleCacheKey(cacheKindRateLimit, rule.ID), rule)
}

// GetRateLimitRule returns a copy of the rule, or false if unknown.
func (s *Store) GetRateLimitRule(id string) (*models.RateLimitRule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.rateRules[id]
	if !ok {
		return nil, false
	}
	return &rule, true
}

// RemoveRateLimitRule deletes a rule and its cache entry. Returns false if
// the id is unknown.
func (s *Store) RemoveRateLimitRule(ctx context.Context, id string) bool {
	s.mu.Lock()
	_, ok := s.rateRules[id]
	delete(s.rateRules, id)
	s.mu.Unlock()
	if !ok {
		return false
	}

	s.deleteThrough(ctx, models.RuleCacheKey(cacheKindRateLimit, id))
	return true
}

// ListRateLimitRules returns rules in ascending priority order, ties broken
// by creation time then id so the ordering is stable across calls. A
// non-nil enabled filters by the flag.
func (s *Store) ListRateLimitRules(enabled *bool) []*models.RateLimitRule {
	s.mu.RLock()
	out := make([]*models.RateLimitRule, 0, len(s.rateRules))
	for _, rule := range s.rateRules {
		if enabled != nil && rule.Enabled != *enabled {
			continue
		}
		r := rule
		out = append(out, &r)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// PutAccessControlRule inserts or replaces a rule and writes it through.
func (s *Store) PutAccessControlRule(ctx context.Context, rule *models.AccessControlRule) {
	s.mu.Lock()
	s.accessRules[rule.ID] = *rule
	s.mu.Unlock()

	s.writeThrough(ctx, models.RuleCacheKey(cacheKindAccessControl, rule.ID), rule)
}

// GetAccessControlRule returns a copy of the rule, or false if unknown.
func (s *Store) GetAccessControlRule(id string) (*models.AccessControlRule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.accessRules[id]
	if !ok {
		return nil, false
	}
	return &rule, true
}

// RemoveAccessControlRule deletes a rule and its cache entry. Returns false
// if the id is unknown.
func (s *Store) RemoveAccessControlRule(ctx context.Context, id string) bool {
	s.mu.Lock()
	_, ok := s.accessRules[id]
	delete(s.accessRules, id)
	s.mu.Unlock()
	if !ok {
		return false
	}

	s.deleteThrough(ctx, models.RuleCacheKey(cacheKindAccessControl, id))
	return true
}

// ListAccessControlRules returns rules in descending creation-time order,
// ties broken by id. Expired rules are filtered lazily at call time; there
// is no background sweep.
func (s *Store) ListAccessControlRules(enabled *bool, now time.Time) []*models.AccessControlRule {
	s.mu.RLock()
	out := make([]*models.AccessControlRule, 0, len(s.accessRules))
	for _, rule := range s.accessRules {
		if enabled != nil && rule.Enabled != *enabled {
			continue
		}
		if rule.IsExpired(now) {
			continue
		}
		r := rule
		out = append(out, &r)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (s *Store) writeThrough(ctx context.Context, key string, value any) {
	if err := s.cache.Put(ctx, key, value); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "rule cache write-through failed",
			"key", key,
			"error", err,
		)
	}
}

func (s *Store) deleteThrough(ctx context.Context, key string) {
	if err := s.cache.Delete(ctx, key); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "rule cache delete failed",
			"key", key,
			"error", err,
		)
	}
}
