// Package usage keeps minute-bucketed per-endpoint request counts for the
// read-only reporting surface. It is a best-effort in-process view, not a
// durable analytics store.
package usage

import (
	"sort"
	"sync"
	"time"

	"faregate/internal/ratelimit/models"
)

// retention bounds memory: buckets older than this are swept on write.
const retention = 24 * time.Hour

type bucketKey struct {
	endpoint    string
	windowStart int64 // unix seconds, minute-aligned
}

type bucket struct {
	requests int64
	denied   int64
}

// Recorder aggregates request and denial counts per endpoint per minute.
// Thread-safe for concurrent use by HTTP middleware.
type Recorder struct {
	mu        sync.Mutex
	buckets   map[bucketKey]*bucket
	lastSweep time.Time
	now       func() time.Time
}

// Option configures a Recorder instance.
type Option func(*Recorder)

// WithClock overrides the recorder clock. Test hook.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{
		buckets: make(map[bucketKey]*bucket),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record counts one request against the endpoint's current minute bucket.
func (r *Recorder) Record(endpoint string, denied bool) {
	now := r.now()
	key := bucketKey{
		endpoint:    endpoint,
		windowStart: now.Truncate(time.Minute).Unix(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.buckets[key]
	if !ok {
		b = &bucket{}
		r.buckets[key] = b
	}
	b.requests++
	if denied {
		b.denied++
	}

	if now.Sub(r.lastSweep) > time.Minute {
		r.sweep(now)
		r.lastSweep = now
	}
}

// Query returns per-endpoint, per-minute metrics within [from, to], oldest
// first, then by endpoint. An empty endpoint matches all endpoints.
func (r *Recorder) Query(endpoint string, from, to time.Time) []models.UsageMetric {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.UsageMetric, 0)
	for key, b := range r.buckets {
		if endpoint != "" && key.endpoint != endpoint {
			continue
		}
		start := time.Unix(key.windowStart, 0)
		if start.Before(from) || start.After(to) {
			continue
		}
		out = append(out, models.UsageMetric{
			Endpoint:    key.endpoint,
			WindowStart: start.UTC(),
			Requests:    b.requests,
			Denied:      b.denied,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].WindowStart.Equal(out[j].WindowStart) {
			return out[i].WindowStart.Before(out[j].WindowStart)
		}
		return out[i].Endpoint < out[j].Endpoint
	})
	return out
}

// sweep drops buckets past retention. Caller holds the lock.
func (r *Recorder) sweep(now time.Time) {
	cutoff := now.Add(-retention).Unix()
	for key := range r.buckets {
		if key.windowStart < cutoff {
			delete(r.buckets, key)
		}
	}
}
