// Package middleware wires the access control and rate limit evaluators
// into the HTTP request path.
package middleware

import (
	"context"
	"net/http"
	"strconv"

	platform "faregate/internal/platform/middleware"
	"faregate/internal/ratelimit/models"
	"faregate/pkg/platform/httputil"
)

// Limiter is the request-path slice of the limiter service.
type Limiter interface {
	CheckRateLimit(ctx context.Context, endpoint, method, key string, meta models.RequestMeta) models.RateLimitDecision
	IncrementRateLimit(ctx context.Context, endpoint, method, key string, meta models.RequestMeta, success bool)
}

// AccessChecker is the request-path slice of the access control service.
type AccessChecker interface {
	CheckAccessControl(ctx context.Context, endpoint, method string, meta models.RequestMeta) models.AccessDecision
}

// UsageRecorder counts admitted and denied requests for the reporting surface.
type UsageRecorder interface {
	Record(endpoint string, denied bool)
}

// Guard admits or rejects requests: access control runs first, then the
// rate limit check, then the handler, then the increment counted against
// the response status. Checking before the handler and incrementing after
// lets SkipSuccessfulRequests/SkipFailedRequests see the real outcome.
type Guard struct {
	limiter Limiter
	access  AccessChecker
	usage   UsageRecorder
}

// NewGuard creates the admission middleware. usage may be nil.
func NewGuard(limiter Limiter, access AccessChecker, usage UsageRecorder) *Guard {
	return &Guard{
		limiter: limiter,
		access:  access,
		usage:   usage,
	}
}

// Handler enforces access control and rate limits around next.
func (g *Guard) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		endpoint := r.URL.Path
		meta := requestMeta(ctx)

		if access := g.access.CheckAccessControl(ctx, endpoint, r.Method, meta); !access.Allowed {
			// Deny reason stays in logs and audit; the caller gets a generic body.
			g.record(endpoint, true)
			httputil.WriteJSON(w, http.StatusForbidden, models.ForbiddenResponse{
				Error:   "forbidden",
				Message: "access denied",
			})
			return
		}

		decision := g.limiter.CheckRateLimit(ctx, endpoint, r.Method, meta.APIKey, meta)
		writeRateLimitHeaders(w, decision)
		if !decision.Allowed {
			g.record(endpoint, true)
			w.Header().Set("Retry-After", strconv.Itoa(decision.RetryAfter))
			httputil.WriteJSON(w, http.StatusTooManyRequests, models.RateLimitExceededResponse{
				Error:      "rate_limit_exceeded",
				Message:    "too many requests, please retry later",
				Limit:      decision.Limit,
				Remaining:  decision.Remaining,
				ResetAt:    decision.ResetAt,
				RetryAfter: decision.RetryAfter,
			})
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		g.record(endpoint, false)
		g.limiter.IncrementRateLimit(ctx, endpoint, r.Method, meta.APIKey, meta, rec.status < http.StatusBadRequest)
	})
}

func (g *Guard) record(endpoint string, denied bool) {
	if g.usage != nil {
		g.usage.Record(endpoint, denied)
	}
}

// requestMeta converts the platform middleware's client metadata into the
// engine's keying surface.
func requestMeta(ctx context.Context) models.RequestMeta {
	meta := platform.GetClientMetadata(ctx)
	return models.RequestMeta{
		IPAddress: meta.IPAddress,
		UserID:    meta.UserID,
		APIKey:    meta.APIKey,
		UserAgent: meta.UserAgent,
		Country:   meta.Country,
	}
}

// writeRateLimitHeaders advertises quota state on every limited response.
// Unlimited decisions carry no headers: there is no quota to advertise.
func writeRateLimitHeaders(w http.ResponseWriter, d models.RateLimitDecision) {
	if d.Limit == models.Unlimited {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
