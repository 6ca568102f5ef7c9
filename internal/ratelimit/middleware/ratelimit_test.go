package middleware

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	platform "faregate/internal/platform/middleware"
	"faregate/internal/ratelimit/models"
	"faregate/internal/ratelimit/service/accesscontrol"
	"faregate/internal/ratelimit/service/limiter"
	"faregate/internal/ratelimit/store/counter"
	"faregate/internal/ratelimit/store/rules"
	"faregate/internal/ratelimit/store/violations"
	"faregate/internal/ratelimit/usage"
)

// =============================================================================
// Guard Middleware Test Suite
// =============================================================================
// Justification: the guard is the production wiring of the whole engine —
// ordering (access control before rate limiting), response headers, response
// bodies and the post-handler increment are all contract here. The suite
// runs the real services over in-memory stores.

type GuardSuite struct {
	suite.Suite
	ruleStore *rules.Store
	counters  *counter.InMemoryStore
	handler   http.Handler
	nowTime   time.Time
	status    int // status the downstream handler responds with
}

func TestGuardSuite(t *testing.T) {
	suite.Run(t, new(GuardSuite))
}

var guardBase = time.UnixMilli(1_700_000_040_000)

func (s *GuardSuite) SetupTest() {
	s.nowTime = guardBase
	s.status = http.StatusOK
	clock := func() time.Time { return s.nowTime }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.ruleStore = rules.New(nil)
	s.counters = counter.NewInMemoryStore().WithClock(clock)

	limiterSvc, err := limiter.New(s.ruleStore, s.counters, violations.NewInMemoryStore(0),
		limiter.WithLogger(logger),
		limiter.WithClock(clock),
	)
	s.Require().NoError(err)

	accessSvc, err := accesscontrol.New(s.ruleStore,
		accesscontrol.WithLogger(logger),
		accesscontrol.WithClock(clock),
	)
	s.Require().NoError(err)

	guard := NewGuard(limiterSvc, accessSvc, usage.NewRecorder(usage.WithClock(clock)))
	metadata := platform.NewMetadata(platform.MetadataConfig{})
	downstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(s.status)
	})
	s.handler = metadata.Handler(guard.Handler(downstream))
}

func (s *GuardSuite) request(method, path, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = ip + ":42000"
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *GuardSuite) putRateRule(rule models.RateLimitRule) {
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = s.nowTime
	}
	s.ruleStore.PutRateLimitRule(context.Background(), &rule)
}

// =============================================================================
// Rate Limiting Flow Tests
// =============================================================================

func (s *GuardSuite) TestRateLimitFlow() {
	s.putRateRule(models.RateLimitRule{
		ID: "r-1", Name: "bookings", EndpointPattern: "/api/bookings",
		Method: models.MethodAny, Limit: 2, WindowMs: 60_000,
		KeyGenerator: models.KeyByIP, Enabled: true,
	})

	s.Run("allowed requests carry quota headers", func() {
		rec := s.request("GET", "/api/bookings", "10.0.0.1")
		s.Equal(http.StatusOK, rec.Code)
		s.Equal("2", rec.Header().Get("X-RateLimit-Limit"))
		s.Equal("2", rec.Header().Get("X-RateLimit-Remaining"))
		s.NotEmpty(rec.Header().Get("X-RateLimit-Reset"))
	})

	s.Run("denial returns 429 with retry hint", func() {
		s.request("GET", "/api/bookings", "10.0.0.1")
		s.nowTime = guardBase.Add(10 * time.Second)

		rec := s.request("GET", "/api/bookings", "10.0.0.1")
		s.Equal(http.StatusTooManyRequests, rec.Code)
		s.Equal("50", rec.Header().Get("Retry-After"))
		s.Equal("0", rec.Header().Get("X-RateLimit-Remaining"))

		var body models.RateLimitExceededResponse
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
		s.Equal("rate_limit_exceeded", body.Error)
		s.Equal(2, body.Limit)
		s.Equal(50, body.RetryAfter)
	})

	s.Run("denied requests are not counted", func() {
		// Two 429s in a row must not grow the window count.
		first := s.request("GET", "/api/bookings", "10.0.0.1")
		second := s.request("GET", "/api/bookings", "10.0.0.1")
		s.Equal(http.StatusTooManyRequests, first.Code)
		s.Equal(http.StatusTooManyRequests, second.Code)

		s.nowTime = guardBase.Add(61 * time.Second)
		rec := s.request("GET", "/api/bookings", "10.0.0.1")
		s.Equal(http.StatusOK, rec.Code)
	})

	s.Run("other clients keep their own quota", func() {
		rec := s.request("GET", "/api/bookings", "10.0.0.2")
		s.Equal(http.StatusOK, rec.Code)
	})

	s.Run("unlimited paths carry no quota headers", func() {
		rec := s.request("GET", "/api/other", "10.0.0.1")
		s.Equal(http.StatusOK, rec.Code)
		s.Empty(rec.Header().Get("X-RateLimit-Limit"))
	})
}

// =============================================================================
// Skip Policy Wiring Tests
// =============================================================================
// Justification: the increment runs after the handler precisely so these
// policies can see the real response status.

func (s *GuardSuite) TestSkipPolicyWiring() {
	s.putRateRule(models.RateLimitRule{
		ID: "r-login", Name: "login-failures", EndpointPattern: "/api/login",
		Method: models.MethodPost, Limit: 2, WindowMs: 60_000,
		KeyGenerator: models.KeyByIP, Enabled: true, SkipSuccessfulRequests: true,
	})

	s.Run("successful requests are free", func() {
		for i := 0; i < 5; i++ {
			rec := s.request("POST", "/api/login", "10.0.0.3")
			s.Equal(http.StatusOK, rec.Code)
		}
	})

	s.Run("failed requests consume quota", func() {
		s.status = http.StatusUnauthorized
		for i := 0; i < 2; i++ {
			rec := s.request("POST", "/api/login", "10.0.0.3")
			s.Equal(http.StatusUnauthorized, rec.Code)
		}
		rec := s.request("POST", "/api/login", "10.0.0.3")
		s.Equal(http.StatusTooManyRequests, rec.Code)
	})
}

// =============================================================================
// Access Control Flow Tests
// =============================================================================

func (s *GuardSuite) TestAccessControlFlow() {
	s.ruleStore.PutAccessControlRule(context.Background(), &models.AccessControlRule{
		ID: "b-1", Name: "scraper-ban", Type: models.ListTypeBlacklist,
		Target: models.TargetIP, Values: []string{"10.0.0.66"},
		Enabled: true, CreatedAt: s.nowTime,
	})

	s.Run("blacklisted caller gets a generic 403", func() {
		rec := s.request("GET", "/api/bookings", "10.0.0.66")
		s.Equal(http.StatusForbidden, rec.Code)

		var body models.ForbiddenResponse
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
		s.Equal("forbidden", body.Error)
		// Rule internals must not leak to the rejected caller.
		s.NotContains(rec.Body.String(), "scraper-ban")
	})

	s.Run("access denial skips rate limit accounting", func() {
		s.putRateRule(models.RateLimitRule{
			ID: "r-all", Name: "all", EndpointPattern: "*",
			Method: models.MethodAny, Limit: 100, WindowMs: 60_000,
			KeyGenerator: models.KeyByIP, Enabled: true,
		})
		before := s.counters.Len()
		s.request("GET", "/api/bookings", "10.0.0.66")
		s.Equal(before, s.counters.Len())
	})

	s.Run("other callers pass", func() {
		rec := s.request("GET", "/api/bookings", "10.0.0.1")
		s.Equal(http.StatusOK, rec.Code)
	})
}
