package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	platform "faregate/internal/platform/middleware"
	"faregate/internal/ratelimit/admin"
	"faregate/internal/ratelimit/models"
	"faregate/internal/ratelimit/service/limiter"
	"faregate/internal/ratelimit/store/counter"
	"faregate/internal/ratelimit/store/rules"
	"faregate/internal/ratelimit/store/violations"
	"faregate/internal/ratelimit/usage"
)

// =============================================================================
// Admin Handler Test Suite
// =============================================================================
// Justification: the handler owns status-code mapping (201/204/400/404) and
// query-parameter parsing; both are caller-visible contracts.

type HandlerSuite struct {
	suite.Suite
	router  chi.Router
	nowTime time.Time
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.nowTime = time.UnixMilli(1_700_000_040_000)
	clock := func() time.Time { return s.nowTime }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ruleStore := rules.New(nil)
	adminSvc, err := admin.New(ruleStore, admin.WithLogger(logger), admin.WithClock(clock))
	s.Require().NoError(err)

	limiterSvc, err := limiter.New(ruleStore,
		counter.NewInMemoryStore().WithClock(clock),
		violations.NewInMemoryStore(0),
		limiter.WithLogger(logger),
		limiter.WithClock(clock),
	)
	s.Require().NoError(err)

	h := New(adminSvc, limiterSvc, usage.NewRecorder(usage.WithClock(clock)), logger)
	s.router = chi.NewRouter()
	s.router.Use(platform.AdminUser)
	h.RegisterAdmin(s.router)
}

func (s *HandlerSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-Admin-User", "admin-1")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) createRule(name string) models.RateLimitRule {
	rec := s.do("POST", "/admin/rate-limits/rules", models.CreateRateLimitRuleRequest{
		Name:            name,
		EndpointPattern: "/api/bookings",
		Limit:           5,
		WindowMs:        60_000,
	})
	s.Require().Equal(http.StatusCreated, rec.Code)

	var rule models.RateLimitRule
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &rule))
	return rule
}

// =============================================================================
// Rate Limit Rule Endpoint Tests
// =============================================================================

func (s *HandlerSuite) TestRateLimitRuleEndpoints() {
	s.Run("create returns 201 with the stored rule", func() {
		rule := s.createRule("bookings")
		s.NotEmpty(rule.ID)
		s.Equal("admin-1", rule.CreatedBy)
	})

	s.Run("create with invalid payload returns 400", func() {
		rec := s.do("POST", "/admin/rate-limits/rules", models.CreateRateLimitRuleRequest{
			Name:            "bad",
			EndpointPattern: "/api/x",
			Limit:           -1,
			WindowMs:        60_000,
		})
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("create with malformed body returns 400", func() {
		req := httptest.NewRequest("POST", "/admin/rate-limits/rules", bytes.NewReader([]byte("{not json")))
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("get and list round-trip", func() {
		rule := s.createRule("listed")

		rec := s.do("GET", "/admin/rate-limits/rules/"+rule.ID, nil)
		s.Equal(http.StatusOK, rec.Code)

		rec = s.do("GET", "/admin/rate-limits/rules", nil)
		s.Equal(http.StatusOK, rec.Code)
		var rulesOut []models.RateLimitRule
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &rulesOut))
		s.NotEmpty(rulesOut)
	})

	s.Run("bad enabled filter returns 400", func() {
		rec := s.do("GET", "/admin/rate-limits/rules?enabled=maybe", nil)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("patch updates and delete removes", func() {
		rule := s.createRule("mutable")

		limit := 99
		rec := s.do("PATCH", "/admin/rate-limits/rules/"+rule.ID, models.UpdateRateLimitRuleRequest{Limit: &limit})
		s.Equal(http.StatusOK, rec.Code)
		var updated models.RateLimitRule
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &updated))
		s.Equal(99, updated.Limit)

		rec = s.do("DELETE", "/admin/rate-limits/rules/"+rule.ID, nil)
		s.Equal(http.StatusNoContent, rec.Code)

		rec = s.do("GET", "/admin/rate-limits/rules/"+rule.ID, nil)
		s.Equal(http.StatusNotFound, rec.Code)
	})

	s.Run("unknown id returns 404", func() {
		rec := s.do("GET", "/admin/rate-limits/rules/nope", nil)
		s.Equal(http.StatusNotFound, rec.Code)
	})
}

// =============================================================================
// Access Control Rule Endpoint Tests
// =============================================================================

func (s *HandlerSuite) TestAccessControlRuleEndpoints() {
	s.Run("create and delete round-trip", func() {
		rec := s.do("POST", "/admin/access-control/rules", models.CreateAccessControlRuleRequest{
			Name:   "scraper-ban",
			Type:   "blacklist",
			Target: "ip",
			Values: []string{"10.0.0.66"},
		})
		s.Require().Equal(http.StatusCreated, rec.Code)
		var rule models.AccessControlRule
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &rule))
		s.Equal("admin-1", rule.CreatedBy)

		rec = s.do("DELETE", "/admin/access-control/rules/"+rule.ID, nil)
		s.Equal(http.StatusNoContent, rec.Code)
	})

	s.Run("invalid type returns 400", func() {
		rec := s.do("POST", "/admin/access-control/rules", models.CreateAccessControlRuleRequest{
			Name:   "bad",
			Type:   "greylist",
			Target: "ip",
			Values: []string{"x"},
		})
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

// =============================================================================
// Reporting Endpoint Tests
// =============================================================================

func (s *HandlerSuite) TestReportingEndpoints() {
	s.Run("violations listing validates limit", func() {
		rec := s.do("GET", "/admin/rate-limits/violations?limit=-1", nil)
		s.Equal(http.StatusBadRequest, rec.Code)

		rec = s.do("GET", "/admin/rate-limits/violations", nil)
		s.Equal(http.StatusOK, rec.Code)
		var out []models.RateLimitViolation
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &out))
		s.Empty(out)
	})

	s.Run("usage metrics validate the time range", func() {
		rec := s.do("GET", "/admin/usage?from=notatime", nil)
		s.Equal(http.StatusBadRequest, rec.Code)

		rec = s.do("GET", "/admin/usage?from=2026-08-30T13:00:00Z&to=2026-08-30T12:00:00Z", nil)
		s.Equal(http.StatusBadRequest, rec.Code)

		rec = s.do("GET", "/admin/usage", nil)
		s.Equal(http.StatusOK, rec.Code)
	})
}
