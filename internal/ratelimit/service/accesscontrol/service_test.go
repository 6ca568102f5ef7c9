package accesscontrol

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"faregate/internal/ratelimit/models"
	"faregate/internal/ratelimit/store/rules"
)

// =============================================================================
// Access Control Service Test Suite
// =============================================================================
// Justification for unit tests: deny semantics differ per list type and the
// first-deny-wins ordering depends on rule creation times; both are easier to
// pin here than through the HTTP layer.

type AccessControlServiceSuite struct {
	suite.Suite
	ruleStore *rules.Store
	service   *Service
	nowTime   time.Time
}

func TestAccessControlServiceSuite(t *testing.T) {
	suite.Run(t, new(AccessControlServiceSuite))
}

func (s *AccessControlServiceSuite) SetupTest() {
	s.nowTime = time.UnixMilli(1_700_000_040_000)
	s.ruleStore = rules.New(nil)

	var err error
	s.service, err = New(
		s.ruleStore,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return s.nowTime }),
	)
	s.Require().NoError(err)
}

func (s *AccessControlServiceSuite) putRule(rule models.AccessControlRule) *models.AccessControlRule {
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = s.nowTime
	}
	s.ruleStore.PutAccessControlRule(context.Background(), &rule)
	return &rule
}

// =============================================================================
// Constructor Tests
// =============================================================================

func (s *AccessControlServiceSuite) TestNew() {
	s.Run("nil rule source returns error", func() {
		_, err := New(nil)
		s.Error(err)
		s.Contains(err.Error(), "rule source is required")
	})
}

// =============================================================================
// Blacklist Tests
// =============================================================================

func (s *AccessControlServiceSuite) TestBlacklist() {
	ctx := context.Background()
	s.putRule(models.AccessControlRule{
		ID: "b-1", Name: "blocked-ips", Type: models.ListTypeBlacklist,
		Target: models.TargetIP, Values: []string{"10.0.0.66"}, Enabled: true,
	})

	s.Run("listed value is denied", func() {
		d := s.service.CheckAccessControl(ctx, "/api/bookings", "GET", models.RequestMeta{IPAddress: "10.0.0.66"})
		s.False(d.Allowed)
		s.Equal("blocked-ips", d.Reason)
		s.Equal("b-1", d.RuleID)
	})

	s.Run("unlisted value is allowed", func() {
		d := s.service.CheckAccessControl(ctx, "/api/bookings", "GET", models.RequestMeta{IPAddress: "10.0.0.1"})
		s.True(d.Allowed)
	})

	s.Run("matching is exact and case-sensitive", func() {
		s.putRule(models.AccessControlRule{
			ID: "b-ua", Name: "blocked-agents", Type: models.ListTypeBlacklist,
			Target: models.TargetUserAgent, Values: []string{"BadBot/1.0"}, Enabled: true,
		})
		d := s.service.CheckAccessControl(ctx, "/api/bookings", "GET", models.RequestMeta{
			IPAddress: "10.0.0.1", UserAgent: "badbot/1.0",
		})
		s.True(d.Allowed)
	})
}

// =============================================================================
// Whitelist Tests
// =============================================================================
// Justification: whitelist semantics invert the membership check; a value
// must be IN the set to pass.

func (s *AccessControlServiceSuite) TestWhitelist() {
	ctx := context.Background()
	s.putRule(models.AccessControlRule{
		ID: "w-1", Name: "partner-keys", Type: models.ListTypeWhitelist,
		Target: models.TargetAPIKey, Values: []string{"key-partner-a"}, Enabled: true,
	})

	s.Run("listed value is allowed", func() {
		d := s.service.CheckAccessControl(ctx, "/api/bookings", "GET", models.RequestMeta{
			IPAddress: "10.0.0.1", APIKey: "key-partner-a",
		})
		s.True(d.Allowed)
	})

	s.Run("unlisted value is denied", func() {
		d := s.service.CheckAccessControl(ctx, "/api/bookings", "GET", models.RequestMeta{
			IPAddress: "10.0.0.1", APIKey: "key-unknown",
		})
		s.False(d.Allowed)
		s.Equal("w-1", d.RuleID)
	})

	s.Run("absent attribute skips the rule", func() {
		// No API key at all: the whitelist cannot judge the request.
		d := s.service.CheckAccessControl(ctx, "/api/bookings", "GET", models.RequestMeta{
			IPAddress: "10.0.0.1",
		})
		s.True(d.Allowed)
	})
}

// =============================================================================
// Scoping and Ordering Tests
// =============================================================================

func (s *AccessControlServiceSuite) TestScopingAndOrdering() {
	ctx := context.Background()

	s.Run("endpoint scope limits the rule", func() {
		s.putRule(models.AccessControlRule{
			ID: "b-admin", Name: "admin-block", Type: models.ListTypeBlacklist,
			Target: models.TargetIP, Values: []string{"10.0.0.66"},
			Endpoints: []string{"/admin/*"}, Enabled: true,
		})
		d := s.service.CheckAccessControl(ctx, "/api/bookings", "GET", models.RequestMeta{IPAddress: "10.0.0.66"})
		s.True(d.Allowed)

		d = s.service.CheckAccessControl(ctx, "/admin/rules", "GET", models.RequestMeta{IPAddress: "10.0.0.66"})
		s.False(d.Allowed)
	})

	s.Run("method scope limits the rule", func() {
		s.SetupTest()
		s.putRule(models.AccessControlRule{
			ID: "b-writes", Name: "write-block", Type: models.ListTypeBlacklist,
			Target: models.TargetCountry, Values: []string{"XX"},
			Methods: []models.Method{models.MethodPost}, Enabled: true,
		})
		meta := models.RequestMeta{IPAddress: "10.0.0.1", Country: "XX"}
		s.True(s.service.CheckAccessControl(ctx, "/api/bookings", "GET", meta).Allowed)
		s.False(s.service.CheckAccessControl(ctx, "/api/bookings", "POST", meta).Allowed)
	})

	s.Run("newest rule is evaluated first and its denial wins", func() {
		s.SetupTest()
		s.putRule(models.AccessControlRule{
			ID: "b-old", Name: "older", Type: models.ListTypeBlacklist,
			Target: models.TargetIP, Values: []string{"10.0.0.66"},
			Enabled: true, CreatedAt: s.nowTime.Add(-time.Hour),
		})
		s.putRule(models.AccessControlRule{
			ID: "b-new", Name: "newer", Type: models.ListTypeBlacklist,
			Target: models.TargetIP, Values: []string{"10.0.0.66"},
			Enabled: true, CreatedAt: s.nowTime,
		})
		d := s.service.CheckAccessControl(ctx, "/api/bookings", "GET", models.RequestMeta{IPAddress: "10.0.0.66"})
		s.False(d.Allowed)
		s.Equal("b-new", d.RuleID)
	})

	s.Run("disabled rule is ignored", func() {
		s.SetupTest()
		s.putRule(models.AccessControlRule{
			ID: "b-off", Name: "off", Type: models.ListTypeBlacklist,
			Target: models.TargetIP, Values: []string{"10.0.0.66"}, Enabled: false,
		})
		d := s.service.CheckAccessControl(ctx, "/api/bookings", "GET", models.RequestMeta{IPAddress: "10.0.0.66"})
		s.True(d.Allowed)
	})
}

// =============================================================================
// Expiry Tests
// =============================================================================
// Justification: expiry is evaluated lazily against the injected clock; an
// expired ban must stop applying without any background sweep.

func (s *AccessControlServiceSuite) TestExpiry() {
	ctx := context.Background()
	expiry := s.nowTime.Add(time.Hour)
	s.putRule(models.AccessControlRule{
		ID: "b-temp", Name: "temp-ban", Type: models.ListTypeBlacklist,
		Target: models.TargetIP, Values: []string{"10.0.0.66"},
		Enabled: true, ExpiresAt: &expiry,
	})

	s.Run("unexpired rule applies", func() {
		d := s.service.CheckAccessControl(ctx, "/api/bookings", "GET", models.RequestMeta{IPAddress: "10.0.0.66"})
		s.False(d.Allowed)
	})

	s.Run("expired rule stops applying", func() {
		s.nowTime = s.nowTime.Add(2 * time.Hour)
		d := s.service.CheckAccessControl(ctx, "/api/bookings", "GET", models.RequestMeta{IPAddress: "10.0.0.66"})
		s.True(d.Allowed)
	})
}
