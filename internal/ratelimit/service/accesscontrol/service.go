// Package accesscontrol evaluates whitelist and blacklist rules against
// request metadata before rate limiting runs.
package accesscontrol

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"faregate/internal/ratelimit/match"
	"faregate/internal/ratelimit/metrics"
	"faregate/internal/ratelimit/models"
	"faregate/internal/ratelimit/observability"
	"faregate/pkg/platform/audit"
)

// RuleSource supplies enabled, unexpired rules in descending creation-time order.
type RuleSource interface {
	ListAccessControlRules(enabled *bool, now time.Time) []*models.AccessControlRule
}

// Service evaluates access control rules. Thread-safe for concurrent use by
// HTTP middleware.
type Service struct {
	rules          RuleSource
	matcher        *match.Matcher
	auditPublisher observability.AuditPublisher
	logger         *slog.Logger
	metrics        *metrics.Metrics
	now            func() time.Time
}

// Option configures a Service instance.
type Option func(*Service)

// WithLogger sets the structured logger for audit and degradation logging.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithAuditPublisher sets the audit event publisher for security logging.
func WithAuditPublisher(publisher observability.AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

// WithMetrics sets the metrics recorder for observability.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides the service clock. Test hook.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates an access control service with the given dependencies.
func New(rules RuleSource, opts ...Option) (*Service, error) {
	if rules == nil {
		return nil, errors.New("rule source is required")
	}

	svc := &Service{
		rules:   rules,
		matcher: match.New(),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// CheckAccessControl evaluates every enabled, unexpired rule against the
// request, newest rule first. The first rule that denies wins:
//
//   - a blacklist denies when the targeted attribute IS in the value set
//   - a whitelist denies when the targeted attribute is NOT in the value set
//
// Rules scoped to endpoints or methods that don't cover the request are
// skipped, as are rules whose targeted attribute is absent from the
// metadata: an anonymous request cannot be denied by a user whitelist.
// Internal failures fail open.
func (s *Service) CheckAccessControl(ctx context.Context, endpoint, method string, meta models.RequestMeta) (decision models.AccessDecision) {
	defer func() {
		if r := recover(); r != nil {
			s.failOpen(ctx, r)
			decision = models.AccessDecision{Allowed: true}
		}
	}()

	now := s.now()
	enabled := true
	for _, rule := range s.rules.ListAccessControlRules(&enabled, now) {
		if !s.endpointApplies(rule, endpoint) {
			continue
		}
		if !rule.MethodApplies(method) {
			continue
		}
		value, present := rule.Target.ValueFrom(meta)
		if !present {
			continue
		}

		listed := rule.HasValue(value)
		denied := (rule.Type == models.ListTypeBlacklist && listed) ||
			(rule.Type == models.ListTypeWhitelist && !listed)
		if !denied {
			continue
		}

		s.recordCheck("denied")
		observability.LogAudit(ctx, s.logger, s.auditPublisher, audit.Event{
			Action:   audit.EventAccessDenied,
			Subject:  value,
			RuleID:   rule.ID,
			Endpoint: endpoint,
			Method:   method,
			Decision: "denied",
			Reason:   rule.Name,
		},
			"rule_id", rule.ID,
			"rule_name", rule.Name,
			"list_type", rule.Type,
			"target", rule.Target,
			"endpoint", endpoint,
			"method", method,
		)
		return models.AccessDecision{
			Allowed: false,
			Reason:  rule.Name,
			RuleID:  rule.ID,
		}
	}

	s.recordCheck("allowed")
	return models.AccessDecision{Allowed: true}
}

// endpointApplies reports whether the rule's endpoint scope covers the
// request path. An empty scope covers everything.
func (s *Service) endpointApplies(rule *models.AccessControlRule, endpoint string) bool {
	if len(rule.Endpoints) == 0 {
		return true
	}
	for _, pattern := range rule.Endpoints {
		if s.matcher.Matches(pattern, endpoint) {
			return true
		}
	}
	return false
}

func (s *Service) failOpen(ctx context.Context, cause any) {
	if s.metrics != nil {
		s.metrics.RecordFailOpen("access_check")
	}
	if s.logger != nil {
		s.logger.ErrorContext(ctx, "access control internal failure, failing open",
			"error", cause,
		)
	}
}

func (s *Service) recordCheck(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordAccessCheck(outcome)
	}
}
