// Package limiter implements fixed-window rate limit evaluation against a
// shared counter store.
//
// The check and the increment are deliberately decoupled: middleware checks
// at admission and increments after the request completes, so a burst of
// concurrent requests can slightly overshoot a limit before their
// increments land. That is accepted fixed-window behavior, not a bug.
//
// Every request-path operation fails open: counter store errors, timeouts,
// and even panics degrade to an allow decision plus a log line, because
// availability of the protected API outranks strict enforcement.
package limiter

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"faregate/internal/ratelimit/match"
	"faregate/internal/ratelimit/metrics"
	"faregate/internal/ratelimit/models"
	"faregate/internal/ratelimit/observability"
	"faregate/internal/ratelimit/store/counter"
	"faregate/pkg/platform/audit"

	"github.com/google/uuid"
)

// RuleSource supplies enabled rules in ascending priority order.
type RuleSource interface {
	ListRateLimitRules(enabled *bool) []*models.RateLimitRule
}

// ViolationStore retains denied attempts for the observability surface.
type ViolationStore interface {
	Append(v models.RateLimitViolation)
	List(limit int, ruleID string) []models.RateLimitViolation
}

const defaultCounterTimeout = 250 * time.Millisecond

// Service evaluates and increments rate limit rules.
// Thread-safe for concurrent use by HTTP middleware.
type Service struct {
	rules          RuleSource
	counters       counter.Store
	violations     ViolationStore
	matcher        *match.Matcher
	auditPublisher observability.AuditPublisher
	logger         *slog.Logger
	metrics        *metrics.Metrics
	tracer         trace.Tracer
	counterTimeout time.Duration
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

// WithCounterTimeout bounds each counter store round trip.
func WithCounterTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.counterTimeout = d
		}
	}
}

// WithClock overrides the service clock. Test hook.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates a rate limiting service with the given dependencies.
// Returns an error if required dependencies are nil.
func New(
	rules RuleSource,
	counters counter.Store,
	violations ViolationStore,
	opts ...Option,
) (*Service, error) {
	if rules == nil {
		return nil, errors.New("rule source is required")
	}
	if counters == nil {
		return nil, errors.New("counter store is required")
	}
	if violations == nil {
		return nil, errors.New("violation store is required")
	}

	svc := &Service{
		rules:          rules,
		counters:       counters,
		violations:     violations,
		matcher:        match.New(),
		tracer:         otel.Tracer("faregate/ratelimit"),
		counterTimeout: defaultCounterTimeout,
		now:            time.Now,
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// CheckRateLimit evaluates all enabled rules applicable to the request.
//
// Rules are visited in ascending priority order. The first rule whose
// window count has reached its limit denies the request and stops the
// scan; a violation is recorded. If no rule denies, the decision reports
// the most restrictive rule seen: smallest remaining quota wins, ties go
// to the rule visited first. When no rule applies the decision is an
// unlimited allow.
func (s *Service) CheckRateLimit(ctx context.Context, endpoint, method, key string, meta models.RequestMeta) (decision models.RateLimitDecision) {
	start := s.now()
	defer func() {
		if r := recover(); r != nil {
			s.failOpen(ctx, "check", r)
			decision = models.AllowUnlimited(s.now())
		}
		if s.metrics != nil {
			s.metrics.ObserveCheckDuration(time.Since(start).Seconds())
		}
	}()

	ctx, span := s.tracer.Start(ctx, "ratelimit.check",
		trace.WithAttributes(
			attribute.String("endpoint", endpoint),
			attribute.String("method", method),
		))
	defer span.End()

	applicable := s.applicableRules(endpoint, method)
	if len(applicable) == 0 {
		s.recordCheck("unlimited")
		span.SetAttributes(attribute.Bool("allowed", true))
		return models.AllowUnlimited(start)
	}

	var binding *models.RateLimitRule
	var bindingRemaining int
	var bindingReset time.Time

	for _, rule := range applicable {
		windowStart, windowEnd := models.WindowBounds(start, rule.WindowMs)
		derived := rule.KeyGenerator.DeriveKey(key, meta)
		storeKey := models.CounterKey(rule.ID, derived, windowStart.UnixMilli())

		count, err := s.counterGet(ctx, storeKey)
		if err != nil {
			// Fail-open: an unreadable counter means the rule does not apply.
			s.degraded(ctx, "check", rule, err)
			continue
		}

		if count >= int64(rule.Limit) {
			s.recordViolation(ctx, rule, derived, endpoint, method, meta, count+1, windowStart, windowEnd)
			s.recordCheck("denied")
			if s.metrics != nil {
				s.metrics.RecordDenial(rule.Name)
			}
			span.SetAttributes(attribute.Bool("allowed", false), attribute.String("rule_id", rule.ID))
			return models.RateLimitDecision{
				Allowed:    false,
				Limit:      rule.Limit,
				Remaining:  0,
				ResetAt:    windowEnd,
				RetryAfter: retryAfterSeconds(start, windowEnd),
			}
		}

		remaining := rule.Limit - int(count)
		if binding == nil || remaining < bindingRemaining {
			binding = rule
			bindingRemaining = remaining
			bindingReset = windowEnd
		}
	}

	if binding == nil {
		// Every applicable rule failed open.
		s.recordCheck("unlimited")
		span.SetAttributes(attribute.Bool("allowed", true))
		return models.AllowUnlimited(start)
	}

	s.recordCheck("allowed")
	span.SetAttributes(attribute.Bool("allowed", true), attribute.String("rule_id", binding.ID))
	return models.RateLimitDecision{
		Allowed:   true,
		Limit:     binding.Limit,
		Remaining: bindingRemaining,
		ResetAt:   bindingReset,
	}
}

// IncrementRateLimit applies each applicable rule's increment policy after
// a request completes. It is recomputed independently of CheckRateLimit so
// callers may check at admission and increment after the work is done.
// Errors never propagate: incrementing must not fail the caller's request.
func (s *Service) IncrementRateLimit(ctx context.Context, endpoint, method, key string, meta models.RequestMeta, success bool) {
	defer func() {
		if r := recover(); r != nil {
			s.failOpen(ctx, "increment", r)
		}
	}()

	now := s.now()
	for _, rule := range s.applicableRules(endpoint, method) {
		if success && rule.SkipSuccessfulRequests {
			if s.metrics != nil {
				s.metrics.RecordIncrementSkipped("successful")
			}
			continue
		}
		if !success && rule.SkipFailedRequests {
			if s.metrics != nil {
				s.metrics.RecordIncrementSkipped("failed")
			}
			continue
		}

		windowStart, _ := models.WindowBounds(now, rule.WindowMs)
		derived := rule.KeyGenerator.DeriveKey(key, meta)
		storeKey := models.CounterKey(rule.ID, derived, windowStart.UnixMilli())
		ttlSeconds := (rule.WindowMs + 999) / 1000

		cctx, cancel := context.WithTimeout(ctx, s.counterTimeout)
		_, err := s.counters.IncrementAndExpire(cctx, storeKey, ttlSeconds)
		cancel()
		if err != nil {
			s.degraded(ctx, "increment", rule, err)
			continue
		}
		if s.metrics != nil {
			s.metrics.RecordIncrement()
		}
	}
}

// GetViolations returns recorded violations, newest first, optionally
// filtered by rule id.
func (s *Service) GetViolations(limit int, ruleID string) []models.RateLimitViolation {
	return s.violations.List(limit, ruleID)
}

// applicableRules selects enabled rules matching the method and endpoint,
// preserving the source's ascending priority order.
func (s *Service) applicableRules(endpoint, method string) []*models.RateLimitRule {
	enabled := true
	rules := s.rules.ListRateLimitRules(&enabled)

	applicable := rules[:0:0]
	for _, rule := range rules {
		if !rule.Method.Matches(method) {
			continue
		}
		if !s.matcher.Matches(rule.EndpointPattern, endpoint) {
			continue
		}
		applicable = append(applicable, rule)
	}
	return applicable
}

func (s *Service) counterGet(ctx context.Context, key string) (int64, error) {
	cctx, cancel := context.WithTimeout(ctx, s.counterTimeout)
	defer cancel()
	return s.counters.Get(cctx, key)
}

// recordViolation builds and retains a violation record and emits one audit
// event. It runs on the hot denial path and must never propagate a failure.
func (s *Service) recordViolation(ctx context.Context, rule *models.RateLimitRule, derivedKey, endpoint, method string, meta models.RequestMeta, attempts int64, windowStart, windowEnd time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.failOpen(ctx, "record_violation", r)
		}
	}()

	violation := models.RateLimitViolation{
		ID:          uuid.NewString(),
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		Key:         derivedKey,
		Endpoint:    endpoint,
		Method:      method,
		Limit:       rule.Limit,
		Attempts:    attempts,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Meta:        meta,
		OccurredAt:  s.now(),
	}
	s.violations.Append(violation)
	if s.metrics != nil {
		s.metrics.RecordViolation()
	}

	observability.LogAudit(ctx, s.logger, s.auditPublisher, audit.Event{
		Action:   audit.EventRateLimitExceeded,
		Subject:  derivedKey,
		RuleID:   rule.ID,
		Endpoint: endpoint,
		Method:   method,
		Decision: "denied",
		Reason:   rule.Name,
	},
		"rule_id", rule.ID,
		"key", derivedKey,
		"endpoint", endpoint,
		"method", method,
		"limit", rule.Limit,
		"attempts", attempts,
	)
}

func (s *Service) degraded(ctx context.Context, operation string, rule *models.RateLimitRule, err error) {
	if s.metrics != nil {
		s.metrics.RecordFailOpen(operation)
	}
	if s.logger != nil {
		s.logger.WarnContext(ctx, "counter store degraded, failing open",
			"operation", operation,
			"rule_id", rule.ID,
			"error", err,
		)
	}
}

func (s *Service) failOpen(ctx context.Context, operation string, cause any) {
	if s.metrics != nil {
		s.metrics.RecordFailOpen(operation)
	}
	if s.logger != nil {
		s.logger.ErrorContext(ctx, "rate limit internal failure, failing open",
			"operation", operation,
			"error", cause,
		)
	}
}

func (s *Service) recordCheck(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordCheck(outcome)
	}
}

// retryAfterSeconds is the whole-second ceiling of the time left in the
// denied window, never negative.
func retryAfterSeconds(now, windowEnd time.Time) int {
	seconds := int(math.Ceil(windowEnd.Sub(now).Seconds()))
	if seconds < 0 {
		return 0
	}
	return seconds
}
