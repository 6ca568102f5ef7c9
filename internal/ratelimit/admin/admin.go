// Package admin manages the rule sets behind the rate limiting and access
// control evaluators. Unlike the request path, admin operations propagate
// validation and not-found errors: an operator mistake must be visible, not
// silently allowed through.
package admin

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"faregate/internal/ratelimit/models"
	"faregate/internal/ratelimit/observability"
	"faregate/internal/ratelimit/store/rules"
	dErrors "faregate/pkg/domain-errors"
	"faregate/pkg/platform/audit"
)

// Service exposes rule management for both rule kinds.
type Service struct {
	store          *rules.Store
	auditPublisher observability.AuditPublisher
	logger         *slog.Logger
	now            func() time.Time
}

// Option configures a Service instance.
type Option func(*Service)

// WithLogger sets the structured logger for audit logging.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithAuditPublisher sets the audit event publisher for rule mutations.
func WithAuditPublisher(publisher observability.AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

// WithClock overrides the service clock. Test hook.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates a rule management service backed by the given store.
func New(store *rules.Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("rule store is required")
	}

	svc := &Service{
		store: store,
		now:   time.Now,
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// CreateRateLimitRule validates and stores a new rule. New rules default to
// enabled unless the request says otherwise.
func (s *Service) CreateRateLimitRule(ctx context.Context, req *models.CreateRateLimitRuleRequest, createdBy string) (*models.RateLimitRule, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	rule, err := models.NewRateLimitRule(
		req.Name,
		req.EndpointPattern,
		models.Method(req.Method),
		req.Limit,
		req.WindowMs,
		models.KeyGenerator(req.KeyGenerator),
		createdBy,
		now,
	)
	if err != nil {
		return nil, err
	}
	rule.SkipSuccessfulRequests = req.SkipSuccessfulRequests
	rule.SkipFailedRequests = req.SkipFailedRequests
	rule.Priority = req.Priority
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}

	s.store.PutRateLimitRule(ctx, rule)
	s.auditMutation(ctx, audit.EventRateLimitRuleCreated, rule.ID, rule.Name, createdBy)
	return rule, nil
}

// GetRateLimitRule returns a rule by id, or NotFound.
func (s *Service) GetRateLimitRule(id string) (*models.RateLimitRule, error) {
	rule, ok := s.store.GetRateLimitRule(id)
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "rate limit rule not found")
	}
	return rule, nil
}

// ListRateLimitRules returns rules in ascending priority order. A non-nil
// enabled filters by the flag.
func (s *Service) ListRateLimitRules(enabled *bool) []*models.RateLimitRule {
	return s.store.ListRateLimitRules(enabled)
}

// UpdateRateLimitRule applies a partial update. Fails with NotFound for an
// unknown id and leaves the stored rule untouched on validation failure.
func (s *Service) UpdateRateLimitRule(ctx context.Context, id string, req *models.UpdateRateLimitRuleRequest, updatedBy string) (*models.RateLimitRule, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	rule, ok := s.store.GetRateLimitRule(id)
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "rate limit rule not found")
	}

	req.Apply(rule, updatedBy, s.now())
	s.store.PutRateLimitRule(ctx, rule)
	s.auditMutation(ctx, audit.EventRateLimitRuleUpdated, rule.ID, rule.Name, updatedBy)
	return rule, nil
}

// DeleteRateLimitRule removes a rule, or fails with NotFound.
func (s *Service) DeleteRateLimitRule(ctx context.Context, id, deletedBy string) error {
	rule, ok := s.store.GetRateLimitRule(id)
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "rate limit rule not found")
	}

	s.store.RemoveRateLimitRule(ctx, id)
	s.auditMutation(ctx, audit.EventRateLimitRuleDeleted, rule.ID, rule.Name, deletedBy)
	return nil
}

// CreateAccessControlRule validates and stores a new access rule.
func (s *Service) CreateAccessControlRule(ctx context.Context, req *models.CreateAccessControlRuleRequest, createdBy string) (*models.AccessControlRule, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	rule, err := models.NewAccessControlRule(
		req.Name,
		models.AccessListType(req.Type),
		models.AccessTarget(req.Target),
		req.Values,
		createdBy,
		s.now(),
	)
	if err != nil {
		return nil, err
	}
	rule.Endpoints = req.Endpoints
	rule.Methods = toMethods(req.Methods)
	rule.ExpiresAt = req.ExpiresAt
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}

	s.store.PutAccessControlRule(ctx, rule)
	s.auditMutation(ctx, audit.EventAccessRuleCreated, rule.ID, rule.Name, createdBy)
	return rule, nil
}

// GetAccessControlRule returns a rule by id, or NotFound. Expired rules are
// still returned here: expiry removes a rule from evaluation, not from
// management.
func (s *Service) GetAccessControlRule(id string) (*models.AccessControlRule, error) {
	rule, ok := s.store.GetAccessControlRule(id)
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "access control rule not found")
	}
	return rule, nil
}

// ListAccessControlRules returns unexpired rules, newest first.
func (s *Service) ListAccessControlRules(enabled *bool) []*models.AccessControlRule {
	return s.store.ListAccessControlRules(enabled, s.now())
}

// UpdateAccessControlRule applies a partial update. Fails with NotFound for
// an unknown id.
func (s *Service) UpdateAccessControlRule(ctx context.Context, id string, req *models.UpdateAccessControlRuleRequest, updatedBy string) (*models.AccessControlRule, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	rule, ok := s.store.GetAccessControlRule(id)
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "access control rule not found")
	}

	req.Apply(rule, updatedBy, s.now())
	s.store.PutAccessControlRule(ctx, rule)
	s.auditMutation(ctx, audit.EventAccessRuleUpdated, rule.ID, rule.Name, updatedBy)
	return rule, nil
}

// DeleteAccessControlRule removes a rule, or fails with NotFound.
func (s *Service) DeleteAccessControlRule(ctx context.Context, id, deletedBy string) error {
	rule, ok := s.store.GetAccessControlRule(id)
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "access control rule not found")
	}

	s.store.RemoveAccessControlRule(ctx, id)
	s.auditMutation(ctx, audit.EventAccessRuleDeleted, rule.ID, rule.Name, deletedBy)
	return nil
}

func (s *Service) auditMutation(ctx context.Context, action, ruleID, ruleName, actor string) {
	observability.LogAudit(ctx, s.logger, s.auditPublisher, audit.Event{
		Action:  action,
		Subject: ruleID,
		RuleID:  ruleID,
		Reason:  ruleName,
		Actor:   actor,
	},
		"rule_id", ruleID,
		"rule_name", ruleName,
		"actor", actor,
	)
}

func toMethods(raw []string) []models.Method {
	if len(raw) == 0 {
		return nil
	}
	methods := make([]models.Method, 0, len(raw))
	for _, m := range raw {
		methods = append(methods, models.Method(m))
	}
	return methods
}
