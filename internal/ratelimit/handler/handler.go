// Package handler exposes the rule management and reporting surface over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	platform "faregate/internal/platform/middleware"
	"faregate/internal/ratelimit/models"
	dErrors "faregate/pkg/domain-errors"
	"faregate/pkg/platform/httputil"
)

const maxBodyBytes = 64 * 1024

// AdminService manages both rule kinds.
type AdminService interface {
	CreateRateLimitRule(ctx context.Context, req *models.CreateRateLimitRuleRequest, createdBy string) (*models.RateLimitRule, error)
	GetRateLimitRule(id string) (*models.RateLimitRule, error)
	ListRateLimitRules(enabled *bool) []*models.RateLimitRule
	UpdateRateLimitRule(ctx context.Context, id string, req *models.UpdateRateLimitRuleRequest, updatedBy string) (*models.RateLimitRule, error)
	DeleteRateLimitRule(ctx context.Context, id, deletedBy string) error

	CreateAccessControlRule(ctx context.Context, req *models.CreateAccessControlRuleRequest, createdBy string) (*models.AccessControlRule, error)
	GetAccessControlRule(id string) (*models.AccessControlRule, error)
	ListAccessControlRules(enabled *bool) []*models.AccessControlRule
	UpdateAccessControlRule(ctx context.Context, id string, req *models.UpdateAccessControlRuleRequest, updatedBy string) (*models.AccessControlRule, error)
	DeleteAccessControlRule(ctx context.Context, id, deletedBy string) error
}

// ViolationSource serves recorded denials, newest first.
type ViolationSource interface {
	GetViolations(limit int, ruleID string) []models.RateLimitViolation
}

// UsageSource serves per-endpoint request metrics.
type UsageSource interface {
	Query(endpoint string, from, to time.Time) []models.UsageMetric
}

type Handler struct {
	admin      AdminService
	violations ViolationSource
	usage      UsageSource
	logger     *slog.Logger
}

func New(admin AdminService, violations ViolationSource, usage UsageSource, logger *slog.Logger) *Handler {
	return &Handler{
		admin:      admin,
		violations: violations,
		usage:      usage,
		logger:     logger,
	}
}

func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/rate-limits/rules", h.HandleCreateRateLimitRule)
	r.Get("/admin/rate-limits/rules", h.HandleListRateLimitRules)
	r.Get("/admin/rate-limits/rules/{id}", h.HandleGetRateLimitRule)
	r.Patch("/admin/rate-limits/rules/{id}", h.HandleUpdateRateLimitRule)
	r.Delete("/admin/rate-limits/rules/{id}", h.HandleDeleteRateLimitRule)

	r.Post("/admin/access-control/rules", h.HandleCreateAccessControlRule)
	r.Get("/admin/access-control/rules", h.HandleListAccessControlRules)
	r.Get("/admin/access-control/rules/{id}", h.HandleGetAccessControlRule)
	r.Patch("/admin/access-control/rules/{id}", h.HandleUpdateAccessControlRule)
	r.Delete("/admin/access-control/rules/{id}", h.HandleDeleteAccessControlRule)

	r.Get("/admin/rate-limits/violations", h.HandleListViolations)
	r.Get("/admin/usage", h.HandleUsageMetrics)
}

// HandleCreateRateLimitRule implements POST /admin/rate-limits/rules.
func (h *Handler) HandleCreateRateLimitRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := platform.GetRequestID(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	req, ok := httputil.DecodeJSON[models.CreateRateLimitRuleRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	rule, err := h.admin.CreateRateLimitRule(ctx, req, platform.GetAdminUser(ctx))
	if err != nil {
		h.logger.WarnContext(ctx, "failed to create rate limit rule",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, rule)
}

// HandleListRateLimitRules implements GET /admin/rate-limits/rules.
// Optional ?enabled=true|false filters by the flag.
func (h *Handler) HandleListRateLimitRules(w http.ResponseWriter, r *http.Request) {
	enabled, err := parseEnabledFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.admin.ListRateLimitRules(enabled))
}

// HandleGetRateLimitRule implements GET /admin/rate-limits/rules/{id}.
func (h *Handler) HandleGetRateLimitRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.admin.GetRateLimitRule(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rule)
}

// HandleUpdateRateLimitRule implements PATCH /admin/rate-limits/rules/{id}.
func (h *Handler) HandleUpdateRateLimitRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := platform.GetRequestID(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	req, ok := httputil.DecodeJSON[models.UpdateRateLimitRuleRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	rule, err := h.admin.UpdateRateLimitRule(ctx, chi.URLParam(r, "id"), req, platform.GetAdminUser(ctx))
	if err != nil {
		h.logger.WarnContext(ctx, "failed to update rate limit rule",
			"error", err,
			"rule_id", chi.URLParam(r, "id"),
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rule)
}

// HandleDeleteRateLimitRule implements DELETE /admin/rate-limits/rules/{id}.
func (h *Handler) HandleDeleteRateLimitRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.admin.DeleteRateLimitRule(ctx, chi.URLParam(r, "id"), platform.GetAdminUser(ctx)); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleCreateAccessControlRule implements POST /admin/access-control/rules.
func (h *Handler) HandleCreateAccessControlRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := platform.GetRequestID(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	req, ok := httputil.DecodeJSON[models.CreateAccessControlRuleRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	rule, err := h.admin.CreateAccessControlRule(ctx, req, platform.GetAdminUser(ctx))
	if err != nil {
		h.logger.WarnContext(ctx, "failed to create access control rule",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, rule)
}

// HandleListAccessControlRules implements GET /admin/access-control/rules.
// Optional ?enabled=true|false filters by the flag.
func (h *Handler) HandleListAccessControlRules(w http.ResponseWriter, r *http.Request) {
	enabled, err := parseEnabledFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.admin.ListAccessControlRules(enabled))
}

// HandleGetAccessControlRule implements GET /admin/access-control/rules/{id}.
func (h *Handler) HandleGetAccessControlRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.admin.GetAccessControlRule(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rule)
}

// HandleUpdateAccessControlRule implements PATCH /admin/access-control/rules/{id}.
func (h *Handler) HandleUpdateAccessControlRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := platform.GetRequestID(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	req, ok := httputil.DecodeJSON[models.UpdateAccessControlRuleRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	rule, err := h.admin.UpdateAccessControlRule(ctx, chi.URLParam(r, "id"), req, platform.GetAdminUser(ctx))
	if err != nil {
		h.logger.WarnContext(ctx, "failed to update access control rule",
			"error", err,
			"rule_id", chi.URLParam(r, "id"),
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rule)
}

// HandleDeleteAccessControlRule implements DELETE /admin/access-control/rules/{id}.
func (h *Handler) HandleDeleteAccessControlRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.admin.DeleteAccessControlRule(ctx, chi.URLParam(r, "id"), platform.GetAdminUser(ctx)); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleListViolations implements GET /admin/rate-limits/violations.
// Optional ?limit= caps the result, ?rule_id= filters by rule. Newest first.
func (h *Handler) HandleListViolations(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a non-negative integer"))
			return
		}
		limit = parsed
	}
	httputil.WriteJSON(w, http.StatusOK, h.violations.GetViolations(limit, r.URL.Query().Get("rule_id")))
}

// HandleUsageMetrics implements GET /admin/usage.
// Optional ?endpoint= filters by endpoint; ?from=/?to= take RFC 3339 and
// default to the last hour.
func (h *Handler) HandleUsageMetrics(w http.ResponseWriter, r *http.Request) {
	to := time.Now()
	from := to.Add(-time.Hour)

	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "from must be RFC 3339"))
			return
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "to must be RFC 3339"))
			return
		}
		to = parsed
	}
	if to.Before(from) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "to must not precede from"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, h.usage.Query(r.URL.Query().Get("endpoint"), from, to))
}

func parseEnabledFilter(r *http.Request) (*bool, error) {
	raw := r.URL.Query().Get("enabled")
	if raw == "" {
		return nil, nil
	}
	enabled, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "enabled must be true or false")
	}
	return &enabled, nil
}
