// Package observability provides audit logging helpers for the ratelimit module.
package observability

import (
	"context"
	"log/slog"

	"faregate/internal/platform/middleware"
	"faregate/pkg/platform/audit"
)

// AuditPublisher emits audit events for security-relevant operations.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// LogAudit is a shared helper for logging audit events across the engine.
// It logs to both the structured logger and the audit publisher if available.
// It must never block or fail the caller: publisher errors are logged and
// swallowed since this runs on the hot denial path.
func LogAudit(ctx context.Context, logger *slog.Logger, publisher AuditPublisher, event audit.Event, attrs ...any) {
	requestID := middleware.GetRequestID(ctx)
	if requestID != "" {
		event.RequestID = requestID
		attrs = append(attrs, "request_id", requestID)
	}

	args := append(attrs, "event", event.Action, "log_type", "audit")
	if logger != nil {
		logger.InfoContext(ctx, event.Action, args...)
	}

	if publisher == nil {
		return
	}
	if err := publisher.Emit(ctx, event); err != nil && logger != nil {
		logger.WarnContext(ctx, "failed to emit audit event", "event", event.Action, "error", err)
	}
}
