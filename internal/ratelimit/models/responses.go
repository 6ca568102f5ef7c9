package models

import "time"

type RateLimitExceededResponse struct {
	Error      string    `json:"error"` // "rate_limit_exceeded"
	Message    string    `json:"message"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after"` // seconds
}

// ForbiddenResponse deliberately carries no rule internals; the deny reason
// stays in logs and audit events only.
type ForbiddenResponse struct {
	Error   string `json:"error"` // "forbidden"
	Message string `json:"message"`
}

type UsageMetric struct {
	Endpoint    string    `json:"endpoint"`
	WindowStart time.Time `json:"window_start"`
	Requests    int64     `json:"requests"`
	Denied      int64     `json:"denied"`
}
