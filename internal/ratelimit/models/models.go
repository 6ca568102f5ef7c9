package models

import (
	"time"

	dErrors "faregate/pkg/domain-errors"

	"github.com/google/uuid"
)

// Method is an HTTP method selector on a rule. "*" matches every method.
type Method string

const (
	MethodGet    Method = "GET"
	MethodPost   Method = "POST"
	MethodPut    Method = "PUT"
	MethodDelete Method = "DELETE"
	MethodPatch  Method = "PATCH"
	MethodAny    Method = "*"
)

func (m Method) IsValid() bool {
	switch m {
	case MethodGet, MethodPost, MethodPut, MethodDelete, MethodPatch, MethodAny:
		return true
	}
	return false
}

// Matches reports whether the rule's method selector applies to a request method.
func (m Method) Matches(requestMethod string) bool {
	return m == MethodAny || string(m) == requestMethod
}

// KeyGenerator determines which request attribute forms the counter key.
type KeyGenerator string

const (
	KeyByIP     KeyGenerator = "ip"
	KeyByUser   KeyGenerator = "user"
	KeyByAPIKey KeyGenerator = "api_key"
	KeyByCustom KeyGenerator = "custom"
)

func (g KeyGenerator) IsValid() bool {
	switch g {
	case KeyByIP, KeyByUser, KeyByAPIKey, KeyByCustom:
		return true
	}
	return false
}

// DeriveKey resolves the counter bucket identifier for a request.
// The user generator falls back to the IP address for anonymous callers;
// api_key and custom use the caller-supplied key verbatim.
func (g KeyGenerator) DeriveKey(callerKey string, meta RequestMeta) string {
	switch g {
	case KeyByIP:
		return meta.IPAddress
	case KeyByUser:
		if meta.UserID != "" {
			return meta.UserID
		}
		return meta.IPAddress
	case KeyByAPIKey, KeyByCustom:
		return callerKey
	}
	return callerKey
}

// RequestMeta carries the request attributes rules key on. The upstream
// gateway fills UserID, APIKey and Country; the engine never derives them.
type RequestMeta struct {
	IPAddress string `json:"ip_address"`
	UserID    string `json:"user_id,omitempty"`
	APIKey    string `json:"api_key,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Country   string `json:"country,omitempty"`
}

// RateLimitRule is a named admission policy counted against a fixed window.
type RateLimitRule struct {
	ID                     string       `json:"id"`
	Name                   string       `json:"name"`
	EndpointPattern        string       `json:"endpoint_pattern"`
	Method                 Method       `json:"method"`
	Limit                  int          `json:"limit"`
	WindowMs               int64        `json:"window_ms"`
	SkipSuccessfulRequests bool         `json:"skip_successful_requests"`
	SkipFailedRequests     bool         `json:"skip_failed_requests"`
	KeyGenerator           KeyGenerator `json:"key_generator"`
	Enabled                bool         `json:"enabled"`
	Priority               int          `json:"priority"`
	CreatedBy              string       `json:"created_by"`
	CreatedAt              time.Time    `json:"created_at"`
	UpdatedBy              string       `json:"updated_by,omitempty"`
	UpdatedAt              time.Time    `json:"updated_at"`
}

// NewRateLimitRule creates a RateLimitRule with domain invariant validation.
func NewRateLimitRule(name, endpointPattern string, method Method, limit int, windowMs int64, keyGen KeyGenerator, createdBy string, now time.Time) (*RateLimitRule, error) {
	if endpointPattern == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "endpoint pattern cannot be empty")
	}
	if !method.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid method")
	}
	if limit <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "limit must be positive")
	}
	if windowMs <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "window_ms must be positive")
	}
	if !keyGen.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid key generator")
	}

	return &RateLimitRule{
		ID:              uuid.NewString(),
		Name:            name,
		EndpointPattern: endpointPattern,
		Method:          method,
		Limit:           limit,
		WindowMs:        windowMs,
		KeyGenerator:    keyGen,
		Enabled:         true,
		CreatedBy:       createdBy,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// AccessListType distinguishes allow lists from deny lists.
type AccessListType string

const (
	ListTypeWhitelist AccessListType = "whitelist"
	ListTypeBlacklist AccessListType = "blacklist"
)

func (t AccessListType) IsValid() bool {
	return t == ListTypeWhitelist || t == ListTypeBlacklist
}

// AccessTarget selects which request attribute an access rule matches on.
type AccessTarget string

const (
	TargetIP        AccessTarget = "ip"
	TargetUser      AccessTarget = "user"
	TargetAPIKey    AccessTarget = "api_key"
	TargetUserAgent AccessTarget = "user_agent"
	TargetCountry   AccessTarget = "country"
)

func (t AccessTarget) IsValid() bool {
	switch t {
	case TargetIP, TargetUser, TargetAPIKey, TargetUserAgent, TargetCountry:
		return true
	}
	return false
}

// ValueFrom extracts the matched attribute from request metadata.
// The second return is false when the attribute is absent, in which case
// the rule is skipped rather than treated as a mismatch.
func (t AccessTarget) ValueFrom(meta RequestMeta) (string, bool) {
	var v string
	switch t {
	case TargetIP:
		v = meta.IPAddress
	case TargetUser:
		v = meta.UserID
	case TargetAPIKey:
		v = meta.APIKey
	case TargetUserAgent:
		v = meta.UserAgent
	case TargetCountry:
		v = meta.Country
	}
	return v, v != ""
}

// AccessControlRule is a named allow/deny list matched against one request attribute.
type AccessControlRule struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Type      AccessListType `json:"type"`
	Target    AccessTarget   `json:"target"`
	Values    []string       `json:"values"`
	Endpoints []string       `json:"endpoints"` // empty = all endpoints
	Methods   []Method       `json:"methods"`   // empty = all methods
	Enabled   bool           `json:"enabled"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
	CreatedBy string         `json:"created_by"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedBy string         `json:"updated_by,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NewAccessControlRule creates an AccessControlRule with domain invariant validation.
func NewAccessControlRule(name string, listType AccessListType, target AccessTarget, values []string, createdBy string, now time.Time) (*AccessControlRule, error) {
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "name cannot be empty")
	}
	if !listType.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "type must be 'whitelist' or 'blacklist'")
	}
	if !target.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid target")
	}
	if len(values) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "values cannot be empty")
	}

	return &AccessControlRule{
		ID:        uuid.NewString(),
		Name:      name,
		Type:      listType,
		Target:    target,
		Values:    values,
		Enabled:   true,
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// IsExpired reports whether the rule has passed its optional expiry.
// Expired rules are excluded from evaluation but not deleted.
func (r *AccessControlRule) IsExpired(now time.Time) bool {
	if r.ExpiresAt == nil {
		return false
	}
	return now.After(*r.ExpiresAt)
}

// HasValue reports whether v is in the rule's value set. Matching is exact
// and case-sensitive.
func (r *AccessControlRule) HasValue(v string) bool {
	for _, candidate := range r.Values {
		if candidate == v {
			return true
		}
	}
	return false
}

// MethodApplies reports whether the rule covers the request method.
// An empty method list covers everything.
func (r *AccessControlRule) MethodApplies(requestMethod string) bool {
	if len(r.Methods) == 0 {
		return true
	}
	for _, m := range r.Methods {
		if m.Matches(requestMethod) {
			return true
		}
	}
	return false
}

// RateLimitViolation is an immutable record of one denied attempt.
type RateLimitViolation struct {
	ID          string      `json:"id"`
	RuleID      string      `json:"rule_id"`
	RuleName    string      `json:"rule_name"`
	Key         string      `json:"key"`
	Endpoint    string      `json:"endpoint"`
	Method      string      `json:"method"`
	Limit       int         `json:"limit"`
	Attempts    int64       `json:"attempts"`
	WindowStart time.Time   `json:"window_start"`
	WindowEnd   time.Time   `json:"window_end"`
	Meta        RequestMeta `json:"meta"`
	OccurredAt  time.Time   `json:"occurred_at"`
}

// Unlimited marks the limit/remaining fields of a decision when no rule applies.
const Unlimited = -1

// RateLimitDecision is the outcome of a checkRateLimit evaluation.
type RateLimitDecision struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when not allowed
}

// AllowUnlimited is the decision when no enabled rule applies to a request.
func AllowUnlimited(now time.Time) RateLimitDecision {
	return RateLimitDecision{
		Allowed:   true,
		Limit:     Unlimited,
		Remaining: Unlimited,
		ResetAt:   now,
	}
}

// AccessDecision is the outcome of a checkAccessControl evaluation.
// Reason names the denying rule for operator logs; the HTTP layer must not
// echo it to the rejected caller.
type AccessDecision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	RuleID  string `json:"rule_id,omitempty"`
}

// WindowBounds returns the fixed window containing now, aligned to epoch
// boundaries: start = floor(nowMs/windowMs)*windowMs.
func WindowBounds(now time.Time, windowMs int64) (start, end time.Time) {
	startMs := now.UnixMilli() / windowMs * windowMs
	return time.UnixMilli(startMs), time.UnixMilli(startMs + windowMs)
}
