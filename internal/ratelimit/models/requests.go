package models

import (
	"strings"
	"time"

	dErrors "faregate/pkg/domain-errors"
)

const (
	maxNameLength    = 255
	maxPatternLength = 1024
	maxValueLength   = 512
	maxValues        = 1000
)

type CreateRateLimitRuleRequest struct {
	Name                   string `json:"name"`
	EndpointPattern        string `json:"endpoint_pattern"`
	Method                 string `json:"method"`
	Limit                  int    `json:"limit"`
	WindowMs               int64  `json:"window_ms"`
	SkipSuccessfulRequests bool   `json:"skip_successful_requests"`
	SkipFailedRequests     bool   `json:"skip_failed_requests"`
	KeyGenerator           string `json:"key_generator"`
	Priority               int    `json:"priority"`
	Enabled                *bool  `json:"enabled,omitempty"` // default true
}

func (r *CreateRateLimitRuleRequest) Normalize() {
	if r == nil {
		return
	}
	r.Name = strings.TrimSpace(r.Name)
	r.EndpointPattern = strings.TrimSpace(r.EndpointPattern)
	r.Method = strings.ToUpper(strings.TrimSpace(r.Method))
	r.KeyGenerator = strings.TrimSpace(strings.ToLower(r.KeyGenerator))
	if r.Method == "" {
		r.Method = string(MethodAny)
	}
	if r.KeyGenerator == "" {
		r.KeyGenerator = string(KeyByIP)
	}
}

// Follows validation order: Size -> Required -> Syntax -> Semantic.
func (r *CreateRateLimitRuleRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}

	// Phase 1: Size checks
	if len(r.Name) > maxNameLength {
		return dErrors.New(dErrors.CodeValidation, "name must be 255 characters or less")
	}
	if len(r.EndpointPattern) > maxPatternLength {
		return dErrors.New(dErrors.CodeValidation, "endpoint_pattern must be 1024 characters or less")
	}

	// Phase 2: Required fields
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if r.EndpointPattern == "" {
		return dErrors.New(dErrors.CodeValidation, "endpoint_pattern is required")
	}

	// Phase 3: Syntax validation
	if !Method(r.Method).IsValid() {
		return dErrors.New(dErrors.CodeValidation, "method must be GET, POST, PUT, DELETE, PATCH or *")
	}
	if !KeyGenerator(r.KeyGenerator).IsValid() {
		return dErrors.New(dErrors.CodeValidation, "key_generator must be ip, user, api_key or custom")
	}

	// Phase 4: Semantic validation
	if r.Limit <= 0 {
		return dErrors.New(dErrors.CodeValidation, "limit must be positive")
	}
	if r.WindowMs <= 0 {
		return dErrors.New(dErrors.CodeValidation, "window_ms must be positive")
	}

	return nil
}

// UpdateRateLimitRuleRequest carries a partial update; nil fields are untouched.
type UpdateRateLimitRuleRequest struct {
	Name                   *string `json:"name,omitempty"`
	EndpointPattern        *string `json:"endpoint_pattern,omitempty"`
	Method                 *string `json:"method,omitempty"`
	Limit                  *int    `json:"limit,omitempty"`
	WindowMs               *int64  `json:"window_ms,omitempty"`
	SkipSuccessfulRequests *bool   `json:"skip_successful_requests,omitempty"`
	SkipFailedRequests     *bool   `json:"skip_failed_requests,omitempty"`
	KeyGenerator           *string `json:"key_generator,omitempty"`
	Priority               *int    `json:"priority,omitempty"`
	Enabled                *bool   `json:"enabled,omitempty"`
}

func (r *UpdateRateLimitRuleRequest) Normalize() {
	if r == nil {
		return
	}
	if r.Name != nil {
		*r.Name = strings.TrimSpace(*r.Name)
	}
	if r.EndpointPattern != nil {
		*r.EndpointPattern = strings.TrimSpace(*r.EndpointPattern)
	}
	if r.Method != nil {
		*r.Method = strings.ToUpper(strings.TrimSpace(*r.Method))
	}
	if r.KeyGenerator != nil {
		*r.KeyGenerator = strings.TrimSpace(strings.ToLower(*r.KeyGenerator))
	}
}

func (r *UpdateRateLimitRuleRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.Name != nil && (*r.Name == "" || len(*r.Name) > maxNameLength) {
		return dErrors.New(dErrors.CodeValidation, "name must be 1-255 characters")
	}
	if r.EndpointPattern != nil && (*r.EndpointPattern == "" || len(*r.EndpointPattern) > maxPatternLength) {
		return dErrors.New(dErrors.CodeValidation, "endpoint_pattern must be 1-1024 characters")
	}
	if r.Method != nil && !Method(*r.Method).IsValid() {
		return dErrors.New(dErrors.CodeValidation, "method must be GET, POST, PUT, DELETE, PATCH or *")
	}
	if r.KeyGenerator != nil && !KeyGenerator(*r.KeyGenerator).IsValid() {
		return dErrors.New(dErrors.CodeValidation, "key_generator must be ip, user, api_key or custom")
	}
	if r.Limit != nil && *r.Limit <= 0 {
		return dErrors.New(dErrors.CodeValidation, "limit must be positive")
	}
	if r.WindowMs != nil && *r.WindowMs <= 0 {
		return dErrors.New(dErrors.CodeValidation, "window_ms must be positive")
	}
	return nil
}

// Apply copies the non-nil fields onto the rule and stamps the update.
func (r *UpdateRateLimitRuleRequest) Apply(rule *RateLimitRule, updatedBy string, now time.Time) {
	if r.Name != nil {
		rule.Name = *r.Name
	}
	if r.EndpointPattern != nil {
		rule.EndpointPattern = *r.EndpointPattern
	}
	if r.Method != nil {
		rule.Method = Method(*r.Method)
	}
	if r.Limit != nil {
		rule.Limit = *r.Limit
	}
	if r.WindowMs != nil {
		rule.WindowMs = *r.WindowMs
	}
	if r.SkipSuccessfulRequests != nil {
		rule.SkipSuccessfulRequests = *r.SkipSuccessfulRequests
	}
	if r.SkipFailedRequests != nil {
		rule.SkipFailedRequests = *r.SkipFailedRequests
	}
	if r.KeyGenerator != nil {
		rule.KeyGenerator = KeyGenerator(*r.KeyGenerator)
	}
	if r.Priority != nil {
		rule.Priority = *r.Priority
	}
	if r.Enabled != nil {
		rule.Enabled = *r.Enabled
	}
	rule.UpdatedBy = updatedBy
	rule.UpdatedAt = now
}

type CreateAccessControlRuleRequest struct {
	Name      string     `json:"name"`
	Type      string     `json:"type"`
	Target    string     `json:"target"`
	Values    []string   `json:"values"`
	Endpoints []string   `json:"endpoints,omitempty"`
	Methods   []string   `json:"methods,omitempty"`
	Enabled   *bool      `json:"enabled,omitempty"` // default true
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (r *CreateAccessControlRuleRequest) Normalize() {
	if r == nil {
		return
	}
	r.Name = strings.TrimSpace(r.Name)
	r.Type = strings.TrimSpace(strings.ToLower(r.Type))
	r.Target = strings.TrimSpace(strings.ToLower(r.Target))
	for i, v := range r.Values {
		r.Values[i] = strings.TrimSpace(v)
	}
	for i, e := range r.Endpoints {
		r.Endpoints[i] = strings.TrimSpace(e)
	}
	for i, m := range r.Methods {
		r.Methods[i] = strings.ToUpper(strings.TrimSpace(m))
	}
}

// Follows validation order: Size -> Required -> Syntax -> Semantic.
func (r *CreateAccessControlRuleRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}

	// Phase 1: Size checks
	if len(r.Name) > maxNameLength {
		return dErrors.New(dErrors.CodeValidation, "name must be 255 characters or less")
	}
	if len(r.Values) > maxValues {
		return dErrors.New(dErrors.CodeValidation, "too many values")
	}
	for _, v := range r.Values {
		if len(v) > maxValueLength {
			return dErrors.New(dErrors.CodeValidation, "value must be 512 characters or less")
		}
	}

	// Phase 2: Required fields
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if len(r.Values) == 0 {
		return dErrors.New(dErrors.CodeValidation, "values are required")
	}

	// Phase 3: Syntax validation
	if !AccessListType(r.Type).IsValid() {
		return dErrors.New(dErrors.CodeValidation, "type must be 'whitelist' or 'blacklist'")
	}
	if !AccessTarget(r.Target).IsValid() {
		return dErrors.New(dErrors.CodeValidation, "target must be ip, user, api_key, user_agent or country")
	}
	for _, m := range r.Methods {
		if !Method(m).IsValid() {
			return dErrors.New(dErrors.CodeValidation, "methods must be GET, POST, PUT, DELETE, PATCH or *")
		}
	}

	// Phase 4: Semantic validation
	for _, v := range r.Values {
		if v == "" {
			return dErrors.New(dErrors.CodeValidation, "values cannot contain empty strings")
		}
	}

	return nil
}

// UpdateAccessControlRuleRequest carries a partial update; nil fields are untouched.
type UpdateAccessControlRuleRequest struct {
	Name      *string    `json:"name,omitempty"`
	Type      *string    `json:"type,omitempty"`
	Target    *string    `json:"target,omitempty"`
	Values    *[]string  `json:"values,omitempty"`
	Endpoints *[]string  `json:"endpoints,omitempty"`
	Methods   *[]string  `json:"methods,omitempty"`
	Enabled   *bool      `json:"enabled,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (r *UpdateAccessControlRuleRequest) Normalize() {
	if r == nil {
		return
	}
	if r.Name != nil {
		*r.Name = strings.TrimSpace(*r.Name)
	}
	if r.Type != nil {
		*r.Type = strings.TrimSpace(strings.ToLower(*r.Type))
	}
	if r.Target != nil {
		*r.Target = strings.TrimSpace(strings.ToLower(*r.Target))
	}
	if r.Methods != nil {
		for i, m := range *r.Methods {
			(*r.Methods)[i] = strings.ToUpper(strings.TrimSpace(m))
		}
	}
}

func (r *UpdateAccessControlRuleRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.Name != nil && (*r.Name == "" || len(*r.Name) > maxNameLength) {
		return dErrors.New(dErrors.CodeValidation, "name must be 1-255 characters")
	}
	if r.Type != nil && !AccessListType(*r.Type).IsValid() {
		return dErrors.New(dErrors.CodeValidation, "type must be 'whitelist' or 'blacklist'")
	}
	if r.Target != nil && !AccessTarget(*r.Target).IsValid() {
		return dErrors.New(dErrors.CodeValidation, "target must be ip, user, api_key, user_agent or country")
	}
	if r.Values != nil {
		if len(*r.Values) == 0 || len(*r.Values) > maxValues {
			return dErrors.New(dErrors.CodeValidation, "values must contain 1-1000 entries")
		}
		for _, v := range *r.Values {
			if v == "" || len(v) > maxValueLength {
				return dErrors.New(dErrors.CodeValidation, "values must be 1-512 characters")
			}
		}
	}
	if r.Methods != nil {
		for _, m := range *r.Methods {
			if !Method(m).IsValid() {
				return dErrors.New(dErrors.CodeValidation, "methods must be GET, POST, PUT, DELETE, PATCH or *")
			}
		}
	}
	return nil
}

// Apply copies the non-nil fields onto the rule and stamps the update.
func (r *UpdateAccessControlRuleRequest) Apply(rule *AccessControlRule, updatedBy string, now time.Time) {
	if r.Name != nil {
		rule.Name = *r.Name
	}
	if r.Type != nil {
		rule.Type = AccessListType(*r.Type)
	}
	if r.Target != nil {
		rule.Target = AccessTarget(*r.Target)
	}
	if r.Values != nil {
		rule.Values = *r.Values
	}
	if r.Endpoints != nil {
		rule.Endpoints = *r.Endpoints
	}
	if r.Methods != nil {
		methods := make([]Method, 0, len(*r.Methods))
		for _, m := range *r.Methods {
			methods = append(methods, Method(m))
		}
		rule.Methods = methods
	}
	if r.Enabled != nil {
		rule.Enabled = *r.Enabled
	}
	if r.ExpiresAt != nil {
		rule.ExpiresAt = r.ExpiresAt
	}
	rule.UpdatedBy = updatedBy
	rule.UpdatedAt = now
}
