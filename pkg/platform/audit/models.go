package audit

import "time"

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp time.Time
	Action    string
	Subject   string // derived key, identifier, or rule id the action concerns
	RuleID    string
	Endpoint  string
	Method    string
	Decision  string // "allowed" or "denied" for evaluation events
	Reason    string
	Actor     string // admin user id for rule-management events
	RequestID string // correlation ID from HTTP request context
}

const (
	EventRateLimitExceeded    = "rate_limit_exceeded"
	EventAccessDenied         = "access_control_denied"
	EventRateLimitRuleCreated = "rate_limit_rule_created"
	EventRateLimitRuleUpdated = "rate_limit_rule_updated"
	EventRateLimitRuleDeleted = "rate_limit_rule_deleted"
	EventAccessRuleCreated    = "access_control_rule_created"
	EventAccessRuleUpdated    = "access_control_rule_updated"
	EventAccessRuleDeleted    = "access_control_rule_deleted"
)
