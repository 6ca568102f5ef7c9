package models

import (
	"fmt"
	"strings"
)

// CounterKeyPrefix namespaces all window counters in the shared store.
const CounterKeyPrefix = "rateLimit"

// CounterKey builds the store key for one rule, caller, and window:
// rateLimit:{ruleID}:{derivedKey}:{windowStartMs}. Segments are sanitized
// so user-controlled identifiers cannot collide across buckets.
func CounterKey(ruleID, derivedKey string, windowStartMs int64) string {
	return fmt.Sprintf("%s:%s:%s:%d",
		CounterKeyPrefix,
		SanitizeKeySegment(ruleID),
		SanitizeKeySegment(derivedKey),
		windowStartMs,
	)
}

// RuleCacheKey is the write-through cache key for a rule, shared with
// sibling processes reading the external store.
func RuleCacheKey(kind, ruleID string) string {
	return fmt.Sprintf("%s:rule:%s", kind, ruleID)
}

// SanitizeKeySegment escapes delimiter characters in counter key segments
// to prevent key collision attacks where user-controlled identifiers
// containing ':' could manipulate adjacent counter buckets.
//
// Escape rules (order matters):
//  1. Escape '_' to '__' (escape the escape character first)
//  2. Escape ':' to '_c' (escape the delimiter)
//
// This ensures no two distinct inputs produce the same sanitized output.
func SanitizeKeySegment(s string) string {
	// Order matters: escape the escape character first
	s = strings.ReplaceAll(s, "_", "__")
	s = strings.ReplaceAll(s, ":", "_c")
	return s
}
