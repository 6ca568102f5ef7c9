// Package match compiles rule endpoint patterns into anchored matchers.
//
// Pattern grammar: "*" alone matches every path; within a pattern "*"
// matches any suffix and a ":param" segment matches exactly one non-empty
// path segment. Matching is case-sensitive and covers the full path, never
// a prefix.
package match

import (
	"regexp"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Matcher caches compiled patterns by their source string. Compilation is
// deduplicated across goroutines so a burst of first requests against a new
// rule compiles its pattern once.
type Matcher struct {
	mu       sync.RWMutex
	compiled map[string]*regexp.Regexp
	group    singleflight.Group
}

func New() *Matcher {
	return &Matcher{
		compiled: make(map[string]*regexp.Regexp),
	}
}

// Matches reports whether path satisfies pattern. Invalid patterns never
// match and never panic; the evaluator treats them as non-applicable.
func (m *Matcher) Matches(pattern, path string) bool {
	if pattern == "*" {
		return true
	}

	re, err := m.compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(path)
}

func (m *Matcher) compile(pattern string) (*regexp.Regexp, error) {
	m.mu.RLock()
	re, ok := m.compiled[pattern]
	m.mu.RUnlock()
	if ok {
		return re, nil
	}

	v, err, _ := m.group.Do(pattern, func() (any, error) {
		re, err := regexp.Compile(translate(pattern))
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.compiled[pattern] = re
		m.mu.Unlock()
		return re, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*regexp.Regexp), nil
}

// translate converts the pattern grammar to an anchored regular expression.
// Literal runes are quoted so dots and parens in paths stay literal.
func translate(pattern string) string {
	var b strings.Builder
	b.WriteString("^")

	segments := strings.Split(pattern, "/")
	for i, seg := range segments {
		if i > 0 {
			b.WriteString("/")
		}
		switch {
		case strings.HasPrefix(seg, ":") && len(seg) > 1:
			// One non-empty path segment
			b.WriteString("[^/]+")
		case strings.Contains(seg, "*"):
			// "*" inside a segment matches any suffix
			parts := strings.Split(seg, "*")
			for j, part := range parts {
				if j > 0 {
					b.WriteString(".*")
				}
				b.WriteString(regexp.QuoteMeta(part))
			}
		default:
			b.WriteString(regexp.QuoteMeta(seg))
		}
	}

	b.WriteString("$")
	return b.String()
}
