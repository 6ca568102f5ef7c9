package middleware

import (
	"context"
	"net/http"
	"net/netip"
	"strings"

	"github.com/mssola/useragent"
)

// MaxXFFHeaderLength is the maximum allowed length for X-Forwarded-For header
// to prevent header injection attacks.
const MaxXFFHeaderLength = 500

// ClientMetadata is the per-request identity surface the engine keys on.
// UserID, APIKey and Country arrive as headers set by the upstream gateway
// after it has done its own authentication; the engine only consumes them.
type ClientMetadata struct {
	IPAddress string
	UserID    string
	APIKey    string
	UserAgent string
	Country   string
	Browser   string
	Bot       bool
}

// MetadataConfig holds configuration for the metadata middleware.
type MetadataConfig struct {
	// TrustedProxies is a list of IP prefixes (CIDR notation) that are trusted
	// to set X-Forwarded-For headers. If empty, XFF is never trusted.
	TrustedProxies []netip.Prefix
}

// Metadata handles client metadata extraction with configurable trusted proxies.
type Metadata struct {
	config MetadataConfig
}

// NewMetadata creates a new metadata middleware with the given config.
func NewMetadata(cfg MetadataConfig) *Metadata {
	return &Metadata{config: cfg}
}

// Handler extracts client IP, user agent, and gateway-supplied identity
// headers from the request and adds them to the context.
func (m *Metadata) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawUA := r.Header.Get("User-Agent")
		ua := useragent.New(rawUA)
		browser, _ := ua.Browser()

		meta := ClientMetadata{
			IPAddress: m.extractClientIP(r),
			UserID:    r.Header.Get("X-User-ID"),
			APIKey:    r.Header.Get("X-API-Key"),
			UserAgent: rawUA,
			Country:   r.Header.Get("CF-IPCountry"),
			Browser:   browser,
			Bot:       ua.Bot(),
		}

		ctx := context.WithValue(r.Context(), metadataKey{}, meta)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type metadataKey struct{}

// GetClientMetadata retrieves the client metadata from the context.
// Returns the zero value when the metadata middleware did not run.
func GetClientMetadata(ctx context.Context) ClientMetadata {
	if meta, ok := ctx.Value(metadataKey{}).(ClientMetadata); ok {
		return meta
	}
	return ClientMetadata{}
}

// GetClientIP retrieves the client IP address from the context.
func GetClientIP(ctx context.Context) string {
	return GetClientMetadata(ctx).IPAddress
}

// extractClientIP extracts the client IP with trusted proxy validation.
func (m *Metadata) extractClientIP(r *http.Request) string {
	// Parse RemoteAddr to get the direct connection IP
	remoteIP := parseRemoteAddr(r.RemoteAddr)
	if remoteIP == "" {
		return "unknown"
	}

	// Check X-Forwarded-For header
	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		// No XFF header, check X-Real-IP
		if xri := r.Header.Get("X-Real-IP"); xri != "" && m.isTrustedProxy(remoteIP) {
			if len(xri) <= MaxXFFHeaderLength {
				return strings.TrimSpace(xri)
			}
		}
		return remoteIP
	}

	// XFF header present - only trust if request came from trusted proxy
	if !m.isTrustedProxy(remoteIP) {
		return remoteIP
	}

	// Size limit to prevent header injection attacks
	if len(xff) > MaxXFFHeaderLength {
		return remoteIP
	}

	// Parse first IP in XFF chain (original client)
	var clientIP string
	if before, _, ok := strings.Cut(xff, ","); ok {
		clientIP = strings.TrimSpace(before)
	} else {
		clientIP = strings.TrimSpace(xff)
	}

	// Validate IP format
	if _, err := netip.ParseAddr(clientIP); err != nil {
		return remoteIP
	}

	return clientIP
}

// isTrustedProxy checks if the given IP is in the trusted proxy list.
func (m *Metadata) isTrustedProxy(ip string) bool {
	if len(m.config.TrustedProxies) == 0 {
		return false
	}

	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}

	for _, prefix := range m.config.TrustedProxies {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// parseRemoteAddr extracts the IP from RemoteAddr (strips port).
func parseRemoteAddr(remoteAddr string) string {
	if remoteAddr == "" {
		return ""
	}

	// Handle IPv6 with brackets: [::1]:port
	if strings.HasPrefix(remoteAddr, "[") {
		if idx := strings.LastIndex(remoteAddr, "]:"); idx != -1 {
			return remoteAddr[1:idx]
		}
		return strings.Trim(strings.Split(remoteAddr, "]:")[0], "[]")
	}

	// Handle IPv4: 127.0.0.1:port
	if idx := strings.LastIndex(remoteAddr, ":"); idx != -1 {
		return remoteAddr[:idx]
	}

	return remoteAddr
}
