package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"
)

// Input validation and sanitization utilities

var (
	tenantPattern     = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	reviewIDPattern   = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	engagementPattern = regexp.MustCompile(`^[a-zA-Z0-9._:-]{1,128}$`)
)

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	// Remove control characters
	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}

// ValidateTenantID validates tenant ID format
func ValidateTenantID(tenant string) error {
	if tenant == "" {
		return fmt.Errorf("tenant ID cannot be empty")
	}
	if !tenantPattern.MatchString(tenant) {
		return fmt.Errorf("invalid tenant ID format (alphanumeric, dash, underscore only, max 64 chars)")
	}
	return nil
}

// ValidateReviewID checks the shape of a review id from the URL.
func ValidateReviewID(id string) error {
	if !reviewIDPattern.MatchString(id) {
		return fmt.Errorf("invalid review ID format")
	}
	return nil
}

// ValidateEngagementRef accepts the reference formats engagement systems
// hand out: letters, digits and . _ : -
func ValidateEngagementRef(ref string) error {
	if ref == "" {
		return fmt.Errorf("engagement reference cannot be empty")
	}
	if !engagementPattern.MatchString(ref) || strings.Contains(ref, "..") {
		return fmt.Errorf("invalid engagement reference format")
	}
	return nil
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20 // default
	}
	if limit > 100 {
		return 100 // max limit
	}
	return limit
}

const clientIPKey contextKey = "client_ip"

// ResolveClientIP decides once per request which address the caller has.
// Forwarding headers are only honoured when trustProxy is set, otherwise any
// caller could pick the address stored on snapshots and the rate-limit key.
func ResolveClientIP(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := peerIP(r)
			if trustProxy {
				if fwd := forwardedIP(r); fwd != "" {
					ip = fwd
				}
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientIPKey, ip)))
		})
	}
}

// ClientIP returns the address picked by ResolveClientIP, or the socket peer
// when that middleware did not run.
func ClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPKey).(string); ok && ip != "" {
		return ip
	}
	return peerIP(r)
}

// forwardedIP prefers the first X-Forwarded-For hop, then X-Real-IP.
func forwardedIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if xr := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xr) != nil {
		return xr
	}
	return ""
}

func peerIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
