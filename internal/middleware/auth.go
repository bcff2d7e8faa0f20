package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/bryanwahyu/auditportal/internal/domain/reviews"
)

type contextKey string

const (
	TenantKey contextKey = "tenant"
	ActorKey  contextKey = "actor"
)

// Actor headers set by the portal's identity proxy after it authenticated
// the user.
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserRole  = "X-User-Role"
	HeaderUserEmail = "X-User-Email"
)

// publicPaths bypass authentication.
var publicPaths = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
	"/livez":   true,
	"/metrics": true,
}

// APIKeyAuth validates API key from Authorization header and binds the
// tenant it belongs to. validKeys maps tenant -> key.
func APIKeyAuth(validKeys map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing Authorization header")
				return
			}

			// Support both "Bearer <key>" and "<key>" formats
			apiKey := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			if apiKey == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid Authorization header format")
				return
			}

			// constant-time comparison, no early exit
			var tenant string
			for t, key := range validKeys {
				if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
					tenant = t
				}
			}
			if tenant == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid API key")
				return
			}

			noteRequest(r.Context(), func(i *requestInfo) { i.tenant = tenant })
			ctx := context.WithValue(r.Context(), TenantKey, tenant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorFromHeaders reads the acting user. Requests without X-User-ID carry an
// empty actor, which every permission check rejects.
func ActorFromHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := reviews.Actor{
			ID:    SanitizeString(r.Header.Get(HeaderUserID)),
			Role:  strings.ToLower(SanitizeString(r.Header.Get(HeaderUserRole))),
			Email: SanitizeString(r.Header.Get(HeaderUserEmail)),
		}
		noteRequest(r.Context(), func(i *requestInfo) { i.actor = actor.ID })
		ctx := context.WithValue(r.Context(), ActorKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetTenantFromContext extracts tenant from context
func GetTenantFromContext(ctx context.Context) string {
	if tenant, ok := ctx.Value(TenantKey).(string); ok {
		return tenant
	}
	return ""
}

// GetActorFromContext returns the zero Actor when none was bound.
func GetActorFromContext(ctx context.Context) reviews.Actor {
	if a, ok := ctx.Value(ActorKey).(reviews.Actor); ok {
		return a
	}
	return reviews.Actor{}
}

// WithTenant binds a tenant without going through APIKeyAuth.
func WithTenant(ctx context.Context, tenant string) context.Context {
	return context.WithValue(ctx, TenantKey, tenant)
}
