package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/bryanwahyu/auditportal/internal/logger"
)

func echoTenantActor(w http.ResponseWriter, r *http.Request) {
	a := GetActorFromContext(r.Context())
	WriteJSON(w, http.StatusOK, map[string]string{
		"tenant": GetTenantFromContext(r.Context()),
		"actor":  a.ID,
		"role":   a.Role,
	})
}

func TestAPIKeyAuth(t *testing.T) {
	h := APIKeyAuth(map[string]string{"acme": "k-acme", "globex": "k-globex"})(ActorFromHeaders(http.HandlerFunc(echoTenantActor)))

	cases := []struct {
		name   string
		path   string
		auth   string
		status int
		tenant string
	}{
		{name: "missing header", path: "/v1/acme/reviews", status: http.StatusUnauthorized},
		{name: "wrong key", path: "/v1/acme/reviews", auth: "Bearer nope", status: http.StatusUnauthorized},
		{name: "bearer key", path: "/v1/acme/reviews", auth: "Bearer k-acme", status: http.StatusOK, tenant: "acme"},
		{name: "bare key", path: "/v1/globex/reviews", auth: "k-globex", status: http.StatusOK, tenant: "globex"},
		{name: "public path", path: "/livez", status: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.auth != "" {
				req.Header.Set("Authorization", tc.auth)
			}
			req.Header.Set(HeaderUserID, "alice")
			req.Header.Set(HeaderUserRole, "Admin")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.status, rec.Body.String())
			}
			if tc.status != http.StatusOK {
				var body ErrorBody
				if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Code != "unauthorized" {
					t.Fatalf("error body = %s", rec.Body.String())
				}
				return
			}
			var got map[string]string
			_ = json.Unmarshal(rec.Body.Bytes(), &got)
			if got["tenant"] != tc.tenant || got["actor"] != "alice" || got["role"] != "admin" {
				t.Fatalf("context = %v", got)
			}
		})
	}
}

func TestRateLimitPerActor(t *testing.T) {
	limiter := NewRateLimiter(2, 0)
	defer limiter.Close()
	h := ActorFromHeaders(RateLimit(limiter)(http.HandlerFunc(echoTenantActor)))

	call := func(user string) int {
		req := httptest.NewRequest(http.MethodGet, "/v1/acme/reviews/x", nil)
		req = req.WithContext(WithTenant(req.Context(), "acme"))
		req.Header.Set(HeaderUserID, user)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 2; i++ {
		if code := call("alice"); code != http.StatusOK {
			t.Fatalf("call %d = %d", i, code)
		}
	}
	if code := call("alice"); code != http.StatusTooManyRequests {
		t.Fatalf("third call = %d", code)
	}
	if code := call("bob"); code != http.StatusOK {
		t.Fatalf("other actor = %d", code)
	}
}

func TestLoggingCapturesStatus(t *testing.T) {
	h := Logging(logger.Nop())(MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d", rec.Code)
	}
	if GetMetrics().RequestsFailed == 0 {
		t.Fatal("failed request not counted")
	}
}

func TestLoggingNamesTenantAndActor(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	lg := &logger.Logger{SugaredLogger: zap.New(core).Sugar()}
	h := Logging(lg)(APIKeyAuth(map[string]string{"acme": "k-acme"})(ActorFromHeaders(http.HandlerFunc(echoTenantActor))))

	req := httptest.NewRequest(http.MethodGet, "/v1/acme/reviews", nil)
	req.Header.Set("Authorization", "Bearer k-acme")
	req.Header.Set(HeaderUserID, "alice")
	h.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("entries = %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["tenant"] != "acme" || fields["actor"] != "alice" {
		t.Fatalf("fields = %v", fields)
	}
}

type stubChecker struct{ err error }

func (s stubChecker) Check(ctx context.Context) error { return s.err }

func TestHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthHandler(map[string]HealthChecker{"db": stubChecker{}, "redis": stubChecker{err: errors.New("down")}})(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	var body HealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Checks["db"].Status != "healthy" || body.Checks["redis"].Message != "down" {
		t.Fatalf("checks = %+v", body.Checks)
	}
}

func TestValidators(t *testing.T) {
	if err := ValidateTenantID("acme_01"); err != nil {
		t.Fatalf("tenant: %v", err)
	}
	if err := ValidateTenantID("bad tenant"); err == nil {
		t.Fatal("expected tenant error")
	}
	if err := ValidateEngagementRef("ENG-2026.Q1"); err != nil {
		t.Fatalf("engagement: %v", err)
	}
	if err := ValidateEngagementRef("../etc"); err == nil {
		t.Fatal("expected traversal rejected")
	}
	if got := SanitizeString("  a\x00b\x07 "); got != "ab" {
		t.Fatalf("SanitizeString = %q", got)
	}
}

func TestClientIP(t *testing.T) {
	resolved := func(trust bool, req *http.Request) string {
		var got string
		ResolveClientIP(trust)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = ClientIP(r)
		})).ServeHTTP(httptest.NewRecorder(), req)
		return got
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	if got := ClientIP(req); got != "192.0.2.7" {
		t.Fatalf("peer = %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	req.Header.Set("X-Real-IP", "203.0.113.10")
	if got := ClientIP(req); got != "192.0.2.7" {
		t.Fatalf("unresolved request used forwarding header: %q", got)
	}
	if got := resolved(false, req); got != "192.0.2.7" {
		t.Fatalf("untrusted = %q, want socket peer", got)
	}
	if got := resolved(true, req); got != "203.0.113.9" {
		t.Fatalf("trusted xff = %q", got)
	}

	req.Header.Del("X-Forwarded-For")
	if got := resolved(true, req); got != "203.0.113.10" {
		t.Fatalf("trusted x-real-ip = %q", got)
	}
	req.Header.Set("X-Real-IP", "not-an-ip")
	if got := resolved(true, req); got != "192.0.2.7" {
		t.Fatalf("garbage header = %q", got)
	}
}
