package middleware

import (
	"context"
	"database/sql"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// HealthChecker is a dependency the portal cannot serve reviews without.
type HealthChecker interface {
	Check(ctx context.Context) error
}

// SQLChecker pings the review database pool.
type SQLChecker struct {
	DB *sql.DB
}

func (c SQLChecker) Check(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Uptime    float64                `json:"uptimeSeconds"`
	Checks    map[string]CheckStatus `json:"checks"`
}

type CheckStatus struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
}

const checkTimeout = 2 * time.Second

// HealthHandler runs every checker in parallel and answers 503 when any of
// them fails.
func HealthHandler(checkers map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			mu      sync.Mutex
			results = make(map[string]CheckStatus, len(checkers))
			healthy = true
		)

		g, gctx := errgroup.WithContext(r.Context())
		for name, checker := range checkers {
			name, checker := name, checker
			g.Go(func() error {
				ctx, cancel := context.WithTimeout(gctx, checkTimeout)
				defer cancel()

				start := time.Now()
				err := checker.Check(ctx)
				st := CheckStatus{Status: "healthy", LatencyMS: time.Since(start).Milliseconds()}
				if err != nil {
					st.Status = "unhealthy"
					st.Message = err.Error()
				}

				mu.Lock()
				results[name] = st
				if err != nil {
					healthy = false
				}
				mu.Unlock()
				// errors are reported per check, never cancel the siblings
				return nil
			})
		}
		_ = g.Wait()

		body := HealthStatus{
			Status:    "healthy",
			Timestamp: time.Now().UTC(),
			Uptime:    time.Since(startedAt).Seconds(),
			Checks:    results,
		}
		code := http.StatusOK
		if !healthy {
			body.Status = "unhealthy"
			code = http.StatusServiceUnavailable
		}
		WriteJSON(w, code, body)
	}
}

// ReadinessHandler answers once the router is mounted.
func ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{"status": "ready", "timestamp": time.Now().UTC()})
}

func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
