package middleware

import (
	"net/http"
	"runtime"
	"sync/atomic"
	"time"
)

var startedAt = time.Now()

// counters for the process. Request counters are fed by MetricsMiddleware,
// the review counters by the HTTP handlers after a successful write.
var counters struct {
	requests atomic.Uint64
	inFlight atomic.Int64
	ok       atomic.Uint64
	failed   atomic.Uint64

	reviewsCreated atomic.Uint64
	versions       atomic.Uint64
	conflicts      atomic.Uint64
	approved       atomic.Uint64
}

func IncrementReviewsCreated() { counters.reviewsCreated.Add(1) }

// IncrementVersions counts snapshots written by update and restore.
func IncrementVersions() { counters.versions.Add(1) }

// IncrementConflicts counts writes lost to a concurrent writer.
func IncrementConflicts() { counters.conflicts.Add(1) }

func IncrementApproved() { counters.approved.Add(1) }

// MetricsSnapshot is what /metrics serves.
type MetricsSnapshot struct {
	RequestsTotal      uint64  `json:"requestsTotal"`
	RequestsInFlight   int64   `json:"requestsInFlight"`
	RequestsSucceeded  uint64  `json:"requestsSucceeded"`
	RequestsFailed     uint64  `json:"requestsFailed"`
	ReviewsCreated     uint64  `json:"reviewsCreated"`
	VersionsRecorded   uint64  `json:"versionsRecorded"`
	WriteConflicts     uint64  `json:"writeConflicts"`
	ReviewsApproved    uint64  `json:"reviewsApproved"`
	UptimeSeconds      float64 `json:"uptimeSeconds"`
	Goroutines         int     `json:"goroutines"`
	HeapAllocBytes     uint64  `json:"heapAllocBytes"`
	GarbageCollections uint32  `json:"gcCount"`
}

func GetMetrics() MetricsSnapshot {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MetricsSnapshot{
		RequestsTotal:      counters.requests.Load(),
		RequestsInFlight:   counters.inFlight.Load(),
		RequestsSucceeded:  counters.ok.Load(),
		RequestsFailed:     counters.failed.Load(),
		ReviewsCreated:     counters.reviewsCreated.Load(),
		VersionsRecorded:   counters.versions.Load(),
		WriteConflicts:     counters.conflicts.Load(),
		ReviewsApproved:    counters.approved.Load(),
		UptimeSeconds:      time.Since(startedAt).Seconds(),
		Goroutines:         runtime.NumGoroutine(),
		HeapAllocBytes:     m.HeapAlloc,
		GarbageCollections: m.NumGC,
	}
}

// MetricsMiddleware counts requests by outcome. 4xx and 5xx both count as
// failed.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		counters.requests.Add(1)
		counters.inFlight.Add(1)
		defer counters.inFlight.Add(-1)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		if rw.statusCode < 400 {
			counters.ok.Add(1)
		} else {
			counters.failed.Add(1)
		}
	})
}

func MetricsHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, GetMetrics())
}
