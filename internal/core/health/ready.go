// Package health serves the liveness and readiness probes.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

type ReadinessReporter interface {
	Readiness() (ready bool, partitions []int32)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	}
}

type Checks struct {
	// Store is pinged on every probe.
	Store Pinger
	// Events is nil when the event consumer is disabled.
	Events  ReadinessReporter
	Timeout time.Duration
}

type readiness struct {
	Status     string  `json:"status"`
	Store      string  `json:"store"`
	Events     string  `json:"events,omitempty"`
	Partitions []int32 `json:"partitions,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// Readiness answers 200 when the store answers a ping and, if configured,
// the event consumer owns partitions; 503 otherwise.
func Readiness(c Checks) http.HandlerFunc {
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Second
	}
	return func(w http.ResponseWriter, r *http.Request) {
		out := readiness{Status: "ready", Store: "ok"}

		if c.Store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), c.Timeout)
			err := c.Store.Ping(ctx)
			cancel()
			if err != nil {
				out.Status = "not_ready"
				out.Store = "unavailable"
				out.Error = err.Error()
			}
		}
		if c.Events != nil {
			ready, parts := c.Events.Readiness()
			if ready {
				out.Events = "assigned"
				out.Partitions = parts
			} else {
				out.Status = "not_ready"
				out.Events = "unassigned"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if out.Status != "ready" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}
