// Package health reports gateway liveness for probes and operators.
package health

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// Status is the /healthz response body
type Status struct {
	Healthy    bool          `json:"healthy"`
	Status     string        `json:"status"` // "healthy" or "unhealthy"
	Uptime     time.Duration `json:"uptime"`
	Routes     int           `json:"routes"`
	Generation uint64        `json:"generation"` // route table reload counter
	Timestamp  time.Time     `json:"timestamp"`
}

// Source supplies the live values a status report is built from
type Source interface {
	Healthy() bool
	RouteCount() int
	RouteGeneration() uint64
}

// Monitor builds status reports for a running gateway
type Monitor struct {
	source    Source
	startTime time.Time
	checks    atomic.Uint64
}

// NewMonitor creates a monitor; uptime counts from this call
func NewMonitor(source Source) *Monitor {
	return &Monitor{
		source:    source,
		startTime: time.Now(),
	}
}

// Status captures the current health snapshot
func (m *Monitor) Status() Status {
	m.checks.Add(1)

	healthy := m.source.Healthy()
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	return Status{
		Healthy:    healthy,
		Status:     status,
		Uptime:     time.Since(m.startTime),
		Routes:     m.source.RouteCount(),
		Generation: m.source.RouteGeneration(),
		Timestamp:  time.Now(),
	}
}

// Checks returns how many status snapshots have been served
func (m *Monitor) Checks() uint64 {
	return m.checks.Load()
}

// Handler serves the status as JSON; unhealthy reports 503
func (m *Monitor) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		status := m.Status()

		w.Header().Set("Content-Type", "application/json")
		if !status.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(status)
	})
}
