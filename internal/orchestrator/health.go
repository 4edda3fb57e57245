package orchestrator

import (
	"sync"
	"time"
)

// HealthStatus is the loop health verdict served on /health.
type HealthStatus struct {
	Healthy           bool    `json:"healthy"`
	LoopRunning       bool    `json:"loop_running"`
	ErrorRateOK       bool    `json:"error_rate_ok"`
	SecondsSinceCycle float64 `json:"seconds_since_cycle"`
	ConsecutiveErrors int     `json:"consecutive_errors"`
	TotalErrors       int     `json:"total_errors"`
}

// Health tracks cycle outcomes. The loop is stuck when no cycle succeeded
// within stuckAfter, and unhealthy after maxErrors failed cycles in a row.
type Health struct {
	stuckAfter time.Duration
	maxErrors  int

	mu          sync.Mutex
	lastSuccess time.Time
	consecutive int
	total       int
}

// NewHealth starts the stuck clock at now.
func NewHealth(stuckAfter time.Duration, maxErrors int, now time.Time) *Health {
	if stuckAfter <= 0 {
		stuckAfter = 10 * time.Minute
	}
	if maxErrors <= 0 {
		maxErrors = 5
	}
	return &Health{stuckAfter: stuckAfter, maxErrors: maxErrors, lastSuccess: now}
}

// Record notes the outcome of one cycle.
func (h *Health) Record(err error, now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		h.consecutive++
		h.total++
		return
	}
	h.consecutive = 0
	h.lastSuccess = now
}

// Check evaluates health at now.
func (h *Health) Check(now time.Time) HealthStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	since := now.Sub(h.lastSuccess)
	s := HealthStatus{
		LoopRunning:       since < h.stuckAfter,
		ErrorRateOK:       h.consecutive < h.maxErrors,
		SecondsSinceCycle: since.Seconds(),
		ConsecutiveErrors: h.consecutive,
		TotalErrors:       h.total,
	}
	s.Healthy = s.LoopRunning && s.ErrorRateOK
	return s
}
