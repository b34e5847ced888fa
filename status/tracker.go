// Package status tracks process uptime and request activity for health
// reporting.
package status

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Tracker records process start time and request activity. Construct one per
// process and pass it to whatever surfaces health information; there is no
// package-level instance.
type Tracker struct {
	now func() time.Time

	mu            sync.Mutex
	startedAt     time.Time
	lastRequestAt time.Time
	totalRequests int64

	requestsTotal prometheus.Counter
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithTimeFunc replaces the clock for deterministic tests.
func WithTimeFunc(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// NewTracker creates a Tracker and registers its metrics with reg. Pass nil
// to skip metric registration.
func NewTracker(reg prometheus.Registerer, opts ...Option) *Tracker {
	t := &Tracker{now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	t.startedAt = t.now()

	t.requestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dealflow_requests_total",
		Help: "Total workflow requests handled since process start.",
	})
	uptime := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "dealflow_uptime_seconds",
		Help: "Seconds since process start.",
	}, func() float64 {
		return t.now().Sub(t.startedAt).Seconds()
	})

	if reg != nil {
		reg.MustRegister(t.requestsTotal, uptime)
	}
	return t
}

// RecordRequest notes that a workflow request was handled.
func (t *Tracker) RecordRequest() {
	t.mu.Lock()
	t.lastRequestAt = t.now()
	t.totalRequests++
	t.mu.Unlock()
	t.requestsTotal.Inc()
}

// TotalRequests returns the number of requests handled since start.
func (t *Tracker) TotalRequests() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalRequests
}

// UptimeString renders the time since start as "Xd Xh Xm". Zero-valued
// leading units are omitted; minutes always appear.
func (t *Tracker) UptimeString() string {
	elapsed := t.now().Sub(t.startedAt)

	days := int(elapsed.Hours()) / 24
	hours := int(elapsed.Hours()) % 24
	minutes := int(elapsed.Minutes()) % 60

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 || days > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	parts = append(parts, fmt.Sprintf("%dm", minutes))
	return strings.Join(parts, " ")
}

// LastRequestString renders how long ago the last request arrived, in the
// largest sensible unit, or "No requests yet".
func (t *Tracker) LastRequestString() string {
	t.mu.Lock()
	last := t.lastRequestAt
	t.mu.Unlock()

	if last.IsZero() {
		return "No requests yet"
	}

	elapsed := t.now().Sub(last)
	switch {
	case elapsed < time.Minute:
		return fmt.Sprintf("%ds ago", int(elapsed.Seconds()))
	case elapsed < time.Hour:
		return fmt.Sprintf("%dm ago", int(elapsed.Minutes()))
	case elapsed < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(elapsed.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(elapsed.Hours())/24)
	}
}
