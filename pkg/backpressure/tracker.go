// Package backpressure tracks server-issued slow-down signals and gates
// requests against them. When one chunk worker receives a Retry-After, every
// sibling worker talking to the same host honors the penalty window instead
// of piling on.
//
// State is private to one run: the worker pool and its counters are never
// shared across sources or runs, so the tracker keeps everything in process.
package backpressure

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for backpressure gating.
var (
	backpressureWaitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geoharvest_backpressure_waits_total",
		Help: "Requests delayed by a server-issued penalty window, by host",
	}, []string{"host"})

	backpressureWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "geoharvest_backpressure_wait_seconds",
		Help:    "Duration requests waited on penalty windows",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})
)

// Tracker records per-host penalty windows.
type Tracker struct {
	mu     sync.Mutex
	until  map[string]time.Time
	logger zerolog.Logger
}

// NewTracker creates an empty tracker.
func NewTracker(logger zerolog.Logger) *Tracker {
	return &Tracker{
		until:  make(map[string]time.Time),
		logger: logger,
	}
}

// Observe records a server-issued penalty for host. A shorter penalty never
// shortens an existing window.
func (t *Tracker) Observe(host string, d time.Duration) {
	if d <= 0 {
		return
	}

	deadline := time.Now().Add(d)

	t.mu.Lock()
	if deadline.After(t.until[host]) {
		t.until[host] = deadline
	}
	t.mu.Unlock()

	t.logger.Warn().
		Str("host", host).
		Dur("penalty", d).
		Msg("Server backpressure observed")
}

// Penalty returns the remaining penalty window for host, zero when clear.
func (t *Tracker) Penalty(host string) time.Duration {
	t.mu.Lock()
	deadline, ok := t.until[host]
	t.mu.Unlock()

	if !ok {
		return 0
	}
	remain := time.Until(deadline)
	if remain < 0 {
		return 0
	}
	return remain
}

// Wait blocks until host's penalty window has passed or ctx is done.
func (t *Tracker) Wait(ctx context.Context, host string) error {
	remain := t.Penalty(host)
	if remain <= 0 {
		return nil
	}

	backpressureWaitsTotal.WithLabelValues(host).Inc()
	backpressureWaitSeconds.Observe(remain.Seconds())

	t.logger.Debug().
		Str("host", host).
		Dur("wait", remain).
		Msg("Waiting out penalty window")

	timer := time.NewTimer(remain)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
