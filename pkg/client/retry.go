package client

import (
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial
	// request).
	MaxAttempts int

	// BaseDelay is the initial backoff duration.
	BaseDelay time.Duration

	// MaxDelay caps the computed backoff.
	MaxDelay time.Duration

	// MaxRetryAfter caps a server-supplied Retry-After value. Servers
	// occasionally send absurd values; waiting longer than this is worse
	// than failing the batch.
	MaxRetryAfter time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		BaseDelay:     500 * time.Millisecond,
		MaxDelay:      30 * time.Second,
		MaxRetryAfter: 30 * time.Second,
	}
}

// backoffFor computes the jittered exponential backoff for a zero-based
// attempt index: base * 2^attempt, ±20% jitter, capped at MaxDelay.
func (c RetryConfig) backoffFor(attempt int) time.Duration {
	d := c.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= c.MaxDelay {
			d = c.MaxDelay
			break
		}
	}
	jittered := time.Duration(float64(d) * (0.8 + rand.Float64()*0.4))
	if jittered > c.MaxDelay {
		jittered = c.MaxDelay
	}
	return jittered
}

// retryAfter extracts a server-supplied backpressure delay from response
// headers. Supports both delta-seconds and HTTP-date forms. Returns zero
// when absent or unparseable; the cap is applied here.
func (c RetryConfig) retryAfter(h http.Header) time.Duration {
	raw := h.Get("Retry-After")
	if raw == "" {
		return 0
	}

	var d time.Duration
	if secs, err := strconv.Atoi(raw); err == nil {
		d = time.Duration(secs) * time.Second
	} else if at, err := http.ParseTime(raw); err == nil {
		d = time.Until(at)
	}

	if d <= 0 {
		return 0
	}
	if d > c.MaxRetryAfter {
		d = c.MaxRetryAfter
	}
	return d
}

// validate checks the retry configuration for values that would disable
// the retry loop entirely.
func (c RetryConfig) validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be >= 1 (got %d)", c.MaxAttempts)
	}
	if c.BaseDelay <= 0 {
		return fmt.Errorf("base delay must be positive (got %s)", c.BaseDelay)
	}
	return nil
}
