// Package client provides the resilient HTTP layer for feature-service
// queries: bounded retries with exponential backoff, server backpressure
// handling, response-size and parse-structure guards, and failure
// classification.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/nordkart/geoharvest/pkg/backpressure"
	"github.com/nordkart/geoharvest/pkg/logging"
)

// Prometheus metrics for request execution.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geoharvest_requests_total",
		Help: "Total requests by host and status",
	}, []string{"host", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "geoharvest_request_duration_seconds",
		Help:    "Request duration in seconds by host",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"host"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geoharvest_errors_total",
		Help: "Total request failures by class",
	}, []string{"class"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geoharvest_retries_total",
		Help: "Total retry attempts by error class",
	}, []string{"class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geoharvest_retry_exhausted_total",
		Help: "Requests that exhausted all retry attempts, by error class",
	}, []string{"class"})
)

// Config holds the client configuration.
type Config struct {
	// Timeout covers connect plus transfer for a single attempt.
	Timeout time.Duration

	// Retry controls the attempt loop and backoff shape.
	Retry RetryConfig

	// MaxResponseBytes caps any single response body.
	MaxResponseBytes int64

	// MaxParseDepth and MaxTreeNodes bound structural parsing.
	MaxParseDepth int
	MaxTreeNodes  int

	// UserAgent sent with every request.
	UserAgent string

	// Backpressure shares penalty windows across workers. Optional.
	Backpressure *backpressure.Tracker

	// Transport overrides the default HTTP transport (for testing).
	Transport http.RoundTripper
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:          60 * time.Second,
		Retry:            DefaultRetryConfig(),
		MaxResponseBytes: DefaultMaxResponseBytes,
		MaxParseDepth:    DefaultMaxParseDepth,
		MaxTreeNodes:     DefaultMaxTreeNodes,
		UserAgent:        "geoharvest/1.0 (geospatial-data-pipeline)",
	}
}

// Response is a completed, guarded response body with fetch metadata.
type Response struct {
	Body       []byte
	StatusCode int
	Header     http.Header
	Elapsed    time.Duration
	Retries    int
}

// Client executes logical requests against feature services.
type Client struct {
	httpClient *http.Client
	cfg        Config
	bp         *backpressure.Tracker
	logger     zerolog.Logger
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = DefaultMaxResponseBytes
	}
	if cfg.MaxParseDepth <= 0 {
		cfg.MaxParseDepth = DefaultMaxParseDepth
	}
	if cfg.MaxTreeNodes <= 0 {
		cfg.MaxTreeNodes = DefaultMaxTreeNodes
	}
	if err := cfg.Retry.validate(); err != nil {
		return nil, fmt.Errorf("retry config: %w", err)
	}

	httpClient := &http.Client{}
	if cfg.Transport != nil {
		httpClient.Transport = cfg.Transport
	}

	return &Client{
		httpClient: httpClient,
		cfg:        cfg,
		bp:         cfg.Backpressure,
		logger:     logging.NewLogger("http-client"),
	}, nil
}

// Get executes one logical GET with bounded retries and resource guards.
// params are merged into the URL's query string. The returned error is
// always a classified *RequestError (possibly wrapping ErrRetryExhausted
// or ErrCancelled).
func (c *Client) Get(ctx context.Context, rawURL string, params url.Values) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &RequestError{URL: rawURL, Class: ClassOther, Err: err}
	}
	if len(params) > 0 {
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Set(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	start := time.Now()
	host := u.Host
	defer func() {
		requestDuration.WithLabelValues(host).Observe(time.Since(start).Seconds())
	}()

	var lastErr *RequestError

	for attempt := 0; attempt < c.cfg.Retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			wait := c.cfg.Retry.backoffFor(attempt - 1)
			if lastErr.serverWait > 0 {
				// Server-supplied backpressure overrides computed backoff.
				wait = lastErr.serverWait
			}

			retriesTotal.WithLabelValues(string(lastErr.Class)).Inc()
			c.logger.Debug().
				Str("url", u.String()).
				Str("error_class", string(lastErr.Class)).
				Int("attempt", attempt).
				Dur("backoff", wait).
				Msg("Retrying request after backoff")

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, &RequestError{URL: u.String(), Class: lastErr.Class,
					Err: fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())}
			case <-timer.C:
			}
		}

		if c.bp != nil {
			if err := c.bp.Wait(ctx, host); err != nil {
				return nil, &RequestError{URL: u.String(), Class: ClassOther,
					Err: fmt.Errorf("%w: %v", ErrCancelled, err)}
			}
		}

		resp, reqErr := c.attempt(ctx, u)
		if reqErr == nil {
			resp.Elapsed = time.Since(start)
			resp.Retries = attempt
			requestsTotal.WithLabelValues(host, strconv.Itoa(resp.StatusCode)).Inc()
			if attempt > 0 {
				c.logger.Info().
					Str("url", u.String()).
					Int("attempt", attempt+1).
					Msg("Request succeeded after retry")
			}
			return resp, nil
		}

		lastErr = reqErr
		errorsTotal.WithLabelValues(string(reqErr.Class)).Inc()
		requestsTotal.WithLabelValues(host, errStatusLabel(reqErr)).Inc()

		if c.bp != nil && reqErr.serverWait > 0 {
			c.bp.Observe(host, reqErr.serverWait)
		}

		c.logger.Warn().
			Str("url", u.String()).
			Str("error_class", string(reqErr.Class)).
			Int("status", reqErr.StatusCode).
			Int("attempt", attempt+1).
			Msg("Request failed")

		if !reqErr.Class.retryable() && reqErr.serverWait == 0 {
			return nil, reqErr
		}
	}

	retryExhaustedTotal.WithLabelValues(string(lastErr.Class)).Inc()
	c.logger.Warn().
		Str("url", u.String()).
		Str("error_class", string(lastErr.Class)).
		Int("max_attempts", c.cfg.Retry.MaxAttempts).
		Msg("Retry attempts exhausted")

	lastErr.Err = fmt.Errorf("%w after %d attempts: %v",
		ErrRetryExhausted, c.cfg.Retry.MaxAttempts, lastErr.Err)
	return nil, lastErr
}

// attempt executes a single HTTP round trip with all guards applied.
func (c *Client) attempt(ctx context.Context, u *url.URL) (*Response, *RequestError) {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &RequestError{URL: u.String(), Class: ClassOther, Err: err}
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &RequestError{URL: u.String(), Class: classifyTransport(err), Err: err}
	}
	defer resp.Body.Close()

	serverWait := c.cfg.Retry.retryAfter(resp.Header)

	// Reject declared oversize before reading a single byte.
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if n, perr := strconv.ParseInt(cl, 10, 64); perr == nil && n > c.cfg.MaxResponseBytes {
			return nil, &RequestError{URL: u.String(), StatusCode: resp.StatusCode,
				Class: ClassOversized,
				Err:   fmt.Errorf("declared content length %d exceeds cap %d", n, c.cfg.MaxResponseBytes)}
		}
	}

	if resp.StatusCode >= 400 {
		class := ClassHTTP4xx
		if resp.StatusCode >= 500 {
			class = ClassHTTP5xx
		}
		// Drain a bounded amount so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		return nil, &RequestError{URL: u.String(), StatusCode: resp.StatusCode,
			Class: class, Err: errors.New(resp.Status), serverWait: serverWait}
	}

	// Lying servers are capped by the reader regardless of headers.
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxResponseBytes+1))
	if err != nil {
		return nil, &RequestError{URL: u.String(), StatusCode: resp.StatusCode,
			Class: classifyTransport(err), Err: err}
	}
	if int64(len(body)) > c.cfg.MaxResponseBytes {
		return nil, &RequestError{URL: u.String(), StatusCode: resp.StatusCode,
			Class: ClassOversized,
			Err:   fmt.Errorf("response exceeds cap %d", c.cfg.MaxResponseBytes)}
	}

	if err := c.checkStructure(resp.Header.Get("Content-Type"), body); err != nil {
		return nil, &RequestError{URL: u.String(), StatusCode: resp.StatusCode,
			Class: ClassMalformed, Err: err}
	}

	return &Response{
		Body:       body,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
	}, nil
}

// checkStructure applies the depth and node-count guards appropriate for
// the payload's content type.
func (c *Client) checkStructure(contentType string, body []byte) error {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "xml"):
		return checkXMLStructure(body, c.cfg.MaxParseDepth, c.cfg.MaxTreeNodes)
	default:
		// Feature services answer JSON unless asked otherwise; treat
		// unknown content types as JSON so the guard always runs.
		return checkJSONStructure(body, c.cfg.MaxParseDepth, c.cfg.MaxTreeNodes)
	}
}

// classifyTransport separates timeouts from other transport failures.
func classifyTransport(err error) ErrorClass {
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ClassTimeout
	}
	return ClassNetwork
}

// errStatusLabel renders the metric status label for a failed attempt.
func errStatusLabel(e *RequestError) string {
	if e.StatusCode > 0 {
		return strconv.Itoa(e.StatusCode)
	}
	return string(e.Class)
}
