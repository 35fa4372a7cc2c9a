package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Retry.BaseDelay = 5 * time.Millisecond
	cfg.Retry.MaxDelay = 50 * time.Millisecond
	return cfg
}

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return c
}

func TestGetSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("f"); got != "geojson" {
			t.Errorf("query param f = %q, want geojson", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"type":"FeatureCollection","features":[]}`))
	}))
	defer server.Close()

	c := newTestClient(t, testConfig())
	resp, err := c.Get(context.Background(), server.URL, map[string][]string{"f": {"geojson"}})
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if resp.Retries != 0 {
		t.Errorf("Retries = %d, want 0", resp.Retries)
	}
	if !strings.Contains(string(resp.Body), "FeatureCollection") {
		t.Errorf("Body = %q, want feature collection", resp.Body)
	}
}

func TestGetRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := newTestClient(t, testConfig())
	resp, err := c.Get(context.Background(), server.URL, nil)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if resp.Retries != 2 {
		t.Errorf("Retries = %d, want 2", resp.Retries)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server calls = %d, want 3", got)
	}
}

func TestGetExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := newTestClient(t, testConfig())
	_, err := c.Get(context.Background(), server.URL, nil)
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("Get() error = %v, want ErrRetryExhausted", err)
	}
	if got := ClassOf(err); got != ClassHTTP5xx {
		t.Errorf("ClassOf() = %v, want %v", got, ClassHTTP5xx)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server calls = %d, want 3", got)
	}
}

func TestGetDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	c := newTestClient(t, testConfig())
	_, err := c.Get(context.Background(), server.URL, nil)
	if got := ClassOf(err); got != ClassHTTP4xx {
		t.Fatalf("ClassOf() = %v, want %v", got, ClassHTTP4xx)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server calls = %d, want 1, no retries on 4xx", got)
	}
}

func TestGetRetriesTooManyRequestsWithRetryAfter(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	cfg := testConfig()
	c := newTestClient(t, cfg)

	start := time.Now()
	resp, err := c.Get(context.Background(), server.URL, nil)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if resp.Retries != 1 {
		t.Errorf("Retries = %d, want 1", resp.Retries)
	}
	if elapsed := time.Since(start); elapsed < 1*time.Second {
		t.Errorf("elapsed = %v, want >= 1s honoring Retry-After", elapsed)
	}
}

func TestGetRejectsOversizedResponse(t *testing.T) {
	big := strings.Repeat("x", 2048)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":"` + big + `"}`))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.MaxResponseBytes = 1024
	c := newTestClient(t, cfg)

	_, err := c.Get(context.Background(), server.URL, nil)
	if got := ClassOf(err); got != ClassOversized {
		t.Errorf("ClassOf() = %v, want %v", got, ClassOversized)
	}
}

func TestGetRejectsDeepNesting(t *testing.T) {
	deep := strings.Repeat("[", 60) + strings.Repeat("]", 60)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(deep))
	}))
	defer server.Close()

	c := newTestClient(t, testConfig())
	_, err := c.Get(context.Background(), server.URL, nil)
	if got := ClassOf(err); got != ClassMalformed {
		t.Errorf("ClassOf() = %v, want %v", got, ClassMalformed)
	}
}

func TestGetTimeoutClassification(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.Timeout = 20 * time.Millisecond
	cfg.Retry.MaxAttempts = 1
	c := newTestClient(t, cfg)

	_, err := c.Get(context.Background(), server.URL, nil)
	if got := ClassOf(err); got != ClassTimeout {
		t.Errorf("ClassOf() = %v, want %v", got, ClassTimeout)
	}
}
