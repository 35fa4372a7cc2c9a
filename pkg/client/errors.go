package client

import (
	"errors"
	"fmt"
	"time"
)

// ErrorClass tags every failure with one taxonomy class. The class decides
// whether a retry is worthwhile and feeds the coordinator's error tally.
type ErrorClass string

const (
	ClassNetwork   ErrorClass = "network"
	ClassTimeout   ErrorClass = "timeout"
	ClassHTTP4xx   ErrorClass = "http-4xx"
	ClassHTTP5xx   ErrorClass = "http-5xx"
	ClassOversized ErrorClass = "oversized-response"
	ClassMalformed ErrorClass = "malformed-structure"
	ClassOther     ErrorClass = "other"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrCancelled is returned when the context is cancelled during a
	// request or its backoff wait.
	ErrCancelled = errors.New("request cancelled")
)

// RequestError is a classified failure of one logical request.
type RequestError struct {
	URL        string
	StatusCode int
	Class      ErrorClass
	Err        error

	// serverWait carries a capped Retry-After value when the server sent
	// one; it overrides computed backoff and makes 429 responses
	// retryable despite their 4xx class.
	serverWait time.Duration
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error (status %d) for %s: %v", e.Class, e.StatusCode, e.URL, e.Err)
	}
	return fmt.Sprintf("%s error for %s: %v", e.Class, e.URL, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *RequestError) Unwrap() error {
	return e.Err
}

// ClassOf extracts the taxonomy class from an error chain.
// Unclassified errors report ClassOther.
func ClassOf(err error) ErrorClass {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Class
	}
	return ClassOther
}

// retryable reports whether a failure of this class is worth another
// attempt. 4xx responses are not retried, with the single exception of 429,
// which the caller handles via the Retry-After path. Guard violations are
// deterministic and never retried.
func (c ErrorClass) retryable() bool {
	switch c {
	case ClassNetwork, ClassTimeout, ClassHTTP5xx:
		return true
	default:
		return false
	}
}
