package fetch

import (
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"
)

// RetryConfig controls how transient download failures are retried.
type RetryConfig struct {
	MaxRetries int           // Maximum number of retry attempts
	RetryDelay time.Duration // Initial delay between retries
	MaxDelay   time.Duration // Maximum backoff delay (cap)
}

// DefaultRetryConfig returns the retry settings used by New.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 2,
		RetryDelay: 1 * time.Second,
		MaxDelay:   10 * time.Second,
	}
}

// CalculateBackoff calculates exponential backoff with jitter.
func CalculateBackoff(baseDelay time.Duration, attempt int, maxDelay time.Duration) time.Duration {
	// Exponential backoff: baseDelay * 2^attempt, doubling stops at the cap
	delay := baseDelay
	for i := 0; i < attempt && delay < maxDelay; i++ {
		delay *= 2
	}
	if delay > maxDelay {
		delay = maxDelay
	}
	if delay < 4 {
		return delay
	}

	// Add jitter: random value between 0 and 25% of delay
	jitter := time.Duration(rand.Int63n(int64(delay / 4)))
	return delay + jitter
}

// statusError is a non-200 HTTP response.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%v: HTTP %d %s", ErrDownloadFailed, e.code, http.StatusText(e.code))
}

func (e *statusError) Unwrap() error { return ErrDownloadFailed }

// retryable reports whether a failed attempt may succeed when repeated.
// Transport errors, throttling and server errors are retried; other HTTP
// statuses are final.
func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	return errors.Is(err, ErrDownloadFailed)
}
