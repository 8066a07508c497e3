package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrNoProvider is returned by New when no completion provider is configured.
var ErrNoProvider = errors.New("no completion provider configured")

// ErrEmptyResponse is returned when a provider answered without text.
var ErrEmptyResponse = errors.New("empty completion response")

// APIError represents an API error with HTTP status code.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
}

// IsRetryableAPIError returns true if the API error has a retryable status code.
func IsRetryableAPIError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
	}
	return false
}

// IsRetryableError reports whether a completion request may succeed on retry.
// Cancellation by the caller is never retried.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if IsRetryableAPIError(err) {
		return true
	}

	// untyped errors from provider SDKs
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"rate limit", "eof", "tls handshake", "no such host", "connection refused", "unavailable"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
