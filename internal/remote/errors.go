// Package remote is the HTTP client for the learning service's progress API:
// per-item progress reports, profile and bulk progress fetches, and the
// OAuth2 sign-in that authorises them.
package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status classification. Check with errors.Is.
var (
	ErrBadRequest   = errors.New("remote: bad request")
	ErrUnauthorized = errors.New("remote: unauthorized")
	ErrForbidden    = errors.New("remote: forbidden")
	ErrNotFound     = errors.New("remote: not found")
	ErrThrottled    = errors.New("remote: throttled")
	ErrServerError  = errors.New("remote: server error")
)

// ErrNotLoggedIn is returned when no credential file exists.
var ErrNotLoggedIn = errors.New("remote: not logged in")

// ErrMalformedResponse is returned when a call succeeds but the payload is
// missing fields the caller depends on.
var ErrMalformedResponse = errors.New("remote: malformed response")

// APIError carries the HTTP status and body of a failed call alongside the
// classifying sentinel.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remote: %s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status to a sentinel, or nil when none fits.
func classifyStatus(code int) error {
	switch {
	case code == http.StatusBadRequest:
		return ErrBadRequest
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	case code == http.StatusForbidden:
		return ErrForbidden
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusTooManyRequests:
		return ErrThrottled
	case code >= http.StatusInternalServerError:
		return ErrServerError
	default:
		return nil
	}
}

func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// malformed wraps ErrMalformedResponse with the endpoint and missing field.
func malformed(endpoint, detail string) error {
	return fmt.Errorf("%w: %s: %s", ErrMalformedResponse, endpoint, detail)
}
