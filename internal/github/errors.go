package github

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// APIError is a non-2xx response from the GitHub API.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("GitHub API returned HTTP %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("GitHub API %s %s returned HTTP %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// AuthorizationError is a 401 or 403 response. It will recur for every
// request made with the same token, so callers abort on it.
type AuthorizationError struct {
	Err *APIError
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("authorization failed (HTTP %d); check the token's scopes and enterprise access: %s",
		e.Err.StatusCode, e.Err.Body)
}

func (e *AuthorizationError) Unwrap() error { return e.Err }

// RemoteValidationError is any other 4xx response, e.g. an unknown
// username. It concerns one request only.
type RemoteValidationError struct {
	Err *APIError
}

func (e *RemoteValidationError) Error() string {
	return fmt.Sprintf("rejected by GitHub (HTTP %d): %s", e.Err.StatusCode, e.Err.Body)
}

func (e *RemoteValidationError) Unwrap() error { return e.Err }

// NetworkError is a transport failure, timeout or 5xx response that
// persisted through the retry budget.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error on %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RateLimitError is a rate-limited response that persisted through the
// rate-limit retry budget.
type RateLimitError struct {
	Err  *APIError
	Wait time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited (HTTP %d), retry after %s", e.Err.StatusCode, e.Wait.Round(time.Second))
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// classify maps a 4xx APIError onto the error taxonomy.
func classify(e *APIError) error {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &AuthorizationError{Err: e}
	default:
		return &RemoteValidationError{Err: e}
	}
}

// IsFatal reports whether err must stop all remaining work.
func IsFatal(err error) bool {
	var authErr *AuthorizationError
	return errors.As(err, &authErr)
}

// StatusCode extracts the HTTP status from any error in the taxonomy, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// alreadyPresentMarkers are body fragments GitHub uses when a user is
// already assigned to the cost center.
var alreadyPresentMarkers = []string{"already", "exists", "has already been taken", "conflict"}

// isAlreadyPresent reports whether a rejected add means "nothing to do".
func isAlreadyPresent(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.StatusCode != http.StatusConflict && apiErr.StatusCode != http.StatusUnprocessableEntity {
		return false
	}
	return containsAny(strings.ToLower(apiErr.Body), alreadyPresentMarkers)
}

// isNotPresent reports whether a rejected removal means the user was not a
// member to begin with.
func isNotPresent(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.StatusCode {
	case http.StatusNotFound:
		return true
	case http.StatusBadRequest:
		return strings.Contains(strings.ToLower(apiErr.Body), "no resources")
	}
	return false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
