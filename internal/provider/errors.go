package provider

import (
	"errors"
	"fmt"
)

// StatusError is returned when a backend answers with a non-200 status or
// an error envelope.
type StatusError struct {
	Provider   string
	StatusCode int
	Type       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s api error (status %d, %s): %s", e.Provider, e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("%s api error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// IsRateLimitError reports whether err is a 429 from a backend.
func IsRateLimitError(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == 429
	}
	return false
}

// IsAuthError reports whether err is a 401 or 403 from a backend.
func IsAuthError(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == 401 || se.StatusCode == 403
	}
	return false
}

// IsTransient reports whether a caller may reasonably try the same request
// again later. Providers themselves never do.
func IsTransient(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == 429 || se.StatusCode == 500 || se.StatusCode == 502 || se.StatusCode == 503
	}
	return false
}
