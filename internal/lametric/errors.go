package lametric

import (
	"errors"
	"fmt"
)

// DiscoveryError indicates that no base-URL candidate returned a JSON
// object from the discovery path.
type DiscoveryError struct {
	Host    string
	LastErr error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("failed to discover /api/v2 endpoint map on %s (last error: %v)", e.Host, e.LastErr)
}

func (e *DiscoveryError) Unwrap() error {
	return e.LastErr
}

// ShapeError indicates a response body that was not a JSON object where
// one was required.
type ShapeError struct {
	URL string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("unexpected response shape from %s: not a JSON object", e.URL)
}

// HTTPError is a non-2xx response from the device.
type HTTPError struct {
	StatusCode int
	Status     string
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("device returned %s for %s", e.Status, e.URL)
}

// IsAuthError reports whether err is an HTTP 401/403 from the device.
// Used during setup to distinguish bad credentials from connectivity
// problems.
func IsAuthError(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == 401 || httpErr.StatusCode == 403
	}
	return false
}
