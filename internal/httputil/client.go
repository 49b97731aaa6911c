package httputil

import (
	"net/http"
	"time"
)

// DefaultTimeout bounds a single request attempt, not a whole retry sequence.
const DefaultTimeout = 15 * time.Second

const UserAgent = "weatherreport/1.0"

// NewClient returns an HTTP client with the given per-request timeout.
// A zero timeout uses DefaultTimeout.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
	}
}
