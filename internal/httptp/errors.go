package httptp

import (
	"errors"
	"fmt"
)

var (
	// ErrNoEndpoint indicates the transport was built without an endpoint URL.
	ErrNoEndpoint = errors.New("httptp: endpoint not configured")
	// ErrClosed is returned by fetches issued after Close.
	ErrClosed = errors.New("httptp: closed")
)

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	body := string(e.Body)
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	if body == "" {
		return fmt.Sprintf("httptp: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("httptp: unexpected status %d: %s", e.StatusCode, body)
}
