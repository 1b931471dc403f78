package onshape

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Sentinel upstream errors.
var (
	// ErrNotFound is returned for 404 responses.
	ErrNotFound = errors.New("onshape: not found")
	// ErrUnauthorized is returned for 401 and 403 responses.
	ErrUnauthorized = errors.New("onshape: unauthorized, check the API keys")
)

// ThrottledError is returned for 429 responses. Retries are the caller's
// responsibility; the compiler core never retries.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("onshape: throttled, retry after %s", e.RetryAfter)
}

// UpstreamError is returned for any other non-2xx response.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("onshape: upstream status %d: %s", e.Status, e.Body)
}

// InvalidURLError reports a document URL that does not match the expected
// https://<host>/documents/{did}/{w|v|m}/{wid}/e/{eid} shape.
type InvalidURLError struct {
	URL    string
	Reason string
}

func (e *InvalidURLError) Error() string {
	return fmt.Sprintf("invalid document url %q: %s", e.URL, e.Reason)
}

// statusError maps an HTTP response status to the upstream error taxonomy,
// or returns nil for 2xx.
func statusError(status int, body string, header http.Header) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return ErrUnauthorized
	case status == http.StatusTooManyRequests:
		retryAfter := time.Duration(0)
		if secs, err := strconv.Atoi(header.Get("Retry-After")); err == nil {
			retryAfter = time.Duration(secs) * time.Second
		}
		return &ThrottledError{RetryAfter: retryAfter}
	default:
		return &UpstreamError{Status: status, Body: body}
	}
}
