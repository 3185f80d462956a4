package imagesearch

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrMissingKey is returned when the client has no API key.
	ErrMissingKey = errors.New("imagesearch: pexels api key is missing")

	// ErrEmptyQuery is returned for blank queries.
	ErrEmptyQuery = errors.New("imagesearch: cannot search with an empty query")

	// ErrNoResults is returned when no photo matches the query.
	ErrNoResults = errors.New("imagesearch: no matching images were found")

	// ErrNoSource is returned when the matching photo has no usable URL.
	ErrNoSource = errors.New("imagesearch: photo has no accessible source")
)

// Error is a non-2xx response from the API.
type Error struct {
	HTTPStatus int
	Detail     string
}

func (e *Error) Error() string {
	return fmt.Sprintf("imagesearch: pexels request failed (%d): %s", e.HTTPStatus, e.Detail)
}

// IsRateLimit reports whether the request was rate limited.
func (e *Error) IsRateLimit() bool {
	return e.HTTPStatus == http.StatusTooManyRequests
}

// Retryable reports whether the request can be retried.
func (e *Error) Retryable() bool {
	return e.IsRateLimit() || e.HTTPStatus >= 500
}

// AsError extracts *Error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
