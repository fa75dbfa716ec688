package llm

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrResponseShape means a 200 response carried no recognizable text.
	ErrResponseShape = errors.New("LLM response missing text content")

	// ErrRetriesExhausted means every allowed attempt failed. When the last
	// failure was a transport error it is wrapped alongside.
	ErrRetriesExhausted = errors.New("LLM request failed after retries")
)

// StatusError is a non-retryable HTTP status from the endpoint. Body has
// secrets scrubbed.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	switch e.Code {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Sprintf("LLM request failed: %d %s", e.Code, e.Body)
	default:
		return fmt.Sprintf("unexpected LLM status %d: %s", e.Code, e.Body)
	}
}

// IsAuthError reports whether err is a 401 or 403 from the endpoint.
func IsAuthError(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden
}

func exhausted(last error) error {
	if last == nil {
		return ErrRetriesExhausted
	}
	return fmt.Errorf("%w: %w", ErrRetriesExhausted, last)
}
