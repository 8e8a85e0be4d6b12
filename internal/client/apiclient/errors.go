package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors matched with errors.Is against any error returned by the
// client.
var (
	ErrNotFound               = errors.New("not found")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrForbidden              = errors.New("forbidden")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrDuplicateRequest       = errors.New("duplicate request")
	ErrEmptyContent           = errors.New("empty content")
	ErrTooLong                = errors.New("content too long")

	// ErrTransientNetwork marks failures worth retrying: the request never
	// got an answer, or the server answered 502, 503 or 504.
	ErrTransientNetwork = errors.New("transient network failure")
	// ErrParse marks a response body that could not be decoded or failed
	// validation.
	ErrParse = errors.New("malformed response")
)

// APIError is a non-2xx answer carrying the server's error envelope.
type APIError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("api %d %s: %s", e.Status, e.Code, msg)
	}
	return fmt.Sprintf("api %d: %s", e.Status, msg)
}

// Is maps the envelope onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrForbidden:
		return e.Status == http.StatusForbidden
	case ErrInvalidStateTransition:
		return e.Code == "invalid_state_transition"
	case ErrDuplicateRequest:
		return e.Code == "duplicate_request"
	case ErrEmptyContent:
		return e.Code == "empty_content"
	case ErrTooLong:
		return e.Code == "too_long"
	case ErrTransientNetwork:
		switch e.Status {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
	}
	return false
}
