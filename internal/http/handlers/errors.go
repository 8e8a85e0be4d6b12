// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable: clients branch on them, never on
// messages. Generic codes mirror HTTP status semantics; domain codes name
// failures that status alone cannot convey (a duplicate match request and an
// already decided request are both 409).
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "invalid_state_transition",
//	  "message": "match request is no longer pending"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-layover-backend/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeInvalidCredentials     = "invalid_credentials"
	ErrCodeEmailTaken             = "email_taken"
	ErrCodeWeakPassword           = "weak_password"
	ErrCodeInvalidJourney         = "invalid_journey"
	ErrCodeSelfMatch              = "self_match"
	ErrCodeDuplicateRequest       = "duplicate_request"
	ErrCodeInvalidStateTransition = "invalid_state_transition"
	ErrCodeEmptyContent           = "empty_content"
	ErrCodeTooLong                = "too_long"
	ErrCodeInvalidCursor          = "invalid_cursor"
	ErrCodeInvalidProfile         = "invalid_profile"
)

// serviceErrors maps service sentinels to (status, code). Order matters:
// the first match wins, and ErrNotFound is the umbrella for every specific
// not-found error.
var serviceErrors = []struct {
	err    error
	status int
	code   string
}{
	{services.ErrUnauthorized, http.StatusUnauthorized, ErrCodeUnauthorized},
	{services.ErrInvalidCredentials, http.StatusUnauthorized, ErrCodeInvalidCredentials},
	{services.ErrEmailTaken, http.StatusConflict, ErrCodeEmailTaken},
	{services.ErrWeakPassword, http.StatusBadRequest, ErrCodeWeakPassword},
	{services.ErrForbidden, http.StatusForbidden, ErrCodeForbidden},
	{services.ErrNotFound, http.StatusNotFound, ErrCodeNotFound},
	{services.ErrInvalidJourney, http.StatusBadRequest, ErrCodeInvalidJourney},
	{services.ErrSelfMatch, http.StatusBadRequest, ErrCodeSelfMatch},
	{services.ErrDuplicateRequest, http.StatusConflict, ErrCodeDuplicateRequest},
	{services.ErrInvalidStateTransition, http.StatusConflict, ErrCodeInvalidStateTransition},
	{services.ErrEmptyContent, http.StatusBadRequest, ErrCodeEmptyContent},
	{services.ErrTooLong, http.StatusBadRequest, ErrCodeTooLong},
	{services.ErrInvalidCursor, http.StatusBadRequest, ErrCodeInvalidCursor},
	{services.ErrInvalidProfile, http.StatusBadRequest, ErrCodeInvalidProfile},
}

// failService translates a service error into the error envelope. Unknown
// errors become 500 internal_error without leaking their text.
func failService(c *gin.Context, err error) {
	for _, m := range serviceErrors {
		if errors.Is(err, m.err) {
			fail(c, m.status, m.code, err.Error())
			return
		}
	}
	_ = c.Error(err)
	fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
}
