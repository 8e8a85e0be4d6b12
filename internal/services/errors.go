// Package services defines the business logic for accounts, journeys, match
// discovery, the match request lifecycle, chats and messages.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import "errors"

// ErrNotFound is the umbrella for every "does not exist or is not accessible"
// error below; errors.Is(err, ErrNotFound) holds for each of them.
var ErrNotFound = errors.New("not found")

type notFoundError struct{ msg string }

func (e *notFoundError) Error() string        { return e.msg }
func (e *notFoundError) Is(target error) bool { return target == ErrNotFound }

// Lookup errors.
var (
	// ErrJourneyNotFound indicates that the journey does not exist or is not
	// owned by the caller.
	ErrJourneyNotFound error = &notFoundError{"journey not found"}

	// ErrRequestNotFound indicates that the match request does not exist.
	ErrRequestNotFound error = &notFoundError{"match request not found"}

	// ErrChatNotFound indicates that the requested chat does not exist or is not
	// accessible to the current user.
	ErrChatNotFound error = &notFoundError{"chat not found"}

	// ErrUserNotFound indicates that the referenced traveler does not exist.
	ErrUserNotFound error = &notFoundError{"user not found"}
)

// Match lifecycle errors.
var (
	// ErrInvalidStateTransition is returned when accepting or rejecting a
	// request that is no longer PENDING.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrDuplicateRequest is returned when a PENDING or ACCEPTED request
	// already exists between the two journeys, in either direction.
	ErrDuplicateRequest = errors.New("an active request already exists for this journey pair")

	// ErrForbidden is returned when the caller is not allowed to act on the
	// resource (e.g. accepting a request addressed to someone else).
	ErrForbidden = errors.New("forbidden")

	// ErrSelfMatch is returned when a traveler targets their own journey.
	ErrSelfMatch = errors.New("cannot match with yourself")
)

// Input validation errors.
var (
	// ErrInvalidJourney is returned for journeys with no legs, inverted leg
	// times, missing airports or overlapping legs.
	ErrInvalidJourney = errors.New("invalid journey")

	// ErrEmptyContent is returned when a message body is blank.
	ErrEmptyContent = errors.New("message content is empty")

	// ErrTooLong is returned when a message exceeds the configured maximum
	// length.
	ErrTooLong = errors.New("message too long")

	// ErrInvalidCursor is returned for undecodable pagination cursors.
	ErrInvalidCursor = errors.New("invalid cursor")

	// ErrInvalidProfile is returned for profile edits that fail validation.
	ErrInvalidProfile = errors.New("invalid profile")
)

// Authentication errors.
var (
	// ErrUnauthorized is returned for missing, expired, revoked or unknown
	// credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidCredentials is returned when email and password do not match.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrEmailTaken is returned when registering an email that already exists.
	ErrEmailTaken = errors.New("email already registered")

	// ErrWeakPassword is returned for passwords shorter than the minimum.
	ErrWeakPassword = errors.New("password too short")
)
