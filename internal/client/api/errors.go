package api

import (
	"errors"
	"fmt"
)

// Kind classifies what went wrong, so callers never parse messages
type Kind int

const (
	// Access token expired, a refresh was attempted
	KindAuthExpired Kind = iota + 1

	// Auth is broken beyond refresh, the session was terminated
	KindAuthInvalid

	// Server refused the operation for this user, session stays alive
	KindForbidden

	// Transport level failure
	KindNetwork

	// Any other non-2xx answer
	KindHTTP
)

func (k Kind) String() string {
	switch k {
	case KindAuthExpired:
		return "auth_expired"
	case KindAuthInvalid:
		return "auth_invalid"
	case KindForbidden:
		return "forbidden"
	case KindNetwork:
		return "network"
	case KindHTTP:
		return "http"
	default:
		return "unknown"
	}
}

// APIError is the error type every client method returns on failure
type APIError struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: kind=%s, status=%d, message=%q, cause=%v", e.Kind, e.Status, e.Message, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// ErrorKind extracts the kind, or zero if err is not an APIError
func ErrorKind(err error) Kind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return 0
}

// IsForbidden reports a permission-denied answer the caller should surface itself
func IsForbidden(err error) bool {
	return ErrorKind(err) == KindForbidden
}
