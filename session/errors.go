package session

import (
	"errors"
	"fmt"

	"github.com/jmcleod/storefront/transport"
)

var (
	// ErrAuthRejected indicates the backend answered 401 and the single
	// retry did not recover, or the request carried no credential.
	ErrAuthRejected = errors.New("authentication rejected")
	// ErrRefreshRejected indicates the refresh token was rejected or absent.
	// The session has been purged and is anonymous.
	ErrRefreshRejected = errors.New("refresh credential rejected")
	// ErrRefreshFailed indicates a transient refresh failure (non-auth
	// status or malformed response). Credentials are left untouched.
	ErrRefreshFailed = errors.New("refresh failed")
	// ErrSessionReset indicates a login or logout replaced the session while
	// a refresh was in flight; the refresh outcome was discarded.
	ErrSessionReset = errors.New("session reset during refresh")
	// ErrInvalidCredentials is returned by Login for an empty token.
	ErrInvalidCredentials = errors.New("access and refresh tokens are required")
)

// AuthExpiredError is returned by Client requests that end without a usable
// credential. Reason is one of ErrAuthRejected, ErrRefreshRejected or
// ErrSessionReset. Cause, when set, is the transient refresh failure
// (network, backend or store error) that prevented recovery.
type AuthExpiredError struct {
	Reason   error
	Cause    error
	Response *transport.Response
}

func (e *AuthExpiredError) Error() string {
	msg := "session: " + e.Reason.Error()
	if e.Response != nil {
		msg += fmt.Sprintf(" (status %d)", e.Response.Status)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *AuthExpiredError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Reason}
	}
	return []error{e.Reason, e.Cause}
}

// Terminal reports whether the session is gone and the user must sign in again.
func (e *AuthExpiredError) Terminal() bool {
	return errors.Is(e.Reason, ErrRefreshRejected) || errors.Is(e.Reason, ErrSessionReset)
}

// StatusError is returned by the JSON helpers for a non-2xx response.
type StatusError struct {
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Status)
}

// expired maps a refresh outcome to the error surfaced to a request caller.
// resp is the 401 that triggered the refresh, if any.
func expired(err error, resp *transport.Response) error {
	switch {
	case errors.Is(err, ErrRefreshRejected):
		return &AuthExpiredError{Reason: ErrRefreshRejected, Response: resp}
	case errors.Is(err, ErrSessionReset):
		return &AuthExpiredError{Reason: ErrSessionReset, Response: resp}
	default:
		return &AuthExpiredError{Reason: ErrAuthRejected, Cause: err, Response: resp}
	}
}
