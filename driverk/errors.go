package driverk

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// revive:exported
var (
	ErrSessionClosed = errors.New("session closed")
	ErrCloseTimedOut = errors.New("timed out waiting for session to close")
)

// NoSuchElementErr when a query exhausted its timeout without a match
type NoSuchElementErr struct {
	Message string
}

func (e *NoSuchElementErr) Error() string {
	return "unable to find element " + e.Message
}

// StaleElementErr when a handle no longer references a node in the document
type StaleElementErr struct {
	ID      string
	Message string
}

func (e *StaleElementErr) Error() string {
	if e.Message == "" {
		return "stale element " + e.ID
	}
	return "stale element " + e.ID + ": " + e.Message
}

// TimeoutErr when a wait's conditions never held
type TimeoutErr struct {
	Message string
}

func (e *TimeoutErr) Error() string {
	return "timed out " + e.Message
}

// NoSuchWindowErr when the window or tab of the session is gone
type NoSuchWindowErr struct {
	Message string
}

func (e *NoSuchWindowErr) Error() string {
	return "no such window: " + e.Message
}

// ProtocolErr for transport failures, malformed responses and remote errors we
// do not map to anything more specific.
type ProtocolErr struct {
	Command string
	Status  int    // http status, 0 if not applicable
	Code    string // remote error code
	Message string
	Err     error
}

func (e *ProtocolErr) Error() string {
	msg := "protocol error"
	if e.Command != "" {
		msg += " [" + e.Command + "]"
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" status %d", e.Status)
	}
	if e.Code != "" {
		msg += " " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolErr) Unwrap() error {
	return e.Err
}

// ValidationErr for queries and waiters built with unusable settings
type ValidationErr struct {
	Message string
}

func (e *ValidationErr) Error() string {
	return "invalid: " + e.Message
}

// IsFatal reports errors that mean we can no longer evaluate anything, as
// opposed to a condition that simply does not hold yet.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSessionClosed) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var protoErr *ProtocolErr
	if errors.As(err, &protoErr) {
		return true
	}
	var windowErr *NoSuchWindowErr
	return errors.As(err, &windowErr)
}

// IsStale reports a *StaleElementErr anywhere in the chain
func IsStale(err error) bool {
	var staleErr *StaleElementErr
	return errors.As(err, &staleErr)
}

// IsNoSuchElement reports a *NoSuchElementErr anywhere in the chain
func IsNoSuchElement(err error) bool {
	var notFound *NoSuchElementErr
	return errors.As(err, &notFound)
}

// IsTimeout reports a *TimeoutErr anywhere in the chain
func IsTimeout(err error) bool {
	var timeoutErr *TimeoutErr
	return errors.As(err, &timeoutErr)
}
