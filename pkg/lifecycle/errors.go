// Copyright 2024-2026 Aiku AI

package lifecycle

import (
	"errors"
	"fmt"
)

var (
	// ErrHandshake marks a failure to establish a session.
	ErrHandshake = errors.New("transport handshake failed")
	// ErrUnauthorized marks credentials the server rejected.
	ErrUnauthorized = errors.New("credentials rejected")
	// ErrLoggedOut marks a session the server ended for good.
	ErrLoggedOut = errors.New("logged out")
	// ErrTransientDisconnect marks a disconnect that warrants a reconnect.
	ErrTransientDisconnect = errors.New("transient disconnect")
	// ErrSendFailure marks an outbound message that was not delivered.
	ErrSendFailure = errors.New("send failed")
	// ErrStaleSession is returned for operations issued by a transport that
	// has since been replaced.
	ErrStaleSession = errors.New("session superseded")
)

// DisconnectError describes why a connection closed. It matches the sentinel
// for its Reason with errors.Is and unwraps to the transport error.
type DisconnectError struct {
	Reason     DisconnectReason
	StatusCode int
	Err        error
}

func (e *DisconnectError) Error() string {
	msg := fmt.Sprintf("disconnected (%s", e.Reason)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(", status %d", e.StatusCode)
	}
	msg += ")"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DisconnectError) Unwrap() error {
	return e.Err
}

func (e *DisconnectError) Is(target error) bool {
	return target == e.Reason.sentinel()
}

// StatusError carries the status code a transport observed alongside the
// underlying error. Adapters return it so the controller can classify
// handshake failures like close events.
type StatusError struct {
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %v", e.StatusCode, e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// StatusCode extracts the status code from err, or 0 if it carries none.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	var de *DisconnectError
	if errors.As(err, &de) {
		return de.StatusCode
	}
	return 0
}
