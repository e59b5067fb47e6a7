// Copyright 2024-2026 Aiku AI

package lifecycle

import (
	"fmt"
	"net/http"
)

// Phase is the coarse connection state.
type Phase int

const (
	Connecting Phase = iota
	Open
	Closed
)

func (p Phase) String() string {
	switch p {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// DisconnectReason classifies a closed connection.
type DisconnectReason int

const (
	// ReasonOther covers network errors, server restarts and anything else
	// that a fresh connection may fix.
	ReasonOther DisconnectReason = iota
	// ReasonUnauthorized means the stored credentials are no longer valid.
	ReasonUnauthorized
	// ReasonLoggedOut means the server ended the session for good.
	ReasonLoggedOut
)

func (r DisconnectReason) String() string {
	switch r {
	case ReasonOther:
		return "other"
	case ReasonUnauthorized:
		return "unauthorized"
	case ReasonLoggedOut:
		return "logged_out"
	default:
		return fmt.Sprintf("DisconnectReason(%d)", int(r))
	}
}

func (r DisconnectReason) sentinel() error {
	switch r {
	case ReasonUnauthorized:
		return ErrUnauthorized
	case ReasonLoggedOut:
		return ErrLoggedOut
	default:
		return ErrTransientDisconnect
	}
}

// ConnectionState is a state transition reported by a transport.
type ConnectionState struct {
	Phase Phase
	// StatusCode is the transport status behind a Closed state, 0 if none.
	StatusCode int
	// Err is the transport error behind a Closed state, if any.
	Err error
}

// StatusCodes maps transport status codes to disconnect reasons.
type StatusCodes struct {
	Unauthorized int `yaml:"unauthorized"`
	LoggedOut    int `yaml:"logged_out"`
}

// DefaultStatusCodes treats 401 as unauthorized and 403 as logged out.
var DefaultStatusCodes = StatusCodes{
	Unauthorized: http.StatusUnauthorized,
	LoggedOut:    http.StatusForbidden,
}

// Classify maps a status code to a DisconnectReason. Zero never matches.
func (sc StatusCodes) Classify(status int) DisconnectReason {
	switch {
	case status == 0:
		return ReasonOther
	case status == sc.Unauthorized:
		return ReasonUnauthorized
	case status == sc.LoggedOut:
		return ReasonLoggedOut
	default:
		return ReasonOther
	}
}
