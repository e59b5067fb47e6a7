// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package lifecycle decides what to do when a transport connection changes
// state: nothing, reconnect, or stop (after wiping rejected credentials).
package lifecycle

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// CredentialDeleter removes persisted credentials.
type CredentialDeleter interface {
	Delete() error
}

// Action is the controller's answer to a state change.
type Action int

const (
	// ActionNone keeps the current session running.
	ActionNone Action = iota
	// ActionRestart discards the transport and starts a new session.
	ActionRestart
	// ActionHalt ends the process-wide session.
	ActionHalt
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionRestart:
		return "restart"
	case ActionHalt:
		return "halt"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Decision is the outcome of Controller.Handle.
type Decision struct {
	Action Action
	// Err explains a halt. It is a *DisconnectError, joined with the deletion
	// error when credentials could not be removed.
	Err error
}

// Controller owns the connection state machine. One Controller lives for the
// whole process; each transport instance runs under an epoch obtained from
// BeginSession.
type Controller struct {
	creds CredentialDeleter
	codes StatusCodes
	log   zerolog.Logger

	epoch atomic.Uint64

	mu    sync.Mutex
	phase Phase
}

// NewController creates a controller that wipes credentials through creds.
func NewController(creds CredentialDeleter, codes StatusCodes, log zerolog.Logger) *Controller {
	return &Controller{
		creds: creds,
		codes: codes,
		log:   log.With().Str("component", "lifecycle").Logger(),
		phase: Closed,
	}
}

// BeginSession starts a new epoch and returns it. Operations tagged with an
// older epoch are stale from now on.
func (c *Controller) BeginSession() uint64 {
	c.mu.Lock()
	c.phase = Connecting
	c.mu.Unlock()
	epoch := c.epoch.Add(1)
	c.log.Debug().Uint64("epoch", epoch).Msg("Starting session")
	return epoch
}

// Current returns the live epoch.
func (c *Controller) Current() uint64 {
	return c.epoch.Load()
}

// IsCurrent reports whether epoch is the live one.
func (c *Controller) IsCurrent(epoch uint64) bool {
	return c.epoch.Load() == epoch
}

// Phase returns the last phase handled.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Classify maps a status code with the controller's status table.
func (c *Controller) Classify(status int) DisconnectReason {
	return c.codes.Classify(status)
}

// Handle applies a state change reported by the transport of epoch.
// Changes from superseded epochs are ignored.
func (c *Controller) Handle(epoch uint64, state ConnectionState) Decision {
	if !c.IsCurrent(epoch) {
		c.log.Debug().
			Uint64("epoch", epoch).
			Uint64("current_epoch", c.Current()).
			Stringer("phase", state.Phase).
			Msg("Ignoring state change from superseded session")
		return Decision{Action: ActionNone}
	}

	c.mu.Lock()
	c.phase = state.Phase
	c.mu.Unlock()

	switch state.Phase {
	case Connecting:
		return Decision{Action: ActionNone}
	case Open:
		c.log.Info().Uint64("epoch", epoch).Msg("Connection open")
		return Decision{Action: ActionNone}
	case Closed:
		return c.handleClosed(state)
	default:
		c.log.Warn().Stringer("phase", state.Phase).Msg("Unknown connection phase")
		return Decision{Action: ActionNone}
	}
}

func (c *Controller) handleClosed(state ConnectionState) Decision {
	reason := c.codes.Classify(state.StatusCode)
	discErr := &DisconnectError{Reason: reason, StatusCode: state.StatusCode, Err: state.Err}
	log := c.log.With().
		Stringer("reason", reason).
		Int("status_code", state.StatusCode).
		Logger()

	switch reason {
	case ReasonUnauthorized:
		log.Error().Err(state.Err).Msg("Unauthorized, removing stored credentials")
		if err := c.creds.Delete(); err != nil {
			log.Error().Err(err).Msg("Failed to remove stored credentials")
			return Decision{Action: ActionHalt, Err: fmt.Errorf("%w (credential removal failed: %w)", discErr, err)}
		}
		return Decision{Action: ActionHalt, Err: discErr}
	case ReasonLoggedOut:
		log.Warn().Err(state.Err).Msg("Logged out, stopping")
		return Decision{Action: ActionHalt, Err: discErr}
	default:
		log.Warn().Err(state.Err).Msg("Connection closed, reconnecting")
		return Decision{Action: ActionRestart, Err: discErr}
	}
}
