// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package lifecycle

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

type fakeCreds struct {
	deleted int
	err     error
}

func (f *fakeCreds) Delete() error {
	f.deleted++
	return f.err
}

func newTestController(creds *fakeCreds) *Controller {
	return NewController(creds, DefaultStatusCodes, zerolog.Nop())
}

func TestHandleOpenIsNoop(t *testing.T) {
	t.Parallel()
	creds := &fakeCreds{}
	c := newTestController(creds)
	epoch := c.BeginSession()

	if c.Phase() != Connecting {
		t.Fatalf("phase after BeginSession: got %v", c.Phase())
	}
	d := c.Handle(epoch, ConnectionState{Phase: Open})
	if d.Action != ActionNone || d.Err != nil {
		t.Errorf("Open: got %+v", d)
	}
	if c.Phase() != Open {
		t.Errorf("phase: got %v, want open", c.Phase())
	}
	if creds.deleted != 0 {
		t.Error("Open must not touch credentials")
	}
}

// Scenario D: unauthorized wipes credentials and does not reconnect.
func TestHandleUnauthorizedWipesAndHalts(t *testing.T) {
	t.Parallel()
	creds := &fakeCreds{}
	c := newTestController(creds)
	epoch := c.BeginSession()

	d := c.Handle(epoch, ConnectionState{Phase: Closed, StatusCode: http.StatusUnauthorized})
	if d.Action != ActionHalt {
		t.Fatalf("Action: got %v, want halt", d.Action)
	}
	if creds.deleted != 1 {
		t.Errorf("credentials deleted %d times, want 1", creds.deleted)
	}
	if !errors.Is(d.Err, ErrUnauthorized) {
		t.Errorf("decision error should be ErrUnauthorized, got %v", d.Err)
	}
}

func TestHandleUnauthorizedDeleteFailure(t *testing.T) {
	t.Parallel()
	creds := &fakeCreds{err: errors.New("read-only fs")}
	c := newTestController(creds)
	epoch := c.BeginSession()

	d := c.Handle(epoch, ConnectionState{Phase: Closed, StatusCode: http.StatusUnauthorized})
	if d.Action != ActionHalt {
		t.Fatalf("Action: got %v, want halt", d.Action)
	}
	if !errors.Is(d.Err, ErrUnauthorized) || !strings.Contains(d.Err.Error(), "read-only fs") {
		t.Errorf("decision error should carry both causes, got %v", d.Err)
	}
}

func TestHandleLoggedOutIsTerminal(t *testing.T) {
	t.Parallel()
	creds := &fakeCreds{}
	c := newTestController(creds)
	epoch := c.BeginSession()

	d := c.Handle(epoch, ConnectionState{Phase: Closed, StatusCode: http.StatusForbidden})
	if d.Action != ActionHalt {
		t.Fatalf("Action: got %v, want halt", d.Action)
	}
	if !errors.Is(d.Err, ErrLoggedOut) {
		t.Errorf("got %v, want ErrLoggedOut", d.Err)
	}
	if creds.deleted != 0 {
		t.Error("logout must not delete credentials")
	}
}

// Scenario E: any other reason restarts.
func TestHandleTransientRestarts(t *testing.T) {
	t.Parallel()
	for _, status := range []int{0, http.StatusBadGateway, 1006, 515} {
		creds := &fakeCreds{}
		c := newTestController(creds)
		epoch := c.BeginSession()

		d := c.Handle(epoch, ConnectionState{Phase: Closed, StatusCode: status, Err: errors.New("eof")})
		if d.Action != ActionRestart {
			t.Errorf("status %d: Action %v, want restart", status, d.Action)
		}
		if !errors.Is(d.Err, ErrTransientDisconnect) {
			t.Errorf("status %d: got %v, want ErrTransientDisconnect", status, d.Err)
		}
		if creds.deleted != 0 {
			t.Errorf("status %d: credentials must be kept", status)
		}
	}
}

func TestHandleIgnoresSupersededEpoch(t *testing.T) {
	t.Parallel()
	creds := &fakeCreds{}
	c := newTestController(creds)
	old := c.BeginSession()
	current := c.BeginSession()

	if c.IsCurrent(old) || !c.IsCurrent(current) {
		t.Fatalf("epochs: old=%d current=%d live=%d", old, current, c.Current())
	}
	d := c.Handle(old, ConnectionState{Phase: Closed, StatusCode: http.StatusUnauthorized})
	if d.Action != ActionNone {
		t.Errorf("stale close: got %v, want none", d.Action)
	}
	if creds.deleted != 0 {
		t.Error("stale close must not delete credentials")
	}
}

func TestClassifyCustomCodes(t *testing.T) {
	t.Parallel()
	codes := StatusCodes{Unauthorized: 401, LoggedOut: 440}
	tests := []struct {
		status int
		want   DisconnectReason
	}{
		{401, ReasonUnauthorized},
		{440, ReasonLoggedOut},
		{403, ReasonOther},
		{0, ReasonOther},
	}
	for _, tt := range tests {
		if got := codes.Classify(tt.status); got != tt.want {
			t.Errorf("Classify(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
	// An unset code must not turn "no status" into a terminal reason.
	if got := (StatusCodes{}).Classify(0); got != ReasonOther {
		t.Errorf("zero table Classify(0) = %v, want other", got)
	}
}

func TestStatusCodeExtraction(t *testing.T) {
	t.Parallel()
	base := errors.New("nope")
	if got := StatusCode(&StatusError{StatusCode: 401, Err: base}); got != 401 {
		t.Errorf("StatusError: got %d", got)
	}
	wrapped := errors.Join(errors.New("ctx"), &DisconnectError{Reason: ReasonOther, StatusCode: 502})
	if got := StatusCode(wrapped); got != 502 {
		t.Errorf("DisconnectError: got %d", got)
	}
	if got := StatusCode(base); got != 0 {
		t.Errorf("plain error: got %d", got)
	}
}

func TestDisconnectErrorMessage(t *testing.T) {
	t.Parallel()
	err := &DisconnectError{Reason: ReasonUnauthorized, StatusCode: 401, Err: errors.New("token expired")}
	want := "disconnected (unauthorized, status 401): token expired"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
	if errors.Is(err, ErrLoggedOut) {
		t.Error("unauthorized must not match ErrLoggedOut")
	}
}
