// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"

	"github.com/aiku/replybot/pkg/credstore"
	"github.com/aiku/replybot/pkg/lifecycle"
)

// eventBuffer is the capacity of a transport's event channel.
const eventBuffer = 64

// Transport is one session with a chat network.
type Transport interface {
	// Connect restores or acquires credentials, performs the handshake and
	// starts delivering events. Handshake failures wrap lifecycle.ErrHandshake
	// and carry the server status in a *lifecycle.StatusError.
	Connect(ctx context.Context) error
	// Events returns the channel all events of this session arrive on. The
	// channel is never closed.
	Events() <-chan Event
	SendText(ctx context.Context, conversationID, text string) error
	SendImage(ctx context.Context, conversationID, url string) error
	// Close tears the session down. Sends after Close fail with
	// lifecycle.ErrStaleSession.
	Close()
}

// CredentialStore is the persistence a transport needs for its session.
type CredentialStore interface {
	Load() (credstore.Credentials, bool, error)
	Save(credstore.Credentials) error
}

// Event is something a transport observed.
type Event interface {
	isEvent()
}

// CredentialsUpdated is emitted after new credentials have been persisted.
type CredentialsUpdated struct {
	Credentials credstore.Credentials
}

// ConnectionChanged reports a connection state transition.
type ConnectionChanged struct {
	State lifecycle.ConnectionState
}

// MessageReceived is an inbound text message.
type MessageReceived struct {
	// FromSelf is set for messages sent by the logged-in account.
	FromSelf       bool
	ConversationID string
	SenderID       string
	Text           string
}

func (CredentialsUpdated) isEvent() {}
func (ConnectionChanged) isEvent()  {}
func (MessageReceived) isEvent()    {}

// session is the per-instance plumbing shared by the transports: the event
// channel and a context that ends when the instance is closed.
type session struct {
	events chan Event
	ctx    context.Context
	cancel context.CancelFunc
}

func newSession() session {
	ctx, cancel := context.WithCancel(context.Background())
	return session{
		events: make(chan Event, eventBuffer),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *session) Events() <-chan Event {
	return s.events
}

// emit delivers evt unless the session has been closed. It reports whether
// the event was queued.
func (s *session) emit(evt Event) bool {
	if s.ctx.Err() != nil {
		return false
	}
	select {
	case s.events <- evt:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *session) setState(phase lifecycle.Phase, status int, err error) {
	s.emit(ConnectionChanged{State: lifecycle.ConnectionState{Phase: phase, StatusCode: status, Err: err}})
}

// live returns lifecycle.ErrStaleSession once the session is closed, or the
// caller's context error.
func (s *session) live(ctx context.Context) error {
	if s.ctx.Err() != nil {
		return lifecycle.ErrStaleSession
	}
	return ctx.Err()
}

// opContext derives a context that also ends when the session is closed.
func (s *session) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
