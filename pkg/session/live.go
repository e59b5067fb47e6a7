// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package session

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/aiku/replybot/pkg/connector"
	"github.com/aiku/replybot/pkg/dispatch"
	"github.com/aiku/replybot/pkg/lifecycle"
	"github.com/aiku/replybot/pkg/trigger"
)

// TransportFactory returns a new, unconnected transport.
type TransportFactory func() connector.Transport

// Live connects to the chat network and answers inbound messages until the
// controller halts or ctx is cancelled.
type Live struct {
	Registry     *trigger.Registry
	Dispatcher   *dispatch.Dispatcher
	Controller   *lifecycle.Controller
	NewTransport TransportFactory
	Log          zerolog.Logger
}

// Run starts a session and replaces it every time the controller asks for a
// restart. It returns nil when the account was logged out, the halting
// *lifecycle.DisconnectError for rejected credentials, and ctx.Err() on
// cancellation.
func (l *Live) Run(ctx context.Context) error {
	log := l.Log.With().Str("component", "session").Logger()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		epoch := l.Controller.BeginSession()
		tr := l.NewTransport()
		restart, err := l.runSession(ctx, log.With().Uint64("epoch", epoch).Logger(), epoch, tr)
		tr.Close()
		if !restart {
			return err
		}
		log.Info().Uint64("epoch", epoch).Msg("Restarting session")
	}
}

// runSession drives one transport instance. It reports whether a new session
// should be started.
func (l *Live) runSession(ctx context.Context, log zerolog.Logger, epoch uint64, tr connector.Transport) (bool, error) {
	if err := tr.Connect(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		log.Warn().Err(err).Msg("Failed to connect")
		return l.decide(l.Controller.Handle(epoch, lifecycle.ConnectionState{
			Phase:      lifecycle.Closed,
			StatusCode: lifecycle.StatusCode(err),
			Err:        err,
		}))
	}

	defaults := l.Registry.Defaults()
	events := tr.Events()
	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case evt := <-events:
			switch evt := evt.(type) {
			case connector.CredentialsUpdated:
				log.Info().
					Str("network", evt.Credentials.Network).
					Str("user_id", evt.Credentials.UserID).
					Msg("Credentials updated")
			case connector.ConnectionChanged:
				dec := l.Controller.Handle(epoch, evt.State)
				if dec.Action != lifecycle.ActionNone {
					return l.decide(dec)
				}
			case connector.MessageReceived:
				l.handleMessage(ctx, log, epoch, tr, defaults, evt)
			}
		}
	}
}

func (l *Live) decide(dec lifecycle.Decision) (bool, error) {
	switch dec.Action {
	case lifecycle.ActionHalt:
		if errors.Is(dec.Err, lifecycle.ErrLoggedOut) {
			return false, nil
		}
		return false, dec.Err
	default:
		return true, nil
	}
}

func (l *Live) handleMessage(ctx context.Context, log zerolog.Logger, epoch uint64, tr connector.Transport, defaults []trigger.DefaultRule, msg connector.MessageReceived) {
	if msg.FromSelf {
		return
	}
	sink := &conversationSink{
		transport:      tr,
		conversationID: msg.ConversationID,
		epoch:          epoch,
		epochs:         l.Controller,
	}
	matches := l.Registry.Match(msg.Text)
	report, err := l.Dispatcher.Dispatch(ctx, matches, defaults, sink)
	if err != nil {
		log.Warn().Err(err).
			Str("conversation_id", msg.ConversationID).
			Msg("Dispatch aborted")
		return
	}
	log.Debug().
		Str("conversation_id", msg.ConversationID).
		Str("sender_id", msg.SenderID).
		Int("matches", len(matches)).
		Int("sent", report.Sent).
		Msg("Handled message")
}
