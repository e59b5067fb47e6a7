// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package connector

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"

	"github.com/aiku/replybot/pkg/connector/matrixfmt"
	"github.com/aiku/replybot/pkg/lifecycle"
)

// handleMessage turns an m.room.message event from /sync into a
// MessageReceived event.
func (t *MatrixTransport) handleMessage(_ context.Context, evt *event.Event) {
	content := evt.Content.AsMessage()
	if content == nil {
		return
	}
	switch content.MsgType {
	case event.MsgText, event.MsgNotice:
	default:
		t.log.Trace().
			Stringer("event_id", evt.ID).
			Str("msgtype", string(content.MsgType)).
			Msg("Ignoring non-text message")
		return
	}
	// Edits arrive as new events and are not treated as new messages.
	if content.RelatesTo != nil && content.RelatesTo.Type == event.RelReplace {
		return
	}

	fromSelf := false
	if cli, err := t.client(); err == nil {
		fromSelf = evt.Sender == cli.UserID
	}

	t.log.Debug().
		Stringer("event_id", evt.ID).
		Stringer("room_id", evt.RoomID).
		Stringer("sender", evt.Sender).
		Bool("from_self", fromSelf).
		Msg("Received new message")

	t.emit(MessageReceived{
		FromSelf:       fromSelf,
		ConversationID: evt.RoomID.String(),
		SenderID:       evt.Sender.String(),
		Text:           matrixfmt.PlainText(content),
	})
}

func matrixHandshakeError(err error) error {
	return &lifecycle.StatusError{
		StatusCode: matrixStatus(err),
		Err:        fmt.Errorf("%w: %w", lifecycle.ErrHandshake, err),
	}
}

// matrixStatus maps a client-server API error to an HTTP status. Token
// errors are matched by errcode since some homeservers answer them with
// unusual statuses.
func matrixStatus(err error) int {
	switch {
	case errors.Is(err, mautrix.MUnknownToken):
		return http.StatusUnauthorized
	case errors.Is(err, mautrix.MForbidden):
		return http.StatusForbidden
	}
	var httpErr mautrix.HTTPError
	if errors.As(err, &httpErr) && httpErr.Response != nil {
		return httpErr.Response.StatusCode
	}
	return 0
}
