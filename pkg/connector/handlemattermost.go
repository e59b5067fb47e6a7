// Copyright 2024-2026 Aiku AI

package connector

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mattermost/mattermost/server/public/model"
)

// handleEvent dispatches a Mattermost WebSocket event to the appropriate handler.
func (m *MattermostTransport) handleEvent(evt *model.WebSocketEvent) {
	switch evt.EventType() {
	case model.WebsocketEventPosted:
		m.handlePosted(evt)
	default:
		m.log.Trace().Str("event_type", string(evt.EventType())).Msg("Unhandled event type")
	}
}

// parsePostedEvent extracts and validates a post from a WebSocket event,
// applying the echo prevention layers that drop a post outright. Own posts
// are returned with fromSelf set. Returns (nil, false, nil) to skip silently.
func (m *MattermostTransport) parsePostedEvent(evt *model.WebSocketEvent) (post *model.Post, fromSelf bool, err error) {
	postJSON, ok := evt.GetData()["post"].(string)
	if !ok {
		return nil, false, fmt.Errorf("posted event missing post data")
	}

	post = &model.Post{}
	if err = json.Unmarshal([]byte(postJSON), post); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal post: %w", err)
	}

	// Echo prevention: skip non-default post types (system messages).
	if post.Type != "" && post.Type != model.PostTypeDefault {
		return nil, false, nil
	}

	if post.UserId == m.UserID() {
		return post, true, nil
	}

	// Echo prevention: skip posts from usernames matching the bot prefix.
	senderName, _ := evt.GetData()["sender_name"].(string)
	senderName = strings.TrimPrefix(senderName, "@")
	if senderName != "" && isBotUsername(senderName, m.cfg.BotPrefix) {
		m.log.Debug().
			Str("post_id", post.Id).
			Str("username", senderName).
			Msg("Skipping bot username post (echo prevention)")
		return nil, false, nil
	}

	return post, false, nil
}

func (m *MattermostTransport) handlePosted(evt *model.WebSocketEvent) {
	post, fromSelf, err := m.parsePostedEvent(evt)
	if err != nil {
		m.log.Warn().Err(err).Msg("Failed to parse posted event")
		return
	}
	if post == nil {
		return
	}

	channelID := post.ChannelId
	if channelID == "" && evt.GetBroadcast() != nil {
		channelID = evt.GetBroadcast().ChannelId
	}

	m.log.Debug().
		Str("post_id", post.Id).
		Str("channel_id", channelID).
		Str("user_id", post.UserId).
		Bool("from_self", fromSelf).
		Msg("Received new message")

	m.emit(MessageReceived{
		FromSelf:       fromSelf,
		ConversationID: channelID,
		SenderID:       post.UserId,
		Text:           post.Message,
	})
}

// isBotUsername reports whether username carries the configured bot prefix.
func isBotUsername(username, botPrefix string) bool {
	return botPrefix != "" && strings.HasPrefix(username, botPrefix)
}
