// Copyright 2024-2026 Aiku AI

// Package mattermostfmt renders Mattermost-flavored markdown replies as Matrix
// message content, so a rule written once reads the same on both networks.
package mattermostfmt

import (
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/format"
)

// Render converts markdown text to an m.text message. Raw HTML in text is
// escaped, not passed through. Text without markup yields a body-only
// message.
func Render(text string) *event.MessageEventContent {
	if text == "" {
		return &event.MessageEventContent{MsgType: event.MsgText}
	}
	content := format.RenderMarkdown(text, true, false)
	content.MsgType = event.MsgText
	return &content
}
