// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package matrixfmt reduces Matrix message content to plain text.
package matrixfmt

import (
	"html"
	"regexp"
	"strings"

	"maunium.net/go/mautrix/event"
)

var (
	mxReplyRe = regexp.MustCompile(`(?s)<mx-reply>.*?</mx-reply>`)
	brRe      = regexp.MustCompile(`<br\s*/?>`)
	blockEnd  = regexp.MustCompile(`</(p|div|h[1-6]|blockquote|pre|ul|ol)>`)
	liRe      = regexp.MustCompile(`<li[^>]*>`)
	tagRe     = regexp.MustCompile(`<[^>]+>`)
	blankRe   = regexp.MustCompile(`\n{3,}`)
)

// PlainText returns the text a user sees in a message, without markup and
// without the quoted fallback of a reply.
func PlainText(content *event.MessageEventContent) string {
	if content == nil {
		return ""
	}
	if content.Format == event.FormatHTML && content.FormattedBody != "" {
		return htmlToText(content.FormattedBody)
	}
	if content.RelatesTo != nil && content.RelatesTo.InReplyTo != nil {
		return stripReplyFallback(content.Body)
	}
	return content.Body
}

func htmlToText(text string) string {
	text = mxReplyRe.ReplaceAllString(text, "")
	text = brRe.ReplaceAllString(text, "\n")
	text = blockEnd.ReplaceAllString(text, "\n\n")
	text = liRe.ReplaceAllString(text, "\n- ")
	text = tagRe.ReplaceAllString(text, "")
	text = html.UnescapeString(text)
	text = blankRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// stripReplyFallback removes the "> " quote block a client prepends to the
// body of a reply.
func stripReplyFallback(body string) string {
	if !strings.HasPrefix(body, "> ") {
		return body
	}
	lines := strings.Split(body, "\n")
	i := 0
	for i < len(lines) && strings.HasPrefix(lines[i], ">") {
		i++
	}
	if i < len(lines) && lines[i] == "" {
		i++
	}
	return strings.Join(lines[i:], "\n")
}
