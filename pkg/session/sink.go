// Copyright 2024-2026 Aiku AI

package session

import (
	"context"

	"github.com/aiku/replybot/pkg/connector"
	"github.com/aiku/replybot/pkg/dispatch"
	"github.com/aiku/replybot/pkg/lifecycle"
)

// epochChecker reports whether a session epoch is still the live one.
type epochChecker interface {
	IsCurrent(epoch uint64) bool
}

// conversationSink sends replies to one conversation through the transport
// of one epoch. Once that epoch is superseded every send fails with
// lifecycle.ErrStaleSession without reaching the transport.
type conversationSink struct {
	transport      connector.Transport
	conversationID string
	epoch          uint64
	epochs         epochChecker
}

var _ dispatch.Sink = (*conversationSink)(nil)

func (s *conversationSink) SendText(ctx context.Context, text string) error {
	if !s.epochs.IsCurrent(s.epoch) {
		return lifecycle.ErrStaleSession
	}
	return s.transport.SendText(ctx, s.conversationID, text)
}

func (s *conversationSink) SendImage(ctx context.Context, url string) error {
	if !s.epochs.IsCurrent(s.epoch) {
		return lifecycle.ErrStaleSession
	}
	return s.transport.SendImage(ctx, s.conversationID, url)
}
