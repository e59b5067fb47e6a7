// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package dispatch turns matched rules into outbound messages.
package dispatch

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aiku/replybot/pkg/trigger"
)

// Sink delivers replies to a single conversation. Every send reports its
// outcome.
type Sink interface {
	SendText(ctx context.Context, text string) error
	SendImage(ctx context.Context, url string) error
}

// ImagePolicy decides what happens to the remaining matches once an image
// reply has been sent.
type ImagePolicy string

const (
	// ImageStop ends the dispatch after the first image reply.
	ImageStop ImagePolicy = "stop"
	// ImageContinue keeps sending the remaining replies.
	ImageContinue ImagePolicy = "continue"
)

// FailurePolicy decides what happens after a send fails.
type FailurePolicy string

const (
	// FailureContinue logs the failure and moves to the next reply.
	FailureContinue FailurePolicy = "continue"
	// FailureAbort stops the dispatch and returns the error.
	FailureAbort FailurePolicy = "abort"
)

// ParseImagePolicy validates a configured image policy. An empty string
// selects ImageStop.
func ParseImagePolicy(s string) (ImagePolicy, error) {
	switch ImagePolicy(s) {
	case "", ImageStop:
		return ImageStop, nil
	case ImageContinue:
		return ImageContinue, nil
	default:
		return "", fmt.Errorf("unknown image policy %q", s)
	}
}

// ParseFailurePolicy validates a configured failure policy. An empty string
// selects FailureContinue.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(s) {
	case "", FailureContinue:
		return FailureContinue, nil
	case FailureAbort:
		return FailureAbort, nil
	default:
		return "", fmt.Errorf("unknown send failure policy %q", s)
	}
}

// Report summarises one dispatch.
type Report struct {
	Sent    int
	Failed  int
	Skipped int
	// Halted is set when replies were left unsent because of the image
	// policy, the failure policy or a cancelled context.
	Halted bool
}

// Dispatcher sends the replies for one inbound message.
type Dispatcher struct {
	log     zerolog.Logger
	images  ImagePolicy
	failure FailurePolicy
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithImagePolicy sets the image policy. The default is ImageStop.
func WithImagePolicy(p ImagePolicy) Option {
	return func(d *Dispatcher) { d.images = p }
}

// WithFailurePolicy sets the failure policy. The default is FailureContinue.
func WithFailurePolicy(p FailurePolicy) Option {
	return func(d *Dispatcher) { d.failure = p }
}

// New creates a Dispatcher logging through log.
func New(log zerolog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		log:     log.With().Str("component", "dispatch").Logger(),
		images:  ImageStop,
		failure: FailureContinue,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch sends the output of every match in order. When nothing matched,
// the text defaults are sent instead. The returned error is non-nil only when
// the failure policy aborted the dispatch or ctx was cancelled.
func (d *Dispatcher) Dispatch(ctx context.Context, matches []trigger.Rule, defaults []trigger.DefaultRule, sink Sink) (Report, error) {
	log := d.log.With().Str("dispatch_id", uuid.NewString()).Logger()
	if len(matches) == 0 {
		return d.sendDefaults(ctx, log, defaults, sink)
	}

	var report Report
	for i, rule := range matches {
		if err := ctx.Err(); err != nil {
			report.Halted = true
			report.Skipped += len(matches) - i
			return report, err
		}
		out := rule.Output
		err := d.send(ctx, out, sink)
		if err != nil {
			report.Failed++
			log.Warn().Err(err).
				Str("trigger", rule.Trigger).
				Stringer("kind", out.Kind()).
				Msg("Failed to send reply")
			if d.failure == FailureAbort {
				report.Halted = true
				report.Skipped += len(matches) - i - 1
				return report, err
			}
			continue
		}
		report.Sent++
		if out.Kind() == trigger.OutputImage && d.images == ImageStop {
			if rest := len(matches) - i - 1; rest > 0 {
				report.Halted = true
				report.Skipped += rest
				log.Debug().Int("skipped", rest).Msg("Image reply sent, skipping remaining matches")
			}
			break
		}
	}
	log.Debug().
		Int("matches", len(matches)).
		Int("sent", report.Sent).
		Int("failed", report.Failed).
		Msg("Dispatched replies")
	return report, nil
}

func (d *Dispatcher) sendDefaults(ctx context.Context, log zerolog.Logger, defaults []trigger.DefaultRule, sink Sink) (Report, error) {
	var report Report
	for i, def := range defaults {
		if err := ctx.Err(); err != nil {
			report.Halted = true
			report.Skipped += len(defaults) - i
			return report, err
		}
		text, ok := def.Output.Text()
		if !ok {
			report.Skipped++
			log.Warn().Stringer("kind", def.Output.Kind()).Msg("Skipping non-text default reply")
			continue
		}
		if err := sink.SendText(ctx, text); err != nil {
			report.Failed++
			log.Warn().Err(err).Msg("Failed to send default reply")
			if d.failure == FailureAbort {
				report.Halted = true
				report.Skipped += len(defaults) - i - 1
				return report, err
			}
			continue
		}
		report.Sent++
	}
	return report, nil
}

func (d *Dispatcher) send(ctx context.Context, out trigger.Output, sink Sink) error {
	switch out.Kind() {
	case trigger.OutputText:
		text, _ := out.Text()
		return sink.SendText(ctx, text)
	case trigger.OutputImage:
		url, _ := out.ImageURL()
		return sink.SendImage(ctx, url)
	default:
		return fmt.Errorf("unsupported output kind %v", out.Kind())
	}
}
