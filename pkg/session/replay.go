// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package session runs the responder, either against a live chat network or
// against lines read from a local stream.
package session

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aiku/replybot/pkg/dispatch"
	"github.com/aiku/replybot/pkg/trigger"
)

// maxLineSize bounds a single replayed line.
const maxLineSize = 1 << 20

// Replay feeds each line of In through the registry and writes the replies
// to Out. No network or credentials are involved.
type Replay struct {
	Registry   *trigger.Registry
	Dispatcher *dispatch.Dispatcher
	In         io.Reader
	Out        io.Writer
	Log        zerolog.Logger
}

// Run processes lines until In is exhausted or ctx is cancelled. Surrounding
// whitespace is trimmed before matching. Cancellation returns without
// waiting for a pending read on In to complete.
func (r *Replay) Run(ctx context.Context) error {
	log := r.Log.With().Str("component", "replay").Logger()
	sink := &dispatch.WriterSink{W: r.Out}
	defaults := r.Registry.Defaults()

	done := make(chan struct{})
	defer close(done)
	input, readErr := r.readLines(done)

	lines := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok = <-input:
		}
		if !ok {
			if err := <-readErr; err != nil {
				return fmt.Errorf("failed to read input: %w", err)
			}
			log.Debug().Int("lines", lines).Msg("Replay finished")
			return nil
		}
		lines++
		matches := r.Registry.Match(strings.TrimSpace(line))
		if _, err := r.Dispatcher.Dispatch(ctx, matches, defaults, sink); err != nil {
			return fmt.Errorf("line %d: %w", lines, err)
		}
	}
}

// readLines scans In on its own goroutine. The line channel is closed once
// In is exhausted, after the scan error (possibly nil) has been sent. The
// goroutine exits early when done is closed.
func (r *Replay) readLines(done <-chan struct{}) (<-chan string, <-chan error) {
	lines := make(chan string)
	errs := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r.In)
		scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		errs <- scanner.Err()
	}()
	return lines, errs
}
