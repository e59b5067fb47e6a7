// Copyright 2024-2026 Aiku AI

package dispatch

import (
	"context"
	"fmt"
	"io"
)

// WriterSink prints replies to an io.Writer, one per line. Images are
// printed as "[image] <url>".
type WriterSink struct {
	W io.Writer
}

var _ Sink = (*WriterSink)(nil)

func (s *WriterSink) SendText(_ context.Context, text string) error {
	_, err := fmt.Fprintln(s.W, text)
	return err
}

func (s *WriterSink) SendImage(_ context.Context, url string) error {
	_, err := fmt.Fprintln(s.W, "[image] "+url)
	return err
}
