// Package stream provides the lazy text-chunk sequence used by streaming
// backend operations and the coalescing adapter that reduces frame overhead.
package stream

import (
	"context"
	"fmt"
)

// Stream is a lazily produced sequence of text chunks. Consumers receive
// from Chunks until it closes, then check Err for a mid-stream failure.
type Stream interface {
	Chunks() <-chan string
	// Err is valid once Chunks has been closed.
	Err() error
}

// Text is a producer-side Stream backed by a buffered channel. The producer
// calls Send for each chunk and Close exactly once when done.
type Text struct {
	ch  chan string
	err error
}

// NewText creates a Text stream with the given channel buffer size.
func NewText(buffer int) *Text {
	return &Text{ch: make(chan string, buffer)}
}

// Send delivers one chunk, blocking until the consumer accepts it or ctx is
// canceled.
func (t *Text) Send(ctx context.Context, chunk string) error {
	select {
	case t.ch <- chunk:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stream canceled: %w", ctx.Err())
	}
}

// Close ends the stream. A non-nil err is surfaced to the consumer through
// Err after the channel drains. Close must be called exactly once.
func (t *Text) Close(err error) {
	t.err = err
	close(t.ch)
}

// Chunks returns the receive side of the stream.
func (t *Text) Chunks() <-chan string { return t.ch }

// Err returns the terminal error, if any. Only meaningful after Chunks has
// closed; the channel close orders the write to t.err before this read.
func (t *Text) Err() error { return t.err }

// FromSlice returns an already-closed stream over the given chunks.
// Intended for tests and fixed payloads.
func FromSlice(chunks []string) *Text {
	t := NewText(len(chunks))
	for _, c := range chunks {
		t.ch <- c
	}
	t.Close(nil)
	return t
}
