package stream

import (
	"context"
	"strings"
)

// Coalesce merges adjacent chunks from in into fewer, larger chunks. One
// chunk is awaited, then everything already buffered on the channel is folded
// into it before emitting. Concatenated content and chunk order are exactly
// preserved; the output chunk count never exceeds the input count. Chunk
// boundaries carry no meaning to consumers of a coalesced stream.
//
// The merging goroutine exits when in closes or ctx is canceled, so a
// consumer that stops receiving must cancel ctx to release it.
func Coalesce(ctx context.Context, in <-chan string) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		for {
			var chunk string
			select {
			case c, ok := <-in:
				if !ok {
					return
				}
				chunk = c
			case <-ctx.Done():
				return
			}
			var b strings.Builder
			b.WriteString(chunk)
			// Fold in whatever has already arrived.
		drain:
			for {
				select {
				case next, ok := <-in:
					if !ok {
						select {
						case out <- b.String():
						case <-ctx.Done():
						}
						return
					}
					b.WriteString(next)
				default:
					break drain
				}
			}
			select {
			case out <- b.String():
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
