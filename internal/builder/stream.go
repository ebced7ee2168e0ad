package builder

import (
	"bufio"
	"context"
	"io"
)

const defaultStreamBuffer = 256

// Line is one unit of external build/push output
type Line struct {
	Text string
	Err  error
}

// StreamLines bridges a blocking, line-producing reader onto a bounded
// channel. The read loop runs on its own goroutine so the pipeline can
// forward progress without sitting inside the external call; a full channel
// applies backpressure to the producer. The channel is closed when the stream
// ends or the context is canceled; a read error is delivered as the final
// Line before the close.
func StreamLines(ctx context.Context, r io.ReadCloser, buffer int) <-chan Line {
	if buffer <= 0 {
		buffer = defaultStreamBuffer
	}
	out := make(chan Line, buffer)

	go func() {
		defer close(out)
		defer r.Close()

		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			select {
			case out <- Line{Text: scanner.Text()}:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case out <- Line{Err: err}:
			case <-ctx.Done():
			}
		}
	}()

	return out
}
