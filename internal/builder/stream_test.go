package builder

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// errAfterReader yields its payload, then fails
type errAfterReader struct {
	r   io.Reader
	err error
}

func (e *errAfterReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err == io.EOF {
		return n, e.err
	}
	return n, err
}

func (e *errAfterReader) Close() error { return nil }

func collect(ch <-chan Line) []Line {
	var out []Line
	for line := range ch {
		out = append(out, line)
	}
	return out
}

func TestStreamLines(t *testing.T) {
	t.Run("delivers lines in order", func(t *testing.T) {
		r := io.NopCloser(strings.NewReader("one\ntwo\nthree\n"))

		lines := collect(StreamLines(context.Background(), r, 4))

		require.Len(t, lines, 3)
		assert.Equal(t, "one", lines[0].Text)
		assert.Equal(t, "two", lines[1].Text)
		assert.Equal(t, "three", lines[2].Text)
		for _, l := range lines {
			assert.NoError(t, l.Err)
		}
	})

	t.Run("works with more lines than buffer", func(t *testing.T) {
		var sb strings.Builder
		for i := 0; i < 100; i++ {
			sb.WriteString("line\n")
		}
		r := io.NopCloser(strings.NewReader(sb.String()))

		lines := collect(StreamLines(context.Background(), r, 4))
		assert.Len(t, lines, 100)
	})

	t.Run("read error arrives as final line", func(t *testing.T) {
		wantErr := errors.New("connection reset")
		r := &errAfterReader{r: strings.NewReader("one\n"), err: wantErr}

		lines := collect(StreamLines(context.Background(), r, 4))

		require.Len(t, lines, 2)
		assert.Equal(t, "one", lines[0].Text)
		assert.ErrorIs(t, lines[1].Err, wantErr)
	})

	t.Run("cancellation closes the channel", func(t *testing.T) {
		pr, pw := io.Pipe()
		ctx, cancel := context.WithCancel(context.Background())

		ch := StreamLines(ctx, pr, 1)

		_, err := pw.Write([]byte("first\n"))
		require.NoError(t, err)

		line, ok := <-ch
		require.True(t, ok)
		assert.Equal(t, "first", line.Text)

		// Fill the buffered slot so the producer blocks on send, then cancel
		_, err = pw.Write([]byte("second\nthird\n"))
		require.NoError(t, err)
		cancel()

		deadline := time.After(2 * time.Second)
		for {
			select {
			case _, ok := <-ch:
				if !ok {
					return
				}
			case <-deadline:
				t.Fatal("channel not closed after cancellation")
			}
		}
	})

	t.Run("zero buffer falls back to default", func(t *testing.T) {
		r := io.NopCloser(strings.NewReader("only\n"))

		lines := collect(StreamLines(context.Background(), r, 0))
		require.Len(t, lines, 1)
		assert.Equal(t, "only", lines[0].Text)
	})
}
