package llm

import (
	"bufio"
	"bytes"
	"context"
	"io"

	"sous-chef/internal/domain"
)

// parseSSEStream turns a server-sent-event body into a StreamDelta channel,
// decoding each data payload with the provider-specific parseLine. The
// channel closes when the stream ends or ctx is cancelled; the body is
// closed either way, so cancelling ctx is how a consumer abandons the
// stream without leaking the connection.
func parseSSEStream(ctx context.Context, body io.ReadCloser, parseLine func(data []byte) (*domain.StreamDelta, error)) <-chan domain.StreamDelta {
	ch := make(chan domain.StreamDelta, 16)
	go func() {
		defer close(ch)
		defer body.Close()

		scanner := bufio.NewScanner(body)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line := scanner.Bytes()

			// Blank lines and ":" comments are keepalive noise.
			if len(line) == 0 || line[0] == ':' {
				continue
			}

			if !bytes.HasPrefix(line, []byte("data: ")) {
				continue
			}
			data := bytes.TrimPrefix(line, []byte("data: "))

			// OpenAI-style end-of-stream marker.
			if bytes.Equal(data, []byte("[DONE]")) {
				ch <- domain.StreamDelta{Done: true}
				return
			}

			delta, err := parseLine(data)
			if err != nil {
				continue // undecodable line, keep reading
			}
			if delta == nil {
				continue
			}

			select {
			case ch <- *delta:
			case <-ctx.Done():
				return
			}

			if delta.Done {
				return
			}
		}
		// A read error still ends the stream for the consumer; surface it
		// as a final Done delta rather than a silent close.
		if err := scanner.Err(); err != nil {
			select {
			case ch <- domain.StreamDelta{Done: true}:
			case <-ctx.Done():
			}
		}
	}()
	return ch
}
