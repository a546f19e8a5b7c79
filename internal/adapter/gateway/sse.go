package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"sous-chef/internal/domain"
)

// sseSink adapts an http.ResponseWriter into a domain.EventSink, framing
// each engine event as one server-sent event. Events are flushed as they
// arrive so tokens reach the client incrementally.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// newSSESink prepares the response for event streaming. Returns an error
// when the writer does not support flushing.
func newSSESink(w http.ResponseWriter) (*sseSink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	return &sseSink{w: w, flusher: flusher}, nil
}

// Send writes one event as "event: <type>" plus a JSON data line. A write
// error means the client went away; the engine aborts the turn on it.
func (s *sseSink) Send(ctx context.Context, ev domain.StreamEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return domain.WrapOp("sse write", domain.ErrStreamClosed)
	}
	s.flusher.Flush()
	return nil
}
