package domain

import "context"

// StreamEventType identifies the kind of event emitted during a streamed turn.
type StreamEventType string

const (
	StreamToken           StreamEventType = "token"
	StreamToolCallStarted StreamEventType = "tool_call_started"
	StreamToolResult      StreamEventType = "tool_result"
	StreamDone            StreamEventType = "done"
	StreamError           StreamEventType = "error"
)

// StreamEvent is one element of the ordered event sequence emitted during a
// streamed turn. Exactly the fields implied by Type are set: Token for
// token events, ToolName/Arguments for tool_call_started, ToolName/Result
// for tool_result, Final for done, Message for error.
type StreamEvent struct {
	Type      StreamEventType `json:"type"`
	Token     string          `json:"token,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	Arguments map[string]any  `json:"arguments,omitempty"`
	Result    any             `json:"result,omitempty"`
	Final     *TurnResult     `json:"final,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// EventSink receives stream events in emission order. Delivery is
// synchronous with assembly: the engine does not buffer or reorder between
// producing an event and handing it to the sink. A Send error aborts the
// stream at the next suspension point.
type EventSink interface {
	Send(ctx context.Context, ev StreamEvent) error
}

// SinkFunc adapts a function to the EventSink interface.
type SinkFunc func(ctx context.Context, ev StreamEvent) error

// Send implements EventSink.
func (f SinkFunc) Send(ctx context.Context, ev StreamEvent) error { return f(ctx, ev) }
