package gateway

import "encoding/json"

// FrameType tags a Frame: client request, server response, or a streamed
// engine event in between.
type FrameType string

const (
	FrameTypeRequest  FrameType = "request"
	FrameTypeResponse FrameType = "response"
	FrameTypeEvent    FrameType = "event"
)

// Frame is the single envelope the WebSocket gateway speaks. One chat
// request produces zero or more event frames followed by exactly one
// response frame; all three carry the request's ID, which is how a client
// running nothing else concurrently can still correlate them.
type Frame struct {
	Type    FrameType       `json:"type"`
	ID      uint64          `json:"id,omitempty"`      // request/response correlation ID
	Method  string          `json:"method,omitempty"`  // RPC method name (request only)
	Payload json.RawMessage `json:"payload,omitempty"` // request params, response result, or event body
	Error   string          `json:"error,omitempty"`   // error description (response only)
}
