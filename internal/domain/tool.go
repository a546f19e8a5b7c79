package domain

import (
	"context"
	"encoding/json"
)

// ToolSchema describes a tool for the model's function-calling protocol.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCall represents a model's request to invoke a tool. Arguments holds
// the serialized parameter object; it is only guaranteed to be complete
// (and possibly still malformed) once delta assembly has finished.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolCallDelta is a streamed fragment of a tool call. Index is the only
// stable correlation key across fragments: the ID may be empty on the first
// fragment and populated later, and fragments for different indices may
// interleave arbitrarily.
type ToolCallDelta struct {
	Index     int    `json:"index"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// ToolResult is the outcome of executing a tool.
type ToolResult struct {
	ToolCallID string            `json:"tool_call_id,omitempty"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	IsError    bool              `json:"is_error"`
}

// Tool is the interface every tool must implement.
type Tool interface {
	Name() string
	Description() string
	Schema() ToolSchema
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ToolExecutor abstracts tool dispatch for the round controller and the
// fallback responder. Execute never returns a Go error: an unknown tool
// name and a failing executor both yield an error-shaped ToolResult, so
// callers treat "tool failed" and "tool unknown" uniformly. Schemas returns
// tool schemas in registration order, stable for the process lifetime.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, params json.RawMessage) *ToolResult
	Schemas() []ToolSchema
}
