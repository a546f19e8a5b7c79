package usecase

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"sous-chef/internal/domain"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockProvider returns scripted responses, one per Chat call. When the
// script runs out it keeps returning the last response.
type mockProvider struct {
	mu        sync.Mutex
	responses []domain.ChatResponse
	calls     int
	err       error
	reqs      []domain.ChatRequest
}

func (m *mockProvider) Chat(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.reqs = append(m.reqs, req)
	if m.err != nil {
		return nil, m.err
	}
	idx := m.calls - 1
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	resp := m.responses[idx]
	return &resp, nil
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockStreamingProvider implements StreamingModelProvider with one delta
// script per ChatStream call.
type mockStreamingProvider struct {
	mockProvider
	streams [][]domain.StreamDelta
	sIdx    int
}

func (m *mockStreamingProvider) ChatStream(_ context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.reqs = append(m.reqs, req)
	if m.err != nil {
		return nil, m.err
	}

	var deltas []domain.StreamDelta
	if m.sIdx < len(m.streams) {
		deltas = m.streams[m.sIdx]
		m.sIdx++
	} else {
		deltas = []domain.StreamDelta{{Content: "done", Done: true}}
	}

	ch := make(chan domain.StreamDelta, len(deltas))
	for _, d := range deltas {
		ch <- d
	}
	close(ch)
	return ch, nil
}

// stubExecutor records every Execute call and replies from a canned map.
// Unknown names get an error-shaped result, mirroring the real registry.
type stubExecutor struct {
	mu      sync.Mutex
	results map[string]*domain.ToolResult
	calls   []executedCall
	schemas []domain.ToolSchema
}

type executedCall struct {
	name   string
	params string
}

func newStubExecutor() *stubExecutor {
	return &stubExecutor{results: map[string]*domain.ToolResult{}}
}

func (s *stubExecutor) Execute(_ context.Context, name string, params json.RawMessage) *domain.ToolResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, executedCall{name: name, params: string(params)})
	if res, ok := s.results[name]; ok {
		copied := *res
		return &copied
	}
	return &domain.ToolResult{IsError: true, Content: "unknown tool: " + name}
}

func (s *stubExecutor) Schemas() []domain.ToolSchema { return s.schemas }

func (s *stubExecutor) executed() []executedCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]executedCall(nil), s.calls...)
}

// stubLoader returns fixed context data.
type stubLoader struct {
	prefs      string
	inventory  string
	history    []domain.Message
	historyErr error
}

func (s *stubLoader) Preferences(context.Context, string) (string, error) {
	return s.prefs, nil
}

func (s *stubLoader) InventorySummary(context.Context, string) (string, error) {
	return s.inventory, nil
}

func (s *stubLoader) History(context.Context, string, int) ([]domain.Message, error) {
	return s.history, s.historyErr
}

// recordingSink collects stream events in arrival order.
type recordingSink struct {
	mu     sync.Mutex
	events []domain.StreamEvent
	err    error
}

func (r *recordingSink) Send(_ context.Context, ev domain.StreamEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSink) byType(t domain.StreamEventType) []domain.StreamEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.StreamEvent
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recordingSink) all() []domain.StreamEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.StreamEvent(nil), r.events...)
}

func textResponse(content string) domain.ChatResponse {
	return domain.ChatResponse{
		Message: domain.Message{Role: domain.RoleAssistant, Content: content},
		Usage:   domain.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}

func toolCallResponse(calls ...domain.ToolCall) domain.ChatResponse {
	return domain.ChatResponse{
		Message: domain.Message{Role: domain.RoleAssistant, ToolCalls: calls},
		Usage:   domain.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}
