package usecase

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sous-chef/internal/domain"
)

func buildReqFor(state []domain.Message) domain.ChatRequest {
	return domain.ChatRequest{Model: "test-model", Messages: state}
}

func userState(message string) []domain.Message {
	return []domain.Message{
		{Role: domain.RoleSystem, Content: "system"},
		{Role: domain.RoleUser, Content: message},
	}
}

func TestRoundsTextOnlyTerminates(t *testing.T) {
	provider := &mockProvider{responses: []domain.ChatResponse{textResponse("hi there")}}
	rc := newRoundController(provider, newStubExecutor(), newTestLogger(), 5)

	result, err := rc.run(context.Background(), userState("hello"), buildReqFor, nil)
	require.NoError(t, err)
	assert.Equal(t, "hi there", result.Content)
	assert.Empty(t, result.ToolCalls)
	assert.Equal(t, 1, provider.callCount())
	require.NotNil(t, result.Usage)
	assert.Equal(t, 15, result.Usage.TotalTokens)
}

func TestRoundsToolCallThenAnswer(t *testing.T) {
	provider := &mockProvider{responses: []domain.ChatResponse{
		toolCallResponse(domain.ToolCall{ID: "c1", Name: "inventory_list", Arguments: json.RawMessage(`{}`)}),
		textResponse("you have eggs"),
	}}
	tools := newStubExecutor()
	tools.results["inventory_list"] = &domain.ToolResult{Content: `{"count":1,"items":[]}`}
	rc := newRoundController(provider, tools, newTestLogger(), 5)

	result, err := rc.run(context.Background(), userState("what do I have?"), buildReqFor, nil)
	require.NoError(t, err)
	assert.Equal(t, "you have eggs", result.Content)
	require.Len(t, result.ToolCalls, 1)
	assert.Equal(t, "inventory_list", result.ToolCalls[0].Name)
	assert.Equal(t, 2, provider.callCount())

	// The second request must carry the assistant tool-call message and the
	// tool result message.
	secondReq := provider.reqs[1]
	last := secondReq.Messages[len(secondReq.Messages)-1]
	assert.Equal(t, domain.RoleTool, last.Role)
	assert.Equal(t, "c1", last.ToolCallID)
	assert.Equal(t, "inventory_list", last.Name)
}

func TestRoundsBudgetExhaustion(t *testing.T) {
	// Every round requests another tool call; the loop must stop at the
	// budget and return the generic completion, not an error.
	provider := &mockProvider{responses: []domain.ChatResponse{
		toolCallResponse(domain.ToolCall{ID: "c", Name: "recipe_search", Arguments: json.RawMessage(`{"query":"x"}`)}),
	}}
	tools := newStubExecutor()
	tools.results["recipe_search"] = &domain.ToolResult{Content: `{"count":0,"recipes":[]}`}
	rc := newRoundController(provider, tools, newTestLogger(), 5)

	result, err := rc.run(context.Background(), userState("loop"), buildReqFor, nil)
	require.NoError(t, err)
	assert.Equal(t, exhaustedContent, result.Content)
	assert.Equal(t, 5, provider.callCount())
	assert.Len(t, result.ToolCalls, 5)
}

func TestRoundsSequentialOrderAndSiblingSurvival(t *testing.T) {
	provider := &mockProvider{responses: []domain.ChatResponse{
		toolCallResponse(
			domain.ToolCall{ID: "a", Name: "bogus_tool", Arguments: json.RawMessage(`{}`)},
			domain.ToolCall{ID: "b", Name: "inventory_list", Arguments: json.RawMessage(`{}`)},
			domain.ToolCall{ID: "c", Name: "recipe_search", Arguments: json.RawMessage(`{"query":"q"}`)},
		),
		textResponse("done"),
	}}
	tools := newStubExecutor()
	tools.results["inventory_list"] = &domain.ToolResult{Content: `{"count":0,"items":[]}`}
	tools.results["recipe_search"] = &domain.ToolResult{Content: `{"count":0,"recipes":[]}`}
	rc := newRoundController(provider, tools, newTestLogger(), 5)

	result, err := rc.run(context.Background(), userState("multi"), buildReqFor, nil)
	require.NoError(t, err)

	// The unknown tool failed but both siblings still executed, in order.
	executed := tools.executed()
	require.Len(t, executed, 3)
	assert.Equal(t, "bogus_tool", executed[0].name)
	assert.Equal(t, "inventory_list", executed[1].name)
	assert.Equal(t, "recipe_search", executed[2].name)
	assert.Len(t, result.ToolCalls, 3)

	// The failed call's error text went back to the model as tool content.
	secondReq := provider.reqs[1]
	var toolMsgs []domain.Message
	for _, m := range secondReq.Messages {
		if m.Role == domain.RoleTool {
			toolMsgs = append(toolMsgs, m)
		}
	}
	require.Len(t, toolMsgs, 3)
	assert.Contains(t, toolMsgs[0].Content, "unknown tool")
}

func TestRoundsMalformedArgumentsDegradeToEmptyMapping(t *testing.T) {
	provider := &mockProvider{responses: []domain.ChatResponse{
		toolCallResponse(domain.ToolCall{ID: "c1", Name: "inventory_list", Arguments: json.RawMessage(`{"broken`)}),
		textResponse("ok"),
	}}
	tools := newStubExecutor()
	tools.results["inventory_list"] = &domain.ToolResult{Content: `{"count":0,"items":[]}`}
	rc := newRoundController(provider, tools, newTestLogger(), 5)

	result, err := rc.run(context.Background(), userState("x"), buildReqFor, nil)
	require.NoError(t, err)
	require.Len(t, result.ToolCalls, 1)
	assert.Equal(t, map[string]any{}, result.ToolCalls[0].Arguments)
	assert.Equal(t, "{}", tools.executed()[0].params)
}

func TestRoundsEmptyReplyGetsPlaceholderContent(t *testing.T) {
	provider := &mockProvider{responses: []domain.ChatResponse{textResponse("")}}
	rc := newRoundController(provider, newStubExecutor(), newTestLogger(), 5)

	result, err := rc.run(context.Background(), userState("?"), buildReqFor, nil)
	require.NoError(t, err)
	assert.Equal(t, emptyReplyContent, result.Content)
	assert.Equal(t, 1, provider.callCount())
}

func TestRoundsProviderErrorPropagates(t *testing.T) {
	provider := &mockProvider{err: domain.ErrBackendUnavailable, responses: []domain.ChatResponse{{}}}
	rc := newRoundController(provider, newStubExecutor(), newTestLogger(), 5)

	_, err := rc.run(context.Background(), userState("x"), buildReqFor, nil)
	require.Error(t, err)
	assert.True(t, domain.IsBackendUnavailable(err))
}

func TestRoundsStreamingEmitsOrderedEvents(t *testing.T) {
	provider := &mockStreamingProvider{
		streams: [][]domain.StreamDelta{
			{
				{ToolCalls: []domain.ToolCallDelta{{Index: 0, ID: "c1", Name: "inventory_list", Arguments: `{}`}}},
				{Done: true},
			},
			{
				{Content: "you have "},
				{Content: "eggs", Done: true},
			},
		},
	}
	tools := newStubExecutor()
	tools.results["inventory_list"] = &domain.ToolResult{Content: `{"count":1,"items":[]}`}
	rc := newRoundController(provider, tools, newTestLogger(), 5)

	sink := &recordingSink{}
	result, err := rc.run(context.Background(), userState("fridge?"), buildReqFor, sink)
	require.NoError(t, err)
	assert.Equal(t, "you have eggs", result.Content)

	events := sink.all()
	require.Len(t, events, 4)
	assert.Equal(t, domain.StreamToolCallStarted, events[0].Type)
	assert.Equal(t, "inventory_list", events[0].ToolName)
	assert.Equal(t, domain.StreamToolResult, events[1].Type)
	assert.Equal(t, domain.StreamToken, events[2].Type)
	assert.Equal(t, "you have ", events[2].Token)
	assert.Equal(t, "eggs", events[3].Token)
}

// A blocking-only provider in streaming mode emits the whole round text as a
// single token event.
func TestRoundsStreamingWithBlockingProvider(t *testing.T) {
	provider := &mockProvider{responses: []domain.ChatResponse{textResponse("whole answer")}}
	rc := newRoundController(provider, newStubExecutor(), newTestLogger(), 5)

	sink := &recordingSink{}
	result, err := rc.run(context.Background(), userState("x"), buildReqFor, sink)
	require.NoError(t, err)
	assert.Equal(t, "whole answer", result.Content)

	tokens := sink.byType(domain.StreamToken)
	require.Len(t, tokens, 1)
	assert.Equal(t, "whole answer", tokens[0].Token)
}

// blockedStreamProvider feeds an unbuffered channel from a goroutine that
// only unblocks on send or stream-context cancellation, the way a real SSE
// reader holding an open response body behaves.
type blockedStreamProvider struct {
	producerDone chan struct{}
}

func (p *blockedStreamProvider) Chat(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
	return nil, assert.AnError
}

func (p *blockedStreamProvider) Name() string { return "blocked" }

func (p *blockedStreamProvider) ChatStream(ctx context.Context, _ domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	ch := make(chan domain.StreamDelta)
	go func() {
		defer close(p.producerDone)
		defer close(ch)
		for {
			select {
			case ch <- domain.StreamDelta{Content: "x"}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// A dead sink must release the stream producer, not leave it blocked on its
// channel until the turn context dies.
func TestRoundsStreamSinkFailureReleasesProducer(t *testing.T) {
	provider := &blockedStreamProvider{producerDone: make(chan struct{})}
	rc := newRoundController(provider, newStubExecutor(), newTestLogger(), 5)

	sink := &recordingSink{err: assert.AnError}
	_, err := rc.run(context.Background(), userState("x"), buildReqFor, sink)
	require.ErrorIs(t, err, assert.AnError)

	select {
	case <-provider.producerDone:
	case <-time.After(time.Second):
		t.Fatal("stream producer still blocked after the turn returned")
	}
}

func TestRoundsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	provider := &mockProvider{responses: []domain.ChatResponse{textResponse("never")}}
	rc := newRoundController(provider, newStubExecutor(), newTestLogger(), 5)

	_, err := rc.run(ctx, userState("x"), buildReqFor, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, provider.callCount())
}
