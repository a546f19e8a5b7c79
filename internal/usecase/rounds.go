package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"sous-chef/internal/domain"
	"sous-chef/internal/infra/tracer"
)

// defaultMaxRounds bounds how many times a single turn may go back to the
// model backend.
const defaultMaxRounds = 5

// exhaustedContent is returned when the round budget runs out before the
// model produces a text-only answer. This is a designed degradation: the
// collected tool invocations still accompany it.
const exhaustedContent = "I've gathered what I could, but ran out of steps " +
	"before finishing a full answer. Ask me again to continue."

// emptyReplyContent is returned when the backend yields neither text nor
// tool calls. The original behavior is preserved: no retry, terminal.
const emptyReplyContent = "I don't have an answer for that right now — " +
	"could you rephrase?"

// roundController drives the bounded ask-the-model / execute-tools loop for
// one turn. A nil sink selects the blocking path; a non-nil sink selects
// streaming, in which case provider must implement StreamingModelProvider
// or the controller silently degrades to per-round blocking calls with the
// round's text emitted as a single token event.
type roundController struct {
	provider  domain.ModelProvider
	tools     domain.ToolExecutor
	logger    *slog.Logger
	maxRounds int
}

func newRoundController(provider domain.ModelProvider, tools domain.ToolExecutor, logger *slog.Logger, maxRounds int) *roundController {
	if maxRounds <= 0 {
		maxRounds = defaultMaxRounds
	}
	return &roundController{
		provider:  provider,
		tools:     tools,
		logger:    logger,
		maxRounds: maxRounds,
	}
}

// run executes up to maxRounds request/execute cycles over state. state is
// owned by the caller and mutated only by appending. The returned result
// carries every tool invocation recorded across all rounds regardless of
// how the loop terminated.
func (rc *roundController) run(ctx context.Context, state []domain.Message, buildReq func([]domain.Message) domain.ChatRequest, sink domain.EventSink) (*domain.TurnResult, error) {
	ctx, span := tracer.StartSpan(ctx, "engine.rounds")
	defer span.End()

	result := &domain.TurnResult{ToolCalls: []domain.ToolInvocation{}}
	var usage domain.Usage

	for round := 0; round < rc.maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		span.AddEvent("engine.round", trace.WithAttributes(tracer.IntAttr("round", round)))

		msg, roundUsage, err := rc.callModel(ctx, buildReq(state), sink)
		if err != nil {
			tracer.RecordError(span, err)
			return nil, err
		}
		usage.Add(roundUsage)

		rc.logger.Debug("model response",
			"round", round,
			"tool_calls", len(msg.ToolCalls),
			"tokens", roundUsage.TotalTokens,
		)

		// Text-only answer ends the loop.
		if len(msg.ToolCalls) == 0 {
			content := msg.Content
			if content == "" {
				content = emptyReplyContent
			}
			result.Content = content
			result.Usage = &usage
			tracer.SetOK(span)
			return result, nil
		}

		state = append(state, msg)

		// Execute requested calls strictly sequentially, in the order
		// received. A failing call does not cancel its siblings; its error
		// text is fed back to the model as the tool message content.
		for _, call := range msg.ToolCalls {
			toolMsg, inv, err := rc.executeCall(ctx, call, sink)
			if err != nil {
				return nil, err
			}
			state = append(state, toolMsg)
			result.ToolCalls = append(result.ToolCalls, inv)
			result.MergeMetadata(inv.Metadata)
		}
	}

	rc.logger.Info("round budget exhausted", "rounds", rc.maxRounds,
		"tool_calls", len(result.ToolCalls))
	result.Content = exhaustedContent
	result.Usage = &usage
	tracer.SetOK(span)
	return result, nil
}

// callModel performs one model round, via the streaming path when a sink is
// present and the provider supports it.
func (rc *roundController) callModel(ctx context.Context, req domain.ChatRequest, sink domain.EventSink) (domain.Message, domain.Usage, error) {
	sp, canStream := rc.provider.(domain.StreamingModelProvider)
	if sink == nil || !canStream {
		llmCtx, span := tracer.StartSpan(ctx, "engine.model_call")
		resp, err := rc.provider.Chat(llmCtx, req)
		span.End()
		if err != nil {
			return domain.Message{}, domain.Usage{}, err
		}
		msg := resp.Message
		msg.Role = domain.RoleAssistant
		if sink != nil && msg.Content != "" {
			ev := domain.StreamEvent{Type: domain.StreamToken, Token: msg.Content}
			if err := sink.Send(ctx, ev); err != nil {
				return domain.Message{}, domain.Usage{}, domain.WrapOp("sink", err)
			}
		}
		return msg, resp.Usage, nil
	}

	// The producer behind deltaCh holds an open response body. Cancelling
	// streamCtx on early exit releases it; otherwise it would stay blocked
	// on its send until the turn context died.
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	llmCtx, span := tracer.StartSpan(streamCtx, "engine.model_stream")
	deltaCh, err := sp.ChatStream(llmCtx, req)
	span.End()
	if err != nil {
		return domain.Message{}, domain.Usage{}, err
	}

	asm := newDeltaAssembler()
	for delta := range deltaCh {
		for _, ev := range asm.feed(delta) {
			if err := sink.Send(ctx, ev); err != nil {
				return domain.Message{}, domain.Usage{}, domain.WrapOp("sink", err)
			}
		}
	}

	text, calls, usage, clean := asm.finalize()
	if !clean {
		rc.logger.Warn("model stream ended without done marker")
	}
	return domain.Message{
		Role:      domain.RoleAssistant,
		Content:   text,
		ToolCalls: calls,
		Timestamp: time.Now(),
	}, usage, nil
}

// executeCall dispatches one tool call and converts the outcome into the
// tool message appended to the state plus the invocation record. Malformed
// argument text degrades to an empty mapping; unknown tools and executor
// failures come back error-shaped from the registry and are fed to the
// model rather than aborting the round.
func (rc *roundController) executeCall(ctx context.Context, call domain.ToolCall, sink domain.EventSink) (domain.Message, domain.ToolInvocation, error) {
	ctx, span := tracer.StartSpan(ctx, "engine.execute_tool",
		trace.WithAttributes(tracer.StringAttr("tool.name", call.Name)),
	)
	defer span.End()

	args := parseArguments(call.Arguments)
	if sink != nil {
		ev := domain.StreamEvent{
			Type:      domain.StreamToolCallStarted,
			ToolName:  call.Name,
			Arguments: args,
		}
		if err := sink.Send(ctx, ev); err != nil {
			return domain.Message{}, domain.ToolInvocation{}, domain.WrapOp("sink", err)
		}
	}

	params, err := json.Marshal(args)
	if err != nil {
		params = json.RawMessage("{}")
	}
	res := rc.tools.Execute(ctx, call.Name, params)
	if res.IsError {
		rc.logger.Warn("tool call failed", "tool", call.Name, "error", res.Content)
	}

	if sink != nil {
		ev := domain.StreamEvent{
			Type:     domain.StreamToolResult,
			ToolName: call.Name,
			Result:   res.Content,
		}
		if err := sink.Send(ctx, ev); err != nil {
			return domain.Message{}, domain.ToolInvocation{}, domain.WrapOp("sink", err)
		}
	}

	msg := domain.Message{
		Role:       domain.RoleTool,
		Name:       call.Name,
		Content:    res.Content,
		ToolCallID: call.ID,
		Timestamp:  time.Now(),
	}
	inv := domain.ToolInvocation{
		Name:      call.Name,
		Arguments: args,
		Result:    res.Content,
		Metadata:  res.Metadata,
	}
	tracer.SetOK(span)
	return msg, inv, nil
}

// parseArguments deserializes tool-call argument text, defaulting to an
// empty mapping when the text never parses. Never fails the round.
func parseArguments(raw json.RawMessage) map[string]any {
	args := map[string]any{}
	if len(raw) == 0 {
		return args
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return map[string]any{}
	}
	return args
}
