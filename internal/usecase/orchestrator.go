package usecase

import (
	"context"
	"log/slog"
	"time"

	"sous-chef/internal/domain"
	"sous-chef/internal/infra/tracer"
)

// OrchestratorDeps holds injected dependencies for the orchestrator.
type OrchestratorDeps struct {
	Provider     domain.ModelProvider // nil = no backend configured, fallback mode
	Tools        domain.ToolExecutor
	Loader       domain.ContextLoader
	Builder      *ContextBuilder
	Fallback     *Fallback
	Logger       *slog.Logger
	MaxRounds    int // 0 = default
	HistoryLimit int // 0 = default (40)
}

// Orchestrator is the engine's public surface. It wires the context loader,
// tool registry, round controller and delta assembler together, choosing
// model-driven or fallback execution per turn. Each invocation owns its own
// conversation state; any number of turns may run concurrently.
type Orchestrator struct {
	deps OrchestratorDeps
}

// NewOrchestrator creates an orchestrator with the given dependencies.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	if deps.MaxRounds <= 0 {
		deps.MaxRounds = defaultMaxRounds
	}
	if deps.HistoryLimit <= 0 {
		deps.HistoryLimit = 40
	}
	return &Orchestrator{deps: deps}
}

// Converse runs one blocking turn: load context once, then either the
// bounded round loop or the fallback cascade. Backend-unavailable errors
// are never surfaced as failures; they reroute to the fallback path.
func (o *Orchestrator) Converse(ctx context.Context, userID, threadID, message string) (*domain.TurnResult, error) {
	return o.converse(ctx, userID, threadID, message, nil)
}

// ConverseStream runs one streamed turn, delivering events to sink in
// emission order, and also returns the final result. Given identical
// inputs and a deterministic backend, the result is identical to Converse.
// No result is committed until the done event has been emitted.
func (o *Orchestrator) ConverseStream(ctx context.Context, userID, threadID, message string, sink domain.EventSink) (*domain.TurnResult, error) {
	if sink == nil {
		sink = domain.SinkFunc(func(context.Context, domain.StreamEvent) error { return nil })
	}
	result, err := o.converse(ctx, userID, threadID, message, sink)
	if err != nil {
		// Best-effort terminal error event; if the transport is already
		// broken this send fails silently and the caller detects it.
		_ = sink.Send(ctx, domain.StreamEvent{Type: domain.StreamError, Message: err.Error()})
		return nil, err
	}
	if err := sink.Send(ctx, domain.StreamEvent{Type: domain.StreamDone, Final: result}); err != nil {
		return nil, domain.WrapOp("sink", err)
	}
	return result, nil
}

func (o *Orchestrator) converse(ctx context.Context, userID, threadID, message string, sink domain.EventSink) (*domain.TurnResult, error) {
	ctx, span := tracer.StartSpan(ctx, "engine.converse")
	defer span.End()

	ctx = domain.ContextWithUser(ctx, userID)
	ctx = domain.ContextWithThread(ctx, threadID)

	// Context and history are loaded exactly once per turn, before the
	// execution path is chosen.
	state, err := o.loadState(ctx, userID, threadID, message)

	if o.deps.Provider == nil {
		o.deps.Logger.Debug("no model backend configured, using fallback responder")
		return o.fallback(ctx, userID, message, sink)
	}
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	rc := newRoundController(o.deps.Provider, o.deps.Tools, o.deps.Logger, o.deps.MaxRounds)
	buildReq := func(msgs []domain.Message) domain.ChatRequest {
		return o.deps.Builder.Request(msgs, o.deps.Tools.Schemas())
	}

	result, err := rc.run(ctx, state, buildReq, sink)
	if err != nil {
		if domain.IsBackendUnavailable(err) {
			o.deps.Logger.Warn("model backend unavailable, degrading to fallback", "error", err)
			return o.fallback(ctx, userID, message, sink)
		}
		tracer.RecordError(span, err)
		return nil, err
	}

	tracer.SetOK(span)
	return result, nil
}

// fallback delegates to the deterministic responder. In streaming mode the
// entire answer is emitted as a single token event; the done event is
// appended by ConverseStream.
func (o *Orchestrator) fallback(ctx context.Context, userID, message string, sink domain.EventSink) (*domain.TurnResult, error) {
	result := o.deps.Fallback.Respond(ctx, userID, message)
	if sink != nil {
		ev := domain.StreamEvent{Type: domain.StreamToken, Token: result.Content}
		if err := sink.Send(ctx, ev); err != nil {
			return nil, domain.WrapOp("sink", err)
		}
	}
	return result, nil
}

// loadState fetches preferences, the inventory summary and the thread
// history exactly once per turn, then seeds the conversation state and
// appends the new user message. Loader failures on the auxiliary reads are
// tolerated; only history failure aborts the turn.
func (o *Orchestrator) loadState(ctx context.Context, userID, threadID, message string) ([]domain.Message, error) {
	loadCtx, span := tracer.StartSpan(ctx, "engine.load_context")
	defer span.End()

	prefs, err := o.deps.Loader.Preferences(loadCtx, userID)
	if err != nil {
		o.deps.Logger.Warn("loading preferences failed", "error", err)
	}
	inventory, err := o.deps.Loader.InventorySummary(loadCtx, userID)
	if err != nil {
		o.deps.Logger.Warn("loading inventory summary failed", "error", err)
	}
	history, err := o.deps.Loader.History(loadCtx, threadID, o.deps.HistoryLimit)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, domain.WrapOp("load history", err)
	}

	state := o.deps.Builder.Seed(prefs, inventory, history)
	state = append(state, domain.Message{
		Role:      domain.RoleUser,
		Content:   message,
		Timestamp: time.Now(),
	})
	return state, nil
}
