package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"

	"sous-chef/internal/domain"
)

// Converser is the engine surface the gateway drives.
type Converser interface {
	Converse(ctx context.Context, userID, threadID, message string) (*domain.TurnResult, error)
	ConverseStream(ctx context.Context, userID, threadID, message string, sink domain.EventSink) (*domain.TurnResult, error)
}

// HistoryWriter persists turn transcripts. The engine itself never writes
// history; the gateway records the user message and the final answer after
// each completed turn.
type HistoryWriter interface {
	AppendMessage(ctx context.Context, threadID string, msg domain.Message) error
}

// ChatRequest is the body of POST /v1/chat and /v1/chat/stream.
type ChatRequest struct {
	UserID   string `json:"user_id"`
	ThreadID string `json:"thread_id,omitempty"` // empty = start a new thread
	Message  string `json:"message"`
}

// ChatResponse is the blocking chat reply.
type ChatResponse struct {
	ThreadID string             `json:"thread_id"`
	Result   *domain.TurnResult `json:"result"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChatRequest(w, r)
	if !ok {
		return
	}

	result, err := s.engine.Converse(r.Context(), req.UserID, req.ThreadID, req.Message)
	if err != nil {
		s.logger.Error("chat turn failed", "error", err)
		writeError(w, http.StatusInternalServerError, "chat turn failed")
		return
	}

	s.persistTurn(r.Context(), req, result)
	writeJSON(w, http.StatusOK, ChatResponse{ThreadID: req.ThreadID, Result: result})
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChatRequest(w, r)
	if !ok {
		return
	}

	sink, err := newSSESink(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Headers are already written; from here errors travel inside the
	// stream as a terminal error event, emitted by the engine.
	result, err := s.engine.ConverseStream(r.Context(), req.UserID, req.ThreadID, req.Message, sink)
	if err != nil {
		s.logger.Error("streamed turn failed", "error", err)
		return
	}
	s.persistTurn(r.Context(), req, result)
}

// decodeChatRequest parses and validates the chat body, minting a thread ID
// when the client did not supply one.
func (s *Server) decodeChatRequest(w http.ResponseWriter, r *http.Request) (*ChatRequest, bool) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return nil, false
	}
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, false
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "'message' is required")
		return nil, false
	}
	if req.UserID == "" {
		req.UserID = "default"
	}
	if req.ThreadID == "" {
		req.ThreadID = newThreadID()
	}
	return &req, true
}

// newThreadID mints an ID for a fresh conversation thread.
func newThreadID() string {
	return ulid.Make().String()
}

// persistTurn appends the user message and the assistant's answer to the
// thread. Persistence failures are logged, not surfaced: the turn already
// completed and the client already has the result.
func (s *Server) persistTurn(ctx context.Context, req *ChatRequest, result *domain.TurnResult) {
	if s.history == nil || result == nil {
		return
	}
	now := time.Now().UTC()
	if err := s.history.AppendMessage(ctx, req.ThreadID, domain.Message{
		Role:      domain.RoleUser,
		Content:   req.Message,
		Timestamp: now,
	}); err != nil {
		s.logger.Warn("persisting user message failed", "thread", req.ThreadID, "error", err)
		return
	}
	if err := s.history.AppendMessage(ctx, req.ThreadID, domain.Message{
		Role:      domain.RoleAssistant,
		Content:   result.Content,
		Timestamp: now,
	}); err != nil {
		s.logger.Warn("persisting assistant message failed", "thread", req.ThreadID, "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
