package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sous-chef/internal/domain"
	"sous-chef/internal/infra/config"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubConverser returns a canned result and records the arguments it saw.
type stubConverser struct {
	result    *domain.TurnResult
	err       error
	events    []domain.StreamEvent
	userID    string
	threadID  string
	message   string
	callCount int
}

func (c *stubConverser) Converse(_ context.Context, userID, threadID, message string) (*domain.TurnResult, error) {
	c.callCount++
	c.userID, c.threadID, c.message = userID, threadID, message
	return c.result, c.err
}

func (c *stubConverser) ConverseStream(ctx context.Context, userID, threadID, message string, sink domain.EventSink) (*domain.TurnResult, error) {
	c.callCount++
	c.userID, c.threadID, c.message = userID, threadID, message
	for _, ev := range c.events {
		if err := sink.Send(ctx, ev); err != nil {
			return nil, err
		}
	}
	return c.result, c.err
}

type recordingHistory struct {
	appended []domain.Message
	err      error
}

func (h *recordingHistory) AppendMessage(_ context.Context, _ string, msg domain.Message) error {
	if h.err != nil {
		return h.err
	}
	h.appended = append(h.appended, msg)
	return nil
}

func newTestServer(engine Converser, history HistoryWriter, tokens ...config.AuthTokenConfig) *Server {
	cfg := config.GatewayConfig{Addr: "127.0.0.1:0", AuthTokens: tokens}
	return NewServer(cfg, engine, history, newTestLogger())
}

func chatBody(t *testing.T, req ChatRequest) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(req)
	require.NoError(t, err)
	return bytes.NewReader(data)
}

func TestStaticTokenAuth(t *testing.T) {
	auth := NewStaticTokenAuth([]config.AuthTokenConfig{
		{Name: "cli", Token: "secret-one"},
		{Name: "web", Token: "secret-two"},
	})

	info, err := auth.Authenticate("secret-two")
	require.NoError(t, err)
	assert.Equal(t, "web", info.Name)

	_, err = auth.Authenticate("wrong")
	require.ErrorIs(t, err, domain.ErrAuthInvalid)

	_, err = auth.Authenticate("")
	require.ErrorIs(t, err, domain.ErrAuthInvalid)
}

func TestOpenAuthAcceptsAnything(t *testing.T) {
	info, err := OpenAuth{}.Authenticate("")
	require.NoError(t, err)
	assert.Equal(t, "anonymous", info.Name)
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "Bearer abc123")
	assert.Equal(t, "abc123", bearerToken(r))

	r = httptest.NewRequest(http.MethodGet, "/ws?token=qp-token", nil)
	assert.Equal(t, "qp-token", bearerToken(r))

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.Empty(t, bearerToken(r))
}

func TestRequireAuthRejectsMissingToken(t *testing.T) {
	srv := newTestServer(&stubConverser{}, nil, config.AuthTokenConfig{Name: "cli", Token: "tok"})
	handler := srv.requireAuth(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/chat", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", nil)
	req.Header.Set("Authorization", "Bearer tok")
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChatReturnsResult(t *testing.T) {
	engine := &stubConverser{result: &domain.TurnResult{Content: "answer", ToolCalls: []domain.ToolInvocation{}}}
	history := &recordingHistory{}
	srv := newTestServer(engine, history)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", chatBody(t, ChatRequest{
		UserID: "u1", ThreadID: "t1", Message: "what's for dinner?",
	}))
	srv.handleChat(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "t1", resp.ThreadID)
	assert.Equal(t, "answer", resp.Result.Content)
	assert.Equal(t, "u1", engine.userID)
	assert.Equal(t, "what's for dinner?", engine.message)
}

func TestChatMintsThreadID(t *testing.T) {
	engine := &stubConverser{result: &domain.TurnResult{Content: "hi"}}
	srv := newTestServer(engine, nil)

	rec := httptest.NewRecorder()
	srv.handleChat(rec, httptest.NewRequest(http.MethodPost, "/v1/chat",
		chatBody(t, ChatRequest{Message: "hello"})))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ThreadID)
	assert.Equal(t, resp.ThreadID, engine.threadID)
	assert.Equal(t, "default", engine.userID)
}

func TestChatRejectsBadRequests(t *testing.T) {
	srv := newTestServer(&stubConverser{}, nil)

	rec := httptest.NewRecorder()
	srv.handleChat(rec, httptest.NewRequest(http.MethodGet, "/v1/chat", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	srv.handleChat(rec, httptest.NewRequest(http.MethodPost, "/v1/chat",
		strings.NewReader("{not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	srv.handleChat(rec, httptest.NewRequest(http.MethodPost, "/v1/chat",
		chatBody(t, ChatRequest{UserID: "u1"})))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "message")
}

func TestChatEngineErrorIs500(t *testing.T) {
	engine := &stubConverser{err: assert.AnError}
	srv := newTestServer(engine, nil)

	rec := httptest.NewRecorder()
	srv.handleChat(rec, httptest.NewRequest(http.MethodPost, "/v1/chat",
		chatBody(t, ChatRequest{Message: "hello"})))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestChatPersistsTurn(t *testing.T) {
	engine := &stubConverser{result: &domain.TurnResult{Content: "the answer"}}
	history := &recordingHistory{}
	srv := newTestServer(engine, history)

	rec := httptest.NewRecorder()
	srv.handleChat(rec, httptest.NewRequest(http.MethodPost, "/v1/chat",
		chatBody(t, ChatRequest{ThreadID: "t1", Message: "a question"})))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, history.appended, 2)
	assert.Equal(t, domain.RoleUser, history.appended[0].Role)
	assert.Equal(t, "a question", history.appended[0].Content)
	assert.Equal(t, domain.RoleAssistant, history.appended[1].Role)
	assert.Equal(t, "the answer", history.appended[1].Content)
}

func TestChatPersistFailureStillSucceeds(t *testing.T) {
	engine := &stubConverser{result: &domain.TurnResult{Content: "ok"}}
	history := &recordingHistory{err: assert.AnError}
	srv := newTestServer(engine, history)

	rec := httptest.NewRecorder()
	srv.handleChat(rec, httptest.NewRequest(http.MethodPost, "/v1/chat",
		chatBody(t, ChatRequest{ThreadID: "t1", Message: "hello"})))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChatStreamWritesSSE(t *testing.T) {
	engine := &stubConverser{
		events: []domain.StreamEvent{
			{Type: domain.StreamToken, Token: "hel"},
			{Type: domain.StreamToken, Token: "lo"},
			{Type: domain.StreamDone, Final: &domain.TurnResult{Content: "hello"}},
		},
		result: &domain.TurnResult{Content: "hello"},
	}
	history := &recordingHistory{}
	srv := newTestServer(engine, history)

	rec := httptest.NewRecorder()
	srv.handleChatStream(rec, httptest.NewRequest(http.MethodPost, "/v1/chat/stream",
		chatBody(t, ChatRequest{ThreadID: "t1", Message: "hi"})))

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	tokenIdx := strings.Index(body, "event: token")
	doneIdx := strings.Index(body, "event: done")
	require.GreaterOrEqual(t, tokenIdx, 0)
	require.Greater(t, doneIdx, tokenIdx)
	assert.Contains(t, body, `"token":"hel"`)
	assert.Len(t, history.appended, 2)
}

func TestSSESinkFraming(t *testing.T) {
	rec := httptest.NewRecorder()
	sink, err := newSSESink(rec)
	require.NoError(t, err)

	require.NoError(t, sink.Send(context.Background(), domain.StreamEvent{
		Type: domain.StreamToolCallStarted, ToolName: "recipe_search",
	}))

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "event: tool_call_started\ndata: "), body)
	assert.True(t, strings.HasSuffix(body, "\n\n"), body)
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))
}

func TestSSESinkStopsOnCancelledContext(t *testing.T) {
	rec := httptest.NewRecorder()
	sink, err := newSSESink(rec)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, sink.Send(ctx, domain.StreamEvent{Type: domain.StreamToken, Token: "x"}))
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(&stubConverser{}, nil)
	rec := httptest.NewRecorder()
	srv.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}
