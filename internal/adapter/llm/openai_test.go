package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sous-chef/internal/domain"
	"sous-chef/internal/infra/config"
)

func newOpenAITestProvider(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAIProvider(config.ProviderConfig{
		Name:    "openai",
		Model:   "test-model",
		APIKey:  "sk-test",
		BaseURL: srv.URL,
	}, newTestLogger())
}

func TestOpenAIChatMapsResponse(t *testing.T) {
	provider := newOpenAITestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "test-model", req["model"])

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "chatcmpl-1",
			"model": "test-model",
			"created": 1700000000,
			"choices": [{
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{
						"id": "call_1",
						"type": "function",
						"function": {"name": "recipe_search", "arguments": "{\"query\":\"soup\"}"}
					}]
				},
				"finish_reason": "tool_calls"
			}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 7, "total_tokens": 19}
		}`)
	})

	resp, err := provider.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "find soup"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "chatcmpl-1", resp.ID)
	assert.Equal(t, 19, resp.Usage.TotalTokens)
	require.Len(t, resp.Message.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.Message.ToolCalls[0].ID)
	assert.Equal(t, "recipe_search", resp.Message.ToolCalls[0].Name)
	assert.JSONEq(t, `{"query":"soup"}`, string(resp.Message.ToolCalls[0].Arguments))
}

func TestOpenAIChatSendsToolSchemas(t *testing.T) {
	var captured map[string]any
	provider := newOpenAITestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"x","model":"test-model","created":1,"choices":[{"message":{"role":"assistant","content":"hi"}}],"usage":{}}`)
	})

	_, err := provider.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hello"}},
		Tools: []domain.ToolSchema{{
			Name:        "inventory_list",
			Description: "List pantry items",
			Parameters:  json.RawMessage(`{"type":"object"}`),
		}},
	})
	require.NoError(t, err)

	tools, ok := captured["tools"].([]any)
	require.True(t, ok)
	require.Len(t, tools, 1)
	tool := tools[0].(map[string]any)
	assert.Equal(t, "function", tool["type"])
	fn := tool["function"].(map[string]any)
	assert.Equal(t, "inventory_list", fn["name"])
}

func TestOpenAIChatStreamDeliversDeltas(t *testing.T) {
	provider := newOpenAITestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, true, req["stream"])

		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"hi \"}}]}\n\n")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"there\"}}]}\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
	})

	ch, err := provider.ChatStream(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	deltas := collectDeltas(t, ch)
	require.Len(t, deltas, 3)
	assert.Equal(t, "hi ", deltas[0].Content)
	assert.Equal(t, "there", deltas[1].Content)
	assert.True(t, deltas[2].Done)
}

func TestOpenAIChatStreamAuthFailureBeforeStream(t *testing.T) {
	provider := newOpenAITestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := provider.ChatStream(context.Background(), domain.ChatRequest{})
	require.ErrorIs(t, err, domain.ErrAuthInvalid)
}
