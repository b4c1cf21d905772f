package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"tripgen/internal/common/config"
	apperrors "tripgen/internal/common/errors"
	"tripgen/internal/common/logger"
	"tripgen/internal/common/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestConfig(baseURL string) config.LLMConfig {
	return config.LLMConfig{
		Provider:    "openai",
		BaseURL:     baseURL,
		APIKey:      "test-key",
		Model:       "gpt-test",
		Timeout:     2000,
		MaxRetries:  2,
		MaxTokens:   512,
		Temperature: 0.7,
	}
}

func TestOpenAIClient_Complete_ToolCalls(t *testing.T) {
	var captured oaRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{
				"message": {
					"role": "assistant",
					"content": null,
					"tool_calls": [{
						"id": "call_1",
						"type": "function",
						"function": {"name": "ask_question", "arguments": "{\"question\":\"When are you travelling?\"}"}
					}]
				},
				"finish_reason": "tool_calls"
			}],
			"usage": {"prompt_tokens": 120, "completion_tokens": 14}
		}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(createTestConfig(server.URL), logger.NewTestLogger(t))
	resp, err := client.Complete(context.Background(), &Request{
		System: "You plan trips.",
		Messages: []Message{
			{Role: RoleUser, Content: "A week in Japan"},
			{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call_0", Name: "search_web", Arguments: json.RawMessage(`{"query":"Japan in April"}`)}}},
			{Role: RoleTool, ToolCallID: "call_0", Name: "search_web", Content: `{"results":[]}`},
		},
		Tools: []Tool{{
			Name:        "ask_question",
			Description: "Ask the traveller a question",
			Parameters: validation.JSONSchema{
				Type:       "object",
				Properties: map[string]validation.Property{"question": {Type: "string"}},
				Required:   []string{"question"},
			},
		}},
	})

	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "ask_question", resp.ToolCalls[0].Name)
	assert.JSONEq(t, `{"question":"When are you travelling?"}`, string(resp.ToolCalls[0].Arguments))
	assert.Equal(t, "tool_calls", resp.FinishReason)
	assert.Equal(t, 120, resp.Usage.PromptTokens)

	require.Len(t, captured.Messages, 4)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Nil(t, captured.Messages[2].Content, "assistant tool-call turn without text sends null content")
	assert.Equal(t, "call_0", captured.Messages[3].ToolCallID)
	require.Len(t, captured.Tools, 1)
	assert.Equal(t, "function", captured.Tools[0].Type)
	assert.Equal(t, 512, captured.MaxTokens)
	require.NotNil(t, captured.Temperature)
	assert.Equal(t, 0.7, *captured.Temperature)
}

func TestOpenAIClient_Complete_JSONMode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req oaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "json_object", req.ResponseFormat["type"])
		assert.Equal(t, 0.0, *req.Temperature)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"valid\":true}"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(createTestConfig(server.URL), logger.NewTestLogger(t))
	resp, err := client.Complete(context.Background(), &Request{
		Messages:    []Message{{Role: RoleUser, Content: "Weekend in Paris"}},
		Temperature: Temperature(0),
		JSONMode:    true,
	})

	require.NoError(t, err)
	assert.Equal(t, `{"valid":true}`, resp.Content)
}

func TestOpenAIClient_Complete_Errors(t *testing.T) {
	tests := []struct {
		name         string
		handler      func(calls *int32) http.HandlerFunc
		timeout      int
		wantCode     apperrors.ErrorCode
		wantAttempts int32
	}{
		{
			name: "retries server errors then succeeds",
			handler: func(calls *int32) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					if atomic.AddInt32(calls, 1) < 3 {
						w.WriteHeader(http.StatusBadGateway)
						return
					}
					_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}]}`))
				}
			},
			timeout:      2000,
			wantAttempts: 3,
		},
		{
			name: "client error is not retried",
			handler: func(calls *int32) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					atomic.AddInt32(calls, 1)
					w.WriteHeader(http.StatusUnauthorized)
					_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
				}
			},
			timeout:      2000,
			wantCode:     apperrors.ErrCodeLLMRequestFailed,
			wantAttempts: 1,
		},
		{
			name: "rate limit exhausts retries",
			handler: func(calls *int32) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					atomic.AddInt32(calls, 1)
					w.WriteHeader(http.StatusTooManyRequests)
				}
			},
			timeout:      2000,
			wantCode:     apperrors.ErrCodeLLMRequestFailed,
			wantAttempts: 3,
		},
		{
			name: "slow upstream times out",
			handler: func(calls *int32) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					atomic.AddInt32(calls, 1)
					select {
					case <-time.After(500 * time.Millisecond):
					case <-r.Context().Done():
					}
				}
			},
			timeout:      50,
			wantCode:     apperrors.ErrCodeLLMTimeout,
			wantAttempts: 1,
		},
		{
			name: "malformed body",
			handler: func(calls *int32) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					atomic.AddInt32(calls, 1)
					_, _ = w.Write([]byte(`not json`))
				}
			},
			timeout:      2000,
			wantCode:     apperrors.ErrCodeLLMRequestFailed,
			wantAttempts: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			server := httptest.NewServer(tt.handler(&calls))
			defer server.Close()

			cfg := createTestConfig(server.URL)
			cfg.Timeout = tt.timeout
			client := NewOpenAIClient(cfg, logger.NewTestLogger(t))

			resp, err := client.Complete(context.Background(), &Request{
				Messages: []Message{{Role: RoleUser, Content: "hi"}},
			})

			if tt.wantCode != "" {
				assert.True(t, apperrors.Is(err, tt.wantCode), "got %v", err)
				assert.Nil(t, resp)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "ok", resp.Content)
			}
			assert.Equal(t, tt.wantAttempts, atomic.LoadInt32(&calls))
		})
	}
}

func TestOpenAIClient_Complete_CallerCancelled(t *testing.T) {
	var calls int32
	ctx, cancel := context.WithCancel(context.Background())
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = io.Copy(io.Discard, r.Body)
		cancel()
		<-r.Context().Done()
	}))
	defer server.Close()

	client := NewOpenAIClient(createTestConfig(server.URL), logger.NewTestLogger(t))
	resp, err := client.Complete(ctx, &Request{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})

	assert.Nil(t, resp)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeLLMRequestFailed), "got %v", err)
	assert.False(t, apperrors.Is(err, apperrors.ErrCodeLLMTimeout))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
