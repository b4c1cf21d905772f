package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tripgen/internal/common/config"
	apperrors "tripgen/internal/common/errors"
	"tripgen/internal/common/logger"
	"tripgen/internal/common/metrics"
)

// OpenAIClient speaks the OpenAI-compatible /chat/completions protocol.
type OpenAIClient struct {
	config config.LLMConfig
	client *http.Client
	logger logger.Logger
}

func NewOpenAIClient(cfg config.LLMConfig, log logger.Logger) *OpenAIClient {
	return &OpenAIClient{
		config: cfg,
		client: &http.Client{},
		logger: log.With(map[string]interface{}{"provider": "openai", "model": cfg.Model}),
	}
}

func (c *OpenAIClient) Provider() string { return "openai" }

type oaMessage struct {
	Role       string       `json:"role"`
	Content    *string      `json:"content"`
	ToolCalls  []oaToolCall `json:"tool_calls,omitempty"`
	ToolCallID string       `json:"tool_call_id,omitempty"`
	Name       string       `json:"name,omitempty"`
}

type oaToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type oaTool struct {
	Type     string `json:"type"`
	Function Tool   `json:"function"`
}

type oaRequest struct {
	Model          string            `json:"model"`
	Messages       []oaMessage       `json:"messages"`
	Tools          []oaTool          `json:"tools,omitempty"`
	Temperature    *float64          `json:"temperature,omitempty"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type oaResponse struct {
	Choices []struct {
		Message      oaMessage `json:"message"`
		FinishReason string    `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

func (c *OpenAIClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, config.GetDuration(c.config.Timeout))
	defer cancel()

	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return nil, apperrors.NewLLMRequestFailedError(err)
	}

	start := time.Now()
	raw, err := c.post(ctx, body)
	metrics.LLMRequestDuration.WithLabelValues(c.Provider()).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	var parsed oaResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, apperrors.NewLLMRequestFailedError(fmt.Errorf("decode error: %w", err))
	}
	if len(parsed.Choices) == 0 {
		return nil, apperrors.NewLLMRequestFailedError(errors.New("response has no choices"))
	}

	choice := parsed.Choices[0]
	out := &Response{FinishReason: choice.FinishReason, Usage: parsed.Usage}
	if choice.Message.Content != nil {
		out.Content = *choice.Message.Content
	}
	for _, tc := range choice.Message.ToolCalls {
		args := json.RawMessage(tc.Function.Arguments)
		if strings.TrimSpace(tc.Function.Arguments) == "" {
			args = json.RawMessage("{}")
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}

	c.logger.Debug("llm completion received", map[string]interface{}{
		"finishReason":     out.FinishReason,
		"toolCalls":        len(out.ToolCalls),
		"promptTokens":     out.Usage.PromptTokens,
		"completionTokens": out.Usage.CompletionTokens,
	})
	return out, nil
}

func (c *OpenAIClient) buildRequest(req *Request) oaRequest {
	out := oaRequest{
		Model:       c.config.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if out.Temperature == nil {
		out.Temperature = Temperature(c.config.Temperature)
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = c.config.MaxTokens
	}
	if req.JSONMode {
		out.ResponseFormat = map[string]string{"type": "json_object"}
	}

	if req.System != "" {
		system := req.System
		out.Messages = append(out.Messages, oaMessage{Role: "system", Content: &system})
	}
	for _, m := range req.Messages {
		msg := oaMessage{Role: string(m.Role), ToolCallID: m.ToolCallID}
		if m.Role == RoleTool {
			msg.Name = m.Name
		}
		if m.Content != "" || len(m.ToolCalls) == 0 {
			content := m.Content
			msg.Content = &content
		}
		for _, tc := range m.ToolCalls {
			call := oaToolCall{ID: tc.ID, Type: "function"}
			call.Function.Name = tc.Name
			call.Function.Arguments = string(tc.Arguments)
			msg.ToolCalls = append(msg.ToolCalls, call)
		}
		out.Messages = append(out.Messages, msg)
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, oaTool{Type: "function", Function: t})
	}
	return out
}

// post sends body with exponential backoff on transport errors, 429 and 5xx.
func (c *OpenAIClient) post(ctx context.Context, body []byte) ([]byte, error) {
	url := strings.TrimRight(c.config.BaseURL, "/") + "/chat/completions"
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, contextError(ctx)
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, apperrors.NewLLMRequestFailedError(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, contextError(ctx)
			}
			lastErr = err
			continue
		}

		raw, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}
		if resp.StatusCode == http.StatusOK {
			return raw, nil
		}

		lastErr = fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(raw), 300))
		if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < 500 {
			break
		}
		c.logger.Warn("llm request failed, retrying", map[string]interface{}{
			"attempt": attempt + 1,
			"status":  resp.StatusCode,
		})
	}

	if ctx.Err() != nil {
		return nil, contextError(ctx)
	}
	return nil, apperrors.NewLLMRequestFailedError(lastErr)
}

// contextError maps a done context. Only an expired deadline is a timeout;
// a cancelled caller is a plain failure.
func contextError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.NewLLMTimeoutError()
	}
	return apperrors.NewLLMRequestFailedError(ctx.Err())
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
