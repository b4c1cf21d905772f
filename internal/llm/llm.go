// Package llm talks to hosted chat-completion models with tool calling.
package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"tripgen/internal/common/config"
	"tripgen/internal/common/logger"
	"tripgen/internal/common/validation"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Message is one entry of the conversation sent to the model. Tool results
// use RoleTool with ToolCallID and Name set.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

type Tool struct {
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Parameters  validation.JSONSchema `json:"parameters"`
}

type Request struct {
	System      string
	Messages    []Message
	Tools       []Tool
	Temperature *float64
	MaxTokens   int
	// JSONMode asks the model for a single JSON object as its reply.
	JSONMode bool
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type Response struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        Usage
}

// Client is implemented by every provider.
type Client interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
	Provider() string
}

// New builds the client for cfg.Provider.
func New(ctx context.Context, cfg config.LLMConfig, log logger.Logger) (Client, error) {
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAIClient(cfg, log), nil
	case "gemini":
		return NewGeminiClient(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// Temperature is a helper for Request.Temperature.
func Temperature(v float64) *float64 { return &v }
