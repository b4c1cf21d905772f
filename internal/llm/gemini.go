package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tripgen/internal/common/config"
	apperrors "tripgen/internal/common/errors"
	"tripgen/internal/common/logger"
	"tripgen/internal/common/metrics"
	"tripgen/internal/common/validation"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiClient calls Google's Gemini models through the generative-ai SDK.
type GeminiClient struct {
	config config.LLMConfig
	client *genai.Client
	logger logger.Logger
}

func NewGeminiClient(ctx context.Context, cfg config.LLMConfig, log logger.Logger) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{
		config: cfg,
		client: client,
		logger: log.With(map[string]interface{}{"provider": "gemini", "model": cfg.Model}),
	}, nil
}

func (c *GeminiClient) Provider() string { return "gemini" }

func (c *GeminiClient) Close() error {
	return c.client.Close()
}

func (c *GeminiClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, config.GetDuration(c.config.Timeout))
	defer cancel()

	model := c.client.GenerativeModel(c.config.Model)
	if req.System != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(req.System))
	}
	temperature := c.config.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	model.SetTemperature(float32(temperature))
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.config.MaxTokens
	}
	model.SetMaxOutputTokens(int32(maxTokens))
	if req.JSONMode {
		model.ResponseMIMEType = "application/json"
	}
	if len(req.Tools) > 0 {
		model.Tools = []*genai.Tool{toGeminiTool(req.Tools)}
	}

	contents, err := toGeminiContents(req.Messages)
	if err != nil {
		return nil, apperrors.NewLLMRequestFailedError(err)
	}
	if len(contents) == 0 {
		return nil, apperrors.NewLLMRequestFailedError(errors.New("no messages to send"))
	}

	cs := model.StartChat()
	cs.History = contents[:len(contents)-1]
	last := contents[len(contents)-1]

	var res *genai.GenerateContentResponse
	var lastErr error
	start := time.Now()
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, contextError(ctx)
			}
		}
		res, lastErr = cs.SendMessage(ctx, last.Parts...)
		if lastErr == nil {
			break
		}
		if ctx.Err() != nil {
			break
		}
		c.logger.Warn("gemini request failed, retrying", map[string]interface{}{
			"attempt": attempt + 1,
			"error":   lastErr.Error(),
		})
	}
	metrics.LLMRequestDuration.WithLabelValues(c.Provider()).Observe(time.Since(start).Seconds())

	if lastErr != nil {
		if ctx.Err() != nil {
			return nil, contextError(ctx)
		}
		return nil, apperrors.NewLLMRequestFailedError(lastErr)
	}
	return fromGeminiResponse(res)
}

func fromGeminiResponse(res *genai.GenerateContentResponse) (*Response, error) {
	if res == nil || len(res.Candidates) == 0 || res.Candidates[0].Content == nil {
		return nil, apperrors.NewLLMRequestFailedError(errors.New("response has no candidates"))
	}
	cand := res.Candidates[0]
	out := &Response{FinishReason: fmt.Sprint(cand.FinishReason)}
	if res.UsageMetadata != nil {
		out.Usage = Usage{
			PromptTokens:     int(res.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(res.UsageMetadata.CandidatesTokenCount),
		}
	}

	for _, part := range cand.Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			out.Content += string(p)
		case genai.FunctionCall:
			args, err := json.Marshal(p.Args)
			if err != nil {
				return nil, apperrors.NewLLMRequestFailedError(err)
			}
			if p.Args == nil {
				args = json.RawMessage("{}")
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        fmt.Sprintf("call_%d_%s", len(out.ToolCalls)+1, p.Name),
				Name:      p.Name,
				Arguments: args,
			})
		}
	}
	return out, nil
}

// toGeminiContents groups consecutive tool results into one user turn, the
// shape Gemini expects after a model turn with function calls.
func toGeminiContents(messages []Message) ([]*genai.Content, error) {
	var contents []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case RoleUser:
			contents = append(contents, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		case RoleAssistant:
			content := &genai.Content{Role: "model"}
			if m.Content != "" {
				content.Parts = append(content.Parts, genai.Text(m.Content))
			}
			for _, tc := range m.ToolCalls {
				args := map[string]any{}
				if len(tc.Arguments) > 0 {
					if err := json.Unmarshal(tc.Arguments, &args); err != nil {
						return nil, fmt.Errorf("tool call %s arguments: %w", tc.Name, err)
					}
				}
				content.Parts = append(content.Parts, genai.FunctionCall{Name: tc.Name, Args: args})
			}
			if len(content.Parts) == 0 {
				content.Parts = []genai.Part{genai.Text("")}
			}
			contents = append(contents, content)
		case RoleTool:
			part := genai.FunctionResponse{Name: m.Name, Response: toolResponseMap(m.Content)}
			if n := len(contents); n > 0 && contents[n-1].Role == "user" && isFunctionResponses(contents[n-1]) {
				contents[n-1].Parts = append(contents[n-1].Parts, part)
				continue
			}
			contents = append(contents, &genai.Content{Role: "user", Parts: []genai.Part{part}})
		default:
			return nil, fmt.Errorf("unsupported role %q", m.Role)
		}
	}
	return contents, nil
}

func isFunctionResponses(c *genai.Content) bool {
	for _, p := range c.Parts {
		if _, ok := p.(genai.FunctionResponse); !ok {
			return false
		}
	}
	return len(c.Parts) > 0
}

func toolResponseMap(content string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(content), &obj); err == nil && obj != nil {
		return obj
	}
	return map[string]any{"result": content}
}

func toGeminiTool(tools []Tool) *genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  toGeminiSchema(t.Parameters),
		})
	}
	return &genai.Tool{FunctionDeclarations: decls}
}

func toGeminiSchema(s validation.JSONSchema) *genai.Schema {
	out := &genai.Schema{
		Type:        genai.TypeObject,
		Description: s.Description,
		Required:    s.Required,
		Properties:  make(map[string]*genai.Schema, len(s.Properties)),
	}
	for name, p := range s.Properties {
		out.Properties[name] = toGeminiProperty(p)
	}
	return out
}

func toGeminiProperty(p validation.Property) *genai.Schema {
	out := &genai.Schema{
		Type:        geminiType(p.Type),
		Description: p.Description,
		Enum:        p.Enum,
		Required:    p.Required,
	}
	if p.Items != nil {
		out.Items = toGeminiProperty(*p.Items)
	}
	if len(p.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(p.Properties))
		for name, child := range p.Properties {
			out.Properties[name] = toGeminiProperty(child)
		}
	}
	return out
}

func geminiType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}
