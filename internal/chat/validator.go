package chat

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	apperrors "tripgen/internal/common/errors"
	"tripgen/internal/common/logger"
	"tripgen/internal/llm"
	"tripgen/internal/prompts"
)

const validationMaxTokens = 200

// Validator asks the model whether a new trip prompt is a travel request.
type Validator struct {
	llm    llm.Client
	logger logger.Logger
}

func NewValidator(client llm.Client, log logger.Logger) *Validator {
	return &Validator{
		llm:    client,
		logger: log.With(map[string]interface{}{"component": "prompt-validator"}),
	}
}

// Validate returns the model's verdict for prompt. Rejected prompts come
// back as PROMPT_REJECTED with the model's reason.
func (v *Validator) Validate(ctx context.Context, prompt string) (*prompts.Verdict, error) {
	prompt = strings.TrimSpace(prompt)
	n := utf8.RuneCountInString(prompt)
	if n < prompts.MinPromptLength {
		return nil, apperrors.NewValidationError(fmt.Sprintf("prompt must be at least %d characters", prompts.MinPromptLength))
	}
	if n > prompts.MaxPromptLength {
		return nil, apperrors.NewValidationError(fmt.Sprintf("prompt must be at most %d characters", prompts.MaxPromptLength))
	}

	resp, err := v.llm.Complete(ctx, &llm.Request{
		System:      prompts.ValidationSystem,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Temperature: llm.Temperature(0),
		MaxTokens:   validationMaxTokens,
		JSONMode:    true,
	})
	if err != nil {
		return nil, err
	}

	verdict, err := prompts.ParseVerdict(resp.Content)
	if err != nil {
		v.logger.Warn("unparseable validation reply", map[string]interface{}{
			"error": err.Error(),
			"reply": resp.Content,
		})
		return nil, apperrors.NewLLMRequestFailedError(fmt.Errorf("invalid validation reply: %w", err))
	}
	if !verdict.Valid {
		reason := verdict.Reason
		if reason == "" {
			reason = "This doesn't look like a trip request."
		}
		return verdict, apperrors.NewPromptRejectedError(reason)
	}
	return verdict, nil
}
