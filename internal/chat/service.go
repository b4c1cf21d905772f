// Package chat runs assistant turns: it calls the model with the trip's
// phase prompt and tools, executes tool calls and stores the conversation.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tripgen/internal/common/config"
	apperrors "tripgen/internal/common/errors"
	"tripgen/internal/common/logger"
	"tripgen/internal/common/metrics"
	"tripgen/internal/common/observability"
	"tripgen/internal/llm"
	"tripgen/internal/models"
	"tripgen/internal/prompts"
	"tripgen/internal/tools"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const maxMessageLength = 4000

type TripStore interface {
	Get(ctx context.Context, id string) (*models.Trip, error)
	SaveProgress(ctx context.Context, trip *models.Trip) error
	TransitionStatus(ctx context.Context, id string, next models.TripStatus) (*models.Trip, error)
}

type MessageStore interface {
	Append(ctx context.Context, msg *models.Message) error
	List(ctx context.Context, tripID string, limit int) ([]*models.Message, error)
}

type SheetReader interface {
	Latest(ctx context.Context, tripID string) (*models.ItineraryVersion, error)
}

type ToolExecutor interface {
	Execute(ctx context.Context, state *tools.TurnState, call llm.ToolCall) tools.Outcome
}

type Limiter interface {
	Allow(ctx context.Context, key string) error
}

type Locker interface {
	Acquire(ctx context.Context, tripID string) (func(), error)
}

type Service struct {
	config   config.ChatConfig
	llm      llm.Client
	trips    TripStore
	messages MessageStore
	sheets   SheetReader
	tools    ToolExecutor
	searcher tools.Searcher
	limiter  Limiter
	locker   Locker
	obs      *observability.Observability
	logger   logger.Logger
	now      func() time.Time
}

type Deps struct {
	LLM      llm.Client
	Trips    TripStore
	Messages MessageStore
	Sheets   SheetReader
	Tools    ToolExecutor
	Searcher tools.Searcher
	Limiter  Limiter
	Locker   Locker
	Obs      *observability.Observability
}

func NewService(cfg config.ChatConfig, deps Deps, log logger.Logger) *Service {
	obs := deps.Obs
	if obs == nil {
		obs = observability.NewNoop()
	}
	return &Service{
		config:   cfg,
		llm:      deps.LLM,
		trips:    deps.Trips,
		messages: deps.Messages,
		sheets:   deps.Sheets,
		tools:    deps.Tools,
		searcher: deps.Searcher,
		limiter:  deps.Limiter,
		locker:   deps.Locker,
		obs:      obs,
		logger:   log.With(map[string]interface{}{"component": "chat"}),
		now:      time.Now,
	}
}

type TurnInput struct {
	Text   string
	Author models.Author
	// RateKey identifies who is chatting: a user id, or the share phrase
	// for unauthenticated visitors.
	RateKey string
}

type TurnResult struct {
	UserMessage      *models.Message          `json:"user_message"`
	AssistantMessage *models.Message          `json:"assistant_message"`
	Trip             *models.Trip             `json:"trip"`
	Sheet            *models.ItineraryVersion `json:"sheet,omitempty"`
	Question         *tools.Question          `json:"question,omitempty"`
}

// Turn stores the user's message, lets the assistant respond and returns both.
// When a step fails the user message stays stored, the status does not move
// and the error is returned.
func (s *Service) Turn(ctx context.Context, trip *models.Trip, in TurnInput) (*TurnResult, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, apperrors.NewValidationError("message is empty")
	}
	if len(text) > maxMessageLength {
		return nil, apperrors.NewValidationError(fmt.Sprintf("message is longer than %d characters", maxMessageLength))
	}
	if s.limiter != nil {
		if err := s.limiter.Allow(ctx, in.RateKey); err != nil {
			return nil, err
		}
	}
	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, trip.ID)
		if err != nil {
			return nil, err
		}
		defer release()

		// The caller's copy was loaded before the lock.
		fresh, err := s.trips.Get(ctx, trip.ID)
		if err != nil {
			return nil, err
		}
		trip = fresh
	}

	if s.config.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.GetDuration(s.config.TurnTimeout))
		defer cancel()
	}
	ctx, span := s.obs.StartSpan(ctx, "chat.turn", attribute.String("trip.id", trip.ID))
	defer span.End()
	start := s.now()

	if trip.Status == models.TripStatusCreated || trip.Status == models.TripStatusFailed {
		updated, err := s.trips.TransitionStatus(ctx, trip.ID, models.TripStatusCollectingDetails)
		if err != nil {
			return nil, err
		}
		trip = updated
	}
	phase := trip.Phase()

	userMsg := &models.Message{
		TripID: trip.ID,
		Role:   models.RoleUser,
		Parts:  []models.MessagePart{models.TextPart(text)},
		Author: in.Author,
	}
	if err := s.messages.Append(ctx, userMsg); err != nil {
		return nil, err
	}

	result, err := s.respond(ctx, trip)
	outcome := "ok"
	if err != nil {
		outcome = string(apperrors.Normalize(err).Code)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	metrics.ChatTurns.WithLabelValues(string(phase), outcome).Inc()
	s.obs.RecordTurnDuration(ctx, s.now().Sub(start), string(phase))

	if err != nil {
		s.logger.Error("chat turn failed", map[string]interface{}{
			"tripId": trip.ID,
			"phase":  string(phase),
			"error":  err.Error(),
		})
		return nil, err
	}

	result.UserMessage = userMsg
	s.logger.Info("chat turn completed", map[string]interface{}{
		"tripId":     trip.ID,
		"phase":      string(phase),
		"status":     string(result.Trip.Status),
		"toolCalls":  len(result.AssistantMessage.ToolInvocations()),
		"newVersion": result.Sheet != nil,
	})
	return result, nil
}

// respond runs the model/tool loop against the stored history and saves
// the assistant message.
func (s *Service) respond(ctx context.Context, trip *models.Trip) (*TurnResult, error) {
	history, err := s.messages.List(ctx, trip.ID, s.config.HistoryLimit)
	if err != nil {
		return nil, err
	}
	latest, err := s.latestSheet(ctx, trip.ID)
	if err != nil {
		return nil, err
	}

	state := &tools.TurnState{Trip: trip, LatestSheet: latest}
	return s.runLoop(ctx, state, toLLMHistory(history), nil)
}

// runLoop calls the model until it answers without tools, asks a question,
// or the step budget runs out. allowed narrows the phase's tools when set.
//
// If any step fails, tool effects already done stay (merged details, saved
// versions) but the status does not advance and no assistant message is stored.
func (s *Service) runLoop(ctx context.Context, state *tools.TurnState, conversation []llm.Message, allowed []string) (*TurnResult, error) {
	assistant := &models.Message{TripID: state.Trip.ID, Role: models.RoleAssistant}
	statusBefore := state.Trip.Status

	maxSteps := s.config.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 6
	}

	var loopErr error
	for step := 1; step <= maxSteps; step++ {
		resp, err := s.llm.Complete(ctx, &llm.Request{
			System:   prompts.System(state.Trip, state.LatestSheet, s.now()),
			Messages: conversation,
			Tools:    filterTools(tools.ForPhase(state.Trip.Phase()), allowed),
		})
		if err != nil {
			loopErr = err
			break
		}

		if text := strings.TrimSpace(resp.Content); text != "" {
			assistant.Parts = append(assistant.Parts, models.TextPart(text))
		}
		if len(resp.ToolCalls) == 0 {
			break
		}

		conversation = append(conversation, llm.Message{Role: llm.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls})
		for _, call := range resp.ToolCalls {
			out := s.tools.Execute(ctx, state, call)
			toolState := models.ToolStateResult
			if out.IsError {
				toolState = models.ToolStateError
			}
			assistant.Parts = append(assistant.Parts, models.MessagePart{
				Type: models.PartToolInvocation,
				ToolInvocation: &models.ToolInvocation{
					ToolCallID: call.ID,
					ToolName:   call.Name,
					Args:       call.Arguments,
					Result:     out.Result,
					State:      toolState,
				},
			})
			conversation = append(conversation, llm.Message{
				Role:       llm.RoleTool,
				ToolCallID: call.ID,
				Name:       call.Name,
				Content:    string(out.Result),
			})
			if out.Err != nil {
				loopErr = out.Err
				break
			}
		}
		if loopErr != nil || state.EndTurn {
			break
		}
	}

	nextStatus := state.Trip.Status
	state.Trip.Status = statusBefore
	if state.TripChanged {
		if err := s.trips.SaveProgress(ctx, state.Trip); err != nil {
			return nil, err
		}
	}
	if loopErr != nil {
		s.logger.Warn("turn stopped early", map[string]interface{}{
			"tripId":     state.Trip.ID,
			"toolCalls":  len(assistant.ToolInvocations()),
			"newVersion": state.SavedVersion != nil,
			"error":      loopErr.Error(),
		})
		return nil, loopErr
	}
	if nextStatus != statusBefore {
		if err := s.advanceStatus(ctx, state.Trip, nextStatus); err != nil {
			return nil, err
		}
	}

	if state.Question != nil && assistant.TextContent() == "" {
		assistant.Parts = append(assistant.Parts, models.TextPart(state.Question.Text))
	}
	if assistant.TextContent() == "" {
		assistant.Parts = append(assistant.Parts, models.TextPart(fallbackReply(state)))
	}
	if err := s.messages.Append(ctx, assistant); err != nil {
		return nil, err
	}

	return &TurnResult{
		AssistantMessage: assistant,
		Trip:             state.Trip,
		Sheet:            state.SavedVersion,
		Question:         state.Question,
	}, nil
}

// advanceStatus moves the trip to next. If another request already moved it
// somewhere next cannot follow, the stored status wins.
func (s *Service) advanceStatus(ctx context.Context, trip *models.Trip, next models.TripStatus) error {
	updated, err := s.trips.TransitionStatus(ctx, trip.ID, next)
	if apperrors.Is(err, apperrors.ErrCodeInvalidStatusTransition) {
		s.logger.Warn("trip status changed during the turn", map[string]interface{}{
			"tripId": trip.ID,
			"wanted": string(next),
		})
		current, getErr := s.trips.Get(ctx, trip.ID)
		if getErr != nil {
			return getErr
		}
		trip.Status = current.Status
		return nil
	}
	if err != nil {
		return err
	}
	trip.Status = updated.Status
	trip.UpdatedAt = updated.UpdatedAt
	return nil
}

func (s *Service) latestSheet(ctx context.Context, tripID string) (*models.ItineraryVersion, error) {
	v, err := s.sheets.Latest(ctx, tripID)
	if apperrors.Is(err, apperrors.ErrCodeSheetNotFound) {
		return nil, nil
	}
	return v, err
}

func filterTools(all []llm.Tool, allowed []string) []llm.Tool {
	if allowed == nil {
		return all
	}
	var out []llm.Tool
	for _, t := range all {
		for _, name := range allowed {
			if t.Name == name {
				out = append(out, t)
			}
		}
	}
	return out
}

func fallbackReply(state *tools.TurnState) string {
	switch {
	case state.SavedVersion != nil:
		return fmt.Sprintf("I've updated the itinerary (version %d).", state.SavedVersion.Version)
	case state.Trip.AllDetailsCollected:
		return "I have everything I need to plan your trip."
	default:
		return "Got it. Tell me more about your trip."
	}
}
