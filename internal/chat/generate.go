package chat

import (
	"context"
	"fmt"
	"strings"

	apperrors "tripgen/internal/common/errors"
	"tripgen/internal/llm"
	"tripgen/internal/models"
	"tripgen/internal/prompts"
	"tripgen/internal/tools"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	generateAttempts   = 3
	researchMaxResults = 5
)

// Generate writes an itinerary for a trip without a user message. It is
// run by the generate-itinerary worker or in the background after the
// user asks for a plan. The trip ends completed, or failed on any error
// after it was loaded, including a turn holding the trip's lock.
func (s *Service) Generate(ctx context.Context, tripID string) (*models.ItineraryVersion, error) {
	trip, err := s.trips.Get(ctx, tripID)
	if err != nil {
		return nil, err
	}

	ctx, span := s.obs.StartSpan(ctx, "chat.generate", attribute.String("trip.id", trip.ID))
	defer span.End()
	start := s.now()

	version, err := s.generateLocked(ctx, trip)
	outcome := "ok"
	if err != nil {
		outcome = string(apperrors.Normalize(err).Code)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		s.markFailed(ctx, trip.ID, err)
	}
	s.obs.RecordTurnDuration(ctx, s.now().Sub(start), "generate")
	return version, err
}

func (s *Service) generateLocked(ctx context.Context, trip *models.Trip) (*models.ItineraryVersion, error) {
	if missing := trip.Details.Missing(); len(missing) > 0 {
		return nil, apperrors.NewValidationError("trip is missing: " + strings.Join(missing, ", "))
	}
	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, trip.ID)
		if err != nil {
			return nil, err
		}
		defer release()
	}
	return s.generate(ctx, trip)
}

func (s *Service) generate(ctx context.Context, trip *models.Trip) (*models.ItineraryVersion, error) {
	trip, err := s.trips.TransitionStatus(ctx, trip.ID, models.TripStatusGeneratingItinerary)
	if err != nil {
		return nil, err
	}
	trip.AllDetailsCollected = true

	latest, err := s.latestSheet(ctx, trip.ID)
	if err != nil {
		return nil, err
	}
	conversation := []llm.Message{{Role: llm.RoleUser, Content: prompts.Generation(trip, s.research(ctx, trip))}}

	for attempt := 1; attempt <= generateAttempts; attempt++ {
		state := &tools.TurnState{Trip: trip, LatestSheet: latest, TripChanged: true}
		result, err := s.runLoop(ctx, state, conversation, []string{tools.WriteItinerary})
		if err != nil {
			return nil, err
		}
		if result.Sheet != nil {
			s.logger.Info("itinerary generated", map[string]interface{}{
				"tripId":  trip.ID,
				"version": result.Sheet.Version,
				"attempt": attempt,
			})
			return result.Sheet, nil
		}
		if latest != nil && wroteItinerary(result.AssistantMessage) {
			// The model rewrote the existing sheet unchanged.
			if _, err := s.trips.TransitionStatus(ctx, trip.ID, models.TripStatusCompleted); err != nil {
				return nil, err
			}
			return latest, nil
		}
		s.logger.Warn("model did not write an itinerary", map[string]interface{}{
			"tripId":  trip.ID,
			"attempt": attempt,
		})
	}
	return nil, apperrors.NewLLMRequestFailedError(fmt.Errorf("no itinerary after %d attempts", generateAttempts))
}

// research gathers a few search results about the main destination.
// Failures only cost the extra context.
func (s *Service) research(ctx context.Context, trip *models.Trip) string {
	if s.searcher == nil || len(trip.Details.Destinations) == 0 {
		return ""
	}
	query := "things to do in " + trip.Details.Destinations[0]
	if trip.Details.StartDate != "" {
		query += " " + trip.Details.StartDate[:min(7, len(trip.Details.StartDate))]
	}
	res, err := s.searcher.Search(ctx, query, researchMaxResults)
	if err != nil {
		s.logger.Warn("destination research failed", map[string]interface{}{
			"tripId": trip.ID,
			"error":  err.Error(),
		})
		return ""
	}

	var parts []string
	if res.Answer != "" {
		parts = append(parts, res.Answer)
	}
	for _, src := range res.Sources {
		parts = append(parts, fmt.Sprintf("- %s: %s", src.Title, src.Snippet))
	}
	return strings.Join(parts, "\n")
}

func (s *Service) markFailed(ctx context.Context, tripID string, cause error) {
	if _, err := s.trips.TransitionStatus(context.WithoutCancel(ctx), tripID, models.TripStatusFailed); err != nil {
		s.logger.Error("failed to mark trip as failed", map[string]interface{}{
			"tripId": tripID,
			"cause":  cause.Error(),
			"error":  err.Error(),
		})
	}
}

func wroteItinerary(msg *models.Message) bool {
	for _, inv := range msg.ToolInvocations() {
		if inv.ToolName == tools.WriteItinerary && inv.State == models.ToolStateResult {
			return true
		}
	}
	return false
}
