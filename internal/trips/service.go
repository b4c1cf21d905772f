// Package trips implements the trip, message and sheet operations behind the
// HTTP API.
package trips

import (
	"context"
	"strings"
	"time"

	apperrors "tripgen/internal/common/errors"
	"tripgen/internal/common/logger"
	"tripgen/internal/export"
	"tripgen/internal/models"
	"tripgen/internal/prompts"
)

const (
	searchSize        = 20
	fallbackScanLimit = 200
	maxTitleLength    = 200
)

type TripStore interface {
	Create(ctx context.Context, trip *models.Trip) error
	Get(ctx context.Context, id string) (*models.Trip, error)
	GetOwned(ctx context.Context, id, ownerID string) (*models.Trip, error)
	GetBySharePhrase(ctx context.Context, phrase string) (*models.Trip, error)
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*models.Trip, error)
	GetMany(ctx context.Context, ownerID string, ids []string) ([]*models.Trip, error)
	Update(ctx context.Context, trip *models.Trip) error
	Rename(ctx context.Context, id, title string) error
	TransitionStatus(ctx context.Context, id string, next models.TripStatus) (*models.Trip, error)
	Delete(ctx context.Context, id, ownerID string) error
}

type MessageStore interface {
	Append(ctx context.Context, msg *models.Message) error
	List(ctx context.Context, tripID string, limit int) ([]*models.Message, error)
}

type VersionStore interface {
	Latest(ctx context.Context, tripID string) (*models.ItineraryVersion, error)
	Get(ctx context.Context, tripID string, version int) (*models.ItineraryVersion, error)
	LatestNumber(ctx context.Context, tripID string) (int, error)
	List(ctx context.Context, tripID string) ([]models.VersionSummary, error)
	Save(ctx context.Context, tripID string, baseVersion int, csv, createdBy string) (*models.ItineraryVersion, error)
	Restore(ctx context.Context, tripID string, version int) (*models.ItineraryVersion, error)
}

type PromptValidator interface {
	Validate(ctx context.Context, prompt string) (*prompts.Verdict, error)
}

// SearchIndex is the full-text trip index. Leave it nil to search in Postgres.
type SearchIndex interface {
	Put(ctx context.Context, trip *models.Trip) error
	Delete(ctx context.Context, tripID string) error
	Search(ctx context.Context, ownerID, query string, size int) ([]string, error)
}

type Exporter interface {
	Export(ctx context.Context, title, csv string) (*export.Result, error)
}

// Locker serialises writes to a trip's details with chat turns and
// generation. Leave it nil to skip locking.
type Locker interface {
	Acquire(ctx context.Context, tripID string) (func(), error)
}

// Launcher starts itinerary generation for a trip without waiting for it.
type Launcher interface {
	Launch(ctx context.Context, tripID string) error
}

type Deps struct {
	Trips     TripStore
	Messages  MessageStore
	Versions  VersionStore
	Validator PromptValidator
	Index     SearchIndex
	Exporter  Exporter
	Launcher  Launcher
	Locker    Locker
}

type Service struct {
	trips     TripStore
	messages  MessageStore
	versions  VersionStore
	validator PromptValidator
	index     SearchIndex
	exporter  Exporter
	launcher  Launcher
	locker    Locker
	logger    logger.Logger
}

func NewService(deps Deps, log logger.Logger) *Service {
	return &Service{
		trips:     deps.Trips,
		messages:  deps.Messages,
		versions:  deps.Versions,
		validator: deps.Validator,
		index:     deps.Index,
		exporter:  deps.Exporter,
		launcher:  deps.Launcher,
		locker:    deps.Locker,
		logger:    log.With(map[string]interface{}{"component": "trips"}),
	}
}

// Create validates prompt with the model, stores the trip and keeps the
// prompt as the first user message.
func (s *Service) Create(ctx context.Context, user *models.User, prompt string) (*models.Trip, error) {
	prompt = strings.TrimSpace(prompt)
	verdict, err := s.validator.Validate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	trip := &models.Trip{
		OwnerID: user.ID,
		Title:   titleFor(verdict.Title, prompt),
		Prompt:  prompt,
		Status:  models.TripStatusCreated,
	}
	if err := s.trips.Create(ctx, trip); err != nil {
		return nil, err
	}

	first := &models.Message{
		TripID:  trip.ID,
		Role:    models.RoleUser,
		Content: prompt,
		Parts:   []models.MessagePart{models.TextPart(prompt)},
		Author:  user.Author(),
	}
	if err := s.messages.Append(ctx, first); err != nil {
		return nil, err
	}

	s.reindex(ctx, trip)
	s.logger.Info("trip created", map[string]interface{}{"tripId": trip.ID, "ownerId": user.ID})
	return trip, nil
}

func titleFor(suggested, prompt string) string {
	title := strings.TrimSpace(suggested)
	if title == "" {
		title = strings.TrimSpace(prompt)
		if i := strings.IndexAny(title, ".\n"); i > 0 {
			title = title[:i]
		}
	}
	if r := []rune(title); len(r) > maxTitleLength {
		title = string(r[:maxTitleLength])
	}
	return title
}

func (s *Service) List(ctx context.Context, ownerID string, limit, offset int) ([]*models.Trip, error) {
	return s.trips.ListByOwner(ctx, ownerID, limit, offset)
}

// Search finds the owner's trips matching query. Without an index, or when
// the index fails, recent trips are filtered by substring instead.
func (s *Service) Search(ctx context.Context, ownerID, query string) ([]*models.Trip, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.NewValidationError("q is required")
	}

	if s.index != nil {
		ids, err := s.index.Search(ctx, ownerID, query, searchSize)
		if err == nil {
			return s.trips.GetMany(ctx, ownerID, ids)
		}
		s.logger.Warn("trip index search failed, scanning trips", map[string]interface{}{
			"ownerId": ownerID,
			"error":   err.Error(),
		})
	}

	all, err := s.trips.ListByOwner(ctx, ownerID, fallbackScanLimit, 0)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(query)
	matches := make([]*models.Trip, 0)
	for _, t := range all {
		if matchesTrip(t, needle) {
			matches = append(matches, t)
			if len(matches) == searchSize {
				break
			}
		}
	}
	return matches, nil
}

func matchesTrip(t *models.Trip, needle string) bool {
	fields := []string{t.Title, t.Prompt}
	fields = append(fields, t.Details.Destinations...)
	fields = append(fields, t.Details.Activities...)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}

func (s *Service) Get(ctx context.Context, id, ownerID string) (*models.Trip, error) {
	return s.trips.GetOwned(ctx, id, ownerID)
}

// GetShared resolves a share phrase to its trip.
func (s *Service) GetShared(ctx context.Context, phrase string) (*models.Trip, error) {
	return s.trips.GetBySharePhrase(ctx, phrase)
}

// Patch holds the trip fields a user may edit directly.
type Patch struct {
	Title   *string             `json:"title"`
	Details *models.TripDetails `json:"details"`
}

// Update applies patch. Details are merged so a partial object only
// changes the fields it sets. A details patch holds the trip's turn lock
// and merges onto the stored trip, not the caller's copy.
func (s *Service) Update(ctx context.Context, trip *models.Trip, patch Patch) (*models.Trip, error) {
	var title string
	if patch.Title != nil {
		title = strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, apperrors.NewValidationError("title must not be empty")
		}
		if len([]rune(title)) > maxTitleLength {
			return nil, apperrors.NewValidationError("title is too long")
		}
	}

	switch {
	case patch.Details != nil:
		if s.locker != nil {
			release, err := s.locker.Acquire(ctx, trip.ID)
			if err != nil {
				return nil, err
			}
			defer release()
		}
		current, err := s.trips.Get(ctx, trip.ID)
		if err != nil {
			return nil, err
		}
		if patch.Title != nil {
			current.Title = title
		}
		current.Details = current.Details.Merge(*patch.Details)
		if err := s.trips.Update(ctx, current); err != nil {
			return nil, err
		}
		trip = current
	case patch.Title != nil:
		if err := s.trips.Rename(ctx, trip.ID, title); err != nil {
			return nil, err
		}
		current, err := s.trips.Get(ctx, trip.ID)
		if err != nil {
			return nil, err
		}
		trip = current
	default:
		return trip, nil
	}

	s.reindex(ctx, trip)
	return trip, nil
}

func (s *Service) Delete(ctx context.Context, id, ownerID string) error {
	if err := s.trips.Delete(ctx, id, ownerID); err != nil {
		return err
	}
	if s.index != nil {
		if err := s.index.Delete(ctx, id); err != nil {
			s.logger.Warn("failed to remove trip from index", map[string]interface{}{"tripId": id, "error": err.Error()})
		}
	}
	return nil
}

func (s *Service) Messages(ctx context.Context, tripID string) ([]*models.Message, error) {
	return s.messages.List(ctx, tripID, 0)
}

// SharedView is everything a share link shows.
type SharedView struct {
	Trip     *models.Trip             `json:"trip"`
	Messages []*models.Message        `json:"messages"`
	Sheet    *models.ItineraryVersion `json:"sheet"`
}

func (s *Service) View(ctx context.Context, trip *models.Trip) (*SharedView, error) {
	messages, err := s.messages.List(ctx, trip.ID, 0)
	if err != nil {
		return nil, err
	}
	latest, err := s.versions.Latest(ctx, trip.ID)
	if err != nil && !apperrors.Is(err, apperrors.ErrCodeSheetNotFound) {
		return nil, err
	}
	return &SharedView{Trip: trip, Messages: messages, Sheet: latest}, nil
}

// StartGeneration moves the trip to generating_itinerary and hands it to the
// launcher. The trip is marked failed when the launch itself fails.
func (s *Service) StartGeneration(ctx context.Context, trip *models.Trip) (*models.Trip, error) {
	if missing := trip.Details.Missing(); len(missing) > 0 {
		return nil, apperrors.NewValidationError("missing trip details: " + strings.Join(missing, ", "))
	}
	updated, err := s.trips.TransitionStatus(ctx, trip.ID, models.TripStatusGeneratingItinerary)
	if err != nil {
		return nil, err
	}

	if err := s.launcher.Launch(ctx, trip.ID); err != nil {
		s.logger.Error("failed to start itinerary generation", map[string]interface{}{
			"tripId": trip.ID,
			"error":  err.Error(),
		})
		if _, ferr := s.trips.TransitionStatus(context.WithoutCancel(ctx), trip.ID, models.TripStatusFailed); ferr != nil {
			s.logger.Warn("failed to mark trip failed", map[string]interface{}{"tripId": trip.ID, "error": ferr.Error()})
		}
		return nil, err
	}

	s.logger.Info("itinerary generation started", map[string]interface{}{"tripId": trip.ID})
	return updated, nil
}

func (s *Service) reindex(ctx context.Context, trip *models.Trip) {
	if s.index == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.index.Put(ctx, trip); err != nil {
		s.logger.Warn("failed to index trip", map[string]interface{}{"tripId": trip.ID, "error": err.Error()})
	}
}
