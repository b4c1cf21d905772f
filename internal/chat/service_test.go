package chat

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"tripgen/internal/common/config"
	apperrors "tripgen/internal/common/errors"
	"tripgen/internal/common/logger"
	"tripgen/internal/llm"
	"tripgen/internal/models"
	"tripgen/internal/search"
	"tripgen/internal/tools"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mocks
// ==========================

type MockLLM struct {
	mock.Mock
}

func (m *MockLLM) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*llm.Response), args.Error(1)
}

func (m *MockLLM) Provider() string { return "mock" }

type MockTrips struct {
	mock.Mock
}

func (m *MockTrips) Get(ctx context.Context, id string) (*models.Trip, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Trip), args.Error(1)
}

func (m *MockTrips) SaveProgress(ctx context.Context, trip *models.Trip) error {
	return m.Called(ctx, trip).Error(0)
}

func (m *MockTrips) TransitionStatus(ctx context.Context, id string, next models.TripStatus) (*models.Trip, error) {
	args := m.Called(ctx, id, next)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Trip), args.Error(1)
}

type MockMessages struct {
	mock.Mock
}

func (m *MockMessages) Append(ctx context.Context, msg *models.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *MockMessages) List(ctx context.Context, tripID string, limit int) ([]*models.Message, error) {
	args := m.Called(ctx, tripID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Message), args.Error(1)
}

type MockSheets struct {
	mock.Mock
}

func (m *MockSheets) Latest(ctx context.Context, tripID string) (*models.ItineraryVersion, error) {
	args := m.Called(ctx, tripID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ItineraryVersion), args.Error(1)
}

type MockTools struct {
	mock.Mock
}

func (m *MockTools) Execute(ctx context.Context, state *tools.TurnState, call llm.ToolCall) tools.Outcome {
	return m.Called(ctx, state, call).Get(0).(tools.Outcome)
}

type MockSearcher struct {
	mock.Mock
}

func (m *MockSearcher) Search(ctx context.Context, query string, maxResults int) (*search.Result, error) {
	args := m.Called(ctx, query, maxResults)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*search.Result), args.Error(1)
}

type fixture struct {
	llm      *MockLLM
	trips    *MockTrips
	messages *MockMessages
	sheets   *MockSheets
	tools    *MockTools
	searcher *MockSearcher
	redis    *miniredis.Miniredis
	service  *Service
}

func newFixture(t *testing.T, cfg config.ChatConfig) *fixture {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	f := &fixture{
		llm:      new(MockLLM),
		trips:    new(MockTrips),
		messages: new(MockMessages),
		sheets:   new(MockSheets),
		tools:    new(MockTools),
		searcher: new(MockSearcher),
		redis:    mr,
	}
	f.service = NewService(cfg, Deps{
		LLM:      f.llm,
		Trips:    f.trips,
		Messages: f.messages,
		Sheets:   f.sheets,
		Tools:    f.tools,
		Searcher: f.searcher,
		Limiter:  NewRateLimiter(client, cfg.RateLimitPerMinute),
		Locker:   NewTurnLock(client, time.Minute),
	}, logger.NewTestLogger(t))
	f.service.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return f
}

func (f *fixture) assertExpectations(t *testing.T) {
	f.llm.AssertExpectations(t)
	f.trips.AssertExpectations(t)
	f.messages.AssertExpectations(t)
	f.sheets.AssertExpectations(t)
	f.tools.AssertExpectations(t)
}

func collectingTrip() *models.Trip {
	return &models.Trip{ID: "trip-1", OwnerID: "user-1", Status: models.TripStatusCollectingDetails}
}

func withRole(role models.Role) interface{} {
	return mock.MatchedBy(func(m *models.Message) bool { return m.Role == role })
}

func toolCall(id, name, args string) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)}
}

var defaultChat = config.ChatConfig{MaxSteps: 4, HistoryLimit: 20}

// ==========================
// Turn
// ==========================

func TestTurn_RejectsEmptyMessage(t *testing.T) {
	f := newFixture(t, defaultChat)

	_, err := f.service.Turn(context.Background(), collectingTrip(), TurnInput{Text: "   ", RateKey: "user-1"})

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeValidationFailed))
	f.assertExpectations(t)
}

func TestTurn_PlainReply(t *testing.T) {
	f := newFixture(t, defaultChat)
	trip := &models.Trip{ID: "trip-1", OwnerID: "user-1", Status: models.TripStatusCreated}
	moved := collectingTrip()

	f.trips.On("Get", mock.Anything, "trip-1").Return(trip, nil)
	f.trips.On("TransitionStatus", mock.Anything, "trip-1", models.TripStatusCollectingDetails).Return(moved, nil)
	f.messages.On("Append", mock.Anything, withRole(models.RoleUser)).Return(nil).Once()
	f.messages.On("List", mock.Anything, "trip-1", 20).Return([]*models.Message{
		{Role: models.RoleUser, Parts: []models.MessagePart{models.TextPart("Tokyo in spring")}},
	}, nil)
	f.sheets.On("Latest", mock.Anything, "trip-1").Return(nil, apperrors.NewSheetNotFoundError("trip-1"))
	f.llm.On("Complete", mock.Anything, mock.MatchedBy(func(req *llm.Request) bool {
		return len(req.Messages) == 1 && len(req.Tools) == 4 && req.System != ""
	})).Return(&llm.Response{Content: "Sounds great! How many people are going?"}, nil).Once()
	f.messages.On("Append", mock.Anything, withRole(models.RoleAssistant)).Return(nil).Once()

	result, err := f.service.Turn(context.Background(), trip, TurnInput{
		Text:    "  Tokyo in spring ",
		Author:  models.Author{Name: "Ana"},
		RateKey: "user-1",
	})

	require.NoError(t, err)
	assert.Equal(t, "Tokyo in spring", result.UserMessage.TextContent())
	assert.Equal(t, "Ana", result.UserMessage.Author.Name)
	assert.Equal(t, "Sounds great! How many people are going?", result.AssistantMessage.TextContent())
	assert.Equal(t, models.TripStatusCollectingDetails, result.Trip.Status)
	assert.Nil(t, result.Sheet)
	f.trips.AssertNotCalled(t, "SaveProgress", mock.Anything, mock.Anything)
	f.assertExpectations(t)
}

func TestTurn_ToolLoopUpdatesTrip(t *testing.T) {
	f := newFixture(t, defaultChat)
	trip := collectingTrip()
	update := toolCall("c1", tools.UpdateTripDetails, `{"destinations":["Kyoto"]}`)

	f.trips.On("Get", mock.Anything, "trip-1").Return(trip, nil)
	f.messages.On("Append", mock.Anything, withRole(models.RoleUser)).Return(nil).Once()
	f.messages.On("List", mock.Anything, "trip-1", 20).Return([]*models.Message{
		{Role: models.RoleUser, Content: "Kyoto please"},
	}, nil)
	f.sheets.On("Latest", mock.Anything, "trip-1").Return(nil, apperrors.NewSheetNotFoundError("trip-1"))
	f.llm.On("Complete", mock.Anything, mock.MatchedBy(func(req *llm.Request) bool {
		return len(req.Messages) == 1
	})).Return(&llm.Response{ToolCalls: []llm.ToolCall{update}}, nil).Once()
	f.tools.On("Execute", mock.Anything, mock.Anything, update).
		Run(func(args mock.Arguments) {
			state := args.Get(1).(*tools.TurnState)
			state.Trip.Details.Destinations = []string{"Kyoto"}
			state.TripChanged = true
		}).
		Return(tools.Outcome{Result: json.RawMessage(`{"status":"updated"}`)})
	f.llm.On("Complete", mock.Anything, mock.MatchedBy(func(req *llm.Request) bool {
		return len(req.Messages) == 3 &&
			req.Messages[1].Role == llm.RoleAssistant &&
			req.Messages[2].Role == llm.RoleTool &&
			req.Messages[2].ToolCallID == "c1"
	})).Return(&llm.Response{Content: "Kyoto it is."}, nil).Once()
	f.trips.On("SaveProgress", mock.Anything, mock.MatchedBy(func(tr *models.Trip) bool {
		return len(tr.Details.Destinations) == 1 && tr.Details.Destinations[0] == "Kyoto"
	})).Return(nil)
	f.messages.On("Append", mock.Anything, withRole(models.RoleAssistant)).Return(nil).Once()

	result, err := f.service.Turn(context.Background(), trip, TurnInput{Text: "Kyoto please", RateKey: "user-1"})

	require.NoError(t, err)
	invocations := result.AssistantMessage.ToolInvocations()
	require.Len(t, invocations, 1)
	assert.Equal(t, tools.UpdateTripDetails, invocations[0].ToolName)
	assert.Equal(t, models.ToolStateResult, invocations[0].State)
	assert.Equal(t, "Kyoto it is.", result.AssistantMessage.TextContent())
	f.assertExpectations(t)
}

func TestTurn_AskQuestionEndsTurn(t *testing.T) {
	f := newFixture(t, defaultChat)
	ask := toolCall("c1", tools.AskQuestion, `{"question":"When are you travelling?"}`)

	f.trips.On("Get", mock.Anything, "trip-1").Return(collectingTrip(), nil)
	f.messages.On("Append", mock.Anything, withRole(models.RoleUser)).Return(nil).Once()
	f.messages.On("List", mock.Anything, "trip-1", 20).Return([]*models.Message{{Role: models.RoleUser, Content: "Rome"}}, nil)
	f.sheets.On("Latest", mock.Anything, "trip-1").Return(nil, apperrors.NewSheetNotFoundError("trip-1"))
	f.llm.On("Complete", mock.Anything, mock.Anything).Return(&llm.Response{ToolCalls: []llm.ToolCall{ask}}, nil).Once()
	f.tools.On("Execute", mock.Anything, mock.Anything, ask).
		Run(func(args mock.Arguments) {
			state := args.Get(1).(*tools.TurnState)
			state.Question = &tools.Question{Text: "When are you travelling?"}
			state.EndTurn = true
		}).
		Return(tools.Outcome{Result: json.RawMessage(`{"status":"asked"}`)})
	f.messages.On("Append", mock.Anything, withRole(models.RoleAssistant)).Return(nil).Once()

	result, err := f.service.Turn(context.Background(), collectingTrip(), TurnInput{Text: "Rome", RateKey: "user-1"})

	require.NoError(t, err)
	require.NotNil(t, result.Question)
	assert.Equal(t, "When are you travelling?", result.AssistantMessage.TextContent())
	f.llm.AssertNumberOfCalls(t, "Complete", 1)
	f.assertExpectations(t)
}

func TestTurn_StopsAtMaxSteps(t *testing.T) {
	f := newFixture(t, config.ChatConfig{MaxSteps: 2})
	search := toolCall("c1", tools.SearchWeb, `{"query":"weather in Oslo"}`)

	f.trips.On("Get", mock.Anything, "trip-1").Return(collectingTrip(), nil)
	f.messages.On("Append", mock.Anything, withRole(models.RoleUser)).Return(nil).Once()
	f.messages.On("List", mock.Anything, "trip-1", 0).Return([]*models.Message{{Role: models.RoleUser, Content: "Oslo"}}, nil)
	f.sheets.On("Latest", mock.Anything, "trip-1").Return(nil, apperrors.NewSheetNotFoundError("trip-1"))
	f.llm.On("Complete", mock.Anything, mock.Anything).Return(&llm.Response{ToolCalls: []llm.ToolCall{search}}, nil).Twice()
	f.tools.On("Execute", mock.Anything, mock.Anything, search).Return(tools.Outcome{Result: json.RawMessage(`{"sources":[]}`)})
	f.messages.On("Append", mock.Anything, withRole(models.RoleAssistant)).Return(nil).Once()

	result, err := f.service.Turn(context.Background(), collectingTrip(), TurnInput{Text: "Oslo", RateKey: "user-1"})

	require.NoError(t, err)
	assert.Len(t, result.AssistantMessage.ToolInvocations(), 2)
	assert.Equal(t, "Got it. Tell me more about your trip.", result.AssistantMessage.TextContent())
	f.assertExpectations(t)
}

func TestTurn_LLMFailureKeepsUserMessage(t *testing.T) {
	f := newFixture(t, defaultChat)

	f.trips.On("Get", mock.Anything, "trip-1").Return(collectingTrip(), nil)
	f.messages.On("Append", mock.Anything, withRole(models.RoleUser)).Return(nil).Once()
	f.messages.On("List", mock.Anything, "trip-1", 20).Return([]*models.Message{{Role: models.RoleUser, Content: "Paris"}}, nil)
	f.sheets.On("Latest", mock.Anything, "trip-1").Return(nil, apperrors.NewSheetNotFoundError("trip-1"))
	f.llm.On("Complete", mock.Anything, mock.Anything).Return(nil, apperrors.NewLLMTimeoutError())

	_, err := f.service.Turn(context.Background(), collectingTrip(), TurnInput{Text: "Paris", RateKey: "user-1"})

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeLLMTimeout))
	f.messages.AssertNumberOfCalls(t, "Append", 1)
	f.trips.AssertNotCalled(t, "SaveProgress", mock.Anything, mock.Anything)
	f.trips.AssertNotCalled(t, "TransitionStatus", mock.Anything, mock.Anything, mock.Anything)
	f.assertExpectations(t)
}

func TestTurn_LLMFailureAfterToolStepKeepsProgressOnly(t *testing.T) {
	f := newFixture(t, defaultChat)
	trip := collectingTrip()
	trip.AllDetailsCollected = true
	write := toolCall("c1", tools.WriteItinerary, `{"csv":"Day,Activity\n1,Walk"}`)
	saved := &models.ItineraryVersion{TripID: "trip-1", Version: 1}

	f.trips.On("Get", mock.Anything, "trip-1").Return(trip, nil)
	f.messages.On("Append", mock.Anything, withRole(models.RoleUser)).Return(nil).Once()
	f.messages.On("List", mock.Anything, "trip-1", 20).Return([]*models.Message{{Role: models.RoleUser, Content: "write it"}}, nil)
	f.sheets.On("Latest", mock.Anything, "trip-1").Return(nil, apperrors.NewSheetNotFoundError("trip-1"))
	f.llm.On("Complete", mock.Anything, mock.Anything).Return(&llm.Response{ToolCalls: []llm.ToolCall{write}}, nil).Once()
	f.tools.On("Execute", mock.Anything, mock.Anything, write).
		Run(func(args mock.Arguments) {
			state := args.Get(1).(*tools.TurnState)
			state.SavedVersion = saved
			state.Trip.Status = models.TripStatusCompleted
			state.TripChanged = true
		}).
		Return(tools.Outcome{Result: json.RawMessage(`{"status":"saved","version":1}`)})
	f.llm.On("Complete", mock.Anything, mock.Anything).Return(nil, apperrors.NewLLMRequestFailedError(errors.New("502"))).Once()
	f.trips.On("SaveProgress", mock.Anything, mock.MatchedBy(func(tr *models.Trip) bool {
		return tr.Status == models.TripStatusCollectingDetails
	})).Return(nil).Once()

	_, err := f.service.Turn(context.Background(), trip, TurnInput{Text: "write it", RateKey: "user-1"})

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeLLMRequestFailed))
	f.messages.AssertNumberOfCalls(t, "Append", 1)
	f.trips.AssertNotCalled(t, "TransitionStatus", mock.Anything, mock.Anything, mock.Anything)
	f.assertExpectations(t)
}

func TestTurn_WriteItineraryAdvancesStatus(t *testing.T) {
	write := toolCall("c1", tools.WriteItinerary, `{"csv":"Day,Activity\n1,Walk"}`)

	setup := func(t *testing.T) *fixture {
		f := newFixture(t, defaultChat)
		trip := collectingTrip()
		trip.AllDetailsCollected = true
		f.trips.On("Get", mock.Anything, "trip-1").Return(trip, nil).Once()
		f.messages.On("Append", mock.Anything, mock.Anything).Return(nil)
		f.messages.On("List", mock.Anything, "trip-1", 20).Return([]*models.Message{{Role: models.RoleUser, Content: "write it"}}, nil)
		f.sheets.On("Latest", mock.Anything, "trip-1").Return(nil, apperrors.NewSheetNotFoundError("trip-1"))
		f.llm.On("Complete", mock.Anything, mock.Anything).Return(&llm.Response{ToolCalls: []llm.ToolCall{write}}, nil).Once()
		f.tools.On("Execute", mock.Anything, mock.Anything, write).
			Run(func(args mock.Arguments) {
				state := args.Get(1).(*tools.TurnState)
				state.SavedVersion = &models.ItineraryVersion{TripID: "trip-1", Version: 1}
				state.Trip.Status = models.TripStatusCompleted
				state.TripChanged = true
			}).
			Return(tools.Outcome{Result: json.RawMessage(`{"status":"saved","version":1}`)})
		f.llm.On("Complete", mock.Anything, mock.Anything).Return(&llm.Response{Content: "Done."}, nil).Once()
		f.trips.On("SaveProgress", mock.Anything, mock.Anything).Return(nil)
		return f
	}

	t.Run("completed", func(t *testing.T) {
		f := setup(t)
		done := collectingTrip()
		done.Status = models.TripStatusCompleted
		f.trips.On("TransitionStatus", mock.Anything, "trip-1", models.TripStatusCompleted).Return(done, nil)

		result, err := f.service.Turn(context.Background(), collectingTrip(), TurnInput{Text: "write it", RateKey: "user-1"})

		require.NoError(t, err)
		assert.Equal(t, models.TripStatusCompleted, result.Trip.Status)
		assert.Equal(t, 1, result.Sheet.Version)
	})

	t.Run("status moved by another request", func(t *testing.T) {
		f := setup(t)
		failed := collectingTrip()
		failed.Status = models.TripStatusFailed
		f.trips.On("TransitionStatus", mock.Anything, "trip-1", models.TripStatusCompleted).
			Return(nil, apperrors.NewInvalidStatusTransitionError("failed", "completed"))
		f.trips.On("Get", mock.Anything, "trip-1").Return(failed, nil).Once()

		result, err := f.service.Turn(context.Background(), collectingTrip(), TurnInput{Text: "write it", RateKey: "user-1"})

		require.NoError(t, err)
		assert.Equal(t, models.TripStatusFailed, result.Trip.Status)
	})
}

func TestTurn_ReloadsTripAfterLock(t *testing.T) {
	f := newFixture(t, defaultChat)
	stale := collectingTrip()
	fresh := collectingTrip()
	fresh.AllDetailsCollected = true

	f.trips.On("Get", mock.Anything, "trip-1").Return(fresh, nil)
	f.messages.On("Append", mock.Anything, mock.Anything).Return(nil)
	f.messages.On("List", mock.Anything, "trip-1", 20).Return([]*models.Message{{Role: models.RoleUser, Content: "go on"}}, nil)
	f.sheets.On("Latest", mock.Anything, "trip-1").Return(nil, apperrors.NewSheetNotFoundError("trip-1"))
	f.llm.On("Complete", mock.Anything, mock.MatchedBy(func(req *llm.Request) bool {
		return len(req.Tools) == len(tools.ForPhase(models.PhaseItinerary))
	})).Return(&llm.Response{Content: "Planning now."}, nil).Once()

	result, err := f.service.Turn(context.Background(), stale, TurnInput{Text: "go on", RateKey: "user-1"})

	require.NoError(t, err)
	assert.True(t, result.Trip.AllDetailsCollected)
	f.assertExpectations(t)
}

func TestTurn_FatalToolErrorStoresNoReply(t *testing.T) {
	f := newFixture(t, defaultChat)
	trip := collectingTrip()
	trip.AllDetailsCollected = true
	write := toolCall("c1", tools.WriteItinerary, `{"csv":"Day,Activity\n1,Walk"}`)
	dbErr := apperrors.NewDatabaseInsertFailedError(errors.New("connection reset"))

	f.trips.On("Get", mock.Anything, "trip-1").Return(trip, nil)
	f.messages.On("Append", mock.Anything, withRole(models.RoleUser)).Return(nil).Once()
	f.messages.On("List", mock.Anything, "trip-1", 20).Return([]*models.Message{{Role: models.RoleUser, Content: "write it"}}, nil)
	f.sheets.On("Latest", mock.Anything, "trip-1").Return(nil, apperrors.NewSheetNotFoundError("trip-1"))
	f.llm.On("Complete", mock.Anything, mock.MatchedBy(func(req *llm.Request) bool {
		return len(req.Tools) == 3
	})).Return(&llm.Response{Content: "Writing it now.", ToolCalls: []llm.ToolCall{write}}, nil).Once()
	f.tools.On("Execute", mock.Anything, mock.Anything, write).
		Return(tools.Outcome{Result: json.RawMessage(`{"error":"could not save itinerary"}`), IsError: true, Err: dbErr})

	_, err := f.service.Turn(context.Background(), trip, TurnInput{Text: "write it", RateKey: "user-1"})

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeDatabaseInsertFailed))
	f.messages.AssertNumberOfCalls(t, "Append", 1)
	f.trips.AssertNotCalled(t, "SaveProgress", mock.Anything, mock.Anything)
	f.assertExpectations(t)
}

func TestTurn_RateLimited(t *testing.T) {
	f := newFixture(t, config.ChatConfig{MaxSteps: 2, RateLimitPerMinute: 1})

	f.trips.On("Get", mock.Anything, "trip-1").Return(collectingTrip(), nil)
	f.messages.On("Append", mock.Anything, mock.Anything).Return(nil)
	f.messages.On("List", mock.Anything, "trip-1", 0).Return([]*models.Message{{Role: models.RoleUser, Content: "hi"}}, nil)
	f.sheets.On("Latest", mock.Anything, "trip-1").Return(nil, apperrors.NewSheetNotFoundError("trip-1"))
	f.llm.On("Complete", mock.Anything, mock.Anything).Return(&llm.Response{Content: "Hello!"}, nil).Once()

	_, err := f.service.Turn(context.Background(), collectingTrip(), TurnInput{Text: "hi", RateKey: "user-1"})
	require.NoError(t, err)

	_, err = f.service.Turn(context.Background(), collectingTrip(), TurnInput{Text: "hi again", RateKey: "user-1"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeRateLimited))
	f.llm.AssertNumberOfCalls(t, "Complete", 1)
}

func TestTurn_TurnInProgress(t *testing.T) {
	f := newFixture(t, defaultChat)
	require.NoError(t, f.redis.Set("tripgen:turn:trip-1", "1"))

	_, err := f.service.Turn(context.Background(), collectingTrip(), TurnInput{Text: "hello", RateKey: "user-1"})

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeTurnInProgress))
	f.messages.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

// ==========================
// Generate
// ==========================

func readyTrip(status models.TripStatus) *models.Trip {
	return &models.Trip{
		ID:     "trip-1",
		Status: status,
		Details: models.TripDetails{
			Destinations: []string{"Lisbon"},
			StartDate:    "2026-05-01",
			DurationDays: 3,
			Travelers:    models.Travelers{Adults: 2},
		},
	}
}

func TestGenerate_Success(t *testing.T) {
	f := newFixture(t, defaultChat)
	write := toolCall("c1", tools.WriteItinerary, `{"csv":"Day,Activity\n1,Tram 28"}`)
	saved := &models.ItineraryVersion{TripID: "trip-1", Version: 1}

	f.trips.On("Get", mock.Anything, "trip-1").Return(readyTrip(models.TripStatusCollectingDetails), nil)
	f.trips.On("TransitionStatus", mock.Anything, "trip-1", models.TripStatusGeneratingItinerary).
		Return(readyTrip(models.TripStatusGeneratingItinerary), nil)
	f.sheets.On("Latest", mock.Anything, "trip-1").Return(nil, apperrors.NewSheetNotFoundError("trip-1"))
	f.searcher.On("Search", mock.Anything, "things to do in Lisbon 2026-05", researchMaxResults).
		Return(&search.Result{Answer: "Ride tram 28.", Sources: []search.Source{{Title: "Guide", Snippet: "Alfama"}}}, nil)
	f.llm.On("Complete", mock.Anything, mock.MatchedBy(func(req *llm.Request) bool {
		return len(req.Tools) == 1 && req.Tools[0].Name == tools.WriteItinerary
	})).Return(&llm.Response{ToolCalls: []llm.ToolCall{write}}, nil).Once()
	f.tools.On("Execute", mock.Anything, mock.Anything, write).
		Run(func(args mock.Arguments) {
			state := args.Get(1).(*tools.TurnState)
			state.SavedVersion = saved
			state.Trip.Status = models.TripStatusCompleted
		}).
		Return(tools.Outcome{Result: json.RawMessage(`{"status":"saved","version":1}`)})
	f.llm.On("Complete", mock.Anything, mock.Anything).Return(&llm.Response{Content: "Your itinerary is ready."}, nil).Once()
	f.trips.On("SaveProgress", mock.Anything, mock.MatchedBy(func(tr *models.Trip) bool {
		return tr.AllDetailsCollected
	})).Return(nil)
	f.trips.On("TransitionStatus", mock.Anything, "trip-1", models.TripStatusCompleted).
		Return(readyTrip(models.TripStatusCompleted), nil)
	f.messages.On("Append", mock.Anything, withRole(models.RoleAssistant)).Return(nil)

	version, err := f.service.Generate(context.Background(), "trip-1")

	require.NoError(t, err)
	assert.Equal(t, 1, version.Version)
	f.assertExpectations(t)
	f.searcher.AssertExpectations(t)
}

func TestGenerate_MissingDetailsMarksTripFailed(t *testing.T) {
	f := newFixture(t, defaultChat)
	f.trips.On("Get", mock.Anything, "trip-1").Return(&models.Trip{ID: "trip-1", Status: models.TripStatusGeneratingItinerary}, nil)
	f.trips.On("TransitionStatus", mock.Anything, "trip-1", models.TripStatusFailed).
		Return(&models.Trip{ID: "trip-1", Status: models.TripStatusFailed}, nil)

	_, err := f.service.Generate(context.Background(), "trip-1")

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeValidationFailed))
	f.trips.AssertNotCalled(t, "TransitionStatus", mock.Anything, "trip-1", models.TripStatusGeneratingItinerary)
	f.assertExpectations(t)
}

func TestGenerate_TurnInProgressMarksTripFailed(t *testing.T) {
	f := newFixture(t, defaultChat)
	require.NoError(t, f.redis.Set("tripgen:turn:trip-1", "other-turn"))

	f.trips.On("Get", mock.Anything, "trip-1").Return(readyTrip(models.TripStatusGeneratingItinerary), nil)
	f.trips.On("TransitionStatus", mock.Anything, "trip-1", models.TripStatusFailed).
		Return(readyTrip(models.TripStatusFailed), nil).Once()

	_, err := f.service.Generate(context.Background(), "trip-1")

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeTurnInProgress))
	f.llm.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
	f.assertExpectations(t)
}

func TestGenerate_LLMFailureMarksTripFailed(t *testing.T) {
	f := newFixture(t, defaultChat)

	f.trips.On("Get", mock.Anything, "trip-1").Return(readyTrip(models.TripStatusCompleted), nil)
	f.trips.On("TransitionStatus", mock.Anything, "trip-1", models.TripStatusGeneratingItinerary).
		Return(readyTrip(models.TripStatusGeneratingItinerary), nil)
	f.sheets.On("Latest", mock.Anything, "trip-1").Return(nil, apperrors.NewSheetNotFoundError("trip-1"))
	f.searcher.On("Search", mock.Anything, mock.Anything, mock.Anything).Return(nil, apperrors.NewWebSearchTimeoutError())
	f.llm.On("Complete", mock.Anything, mock.Anything).Return(nil, apperrors.NewLLMRequestFailedError(errors.New("502")))
	f.trips.On("SaveProgress", mock.Anything, mock.Anything).Return(nil)
	f.trips.On("TransitionStatus", mock.Anything, "trip-1", models.TripStatusFailed).
		Return(readyTrip(models.TripStatusFailed), nil)

	_, err := f.service.Generate(context.Background(), "trip-1")

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeLLMRequestFailed))
	f.assertExpectations(t)
}

func TestGenerate_NoItineraryAfterRetries(t *testing.T) {
	f := newFixture(t, defaultChat)

	f.trips.On("Get", mock.Anything, "trip-1").Return(readyTrip(models.TripStatusCollectingDetails), nil)
	f.trips.On("TransitionStatus", mock.Anything, "trip-1", models.TripStatusGeneratingItinerary).
		Return(readyTrip(models.TripStatusGeneratingItinerary), nil)
	f.sheets.On("Latest", mock.Anything, "trip-1").Return(nil, apperrors.NewSheetNotFoundError("trip-1"))
	f.searcher.On("Search", mock.Anything, mock.Anything, mock.Anything).Return(&search.Result{}, nil)
	f.llm.On("Complete", mock.Anything, mock.Anything).Return(&llm.Response{Content: "Here is a plan in prose."}, nil)
	f.trips.On("SaveProgress", mock.Anything, mock.Anything).Return(nil)
	f.messages.On("Append", mock.Anything, withRole(models.RoleAssistant)).Return(nil)
	f.trips.On("TransitionStatus", mock.Anything, "trip-1", models.TripStatusFailed).
		Return(readyTrip(models.TripStatusFailed), nil)

	_, err := f.service.Generate(context.Background(), "trip-1")

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeLLMRequestFailed))
	f.llm.AssertNumberOfCalls(t, "Complete", generateAttempts)
}
