package api

import (
	"context"

	"tripgen/internal/chat"
	"tripgen/internal/common/auth"
	"tripgen/internal/export"
	"tripgen/internal/models"
	"tripgen/internal/share"
	"tripgen/internal/sheet"
	"tripgen/internal/trips"

	"github.com/stretchr/testify/mock"
)

type MockAuth struct {
	mock.Mock
}

func (m *MockAuth) LoginURL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockAuth) Callback(ctx context.Context, code, state string) (*auth.Session, error) {
	args := m.Called(ctx, code, state)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Session), args.Error(1)
}

func (m *MockAuth) Authenticate(ctx context.Context, token string) (*auth.Claims, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Claims), args.Error(1)
}

func (m *MockAuth) Logout(ctx context.Context, claims *auth.Claims) error {
	return m.Called(ctx, claims).Error(0)
}

type MockUsers struct {
	mock.Mock
}

func (m *MockUsers) Get(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type MockTrips struct {
	mock.Mock
}

func (m *MockTrips) trip(args mock.Arguments) (*models.Trip, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Trip), args.Error(1)
}

func (m *MockTrips) tripList(args mock.Arguments) ([]*models.Trip, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Trip), args.Error(1)
}

func (m *MockTrips) version(args mock.Arguments) (*models.ItineraryVersion, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ItineraryVersion), args.Error(1)
}

func (m *MockTrips) Create(ctx context.Context, user *models.User, prompt string) (*models.Trip, error) {
	return m.trip(m.Called(ctx, user, prompt))
}

func (m *MockTrips) List(ctx context.Context, ownerID string, limit, offset int) ([]*models.Trip, error) {
	return m.tripList(m.Called(ctx, ownerID, limit, offset))
}

func (m *MockTrips) Search(ctx context.Context, ownerID, query string) ([]*models.Trip, error) {
	return m.tripList(m.Called(ctx, ownerID, query))
}

func (m *MockTrips) Get(ctx context.Context, id, ownerID string) (*models.Trip, error) {
	return m.trip(m.Called(ctx, id, ownerID))
}

func (m *MockTrips) GetShared(ctx context.Context, phrase string) (*models.Trip, error) {
	return m.trip(m.Called(ctx, phrase))
}

func (m *MockTrips) Update(ctx context.Context, trip *models.Trip, patch trips.Patch) (*models.Trip, error) {
	return m.trip(m.Called(ctx, trip, patch))
}

func (m *MockTrips) Delete(ctx context.Context, id, ownerID string) error {
	return m.Called(ctx, id, ownerID).Error(0)
}

func (m *MockTrips) Messages(ctx context.Context, tripID string) ([]*models.Message, error) {
	args := m.Called(ctx, tripID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Message), args.Error(1)
}

func (m *MockTrips) View(ctx context.Context, trip *models.Trip) (*trips.SharedView, error) {
	args := m.Called(ctx, trip)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*trips.SharedView), args.Error(1)
}

func (m *MockTrips) StartGeneration(ctx context.Context, trip *models.Trip) (*models.Trip, error) {
	return m.trip(m.Called(ctx, trip))
}

func (m *MockTrips) LatestSheet(ctx context.Context, tripID string) (*models.ItineraryVersion, error) {
	return m.version(m.Called(ctx, tripID))
}

func (m *MockTrips) Versions(ctx context.Context, tripID string) ([]models.VersionSummary, error) {
	args := m.Called(ctx, tripID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.VersionSummary), args.Error(1)
}

func (m *MockTrips) Version(ctx context.Context, tripID string, version int) (*trips.VersionView, error) {
	args := m.Called(ctx, tripID, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*trips.VersionView), args.Error(1)
}

func (m *MockTrips) SaveSheet(ctx context.Context, trip *models.Trip, csv string, baseVersion int, createdBy string) (*models.ItineraryVersion, sheet.Diff, error) {
	args := m.Called(ctx, trip, csv, baseVersion, createdBy)
	if args.Get(0) == nil {
		return nil, sheet.Diff{}, args.Error(2)
	}
	return args.Get(0).(*models.ItineraryVersion), args.Get(1).(sheet.Diff), args.Error(2)
}

func (m *MockTrips) RestoreVersion(ctx context.Context, trip *models.Trip, version int) (*models.ItineraryVersion, error) {
	return m.version(m.Called(ctx, trip, version))
}

func (m *MockTrips) Export(ctx context.Context, trip *models.Trip) (*export.Result, error) {
	args := m.Called(ctx, trip)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*export.Result), args.Error(1)
}

type MockChat struct {
	mock.Mock
}

func (m *MockChat) Turn(ctx context.Context, trip *models.Trip, in chat.TurnInput) (*chat.TurnResult, error) {
	args := m.Called(ctx, trip, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chat.TurnResult), args.Error(1)
}

type MockShare struct {
	mock.Mock
}

func (m *MockShare) Enable(ctx context.Context, trip *models.Trip) (string, error) {
	args := m.Called(ctx, trip)
	return args.String(0), args.Error(1)
}

func (m *MockShare) Disable(ctx context.Context, trip *models.Trip) error {
	return m.Called(ctx, trip).Error(0)
}

func (m *MockShare) Invite(ctx context.Context, trip *models.Trip, from string, inv share.Invitation) (*share.InviteResult, error) {
	args := m.Called(ctx, trip, from, inv)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*share.InviteResult), args.Error(1)
}

func (m *MockShare) URL(phrase string) string {
	return "https://tripgen.example.com/shared/" + phrase
}

type MockPinger struct {
	mock.Mock
}

func (m *MockPinger) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type MockLimiter struct {
	mock.Mock
}

func (m *MockLimiter) Allow(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}
