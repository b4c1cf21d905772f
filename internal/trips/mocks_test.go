package trips

import (
	"context"

	"tripgen/internal/export"
	"tripgen/internal/models"
	"tripgen/internal/prompts"

	"github.com/stretchr/testify/mock"
)

type MockTrips struct {
	mock.Mock
}

func (m *MockTrips) Create(ctx context.Context, trip *models.Trip) error {
	args := m.Called(ctx, trip)
	if trip.ID == "" {
		trip.ID = "trip-1"
	}
	return args.Error(0)
}

func (m *MockTrips) Get(ctx context.Context, id string) (*models.Trip, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Trip), args.Error(1)
}

func (m *MockTrips) GetOwned(ctx context.Context, id, ownerID string) (*models.Trip, error) {
	args := m.Called(ctx, id, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Trip), args.Error(1)
}

func (m *MockTrips) GetBySharePhrase(ctx context.Context, phrase string) (*models.Trip, error) {
	args := m.Called(ctx, phrase)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Trip), args.Error(1)
}

func (m *MockTrips) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*models.Trip, error) {
	args := m.Called(ctx, ownerID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Trip), args.Error(1)
}

func (m *MockTrips) GetMany(ctx context.Context, ownerID string, ids []string) ([]*models.Trip, error) {
	args := m.Called(ctx, ownerID, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Trip), args.Error(1)
}

func (m *MockTrips) Update(ctx context.Context, trip *models.Trip) error {
	return m.Called(ctx, trip).Error(0)
}

func (m *MockTrips) Rename(ctx context.Context, id, title string) error {
	return m.Called(ctx, id, title).Error(0)
}

func (m *MockTrips) TransitionStatus(ctx context.Context, id string, next models.TripStatus) (*models.Trip, error) {
	args := m.Called(ctx, id, next)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Trip), args.Error(1)
}

func (m *MockTrips) Delete(ctx context.Context, id, ownerID string) error {
	return m.Called(ctx, id, ownerID).Error(0)
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

type MockVersions struct {
	mock.Mock
}

func (m *MockVersions) Latest(ctx context.Context, tripID string) (*models.ItineraryVersion, error) {
	args := m.Called(ctx, tripID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ItineraryVersion), args.Error(1)
}

func (m *MockVersions) Get(ctx context.Context, tripID string, version int) (*models.ItineraryVersion, error) {
	args := m.Called(ctx, tripID, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ItineraryVersion), args.Error(1)
}

func (m *MockVersions) LatestNumber(ctx context.Context, tripID string) (int, error) {
	args := m.Called(ctx, tripID)
	return args.Int(0), args.Error(1)
}

func (m *MockVersions) List(ctx context.Context, tripID string) ([]models.VersionSummary, error) {
	args := m.Called(ctx, tripID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.VersionSummary), args.Error(1)
}

func (m *MockVersions) Save(ctx context.Context, tripID string, baseVersion int, csv, createdBy string) (*models.ItineraryVersion, error) {
	args := m.Called(ctx, tripID, baseVersion, csv, createdBy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ItineraryVersion), args.Error(1)
}

func (m *MockVersions) Restore(ctx context.Context, tripID string, version int) (*models.ItineraryVersion, error) {
	args := m.Called(ctx, tripID, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ItineraryVersion), args.Error(1)
}

type MockValidator struct {
	mock.Mock
}

func (m *MockValidator) Validate(ctx context.Context, prompt string) (*prompts.Verdict, error) {
	args := m.Called(ctx, prompt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*prompts.Verdict), args.Error(1)
}

type MockIndex struct {
	mock.Mock
}

func (m *MockIndex) Put(ctx context.Context, trip *models.Trip) error {
	return m.Called(ctx, trip).Error(0)
}

func (m *MockIndex) Delete(ctx context.Context, tripID string) error {
	return m.Called(ctx, tripID).Error(0)
}

func (m *MockIndex) Search(ctx context.Context, ownerID, query string, size int) ([]string, error) {
	args := m.Called(ctx, ownerID, query, size)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type MockExporter struct {
	mock.Mock
}

func (m *MockExporter) Export(ctx context.Context, title, csv string) (*export.Result, error) {
	args := m.Called(ctx, title, csv)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*export.Result), args.Error(1)
}

type MockLauncher struct {
	mock.Mock
}

func (m *MockLauncher) Launch(ctx context.Context, tripID string) error {
	return m.Called(ctx, tripID).Error(0)
}

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, tripID string) (*models.ItineraryVersion, error) {
	args := m.Called(ctx, tripID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ItineraryVersion), args.Error(1)
}

type MockStarter struct {
	mock.Mock
}

func (m *MockStarter) CreateInstance(ctx context.Context, processID string, vars map[string]interface{}) (int64, error) {
	args := m.Called(ctx, processID, vars)
	return args.Get(0).(int64), args.Error(1)
}

type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) Acquire(ctx context.Context, tripID string) (func(), error) {
	args := m.Called(ctx, tripID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(func()), args.Error(1)
}
