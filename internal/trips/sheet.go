package trips

import (
	"context"

	apperrors "tripgen/internal/common/errors"
	"tripgen/internal/common/metrics"
	"tripgen/internal/export"
	"tripgen/internal/models"
	"tripgen/internal/sheet"
)

// VersionView is one sheet version. Only the latest version is editable.
type VersionView struct {
	*models.ItineraryVersion
	Editable bool `json:"editable"`
}

func (s *Service) LatestSheet(ctx context.Context, tripID string) (*models.ItineraryVersion, error) {
	return s.versions.Latest(ctx, tripID)
}

func (s *Service) Versions(ctx context.Context, tripID string) ([]models.VersionSummary, error) {
	return s.versions.List(ctx, tripID)
}

func (s *Service) Version(ctx context.Context, tripID string, version int) (*VersionView, error) {
	if version < 1 {
		return nil, apperrors.NewSheetVersionNotFoundError(tripID, version)
	}
	v, err := s.versions.Get(ctx, tripID, version)
	if err != nil {
		return nil, err
	}
	latest, err := s.versions.LatestNumber(ctx, tripID)
	if err != nil {
		return nil, err
	}
	return &VersionView{ItineraryVersion: v, Editable: v.Version == latest}, nil
}

// SaveSheet stores a user edit as a new version. baseVersion is the version
// the edit started from and must still be the latest.
func (s *Service) SaveSheet(ctx context.Context, trip *models.Trip, csv string, baseVersion int, createdBy string) (*models.ItineraryVersion, sheet.Diff, error) {
	if baseVersion < 0 {
		return nil, sheet.Diff{}, apperrors.NewValidationError("base_version must not be negative")
	}
	normalized, err := sheet.Normalize(csv)
	if err != nil {
		return nil, sheet.Diff{}, err
	}

	var previous string
	if baseVersion > 0 {
		if prev, err := s.versions.Get(ctx, trip.ID, baseVersion); err == nil {
			previous = prev.CSV
		}
	}

	saved, err := s.versions.Save(ctx, trip.ID, baseVersion, normalized, createdBy)
	if err != nil {
		return nil, sheet.Diff{}, err
	}

	source := "user"
	if createdBy == models.CreatedByShared {
		source = "shared"
	}
	metrics.SheetVersionsSaved.WithLabelValues(source).Inc()

	diff := sheet.DiffCSV(previous, normalized)
	s.logger.Info("sheet edited", map[string]interface{}{
		"tripId":  trip.ID,
		"version": saved.Version,
		"changes": diff.String(),
	})
	return saved, diff, nil
}

func (s *Service) RestoreVersion(ctx context.Context, trip *models.Trip, version int) (*models.ItineraryVersion, error) {
	if version < 1 {
		return nil, apperrors.NewSheetVersionNotFoundError(trip.ID, version)
	}
	return s.versions.Restore(ctx, trip.ID, version)
}

// Export copies the latest version into a new Google spreadsheet.
func (s *Service) Export(ctx context.Context, trip *models.Trip) (*export.Result, error) {
	if s.exporter == nil {
		return nil, apperrors.NewExportDisabledError()
	}
	latest, err := s.versions.Latest(ctx, trip.ID)
	if err != nil {
		return nil, err
	}
	return s.exporter.Export(ctx, trip.Title, latest.CSV)
}
