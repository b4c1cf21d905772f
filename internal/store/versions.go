package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	apperrors "tripgen/internal/common/errors"
	"tripgen/internal/common/logger"
	"tripgen/internal/models"
)

// AnyBase appends after whatever the latest version is. The assistant saves
// with it; people editing the sheet always pass the version they started from.
const AnyBase = -1

type VersionRepository struct {
	db     *sql.DB
	logger logger.Logger
}

func (r *VersionRepository) Latest(ctx context.Context, tripID string) (*models.ItineraryVersion, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT trip_id, version, csv, created_by, last_updated
		FROM itinerary_versions WHERE trip_id = $1
		ORDER BY version DESC LIMIT 1`, tripID)
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewSheetNotFoundError(tripID)
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("version_latest", err)
	}
	return v, nil
}

func (r *VersionRepository) Get(ctx context.Context, tripID string, version int) (*models.ItineraryVersion, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT trip_id, version, csv, created_by, last_updated
		FROM itinerary_versions WHERE trip_id = $1 AND version = $2`, tripID, version)
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewSheetVersionNotFoundError(tripID, version)
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("version_get", err)
	}
	return v, nil
}

// LatestNumber returns the latest version number, 0 when the trip has no sheet.
func (r *VersionRepository) LatestNumber(ctx context.Context, tripID string) (int, error) {
	var latest int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM itinerary_versions WHERE trip_id = $1`, tripID).Scan(&latest)
	if err != nil {
		return 0, apperrors.NewQueryExecutionFailedError("version_latest_number", err)
	}
	return latest, nil
}

// List returns every version of the trip in ascending order, without CSV bodies.
func (r *VersionRepository) List(ctx context.Context, tripID string) ([]models.VersionSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT version, created_by, last_updated
		FROM itinerary_versions WHERE trip_id = $1
		ORDER BY version ASC`, tripID)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("version_list", err)
	}
	defer rows.Close()

	out := make([]models.VersionSummary, 0)
	for rows.Next() {
		var s models.VersionSummary
		if err := rows.Scan(&s.Version, &s.CreatedBy, &s.LastUpdated); err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("version_list", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("version_list", err)
	}
	return out, nil
}

// Save appends csv as version latest+1. baseVersion must equal the current
// latest (0 with no sheet) unless it is AnyBase. The trip row is locked so
// concurrent saves are serialised.
func (r *VersionRepository) Save(ctx context.Context, tripID string, baseVersion int, csv, createdBy string) (*models.ItineraryVersion, error) {
	saved := &models.ItineraryVersion{TripID: tripID, CSV: csv, CreatedBy: createdBy}

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := lockTrip(ctx, tx, tripID); err != nil {
			return err
		}

		var latest int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(version), 0) FROM itinerary_versions WHERE trip_id = $1`, tripID,
		).Scan(&latest); err != nil {
			return apperrors.NewQueryExecutionFailedError("version_save", err)
		}
		if baseVersion != AnyBase && baseVersion != latest {
			return apperrors.NewSheetVersionConflictError(baseVersion, latest)
		}

		saved.Version = latest + 1
		saved.LastUpdated = time.Now().UTC()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO itinerary_versions (trip_id, version, csv, created_by, last_updated)
			VALUES ($1, $2, $3, $4, $5)`,
			tripID, saved.Version, csv, createdBy, saved.LastUpdated,
		); err != nil {
			return apperrors.NewDatabaseInsertFailedError(err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE trips SET updated_at = $2 WHERE id = $1`, tripID, saved.LastUpdated); err != nil {
			return apperrors.NewQueryExecutionFailedError("version_save", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("itinerary version saved", map[string]interface{}{
		"tripId":    tripID,
		"version":   saved.Version,
		"createdBy": createdBy,
	})
	return saved, nil
}

// Restore makes version the latest by deleting every later version.
// Restoring the current latest changes nothing.
func (r *VersionRepository) Restore(ctx context.Context, tripID string, version int) (*models.ItineraryVersion, error) {
	var restored *models.ItineraryVersion
	var removed int64

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := lockTrip(ctx, tx, tripID); err != nil {
			return err
		}

		row := tx.QueryRowContext(ctx, `
			SELECT trip_id, version, csv, created_by, last_updated
			FROM itinerary_versions WHERE trip_id = $1 AND version = $2`, tripID, version)
		v, err := scanVersion(row)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NewSheetVersionNotFoundError(tripID, version)
		}
		if err != nil {
			return apperrors.NewQueryExecutionFailedError("version_restore", err)
		}
		restored = v

		res, err := tx.ExecContext(ctx,
			`DELETE FROM itinerary_versions WHERE trip_id = $1 AND version > $2`, tripID, version)
		if err != nil {
			return apperrors.NewQueryExecutionFailedError("version_restore", err)
		}
		removed, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("itinerary version restored", map[string]interface{}{
		"tripId":          tripID,
		"version":         version,
		"removedVersions": removed,
	})
	return restored, nil
}

func lockTrip(ctx context.Context, tx *sql.Tx, tripID string) error {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM trips WHERE id = $1 FOR UPDATE`, tripID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NewTripNotFoundError(tripID)
	}
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("trip_lock", err)
	}
	return nil
}

func scanVersion(s scanner) (*models.ItineraryVersion, error) {
	var v models.ItineraryVersion
	if err := s.Scan(&v.TripID, &v.Version, &v.CSV, &v.CreatedBy, &v.LastUpdated); err != nil {
		return nil, err
	}
	return &v, nil
}
