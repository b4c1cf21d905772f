package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "tripgen/internal/common/errors"
	"tripgen/internal/common/logger"
	"tripgen/internal/models"

	"github.com/google/uuid"
)

// ErrPhraseTaken is returned when a freshly generated share phrase collides.
var ErrPhraseTaken = errors.New("SHARE_PHRASE_TAKEN")

type TripRepository struct {
	db     *sql.DB
	logger logger.Logger
}

const tripColumns = `id, owner_id, title, prompt, status, details, all_details_collected,
	is_shared, COALESCE(share_phrase, ''), created_at, updated_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTrip(s scanner) (*models.Trip, error) {
	var (
		t       models.Trip
		status  string
		details []byte
	)
	if err := s.Scan(&t.ID, &t.OwnerID, &t.Title, &t.Prompt, &status, &details,
		&t.AllDetailsCollected, &t.IsShared, &t.SharePhrase, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if parsed, ok := models.ParseTripStatus(status); ok {
		t.Status = parsed
	} else {
		t.Status = models.TripStatus(status)
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &t.Details); err != nil {
			return nil, fmt.Errorf("decode trip details: %w", err)
		}
	}
	return &t, nil
}

func (r *TripRepository) Create(ctx context.Context, trip *models.Trip) error {
	if trip.ID == "" {
		trip.ID = uuid.New().String()
	}
	if trip.Status == "" {
		trip.Status = models.TripStatusCreated
	}
	now := time.Now().UTC()
	trip.CreatedAt, trip.UpdatedAt = now, now

	details, err := json.Marshal(trip.Details)
	if err != nil {
		return apperrors.NewDatabaseInsertFailedError(err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO trips (id, owner_id, title, prompt, status, details, all_details_collected, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		trip.ID, trip.OwnerID, trip.Title, trip.Prompt, string(trip.Status), details,
		trip.AllDetailsCollected, now,
	)
	if err != nil {
		return apperrors.NewDatabaseInsertFailedError(err)
	}

	r.logger.Info("trip created", map[string]interface{}{"tripId": trip.ID, "ownerId": trip.OwnerID})
	return nil
}

func (r *TripRepository) Get(ctx context.Context, id string) (*models.Trip, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+tripColumns+` FROM trips WHERE id = $1`, id)
	t, err := scanTrip(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewTripNotFoundError(id)
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("trip_get", err)
	}
	return t, nil
}

// GetOwned returns the trip only when ownerID owns it. Other owners get
// TRIP_NOT_FOUND, so a foreign trip id looks like a missing one.
func (r *TripRepository) GetOwned(ctx context.Context, id, ownerID string) (*models.Trip, error) {
	t, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.OwnerID != ownerID {
		return nil, apperrors.NewTripNotFoundError(id)
	}
	return t, nil
}

func (r *TripRepository) GetBySharePhrase(ctx context.Context, phrase string) (*models.Trip, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+tripColumns+` FROM trips WHERE share_phrase = $1 AND is_shared = TRUE`, phrase)
	t, err := scanTrip(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewShareNotFoundError()
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("trip_by_share_phrase", err)
	}
	return t, nil
}

// ListByOwner returns the owner's trips, newest first.
func (r *TripRepository) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*models.Trip, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.queryTrips(ctx, "trip_list", `
		SELECT `+tripColumns+` FROM trips
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, ownerID, limit, offset)
}

// ListAll pages through every trip in creation order. Used for reindexing.
func (r *TripRepository) ListAll(ctx context.Context, limit, offset int) ([]*models.Trip, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.queryTrips(ctx, "trip_list_all", `
		SELECT `+tripColumns+` FROM trips
		ORDER BY created_at ASC, id ASC
		LIMIT $1 OFFSET $2`, limit, offset)
}

func (r *TripRepository) queryTrips(ctx context.Context, op, query string, args ...interface{}) ([]*models.Trip, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError(op, err)
	}
	defer rows.Close()

	trips := make([]*models.Trip, 0)
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, apperrors.NewQueryExecutionFailedError(op, err)
		}
		trips = append(trips, t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError(op, err)
	}
	return trips, nil
}

// GetMany loads trips by id, keeping the order of ids and skipping ids
// that no longer exist or belong to someone else.
func (r *TripRepository) GetMany(ctx context.Context, ownerID string, ids []string) ([]*models.Trip, error) {
	trips := make([]*models.Trip, 0, len(ids))
	for _, id := range ids {
		t, err := r.GetOwned(ctx, id, ownerID)
		if apperrors.Is(err, apperrors.ErrCodeTripNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		trips = append(trips, t)
	}
	return trips, nil
}

// Update writes the owner-editable fields: title and details. Status and
// all_details_collected are left to the chat and generation paths.
func (r *TripRepository) Update(ctx context.Context, trip *models.Trip) error {
	details, err := json.Marshal(trip.Details)
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("trip_update", err)
	}
	trip.UpdatedAt = time.Now().UTC()

	res, err := r.db.ExecContext(ctx, `
		UPDATE trips
		SET title = $2, details = $3, updated_at = $4
		WHERE id = $1`,
		trip.ID, trip.Title, details, trip.UpdatedAt,
	)
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("trip_update", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewTripNotFoundError(trip.ID)
	}
	return nil
}

// Rename changes only the title.
func (r *TripRepository) Rename(ctx context.Context, id, title string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE trips SET title = $2, updated_at = $3 WHERE id = $1`,
		id, title, time.Now().UTC(),
	)
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("trip_rename", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewTripNotFoundError(id)
	}
	return nil
}

// SaveProgress writes what the assistant collected during a turn: details
// and all_details_collected. The title is never touched here.
func (r *TripRepository) SaveProgress(ctx context.Context, trip *models.Trip) error {
	details, err := json.Marshal(trip.Details)
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("trip_progress", err)
	}
	trip.UpdatedAt = time.Now().UTC()

	res, err := r.db.ExecContext(ctx, `
		UPDATE trips
		SET details = $2, all_details_collected = $3, updated_at = $4
		WHERE id = $1`,
		trip.ID, details, trip.AllDetailsCollected, trip.UpdatedAt,
	)
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("trip_progress", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewTripNotFoundError(trip.ID)
	}
	return nil
}

// TransitionStatus moves the trip to next if the lifecycle allows it.
func (r *TripRepository) TransitionStatus(ctx context.Context, id string, next models.TripStatus) (*models.Trip, error) {
	var trip *models.Trip
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+tripColumns+` FROM trips WHERE id = $1 FOR UPDATE`, id)
		t, err := scanTrip(row)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NewTripNotFoundError(id)
		}
		if err != nil {
			return apperrors.NewQueryExecutionFailedError("trip_transition", err)
		}
		if !t.Status.CanTransition(next) {
			return apperrors.NewInvalidStatusTransitionError(string(t.Status), string(next))
		}
		if t.Status == next {
			trip = t
			return nil
		}
		t.Status = next
		t.UpdatedAt = time.Now().UTC()
		if _, err := tx.ExecContext(ctx,
			`UPDATE trips SET status = $2, updated_at = $3 WHERE id = $1`,
			id, string(next), t.UpdatedAt); err != nil {
			return apperrors.NewQueryExecutionFailedError("trip_transition", err)
		}
		trip = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("trip status changed", map[string]interface{}{"tripId": id, "status": string(trip.Status)})
	return trip, nil
}

// SetShare enables sharing under phrase, or disables it when phrase is empty.
func (r *TripRepository) SetShare(ctx context.Context, id, phrase string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE trips SET is_shared = $2, share_phrase = $3, updated_at = $4
		WHERE id = $1`,
		id, phrase != "", nullString(phrase), time.Now().UTC(),
	)
	if isUniqueViolation(err) {
		return ErrPhraseTaken
	}
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("trip_share", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewTripNotFoundError(id)
	}
	return nil
}

// Delete removes the trip with its messages and versions.
func (r *TripRepository) Delete(ctx context.Context, id, ownerID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM trips WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("trip_delete", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewTripNotFoundError(id)
	}
	r.logger.Info("trip deleted", map[string]interface{}{"tripId": id})
	return nil
}
