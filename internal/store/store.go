package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tripgen/internal/common/logger"

	"github.com/lib/pq"
)

// Store bundles the repositories that share one Postgres handle.
type Store struct {
	Users    *UserRepository
	Trips    *TripRepository
	Messages *MessageRepository
	Versions *VersionRepository
}

func New(db *sql.DB, log logger.Logger) *Store {
	return &Store{
		Users:    &UserRepository{db: db, logger: log.With(map[string]interface{}{"repo": "users"})},
		Trips:    &TripRepository{db: db, logger: log.With(map[string]interface{}{"repo": "trips"})},
		Messages: &MessageRepository{db: db, logger: log.With(map[string]interface{}{"repo": "messages"})},
		Versions: &VersionRepository{db: db, logger: log.With(map[string]interface{}{"repo": "itinerary_versions"})},
	}
}

func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// isUniqueViolation reports a Postgres 23505 error.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
