package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	apperrors "tripgen/internal/common/errors"
	"tripgen/internal/common/logger"
	"tripgen/internal/models"

	"github.com/google/uuid"
)

type UserRepository struct {
	db     *sql.DB
	logger logger.Logger
}

const userColumns = `id, name, email, image, COALESCE(google_sub, ''), created_at, updated_at`

// UpsertGoogleUser creates the user on first sign-in, otherwise refreshes
// the profile fields Google reports.
func (r *UserRepository) UpsertGoogleUser(ctx context.Context, u *models.User) (*models.User, error) {
	now := time.Now().UTC()
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO users (id, name, email, image, google_sub, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (email) DO UPDATE SET
			name = EXCLUDED.name,
			image = EXCLUDED.image,
			google_sub = EXCLUDED.google_sub,
			updated_at = EXCLUDED.updated_at
		RETURNING `+userColumns,
		uuid.New().String(),
		u.Name,
		strings.ToLower(strings.TrimSpace(u.Email)),
		u.Image,
		nullString(u.GoogleSub),
		now,
	)

	out, err := scanUser(row)
	if err != nil {
		return nil, apperrors.NewDatabaseInsertFailedError(err)
	}
	r.logger.Info("user upserted", map[string]interface{}{"userId": out.ID})
	return out, nil
}

func (r *UserRepository) Get(ctx context.Context, id string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewUserNotFoundError(id)
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("user_get", err)
	}
	return u, nil
}

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Image, &u.GoogleSub, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}
