package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	apperrors "tripgen/internal/common/errors"
	"tripgen/internal/common/logger"
	"tripgen/internal/models"

	"github.com/google/uuid"
)

type MessageRepository struct {
	db     *sql.DB
	logger logger.Logger
}

const appendAttempts = 3

// Append stores msg as the next message of its trip and fills in ID, Seq
// and CreatedAt. Concurrent appends race on (trip_id, seq) and are retried.
func (r *MessageRepository) Append(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Parts == nil {
		msg.Parts = []models.MessagePart{}
	}
	if msg.Content == "" {
		msg.Content = msg.TextContent()
	}
	parts, err := json.Marshal(msg.Parts)
	if err != nil {
		return apperrors.NewDatabaseInsertFailedError(err)
	}
	msg.CreatedAt = time.Now().UTC()

	for attempt := 1; attempt <= appendAttempts; attempt++ {
		err = r.db.QueryRowContext(ctx, `
			INSERT INTO messages (id, trip_id, seq, role, content, parts, author_name, author_image, created_at)
			VALUES ($1, $2, (SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE trip_id = $2), $3, $4, $5, $6, $7, $8)
			RETURNING seq`,
			msg.ID, msg.TripID, string(msg.Role), msg.Content, parts,
			msg.Author.Name, msg.Author.Image, msg.CreatedAt,
		).Scan(&msg.Seq)
		if err == nil {
			return nil
		}
		if !isUniqueViolation(err) {
			break
		}
		r.logger.Warn("message sequence collision, retrying", map[string]interface{}{
			"tripId":  msg.TripID,
			"attempt": attempt,
		})
	}
	return apperrors.NewDatabaseInsertFailedError(err)
}

// List returns the trip's messages in order. With limit > 0 only the last
// limit messages are returned.
func (r *MessageRepository) List(ctx context.Context, tripID string, limit int) ([]*models.Message, error) {
	query := `
		SELECT id, trip_id, seq, role, content, parts, author_name, author_image, created_at
		FROM messages WHERE trip_id = $1 ORDER BY seq ASC`
	args := []interface{}{tripID}
	if limit > 0 {
		query = `
			SELECT id, trip_id, seq, role, content, parts, author_name, author_image, created_at
			FROM (
				SELECT id, trip_id, seq, role, content, parts, author_name, author_image, created_at
				FROM messages WHERE trip_id = $1 ORDER BY seq DESC LIMIT $2
			) recent ORDER BY seq ASC`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("message_list", err)
	}
	defer rows.Close()

	messages := make([]*models.Message, 0)
	for rows.Next() {
		var (
			m     models.Message
			role  string
			parts []byte
		)
		if err := rows.Scan(&m.ID, &m.TripID, &m.Seq, &role, &m.Content, &parts,
			&m.Author.Name, &m.Author.Image, &m.CreatedAt); err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("message_list", err)
		}
		m.Role = models.Role(role)
		if len(parts) > 0 {
			if err := json.Unmarshal(parts, &m.Parts); err != nil {
				return nil, apperrors.NewQueryExecutionFailedError("message_list", fmt.Errorf("decode parts: %w", err))
			}
		}
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("message_list", err)
	}
	return messages, nil
}
