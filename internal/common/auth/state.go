// internal/common/auth/state.go
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	stderrors "errors"
	"time"

	"tripgen/internal/common/errors"

	"github.com/redis/go-redis/v9"
)

const stateKeyPrefix = "tripgen:oauth:state:"

// StateStore issues single-use OAuth state nonces.
type StateStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStateStore(client *redis.Client, ttl time.Duration) *StateStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &StateStore{client: client, ttl: ttl}
}

func (s *StateStore) New(ctx context.Context) (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.NewInternalError(err)
	}
	state := base64.RawURLEncoding.EncodeToString(buf)
	if err := s.client.Set(ctx, stateKeyPrefix+state, "1", s.ttl).Err(); err != nil {
		return "", errors.NewExternalServiceError("redis", err)
	}
	return state, nil
}

// Consume checks and deletes state. Unknown, expired or reused states fail.
func (s *StateStore) Consume(ctx context.Context, state string) error {
	if state == "" {
		return errors.NewInvalidOAuthStateError()
	}
	err := s.client.GetDel(ctx, stateKeyPrefix+state).Err()
	if stderrors.Is(err, redis.Nil) {
		return errors.NewInvalidOAuthStateError()
	}
	if err != nil {
		return errors.NewExternalServiceError("redis", err)
	}
	return nil
}
