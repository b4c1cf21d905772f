package chat

import (
	"context"
	"fmt"
	"time"

	apperrors "tripgen/internal/common/errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RateLimiter allows limit requests per key in each wall-clock minute.
type RateLimiter struct {
	client *redis.Client
	scope  string
	limit  int
	now    func() time.Time
}

// NewRateLimiter limits chat turns.
func NewRateLimiter(client *redis.Client, limitPerMinute int) *RateLimiter {
	return NewScopedRateLimiter(client, "chat", limitPerMinute)
}

// NewScopedRateLimiter keeps its counters apart from other limiters under scope.
func NewScopedRateLimiter(client *redis.Client, scope string, limitPerMinute int) *RateLimiter {
	return &RateLimiter{client: client, scope: scope, limit: limitPerMinute, now: time.Now}
}

// Allow counts one request for key. A limit of 0 disables limiting.
func (r *RateLimiter) Allow(ctx context.Context, key string) error {
	if r == nil || r.limit <= 0 {
		return nil
	}
	window := r.now().UTC().Format("200601021504")
	redisKey := fmt.Sprintf("tripgen:ratelimit:%s:%s:%s", r.scope, key, window)

	count, err := r.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return apperrors.NewExternalServiceError("redis", err)
	}
	if count == 1 {
		if err := r.client.Expire(ctx, redisKey, time.Minute).Err(); err != nil {
			return apperrors.NewExternalServiceError("redis", err)
		}
	}
	if count > int64(r.limit) {
		return apperrors.NewRateLimitedError(r.limit)
	}
	return nil
}

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// TurnLock keeps two turns on the same trip from running at once.
type TurnLock struct {
	client *redis.Client
	ttl    time.Duration
}

func NewTurnLock(client *redis.Client, ttl time.Duration) *TurnLock {
	return &TurnLock{client: client, ttl: ttl}
}

// Acquire returns a release func, or TURN_IN_PROGRESS when the trip is busy.
// Releasing after the TTL lapsed leaves a lock taken by someone else alone.
func (l *TurnLock) Acquire(ctx context.Context, tripID string) (func(), error) {
	if l == nil {
		return func() {}, nil
	}
	key := "tripgen:turn:" + tripID
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, apperrors.NewExternalServiceError("redis", err)
	}
	if !ok {
		return nil, apperrors.NewTurnInProgressError(tripID)
	}
	return func() {
		releaseScript.Run(context.Background(), l.client, []string{key}, token)
	}, nil
}
