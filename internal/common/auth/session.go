// internal/common/auth/session.go
package auth

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"tripgen/internal/common/errors"
	"tripgen/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const revokedKeyPrefix = "tripgen:session:revoked:"

// Claims is the session token payload.
type Claims struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) UserID() string { return c.Subject }

// Sessions signs HS256 session tokens and tracks revoked ones in Redis.
type Sessions struct {
	secret []byte
	issuer string
	ttl    time.Duration
	redis  *redis.Client
	now    func() time.Time
}

func NewSessions(secret, issuer string, ttl time.Duration, client *redis.Client) *Sessions {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Sessions{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		redis:  client,
		now:    time.Now,
	}
}

// Issue returns a signed token for user and its expiry.
func (s *Sessions) Issue(user *models.User) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(s.ttl)
	claims := &Claims{
		Name:  user.Name,
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   user.ID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, errors.NewInternalError(err)
	}
	return signed, expires, nil
}

// Parse verifies token and rejects revoked sessions.
func (s *Sessions) Parse(ctx context.Context, token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.NewUnauthenticatedError("session expired")
		}
		return nil, errors.NewUnauthenticatedError("invalid session token")
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, errors.NewUnauthenticatedError("invalid session token")
	}

	n, err := s.redis.Exists(ctx, revokedKeyPrefix+claims.ID).Result()
	if err != nil {
		return nil, errors.NewExternalServiceError("redis", err)
	}
	if n > 0 {
		return nil, errors.NewUnauthenticatedError("session was signed out")
	}
	return claims, nil
}

// Revoke blocks the session until its natural expiry.
func (s *Sessions) Revoke(ctx context.Context, claims *Claims) error {
	ttl := time.Minute
	if claims.ExpiresAt != nil {
		if left := claims.ExpiresAt.Time.Sub(s.now()); left > 0 {
			ttl = left
		}
	}
	if err := s.redis.Set(ctx, revokedKeyPrefix+claims.ID, claims.Subject, ttl).Err(); err != nil {
		return errors.NewExternalServiceError("redis", fmt.Errorf("revoke session: %w", err))
	}
	return nil
}
