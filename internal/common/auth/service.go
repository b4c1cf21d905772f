// internal/common/auth/service.go
package auth

import (
	"context"
	"time"

	"tripgen/internal/common/logger"
	"tripgen/internal/models"
)

type UserStore interface {
	UpsertGoogleUser(ctx context.Context, u *models.User) (*models.User, error)
}

type OAuthProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*GoogleProfile, error)
}

// Service ties Google sign-in to local users and session tokens.
type Service struct {
	google   OAuthProvider
	states   *StateStore
	sessions *Sessions
	users    UserStore
	logger   logger.Logger
}

func NewService(google OAuthProvider, states *StateStore, sessions *Sessions, users UserStore, log logger.Logger) *Service {
	return &Service{
		google:   google,
		states:   states,
		sessions: sessions,
		users:    users,
		logger:   log.With(map[string]interface{}{"component": "auth"}),
	}
}

type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// LoginURL starts a sign-in and returns the Google consent URL.
func (s *Service) LoginURL(ctx context.Context) (string, error) {
	state, err := s.states.New(ctx)
	if err != nil {
		return "", err
	}
	return s.google.AuthCodeURL(state), nil
}

// Callback finishes a sign-in: the state must be one we issued, the user
// is created on first login, and a session token is returned.
func (s *Service) Callback(ctx context.Context, code, state string) (*Session, error) {
	if err := s.states.Consume(ctx, state); err != nil {
		return nil, err
	}
	profile, err := s.google.Exchange(ctx, code)
	if err != nil {
		s.logger.Warn("google sign-in failed", map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	user, err := s.users.UpsertGoogleUser(ctx, &models.User{
		Name:      profile.Name,
		Email:     profile.Email,
		Image:     profile.Picture,
		GoogleSub: profile.Sub,
	})
	if err != nil {
		return nil, err
	}

	token, expires, err := s.sessions.Issue(user)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user signed in", map[string]interface{}{"userId": user.ID})
	return &Session{Token: token, ExpiresAt: expires, User: user}, nil
}

func (s *Service) Authenticate(ctx context.Context, token string) (*Claims, error) {
	return s.sessions.Parse(ctx, token)
}

func (s *Service) Logout(ctx context.Context, claims *Claims) error {
	if err := s.sessions.Revoke(ctx, claims); err != nil {
		return err
	}
	s.logger.Info("user signed out", map[string]interface{}{"userId": claims.Subject})
	return nil
}
