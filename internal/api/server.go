// Package api serves the TripGen HTTP API with gin.
package api

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"tripgen/internal/chat"
	"tripgen/internal/common/auth"
	"tripgen/internal/common/config"
	"tripgen/internal/common/logger"
	"tripgen/internal/export"
	"tripgen/internal/models"
	"tripgen/internal/share"
	"tripgen/internal/sheet"
	"tripgen/internal/trips"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type AuthService interface {
	LoginURL(ctx context.Context) (string, error)
	Callback(ctx context.Context, code, state string) (*auth.Session, error)
	Authenticate(ctx context.Context, token string) (*auth.Claims, error)
	Logout(ctx context.Context, claims *auth.Claims) error
}

type UserStore interface {
	Get(ctx context.Context, id string) (*models.User, error)
}

type TripService interface {
	Create(ctx context.Context, user *models.User, prompt string) (*models.Trip, error)
	List(ctx context.Context, ownerID string, limit, offset int) ([]*models.Trip, error)
	Search(ctx context.Context, ownerID, query string) ([]*models.Trip, error)
	Get(ctx context.Context, id, ownerID string) (*models.Trip, error)
	GetShared(ctx context.Context, phrase string) (*models.Trip, error)
	Update(ctx context.Context, trip *models.Trip, patch trips.Patch) (*models.Trip, error)
	Delete(ctx context.Context, id, ownerID string) error
	Messages(ctx context.Context, tripID string) ([]*models.Message, error)
	View(ctx context.Context, trip *models.Trip) (*trips.SharedView, error)
	StartGeneration(ctx context.Context, trip *models.Trip) (*models.Trip, error)
	LatestSheet(ctx context.Context, tripID string) (*models.ItineraryVersion, error)
	Versions(ctx context.Context, tripID string) ([]models.VersionSummary, error)
	Version(ctx context.Context, tripID string, version int) (*trips.VersionView, error)
	SaveSheet(ctx context.Context, trip *models.Trip, csv string, baseVersion int, createdBy string) (*models.ItineraryVersion, sheet.Diff, error)
	RestoreVersion(ctx context.Context, trip *models.Trip, version int) (*models.ItineraryVersion, error)
	Export(ctx context.Context, trip *models.Trip) (*export.Result, error)
}

type ChatService interface {
	Turn(ctx context.Context, trip *models.Trip, in chat.TurnInput) (*chat.TurnResult, error)
}

type ShareService interface {
	Enable(ctx context.Context, trip *models.Trip) (string, error)
	Disable(ctx context.Context, trip *models.Trip) error
	Invite(ctx context.Context, trip *models.Trip, from string, inv share.Invitation) (*share.InviteResult, error)
	URL(phrase string) string
}

// Limiter counts requests per key and fails with RATE_LIMITED past its limit.
type Limiter interface {
	Allow(ctx context.Context, key string) error
}

// Pinger is a dependency /ready checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Auth   AuthService
	Users  UserStore
	Trips  TripService
	Chat   ChatService
	Share  ShareService
	Checks map[string]Pinger

	// SharedLimiter throttles the public /shared routes per client IP.
	SharedLimiter Limiter
}

type Server struct {
	config config.ServerConfig
	deps   Deps
	logger logger.Logger
	engine *gin.Engine
	http   *http.Server
}

func NewServer(cfg config.ServerConfig, deps Deps, log logger.Logger) *Server {
	s := &Server{
		config: cfg,
		deps:   deps,
		logger: log.With(map[string]interface{}{"component": "api"}),
	}
	s.engine = s.routes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), requestLogger(s.logger), requestMetrics())
	corsCfg := cors.Config{
		AllowOrigins:     s.config.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", requestIDHeader},
		ExposeHeaders:    []string{"Content-Length", requestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(corsCfg.AllowOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", s.health)
	r.GET("/ready", s.ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.GET("/auth/google/login", s.googleLogin)
		api.GET("/auth/google/callback", s.googleCallback)

		api.GET("/shared/:phrase", s.sharedTrip, s.getShared)
		api.POST("/shared/:phrase/chat", s.sharedTrip, s.sharedChat)
		api.PUT("/shared/:phrase/sheet", s.sharedTrip, s.sharedSaveSheet)
	}

	authed := api.Group("", s.requireAuth)
	{
		authed.POST("/auth/logout", s.logout)
		authed.GET("/me", s.me)

		authed.POST("/trips", s.createTrip)
		authed.GET("/trips", s.listTrips)
		authed.GET("/trips/search", s.searchTrips)

		trip := authed.Group("/trips/:id", s.ownedTrip)
		{
			trip.GET("", s.getTrip)
			trip.PATCH("", s.updateTrip)
			trip.DELETE("", s.deleteTrip)
			trip.GET("/messages", s.listMessages)
			trip.POST("/chat", s.chat)
			trip.POST("/itinerary/generate", s.generateItinerary)

			trip.GET("/sheet", s.getSheet)
			trip.PUT("/sheet", s.saveSheet)
			trip.GET("/sheet/versions", s.listVersions)
			trip.GET("/sheet/versions/:version", s.getVersion)
			trip.POST("/sheet/versions/:version/restore", s.restoreVersion)
			trip.POST("/sheet/export", s.exportSheet)

			trip.POST("/share", s.enableShare)
			trip.DELETE("/share", s.disableShare)
			trip.POST("/share/invite", s.inviteShare)
		}
	}
	return r
}

// Run serves until ctx is cancelled, then shuts down within the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	s.http = &http.Server{
		Addr:         s.config.Address,
		Handler:      s.engine,
		ReadTimeout:  config.GetDuration(s.config.ReadTimeout),
		WriteTimeout: config.GetDuration(s.config.WriteTimeout),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", map[string]interface{}{"address": s.config.Address})
		if err := s.http.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(s.config.ShutdownTimeout))
	defer cancel()
	s.logger.Info("http server shutting down", nil)
	return s.http.Shutdown(shutdownCtx)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string, len(s.deps.Checks))
	status := http.StatusOK
	for name, p := range s.deps.Checks {
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	c.JSON(status, gin.H{"status": state, "checks": checks})
}
