package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"tripgen/internal/common/auth"
	apperrors "tripgen/internal/common/errors"
	"tripgen/internal/common/logger"
	"tripgen/internal/common/metrics"
	"tripgen/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-ID"

	ctxRequestID = "requestId"
	ctxClaims    = "claims"
	ctxTrip      = "trip"
)

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.New().String()
		}
		c.Set(ctxRequestID, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// requestLogger attaches a request scoped logger to the request context and
// logs one line per request.
func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqLog := log.With(map[string]interface{}{"requestId": c.GetString(ctxRequestID)})
		c.Request = c.Request.WithContext(logger.IntoContext(c.Request.Context(), reqLog))

		c.Next()

		fields := map[string]interface{}{
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"status":    c.Writer.Status(),
			"latencyMs": time.Since(start).Milliseconds(),
			"clientIp":  c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			fields["error"] = c.Errors.Last().Error()
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			reqLog.Error("request failed", fields)
		case c.Writer.Status() >= http.StatusBadRequest:
			reqLog.Warn("request rejected", fields)
		default:
			reqLog.Info("request handled", fields)
		}
	}
}

func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

func (s *Server) requireAuth(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		respondError(c, apperrors.NewUnauthenticatedError("missing bearer token"))
		return
	}
	claims, err := s.deps.Auth.Authenticate(c.Request.Context(), strings.TrimSpace(token))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Set(ctxClaims, claims)
	c.Next()
}

func claimsFrom(c *gin.Context) *auth.Claims {
	return c.MustGet(ctxClaims).(*auth.Claims)
}

// ownedTrip loads :id for the signed-in owner.
func (s *Server) ownedTrip(c *gin.Context) {
	trip, err := s.deps.Trips.Get(c.Request.Context(), c.Param("id"), claimsFrom(c).UserID())
	if err != nil {
		respondError(c, err)
		return
	}
	c.Set(ctxTrip, trip)
	c.Next()
}

func tripFrom(c *gin.Context) *models.Trip {
	return c.MustGet(ctxTrip).(*models.Trip)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// respondError writes err as the standard error body and aborts the chain.
func respondError(c *gin.Context, err error) {
	stdErr := apperrors.Normalize(err)
	status := apperrors.HTTPStatus(stdErr.Code)

	body := errorBody{Error: string(stdErr.Code), Message: stdErr.Message, Details: stdErr.Details}
	if status >= http.StatusInternalServerError && stdErr.Code == apperrors.ErrCodeInternal {
		body.Details = ""
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, apperrors.NewValidationError("invalid request body: "+err.Error()))
		return false
	}
	return true
}

func intParam(c *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil {
		respondError(c, apperrors.NewValidationError(name+" must be a number"))
		return 0, false
	}
	return v, true
}

func intQuery(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil || v < 0 {
		return def
	}
	return v
}
