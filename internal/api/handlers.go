package api

import (
	"net/http"
	"strings"

	"tripgen/internal/chat"
	apperrors "tripgen/internal/common/errors"
	"tripgen/internal/models"
	"tripgen/internal/share"
	"tripgen/internal/sheet"
	"tripgen/internal/trips"

	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
	guestName       = "Guest"
	maxNameLength   = 64
)

// ==========================
// Auth
// ==========================

func (s *Server) googleLogin(c *gin.Context) {
	url, err := s.deps.Auth.LoginURL(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (s *Server) googleCallback(c *gin.Context) {
	session, err := s.deps.Auth.Callback(c.Request.Context(), c.Query("code"), c.Query("state"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (s *Server) logout(c *gin.Context) {
	if err := s.deps.Auth.Logout(c.Request.Context(), claimsFrom(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) me(c *gin.Context) {
	user, err := s.deps.Users.Get(c.Request.Context(), claimsFrom(c).UserID())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// ==========================
// Trips
// ==========================

type createTripRequest struct {
	Prompt string `json:"prompt"`
}

func (s *Server) createTrip(c *gin.Context) {
	var req createTripRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := s.deps.Users.Get(c.Request.Context(), claimsFrom(c).UserID())
	if err != nil {
		respondError(c, err)
		return
	}
	trip, err := s.deps.Trips.Create(c.Request.Context(), user, req.Prompt)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, trip)
}

func (s *Server) listTrips(c *gin.Context) {
	limit := intQuery(c, "limit", defaultPageSize)
	if limit == 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	list, err := s.deps.Trips.List(c.Request.Context(), claimsFrom(c).UserID(), limit, intQuery(c, "offset", 0))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) searchTrips(c *gin.Context) {
	found, err := s.deps.Trips.Search(c.Request.Context(), claimsFrom(c).UserID(), c.Query("q"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, found)
}

func (s *Server) getTrip(c *gin.Context) {
	c.JSON(http.StatusOK, tripFrom(c))
}

func (s *Server) updateTrip(c *gin.Context) {
	var patch trips.Patch
	if !bindJSON(c, &patch) {
		return
	}
	trip, err := s.deps.Trips.Update(c.Request.Context(), tripFrom(c), patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, trip)
}

func (s *Server) deleteTrip(c *gin.Context) {
	trip := tripFrom(c)
	if err := s.deps.Trips.Delete(c.Request.Context(), trip.ID, trip.OwnerID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listMessages(c *gin.Context) {
	messages, err := s.deps.Trips.Messages(c.Request.Context(), tripFrom(c).ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

type chatRequest struct {
	Message string `json:"message"`
	Name    string `json:"name"`
}

func (s *Server) chat(c *gin.Context) {
	var req chatRequest
	if !bindJSON(c, &req) {
		return
	}
	claims := claimsFrom(c)
	user, err := s.deps.Users.Get(c.Request.Context(), claims.UserID())
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := s.deps.Chat.Turn(c.Request.Context(), tripFrom(c), chat.TurnInput{
		Text:    req.Message,
		Author:  user.Author(),
		RateKey: "user:" + claims.UserID(),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) generateItinerary(c *gin.Context) {
	trip, err := s.deps.Trips.StartGeneration(c.Request.Context(), tripFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, trip)
}

// ==========================
// Sheet
// ==========================

type saveSheetRequest struct {
	CSV         string `json:"csv"`
	BaseVersion int    `json:"base_version"`
}

type savedSheet struct {
	*models.ItineraryVersion
	Changes sheet.Diff `json:"changes"`
}

func (s *Server) getSheet(c *gin.Context) {
	latest, err := s.deps.Trips.LatestSheet(c.Request.Context(), tripFrom(c).ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, latest)
}

func (s *Server) saveSheet(c *gin.Context) {
	s.writeSheet(c, claimsFrom(c).UserID())
}

func (s *Server) writeSheet(c *gin.Context, createdBy string) {
	var req saveSheetRequest
	if !bindJSON(c, &req) {
		return
	}
	saved, diff, err := s.deps.Trips.SaveSheet(c.Request.Context(), tripFrom(c), req.CSV, req.BaseVersion, createdBy)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, savedSheet{ItineraryVersion: saved, Changes: diff})
}

func (s *Server) listVersions(c *gin.Context) {
	versions, err := s.deps.Trips.Versions(c.Request.Context(), tripFrom(c).ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, versions)
}

func (s *Server) getVersion(c *gin.Context) {
	version, ok := intParam(c, "version")
	if !ok {
		return
	}
	view, err := s.deps.Trips.Version(c.Request.Context(), tripFrom(c).ID, version)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) restoreVersion(c *gin.Context) {
	version, ok := intParam(c, "version")
	if !ok {
		return
	}
	restored, err := s.deps.Trips.RestoreVersion(c.Request.Context(), tripFrom(c), version)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, restored)
}

func (s *Server) exportSheet(c *gin.Context) {
	result, err := s.deps.Trips.Export(c.Request.Context(), tripFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ==========================
// Sharing
// ==========================

func (s *Server) enableShare(c *gin.Context) {
	phrase, err := s.deps.Share.Enable(c.Request.Context(), tripFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"share_phrase": phrase, "url": s.deps.Share.URL(phrase)})
}

func (s *Server) disableShare(c *gin.Context) {
	if err := s.deps.Share.Disable(c.Request.Context(), tripFrom(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) inviteShare(c *gin.Context) {
	var inv share.Invitation
	if !bindJSON(c, &inv) {
		return
	}
	claims := claimsFrom(c)
	from := claims.Name
	if from == "" {
		from = claims.Email
	}
	result, err := s.deps.Share.Invite(c.Request.Context(), tripFrom(c), from, inv)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// sharedTrip resolves :phrase. Unknown phrases and disabled shares are 404.
func (s *Server) sharedTrip(c *gin.Context) {
	if s.deps.SharedLimiter != nil {
		if err := s.deps.SharedLimiter.Allow(c.Request.Context(), "ip:"+c.ClientIP()); err != nil {
			respondError(c, err)
			return
		}
	}
	phrase := c.Param("phrase")
	if !share.ValidPhrase(phrase) {
		respondError(c, apperrors.NewShareNotFoundError())
		return
	}
	trip, err := s.deps.Trips.GetShared(c.Request.Context(), phrase)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Set(ctxTrip, trip)
	c.Next()
}

func (s *Server) getShared(c *gin.Context) {
	view, err := s.deps.Trips.View(c.Request.Context(), tripFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) sharedChat(c *gin.Context) {
	var req chatRequest
	if !bindJSON(c, &req) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = guestName
	}
	if r := []rune(name); len(r) > maxNameLength {
		name = string(r[:maxNameLength])
	}
	result, err := s.deps.Chat.Turn(c.Request.Context(), tripFrom(c), chat.TurnInput{
		Text:    req.Message,
		Author:  models.Author{Name: name},
		RateKey: "shared:" + c.Param("phrase"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) sharedSaveSheet(c *gin.Context) {
	s.writeSheet(c, models.CreatedByShared)
}
