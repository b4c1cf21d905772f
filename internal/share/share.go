// Package share manages a trip's share phrase and sends share invitations.
package share

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"tripgen/internal/common/aws"
	apperrors "tripgen/internal/common/errors"
	"tripgen/internal/common/logger"
	"tripgen/internal/common/validation"
	"tripgen/internal/models"
	"tripgen/internal/store"
)

const (
	phraseAttempts = 5
	maxRecipients  = 20
)

type Store interface {
	SetShare(ctx context.Context, id, phrase string) error
}

type EmailSender interface {
	Send(ctx context.Context, email aws.Email) (string, error)
}

type SMSSender interface {
	SendSMS(ctx context.Context, phone, message string) (string, error)
}

type Service struct {
	store   Store
	email   EmailSender
	sms     SMSSender
	baseURL string
	logger  logger.Logger
}

// NewService builds the share service. email and sms may be nil when the
// channel is disabled.
func NewService(s Store, email EmailSender, sms SMSSender, baseURL string, log logger.Logger) *Service {
	return &Service{
		store:   s,
		email:   email,
		sms:     sms,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  log.With(map[string]interface{}{"component": "share"}),
	}
}

// URL is the public link for a phrase.
func (s *Service) URL(phrase string) string {
	return s.baseURL + "/shared/" + phrase
}

// Enable turns sharing on with a fresh phrase. An existing phrase is replaced,
// which revokes the old link.
func (s *Service) Enable(ctx context.Context, trip *models.Trip) (string, error) {
	for attempt := 1; attempt <= phraseAttempts; attempt++ {
		phrase, err := NewPhrase()
		if err != nil {
			return "", apperrors.NewInternalError(err)
		}
		err = s.store.SetShare(ctx, trip.ID, phrase)
		if err == nil {
			trip.IsShared = true
			trip.SharePhrase = phrase
			s.logger.Info("sharing enabled", map[string]interface{}{"tripId": trip.ID})
			return phrase, nil
		}
		if !errors.Is(err, store.ErrPhraseTaken) {
			return "", err
		}
	}
	return "", apperrors.NewInternalError(fmt.Errorf("no free share phrase after %d attempts", phraseAttempts))
}

func (s *Service) Disable(ctx context.Context, trip *models.Trip) error {
	if err := s.store.SetShare(ctx, trip.ID, ""); err != nil {
		return err
	}
	trip.IsShared = false
	trip.SharePhrase = ""
	s.logger.Info("sharing disabled", map[string]interface{}{"tripId": trip.ID})
	return nil
}

type Invitation struct {
	Emails []string `json:"emails"`
	Phones []string `json:"phones"`
}

type InviteResult struct {
	Sent   []string          `json:"sent"`
	Failed map[string]string `json:"failed,omitempty"`
}

// Invite sends the share link to every recipient. Sharing must be enabled.
// Delivery failures are reported per recipient.
func (s *Service) Invite(ctx context.Context, trip *models.Trip, from string, inv Invitation) (*InviteResult, error) {
	if !trip.IsShared || trip.SharePhrase == "" {
		return nil, apperrors.NewValidationError("sharing is not enabled for this trip")
	}
	if len(inv.Emails)+len(inv.Phones) == 0 {
		return nil, apperrors.NewValidationError("at least one email or phone is required")
	}
	if len(inv.Emails)+len(inv.Phones) > maxRecipients {
		return nil, apperrors.NewValidationError(fmt.Sprintf("at most %d recipients per invitation", maxRecipients))
	}
	if len(inv.Emails) > 0 && s.email == nil {
		return nil, apperrors.NewValidationError("email invitations are not enabled")
	}
	if len(inv.Phones) > 0 && s.sms == nil {
		return nil, apperrors.NewValidationError("SMS invitations are not enabled")
	}
	for _, e := range inv.Emails {
		if !validation.ValidateEmail(e) {
			return nil, apperrors.NewValidationError("invalid email: " + e)
		}
	}
	for _, p := range inv.Phones {
		if !validation.ValidatePhone(p) {
			return nil, apperrors.NewValidationError("invalid phone number (E.164 expected): " + p)
		}
	}

	link := s.URL(trip.SharePhrase)
	result := &InviteResult{Sent: []string{}, Failed: map[string]string{}}

	if len(inv.Emails) > 0 {
		email, err := renderEmail(trip.Title, from, link)
		if err != nil {
			return nil, apperrors.NewInternalError(err)
		}
		for _, to := range inv.Emails {
			email.To = to
			if _, err := s.email.Send(ctx, email); err != nil {
				s.logFailure(trip.ID, "email", err)
				result.Failed[to] = apperrors.NewNotificationSendFailedError("email", err).Message
				continue
			}
			result.Sent = append(result.Sent, to)
		}
	}

	text := smsText(trip.Title, from, link)
	for _, phone := range inv.Phones {
		if _, err := s.sms.SendSMS(ctx, phone, text); err != nil {
			s.logFailure(trip.ID, "sms", err)
			result.Failed[phone] = apperrors.NewNotificationSendFailedError("sms", err).Message
			continue
		}
		result.Sent = append(result.Sent, phone)
	}

	if len(result.Sent) == 0 {
		return result, apperrors.NewNotificationSendFailedError("invite", errors.New("no invitation could be delivered"))
	}
	s.logger.Info("invitations sent", map[string]interface{}{
		"tripId": trip.ID,
		"sent":   len(result.Sent),
		"failed": len(result.Failed),
	})
	return result, nil
}

func (s *Service) logFailure(tripID, channel string, err error) {
	s.logger.Warn("invitation delivery failed", map[string]interface{}{
		"tripId":  tripID,
		"channel": channel,
		"error":   err.Error(),
	})
}

var emailTemplate = template.Must(template.New("invite").Parse(`<p>{{.From}} invited you to plan <strong>{{.Title}}</strong> together.</p>
<p><a href="{{.Link}}">Open the trip</a></p>
<p>Anyone with this link can view and edit the itinerary.</p>`))

func renderEmail(title, from, link string) (aws.Email, error) {
	if from == "" {
		from = "A friend"
	}
	var buf bytes.Buffer
	err := emailTemplate.Execute(&buf, map[string]string{"From": from, "Title": title, "Link": link})
	if err != nil {
		return aws.Email{}, err
	}
	return aws.Email{
		Subject: fmt.Sprintf("%s shared a trip with you: %s", from, title),
		HTML:    buf.String(),
		Text:    fmt.Sprintf("%s invited you to plan %q together: %s", from, title, link),
	}, nil
}

func smsText(title, from, link string) string {
	if from == "" {
		from = "A friend"
	}
	return fmt.Sprintf("%s shared the trip %q with you on TripGen: %s", from, title, link)
}
