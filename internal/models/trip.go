package models

import (
	"strings"
	"time"
)

type TripStatus string

const (
	TripStatusCreated             TripStatus = "created"
	TripStatusCollectingDetails   TripStatus = "collecting_details"
	TripStatusGeneratingItinerary TripStatus = "generating_itinerary"
	TripStatusCompleted           TripStatus = "completed"
	TripStatusFailed              TripStatus = "failed"
)

var statusAliases = map[string]TripStatus{
	"generating_plan": TripStatusGeneratingItinerary,
	"complete":        TripStatusCompleted,
}

// ParseTripStatus accepts the canonical names and their older aliases.
func ParseTripStatus(s string) (TripStatus, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if alias, ok := statusAliases[s]; ok {
		return alias, true
	}
	switch st := TripStatus(s); st {
	case TripStatusCreated, TripStatusCollectingDetails, TripStatusGeneratingItinerary,
		TripStatusCompleted, TripStatusFailed:
		return st, true
	}
	return "", false
}

var allowedTransitions = map[TripStatus][]TripStatus{
	TripStatusCreated:             {TripStatusCollectingDetails, TripStatusGeneratingItinerary, TripStatusFailed},
	TripStatusCollectingDetails:   {TripStatusGeneratingItinerary, TripStatusCompleted, TripStatusFailed},
	TripStatusGeneratingItinerary: {TripStatusCompleted, TripStatusFailed},
	TripStatusCompleted:           {TripStatusGeneratingItinerary, TripStatusFailed},
	TripStatusFailed:              {TripStatusCollectingDetails, TripStatusGeneratingItinerary},
}

// CanTransition reports whether a trip may move from s to next.
// Staying in the same status is always allowed.
func (s TripStatus) CanTransition(next TripStatus) bool {
	if s == next {
		return true
	}
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Travelers struct {
	Adults   int `json:"adults,omitempty"`
	Children int `json:"children,omitempty"`
}

func (t Travelers) Total() int {
	return t.Adults + t.Children
}

type Budget struct {
	Amount   float64 `json:"amount,omitempty"`
	Currency string  `json:"currency,omitempty"`
	Level    string  `json:"level,omitempty"` // budget | moderate | luxury
}

// TripDetails is what the assistant has collected from the user so far.
type TripDetails struct {
	StartDate           string    `json:"start_date,omitempty"`
	EndDate             string    `json:"end_date,omitempty"`
	DurationDays        int       `json:"duration_days,omitempty"`
	Travelers           Travelers `json:"travelers,omitempty"`
	Budget              Budget    `json:"budget,omitempty"`
	Origin              string    `json:"origin,omitempty"`
	Destinations        []string  `json:"destinations,omitempty"`
	TravelStyle         []string  `json:"travel_style,omitempty"`
	Accommodation       string    `json:"accommodation,omitempty"`
	Activities          []string  `json:"activities,omitempty"`
	SpecialRequirements string    `json:"special_requirements,omitempty"`
	Notes               string    `json:"notes,omitempty"`
}

// Merge overlays every non-empty field of update onto d.
func (d TripDetails) Merge(update TripDetails) TripDetails {
	out := d
	if update.StartDate != "" {
		out.StartDate = update.StartDate
	}
	if update.EndDate != "" {
		out.EndDate = update.EndDate
	}
	if update.DurationDays > 0 {
		out.DurationDays = update.DurationDays
	}
	if update.Travelers.Adults > 0 {
		out.Travelers.Adults = update.Travelers.Adults
	}
	if update.Travelers.Children > 0 {
		out.Travelers.Children = update.Travelers.Children
	}
	if update.Budget.Amount > 0 {
		out.Budget.Amount = update.Budget.Amount
	}
	if update.Budget.Currency != "" {
		out.Budget.Currency = strings.ToUpper(update.Budget.Currency)
	}
	if update.Budget.Level != "" {
		out.Budget.Level = update.Budget.Level
	}
	if update.Origin != "" {
		out.Origin = update.Origin
	}
	if len(update.Destinations) > 0 {
		out.Destinations = update.Destinations
	}
	if len(update.TravelStyle) > 0 {
		out.TravelStyle = update.TravelStyle
	}
	if update.Accommodation != "" {
		out.Accommodation = update.Accommodation
	}
	if len(update.Activities) > 0 {
		out.Activities = update.Activities
	}
	if update.SpecialRequirements != "" {
		out.SpecialRequirements = update.SpecialRequirements
	}
	if update.Notes != "" {
		out.Notes = update.Notes
	}
	return out
}

// Missing lists what still has to be collected before an itinerary can be written.
func (d TripDetails) Missing() []string {
	var missing []string
	if len(d.Destinations) == 0 {
		missing = append(missing, "destinations")
	}
	if d.StartDate == "" && d.DurationDays == 0 {
		missing = append(missing, "dates or duration_days")
	}
	if d.Travelers.Total() == 0 {
		missing = append(missing, "travelers")
	}
	return missing
}

type Trip struct {
	ID                  string      `json:"id" db:"id"`
	OwnerID             string      `json:"owner_id" db:"owner_id"`
	Title               string      `json:"title" db:"title"`
	Prompt              string      `json:"prompt" db:"prompt"`
	Status              TripStatus  `json:"status" db:"status"`
	Details             TripDetails `json:"user_submitted_data" db:"details"`
	AllDetailsCollected bool        `json:"all_details_collected" db:"all_details_collected"`
	IsShared            bool        `json:"is_shared" db:"is_shared"`
	SharePhrase         string      `json:"share_phrase,omitempty" db:"share_phrase"`
	CreatedAt           time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at" db:"updated_at"`
}

// Phase picks the system prompt and tool set for the next chat turn.
type Phase string

const (
	PhaseCollecting Phase = "collecting"
	PhaseItinerary  Phase = "itinerary"
)

func (t *Trip) Phase() Phase {
	if t.AllDetailsCollected {
		return PhaseItinerary
	}
	return PhaseCollecting
}
