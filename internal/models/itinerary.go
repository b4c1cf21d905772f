package models

import "time"

const (
	CreatedByAssistant = "assistant"
	CreatedByShared    = "shared"
)

// ItineraryVersion is one saved revision of a trip's sheet.
type ItineraryVersion struct {
	TripID      string    `json:"trip_id" db:"trip_id"`
	Version     int       `json:"version" db:"version"`
	CSV         string    `json:"csv" db:"csv"`
	CreatedBy   string    `json:"created_by" db:"created_by"`
	LastUpdated time.Time `json:"last_updated" db:"last_updated"`
}

// VersionSummary is the list view of a version without its CSV body.
type VersionSummary struct {
	Version     int       `json:"version"`
	CreatedBy   string    `json:"created_by"`
	LastUpdated time.Time `json:"last_updated"`
}
