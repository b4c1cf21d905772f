// Package prompts builds the system prompts for each phase of a trip conversation.
package prompts

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"tripgen/internal/models"
	"tripgen/internal/sheet"
)

const dateLayout = "2006-01-02"

// System returns the system prompt for the trip's current phase.
func System(trip *models.Trip, latest *models.ItineraryVersion, now time.Time) string {
	if trip.Phase() == models.PhaseItinerary {
		return Itinerary(trip, latest, now)
	}
	return Collecting(trip, now)
}

func Collecting(trip *models.Trip, now time.Time) string {
	var parts []string

	parts = append(parts, "You are TripGen, a friendly travel planner. You are gathering the details needed to plan this trip.")
	parts = append(parts, fmt.Sprintf("Today is %s.", now.Format(dateLayout)))
	parts = append(parts, fmt.Sprintf("\nTrip title: %s", trip.Title))
	if trip.Prompt != "" {
		parts = append(parts, fmt.Sprintf("Original request: %s", trip.Prompt))
	}
	parts = append(parts, "\nDetails collected so far:")
	parts = append(parts, detailsJSON(trip.Details))

	if missing := trip.Details.Missing(); len(missing) > 0 {
		parts = append(parts, "\nStill missing: "+strings.Join(missing, ", "))
	}

	parts = append(parts, "\nInstructions:")
	parts = append(parts, "- Record every detail the traveller gives you with update_trip_details as soon as you learn it")
	parts = append(parts, "- Ask one question at a time with ask_question; offer options when the answer is a choice")
	parts = append(parts, "- Budget, travel style and interests are helpful but never block planning")
	parts = append(parts, "- Use search_web only for facts that change over time")
	parts = append(parts, "- Once destinations, dates or duration, and travellers are known, confirm them and call mark_details_collected")
	parts = append(parts, "- Keep replies short and conversational")

	return strings.Join(parts, "\n")
}

func Itinerary(trip *models.Trip, latest *models.ItineraryVersion, now time.Time) string {
	var parts []string

	parts = append(parts, "You are TripGen, a travel planner. The trip details are complete; you now write and refine the itinerary sheet.")
	parts = append(parts, fmt.Sprintf("Today is %s.", now.Format(dateLayout)))
	parts = append(parts, fmt.Sprintf("\nTrip title: %s", trip.Title))
	parts = append(parts, "\nTrip details:")
	parts = append(parts, detailsJSON(trip.Details))

	if latest != nil {
		parts = append(parts, fmt.Sprintf("\nCurrent itinerary (version %d):", latest.Version))
		parts = append(parts, latest.CSV)
	} else {
		parts = append(parts, "\nThere is no itinerary yet. Write the first one now unless the traveller asked something else.")
	}

	parts = append(parts, "\nInstructions:")
	parts = append(parts, "- Save itineraries only through write_itinerary and always send the complete sheet")
	parts = append(parts, fmt.Sprintf("- Default columns: %s", strings.Join(sheet.DefaultHeader, ",")))
	parts = append(parts, "- One row per activity, grouped by day, with realistic times and travel between places")
	parts = append(parts, "- Keep rows the traveller did not ask to change exactly as they are")
	parts = append(parts, "- Record new trip facts with update_trip_details")
	parts = append(parts, "- After saving, summarise the change in one or two sentences instead of repeating the sheet")

	return strings.Join(parts, "\n")
}

// Generation is the user message used when an itinerary is produced in the
// background without a chat turn.
func Generation(trip *models.Trip, research string) string {
	var parts []string
	parts = append(parts, "Write the complete itinerary for this trip now and save it with write_itinerary.")
	if research != "" {
		parts = append(parts, "\nUseful current information:")
		parts = append(parts, research)
	}
	return strings.Join(parts, "\n")
}

func detailsJSON(d models.TripDetails) string {
	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}
