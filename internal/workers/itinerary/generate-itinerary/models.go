// internal/workers/itinerary/generate-itinerary/models.go
package generateitinerary

type Input struct {
	TripID string `json:"tripId"`
}

type Output struct {
	TripID  string `json:"tripId"`
	Version int    `json:"itineraryVersion"`
	Status  string `json:"tripStatus"`
}
