// Package tools declares the functions the assistant may call and executes them.
package tools

import (
	"sort"

	"tripgen/internal/common/validation"
	"tripgen/internal/llm"
	"tripgen/internal/models"
)

const (
	AskQuestion          = "ask_question"
	UpdateTripDetails    = "update_trip_details"
	SearchWeb            = "search_web"
	MarkDetailsCollected = "mark_details_collected"
	WriteItinerary       = "write_itinerary"
)

type Definition struct {
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Schema      validation.JSONSchema `json:"parameters"`
}

func (d Definition) LLMTool() llm.Tool {
	return llm.Tool{Name: d.Name, Description: d.Description, Parameters: d.Schema}
}

var stringList = &validation.Property{Type: "string"}

var definitions = map[string]Definition{
	AskQuestion: {
		Name: AskQuestion,
		Description: "Ask the traveller one clarifying question and wait for the answer. " +
			"Use it when a detail needed for the itinerary is missing. Ends your turn.",
		Schema: validation.JSONSchema{
			Type: "object",
			Properties: map[string]validation.Property{
				"question": {Type: "string", Description: "The question to show the traveller", MinLength: validation.Int(1), MaxLength: validation.Int(500)},
				"options":  {Type: "array", Description: "Optional suggested answers", Items: stringList},
			},
			Required: []string{"question"},
		},
	},
	UpdateTripDetails: {
		Name: UpdateTripDetails,
		Description: "Record trip details the traveller has told you. Send only the fields that changed; " +
			"omitted fields keep their current value.",
		Schema: validation.JSONSchema{
			Type: "object",
			Properties: map[string]validation.Property{
				"start_date":    {Type: "string", Description: "First day, YYYY-MM-DD", Pattern: `^\d{4}-\d{2}-\d{2}$`},
				"end_date":      {Type: "string", Description: "Last day, YYYY-MM-DD", Pattern: `^\d{4}-\d{2}-\d{2}$`},
				"duration_days": {Type: "integer", Description: "Trip length in days", Minimum: validation.Float(1), Maximum: validation.Float(90)},
				"travelers": {
					Type: "object",
					Properties: map[string]validation.Property{
						"adults":   {Type: "integer", Minimum: validation.Float(0), Maximum: validation.Float(50)},
						"children": {Type: "integer", Minimum: validation.Float(0), Maximum: validation.Float(50)},
					},
				},
				"budget": {
					Type: "object",
					Properties: map[string]validation.Property{
						"amount":   {Type: "number", Minimum: validation.Float(0)},
						"currency": {Type: "string", Description: "ISO 4217 code", Pattern: `^[A-Za-z]{3}$`},
						"level":    {Type: "string", Enum: []string{"budget", "moderate", "luxury"}},
					},
				},
				"origin":               {Type: "string", Description: "Where the traveller departs from"},
				"destinations":         {Type: "array", Description: "Cities or regions to visit, in order", Items: stringList},
				"travel_style":         {Type: "array", Description: "e.g. relaxed, adventurous, foodie", Items: stringList},
				"accommodation":        {Type: "string"},
				"activities":           {Type: "array", Items: stringList},
				"special_requirements": {Type: "string", Description: "Accessibility, diet, visas and similar"},
				"notes":                {Type: "string"},
			},
		},
	},
	SearchWeb: {
		Name:        SearchWeb,
		Description: "Search the web for current travel information such as events, opening hours, prices or weather.",
		Schema: validation.JSONSchema{
			Type: "object",
			Properties: map[string]validation.Property{
				"query":       {Type: "string", MinLength: validation.Int(2), MaxLength: validation.Int(400)},
				"max_results": {Type: "integer", Minimum: validation.Float(1), Maximum: validation.Float(10)},
			},
			Required: []string{"query"},
		},
	},
	MarkDetailsCollected: {
		Name: MarkDetailsCollected,
		Description: "Call once destinations, dates or duration, and number of travellers are known " +
			"and the traveller has confirmed them. Switches to itinerary planning.",
		Schema: validation.JSONSchema{
			Type: "object",
			Properties: map[string]validation.Property{
				"summary": {Type: "string", Description: "One paragraph recap of the trip", MinLength: validation.Int(1)},
			},
			Required: []string{"summary"},
		},
	},
	WriteItinerary: {
		Name: WriteItinerary,
		Description: "Save the complete itinerary as CSV. Always send the whole sheet, not a patch. " +
			"Use the columns Day,Date,Time,Activity,Location,Notes,Estimated Cost unless the traveller asked for others.",
		Schema: validation.JSONSchema{
			Type: "object",
			Properties: map[string]validation.Property{
				"csv":     {Type: "string", Description: "Full itinerary in CSV with a header row", MinLength: validation.Int(1)},
				"summary": {Type: "string", Description: "Short description of what changed"},
			},
			Required: []string{"csv"},
		},
	},
}

var phaseTools = map[models.Phase][]string{
	models.PhaseCollecting: {AskQuestion, UpdateTripDetails, SearchWeb, MarkDetailsCollected},
	models.PhaseItinerary:  {SearchWeb, UpdateTripDetails, WriteItinerary},
}

// ForPhase returns the tools offered to the model in phase.
func ForPhase(phase models.Phase) []llm.Tool {
	names := phaseTools[phase]
	out := make([]llm.Tool, 0, len(names))
	for _, name := range names {
		out = append(out, definitions[name].LLMTool())
	}
	return out
}

func AllowedIn(phase models.Phase, name string) bool {
	for _, n := range phaseTools[phase] {
		if n == name {
			return true
		}
	}
	return false
}

func Lookup(name string) (Definition, bool) {
	d, ok := definitions[name]
	return d, ok
}

// All returns every definition sorted by name.
func All() []Definition {
	out := make([]Definition, 0, len(definitions))
	for _, d := range definitions {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
