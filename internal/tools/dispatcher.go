package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "tripgen/internal/common/errors"
	"tripgen/internal/common/logger"
	"tripgen/internal/common/metrics"
	"tripgen/internal/common/validation"
	"tripgen/internal/llm"
	"tripgen/internal/models"
	"tripgen/internal/search"
	"tripgen/internal/sheet"
	"tripgen/internal/store"
)

type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) (*search.Result, error)
}

type VersionSaver interface {
	Save(ctx context.Context, tripID string, baseVersion int, csv, createdBy string) (*models.ItineraryVersion, error)
}

type Question struct {
	Text    string   `json:"question"`
	Options []string `json:"options,omitempty"`
}

// TurnState is the trip state tools read and change during one chat turn.
type TurnState struct {
	Trip        *models.Trip
	LatestSheet *models.ItineraryVersion

	// Set by tools.
	Question     *Question
	SavedVersion *models.ItineraryVersion
	TripChanged  bool
	EndTurn      bool
}

// Outcome is what a tool call produced. Result is sent back to the model.
// Err is set only for failures the turn cannot recover from.
type Outcome struct {
	Result  json.RawMessage
	IsError bool
	Err     error
}

type Dispatcher struct {
	searcher Searcher
	versions VersionSaver
	logger   logger.Logger
}

func NewDispatcher(searcher Searcher, versions VersionSaver, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		searcher: searcher,
		versions: versions,
		logger:   log.With(map[string]interface{}{"component": "tools"}),
	}
}

// Execute validates call against its schema and runs it.
func (d *Dispatcher) Execute(ctx context.Context, state *TurnState, call llm.ToolCall) Outcome {
	start := time.Now()
	out := d.execute(ctx, state, call)

	outcome := "ok"
	switch {
	case out.Err != nil:
		outcome = "failed"
	case out.IsError:
		outcome = "rejected"
	}
	metrics.ToolCalls.WithLabelValues(call.Name, outcome).Inc()
	d.logger.Info("tool executed", map[string]interface{}{
		"tool":     call.Name,
		"tripId":   state.Trip.ID,
		"outcome":  outcome,
		"duration": time.Since(start).Milliseconds(),
	})
	return out
}

func (d *Dispatcher) execute(ctx context.Context, state *TurnState, call llm.ToolCall) Outcome {
	def, ok := Lookup(call.Name)
	if !ok {
		return errorResult(fmt.Sprintf("unknown tool %q", call.Name))
	}
	phase := state.Trip.Phase()
	if !AllowedIn(phase, call.Name) {
		return errorResult(fmt.Sprintf("tool %q is not available while %s", call.Name, phase))
	}

	vr, err := validation.ValidateJSON(call.Arguments, def.Schema)
	if err != nil {
		return errorResult("arguments are not valid JSON: " + err.Error())
	}
	if !vr.Valid {
		return errorResult("invalid arguments: " + strings.Join(vr.GetErrorMessages(), "; "))
	}

	switch call.Name {
	case AskQuestion:
		return d.askQuestion(state, call.Arguments)
	case UpdateTripDetails:
		return d.updateTripDetails(state, call.Arguments)
	case MarkDetailsCollected:
		return d.markDetailsCollected(state)
	case SearchWeb:
		return d.searchWeb(ctx, call.Arguments)
	case WriteItinerary:
		return d.writeItinerary(ctx, state, call.Arguments)
	}
	return errorResult(fmt.Sprintf("unknown tool %q", call.Name))
}

func (d *Dispatcher) askQuestion(state *TurnState, raw json.RawMessage) Outcome {
	var q Question
	if err := json.Unmarshal(raw, &q); err != nil {
		return errorResult(err.Error())
	}
	q.Text = strings.TrimSpace(q.Text)
	state.Question = &q
	state.EndTurn = true
	return okResult(map[string]interface{}{"status": "asked"})
}

func (d *Dispatcher) updateTripDetails(state *TurnState, raw json.RawMessage) Outcome {
	var update models.TripDetails
	if err := json.Unmarshal(raw, &update); err != nil {
		return errorResult(err.Error())
	}
	merged := state.Trip.Details.Merge(update)
	if merged.StartDate != "" && merged.EndDate != "" {
		start, errStart := time.Parse("2006-01-02", merged.StartDate)
		end, errEnd := time.Parse("2006-01-02", merged.EndDate)
		if errStart != nil || errEnd != nil {
			return errorResult("dates must be valid calendar dates in YYYY-MM-DD")
		}
		if end.Before(start) {
			return errorResult("end_date is before start_date")
		}
		if update.DurationDays == 0 {
			merged.DurationDays = int(end.Sub(start).Hours()/24) + 1
		}
	}

	state.Trip.Details = merged
	state.TripChanged = true
	return okResult(map[string]interface{}{
		"status":  "updated",
		"details": merged,
		"missing": merged.Missing(),
	})
}

func (d *Dispatcher) markDetailsCollected(state *TurnState) Outcome {
	if missing := state.Trip.Details.Missing(); len(missing) > 0 {
		return Outcome{
			Result:  mustJSON(map[string]interface{}{"error": "details incomplete", "missing": missing}),
			IsError: true,
		}
	}
	state.Trip.AllDetailsCollected = true
	state.TripChanged = true
	return okResult(map[string]interface{}{"status": "details_collected"})
}

func (d *Dispatcher) searchWeb(ctx context.Context, raw json.RawMessage) Outcome {
	var args struct {
		Query      string `json:"query"`
		MaxResults int    `json:"max_results"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorResult(err.Error())
	}
	if d.searcher == nil {
		return errorResult("web search is not available")
	}

	result, err := d.searcher.Search(ctx, args.Query, args.MaxResults)
	if err != nil {
		d.logger.Warn("web search failed", map[string]interface{}{"error": err.Error()})
		return errorResult("web search failed, continue without it")
	}
	return okResult(result)
}

func (d *Dispatcher) writeItinerary(ctx context.Context, state *TurnState, raw json.RawMessage) Outcome {
	var args struct {
		CSV     string `json:"csv"`
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorResult(err.Error())
	}

	parsed, err := sheet.Parse(args.CSV)
	if err != nil {
		stdErr := apperrors.Normalize(err)
		return errorResult("itinerary CSV rejected: " + stdErr.Details)
	}
	normalized := parsed.String()

	var diff sheet.Diff
	if state.LatestSheet != nil {
		diff = sheet.DiffCSV(state.LatestSheet.CSV, normalized)
		if diff.Empty() {
			return okResult(map[string]interface{}{
				"status":  "unchanged",
				"version": state.LatestSheet.Version,
			})
		}
	} else {
		diff = sheet.Compare(nil, parsed)
	}

	saved, err := d.versions.Save(ctx, state.Trip.ID, store.AnyBase, normalized, models.CreatedByAssistant)
	if err != nil {
		return Outcome{Result: mustJSON(map[string]string{"error": "could not save itinerary"}), IsError: true, Err: err}
	}
	metrics.SheetVersionsSaved.WithLabelValues(models.CreatedByAssistant).Inc()

	state.LatestSheet = saved
	state.SavedVersion = saved
	state.Trip.Status = models.TripStatusCompleted
	state.TripChanged = true

	return okResult(map[string]interface{}{
		"status":  "saved",
		"version": saved.Version,
		"rows":    len(parsed.Rows),
		"changes": diff.String(),
	})
}

func okResult(v interface{}) Outcome {
	return Outcome{Result: mustJSON(v)}
}

func errorResult(msg string) Outcome {
	return Outcome{Result: mustJSON(map[string]string{"error": msg}), IsError: true}
}

func mustJSON(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{"error":"unencodable result"}`)
	}
	return b
}
