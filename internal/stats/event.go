package stats

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// EventType names a learner visit event.
type EventType string

const (
	EventStart    EventType = "start"
	EventStateHit EventType = "state_hit"
	// EventNoAnswer marks a learner leaving a state without submitting an answer.
	EventNoAnswer EventType = "no_answer"
	EventComplete EventType = "complete"
)

// Event is one learner visit event. IDs increase in recording order and
// serve as the aggregation checkpoint.
type Event struct {
	ID         int64     `json:"id"`
	Type       EventType `json:"type" validate:"required,oneof=start state_hit no_answer complete"`
	ExpID      string    `json:"exp_id" validate:"required"`
	ExpVersion int       `json:"exp_version" validate:"gte=1"`
	StateName  string    `json:"state_name"`
	SessionID  string    `json:"session_id" validate:"required"`
	// FirstVisit is set by the player on the session's first entry to the state.
	FirstVisit bool      `json:"first_visit"`
	CreatedAt  time.Time `json:"created_at"`
}

// Validate checks the event's fields.
func (e *Event) Validate() error {
	if err := validate.Struct(e); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if (e.Type == EventStateHit || e.Type == EventNoAnswer) && e.StateName == "" {
		return fmt.Errorf("%w: %s event requires state_name", ErrInvalidEvent, e.Type)
	}
	return nil
}

// StateHitCounts are the visit counters of one state.
type StateHitCounts struct {
	FirstEntryCount int `json:"first_entry_count"`
	TotalEntryCount int `json:"total_entry_count"`
	NoAnswerCount   int `json:"no_answer_count"`
}

// ExplorationStats accumulates visit counts for one exploration version.
// Checkpoint is the ID of the last event folded into the counts.
type ExplorationStats struct {
	ExpID          string                    `json:"exp_id"`
	ExpVersion     int                       `json:"exp_version"`
	StartCount     int                       `json:"start_exploration_count"`
	CompleteCount  int                       `json:"complete_exploration_count"`
	StateHitCounts map[string]StateHitCounts `json:"state_hit_counts"`
	Checkpoint     int64                     `json:"checkpoint"`
	LastUpdated    time.Time                 `json:"last_updated"`
}

func newExplorationStats(expID string, version int) *ExplorationStats {
	return &ExplorationStats{
		ExpID:          expID,
		ExpVersion:     version,
		StateHitCounts: make(map[string]StateHitCounts),
	}
}

// apply folds one event into the counts and advances the checkpoint.
func (s *ExplorationStats) apply(e Event) {
	switch e.Type {
	case EventStart:
		s.StartCount++
	case EventComplete:
		s.CompleteCount++
	case EventStateHit:
		h := s.StateHitCounts[e.StateName]
		h.TotalEntryCount++
		if e.FirstVisit {
			h.FirstEntryCount++
		}
		s.StateHitCounts[e.StateName] = h
	case EventNoAnswer:
		h := s.StateHitCounts[e.StateName]
		h.NoAnswerCount++
		s.StateHitCounts[e.StateName] = h
	}
	s.Checkpoint = max(s.Checkpoint, e.ID)
}
