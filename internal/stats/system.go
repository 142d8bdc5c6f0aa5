package stats

import (
	"context"
	"encoding/json"
	"time"

	"github.com/JaimeStill/tally/internal/answers"
	"github.com/JaimeStill/tally/internal/explorations"
	"github.com/JaimeStill/tally/pkg/lifecycle"
)

// Classifier predicts answer group labels for free-text answers to a state.
type Classifier interface {
	Classify(ctx context.Context, expID, stateName string, docs []string) ([]string, error)
}

// StateRef names one state of one exploration.
type StateRef struct {
	ExpID     string `json:"exp_id"`
	StateName string `json:"state_name"`
}

// StateStats are the reported counters of one state.
type StateStats struct {
	Name                   string `json:"name"`
	FirstEntryCount        int    `json:"first_entry_count"`
	TotalEntryCount        int    `json:"total_entry_count"`
	NoSubmittedAnswerCount int    `json:"no_submitted_answer_count"`
	NumDefaultAnswers      int    `json:"num_default_answers"`
}

// ExplorationReport is the statistics summary of one exploration version.
// LastUpdated is nil until a pass has counted events for the version.
type ExplorationReport struct {
	LastUpdated    *time.Time            `json:"last_updated"`
	NumCompletions int                   `json:"num_completions"`
	NumStarts      int                   `json:"num_starts"`
	StateStats     map[string]StateStats `json:"state_stats"`
}

// UnresolvedAnswers are the default-outcome answers of one exploration across
// all of its states. Frequency is the sum of the entries' frequencies.
type UnresolvedAnswers struct {
	Frequency         int               `json:"frequency"`
	UnresolvedAnswers []AnswerFrequency `json:"unresolved_answers"`
}

// VisualizationInfo is one visualization of a state together with its data.
type VisualizationInfo struct {
	ID      string          `json:"id"`
	Data    json.RawMessage `json:"data"`
	Options map[string]any  `json:"options"`
}

// System defines the public contract for answer recording and statistics.
type System interface {
	Handler() *Handler

	// Start runs the aggregation scheduler until the coordinator shuts down.
	Start(lc *lifecycle.Coordinator) error

	// RecordAnswer validates and appends one answer to the state's log.
	RecordAnswer(ctx context.Context, exp *explorations.Exploration, stateName string, answer answers.SubmittedAnswer) error
	// RecordAnswers validates answers, resolves pending classifications, and appends
	// them to the state's log as one step.
	RecordAnswers(ctx context.Context, exp *explorations.Exploration, stateName string, list []answers.SubmittedAnswer) error
	// GetStateAnswers returns nil when no answer was ever recorded for the triple.
	GetStateAnswers(ctx context.Context, expID string, version int, stateName string) (*answers.StateAnswers, error)

	GetExplorationStats(ctx context.Context, expID string, version int) (*ExplorationReport, error)
	GetVersionsForExplorationStats(ctx context.Context, expID string) ([]int, error)

	GetTopStateRuleAnswers(ctx context.Context, expID, stateName string, categories []string) ([]AnswerFrequency, error)
	// GetTopStateRuleAnswersMulti returns one list per ref, positionally aligned.
	// Refs without published output yield an empty list.
	GetTopStateRuleAnswersMulti(ctx context.Context, refs []StateRef, categories []string) ([][]AnswerFrequency, error)
	CountTopStateRuleAnswers(ctx context.Context, expID, stateName, category string) (int, error)
	// GetExpsUnresolvedAnswersForDefaultRule skips unknown exploration ids.
	GetExpsUnresolvedAnswersForDefaultRule(ctx context.Context, expIDs []string) (map[string]*UnresolvedAnswers, error)
	GetVisualizationsInfo(ctx context.Context, expID, stateName string) ([]VisualizationInfo, error)

	RecordEvent(ctx context.Context, e Event) (*Event, error)

	// Aggregate runs one pass synchronously.
	Aggregate(ctx context.Context) (*PassResult, error)
	// Trigger asks the scheduler for a pass without waiting.
	Trigger() bool
	LastPass() *PassResult
}
