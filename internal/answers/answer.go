// Package answers is the append-only, size-sharded log of answers learners submit
// to exploration states. Answers for one (exploration, version, state) triple are
// split across numbered shards whose serialized size never exceeds a bound, and are
// read back in submission order regardless of how many shards hold them.
package answers

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Classification categories recorded with each answer.
const (
	CategoryExplicit              = "explicit"
	CategoryTrainingDataMatch     = "training_data_match"
	CategoryStatisticalClassifier = "statistical_classifier"
	CategoryDefaultOutcome        = "default_outcome"
	// CategoryPending marks an answer still to be classified.
	// Pending answers are resolved before they reach the log.
	CategoryPending = "pending"
)

// SchemaVersion is the version of the SubmittedAnswer encoding written to new shards.
const SchemaVersion = 1

// Triple identifies one answer log.
type Triple struct {
	ExpID      string `json:"exp_id"`
	ExpVersion int    `json:"exp_version"`
	StateName  string `json:"state_name"`
}

func (t Triple) String() string {
	return fmt.Sprintf("%s.%d.%s", t.ExpID, t.ExpVersion, t.StateName)
}

func (t Triple) validate() error {
	if t.ExpID == "" || t.StateName == "" || t.ExpVersion < 1 {
		return fmt.Errorf("%w: triple %s", ErrInvalidAnswer, t)
	}
	return nil
}

// SubmittedAnswer is one learner response. It is immutable once appended.
type SubmittedAnswer struct {
	Answer                       any            `json:"answer"`
	InteractionID                string         `json:"interaction_id" validate:"required"`
	AnswerGroupIndex             int            `json:"answer_group_index" validate:"gte=0"`
	RuleSpecIndex                int            `json:"rule_spec_index" validate:"gte=0"`
	ClassificationCategorization string         `json:"classification_categorization" validate:"required,oneof=explicit training_data_match statistical_classifier default_outcome pending"`
	Params                       map[string]any `json:"params,omitempty"`
	SessionID                    string         `json:"session_id" validate:"required"`
	TimeSpentInSec               float64        `json:"time_spent_in_sec" validate:"gte=0"`
	SubmittedAt                  time.Time      `json:"submitted_at"`
}

// StateAnswers is every answer of one triple in submission order.
type StateAnswers struct {
	Triple
	InteractionID string            `json:"interaction_id"`
	SchemaVersion int               `json:"schema_version"`
	Answers       []SubmittedAnswer `json:"submitted_answer_list"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the answer's fields. Pending answers pass; the log itself
// only accepts resolved categories.
func (a *SubmittedAnswer) Validate() error {
	if a.Answer == nil {
		return fmt.Errorf("%w: answer is required", ErrInvalidAnswer)
	}
	if err := validate.Struct(a); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("%w: %s failed %s", ErrInvalidAnswer, f.Field(), f.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidAnswer, err)
	}
	return nil
}

func (a *SubmittedAnswer) validateResolved() error {
	if err := a.Validate(); err != nil {
		return err
	}
	if a.ClassificationCategorization == CategoryPending {
		return fmt.Errorf("%w: answer is still pending classification", ErrInvalidAnswer)
	}
	return nil
}
