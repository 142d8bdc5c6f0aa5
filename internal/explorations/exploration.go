// Package explorations provides read access to exploration content: state names,
// interaction types, and answer groups with their classifier training data.
// Content editing lives elsewhere; this package only loads and looks up definitions.
package explorations

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/JaimeStill/tally/pkg/classifier"
)

// ReservedStateChars may not appear in state names.
const ReservedStateChars = "#"

// Exploration is one versioned snapshot of an interactive lesson.
type Exploration struct {
	ID            string           `yaml:"id" json:"id"`
	Title         string           `yaml:"title" json:"title"`
	Version       int              `yaml:"version" json:"version"`
	InitStateName string           `yaml:"init_state_name" json:"init_state_name"`
	States        map[string]State `yaml:"states" json:"states"`
}

// State is one step of an exploration.
type State struct {
	Interaction Interaction `yaml:"interaction" json:"interaction"`
}

// Interaction describes how a state accepts answers.
// An empty ID means the state accepts no answers.
type Interaction struct {
	ID             string        `yaml:"id" json:"id"`
	AnswerGroups   []AnswerGroup `yaml:"answer_groups" json:"answer_groups"`
	DefaultOutcome *Outcome      `yaml:"default_outcome" json:"default_outcome,omitempty"`
}

// AnswerGroup routes matching answers to an outcome.
type AnswerGroup struct {
	Outcome   Outcome    `yaml:"outcome" json:"outcome"`
	RuleSpecs []RuleSpec `yaml:"rule_specs" json:"rule_specs"`
}

// Outcome is the destination and feedback of an answer group.
type Outcome struct {
	Dest     string   `yaml:"dest" json:"dest"`
	Feedback []string `yaml:"feedback" json:"feedback"`
}

// RuleSpec is one rule of an answer group. Classifier rules carry
// their documents under Inputs["training_data"].
type RuleSpec struct {
	RuleType string         `yaml:"rule_type" json:"rule_type"`
	Inputs   map[string]any `yaml:"inputs" json:"inputs"`
}

// Validate checks structural consistency of the exploration.
func (e *Exploration) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("id required")
	}
	if e.Version < 1 {
		return fmt.Errorf("exploration %s: version must be positive, got %d", e.ID, e.Version)
	}
	if len(e.States) == 0 {
		return fmt.Errorf("exploration %s: at least one state required", e.ID)
	}
	if _, ok := e.States[e.InitStateName]; !ok {
		return fmt.Errorf("exploration %s: init state %q not found", e.ID, e.InitStateName)
	}
	for name := range e.States {
		if name == "" {
			return fmt.Errorf("exploration %s: empty state name", e.ID)
		}
		if strings.ContainsAny(name, ReservedStateChars) {
			return fmt.Errorf("exploration %s: state name %q contains reserved characters", e.ID, name)
		}
	}
	return nil
}

// StateNames returns the init state first, then the remaining states in name order.
// Every traversal over an exploration's states uses this order.
func (e *Exploration) StateNames() []string {
	names := make([]string, 0, len(e.States))
	for name := range e.States {
		if name != e.InitStateName {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	if _, ok := e.States[e.InitStateName]; ok {
		names = append([]string{e.InitStateName}, names...)
	}
	return names
}

// InteractionID returns the interaction type of the named state.
func (e *Exploration) InteractionID(stateName string) (string, error) {
	s, ok := e.States[stateName]
	if !ok {
		return "", fmt.Errorf("%w: %s in %s", ErrStateNotFound, stateName, e.ID)
	}
	return s.Interaction.ID, nil
}

// GroupLabel is the classifier label for the answer group at index.
func GroupLabel(index int) string {
	return strconv.Itoa(index)
}

// GroupIndex parses a classifier label back into an answer group index.
func GroupIndex(label string) (int, bool) {
	i, err := strconv.Atoi(label)
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

// TrainingExamples collects the classifier training data of a state.
// Each document is labeled with the answer groups that list it; a document listed
// by several groups appears once, in first-seen order, with every group's label.
func (s *State) TrainingExamples() []classifier.Example {
	var examples []classifier.Example
	positions := make(map[string]int)

	for g, group := range s.Interaction.AnswerGroups {
		label := GroupLabel(g)
		for _, rule := range group.RuleSpecs {
			for _, doc := range trainingData(rule) {
				i, ok := positions[doc]
				if !ok {
					positions[doc] = len(examples)
					examples = append(examples, classifier.Example{Doc: doc})
					i = len(examples) - 1
				}
				if !slices.Contains(examples[i].Labels, label) {
					examples[i].Labels = append(examples[i].Labels, label)
				}
			}
		}
	}

	return examples
}

// HasTrainingData reports whether any rule of the state carries training documents.
func (s *State) HasTrainingData() bool {
	for _, group := range s.Interaction.AnswerGroups {
		for _, rule := range group.RuleSpecs {
			if len(trainingData(rule)) > 0 {
				return true
			}
		}
	}
	return false
}

func trainingData(rule RuleSpec) []string {
	raw, ok := rule.Inputs["training_data"].([]any)
	if !ok {
		return nil
	}

	docs := make([]string, 0, len(raw))
	for _, item := range raw {
		if doc, ok := item.(string); ok {
			docs = append(docs, doc)
		}
	}
	return docs
}
