package stats

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/JaimeStill/tally/internal/answers"
)

// Calculation identifiers.
const (
	TopAnswersByCategorization = "TopAnswersByCategorization"
	AnswerFrequencies          = "AnswerFrequencies"
	Top10AnswerFrequencies     = "Top10AnswerFrequencies"
)

// AnswerFrequency is one distinct answer and the number of times it was submitted.
// State is set only on cross-exploration results.
type AnswerFrequency struct {
	Answer    any    `json:"answer"`
	Frequency int    `json:"frequency"`
	State     string `json:"state,omitempty"`
}

// CategorizedAnswers maps a classification category to its ranked answers.
type CategorizedAnswers map[string][]AnswerFrequency

// Calculation derives one output from every answer log of a state. Logs arrive
// in ascending version order and answers within each log in submission order.
type Calculation interface {
	ID() string
	Calculate(logs []*answers.StateAnswers) (any, error)
}

// Calculations maps calculation ids to implementations.
type Calculations struct {
	mu    sync.RWMutex
	calcs map[string]Calculation
}

// NewCalculations creates a registry holding the built-in calculations.
// topLimit bounds each category of TopAnswersByCategorization; zero keeps every answer.
func NewCalculations(topLimit int) *Calculations {
	c := &Calculations{calcs: make(map[string]Calculation)}
	c.Register(topByCategory{limit: topLimit})
	c.Register(frequencies{id: AnswerFrequencies})
	c.Register(frequencies{id: Top10AnswerFrequencies, limit: 10})
	return c
}

// Register adds or replaces a calculation under its id.
func (c *Calculations) Register(calc Calculation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calcs[calc.ID()] = calc
}

// Get returns the calculation registered under id.
func (c *Calculations) Get(id string) (Calculation, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	calc, ok := c.calcs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCalculation, id)
	}
	return calc, nil
}

type topByCategory struct {
	limit int
}

func (topByCategory) ID() string { return TopAnswersByCategorization }

func (c topByCategory) Calculate(logs []*answers.StateAnswers) (any, error) {
	rankers := make(map[string]*ranker)
	for _, sa := range logs {
		for _, a := range sa.Answers {
			cat := a.ClassificationCategorization
			r, ok := rankers[cat]
			if !ok {
				r = newRanker()
				rankers[cat] = r
			}
			if err := r.add(a.Answer); err != nil {
				return nil, err
			}
		}
	}

	out := make(CategorizedAnswers, len(rankers))
	for cat, r := range rankers {
		out[cat] = r.ranked(c.limit)
	}
	return out, nil
}

type frequencies struct {
	id    string
	limit int
}

func (f frequencies) ID() string { return f.id }

func (f frequencies) Calculate(logs []*answers.StateAnswers) (any, error) {
	r := newRanker()
	for _, sa := range logs {
		for _, a := range sa.Answers {
			if err := r.add(a.Answer); err != nil {
				return nil, err
			}
		}
	}
	return r.ranked(f.limit), nil
}

// ranker counts distinct answers by their canonical JSON encoding,
// remembering the order in which each was first seen.
type ranker struct {
	index   map[string]int
	entries []AnswerFrequency
}

func newRanker() *ranker {
	return &ranker{index: make(map[string]int)}
}

func (r *ranker) add(answer any) error {
	key, err := json.Marshal(answer)
	if err != nil {
		return fmt.Errorf("encode answer: %w", err)
	}

	if i, ok := r.index[string(key)]; ok {
		r.entries[i].Frequency++
		return nil
	}
	r.index[string(key)] = len(r.entries)
	r.entries = append(r.entries, AnswerFrequency{Answer: answer, Frequency: 1})
	return nil
}

// ranked orders answers by descending frequency. Equal frequencies keep
// first-submission order.
func (r *ranker) ranked(limit int) []AnswerFrequency {
	out := slices.Clone(r.entries)
	sortByFrequency(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []AnswerFrequency{}
	}
	return out
}

func sortByFrequency(list []AnswerFrequency) {
	slices.SortStableFunc(list, func(a, b AnswerFrequency) int {
		return b.Frequency - a.Frequency
	})
}
