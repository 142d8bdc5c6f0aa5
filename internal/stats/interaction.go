package stats

import (
	"slices"
	"sync"
)

// Visualization describes how a reporting surface renders one calculation
// for an interaction.
type Visualization struct {
	ID            string         `json:"id"`
	CalculationID string         `json:"calculation_id"`
	Options       map[string]any `json:"options"`
}

// Interactions maps interaction ids to the visualizations shown for their answers.
type Interactions struct {
	mu   sync.RWMutex
	byID map[string][]Visualization
}

// NewInteractions creates a registry with visualizations for the built-in interactions.
// Interactions that collect no answers, such as Continue, have none.
func NewInteractions() *Interactions {
	r := &Interactions{byID: make(map[string][]Visualization)}

	frequencyTable := Visualization{
		ID:            "FrequencyTable",
		CalculationID: Top10AnswerFrequencies,
		Options: map[string]any{
			"column_headers": []string{"Answer", "Count"},
			"title":          "Top 10 answers",
		},
	}

	r.Register("TextInput", frequencyTable)
	r.Register("NumericInput", frequencyTable)
	r.Register("MultipleChoiceInput", Visualization{
		ID:            "BarChart",
		CalculationID: AnswerFrequencies,
		Options: map[string]any{
			"x_axis_label": "Answer",
			"y_axis_label": "Count",
		},
	})
	r.Register("ItemSelectionInput", Visualization{
		ID:            "FrequencyTable",
		CalculationID: AnswerFrequencies,
		Options: map[string]any{
			"column_headers": []string{"Answer", "Count"},
		},
	})

	return r
}

// Register appends visualizations for an interaction.
func (r *Interactions) Register(interactionID string, vs ...Visualization) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[interactionID] = append(r.byID[interactionID], vs...)
}

// Visualizations returns the visualizations of an interaction in registration order.
func (r *Interactions) Visualizations(interactionID string) []Visualization {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.byID[interactionID])
}

// CalculationIDs returns the distinct calculations an interaction's visualizations need, sorted.
func (r *Interactions) CalculationIDs(interactionID string) []string {
	ids := make([]string, 0)
	for _, v := range r.Visualizations(interactionID) {
		if !slices.Contains(ids, v.CalculationID) {
			ids = append(ids, v.CalculationID)
		}
	}
	slices.Sort(ids)
	return ids
}
