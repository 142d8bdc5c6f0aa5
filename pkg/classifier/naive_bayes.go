package classifier

import (
	"fmt"
	"math"
)

// NaiveBayesStringClassifierID is the registry id of the multinomial bag-of-words model.
const NaiveBayesStringClassifierID = "NaiveBayesStringClassifier"

const naiveBayesSchemaVersion = 1

type naiveBayesState struct {
	Smoothing       float64  `json:"smoothing"`
	Labels          []string `json:"label_list"`
	Words           []string `json:"word_list"`
	LabelExamples   []int    `json:"label_example_counts"`
	LabelWordCounts [][]int  `json:"label_word_counts"`
	LabelTokens     []int    `json:"label_token_counts"`
}

func (s *naiveBayesState) validate() error {
	k := len(s.Labels)
	if len(s.LabelExamples) != k || len(s.LabelWordCounts) != k || len(s.LabelTokens) != k {
		return fmt.Errorf("%w: label dimensions disagree", ErrInvalidModelData)
	}
	for _, row := range s.LabelWordCounts {
		if len(row) != len(s.Words) {
			return fmt.Errorf("%w: word dimensions disagree", ErrInvalidModelData)
		}
	}
	if s.Smoothing <= 0 {
		return fmt.Errorf("%w: smoothing must be positive", ErrInvalidModelData)
	}
	return nil
}

// NaiveBayes is a multinomial naive Bayes classifier over document tokens.
// A document with several labels counts once toward each. Scores tie-break the
// same way as LDA; a document with no known words matches no label.
type NaiveBayes struct {
	id    uint64
	state naiveBayesState
	vocab *index
	ready bool
}

// NewNaiveBayes creates an untrained model with add-one smoothing.
func NewNaiveBayes() *NaiveBayes {
	return &NaiveBayes{
		id:    nextInstance(),
		state: naiveBayesState{Smoothing: 1},
	}
}

func (m *NaiveBayes) AlgorithmID() string { return NaiveBayesStringClassifierID }

func (m *NaiveBayes) SchemaVersion() int { return naiveBayesSchemaVersion }

func (m *NaiveBayes) Train(examples []Example) error {
	labels := newIndex()
	vocab := newIndex()

	var (
		labelExamples []int
		labelTokens   []int
		counts        [][]int
	)

	for _, ex := range examples {
		tokens := make([]int, 0)
		for _, w := range Tokenize(ex.Doc) {
			tokens = append(tokens, vocab.add(w))
		}

		seen := make(map[int]bool, len(ex.Labels))
		for _, l := range ex.Labels {
			if l == "" || l == DefaultLabel {
				continue
			}
			id := labels.add(l)
			if id == len(labelExamples) {
				labelExamples = append(labelExamples, 0)
				labelTokens = append(labelTokens, 0)
				counts = append(counts, nil)
			}
			if seen[id] {
				continue
			}
			seen[id] = true

			labelExamples[id]++
			labelTokens[id] += len(tokens)
			for _, w := range tokens {
				for len(counts[id]) <= w {
					counts[id] = append(counts[id], 0)
				}
				counts[id][w]++
			}
		}
	}

	for id := range counts {
		for len(counts[id]) < vocab.len() {
			counts[id] = append(counts[id], 0)
		}
	}

	s := m.state
	s.Labels = labels.items
	s.Words = vocab.items
	s.LabelExamples = nonNil(labelExamples)
	s.LabelTokens = nonNil(labelTokens)
	s.LabelWordCounts = counts
	if s.LabelWordCounts == nil {
		s.LabelWordCounts = [][]int{}
	}

	m.install(s, vocab)
	return nil
}

func (m *NaiveBayes) Serialize() (map[string]any, error) {
	if !m.ready {
		return nil, ErrModelNotReady
	}
	return toMapping(m.state)
}

func (m *NaiveBayes) Deserialize(data map[string]any) error {
	var s naiveBayesState
	if err := fromMapping(data, &s); err != nil {
		return err
	}
	if err := s.validate(); err != nil {
		return err
	}

	vocab := newIndex(s.Words...)
	if vocab.len() != len(s.Words) {
		return fmt.Errorf("%w: duplicate words in word_list", ErrInvalidModelData)
	}

	m.install(s, vocab)
	return nil
}

func (m *NaiveBayes) SubmitForPrediction(docs []string) ([]Handle, error) {
	if !m.ready {
		return nil, ErrModelNotReady
	}

	handles := make([]Handle, len(docs))
	for i, doc := range docs {
		handles[i] = Handle{owner: m.id, tokens: knownTokens(m.vocab, doc)}
	}
	return handles, nil
}

func (m *NaiveBayes) Predict(h Handle) (string, error) {
	if !m.ready {
		return "", ErrModelNotReady
	}
	if h.owner != m.id {
		return "", ErrForeignHandle
	}

	s := &m.state
	if len(s.Labels) == 0 || len(h.tokens) == 0 {
		return DefaultLabel, nil
	}

	var assignments int
	for _, n := range s.LabelExamples {
		assignments += n
	}

	v := float64(len(s.Words))
	best, bestScore := -1, math.Inf(-1)
	for l := range s.Labels {
		score := math.Log(float64(s.LabelExamples[l]) / float64(assignments))
		denom := float64(s.LabelTokens[l]) + v*s.Smoothing
		for _, w := range h.tokens {
			score += math.Log((float64(s.LabelWordCounts[l][w]) + s.Smoothing) / denom)
		}

		switch {
		case best == -1:
			best, bestScore = l, score
		case sameScore(score, bestScore):
			if betterLabel(s.Labels[l], s.LabelExamples[l], s.Labels[best], s.LabelExamples[best]) {
				best, bestScore = l, score
			}
		case score > bestScore:
			best, bestScore = l, score
		}
	}

	return s.Labels[best], nil
}

func (m *NaiveBayes) install(s naiveBayesState, vocab *index) {
	m.state = s
	m.vocab = vocab
	m.id = nextInstance()
	m.ready = true
}

func nonNil(s []int) []int {
	if s == nil {
		return []int{}
	}
	return s
}
