package classifier

import (
	"fmt"
	"slices"
)

// LDAStringClassifierID is the registry id of the labeled topic model.
const LDAStringClassifierID = "LDAStringClassifier"

const ldaSchemaVersion = 1

// ldaState is the serialized form of an LDA model.
// Label 0 is always DefaultLabel. It only holds words from examples that carry
// no other label.
type ldaState struct {
	Alpha                float64     `json:"alpha"`
	Beta                 float64     `json:"beta"`
	TrainingIterations   int         `json:"training_iterations"`
	PredictionIterations int         `json:"prediction_iterations"`
	Labels               []string    `json:"label_list"`
	Words                []string    `json:"word_list"`
	LabelWordCounts      [][]float64 `json:"label_word_counts"`
	LabelCounts          []float64   `json:"label_counts"`
	LabelExamples        []int       `json:"label_example_counts"`
}

func (s *ldaState) validate() error {
	k := len(s.Labels)
	if k == 0 || s.Labels[0] != DefaultLabel {
		return fmt.Errorf("%w: label_list must start with %s", ErrInvalidModelData, DefaultLabel)
	}
	if len(s.LabelWordCounts) != k || len(s.LabelCounts) != k || len(s.LabelExamples) != k {
		return fmt.Errorf("%w: label dimensions disagree", ErrInvalidModelData)
	}
	for _, row := range s.LabelWordCounts {
		if len(row) != len(s.Words) {
			return fmt.Errorf("%w: word dimensions disagree", ErrInvalidModelData)
		}
	}
	if s.Alpha <= 0 || s.Beta <= 0 {
		return fmt.Errorf("%w: alpha and beta must be positive", ErrInvalidModelData)
	}
	if s.TrainingIterations < 1 || s.PredictionIterations < 1 {
		return fmt.Errorf("%w: iterations must be positive", ErrInvalidModelData)
	}
	return nil
}

// LDA is a labeled topic model. Each word token is softly assigned to one of its
// document's labels by zero-order collapsed variational inference. A sweep
// updates every token from the previous sweep's counts, so the trained counts
// depend on the examples but not on their order.
//
// Prediction infers a label mixture for the new document against the trained
// label-word counts and returns the label with the largest share. Shares equal
// within rounding go to the label seen in more training examples, then to the
// lexicographically smaller label. DefaultLabel only competes when some examples
// were trained under it; otherwise it is returned only for documents with no
// known words.
type LDA struct {
	id    uint64
	state ldaState
	vocab *index
	ready bool
}

// NewLDA creates an untrained LDA model with default hyperparameters.
func NewLDA() *LDA {
	return &LDA{
		id: nextInstance(),
		state: ldaState{
			Alpha:                0.1,
			Beta:                 0.1,
			TrainingIterations:   25,
			PredictionIterations: 5,
		},
	}
}

func (m *LDA) AlgorithmID() string { return LDAStringClassifierID }

func (m *LDA) SchemaVersion() int { return ldaSchemaVersion }

type ldaDoc struct {
	tokens  []int
	allowed []int
}

func (m *LDA) Train(examples []Example) error {
	labels := newIndex(DefaultLabel)
	vocab := newIndex()
	labelExamples := []int{0}

	docs := make([]ldaDoc, 0, len(examples))
	for _, ex := range examples {
		var d ldaDoc
		for _, l := range ex.Labels {
			if l == "" {
				continue
			}
			id := labels.add(l)
			if id == len(labelExamples) {
				labelExamples = append(labelExamples, 0)
			}
			if !slices.Contains(d.allowed, id) {
				d.allowed = append(d.allowed, id)
			}
		}
		if len(d.allowed) == 0 {
			d.allowed = []int{0}
		}
		for _, id := range d.allowed {
			labelExamples[id]++
		}

		for _, w := range Tokenize(ex.Doc) {
			d.tokens = append(d.tokens, vocab.add(w))
		}
		docs = append(docs, d)
	}

	s := m.state
	k, v := labels.len(), vocab.len()
	vBeta := float64(v) * s.Beta

	gamma := make([][][]float64, len(docs))
	for d, doc := range docs {
		gamma[d] = make([][]float64, len(doc.tokens))
		share := 1 / float64(len(doc.allowed))
		for i := range doc.tokens {
			g := make([]float64, len(doc.allowed))
			for j := range g {
				g[j] = share
			}
			gamma[d][i] = g
		}
	}

	ndk, nkw, nk := ldaCounts(docs, gamma, k, v)
	for range s.TrainingIterations {
		next := make([][][]float64, len(docs))
		for d, doc := range docs {
			next[d] = make([][]float64, len(doc.tokens))
			for i, w := range doc.tokens {
				prev := gamma[d][i]
				g := make([]float64, len(doc.allowed))

				var total float64
				for j, l := range doc.allowed {
					g[j] = (ndk[d][j] - prev[j] + s.Alpha) *
						(nkw[l][w] - prev[j] + s.Beta) /
						(nk[l] - prev[j] + vBeta)
					total += g[j]
				}
				for j := range g {
					g[j] /= total
				}
				next[d][i] = g
			}
		}
		gamma = next
		ndk, nkw, nk = ldaCounts(docs, gamma, k, v)
	}

	s.Labels = labels.items
	s.Words = vocab.items
	s.LabelWordCounts = nkw
	s.LabelCounts = nk
	s.LabelExamples = labelExamples

	m.install(s, vocab)
	return nil
}

// ldaCounts totals the token assignments in gamma per document-label,
// label-word, and label.
func ldaCounts(docs []ldaDoc, gamma [][][]float64, k, v int) (ndk, nkw [][]float64, nk []float64) {
	ndk = make([][]float64, len(docs))
	nkw = make([][]float64, k)
	for i := range nkw {
		nkw[i] = make([]float64, v)
	}
	nk = make([]float64, k)

	for d, doc := range docs {
		ndk[d] = make([]float64, len(doc.allowed))
		for i, w := range doc.tokens {
			for j, l := range doc.allowed {
				g := gamma[d][i][j]
				ndk[d][j] += g
				nkw[l][w] += g
				nk[l] += g
			}
		}
	}
	return ndk, nkw, nk
}

func (m *LDA) Serialize() (map[string]any, error) {
	if !m.ready {
		return nil, ErrModelNotReady
	}
	return toMapping(m.state)
}

func (m *LDA) Deserialize(data map[string]any) error {
	var s ldaState
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

func (m *LDA) SubmitForPrediction(docs []string) ([]Handle, error) {
	if !m.ready {
		return nil, ErrModelNotReady
	}

	handles := make([]Handle, len(docs))
	for i, doc := range docs {
		handles[i] = Handle{owner: m.id, tokens: knownTokens(m.vocab, doc)}
	}
	return handles, nil
}

func (m *LDA) Predict(h Handle) (string, error) {
	if !m.ready {
		return "", ErrModelNotReady
	}
	if h.owner != m.id {
		return "", ErrForeignHandle
	}

	s := &m.state
	k := len(s.Labels)
	if k <= 1 || len(h.tokens) == 0 {
		return DefaultLabel, nil
	}

	candidates := make([]int, 0, k)
	for l := range k {
		if l == 0 && s.LabelCounts[0] <= 0 {
			continue
		}
		candidates = append(candidates, l)
	}

	vBeta := float64(len(s.Words)) * s.Beta
	share := 1 / float64(len(candidates))

	phi := make([][]float64, len(h.tokens))
	gamma := make([][]float64, len(h.tokens))
	ndk := make([]float64, len(candidates))
	for i, w := range h.tokens {
		phi[i] = make([]float64, len(candidates))
		gamma[i] = make([]float64, len(candidates))
		for j, l := range candidates {
			phi[i][j] = (s.LabelWordCounts[l][w] + s.Beta) / (s.LabelCounts[l] + vBeta)
			gamma[i][j] = share
			ndk[j] += share
		}
	}

	for range s.PredictionIterations {
		for i := range h.tokens {
			g := gamma[i]
			var total float64
			for j := range candidates {
				ndk[j] -= g[j]
				g[j] = (ndk[j] + s.Alpha) * phi[i][j]
				total += g[j]
			}
			for j := range candidates {
				g[j] /= total
				ndk[j] += g[j]
			}
		}
	}

	best := 0
	for j := 1; j < len(candidates); j++ {
		l, b := candidates[j], candidates[best]
		switch {
		case sameScore(ndk[j], ndk[best]):
			if betterLabel(s.Labels[l], s.LabelExamples[l], s.Labels[b], s.LabelExamples[b]) {
				best = j
			}
		case ndk[j] > ndk[best]:
			best = j
		}
	}

	return s.Labels[candidates[best]], nil
}

func (m *LDA) install(s ldaState, vocab *index) {
	m.state = s
	m.vocab = vocab
	m.id = nextInstance()
	m.ready = true
}
