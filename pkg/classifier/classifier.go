// Package classifier defines the trainable text classification contract and its
// algorithm variants. A Model learns a mapping from free-text documents to labels,
// serializes its entire predictive state to a JSON-compatible mapping, and predicts
// labels through a two-phase submit-then-predict protocol.
package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
)

// DefaultLabel is the label reported when no trained label matches a document.
const DefaultLabel = "_default"

var (
	// ErrModelNotReady indicates prediction was requested before the model was trained or deserialized.
	ErrModelNotReady = errors.New("classifier model not ready")
	// ErrUnknownAlgorithm indicates an algorithm id that is not registered.
	ErrUnknownAlgorithm = errors.New("unknown classifier algorithm")
	// ErrForeignHandle indicates a prediction handle issued by a different model instance.
	ErrForeignHandle = errors.New("prediction handle belongs to another model")
	// ErrInvalidModelData indicates serialized model data that cannot be interpreted.
	ErrInvalidModelData = errors.New("invalid classifier model data")
)

// Example is one labeled training document.
type Example struct {
	Doc    string   `json:"doc" yaml:"doc"`
	Labels []string `json:"labels" yaml:"labels"`
}

// Handle references a document submitted for prediction.
// It carries the tokenized document so Predict reads no shared mutable state.
type Handle struct {
	owner  uint64
	tokens []int
}

// Model is the contract every classification algorithm satisfies.
//
// Train and Deserialize replace the model state and must not run concurrently with
// other calls. Once trained or deserialized, SubmitForPrediction and Predict are safe
// for concurrent use.
type Model interface {
	// AlgorithmID returns the registry id of the algorithm.
	AlgorithmID() string
	// SchemaVersion returns the version of the serialized data layout.
	SchemaVersion() int
	// Train builds model state from examples in order. Training on a prefix of a
	// sequence depends only on that prefix.
	Train(examples []Example) error
	// Serialize returns the complete predictive state as a JSON-compatible mapping.
	Serialize() (map[string]any, error)
	// Deserialize replaces the model state with data produced by Serialize.
	Deserialize(data map[string]any) error
	// SubmitForPrediction tokenizes docs and returns one handle per document, in order.
	SubmitForPrediction(docs []string) ([]Handle, error)
	// Predict returns the best matching label for the document behind h, or
	// DefaultLabel when no trained label matches.
	Predict(h Handle) (string, error)
}

var instances atomic.Uint64

func nextInstance() uint64 {
	return instances.Add(1)
}

func toMapping(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal model state: %w", err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal model state: %w", err)
	}
	return m, nil
}

func fromMapping(m map[string]any, v any) error {
	if m == nil {
		return fmt.Errorf("%w: nil mapping", ErrInvalidModelData)
	}

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidModelData, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidModelData, err)
	}
	return nil
}
