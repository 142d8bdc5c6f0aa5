// Package classifiers manages trained classifier records: validation, persistence,
// atomic install of retrained models, background training, and prediction
// against the installed model of a state.
package classifiers

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

// ReservedStateChars may not appear in a record's state name.
const ReservedStateChars = "#"

// AlgorithmSet reports whether an algorithm id is registered.
// *classifier.Registry satisfies it.
type AlgorithmSet interface {
	Has(id string) bool
}

// Record describes one trained model of one exploration state.
// Records are immutable; retraining installs a new record.
type Record struct {
	ClassifierID          string         `json:"classifier_id"`
	ExpID                 string         `json:"exp_id"`
	ExpVersionWhenCreated int            `json:"exp_version_when_created"`
	StateName             string         `json:"state_name"`
	AlgorithmID           string         `json:"algorithm_id"`
	CachedClassifierData  map[string]any `json:"cached_classifier_data"`
	DataSchemaVersion     int            `json:"data_schema_version"`
}

// NewClassifierID generates an id owned by the given exploration.
func NewClassifierID(expID string) string {
	return expID + "." + uuid.NewString()
}

// Validate checks the record's values in field order and returns
// the first failure as a *ValidationError.
func (r *Record) Validate(algorithms AlgorithmSet) error {
	if err := validateExpID(r.ExpID); err != nil {
		return err
	}
	if err := validateClassifierID(r.ClassifierID, r.ExpID); err != nil {
		return err
	}
	if err := validateVersion("exp_version_when_created", r.ExpVersionWhenCreated); err != nil {
		return err
	}
	if err := validateStateName(r.StateName); err != nil {
		return err
	}
	if err := validateAlgorithmID(r.AlgorithmID, algorithms); err != nil {
		return err
	}
	if r.CachedClassifierData == nil {
		return &ValidationError{Field: "cached_classifier_data", Reason: "must be a mapping"}
	}
	return validateVersion("data_schema_version", r.DataSchemaVersion)
}

// ToDict returns the record as a plain mapping. FromDict inverts it exactly.
func (r *Record) ToDict() map[string]any {
	return map[string]any{
		"classifier_id":            r.ClassifierID,
		"exp_id":                   r.ExpID,
		"exp_version_when_created": r.ExpVersionWhenCreated,
		"state_name":               r.StateName,
		"algorithm_id":             r.AlgorithmID,
		"cached_classifier_data":   r.CachedClassifierData,
		"data_schema_version":      r.DataSchemaVersion,
	}
}

// FromDict reconstructs and validates a record from a mapping.
// Every field is kind-checked before any value is checked: a field of the wrong kind
// yields a *TypeKindError, a well-typed but invalid value a *ValidationError.
// The classifier id and classifier data kinds are part of their value checks and
// report *ValidationError.
func FromDict(d map[string]any, algorithms AlgorithmSet) (*Record, error) {
	var r Record
	var err error

	if r.ExpID, err = stringField(d, "exp_id"); err != nil {
		return nil, err
	}
	if r.ExpVersionWhenCreated, err = intField(d, "exp_version_when_created"); err != nil {
		return nil, err
	}
	if r.StateName, err = stringField(d, "state_name"); err != nil {
		return nil, err
	}
	if r.AlgorithmID, err = stringField(d, "algorithm_id"); err != nil {
		return nil, err
	}
	if r.DataSchemaVersion, err = intField(d, "data_schema_version"); err != nil {
		return nil, err
	}

	id, ok := d["classifier_id"].(string)
	if !ok {
		return nil, &ValidationError{
			Field:  "classifier_id",
			Reason: fmt.Sprintf("expected string, received %s", kindOf(d["classifier_id"])),
		}
	}
	r.ClassifierID = id

	// A non-mapping leaves the data nil, which Validate rejects in field order.
	data, _ := d["cached_classifier_data"].(map[string]any)
	r.CachedClassifierData = data

	if err := r.Validate(algorithms); err != nil {
		return nil, err
	}
	return &r, nil
}

// FromJSON decodes a JSON object and reconstructs the record with FromDict.
func FromJSON(data []byte, algorithms AlgorithmSet) (*Record, error) {
	var d map[string]any
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode classifier record: %w", err)
	}
	return FromDict(d, algorithms)
}

func validateExpID(expID string) error {
	if expID == "" {
		return &ValidationError{Field: "exp_id", Reason: "must not be empty"}
	}
	return nil
}

func validateClassifierID(id, expID string) error {
	prefix := expID + "."
	if !strings.HasPrefix(id, prefix) || len(id) == len(prefix) {
		return &ValidationError{
			Field:  "classifier_id",
			Reason: fmt.Sprintf("%q must have the form %s<suffix>", id, prefix),
		}
	}
	return nil
}

func validateVersion(field string, v int) error {
	if v < 1 {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("must be positive, got %d", v)}
	}
	return nil
}

func validateStateName(name string) error {
	if name == "" {
		return &ValidationError{Field: "state_name", Reason: "must not be empty"}
	}
	if strings.ContainsAny(name, ReservedStateChars) {
		return &ValidationError{
			Field:  "state_name",
			Reason: fmt.Sprintf("%q contains reserved characters %q", name, ReservedStateChars),
		}
	}
	return nil
}

func validateAlgorithmID(id string, algorithms AlgorithmSet) error {
	if algorithms == nil || !algorithms.Has(id) {
		return &ValidationError{Field: "algorithm_id", Reason: fmt.Sprintf("unknown algorithm %q", id)}
	}
	return nil
}

func stringField(d map[string]any, field string) (string, error) {
	s, ok := d[field].(string)
	if !ok {
		return "", &TypeKindError{Field: field, Want: "string", Got: kindOf(d[field])}
	}
	return s, nil
}

// intField accepts Go integers and integral JSON numbers.
func intField(d map[string]any, field string) (int, error) {
	switch v := d[field].(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		if v == math.Trunc(v) && math.Abs(v) <= math.MaxInt32 {
			return int(v), nil
		}
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i), nil
		}
	}
	return 0, &TypeKindError{Field: field, Want: "integer", Got: kindOf(d[field])}
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case int, int32, int64, float64, json.Number:
		return "number"
	case []any:
		return "list"
	case map[string]any:
		return "mapping"
	default:
		return fmt.Sprintf("%T", v)
	}
}
