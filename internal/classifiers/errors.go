package classifiers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/JaimeStill/tally/internal/explorations"
	"github.com/JaimeStill/tally/pkg/classifier"
)

// Domain errors for classifier operations.
var (
	ErrNotFound       = errors.New("classifier not found")
	ErrDuplicate      = errors.New("classifier already exists")
	ErrNoTrainingData = errors.New("state has no classifier training data")
	ErrQueueFull      = errors.New("training queue is full")
)

// ValidationError reports a well-typed field whose value or format is invalid.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// TypeKindError reports a field holding the wrong kind of value entirely.
// It indicates a caller bug rather than bad input.
type TypeKindError struct {
	Field string
	Want  string
	Got   string
}

func (e *TypeKindError) Error() string {
	return fmt.Sprintf("%s must be %s, got %s", e.Field, e.Want, e.Got)
}

// MapHTTPStatus maps classifier domain errors to appropriate HTTP status codes.
func MapHTTPStatus(err error) int {
	var verr *ValidationError
	var terr *TypeKindError

	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, explorations.ErrNotFound),
		errors.Is(err, explorations.ErrStateNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ErrNoTrainingData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrQueueFull):
		return http.StatusServiceUnavailable
	case errors.As(err, &verr), errors.As(err, &terr):
		return http.StatusBadRequest
	case errors.Is(err, classifier.ErrUnknownAlgorithm):
		return http.StatusBadRequest
	case errors.Is(err, classifier.ErrModelNotReady):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
