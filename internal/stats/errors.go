package stats

import (
	"errors"
	"net/http"

	"github.com/JaimeStill/tally/internal/answers"
	"github.com/JaimeStill/tally/internal/explorations"
)

// Domain errors for statistics operations.
var (
	ErrNoAnswers          = errors.New("no answers recorded")
	ErrInvalidEvent       = errors.New("invalid visit event")
	ErrUnknownCalculation = errors.New("unknown calculation")
	// ErrConflict is returned by stores when another pass already advanced
	// the stats checkpoint. The aggregator retries these.
	ErrConflict = errors.New("concurrent stats write")
)

// MapHTTPStatus maps statistics, answer log, and exploration errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, explorations.ErrNotFound),
		errors.Is(err, explorations.ErrStateNotFound),
		errors.Is(err, ErrNoAnswers):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidEvent),
		errors.Is(err, ErrUnknownCalculation):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return answers.MapHTTPStatus(err)
	}
}
