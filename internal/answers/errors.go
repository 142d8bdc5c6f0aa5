package answers

import (
	"errors"
	"net/http"
)

var (
	// ErrStorageOverflow reports an answer whose serialized size alone exceeds the shard bound.
	ErrStorageOverflow = errors.New("answer exceeds maximum shard size")
	// ErrAppendConflict reports an append that kept losing races until its attempts ran out.
	ErrAppendConflict = errors.New("answer append conflict")
	ErrInvalidAnswer  = errors.New("invalid submitted answer")
	// ErrConflict is returned by stores when a concurrent writer won a race.
	// The log retries these.
	ErrConflict = errors.New("concurrent answer log write")
)

// MapHTTPStatus maps answer log errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidAnswer):
		return http.StatusBadRequest
	case errors.Is(err, ErrStorageOverflow):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrAppendConflict):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
