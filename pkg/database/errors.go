package database

import (
	"errors"
	"net/http"
)

// ErrNotReady indicates the startup ping has not succeeded.
var ErrNotReady = errors.New("database not ready")

// MapHTTPStatus maps connection errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrNotReady) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
