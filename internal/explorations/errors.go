package explorations

import "errors"

var (
	ErrNotFound      = errors.New("exploration not found")
	ErrStateNotFound = errors.New("state not found")
)
