// Package routes declares HTTP endpoints as nested groups and registers
// them on a ServeMux using method-qualified patterns.
package routes

import "net/http"

// Route binds an HTTP method and pattern to a handler.
type Route struct {
	Method  string
	Pattern string
	Handler http.HandlerFunc
}

// Middleware wraps a handler.
type Middleware func(http.Handler) http.Handler
