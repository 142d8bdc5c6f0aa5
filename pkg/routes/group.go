package routes

import "net/http"

// Group organizes routes under a common prefix. Middleware applies to the
// group's routes and to every child group, outermost first.
type Group struct {
	Prefix     string
	Middleware []Middleware
	Routes     []Route
	Children   []Group
}

// Register adds all routes from the given groups to the mux.
func Register(mux *http.ServeMux, groups ...Group) {
	for _, group := range groups {
		registerGroup(mux, "", nil, group)
	}
}

func registerGroup(mux *http.ServeMux, parentPrefix string, inherited []Middleware, group Group) {
	prefix := parentPrefix + group.Prefix
	stack := append(append([]Middleware{}, inherited...), group.Middleware...)

	for _, route := range group.Routes {
		var h http.Handler = route.Handler
		for i := len(stack) - 1; i >= 0; i-- {
			h = stack[i](h)
		}
		mux.Handle(route.Method+" "+prefix+route.Pattern, h)
	}
	for _, child := range group.Children {
		registerGroup(mux, prefix, stack, child)
	}
}
