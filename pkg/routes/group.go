// Package routes declares HTTP routes as nested prefix groups and registers
// them on a ServeMux using Go 1.22 method patterns.
package routes

import "net/http"

// Route binds an HTTP method and pattern to a handler. Summary is optional
// and only feeds generated API documentation.
type Route struct {
	Method  string
	Pattern string
	Handler http.HandlerFunc
	Summary string
}

// Group organizes routes under a common prefix.
type Group struct {
	Prefix   string
	Routes   []Route
	Children []Group
}

// Register adds all routes from the given groups to the mux.
func Register(mux *http.ServeMux, groups ...Group) {
	for _, group := range groups {
		registerGroup(mux, "", group)
	}
}

func registerGroup(mux *http.ServeMux, parentPrefix string, group Group) {
	fullPrefix := parentPrefix + group.Prefix
	for _, route := range group.Routes {
		mux.HandleFunc(route.Method+" "+fullPrefix+route.Pattern, route.Handler)
	}
	for _, child := range group.Children {
		registerGroup(mux, fullPrefix, child)
	}
}

// Patterns returns the fully qualified "METHOD /path" pattern of every route
// in the given groups, in registration order.
func Patterns(groups ...Group) []string {
	var out []string
	for _, group := range groups {
		out = collect(out, "", group)
	}
	return out
}

func collect(out []string, parentPrefix string, group Group) []string {
	fullPrefix := parentPrefix + group.Prefix
	for _, route := range group.Routes {
		out = append(out, route.Method+" "+fullPrefix+route.Pattern)
	}
	for _, child := range group.Children {
		out = collect(out, fullPrefix, child)
	}
	return out
}
