package openapi

import (
	"regexp"
	"strings"

	"github.com/JaimeStill/mrv/pkg/routes"
)

var pathParam = regexp.MustCompile(`\{([A-Za-z_]+)\}`)

// AddRoutes documents every route in the given groups. Operations are tagged
// by the first static segment of their path below /projects/{id}; path
// parameters named id or ending in Id are typed as UUIDs.
func (s *Spec) AddRoutes(groups ...routes.Group) {
	for _, g := range groups {
		s.addGroup("", g)
	}
}

func (s *Spec) addGroup(parent string, g routes.Group) {
	prefix := parent + g.Prefix
	for _, r := range g.Routes {
		path := prefix + r.Pattern
		if path == "" {
			path = "/"
		}
		item, ok := s.Paths[path]
		if !ok {
			item = &PathItem{}
			s.Paths[path] = item
		}
		item.set(r.Method, newOperation(r, path))
	}
	for _, child := range g.Children {
		s.addGroup(prefix, child)
	}
}

func (p *PathItem) set(method string, op *Operation) {
	switch method {
	case "GET":
		p.Get = op
	case "POST":
		p.Post = op
	case "PUT":
		p.Put = op
	case "DELETE":
		p.Delete = op
	}
}

func newOperation(r routes.Route, path string) *Operation {
	op := &Operation{
		Summary: r.Summary,
		Responses: map[int]*Response{
			200: {Description: "OK"},
		},
	}
	if op.Summary == "" {
		op.Summary = r.Method + " " + path
	}
	if tag := tagFor(path); tag != "" {
		op.Tags = []string{tag}
	}

	for _, m := range pathParam.FindAllStringSubmatch(path, -1) {
		name := m[1]
		schema := &Schema{Type: "string"}
		if name == "id" || strings.HasSuffix(name, "Id") {
			schema.Format = "uuid"
		}
		op.Parameters = append(op.Parameters, &Parameter{
			Name:     name,
			In:       "path",
			Required: true,
			Schema:   schema,
		})
	}

	if len(op.Parameters) > 0 {
		op.Responses[404] = responseRef("NotFound")
		op.Responses[422] = responseRef("ValidationError")
	}
	if r.Method == "POST" {
		op.Responses[409] = responseRef("Conflict")
		op.Responses[412] = responseRef("PreconditionNotMet")
	}
	return op
}

func tagFor(path string) string {
	for seg := range strings.SplitSeq(path, "/") {
		if seg != "" && !strings.HasPrefix(seg, "{") && seg != "projects" {
			return seg
		}
	}
	if strings.HasPrefix(path, "/projects") {
		return "projects"
	}
	return ""
}
