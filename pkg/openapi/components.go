package openapi

// problem kinds surfaced in error documents.
var problemKinds = []any{
	"NotFound",
	"PreconditionNotMet",
	"ValidationError",
	"PartialFailure",
	"Conflict",
	"ComputationFailed",
	"Internal",
}

// NewComponents creates Components with the shared pagination, outcome, and
// problem document schemas and the error responses built on them.
func NewComponents() *Components {
	return &Components{
		Schemas: map[string]*Schema{
			"PageRequest": {
				Type: "object",
				Properties: map[string]*Schema{
					"page":      {Type: "integer", Description: "Page number (1-indexed)", Example: 1},
					"page_size": {Type: "integer", Description: "Results per page", Example: 20},
					"search":    {Type: "string", Description: "Search query"},
					"sort":      {Type: "string", Description: "Comma-separated sort fields. Prefix with - for descending. Example: plot_id,-diameter"},
				},
			},
			"Problem": {
				Type: "object",
				Properties: map[string]*Schema{
					"type":     {Type: "string"},
					"title":    {Type: "string"},
					"status":   {Type: "integer"},
					"kind":     {Type: "string", Enum: problemKinds},
					"detail":   {Type: "string"},
					"fields":   {Type: "array", Items: &Schema{Type: "object"}},
					"failures": {Type: "array", Items: &Schema{Type: "object"}},
					"missing":  {Type: "array", Description: "Unmet prerequisite stages", Items: &Schema{Type: "string"}},
					"reason":   {Type: "string"},
				},
				Required: []string{"status", "kind"},
			},
			"Outcome": {
				Type: "object",
				Properties: map[string]*Schema{
					"outcome": {Type: "string", Enum: []any{"completed", "submitted"}},
					"stage":   {Type: "string"},
					"result":  {Type: "object", Description: "Stage result for completed sync stages"},
					"job":     {Type: "object", Description: "Submitted job for async stages"},
				},
				Required: []string{"outcome", "stage"},
			},
		},
		Responses: map[string]*Response{
			"ValidationError":    problemResponse("Invalid request"),
			"NotFound":           problemResponse("Resource not found"),
			"Conflict":           problemResponse("Conflicting state (stage already running, duplicate name)"),
			"PreconditionNotMet": problemResponse("Prerequisite stages have not succeeded"),
		},
	}
}

func problemResponse(description string) *Response {
	return &Response{
		Description: description,
		Content: map[string]*MediaType{
			"application/problem+json": {Schema: schemaRef("Problem")},
		},
	}
}
