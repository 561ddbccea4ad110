package projects

import (
	"net/url"

	"github.com/JaimeStill/mrv/pkg/query"
	"github.com/JaimeStill/mrv/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "projects", "p").
	Project("id", "ID").
	Project("name", "Name").
	Project("description", "Description").
	Project("current_stage", "CurrentStage").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt")

var defaultSort = query.SortField{Field: "CreatedAt", Descending: true}

// Filters narrows project listings.
type Filters struct {
	Name         *string `json:"name,omitempty"`
	CurrentStage *string `json:"current_stage,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereContains("Name", f.Name).
		WhereEquals("CurrentStage", f.CurrentStage)
}

// FiltersFromQuery extracts filter values from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters
	if n := values.Get("name"); n != "" {
		f.Name = &n
	}
	if s := values.Get("current_stage"); s != "" {
		f.CurrentStage = &s
	}
	return f
}

func scanProject(s repository.Scanner) (Project, error) {
	var p Project
	err := s.Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.CurrentStage,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return p, err
}

func scanStage(s repository.Scanner) (StageState, error) {
	var st StageState
	err := s.Scan(
		&st.ProjectID,
		&st.Stage,
		&st.Status,
		&st.JobID,
		&st.LastRunAt,
		&st.CompletedAt,
		&st.Detail,
	)
	return st, err
}
