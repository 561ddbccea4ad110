package query_test

import (
	"slices"
	"testing"

	"github.com/JaimeStill/mrv/pkg/query"
)

const recordColumns = "r.id, r.species_code, r.diameter, r.row_number"

func recordProjection() *query.ProjectionMap {
	return query.NewProjectionMap("public", "records", "r").
		Project("id", "ID").
		Project("species_code", "SpeciesCode").
		Project("diameter", "Diameter").
		Project("row_number", "RowNumber")
}

func ptr(s string) *string { return &s }

func TestProjectionMap(t *testing.T) {
	p := recordProjection()

	if got := p.Table(); got != "public.records r" {
		t.Errorf("Table() = %q", got)
	}
	if got := p.Columns(); got != recordColumns {
		t.Errorf("Columns() = %q, want %q", got, recordColumns)
	}

	tests := []struct {
		viewName string
		want     string
	}{
		{"SpeciesCode", "r.species_code"},
		{"RowNumber", "r.row_number"},
		{"unmapped", "unmapped"},
	}
	for _, tt := range tests {
		if got := p.Column(tt.viewName); got != tt.want {
			t.Errorf("Column(%q) = %q, want %q", tt.viewName, got, tt.want)
		}
	}
}

func TestProjectionMapJoin(t *testing.T) {
	p := query.NewProjectionMap("public", "quality_findings", "f").
		Project("issue_type", "IssueType").
		Join("public", "records", "r", "JOIN", "r.id = f.record_id").
		Project("row_number", "RowNumber")

	if got := p.Columns(); got != "f.issue_type, r.row_number" {
		t.Errorf("Columns() = %q", got)
	}

	want := "public.quality_findings f JOIN public.records r ON r.id = f.record_id"
	if got := p.From(); got != want {
		t.Errorf("From() = %q, want %q", got, want)
	}
}

func TestParseSortFields(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []query.SortField
	}{
		{"empty", "", nil},
		{"ascending", "RowNumber", []query.SortField{{Field: "RowNumber"}}},
		{"descending", "-Diameter", []query.SortField{{Field: "Diameter", Descending: true}}},
		{
			"mixed with spaces and gaps",
			" SpeciesCode ,, -Diameter ",
			[]query.SortField{{Field: "SpeciesCode"}, {Field: "Diameter", Descending: true}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := query.ParseSortFields(tt.input)
			if !slices.Equal(got, tt.want) {
				t.Errorf("ParseSortFields(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestBuilder(t *testing.T) {
	base := "SELECT " + recordColumns + " FROM public.records r"

	tests := []struct {
		name     string
		build    func() (string, []any)
		wantSQL  string
		wantArgs []any
	}{
		{
			name:    "plain select",
			build:   func() (string, []any) { return query.NewBuilder(recordProjection()).Build() },
			wantSQL: base,
		},
		{
			name: "count with condition",
			build: func() (string, []any) {
				return query.NewBuilder(recordProjection()).WhereEquals("SpeciesCode", "SHRO").BuildCount()
			},
			wantSQL:  "SELECT COUNT(*) FROM public.records r WHERE r.species_code = $1",
			wantArgs: []any{"SHRO"},
		},
		{
			name: "page with default sort",
			build: func() (string, []any) {
				return query.NewBuilder(recordProjection(), query.SortField{Field: "RowNumber"}).BuildPage(3, 25)
			},
			wantSQL: base + " ORDER BY r.row_number ASC LIMIT 25 OFFSET 50",
		},
		{
			name: "explicit sort overrides default",
			build: func() (string, []any) {
				return query.NewBuilder(recordProjection(), query.SortField{Field: "RowNumber"}).
					OrderByFields([]query.SortField{{Field: "Diameter", Descending: true}}).
					Build()
			},
			wantSQL: base + " ORDER BY r.diameter DESC",
		},
		{
			name: "single by id",
			build: func() (string, []any) {
				return query.NewBuilder(recordProjection()).BuildSingle("ID", "abc")
			},
			wantSQL:  base + " WHERE r.id = $1",
			wantArgs: []any{"abc"},
		},
		{
			name: "single by id with scope condition",
			build: func() (string, []any) {
				return query.NewBuilder(recordProjection()).
					WhereEquals("SpeciesCode", "SHRO").
					BuildSingle("ID", "abc")
			},
			wantSQL:  base + " WHERE r.id = $1 AND r.species_code = $2",
			wantArgs: []any{"abc", "SHRO"},
		},
		{
			name: "nil and empty conditions skipped",
			build: func() (string, []any) {
				return query.NewBuilder(recordProjection()).
					WhereEquals("SpeciesCode", nil).
					WhereEquals("Diameter", (*float64)(nil)).
					WhereContains("SpeciesCode", ptr("")).
					WhereSearch(nil, "SpeciesCode").
					Build()
			},
			wantSQL: base,
		},
		{
			name: "parameters number across conditions",
			build: func() (string, []any) {
				return query.NewBuilder(recordProjection()).
					WhereEquals("ID", "a").
					WhereSearch(ptr("sh"), "SpeciesCode", "ID").
					WhereContains("SpeciesCode", ptr("ro")).
					BuildPage(2, 10)
			},
			wantSQL:  base + " WHERE r.id = $1 AND (r.species_code ILIKE $2 OR r.id ILIKE $3) AND r.species_code ILIKE $4 LIMIT 10 OFFSET 10",
			wantArgs: []any{"a", "%sh%", "%sh%", "%ro%"},
		},
		{
			name: "search across fields",
			build: func() (string, []any) {
				return query.NewBuilder(recordProjection()).WhereSearch(ptr("abies"), "SpeciesCode", "ID").Build()
			},
			wantSQL:  base + " WHERE (r.species_code ILIKE $1 OR r.id ILIKE $2)",
			wantArgs: []any{"%abies%", "%abies%"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := tt.build()
			if sql != tt.wantSQL {
				t.Errorf("sql = %q, want %q", sql, tt.wantSQL)
			}
			if len(args) != len(tt.wantArgs) {
				t.Fatalf("args = %v, want %v", args, tt.wantArgs)
			}
			for i := range args {
				if args[i] != tt.wantArgs[i] {
					t.Errorf("args[%d] = %v, want %v", i, args[i], tt.wantArgs[i])
				}
			}
		})
	}
}
