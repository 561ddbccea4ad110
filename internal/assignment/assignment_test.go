package assignment_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/JaimeStill/mrv/internal/assignment"
	"github.com/JaimeStill/mrv/internal/records"
	"github.com/JaimeStill/mrv/internal/records/recordstest"
	"github.com/JaimeStill/mrv/internal/reference"
	"github.com/JaimeStill/mrv/pkg/problem"
)

type harness struct {
	sys       assignment.System
	records   records.System
	projectID uuid.UUID
}

func newHarness(t *testing.T, n int, mutate func(i int, r *records.Record)) harness {
	t.Helper()

	catalog, err := reference.Load(nil)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}

	recs := recordstest.NewStore()
	h := harness{
		sys:       assignment.NewMemory(recs, catalog, recordstest.Logger()),
		records:   recs,
		projectID: uuid.New(),
	}
	recordstest.Seed(t, recs, h.projectID, n, mutate)
	return h
}

func (h harness) byRow(t *testing.T) map[int]records.Record {
	t.Helper()
	all, err := h.records.All(context.Background(), h.projectID)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	out := make(map[int]records.Record, len(all))
	for _, r := range all {
		out[r.RowNumber] = r
	}
	return out
}

func modelOf(id *string) string {
	if id == nil {
		return ""
	}
	return *id
}

func fieldsOf(t *testing.T, err error) []string {
	t.Helper()
	var pe *problem.Error
	if !errors.As(err, &pe) || pe.Kind != problem.KindValidation {
		t.Fatalf("err = %v, want validation problem", err)
	}
	out := make([]string, len(pe.Fields))
	for i, f := range pe.Fields {
		out[i] = f.Field
	}
	return out
}

func TestAssignHDDefaults(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 6, func(i int, r *records.Record) {
		switch i {
		case 1:
			r.Physiography = "HIGH_MOUNTAIN"
		case 2:
			r.Physiography = "PLATEAU"
		}
	})

	out, err := h.sys.AssignHD(ctx, h.projectID, nil)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if out.Assigned != 5 || out.Unassigned != 1 {
		t.Errorf("outcome = %+v, want 5 assigned, 1 unassigned", out)
	}

	rows := h.byRow(t)
	tests := []struct {
		row  int
		want string
	}{
		{1, "hd-naslund-lowland"},
		{2, "hd-power-upland"},
		{3, ""},
	}
	for _, tt := range tests {
		if got := modelOf(rows[tt.row].HDModelID); got != tt.want {
			t.Errorf("row %d model = %q, want %q", tt.row, got, tt.want)
		}
	}

	unassigned, err := h.sys.UnassignedHD(ctx, h.projectID)
	if err != nil {
		t.Fatalf("unassigned: %v", err)
	}
	if len(unassigned) != 1 || unassigned[0].RowNumber != 3 {
		t.Errorf("unassigned = %v, want row 3", unassigned)
	}
}

func TestAssignHDOverridePrecedence(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 3, func(i int, r *records.Record) {
		if i == 1 {
			r.SpeciesCode = "PIRO"
		}
	})

	overrides := []assignment.HDAssignment{
		{Physiography: "TERAI", SpeciesCode: assignment.AnySpecies, ModelID: "hd-michailoff-hill"},
		{Physiography: "TERAI", SpeciesCode: "PIRO", ModelID: "hd-power-upland"},
	}
	if _, err := h.sys.AssignHD(ctx, h.projectID, overrides); err != nil {
		t.Fatalf("assign: %v", err)
	}

	rows := h.byRow(t)
	if got := modelOf(rows[1].HDModelID); got != "hd-michailoff-hill" {
		t.Errorf("zone override: got %q", got)
	}
	if got := modelOf(rows[2].HDModelID); got != "hd-power-upland" {
		t.Errorf("species override: got %q", got)
	}

	stored, err := h.sys.HDAssignments(ctx, h.projectID)
	if err != nil {
		t.Fatalf("assignments: %v", err)
	}
	if len(stored) != 2 {
		t.Errorf("stored = %d assignments, want 2", len(stored))
	}
}

func TestAssignHDValidation(t *testing.T) {
	h := newHarness(t, 2, nil)

	_, err := h.sys.AssignHD(context.Background(), h.projectID, []assignment.HDAssignment{
		{Physiography: "TERAI", SpeciesCode: "SHRO", ModelID: "hd-missing"},
		{Physiography: "ATLANTIS", SpeciesCode: "SHRO", ModelID: "hd-power-upland"},
		{Physiography: "TERAI", SpeciesCode: "SHRO"},
	})

	got := fieldsOf(t, err)
	want := []string{"assignments[0].model_id", "assignments[1].physiography", "assignments[2].ModelID"}
	if len(got) != len(want) {
		t.Fatalf("fields = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("fields[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	for _, r := range h.byRow(t) {
		if r.HDModelID != nil {
			t.Fatal("rejected assignment must not touch records")
		}
	}
}

func TestSpeciesMappings(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 2, func(i int, r *records.Record) {
		if i == 0 {
			r.SpeciesCode = "sal"
		}
	})

	if _, err := h.sys.UpdateSpeciesMappings(ctx, h.projectID, []assignment.SpeciesMapping{
		{SourceCode: "sal", SpeciesCode: "NOPE"},
	}); problem.KindOf(err) != problem.KindValidation {
		t.Fatalf("unknown target: err = %v, want validation", err)
	}

	n, err := h.sys.UpdateSpeciesMappings(ctx, h.projectID, []assignment.SpeciesMapping{{SourceCode: "sal", SpeciesCode: "SHRO"}})
	if err != nil || n != 1 {
		t.Fatalf("update = %d, %v", n, err)
	}
	if n, _ := h.sys.UpdateSpeciesMappings(ctx, h.projectID, []assignment.SpeciesMapping{{SourceCode: "sal", SpeciesCode: "SHRO"}}); n != 0 {
		t.Errorf("repeat update changed %d, want 0", n)
	}

	if _, err := h.sys.AssignAllometric(ctx, h.projectID, nil); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if got := modelOf(h.byRow(t)[1].AllometricModelID); got != "agb-sal-power" {
		t.Errorf("mapped species model = %q, want agb-sal-power", got)
	}

	if n, _ := h.sys.UpdateSpeciesMappings(ctx, h.projectID, []assignment.SpeciesMapping{{SourceCode: "sal"}}); n != 1 {
		t.Errorf("removal changed %d, want 1", n)
	}
	m, err := h.sys.SpeciesMappings(ctx, h.projectID)
	if err != nil || len(m) != 0 {
		t.Errorf("mappings after removal = %v, %v", m, err)
	}
}

func TestAssignAllometric(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 4, func(i int, r *records.Record) {
		switch i {
		case 1:
			r.SpeciesCode = "PIRO"
		case 2:
			r.SpeciesCode = "QULA"
		case 3:
			r.SpeciesCode = "XXXX"
		}
	})

	out, err := h.sys.AssignAllometric(ctx, h.projectID, []assignment.AllometricAssignment{
		{SpeciesCode: "QULA", ModelID: "agb-volume-density"},
	})
	if problem.KindOf(err) != problem.KindValidation {
		t.Fatalf("inapplicable model: err = %v, want validation", err)
	}

	out, err = h.sys.AssignAllometric(ctx, h.projectID, []assignment.AllometricAssignment{
		{SpeciesCode: "PIRO", ModelID: "agb-chave2014"},
	})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if out.Assigned != 3 || out.Unassigned != 1 {
		t.Errorf("outcome = %+v", out)
	}

	rows := h.byRow(t)
	want := map[int]string{1: "agb-sal-power", 2: "agb-chave2014", 3: "agb-chave2014", 4: ""}
	for row, model := range want {
		if got := modelOf(rows[row].AllometricModelID); got != model {
			t.Errorf("row %d model = %q, want %q", row, got, model)
		}
	}

	status, err := h.sys.AllometricStatus(ctx, h.projectID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(status) != 4 {
		t.Fatalf("status = %d species, want 4", len(status))
	}
	for _, st := range status {
		switch st.SpeciesCode {
		case "PIRO":
			if modelOf(st.ModelID) != "agb-chave2014" || modelOf(st.DefaultModel) != "agb-volume-density" {
				t.Errorf("PIRO status = %+v", st)
			}
		case "XXXX":
			if st.ReferenceCode != "" || st.Assigned != 0 {
				t.Errorf("unknown species status = %+v", st)
			}
		}
	}

	unassigned, _ := h.sys.UnassignedAllometric(ctx, h.projectID)
	if len(unassigned) != 1 || unassigned[0].SpeciesCode != "XXXX" {
		t.Errorf("unassigned = %v", unassigned)
	}
}

func TestRunnerRejectsEmptyAssignment(t *testing.T) {
	h := newHarness(t, 2, func(_ int, r *records.Record) { r.Physiography = "PLATEAU" })

	_, err := assignment.HDRunner(h.sys).Run(context.Background(), h.projectID, nil)
	if !errors.Is(err, assignment.ErrNotAssigned) {
		t.Fatalf("err = %v, want ErrNotAssigned", err)
	}
	if problem.KindOf(err) != problem.KindValidation {
		t.Errorf("kind = %s, want validation", problem.KindOf(err))
	}

	res, err := assignment.AllometricRunner(h.sys).Run(context.Background(), h.projectID, []byte(`{"assignments":[]}`))
	if err != nil {
		t.Fatalf("allometric run: %v", err)
	}
	if res.Detail != "2 records assigned, 0 unassigned" {
		t.Errorf("detail = %q", res.Detail)
	}
}

func TestSummaries(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 30, func(i int, r *records.Record) {
		if i >= 20 {
			r.Physiography = "SIWALIK"
		}
		if i == 29 {
			r.Height = nil
		}
	})

	if _, err := h.sys.AssignHD(ctx, h.projectID, nil); err != nil {
		t.Fatalf("assign: %v", err)
	}

	opts, err := h.sys.PhysiographyOptions(ctx, h.projectID)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	counts := map[string]int{}
	for _, o := range opts {
		counts[o.Code] = o.Records
	}
	if counts["TERAI"] != 20 || counts["SIWALIK"] != 10 || counts["HIGH_MOUNTAIN"] != 0 {
		t.Errorf("option counts = %v", counts)
	}

	summary, err := h.sys.PhysiographySummary(ctx, h.projectID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	for _, s := range summary {
		if s.Physiography == "SIWALIK" && (s.Assigned != 10 || s.Models["hd-naslund-lowland"] != 10) {
			t.Errorf("SIWALIK summary = %+v", s)
		}
	}

	rel, err := h.sys.HDRelation(ctx, h.projectID)
	if err != nil {
		t.Fatalf("relation: %v", err)
	}
	if len(rel.Points) != 30 {
		t.Errorf("points = %d, want 30", len(rel.Points))
	}
	if rel.Fit == nil || rel.Fit.N != 29 {
		t.Errorf("fit = %+v, want 29 measured pairs", rel.Fit)
	}
}
