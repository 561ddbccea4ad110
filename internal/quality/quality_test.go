package quality_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/JaimeStill/mrv/internal/quality"
	"github.com/JaimeStill/mrv/internal/records"
	"github.com/JaimeStill/mrv/internal/records/recordstest"
	"github.com/JaimeStill/mrv/internal/reference"
	"github.com/JaimeStill/mrv/pkg/problem"
)

type mappings map[string]string

func (m mappings) SpeciesMappings(context.Context, uuid.UUID) (map[string]string, error) {
	return m, nil
}

var scannedTypes = []quality.IssueType{quality.MissingValue, quality.OutOfRange}

type harness struct {
	records   records.System
	quality   quality.System
	projectID uuid.UUID
	seeded    []records.Record
}

// newHarness seeds 100 records: rows 0-6 lack a diameter and rows 10-14
// carry an out-of-range diameter.
func newHarness(t *testing.T, resolver quality.SpeciesResolver) *harness {
	t.Helper()

	catalog, err := reference.Load(nil)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}

	recs := recordstest.NewStore()
	projectID := uuid.New()
	seeded := recordstest.Seed(t, recs, projectID, 100, func(i int, r *records.Record) {
		switch {
		case i < 7:
			r.Diameter = nil
		case i >= 10 && i < 15:
			r.Diameter = recordstest.Float(600)
		}
	})

	return &harness{
		records:   recs,
		quality:   quality.NewMemory(recs, catalog, resolver, defaultRules(t), recordstest.Logger()),
		projectID: projectID,
		seeded:    seeded,
	}
}

func (h *harness) counts(t *testing.T) records.Counts {
	t.Helper()
	c, err := h.records.Counts(context.Background(), h.projectID)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	return c
}

func affected(issues map[quality.IssueType]quality.Issue) (total, ignored int) {
	for _, is := range issues {
		total += len(is.Records)
		ignored += is.IgnoredCount()
	}
	return total, ignored
}

func TestScanFlagsRecords(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	issues, err := h.quality.Scan(ctx, h.projectID, scannedTypes)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	if got := len(issues[quality.MissingValue].Records); got != 7 {
		t.Errorf("missing_value = %d, want 7", got)
	}
	if got := len(issues[quality.OutOfRange].Records); got != 5 {
		t.Errorf("out_of_range = %d, want 5", got)
	}

	c := h.counts(t)
	if c.Flagged != 12 || c.Active != 88 {
		t.Errorf("counts = %+v, want 12 flagged and 88 active", c)
	}
}

func TestIgnoreSurvivesRescan(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if _, err := h.quality.Scan(ctx, h.projectID, scannedTypes); err != nil {
		t.Fatalf("scan: %v", err)
	}

	ignore := recordstest.IDs(h.seeded[:5])
	n, err := h.quality.Ignore(ctx, h.projectID, ignore, quality.MissingValue)
	if err != nil {
		t.Fatalf("ignore: %v", err)
	}
	if n != 5 {
		t.Errorf("ignored = %d, want 5", n)
	}

	issues, err := h.quality.Scan(ctx, h.projectID, scannedTypes)
	if err != nil {
		t.Fatalf("rescan: %v", err)
	}

	total, ignored := affected(issues)
	if total != 12 || ignored != 5 {
		t.Errorf("affected = %d with %d ignored, want 12 with 5", total, ignored)
	}

	c := h.counts(t)
	if c.Ignored != 5 || c.Flagged != 7 {
		t.Errorf("counts = %+v, want 5 ignored and 7 flagged", c)
	}

	list, err := h.quality.Ignored(ctx, h.projectID, quality.MissingValue)
	if err != nil {
		t.Fatalf("ignored list: %v", err)
	}
	if diff := cmp.Diff(ignore, recordstest.IDs(list)); diff != "" {
		t.Errorf("ignored records mismatch (-want +got):\n%s", diff)
	}
}

func TestIgnoreScanUnignoreCommute(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	base, err := h.quality.Scan(ctx, h.projectID, scannedTypes)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	ids := recordstest.IDs(h.seeded[10:13])
	if _, err := h.quality.Ignore(ctx, h.projectID, ids, quality.OutOfRange); err != nil {
		t.Fatalf("ignore: %v", err)
	}
	if _, err := h.quality.Scan(ctx, h.projectID, scannedTypes); err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if _, err := h.quality.Unignore(ctx, h.projectID, ids, quality.OutOfRange); err != nil {
		t.Fatalf("unignore: %v", err)
	}

	final, err := h.quality.Scan(ctx, h.projectID, scannedTypes)
	if err != nil {
		t.Fatalf("final scan: %v", err)
	}

	if diff := cmp.Diff(base, final); diff != "" {
		t.Errorf("issue sets differ (-base +final):\n%s", diff)
	}

	c := h.counts(t)
	if c.Ignored != 0 || c.Flagged != 12 {
		t.Errorf("counts = %+v, want 0 ignored and 12 flagged", c)
	}
}

func TestIgnoreIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	ids := recordstest.IDs(h.seeded[:2])

	if _, err := h.quality.Ignore(ctx, h.projectID, ids, quality.MissingValue); err != nil {
		t.Fatalf("ignore: %v", err)
	}

	n, err := h.quality.Ignore(ctx, h.projectID, ids, quality.MissingValue)
	if err != nil {
		t.Fatalf("repeat ignore: %v", err)
	}
	if n != 0 {
		t.Errorf("repeat ignore changed %d decisions, want 0", n)
	}

	n, err = h.quality.Unignore(ctx, h.projectID, recordstest.IDs(h.seeded[50:52]), quality.MissingValue)
	if err != nil {
		t.Fatalf("unignore of undecided records: %v", err)
	}
	if n != 0 {
		t.Errorf("unignore changed %d decisions, want 0", n)
	}
}

func TestIgnoreRejectsBadInput(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	tests := []struct {
		name  string
		ids   []uuid.UUID
		issue quality.IssueType
		want  problem.Kind
	}{
		{"unknown issue type", recordstest.IDs(h.seeded[:1]), "leaf_color", problem.KindValidation},
		{"no records", nil, quality.MissingValue, problem.KindValidation},
		{"unknown record", []uuid.UUID{h.seeded[0].ID, uuid.New()}, quality.MissingValue, problem.KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.quality.Ignore(ctx, h.projectID, tt.ids, tt.issue)
			if got := problem.KindOf(err); got != tt.want {
				t.Errorf("kind = %s, want %s (err %v)", got, tt.want, err)
			}
		})
	}

	if c := h.counts(t); c.Ignored != 0 {
		t.Errorf("rejected ignores changed statuses: %+v", c)
	}
}

func TestDetailsOrderedWithReasons(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if _, err := h.quality.Scan(ctx, h.projectID, scannedTypes); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if _, err := h.quality.Ignore(ctx, h.projectID, recordstest.IDs(h.seeded[11:12]), quality.OutOfRange); err != nil {
		t.Fatalf("ignore: %v", err)
	}

	details, err := h.quality.Details(ctx, h.projectID, quality.OutOfRange)
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	if len(details) != 5 {
		t.Fatalf("details = %d, want 5", len(details))
	}

	for i, d := range details {
		if d.Record.RowNumber != 11+i {
			t.Errorf("details[%d] row = %d, want %d", i, d.Record.RowNumber, 11+i)
		}
		if d.Reason != "diameter 600 outside [1, 300]" {
			t.Errorf("details[%d] reason = %q", i, d.Reason)
		}
		if want := i == 1; d.Ignored != want {
			t.Errorf("details[%d] ignored = %v, want %v", i, d.Ignored, want)
		}
	}
}

func TestSummary(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	empty, err := h.quality.Summary(ctx, h.projectID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("summary before scan = %+v, want empty", empty)
	}

	h.quality.Scan(ctx, h.projectID, scannedTypes)
	h.quality.Ignore(ctx, h.projectID, recordstest.IDs(h.seeded[:2]), quality.MissingValue)

	summary, err := h.quality.Summary(ctx, h.projectID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}

	got := make(map[quality.IssueType][2]int)
	for _, s := range summary {
		got[s.IssueType] = [2]int{s.Affected, s.Ignored}
	}
	want := map[quality.IssueType][2]int{
		quality.MissingValue: {7, 2},
		quality.OutOfRange:   {5, 0},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateRecordRescans(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if _, err := h.quality.Scan(ctx, h.projectID, scannedTypes); err != nil {
		t.Fatalf("scan: %v", err)
	}

	target := h.seeded[0]
	rec, err := h.quality.UpdateRecord(ctx, h.projectID, target.ID, records.Patch{Diameter: recordstest.Float(21)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if rec.Status != records.StatusActive {
		t.Errorf("status = %s, want active", rec.Status)
	}

	details, _ := h.quality.Details(ctx, h.projectID, quality.MissingValue)
	if len(details) != 6 {
		t.Errorf("missing_value details = %d, want 6", len(details))
	}
}

func TestBulkUpdatePartialRescans(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if _, err := h.quality.Scan(ctx, h.projectID, scannedTypes); err != nil {
		t.Fatalf("scan: %v", err)
	}

	updates := []records.Update{
		{RecordID: h.seeded[10].ID, Patch: records.Patch{Diameter: recordstest.Float(30)}},
		{RecordID: h.seeded[11].ID, Patch: records.Patch{Diameter: recordstest.Float(-1)}},
	}

	n, err := h.quality.BulkUpdate(ctx, h.projectID, updates)
	if problem.KindOf(err) != problem.KindPartialFailure {
		t.Fatalf("kind = %s, want PartialFailure", problem.KindOf(err))
	}
	if n != 1 {
		t.Errorf("applied = %d, want 1", n)
	}

	details, _ := h.quality.Details(ctx, h.projectID, quality.OutOfRange)
	if len(details) != 4 {
		t.Errorf("out_of_range details = %d, want 4", len(details))
	}
}

func TestSpeciesMappingsResolveUnmappedCodes(t *testing.T) {
	ctx := context.Background()
	resolver := mappings{"SAL": "SHRO"}
	h := newHarness(t, resolver)

	h.records.Update(ctx, h.projectID, h.seeded[20].ID, records.Patch{SpeciesCode: strPtr("SAL")})
	h.records.Update(ctx, h.projectID, h.seeded[21].ID, records.Patch{SpeciesCode: strPtr("UNKNOWN")})

	issues, err := h.quality.Scan(ctx, h.projectID, []quality.IssueType{quality.SpeciesUnmapped})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	got := issues[quality.SpeciesUnmapped].Records
	if len(got) != 1 || got[0].RecordID != h.seeded[21].ID {
		t.Errorf("species_unmapped = %+v, want only row 21", got)
	}
}

func strPtr(s string) *string { return &s }
