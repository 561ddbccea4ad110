// Package recordstest builds record fixtures for tests of packages that
// operate on the record store.
package recordstest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"

	"github.com/JaimeStill/mrv/internal/records"
	"github.com/JaimeStill/mrv/pkg/pagination"
)

// Logger discards all output.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Pagination is the pagination config used by fixtures.
var Pagination = pagination.Config{DefaultPageSize: 20, MaxPageSize: 200}

// NewStore returns an empty in-memory record store.
func NewStore() records.System {
	return records.NewMemory(Logger(), Pagination)
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Record returns a valid record for row i of a project.
func Record(projectID, importID uuid.UUID, i int) records.Record {
	d := 10 + float64(i%40)
	h := 8 + float64(i%40)/2
	return records.Record{
		ID:           uuid.New(),
		ProjectID:    projectID,
		ImportID:     importID,
		RowNumber:    i + 1,
		PlotID:       fmt.Sprintf("P%02d", i/10+1),
		TreeNumber:   i%10 + 1,
		SpeciesCode:  "SHRO",
		Diameter:     Float(d),
		Height:       Float(h),
		Physiography: "TERAI",
		SlopePercent: Float(float64(i % 30)),
	}
}

// Seed inserts n records for a project. mutate, when non-nil, adjusts each
// record before insertion.
func Seed(t testing.TB, sys records.System, projectID uuid.UUID, n int, mutate func(i int, r *records.Record)) []records.Record {
	t.Helper()

	importID := uuid.New()
	recs := make([]records.Record, n)
	for i := range recs {
		recs[i] = Record(projectID, importID, i)
		if mutate != nil {
			mutate(i, &recs[i])
		}
	}

	if _, err := sys.Insert(context.Background(), recs); err != nil {
		t.Fatalf("seed records: %v", err)
	}
	return recs
}

// IDs returns the ids of recs.
func IDs(recs []records.Record) []uuid.UUID {
	ids := make([]uuid.UUID, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	return ids
}
