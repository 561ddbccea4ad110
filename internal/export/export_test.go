package export_test

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/JaimeStill/mrv/internal/export"
	"github.com/JaimeStill/mrv/internal/pipeline"
	"github.com/JaimeStill/mrv/internal/projects"
	"github.com/JaimeStill/mrv/internal/records"
	"github.com/JaimeStill/mrv/internal/records/recordstest"
	"github.com/JaimeStill/mrv/pkg/problem"
	"github.com/JaimeStill/mrv/pkg/routes"
	"github.com/JaimeStill/mrv/pkg/storage"
)

type harness struct {
	export    export.System
	projectID uuid.UUID
}

// newHarness seeds 12 records of which the first 10 carry a biomass value
// and the last one is removed.
func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	projs := projects.NewMemory(recordstest.Logger(), recordstest.Pagination)
	p, err := projs.Create(ctx, projects.CreateCommand{Name: "Terai Block 7 / 2026"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}

	recs := recordstest.NewStore()
	recordstest.Seed(t, recs, p.ID, 12, func(i int, r *records.Record) {
		if i < 10 {
			r.Biomass = recordstest.Float(100 + float64(i))
		}
		if i == 11 {
			r.Status = records.StatusRemoved
		}
	})

	blobs := storage.NewMemory(recordstest.Logger())
	return &harness{
		export:    export.New(projs, recs, blobs, recordstest.Logger()),
		projectID: p.ID,
	}
}

func (h *harness) download(t *testing.T, name string) []byte {
	t.Helper()

	blob, err := h.export.Download(context.Background(), h.projectID, name)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer blob.Body.Close()

	data, err := io.ReadAll(blob.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return data
}

func TestExportCSV(t *testing.T) {
	h := newHarness(t)

	snap, err := h.export.Export(context.Background(), h.projectID, export.Params{})
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	if snap.Format != export.FormatCSV || snap.Rows != 11 || snap.Incomplete != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
	if !strings.HasPrefix(snap.Name, "terai-block-7-2026-tree-biometric-") || !strings.HasSuffix(snap.Name, ".csv") {
		t.Errorf("name = %q", snap.Name)
	}
	if want := "exports/" + h.projectID.String() + "/" + snap.Name; snap.Key != want {
		t.Errorf("key = %q, want %q", snap.Key, want)
	}

	table, err := csv.NewReader(strings.NewReader(string(h.download(t, snap.Name)))).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(table) != 12 {
		t.Fatalf("csv lines = %d, want 12", len(table))
	}
	if table[0][0] != "row_number" || table[0][12] != "biomass" {
		t.Errorf("header = %v", table[0])
	}
	if table[1][12] != "100" || table[11][12] != "" {
		t.Errorf("biomass cells = %q, %q", table[1][12], table[11][12])
	}
}

func TestExportXLSX(t *testing.T) {
	h := newHarness(t)

	snap, err := h.export.Export(context.Background(), h.projectID, export.Params{Format: export.FormatXLSX})
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	f, err := excelize.OpenReader(strings.NewReader(string(h.download(t, snap.Name))))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("TreeBiometrics")
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 12 {
		t.Fatalf("sheet rows = %d, want 12", len(rows))
	}
	if rows[0][1] != "plot_id" || rows[1][1] != "P01" {
		t.Errorf("plot column = %q, %q", rows[0][1], rows[1][1])
	}
}

func TestExportRejectsFormat(t *testing.T) {
	h := newHarness(t)

	_, err := h.export.Export(context.Background(), h.projectID, export.Params{Format: "pdf"})
	pe := problem.As(err)
	if pe.Kind != problem.KindValidation || len(pe.Fields) != 1 || pe.Fields[0].Field != "Format" {
		t.Errorf("err = %+v", pe)
	}
}

func TestExportUnknownProject(t *testing.T) {
	h := newHarness(t)

	_, err := h.export.Export(context.Background(), uuid.New(), export.Params{})
	if !errors.Is(err, projects.ErrNotFound) {
		t.Errorf("err = %v, want project not found", err)
	}
}

func TestDownloadErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := []struct {
		name string
		kind problem.Kind
	}{
		{"missing.csv", problem.KindNotFound},
		{"../secrets.csv", problem.KindValidation},
		{"", problem.KindValidation},
	}

	for _, tt := range tests {
		_, err := h.export.Download(ctx, h.projectID, tt.name)
		if got := problem.KindOf(err); got != tt.kind {
			t.Errorf("Download(%q) kind = %s, want %s", tt.name, got, tt.kind)
		}
	}
}

type completing struct {
	sys    export.System
	params json.RawMessage
}

func (c *completing) Advance(ctx context.Context, projectID uuid.UUID, stage pipeline.Stage, params json.RawMessage) (pipeline.Outcome, error) {
	c.params = params
	res, err := export.Runner(c.sys).Run(ctx, projectID, params)
	if err != nil {
		return pipeline.Outcome{}, err
	}
	return pipeline.Outcome{Kind: pipeline.OutcomeCompleted, Stage: stage, Result: &res}, nil
}

func TestHandlerExportAndDownload(t *testing.T) {
	h := newHarness(t)
	adv := &completing{sys: h.export}

	mux := http.NewServeMux()
	routes.Register(mux, h.export.Handler(adv).Routes())
	base := "/projects/" + h.projectID.String()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, base+"/export-tree-biometric-calc?format=xlsx", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("export status = %d: %s", rec.Code, rec.Body)
	}
	if string(adv.params) != `{"format":"xlsx"}` {
		t.Errorf("params = %s", adv.params)
	}

	var out struct {
		Result struct {
			Data export.Snapshot `json:"data"`
		} `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, base+"/exports/"+out.Result.Data.Name, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("download status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != export.FormatXLSX.ContentType() {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), out.Result.Data.Name) {
		t.Errorf("disposition = %q", rec.Header().Get("Content-Disposition"))
	}
}
