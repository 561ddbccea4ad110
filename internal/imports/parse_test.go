package imports_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"

	"github.com/JaimeStill/mrv/internal/imports"
	"github.com/JaimeStill/mrv/pkg/problem"
)

func float(v float64) *float64 { return &v }

func TestFormatOf(t *testing.T) {
	tests := []struct {
		name string
		want imports.Format
		ok   bool
	}{
		{"trees.csv", imports.FormatCSV, true},
		{"Trees.XLSX", imports.FormatXLSX, true},
		{"trees.xls", "", false},
		{"trees", "", false},
	}

	for _, tt := range tests {
		got, ok := imports.FormatOf(tt.name)
		if got != tt.want || ok != tt.ok {
			t.Errorf("FormatOf(%q) = %q, %v; want %q, %v", tt.name, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseCSV(t *testing.T) {
	data := strings.Join([]string{
		"",
		"Plot ID,Tree No,Species,DBH,Height,Physiography,Slope,Crown Class",
		"P01,1,SHRO,24.5,18,TERAI,4,dominant",
		"P01,2,sal,1,200.0,,,",
		",,,,,,,",
		"P02,x,SHRO,abc,,HILL,,",
	}, "\n")

	rows, err := imports.Parse(imports.FormatCSV, strings.NewReader(data))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	want := []imports.Row{
		{
			RowNumber:    1,
			PlotID:       "P01",
			TreeNumber:   1,
			SpeciesCode:  "SHRO",
			Diameter:     float(24.5),
			Height:       float(18),
			Physiography: "TERAI",
			SlopePercent: float(4),
			Attributes:   map[string]string{"crown_class": "dominant"},
		},
		{
			RowNumber:   2,
			PlotID:      "P01",
			TreeNumber:  2,
			SpeciesCode: "sal",
			Diameter:    float(1),
			Height:      float(200),
		},
		{
			RowNumber:    3,
			PlotID:       "P02",
			SpeciesCode:  "SHRO",
			Physiography: "HILL",
			Error:        `tree_number "x" is not an integer; diameter "abc" is not a number`,
		},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestParseRejectsNonFinite(t *testing.T) {
	data := strings.Join([]string{
		"plot_id,tree_number,species_code,diameter,height,physiography,slope_percent",
		"P1,1,SR,NaN,12,hill,",
		"P1,2,SR,20,+Inf,hill,",
		"P1,3,SR,20,12,hill,-infinity",
		"P1,4,SR,20,12,hill,8",
	}, "\n")

	rows, err := imports.Parse(imports.FormatCSV, strings.NewReader(data))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want 4", len(rows))
	}

	wantErrors := []string{
		`diameter "NaN" is not a number`,
		`height "+Inf" is not a number`,
		`slope_percent "-infinity" is not a number`,
		"",
	}
	for i, want := range wantErrors {
		if rows[i].Error != want {
			t.Errorf("row %d error = %q, want %q", i+1, rows[i].Error, want)
		}
	}
	if rows[0].Diameter != nil || rows[1].Height != nil || rows[2].SlopePercent != nil {
		t.Error("non-finite values must not be kept")
	}
}

func TestParseMissingColumns(t *testing.T) {
	_, err := imports.Parse(imports.FormatCSV, strings.NewReader("plot,species\nP01,SHRO\n"))

	pe := problem.As(err)
	if pe.Kind != problem.KindValidation {
		t.Fatalf("kind = %s, want %s", pe.Kind, problem.KindValidation)
	}

	var fields []string
	for _, f := range pe.Fields {
		fields = append(fields, f.Field)
	}
	if diff := cmp.Diff([]string{"tree_number", "diameter"}, fields); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
}

func TestParseEmpty(t *testing.T) {
	_, err := imports.Parse(imports.FormatCSV, strings.NewReader("\n\n"))
	if problem.KindOf(err) != problem.KindValidation {
		t.Errorf("err = %v, want validation", err)
	}
}

func xlsxDataset(t *testing.T, rows [][]any) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

func TestParseXLSX(t *testing.T) {
	data := xlsxDataset(t, [][]any{
		{"plot_id", "tree_number", "species_code", "diameter", "height"},
		{"P01", 1, "SHRO", 30.2, 21.5},
		{"P01", 2, "TEGR", 12, nil},
	})

	rows, err := imports.Parse(imports.FormatXLSX, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	want := []imports.Row{
		{RowNumber: 1, PlotID: "P01", TreeNumber: 1, SpeciesCode: "SHRO", Diameter: float(30.2), Height: float(21.5)},
		{RowNumber: 2, PlotID: "P01", TreeNumber: 2, SpeciesCode: "TEGR", Diameter: float(12)},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestParseXLSXUnreadable(t *testing.T) {
	_, err := imports.Parse(imports.FormatXLSX, strings.NewReader("not a workbook"))
	if problem.KindOf(err) != problem.KindValidation {
		t.Errorf("err = %v, want validation", err)
	}
}
