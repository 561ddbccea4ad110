// Package imports stages raw inventory datasets (CSV or XLSX) as batches
// that can be previewed against a project's records and then committed to
// the record store.
package imports

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/mrv/internal/records"
)

// Format is the file format of an uploaded dataset.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// FormatOf derives the format from a filename extension.
func FormatOf(filename string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return FormatCSV, true
	case ".xlsx":
		return FormatXLSX, true
	}
	return "", false
}

// Status is the lifecycle state of a batch.
type Status string

const (
	StatusStaged    Status = "staged"
	StatusCommitted Status = "committed"
	StatusDeleted   Status = "deleted"
)

// Batch is one uploaded dataset.
type Batch struct {
	ID          uuid.UUID  `json:"id"`
	ProjectID   uuid.UUID  `json:"project_id"`
	Filename    string     `json:"filename"`
	Format      Format     `json:"format"`
	StorageKey  string     `json:"storage_key"`
	Status      Status     `json:"status"`
	RowCount    int        `json:"row_count"`
	ErrorCount  int        `json:"error_count"`
	CreatedAt   time.Time  `json:"created_at"`
	CommittedAt *time.Time `json:"committed_at,omitempty"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// Row is one parsed data row of a batch. Rows with a parse Error are not
// committed.
type Row struct {
	RowNumber    int               `json:"row_number"`
	PlotID       string            `json:"plot_id"`
	TreeNumber   int               `json:"tree_number"`
	SpeciesCode  string            `json:"species_code"`
	Diameter     *float64          `json:"diameter"`
	Height       *float64          `json:"height"`
	Physiography string            `json:"physiography"`
	SlopePercent *float64          `json:"slope_percent"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// Record converts the row into a new record of the batch's project.
func (r Row) Record(b *Batch) records.Record {
	return records.Record{
		ProjectID:    b.ProjectID,
		ImportID:     b.ID,
		RowNumber:    r.RowNumber,
		PlotID:       r.PlotID,
		TreeNumber:   r.TreeNumber,
		SpeciesCode:  r.SpeciesCode,
		Diameter:     r.Diameter,
		Height:       r.Height,
		Physiography: r.Physiography,
		SlopePercent: r.SlopePercent,
		Attributes:   r.Attributes,
	}
}

// RowError reports a row that failed to parse.
type RowError struct {
	RowNumber int    `json:"row_number"`
	Error     string `json:"error"`
}

// Preview compares a staged batch with the project's active records.
type Preview struct {
	Batch   Batch `json:"batch"`
	Rows    int   `json:"rows"`
	Valid   int   `json:"valid"`
	Invalid int   `json:"invalid"`
	// Added counts valid rows whose (plot, tree) is new to the project.
	Added int `json:"added"`
	// Matched counts valid rows whose (plot, tree) already exists.
	Matched int        `json:"matched"`
	Errors  []RowError `json:"errors,omitempty"`
	Sample  []Row      `json:"sample,omitempty"`
}

// StageCommand registers an uploaded blob as a new batch.
type StageCommand struct {
	StorageKey string `json:"storage_key" validate:"required"`
	Filename   string `json:"filename" validate:"required"`
}
