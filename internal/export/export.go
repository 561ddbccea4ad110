// Package export writes the tree-biometric table of a project to blob
// storage as a downloadable CSV or XLSX snapshot.
package export

import (
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/mrv/internal/records"
	"github.com/JaimeStill/mrv/pkg/formatting"
)

const measureDecimals = 4

// Format is the file format of a snapshot.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// Params are the params of the export stage.
type Params struct {
	Format Format `json:"format,omitempty" validate:"omitempty,oneof=csv xlsx"`
}

// Snapshot describes a written export.
type Snapshot struct {
	ProjectID uuid.UUID `json:"project_id"`
	Name      string    `json:"name"`
	Key       string    `json:"key"`
	Format    Format    `json:"format"`
	Rows      int       `json:"rows"`
	// Incomplete counts exported records without a biomass value.
	Incomplete int       `json:"incomplete"`
	CreatedAt  time.Time `json:"created_at"`
}

var header = []string{
	"row_number",
	"plot_id",
	"tree_number",
	"species_code",
	"physiography",
	"status",
	"diameter",
	"height",
	"predicted_height",
	"slanted_height",
	"volume",
	"volume_ratio",
	"biomass",
	"hd_model_id",
	"allometric_model_id",
}

// row returns the cells of a record in header order. Missing values are nil.
func row(r records.Record) []any {
	return []any{
		r.RowNumber,
		r.PlotID,
		r.TreeNumber,
		r.SpeciesCode,
		r.Physiography,
		string(r.Status),
		measure(r.Diameter),
		measure(r.Height),
		measure(r.PredictedHeight),
		measure(r.SlantedHeight),
		measure(r.Volume),
		measure(r.VolumeRatio),
		measure(r.Biomass),
		deref(r.HDModelID),
		deref(r.AllometricModelID),
	}
}

// measure rounds a measured value to measureDecimals places.
func measure(v *float64) any {
	if v == nil {
		return nil
	}
	return formatting.Round(*v, measureDecimals)
}

func deref[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}
