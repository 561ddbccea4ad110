package records

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/JaimeStill/mrv/pkg/query"
	"github.com/JaimeStill/mrv/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "records", "r").
	Project("id", "ID").
	Project("project_id", "ProjectID").
	Project("import_id", "ImportID").
	Project("row_number", "RowNumber").
	Project("plot_id", "PlotID").
	Project("tree_number", "TreeNumber").
	Project("species_code", "SpeciesCode").
	Project("diameter", "Diameter").
	Project("height", "Height").
	Project("physiography", "Physiography").
	Project("slope_percent", "SlopePercent").
	Project("attributes", "Attributes").
	Project("hd_model_id", "HDModelID").
	Project("predicted_height", "PredictedHeight").
	Project("slanted_height", "SlantedHeight").
	Project("volume", "Volume").
	Project("volume_ratio", "VolumeRatio").
	Project("allometric_model_id", "AllometricModelID").
	Project("biomass", "Biomass").
	Project("status", "Status").
	Project("version", "Version").
	Project("removed_at", "RemovedAt").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt")

var defaultSort = query.SortField{Field: "RowNumber"}

// Filters narrows record listings. Nil fields are ignored.
type Filters struct {
	Status       *string `json:"status,omitempty"`
	PlotID       *string `json:"plot_id,omitempty"`
	SpeciesCode  *string `json:"species_code,omitempty"`
	Physiography *string `json:"physiography,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("Status", f.Status).
		WhereEquals("PlotID", f.PlotID).
		WhereEquals("SpeciesCode", f.SpeciesCode).
		WhereEquals("Physiography", f.Physiography)
}

func (f Filters) match(r *Record) bool {
	if f.Status != nil && string(r.Status) != *f.Status {
		return false
	}
	if f.PlotID != nil && r.PlotID != *f.PlotID {
		return false
	}
	if f.SpeciesCode != nil && r.SpeciesCode != *f.SpeciesCode {
		return false
	}
	if f.Physiography != nil && r.Physiography != *f.Physiography {
		return false
	}
	return true
}

func matchSearch(r *Record, search *string) bool {
	if search == nil || *search == "" {
		return true
	}
	s := strings.ToLower(*search)
	return strings.Contains(strings.ToLower(r.PlotID), s) ||
		strings.Contains(strings.ToLower(r.SpeciesCode), s) ||
		strings.Contains(strings.ToLower(r.Physiography), s)
}

// FiltersFromQuery extracts filter values from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if s := values.Get("status"); s != "" {
		f.Status = &s
	}
	if p := values.Get("plot_id"); p != "" {
		f.PlotID = &p
	}
	if sc := values.Get("species_code"); sc != "" {
		f.SpeciesCode = &sc
	}
	if ph := values.Get("physiography"); ph != "" {
		f.Physiography = &ph
	}

	return f
}

func scanRecord(s repository.Scanner) (Record, error) {
	var r Record
	var attrs []byte
	err := s.Scan(
		&r.ID,
		&r.ProjectID,
		&r.ImportID,
		&r.RowNumber,
		&r.PlotID,
		&r.TreeNumber,
		&r.SpeciesCode,
		&r.Diameter,
		&r.Height,
		&r.Physiography,
		&r.SlopePercent,
		&attrs,
		&r.HDModelID,
		&r.PredictedHeight,
		&r.SlantedHeight,
		&r.Volume,
		&r.VolumeRatio,
		&r.AllometricModelID,
		&r.Biomass,
		&r.Status,
		&r.Version,
		&r.RemovedAt,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return r, err
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &r.Attributes); err != nil {
			return r, err
		}
	}
	return r, nil
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
