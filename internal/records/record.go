package records

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle flag of a record. StatusRemoved is terminal.
type Status string

const (
	StatusActive  Status = "active"
	StatusFlagged Status = "flagged"
	StatusIgnored Status = "ignored"
	StatusRemoved Status = "removed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusFlagged, StatusIgnored, StatusRemoved:
		return true
	}
	return false
}

// ActiveSet lists the statuses that make up a project's active record set.
var ActiveSet = []Status{StatusActive, StatusFlagged, StatusIgnored}

// Record is one tree observation of a project's inventory.
type Record struct {
	ID           uuid.UUID         `json:"id"`
	ProjectID    uuid.UUID         `json:"project_id"`
	ImportID     uuid.UUID         `json:"import_id"`
	RowNumber    int               `json:"row_number"`
	PlotID       string            `json:"plot_id"`
	TreeNumber   int               `json:"tree_number"`
	SpeciesCode  string            `json:"species_code"`
	Diameter     *float64          `json:"diameter"`
	Height       *float64          `json:"height"`
	Physiography string            `json:"physiography"`
	SlopePercent *float64          `json:"slope_percent"`
	Attributes   map[string]string `json:"attributes,omitempty"`

	HDModelID         *string  `json:"hd_model_id"`
	PredictedHeight   *float64 `json:"predicted_height"`
	SlantedHeight     *float64 `json:"slanted_height"`
	Volume            *float64 `json:"volume"`
	VolumeRatio       *float64 `json:"volume_ratio"`
	AllometricModelID *string  `json:"allometric_model_id"`
	Biomass           *float64 `json:"biomass"`

	Status    Status     `json:"status"`
	Version   int        `json:"version"`
	RemovedAt *time.Time `json:"removed_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// WorkingHeight is the measured height when present, else the predicted height.
func (r *Record) WorkingHeight() *float64 {
	if r.Height != nil {
		return r.Height
	}
	return r.PredictedHeight
}

// Patch is a partial correction of a record's raw fields. Nil fields are
// left unchanged. IfVersion, when set, must equal the stored version.
type Patch struct {
	PlotID       *string  `json:"plot_id,omitempty" validate:"omitempty,min=1"`
	TreeNumber   *int     `json:"tree_number,omitempty" validate:"omitempty,gt=0"`
	SpeciesCode  *string  `json:"species_code,omitempty" validate:"omitempty,min=1"`
	Diameter     *float64 `json:"diameter,omitempty" validate:"omitempty,gt=0,lte=500"`
	Height       *float64 `json:"height,omitempty" validate:"omitempty,gt=0,lte=120"`
	Physiography *string  `json:"physiography,omitempty" validate:"omitempty,min=1"`
	SlopePercent *float64 `json:"slope_percent,omitempty" validate:"omitempty,gte=0,lte=100"`
	IfVersion    *int     `json:"if_version,omitempty"`
}

// Empty reports whether the patch changes no field.
func (p Patch) Empty() bool {
	return p.PlotID == nil && p.TreeNumber == nil && p.SpeciesCode == nil &&
		p.Diameter == nil && p.Height == nil && p.Physiography == nil && p.SlopePercent == nil
}

// Apply writes the patch's non-nil fields onto r.
func (p Patch) Apply(r *Record) {
	if p.PlotID != nil {
		r.PlotID = *p.PlotID
	}
	if p.TreeNumber != nil {
		r.TreeNumber = *p.TreeNumber
	}
	if p.SpeciesCode != nil {
		r.SpeciesCode = *p.SpeciesCode
	}
	if p.Diameter != nil {
		r.Diameter = p.Diameter
	}
	if p.Height != nil {
		r.Height = p.Height
	}
	if p.Physiography != nil {
		r.Physiography = *p.Physiography
	}
	if p.SlopePercent != nil {
		r.SlopePercent = p.SlopePercent
	}
}

// Update pairs a record id with its patch in a bulk update.
type Update struct {
	RecordID uuid.UUID `json:"record_id"`
	Patch    Patch     `json:"patch"`
}

// Derived carries stage outputs for one record. Nil fields are left unchanged.
type Derived struct {
	RecordID          uuid.UUID
	HDModelID         *string
	PredictedHeight   *float64
	SlantedHeight     *float64
	Volume            *float64
	VolumeRatio       *float64
	AllometricModelID *string
	Biomass           *float64
}

func (d Derived) apply(r *Record) {
	if d.HDModelID != nil {
		r.HDModelID = d.HDModelID
	}
	if d.PredictedHeight != nil {
		r.PredictedHeight = d.PredictedHeight
	}
	if d.SlantedHeight != nil {
		r.SlantedHeight = d.SlantedHeight
	}
	if d.Volume != nil {
		r.Volume = d.Volume
	}
	if d.VolumeRatio != nil {
		r.VolumeRatio = d.VolumeRatio
	}
	if d.AllometricModelID != nil {
		r.AllometricModelID = d.AllometricModelID
	}
	if d.Biomass != nil {
		r.Biomass = d.Biomass
	}
}

// Counts summarizes a project's records by status.
type Counts struct {
	Total   int `json:"total"`
	Active  int `json:"active"`
	Flagged int `json:"flagged"`
	Ignored int `json:"ignored"`
	Removed int `json:"removed"`
}

// ActiveSet is the number of records not removed.
func (c Counts) ActiveSet() int {
	return c.Active + c.Flagged + c.Ignored
}

func (c *Counts) add(s Status, n int) {
	c.Total += n
	switch s {
	case StatusActive:
		c.Active += n
	case StatusFlagged:
		c.Flagged += n
	case StatusIgnored:
		c.Ignored += n
	case StatusRemoved:
		c.Removed += n
	}
}
