// Package assignment maps a project's species codes to the reference
// catalog and assigns height-diameter and allometric models to its records.
package assignment

import (
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/mrv/internal/compute"
)

// SpeciesMapping maps a species code found in a project's data to a
// reference species code.
type SpeciesMapping struct {
	SourceCode  string    `json:"source_code" validate:"required"`
	SpeciesCode string    `json:"species_code"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AnySpecies in an HD assignment applies the model to every species of the
// physiographic zone that has no species-specific assignment.
const AnySpecies = "*"

// HDAssignment selects the HD model for records of one physiography and
// species.
type HDAssignment struct {
	Physiography string `json:"physiography" validate:"required"`
	SpeciesCode  string `json:"species_code" validate:"required"`
	ModelID      string `json:"model_id" validate:"required"`
}

// AllometricAssignment selects the allometric model for records of one
// species.
type AllometricAssignment struct {
	SpeciesCode string `json:"species_code" validate:"required"`
	ModelID     string `json:"model_id" validate:"required"`
}

// Outcome summarizes one assignment run.
type Outcome struct {
	Assigned   int `json:"assigned"`
	Unassigned int `json:"unassigned"`
}

// PhysiographyOption is a physiographic zone with the number of active
// records the project has in it.
type PhysiographyOption struct {
	Code           string `json:"code"`
	Name           string `json:"name"`
	DefaultHDModel string `json:"default_hd_model"`
	Records        int    `json:"records"`
}

// PhysiographySummary reports HD assignment coverage for one zone.
type PhysiographySummary struct {
	Physiography string         `json:"physiography"`
	Name         string         `json:"name"`
	DefaultModel string         `json:"default_model"`
	Records      int            `json:"records"`
	Assigned     int            `json:"assigned"`
	Models       map[string]int `json:"models"`
}

// AllometricStatus reports allometric assignment coverage for one species.
type AllometricStatus struct {
	SpeciesCode   string  `json:"species_code"`
	ReferenceCode string  `json:"reference_code,omitempty"`
	Records       int     `json:"records"`
	Assigned      int     `json:"assigned"`
	ModelID       *string `json:"model_id"`
	DefaultModel  *string `json:"default_model"`
}

// Point is one observation of the height-diameter relation.
type Point struct {
	RecordID        uuid.UUID `json:"record_id"`
	Physiography    string    `json:"physiography"`
	SpeciesCode     string    `json:"species_code"`
	Diameter        float64   `json:"diameter"`
	Height          *float64  `json:"height"`
	PredictedHeight *float64  `json:"predicted_height"`
}

// HDRelation is a project's height-diameter data with a power curve fitted
// to the measured heights.
type HDRelation struct {
	Points []Point            `json:"points"`
	Fit    *compute.PowerFit `json:"fit"`
}
