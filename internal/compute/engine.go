// Package compute evaluates numerical forest models and runs the
// compute-heavy pipeline stages over a project's records.
package compute

import (
	"context"
)

// Model is a parameterized model form.
type Model struct {
	ID     string             `json:"id"`
	Form   string             `json:"form"`
	Params map[string]float64 `json:"params,omitempty"`
}

// Inputs are the per-record values a model form may read. Unused fields
// are ignored by the form.
type Inputs struct {
	Diameter     float64 `json:"diameter"`
	Height       float64 `json:"height,omitempty"`
	SlopePercent float64 `json:"slope_percent,omitempty"`
	WoodDensity  float64 `json:"wood_density,omitempty"`
	FormFactor   float64 `json:"form_factor,omitempty"`
	Volume       float64 `json:"volume,omitempty"`
}

// Engine evaluates a model over a batch of inputs. The result has one value
// per input, in order.
type Engine interface {
	Evaluate(ctx context.Context, model Model, inputs []Inputs) ([]float64, error)
}
