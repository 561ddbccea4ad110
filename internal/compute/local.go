package compute

import (
	"context"
	"fmt"
	"math"
)

// Model forms evaluated by the local engine.
const (
	FormNaslund         = "naslund"
	FormMichailoff      = "michailoff"
	FormPower           = "power"
	FormSlopeCorrection = "slope_correction"
	FormVolume          = "volume"
	FormChave2014       = "chave2014"
	FormVolumeDensity   = "volume_density"
)

// breastHeight is the measurement height of DBH in metres.
const breastHeight = 1.3

type form struct {
	params []string
	eval   func(p map[string]float64, in Inputs) (float64, error)
}

var forms = map[string]form{
	// h = 1.3 + d² / (a + b·d)²
	FormNaslund: {
		params: []string{"a", "b"},
		eval: func(p map[string]float64, in Inputs) (float64, error) {
			if in.Diameter <= 0 {
				return 0, fmt.Errorf("diameter must be positive")
			}
			den := p["a"] + p["b"]*in.Diameter
			return breastHeight + (in.Diameter*in.Diameter)/(den*den), nil
		},
	},
	// h = 1.3 + a·exp(-b/d)
	FormMichailoff: {
		params: []string{"a", "b"},
		eval: func(p map[string]float64, in Inputs) (float64, error) {
			if in.Diameter <= 0 {
				return 0, fmt.Errorf("diameter must be positive")
			}
			return breastHeight + p["a"]*math.Exp(-p["b"]/in.Diameter), nil
		},
	},
	// y = a·d^b
	FormPower: {
		params: []string{"a", "b"},
		eval: func(p map[string]float64, in Inputs) (float64, error) {
			if in.Diameter <= 0 {
				return 0, fmt.Errorf("diameter must be positive")
			}
			return p["a"] * math.Pow(in.Diameter, p["b"]), nil
		},
	},
	// Length along the stem of a tree standing on a slope.
	FormSlopeCorrection: {
		eval: func(_ map[string]float64, in Inputs) (float64, error) {
			if in.Height <= 0 {
				return 0, fmt.Errorf("height must be positive")
			}
			s := in.SlopePercent / 100
			return in.Height * math.Sqrt(1+s*s), nil
		},
	},
	// V = f·BA·h with BA in m² from DBH in cm.
	FormVolume: {
		eval: func(_ map[string]float64, in Inputs) (float64, error) {
			if in.Diameter <= 0 || in.Height <= 0 {
				return 0, fmt.Errorf("diameter and height must be positive")
			}
			if in.FormFactor <= 0 {
				return 0, fmt.Errorf("form factor must be positive")
			}
			return in.FormFactor * BasalArea(in.Diameter) * in.Height, nil
		},
	},
	// AGB (kg) = 0.0673·(ρ·D²·H)^0.976
	FormChave2014: {
		eval: func(_ map[string]float64, in Inputs) (float64, error) {
			if in.Diameter <= 0 || in.Height <= 0 || in.WoodDensity <= 0 {
				return 0, fmt.Errorf("diameter, height, and wood density must be positive")
			}
			return 0.0673 * math.Pow(in.WoodDensity*in.Diameter*in.Diameter*in.Height, 0.976), nil
		},
	},
	// AGB (kg) = V·ρ·1000·BEF
	FormVolumeDensity: {
		params: []string{"bef"},
		eval: func(p map[string]float64, in Inputs) (float64, error) {
			if in.Volume <= 0 || in.WoodDensity <= 0 {
				return 0, fmt.Errorf("volume and wood density must be positive")
			}
			return in.Volume * in.WoodDensity * 1000 * p["bef"], nil
		},
	},
}

// BasalArea returns the cross-section area in m² of a stem with the given
// diameter in cm.
func BasalArea(diameter float64) float64 {
	r := diameter / 200
	return math.Pi * r * r
}

type local struct{}

// NewLocal returns an engine evaluating the built-in model forms in process.
func NewLocal() Engine {
	return local{}
}

func (local) Evaluate(ctx context.Context, model Model, inputs []Inputs) ([]float64, error) {
	f, ok := forms[model.Form]
	if !ok {
		return nil, Unavailable("model %s: unknown form %q", model.ID, model.Form)
	}
	for _, p := range f.params {
		if _, ok := model.Params[p]; !ok {
			return nil, InvalidInput("model %s: missing parameter %q", model.ID, p)
		}
	}

	out := make([]float64, len(inputs))
	for i, in := range inputs {
		if i%256 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		v, err := f.eval(model.Params, in)
		if err != nil {
			return nil, InvalidInput("model %s, input %d: %v", model.ID, i, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, InvalidInput("model %s, input %d: result is not finite", model.ID, i)
		}
		out[i] = v
	}
	return out, nil
}
