package records

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/JaimeStill/mrv/pkg/problem"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks a patch's field constraints.
func (p Patch) Validate() error {
	if p.Empty() {
		return problem.Invalid(ErrEmptyPatch.Error())
	}
	if err := validate.Struct(p); err != nil {
		return problem.FromValidator(err)
	}
	return nil
}

// merged is the subset of a record that must hold after a patch is applied.
type merged struct {
	PlotID      string   `json:"plot_id" validate:"required"`
	SpeciesCode string   `json:"species_code" validate:"required"`
	Diameter    *float64 `json:"diameter" validate:"omitempty,gt=0,lte=500"`
	Height      *float64 `json:"height" validate:"omitempty,gt=0,lte=120"`
}

// validateMerged checks the record that results from applying a patch.
func validateMerged(r *Record) error {
	m := merged{
		PlotID:      r.PlotID,
		SpeciesCode: r.SpeciesCode,
		Diameter:    r.Diameter,
		Height:      r.Height,
	}
	if err := validate.Struct(m); err != nil {
		return problem.FromValidator(err)
	}
	return nil
}

// failureReason renders a validation error as the per-record reason of a
// partial failure.
func failureReason(err error) string {
	pe := problem.As(err)
	if len(pe.Fields) == 0 {
		return pe.Detail
	}
	parts := make([]string, len(pe.Fields))
	for i, f := range pe.Fields {
		parts[i] = f.Field + " " + f.Message
	}
	return strings.Join(parts, "; ")
}
