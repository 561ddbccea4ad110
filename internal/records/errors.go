package records

import (
	"errors"

	"github.com/JaimeStill/mrv/pkg/problem"
)

// Domain errors for record operations.
var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicate      = errors.New("record already exists")
	ErrVersionChanged = errors.New("record was modified concurrently")
	ErrRemoved        = errors.New("record has been removed")
	ErrEmptyPatch     = errors.New("patch changes no field")
)

func init() {
	problem.Register(problem.KindNotFound, ErrNotFound)
	problem.Register(problem.KindConflict, ErrDuplicate, ErrVersionChanged, ErrRemoved)
	problem.Register(problem.KindValidation, ErrEmptyPatch)
}

// MapHTTPStatus maps record domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	return problem.StatusOf(err)
}
