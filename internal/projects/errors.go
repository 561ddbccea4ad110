package projects

import (
	"errors"

	"github.com/JaimeStill/mrv/pkg/problem"
)

// Domain errors for project operations.
var (
	ErrNotFound  = errors.New("project not found")
	ErrDuplicate = errors.New("project already exists")
)

func init() {
	problem.Register(problem.KindNotFound, ErrNotFound)
	problem.Register(problem.KindConflict, ErrDuplicate)
}

// MapHTTPStatus maps project domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	return problem.StatusOf(err)
}
