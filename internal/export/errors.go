package export

import (
	"errors"

	"github.com/JaimeStill/mrv/pkg/problem"
)

var (
	ErrNotFound    = errors.New("export not found")
	ErrInvalidName = errors.New("invalid export name")
)

func init() {
	problem.Register(problem.KindNotFound, ErrNotFound)
	problem.Register(problem.KindValidation, ErrInvalidName)
}

// MapHTTPStatus maps export domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	return problem.StatusOf(err)
}
