package assignment

import (
	"errors"

	"github.com/JaimeStill/mrv/pkg/problem"
)

// ErrNotAssigned is returned by stage runners when no record of the
// project could be given a model.
var ErrNotAssigned = errors.New("no records could be assigned a model")

func init() {
	problem.Register(problem.KindValidation, ErrNotAssigned)
}

// MapHTTPStatus maps assignment domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	return problem.StatusOf(err)
}
