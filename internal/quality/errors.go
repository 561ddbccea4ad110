package quality

import (
	"errors"

	"github.com/JaimeStill/mrv/pkg/problem"
)

// ErrUnknownRecords is returned when an ignore decision names records outside
// the project's active set.
var ErrUnknownRecords = errors.New("records not found in project")

func init() {
	problem.Register(problem.KindNotFound, ErrUnknownRecords)
}

// MapHTTPStatus maps quality domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	return problem.StatusOf(err)
}
