package jobs

import (
	"errors"

	"github.com/JaimeStill/mrv/pkg/problem"
)

// Domain errors for job operations.
var (
	ErrNotFound  = errors.New("job not found")
	ErrNoHandler = errors.New("no handler registered for stage")
	ErrQueueFull = errors.New("job queue is full")
	ErrDuplicate = errors.New("job already exists")
)

func init() {
	problem.Register(problem.KindNotFound, ErrNotFound)
	problem.Register(problem.KindValidation, ErrNoHandler)
	problem.Register(problem.KindConflict, ErrDuplicate)
}

// MapHTTPStatus maps job domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	return problem.StatusOf(err)
}
