package pipeline

import (
	"errors"

	"github.com/JaimeStill/mrv/pkg/problem"
)

var (
	// ErrStageBusy reports an advance that waited too long for another
	// advance of the same project stage.
	ErrStageBusy = errors.New("stage is being advanced by another request")
	// ErrJobsActive refuses record-set mutations while async work is in
	// flight for the project.
	ErrJobsActive = errors.New("project has jobs in flight")
	ErrNoRunner   = errors.New("no runner registered for stage")
)

func init() {
	problem.Register(problem.KindConflict, ErrStageBusy, ErrJobsActive)
}

// MapHTTPStatus maps pipeline errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	return problem.StatusOf(err)
}
