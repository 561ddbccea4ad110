package imports

import (
	"errors"

	"github.com/JaimeStill/mrv/pkg/problem"
)

var (
	ErrNotFound   = errors.New("import batch not found")
	ErrDuplicate  = errors.New("import batch already exists")
	ErrNotStaged  = errors.New("import batch is not staged")
	ErrNoneStaged = errors.New("project has no staged import batch")
)

func init() {
	problem.Register(problem.KindNotFound, ErrNotFound, ErrNoneStaged)
	problem.Register(problem.KindConflict, ErrDuplicate, ErrNotStaged)
}

// MapHTTPStatus maps import domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	return problem.StatusOf(err)
}
