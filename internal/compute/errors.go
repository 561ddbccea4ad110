package compute

import (
	"errors"
	"fmt"

	"github.com/JaimeStill/mrv/pkg/problem"
)

// Failure reasons carried by Error.
const (
	ReasonTimeout          = "Timeout"
	ReasonInvalidInput     = "InvalidInput"
	ReasonModelUnavailable = "ModelUnavailable"
)

// Error is a model evaluation failure with a structured reason.
type Error struct {
	reason string
	detail string
	err    error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.reason, e.detail, e.err)
	}
	return fmt.Sprintf("%s: %s", e.reason, e.detail)
}

func (e *Error) Unwrap() error      { return e.err }
func (e *Error) Reason() string     { return e.reason }
func (e *Error) Kind() problem.Kind { return problem.KindComputationFailed }

// Unavailable reports a model that cannot be evaluated right now or at all.
func Unavailable(format string, args ...any) *Error {
	return &Error{reason: ReasonModelUnavailable, detail: fmt.Sprintf(format, args...)}
}

// InvalidInput reports inputs or parameters a model rejects.
func InvalidInput(format string, args ...any) *Error {
	return &Error{reason: ReasonInvalidInput, detail: fmt.Sprintf(format, args...)}
}

// Timeout reports an evaluation that did not complete in time.
func Timeout(err error, format string, args ...any) *Error {
	return &Error{reason: ReasonTimeout, detail: fmt.Sprintf(format, args...), err: err}
}

// ReasonOf returns the structured reason of a compute error, or "".
func ReasonOf(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.reason
	}
	return ""
}
