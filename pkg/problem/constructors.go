package problem

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// NotFound returns a KindNotFound error wrapping cause.
func NotFound(cause error, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Detail: fmt.Sprintf(format, args...), Err: cause}
}

// Conflict returns a KindConflict error wrapping cause.
func Conflict(cause error, format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Detail: fmt.Sprintf(format, args...), Err: cause}
}

// Precondition returns a KindPreconditionNotMet error naming the missing stages.
func Precondition(stage string, missing ...string) *Error {
	return &Error{
		Kind:    KindPreconditionNotMet,
		Detail:  fmt.Sprintf("stage %s cannot run yet", stage),
		Missing: missing,
	}
}

// Invalid returns a KindValidation error with field-level detail.
func Invalid(detail string, fields ...FieldError) *Error {
	return &Error{Kind: KindValidation, Detail: detail, Fields: fields}
}

// Partial returns a KindPartialFailure error listing failed items.
// applied is the number of items that were applied.
func Partial(applied int, failures []Failure) *Error {
	return &Error{
		Kind:     KindPartialFailure,
		Detail:   fmt.Sprintf("%d applied, %d failed", applied, len(failures)),
		Failures: failures,
	}
}

// Computation returns a KindComputationFailed error with a structured reason.
func Computation(reason, detail string) *Error {
	return &Error{Kind: KindComputationFailed, Detail: detail, Reason: reason}
}

// FromValidator converts validator.ValidationErrors into a KindValidation
// error. Other errors are returned as a single-field validation failure.
func FromValidator(err error) *Error {
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return Invalid(err.Error())
	}

	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{
			Field:   fieldName(fe),
			Message: fieldMessage(fe),
		})
	}

	return Invalid("invalid input", fields...)
}

func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	if ns == "" {
		return fe.Field()
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte", "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte", "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "notblank":
		return "must not be blank"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
