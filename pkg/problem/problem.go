// Package problem defines the error kinds surfaced by the service and an
// error type carrying the structured detail a caller needs to act on them
// (field messages, failed ids, missing stages).
package problem

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies an error for callers.
type Kind string

const (
	KindNotFound           Kind = "NotFound"
	KindPreconditionNotMet Kind = "PreconditionNotMet"
	KindValidation         Kind = "ValidationError"
	KindPartialFailure     Kind = "PartialFailure"
	KindConflict           Kind = "Conflict"
	KindComputationFailed  Kind = "ComputationFailed"
	KindInternal           Kind = "Internal"
)

// FieldError describes a single invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Failure describes one item of a bulk operation that was not applied.
type Failure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// Error is a classified error with structured detail.
// Err, when set, is the underlying cause and participates in errors.Is.
type Error struct {
	Kind     Kind         `json:"kind"`
	Detail   string       `json:"detail"`
	Fields   []FieldError `json:"fields,omitempty"`
	Failures []Failure    `json:"failures,omitempty"`
	Missing  []string     `json:"missing,omitempty"`
	Reason   string       `json:"reason,omitempty"`
	Err      error        `json:"-"`
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, " (missing %s)", strings.Join(e.Missing, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Kinded is implemented by errors that know their own kind.
type Kinded interface {
	Kind() Kind
}

var registry []mapping

type mapping struct {
	target error
	kind   Kind
}

// Register associates a sentinel error with a kind so that KindOf can
// classify any error wrapping it. Domain packages call Register from init.
func Register(kind Kind, sentinels ...error) {
	for _, s := range sentinels {
		registry = append(registry, mapping{target: s, kind: kind})
	}
}

// KindOf classifies err. Unclassified errors are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}

	var k Kinded
	if errors.As(err, &k) {
		return k.Kind()
	}

	for _, m := range registry {
		if errors.Is(err, m.target) {
			return m.kind
		}
	}

	return KindInternal
}

// Status returns the HTTP status code for a kind.
func Status(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindPreconditionNotMet:
		return http.StatusPreconditionFailed
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindPartialFailure:
		return http.StatusMultiStatus
	case KindConflict:
		return http.StatusConflict
	case KindComputationFailed:
		return http.StatusFailedDependency
	default:
		return http.StatusInternalServerError
	}
}

// StatusOf returns the HTTP status code for err.
func StatusOf(err error) int {
	return Status(KindOf(err))
}

// As extracts an *Error from err, building one from the error's kind when
// err carries no structured detail.
func As(err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return &Error{
		Kind:   KindOf(err),
		Detail: err.Error(),
		Err:    err,
	}
}
