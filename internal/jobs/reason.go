package jobs

import (
	"context"
	"errors"

	"github.com/JaimeStill/mrv/pkg/problem"
)

// Reason classifies why a job failed.
type Reason string

const (
	ReasonTimeout          Reason = "Timeout"
	ReasonInvalidInput     Reason = "InvalidInput"
	ReasonModelUnavailable Reason = "ModelUnavailable"
	ReasonCancelled        Reason = "Cancelled"
	ReasonUnknown          Reason = "Unknown"
)

// Transient reasons are retried with backoff.
func (r Reason) Transient() bool {
	return r == ReasonTimeout || r == ReasonModelUnavailable
}

type reasoned interface {
	Reason() string
}

// ReasonOf classifies a handler error.
func ReasonOf(err error) Reason {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, context.Canceled):
		return ReasonCancelled
	}

	var r reasoned
	if errors.As(err, &r) {
		return normalize(r.Reason())
	}

	var pe *problem.Error
	if errors.As(err, &pe) {
		if pe.Reason != "" {
			return normalize(pe.Reason)
		}
		if pe.Kind == problem.KindValidation || pe.Kind == problem.KindNotFound {
			return ReasonInvalidInput
		}
	}

	return ReasonUnknown
}

func normalize(raw string) Reason {
	switch r := Reason(raw); r {
	case ReasonTimeout, ReasonInvalidInput, ReasonModelUnavailable, ReasonCancelled:
		return r
	}
	return ReasonUnknown
}
