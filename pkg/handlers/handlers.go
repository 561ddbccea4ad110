// Package handlers provides JSON response helpers shared by HTTP handlers.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/JaimeStill/mrv/pkg/problem"
)

// ProblemBody is the RFC 7807 style error document written by RespondError.
type ProblemBody struct {
	Type     string               `json:"type"`
	Title    string               `json:"title"`
	Status   int                  `json:"status"`
	Kind     problem.Kind         `json:"kind"`
	Detail   string               `json:"detail,omitempty"`
	Fields   []problem.FieldError `json:"fields,omitempty"`
	Failures []problem.Failure    `json:"failures,omitempty"`
	Missing  []string             `json:"missing,omitempty"`
	Reason   string               `json:"reason,omitempty"`
}

// RespondJSON writes data as JSON with the given status code.
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RespondError writes err as a problem document. A zero status derives the
// status code from the error's kind. Server errors are logged.
func RespondError(w http.ResponseWriter, logger *slog.Logger, status int, err error) {
	pe := problem.As(err)
	if status == 0 {
		status = problem.Status(pe.Kind)
	}

	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	}

	body := ProblemBody{
		Type:     "about:blank",
		Title:    http.StatusText(status),
		Status:   status,
		Kind:     pe.Kind,
		Detail:   pe.Detail,
		Fields:   pe.Fields,
		Failures: pe.Failures,
		Missing:  pe.Missing,
		Reason:   pe.Reason,
	}
	if body.Kind == problem.KindInternal && status < http.StatusInternalServerError {
		body.Kind = kindForStatus(status)
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// Fail writes err using the status derived from its kind.
func Fail(w http.ResponseWriter, logger *slog.Logger, err error) {
	RespondError(w, logger, 0, err)
}

// DecodeJSON decodes the request body into v, reporting malformed bodies as
// validation errors.
func DecodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return problem.Invalid("malformed request body", problem.FieldError{
			Field:   "body",
			Message: err.Error(),
		})
	}
	return nil
}

// PathUUID parses the named path value as a UUID.
func PathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, problem.Invalid("invalid identifier", problem.FieldError{
			Field:   name,
			Message: "must be a UUID",
		})
	}
	return id, nil
}

func kindForStatus(status int) problem.Kind {
	switch status {
	case http.StatusNotFound:
		return problem.KindNotFound
	case http.StatusConflict:
		return problem.KindConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusRequestEntityTooLarge:
		return problem.KindValidation
	case http.StatusPreconditionFailed:
		return problem.KindPreconditionNotMet
	default:
		return problem.KindInternal
	}
}
