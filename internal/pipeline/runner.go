package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/JaimeStill/mrv/pkg/problem"
)

// Result is the output of a synchronous stage run.
type Result struct {
	// Detail is a one-line summary recorded in the stage state.
	Detail string `json:"detail"`
	// Data is the stage-specific payload returned to the caller.
	Data any `json:"data,omitempty"`
	// Provisional results (dry runs) are returned without recording the
	// stage as succeeded.
	Provisional bool `json:"provisional,omitempty"`
}

// Runner executes a synchronous stage.
type Runner interface {
	Run(ctx context.Context, projectID uuid.UUID, params json.RawMessage) (Result, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, projectID uuid.UUID, params json.RawMessage) (Result, error)

func (f RunnerFunc) Run(ctx context.Context, projectID uuid.UUID, params json.RawMessage) (Result, error) {
	return f(ctx, projectID, params)
}

// DecodeParams unmarshals stage params into v. Empty params leave v unchanged.
func DecodeParams(params json.RawMessage, v any) error {
	if len(params) == 0 || string(params) == "null" {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return problem.Invalid("malformed stage params", problem.FieldError{
			Field:   "params",
			Message: err.Error(),
		})
	}
	return nil
}

// EncodeParams marshals v into stage params.
func EncodeParams(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode stage params: %w", err)
	}
	return b, nil
}
