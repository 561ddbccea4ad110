package assignment

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/JaimeStill/mrv/internal/pipeline"
)

// HDParams are the params of the hd_assignment stage.
type HDParams struct {
	Assignments []HDAssignment `json:"assignments,omitempty"`
}

// AllometricParams are the params of the allometric_assignment stage.
type AllometricParams struct {
	Assignments []AllometricAssignment `json:"assignments,omitempty"`
}

// HDRunner returns the hd_assignment stage runner.
func HDRunner(sys System) pipeline.Runner {
	return pipeline.RunnerFunc(func(ctx context.Context, projectID uuid.UUID, params json.RawMessage) (pipeline.Result, error) {
		var p HDParams
		if err := pipeline.DecodeParams(params, &p); err != nil {
			return pipeline.Result{}, err
		}
		out, err := sys.AssignHD(ctx, projectID, p.Assignments)
		if err != nil {
			return pipeline.Result{}, err
		}
		return result("hd", out)
	})
}

// AllometricRunner returns the allometric_assignment stage runner.
func AllometricRunner(sys System) pipeline.Runner {
	return pipeline.RunnerFunc(func(ctx context.Context, projectID uuid.UUID, params json.RawMessage) (pipeline.Result, error) {
		var p AllometricParams
		if err := pipeline.DecodeParams(params, &p); err != nil {
			return pipeline.Result{}, err
		}
		out, err := sys.AssignAllometric(ctx, projectID, p.Assignments)
		if err != nil {
			return pipeline.Result{}, err
		}
		return result("allometric", out)
	})
}

func result(kind string, out Outcome) (pipeline.Result, error) {
	if out.Assigned == 0 {
		return pipeline.Result{}, fmt.Errorf("%w: %d records without %s model", ErrNotAssigned, out.Unassigned, kind)
	}
	return pipeline.Result{
		Detail: fmt.Sprintf("%d records assigned, %d unassigned", out.Assigned, out.Unassigned),
		Data:   out,
	}, nil
}
