package export

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/JaimeStill/mrv/internal/pipeline"
)

// Runner returns the export stage runner.
func Runner(sys System) pipeline.Runner {
	return pipeline.RunnerFunc(func(ctx context.Context, projectID uuid.UUID, params json.RawMessage) (pipeline.Result, error) {
		var p Params
		if err := pipeline.DecodeParams(params, &p); err != nil {
			return pipeline.Result{}, err
		}

		snap, err := sys.Export(ctx, projectID, p)
		if err != nil {
			return pipeline.Result{}, err
		}

		return pipeline.Result{
			Detail: fmt.Sprintf("exported %d records to %s", snap.Rows, snap.Name),
			Data:   snap,
		}, nil
	})
}
