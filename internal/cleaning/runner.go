package cleaning

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/JaimeStill/mrv/internal/pipeline"
)

// Runner returns the cleaning stage runner. The stage takes no params.
func Runner(sys System) pipeline.Runner {
	return pipeline.RunnerFunc(func(ctx context.Context, projectID uuid.UUID, _ json.RawMessage) (pipeline.Result, error) {
		n, err := sys.RemoveIgnored(ctx, projectID)
		if err != nil {
			return pipeline.Result{}, err
		}

		summary, err := sys.Summary(ctx, projectID)
		if err != nil {
			return pipeline.Result{}, err
		}

		return pipeline.Result{
			Detail: fmt.Sprintf("%d ignored records removed, %d retained", n, summary.Retained),
			Data:   summary,
		}, nil
	})
}
