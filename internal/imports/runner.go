package imports

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/JaimeStill/mrv/internal/pipeline"
)

// PreviewParams are the params of the preview stage. Without ImportID the
// latest staged batch is used. DryRun reports the diff without committing.
type PreviewParams struct {
	ImportID *uuid.UUID `json:"import_id,omitempty"`
	DryRun   bool       `json:"dry_run,omitempty"`
}

// StageRunner returns the import stage runner. Each run stages a new batch.
func StageRunner(sys System) pipeline.Runner {
	return pipeline.RunnerFunc(func(ctx context.Context, projectID uuid.UUID, params json.RawMessage) (pipeline.Result, error) {
		var cmd StageCommand
		if err := pipeline.DecodeParams(params, &cmd); err != nil {
			return pipeline.Result{}, err
		}

		b, err := sys.Stage(ctx, projectID, cmd)
		if err != nil {
			return pipeline.Result{}, err
		}

		return pipeline.Result{
			Detail: fmt.Sprintf("staged %s: %d rows, %d with errors", b.Filename, b.RowCount, b.ErrorCount),
			Data:   b,
		}, nil
	})
}

// PreviewRunner returns the preview stage runner. A dry run is provisional
// and leaves the stage state untouched.
func PreviewRunner(sys System) pipeline.Runner {
	return pipeline.RunnerFunc(func(ctx context.Context, projectID uuid.UUID, params json.RawMessage) (pipeline.Result, error) {
		var p PreviewParams
		if err := pipeline.DecodeParams(params, &p); err != nil {
			return pipeline.Result{}, err
		}

		var id uuid.UUID
		if p.ImportID != nil {
			id = *p.ImportID
		} else {
			b, err := sys.LatestStaged(ctx, projectID)
			if err != nil {
				return pipeline.Result{}, err
			}
			id = b.ID
		}

		if p.DryRun {
			preview, err := sys.Preview(ctx, projectID, id)
			if err != nil {
				return pipeline.Result{}, err
			}
			return pipeline.Result{
				Detail:      summarize("would commit", preview),
				Data:        preview,
				Provisional: true,
			}, nil
		}

		preview, err := sys.Commit(ctx, projectID, id)
		if err != nil {
			return pipeline.Result{}, err
		}
		return pipeline.Result{Detail: summarize("committed", preview), Data: preview}, nil
	})
}

func summarize(verb string, p *Preview) string {
	return fmt.Sprintf("%s %d of %d rows from %s (%d new, %d matched, %d invalid)",
		verb, p.Valid, p.Rows, p.Batch.Filename, p.Added, p.Matched, p.Invalid)
}
