package quality

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/JaimeStill/mrv/internal/pipeline"
)

// ScanParams are the params of the quality_check stage. No issue types
// means every type.
type ScanParams struct {
	IssueTypes []string `json:"issue_types,omitempty"`
}

// Runner returns the quality_check stage runner.
func Runner(sys System) pipeline.Runner {
	return pipeline.RunnerFunc(func(ctx context.Context, projectID uuid.UUID, params json.RawMessage) (pipeline.Result, error) {
		var p ScanParams
		if err := pipeline.DecodeParams(params, &p); err != nil {
			return pipeline.Result{}, err
		}

		types := make([]IssueType, 0, len(p.IssueTypes))
		for _, raw := range p.IssueTypes {
			t, err := ParseType(raw)
			if err != nil {
				return pipeline.Result{}, err
			}
			types = append(types, t)
		}

		issues, err := sys.Scan(ctx, projectID, types)
		if err != nil {
			return pipeline.Result{}, err
		}

		affected := 0
		for _, issue := range issues {
			affected += len(issue.Records)
		}

		return pipeline.Result{
			Detail: fmt.Sprintf("%d findings across %d issue types", affected, len(issues)),
			Data:   issues,
		}, nil
	})
}
