package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/JaimeStill/mrv/internal/jobs"
	"github.com/JaimeStill/mrv/pkg/handlers"
	"github.com/JaimeStill/mrv/pkg/problem"
)

// OutcomeKind is the disposition of an advance request.
type OutcomeKind string

const (
	// OutcomeCompleted: a synchronous stage ran to completion.
	OutcomeCompleted OutcomeKind = "completed"
	// OutcomeSubmitted: an async stage has a queued or running job.
	OutcomeSubmitted OutcomeKind = "submitted"
	// OutcomeBlocked: predecessors have not succeeded. Nothing changed.
	OutcomeBlocked OutcomeKind = "blocked"
	// OutcomeRejected: params failed validation. Nothing changed.
	OutcomeRejected OutcomeKind = "rejected"
)

// Outcome is the result of advancing a project to a stage.
type Outcome struct {
	Kind    OutcomeKind          `json:"outcome"`
	Stage   Stage                `json:"stage"`
	Result  *Result              `json:"result,omitempty"`
	Job     *jobs.Job            `json:"job,omitempty"`
	Missing []Stage              `json:"missing,omitempty"`
	Detail  string               `json:"detail,omitempty"`
	Fields  []problem.FieldError `json:"fields,omitempty"`
}

// Err converts blocked and rejected outcomes into problem errors. It returns
// nil for completed and submitted outcomes.
func (o Outcome) Err() error {
	switch o.Kind {
	case OutcomeBlocked:
		missing := make([]string, len(o.Missing))
		for i, m := range o.Missing {
			missing[i] = string(m)
		}
		return problem.Precondition(string(o.Stage), missing...)
	case OutcomeRejected:
		return problem.Invalid(o.Detail, o.Fields...)
	}
	return nil
}

// Advancer moves a project's pipeline forward one stage.
type Advancer interface {
	Advance(ctx context.Context, projectID uuid.UUID, stage Stage, params json.RawMessage) (Outcome, error)
}

// RespondOutcome writes an advance result: 200 for completed stages, 202
// for submitted jobs, and a problem document otherwise.
func RespondOutcome(w http.ResponseWriter, logger *slog.Logger, out Outcome, err error) {
	if err == nil {
		err = out.Err()
	}
	if err != nil {
		handlers.Fail(w, logger, err)
		return
	}

	status := http.StatusOK
	if out.Kind == OutcomeSubmitted {
		status = http.StatusAccepted
	}
	handlers.RespondJSON(w, status, out)
}
