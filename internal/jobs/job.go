package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a job. Succeeded and failed are terminal.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Job is an asynchronous run of one stage for one project.
type Job struct {
	ID          uuid.UUID       `json:"id"`
	ProjectID   uuid.UUID       `json:"project_id"`
	Stage       string          `json:"stage"`
	State       State           `json:"state"`
	Params      json.RawMessage `json:"params,omitempty"`
	Attempts    int             `json:"attempts"`
	Reason      Reason          `json:"reason,omitempty"`
	Error       string          `json:"error,omitempty"`
	Result      Result          `json:"result,omitempty"`
	SubmittedAt time.Time       `json:"submitted_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Result holds the summary counts a handler reports on success.
type Result map[string]int

// Handler executes the work of one stage.
type Handler interface {
	Handle(ctx context.Context, job Job) (Result, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job Job) (Result, error)

func (f HandlerFunc) Handle(ctx context.Context, job Job) (Result, error) {
	return f(ctx, job)
}
