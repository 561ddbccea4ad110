package jobs

import (
	"context"

	"github.com/google/uuid"
)

// Store persists jobs. Implementations guarantee at most one non-terminal
// job per (project, stage).
type Store interface {
	// CreateIfAbsent inserts job unless a non-terminal job exists for its
	// project and stage, in which case that job is returned with created false.
	CreateIfAbsent(ctx context.Context, job Job) (Job, bool, error)
	Get(ctx context.Context, id uuid.UUID) (Job, error)
	// Latest returns the most recently submitted job of a project's stage.
	Latest(ctx context.Context, projectID uuid.UUID, stage string) (Job, error)
	List(ctx context.Context, projectID uuid.UUID) ([]Job, error)
	// Active returns a project's non-terminal jobs.
	Active(ctx context.Context, projectID uuid.UUID) ([]Job, error)
	// Unfinished returns every non-terminal job, oldest first.
	Unfinished(ctx context.Context) ([]Job, error)
	// Transition loads a job, applies fn to it, and saves the result
	// atomically. When fn returns an error nothing is saved.
	Transition(ctx context.Context, id uuid.UUID, fn func(*Job) error) (Job, error)
}
