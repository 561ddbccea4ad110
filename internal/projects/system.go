package projects

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/mrv/pkg/pagination"
)

// System defines the public contract for project operations.
type System interface {
	Handler() *Handler

	List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Project], error)
	Find(ctx context.Context, id uuid.UUID) (*Project, error)
	Create(ctx context.Context, cmd CreateCommand) (*Project, error)
	Update(ctx context.Context, id uuid.UUID, cmd UpdateCommand) (*Project, error)

	// Stages returns the recorded stage states of a project. Stages that
	// never ran have no row.
	Stages(ctx context.Context, id uuid.UUID) ([]StageState, error)
	// MarkRunning records a stage start. jobID is set for async stages.
	MarkRunning(ctx context.Context, id uuid.UUID, stage string, jobID *uuid.UUID) error
	// MarkSucceeded records a stage success and makes it the current stage.
	MarkSucceeded(ctx context.Context, id uuid.UUID, stage, detail string) error
	// MarkFailed records a stage failure. An earlier success is kept.
	MarkFailed(ctx context.Context, id uuid.UUID, stage, detail string) error
}
