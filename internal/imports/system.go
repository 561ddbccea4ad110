package imports

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/mrv/internal/pipeline"
	"github.com/JaimeStill/mrv/pkg/pagination"
)

// System defines the public contract of dataset intake.
type System interface {
	Handler(advance pipeline.Advancer, maxUploadSize int64) *Handler

	// Upload stores a raw dataset blob under uploads/{project}/{id}/{name}
	// and returns the command that stages it.
	Upload(ctx context.Context, projectID uuid.UUID, filename string, r io.Reader, contentType string) (StageCommand, error)
	// Stage parses an uploaded blob into a new staged batch.
	Stage(ctx context.Context, projectID uuid.UUID, cmd StageCommand) (*Batch, error)

	List(ctx context.Context, projectID uuid.UUID, page pagination.PageRequest) (*pagination.PageResult[Batch], error)
	Find(ctx context.Context, projectID, id uuid.UUID) (*Batch, error)
	// LatestStaged returns the most recently staged batch of a project.
	LatestStaged(ctx context.Context, projectID uuid.UUID) (*Batch, error)
	Rows(ctx context.Context, projectID, id uuid.UUID) ([]Row, error)

	// Preview diffs a staged batch against the project's active records
	// without changing anything.
	Preview(ctx context.Context, projectID, id uuid.UUID) (*Preview, error)
	// Commit inserts the valid rows of a staged batch as records.
	Commit(ctx context.Context, projectID, id uuid.UUID) (*Preview, error)
	// Delete marks a batch deleted and removes the records it committed.
	Delete(ctx context.Context, projectID, id uuid.UUID) (*Batch, error)
}

type store interface {
	create(ctx context.Context, b Batch, rows []Row) (*Batch, error)
	list(ctx context.Context, projectID uuid.UUID, page pagination.PageRequest) (*pagination.PageResult[Batch], error)
	find(ctx context.Context, projectID, id uuid.UUID) (*Batch, error)
	latest(ctx context.Context, projectID uuid.UUID, status Status) (*Batch, error)
	rows(ctx context.Context, id uuid.UUID) ([]Row, error)
	// transition moves a batch from one of the from statuses to to. It
	// returns ErrNotFound when the batch is missing or in another status.
	transition(ctx context.Context, projectID, id uuid.UUID, to Status, at time.Time, from ...Status) (*Batch, error)
}
