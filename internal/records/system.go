package records

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/mrv/pkg/pagination"
)

// System defines the public contract of the record store.
type System interface {
	Handler() *Handler

	// List returns a page of a project's records.
	List(ctx context.Context, projectID uuid.UUID, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Record], error)
	// All returns a project's records in row order, restricted to the given
	// statuses. No statuses means the active set.
	All(ctx context.Context, projectID uuid.UUID, statuses ...Status) ([]Record, error)
	Find(ctx context.Context, projectID, recordID uuid.UUID) (*Record, error)

	// Update applies a validated patch to one record atomically.
	Update(ctx context.Context, projectID, recordID uuid.UUID, patch Patch) (*Record, error)
	// BulkUpdate applies each update independently. When any fail it returns
	// the applied count with a partial failure listing the failed ids.
	BulkUpdate(ctx context.Context, projectID uuid.UUID, updates []Update) (int, error)
	// SetStatus changes the status of the given records, leaving removed
	// records untouched. It returns the number of records changed.
	SetStatus(ctx context.Context, projectID uuid.UUID, ids []uuid.UUID, status Status) (int, error)

	Insert(ctx context.Context, recs []Record) (int, error)
	// RemoveImport marks every record of an import batch removed.
	RemoveImport(ctx context.Context, projectID, importID uuid.UUID) (int, error)
	// RemoveStatus marks every record with the given status removed.
	RemoveStatus(ctx context.Context, projectID uuid.UUID, status Status) (int, error)
	// ApplyDerived writes stage outputs onto records of the active set.
	ApplyDerived(ctx context.Context, projectID uuid.UUID, derived []Derived) (int, error)
	Counts(ctx context.Context, projectID uuid.UUID) (Counts, error)
}

// store is the persistence contract shared by the Postgres and memory
// implementations.
type store interface {
	list(ctx context.Context, projectID uuid.UUID, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Record], error)
	all(ctx context.Context, projectID uuid.UUID, statuses []Status) ([]Record, error)
	find(ctx context.Context, projectID, recordID uuid.UUID) (*Record, error)
	// modify loads the record, calls fn on a copy, and persists the copy
	// with an incremented version when fn succeeds. The whole step is atomic.
	modify(ctx context.Context, projectID, recordID uuid.UUID, fn func(*Record) error) (*Record, error)
	setStatus(ctx context.Context, projectID uuid.UUID, ids []uuid.UUID, status Status) (int, error)
	insert(ctx context.Context, recs []Record) (int, error)
	removeWhere(ctx context.Context, projectID uuid.UUID, importID *uuid.UUID, status *Status) (int, error)
	applyDerived(ctx context.Context, projectID uuid.UUID, derived []Derived) (int, error)
	counts(ctx context.Context, projectID uuid.UUID) (Counts, error)
}
