package imports

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/mrv/internal/records"
	"github.com/JaimeStill/mrv/pkg/pagination"
	"github.com/JaimeStill/mrv/pkg/storage"
)

type memory struct {
	mu      sync.RWMutex
	batches map[uuid.UUID]*Batch
	rowsBy  map[uuid.UUID][]Row
	order   []uuid.UUID
}

// NewMemory creates an import system whose batches are held in process
// memory.
func NewMemory(recs records.System, blobs storage.System, logger *slog.Logger, pagination pagination.Config) System {
	m := &memory{
		batches: make(map[uuid.UUID]*Batch),
		rowsBy:  make(map[uuid.UUID][]Row),
	}
	return newService(m, recs, blobs, logger, pagination)
}

func (m *memory) create(ctx context.Context, b Batch, rows []Row) (*Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.batches[b.ID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, b.ID)
	}
	b.CreatedAt = time.Now().UTC()
	m.batches[b.ID] = &b
	m.rowsBy[b.ID] = slices.Clone(rows)
	m.order = append(m.order, b.ID)

	c := b
	return &c, nil
}

// project returns a project's batches, newest first.
func (m *memory) project(projectID uuid.UUID) []Batch {
	var out []Batch
	for i := len(m.order) - 1; i >= 0; i-- {
		if b := m.batches[m.order[i]]; b.ProjectID == projectID {
			out = append(out, *b)
		}
	}
	return out
}

func (m *memory) list(ctx context.Context, projectID uuid.UUID, page pagination.PageRequest) (*pagination.PageResult[Batch], error) {
	m.mu.RLock()
	items := m.project(projectID)
	m.mu.RUnlock()

	result := pagination.Slice(items, page)
	return &result, nil
}

func (m *memory) find(ctx context.Context, projectID, id uuid.UUID) (*Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.batches[id]
	if !ok || b.ProjectID != projectID {
		return nil, ErrNotFound
	}
	c := *b
	return &c, nil
}

func (m *memory) latest(ctx context.Context, projectID uuid.UUID, status Status) (*Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, b := range m.project(projectID) {
		if b.Status == status {
			return &b, nil
		}
	}
	return nil, ErrNoneStaged
}

func (m *memory) rows(ctx context.Context, id uuid.UUID) ([]Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Clone(m.rowsBy[id]), nil
}

func (m *memory) transition(ctx context.Context, projectID, id uuid.UUID, to Status, at time.Time, from ...Status) (*Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.batches[id]
	if !ok || b.ProjectID != projectID || !slices.Contains(from, b.Status) {
		return nil, ErrNotFound
	}

	b.Status = to
	switch to {
	case StatusStaged:
		b.CommittedAt = nil
	case StatusCommitted:
		b.CommittedAt = &at
	case StatusDeleted:
		b.DeletedAt = &at
	}

	c := *b
	return &c, nil
}
