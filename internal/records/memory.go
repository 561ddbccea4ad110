package records

import (
	"cmp"
	"context"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/mrv/pkg/pagination"
)

type memory struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*Record
}

// NewMemory creates a record store held in process memory.
func NewMemory(logger *slog.Logger, pagination pagination.Config) System {
	return newService(&memory{records: make(map[uuid.UUID]*Record)}, logger, pagination)
}

func clone(r *Record) Record {
	c := *r
	c.Attributes = maps.Clone(r.Attributes)
	return c
}

func (m *memory) project(projectID uuid.UUID, keep func(*Record) bool) []Record {
	var out []Record
	for _, r := range m.records {
		if r.ProjectID == projectID && keep(r) {
			out = append(out, clone(r))
		}
	}
	slices.SortFunc(out, func(a, b Record) int {
		return cmp.Or(cmp.Compare(a.RowNumber, b.RowNumber), strings.Compare(a.ID.String(), b.ID.String()))
	})
	return out
}

func (m *memory) list(ctx context.Context, projectID uuid.UUID, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Record], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recs := m.project(projectID, func(r *Record) bool {
		return filters.match(r) && matchSearch(r, page.Search)
	})
	result := pagination.Slice(recs, page)
	return &result, nil
}

func (m *memory) all(ctx context.Context, projectID uuid.UUID, statuses []Status) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.project(projectID, func(r *Record) bool {
		return slices.Contains(statuses, r.Status)
	}), nil
}

func (m *memory) find(ctx context.Context, projectID, recordID uuid.UUID) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[recordID]
	if !ok || r.ProjectID != projectID {
		return nil, ErrNotFound
	}
	c := clone(r)
	return &c, nil
}

func (m *memory) modify(ctx context.Context, projectID, recordID uuid.UUID, fn func(*Record) error) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[recordID]
	if !ok || r.ProjectID != projectID {
		return nil, ErrNotFound
	}

	c := clone(r)
	if err := fn(&c); err != nil {
		return nil, err
	}
	c.Version++
	c.UpdatedAt = time.Now().UTC()

	stored := clone(&c)
	m.records[recordID] = &stored
	return &c, nil
}

func (m *memory) setStatus(ctx context.Context, projectID uuid.UUID, ids []uuid.UUID, status Status) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	var n int
	for _, id := range ids {
		r, ok := m.records[id]
		if !ok || r.ProjectID != projectID || r.Status == StatusRemoved || r.Status == status {
			continue
		}
		r.Status = status
		r.Version++
		r.UpdatedAt = now
		n++
	}
	return n, nil
}

func (m *memory) insert(ctx context.Context, recs []Record) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range recs {
		if _, exists := m.records[r.ID]; exists {
			return 0, ErrDuplicate
		}
	}

	now := time.Now().UTC()
	for _, r := range recs {
		c := clone(&r)
		c.Version = 1
		c.CreatedAt = now
		c.UpdatedAt = now
		m.records[c.ID] = &c
	}
	return len(recs), nil
}

func (m *memory) removeWhere(ctx context.Context, projectID uuid.UUID, importID *uuid.UUID, status *Status) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	var n int
	for _, r := range m.records {
		if r.ProjectID != projectID || r.Status == StatusRemoved {
			continue
		}
		if importID != nil && r.ImportID != *importID {
			continue
		}
		if status != nil && r.Status != *status {
			continue
		}
		r.Status = StatusRemoved
		r.RemovedAt = &now
		r.Version++
		r.UpdatedAt = now
		n++
	}
	return n, nil
}

func (m *memory) applyDerived(ctx context.Context, projectID uuid.UUID, derived []Derived) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	var n int
	for _, d := range derived {
		r, ok := m.records[d.RecordID]
		if !ok || r.ProjectID != projectID || r.Status == StatusRemoved {
			continue
		}
		d.apply(r)
		r.UpdatedAt = now
		n++
	}
	return n, nil
}

func (m *memory) counts(ctx context.Context, projectID uuid.UUID) (Counts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var c Counts
	for _, r := range m.records {
		if r.ProjectID == projectID {
			c.add(r.Status, 1)
		}
	}
	return c, nil
}
