package projects

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/mrv/pkg/pagination"
)

type memory struct {
	mu         sync.RWMutex
	projects   map[uuid.UUID]*Project
	stages     map[uuid.UUID]map[string]*StageState
	logger     *slog.Logger
	pagination pagination.Config
}

// NewMemory creates a project system held in process memory.
func NewMemory(logger *slog.Logger, pagination pagination.Config) System {
	return &memory{
		projects:   make(map[uuid.UUID]*Project),
		stages:     make(map[uuid.UUID]map[string]*StageState),
		logger:     logger.With("system", "projects"),
		pagination: pagination,
	}
}

func (m *memory) Handler() *Handler {
	return NewHandler(m, m.logger, m.pagination)
}

func (m *memory) List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Project], error) {
	page.Normalize(m.pagination)

	m.mu.RLock()
	var items []Project
	for _, p := range m.projects {
		if filters.Name != nil && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(*filters.Name)) {
			continue
		}
		if filters.CurrentStage != nil && (p.CurrentStage == nil || *p.CurrentStage != *filters.CurrentStage) {
			continue
		}
		if page.Search != nil && !strings.Contains(strings.ToLower(p.Name+" "+p.Description), strings.ToLower(*page.Search)) {
			continue
		}
		items = append(items, *p)
	}
	m.mu.RUnlock()

	slices.SortFunc(items, func(a, b Project) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	result := pagination.Slice(items, page)
	return &result, nil
}

func (m *memory) Find(ctx context.Context, id uuid.UUID) (*Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *p
	return &c, nil
}

func (m *memory) Create(ctx context.Context, cmd CreateCommand) (*Project, error) {
	if err := validateCommand(cmd); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	p := &Project{
		ID:          uuid.New(),
		Name:        cmd.Name,
		Description: cmd.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	m.mu.Lock()
	m.projects[p.ID] = p
	m.stages[p.ID] = make(map[string]*StageState)
	m.mu.Unlock()

	m.logger.Info("project created", "id", p.ID, "name", p.Name)
	c := *p
	return &c, nil
}

func (m *memory) Update(ctx context.Context, id uuid.UUID, cmd UpdateCommand) (*Project, error) {
	if err := validateCommand(cmd); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	if cmd.Name != nil {
		p.Name = *cmd.Name
	}
	if cmd.Description != nil {
		p.Description = *cmd.Description
	}
	p.UpdatedAt = time.Now().UTC()

	c := *p
	return &c, nil
}

func (m *memory) Stages(ctx context.Context, id uuid.UUID) ([]StageState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stages, ok := m.stages[id]
	if !ok {
		return nil, ErrNotFound
	}

	out := make([]StageState, 0, len(stages))
	for _, st := range stages {
		out = append(out, *st)
	}
	return out, nil
}

func (m *memory) MarkRunning(ctx context.Context, id uuid.UUID, stage string, jobID *uuid.UUID) error {
	return m.mutate(id, stage, func(st *StageState, now time.Time) {
		st.Status = StageRunning
		st.JobID = jobID
		st.LastRunAt = &now
		st.Detail = ""
	})
}

func (m *memory) MarkSucceeded(ctx context.Context, id uuid.UUID, stage, detail string) error {
	return m.mutate(id, stage, func(st *StageState, now time.Time) {
		touch(st, now)
		st.Status = StageSucceeded
		st.CompletedAt = &now
		st.Detail = detail

		p := m.projects[id]
		p.CurrentStage = &stage
		p.UpdatedAt = now
	})
}

func (m *memory) MarkFailed(ctx context.Context, id uuid.UUID, stage, detail string) error {
	return m.mutate(id, stage, func(st *StageState, now time.Time) {
		touch(st, now)
		st.Status = StageFailed
		st.Detail = detail
	})
}

// touch stamps the run time of a stage that finishes without a recorded
// start.
func touch(st *StageState, now time.Time) {
	if st.Status != StageRunning || st.LastRunAt == nil {
		st.LastRunAt = &now
	}
}

func (m *memory) mutate(id uuid.UUID, stage string, fn func(*StageState, time.Time)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stages, ok := m.stages[id]
	if !ok {
		return ErrNotFound
	}

	st, ok := stages[stage]
	if !ok {
		st = &StageState{ProjectID: id, Stage: stage, Status: StagePending}
		stages[stage] = st
	}
	fn(st, time.Now().UTC())
	return nil
}
