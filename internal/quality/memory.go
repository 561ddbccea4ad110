package quality

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/mrv/internal/records"
	"github.com/JaimeStill/mrv/internal/reference"
)

type memoryProject struct {
	findings map[IssueType][]Finding
	scans    map[IssueType]time.Time
	ignores  map[ignoreKey]time.Time
}

type memory struct {
	mu       sync.RWMutex
	projects map[uuid.UUID]*memoryProject
}

// NewMemory creates an issue registry whose findings and ignore decisions
// are held in process memory.
func NewMemory(recs records.System, catalog *reference.Catalog, resolver SpeciesResolver, rules Config, logger *slog.Logger) System {
	return newService(&memory{projects: make(map[uuid.UUID]*memoryProject)}, recs, catalog, resolver, rules, logger)
}

func (m *memory) project(id uuid.UUID) *memoryProject {
	p, ok := m.projects[id]
	if !ok {
		p = &memoryProject{
			findings: make(map[IssueType][]Finding),
			scans:    make(map[IssueType]time.Time),
			ignores:  make(map[ignoreKey]time.Time),
		}
		m.projects[id] = p
	}
	return p
}

func (m *memory) replace(ctx context.Context, projectID uuid.UUID, found map[IssueType][]Finding, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.project(projectID)
	for t, fs := range found {
		p.findings[t] = slices.Clone(fs)
		p.scans[t] = at
	}
	return nil
}

func (m *memory) findings(ctx context.Context, projectID uuid.UUID, issueType *IssueType) ([]Finding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.projects[projectID]
	if !ok {
		return nil, nil
	}

	var out []Finding
	for _, t := range AllTypes {
		if issueType != nil && *issueType != t {
			continue
		}
		out = append(out, p.findings[t]...)
	}
	return out, nil
}

func (m *memory) ignores(ctx context.Context, projectID uuid.UUID, issueType *IssueType) ([]Ignore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.projects[projectID]
	if !ok {
		return nil, nil
	}

	var out []Ignore
	for k, at := range p.ignores {
		if issueType != nil && *issueType != k.issue {
			continue
		}
		out = append(out, Ignore{RecordID: k.record, IssueType: k.issue, IgnoredAt: at})
	}
	return out, nil
}

func (m *memory) ignore(ctx context.Context, projectID uuid.UUID, issueType IssueType, ids []uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.project(projectID)
	now := time.Now().UTC()

	var n int
	for _, id := range ids {
		k := ignoreKey{id, issueType}
		if _, ok := p.ignores[k]; ok {
			continue
		}
		p.ignores[k] = now
		n++
	}
	return n, nil
}

func (m *memory) unignore(ctx context.Context, projectID uuid.UUID, issueType IssueType, ids []uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.projects[projectID]
	if !ok {
		return 0, nil
	}

	var n int
	for _, id := range ids {
		k := ignoreKey{id, issueType}
		if _, ok := p.ignores[k]; ok {
			delete(p.ignores, k)
			n++
		}
	}
	return n, nil
}

func (m *memory) scans(ctx context.Context, projectID uuid.UUID) ([]Scan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.projects[projectID]
	if !ok {
		return nil, nil
	}

	var out []Scan
	for _, t := range AllTypes {
		if at, ok := p.scans[t]; ok {
			out = append(out, Scan{IssueType: t, ScannedAt: at})
		}
	}
	return out, nil
}
