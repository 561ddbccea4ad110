package assignment

import (
	"cmp"
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/mrv/internal/records"
	"github.com/JaimeStill/mrv/internal/reference"
)

type hdKey struct{ physiography, species string }

type memoryProject struct {
	mappings   map[string]SpeciesMapping
	hd         map[hdKey]string
	allometric map[string]string
}

type memory struct {
	mu       sync.RWMutex
	projects map[uuid.UUID]*memoryProject
}

// NewMemory creates an assignment module whose mappings and assignments are
// held in process memory.
func NewMemory(recs records.System, catalog *reference.Catalog, logger *slog.Logger) System {
	return newService(&memory{projects: make(map[uuid.UUID]*memoryProject)}, recs, catalog, logger)
}

func (m *memory) project(id uuid.UUID) *memoryProject {
	p, ok := m.projects[id]
	if !ok {
		p = &memoryProject{
			mappings:   make(map[string]SpeciesMapping),
			hd:         make(map[hdKey]string),
			allometric: make(map[string]string),
		}
		m.projects[id] = p
	}
	return p
}

func (m *memory) mappings(ctx context.Context, projectID uuid.UUID) ([]SpeciesMapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.projects[projectID]
	if !ok {
		return []SpeciesMapping{}, nil
	}
	out := slices.Collect(maps.Values(p.mappings))
	slices.SortFunc(out, func(a, b SpeciesMapping) int { return cmp.Compare(a.SourceCode, b.SourceCode) })
	return out, nil
}

func (m *memory) saveMappings(ctx context.Context, projectID uuid.UUID, ms []SpeciesMapping) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.project(projectID)
	now := time.Now().UTC()

	var n int
	for _, sm := range ms {
		cur, exists := p.mappings[sm.SourceCode]
		switch {
		case sm.SpeciesCode == "":
			if exists {
				delete(p.mappings, sm.SourceCode)
				n++
			}
		case !exists || cur.SpeciesCode != sm.SpeciesCode:
			sm.UpdatedAt = now
			p.mappings[sm.SourceCode] = sm
			n++
		}
	}
	return n, nil
}

func (m *memory) hdAssignments(ctx context.Context, projectID uuid.UUID) ([]HDAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []HDAssignment{}
	p, ok := m.projects[projectID]
	if !ok {
		return out, nil
	}
	for k, model := range p.hd {
		out = append(out, HDAssignment{Physiography: k.physiography, SpeciesCode: k.species, ModelID: model})
	}
	slices.SortFunc(out, func(a, b HDAssignment) int {
		return cmp.Or(cmp.Compare(a.Physiography, b.Physiography), cmp.Compare(a.SpeciesCode, b.SpeciesCode))
	})
	return out, nil
}

func (m *memory) saveHD(ctx context.Context, projectID uuid.UUID, as []HDAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.project(projectID)
	for _, a := range as {
		p.hd[hdKey{a.Physiography, a.SpeciesCode}] = a.ModelID
	}
	return nil
}

func (m *memory) allometricAssignments(ctx context.Context, projectID uuid.UUID) ([]AllometricAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []AllometricAssignment{}
	p, ok := m.projects[projectID]
	if !ok {
		return out, nil
	}
	for _, code := range slices.Sorted(maps.Keys(p.allometric)) {
		out = append(out, AllometricAssignment{SpeciesCode: code, ModelID: p.allometric[code]})
	}
	return out, nil
}

func (m *memory) saveAllometric(ctx context.Context, projectID uuid.UUID, as []AllometricAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.project(projectID)
	for _, a := range as {
		p.allometric[a.SpeciesCode] = a.ModelID
	}
	return nil
}
