package jobs

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
)

type memoryStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*Job
}

// NewMemoryStore creates a job store held in process memory.
func NewMemoryStore() Store {
	return &memoryStore{jobs: make(map[uuid.UUID]*Job)}
}

func (s *memoryStore) CreateIfAbsent(ctx context.Context, job Job) (Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range s.jobs {
		if j.ProjectID == job.ProjectID && j.Stage == job.Stage && !j.State.Terminal() {
			return clone(j), false, nil
		}
	}

	c := clone(&job)
	s.jobs[job.ID] = &c
	return clone(&c), true, nil
}

func (s *memoryStore) Get(ctx context.Context, id uuid.UUID) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return clone(j), nil
}

func (s *memoryStore) Latest(ctx context.Context, projectID uuid.UUID, stage string) (Job, error) {
	jobs := s.filter(func(j *Job) bool { return j.ProjectID == projectID && j.Stage == stage })
	if len(jobs) == 0 {
		return Job{}, ErrNotFound
	}
	return jobs[len(jobs)-1], nil
}

func (s *memoryStore) List(ctx context.Context, projectID uuid.UUID) ([]Job, error) {
	out := s.filter(func(j *Job) bool { return j.ProjectID == projectID })
	slices.Reverse(out)
	return out, nil
}

func (s *memoryStore) Active(ctx context.Context, projectID uuid.UUID) ([]Job, error) {
	return s.filter(func(j *Job) bool { return j.ProjectID == projectID && !j.State.Terminal() }), nil
}

func (s *memoryStore) Unfinished(ctx context.Context) ([]Job, error) {
	return s.filter(func(j *Job) bool { return !j.State.Terminal() }), nil
}

func (s *memoryStore) Transition(ctx context.Context, id uuid.UUID, fn func(*Job) error) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}

	next := clone(j)
	if err := fn(&next); err != nil {
		return Job{}, err
	}
	s.jobs[id] = &next
	return clone(&next), nil
}

// filter returns matching jobs ordered by submission time, then id.
func (s *memoryStore) filter(match func(*Job) bool) []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Job
	for _, j := range s.jobs {
		if match(j) {
			out = append(out, clone(j))
		}
	}
	slices.SortFunc(out, func(a, b Job) int {
		return cmp.Or(a.SubmittedAt.Compare(b.SubmittedAt), strings.Compare(a.ID.String(), b.ID.String()))
	})
	return out
}

func clone(j *Job) Job {
	c := *j
	c.Params = slices.Clone(j.Params)
	c.Result = maps.Clone(j.Result)
	return c
}
