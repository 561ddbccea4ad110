package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/JaimeStill/mrv/pkg/repository"
)

const columns = `id, project_id, stage, state, params, attempts, reason, error, result,
	submitted_at, started_at, completed_at`

const activeIndex = "jobs_active_stage_idx"

type repo struct {
	db *sql.DB
}

// NewStore creates a Postgres-backed job store. The jobs table carries a
// partial unique index on (project_id, stage) over non-terminal states.
func NewStore(db *sql.DB) Store {
	return &repo{db: db}
}

var errSlotTaken = errors.New("stage has an active job")

func (r *repo) CreateIfAbsent(ctx context.Context, job Job) (Job, bool, error) {
	params, result, err := encode(job)
	if err != nil {
		return Job{}, false, err
	}

	return createOrFind(
		func() (Job, error) { return r.insert(ctx, job, params, result) },
		func() (Job, error) { return r.activeFor(ctx, job.ProjectID, job.Stage) },
	)
}

// createOrFind inserts a job, or returns the active job holding the
// (project, stage) slot. When that job finishes between the two statements
// the insert is tried once more.
func createOrFind(insert, active func() (Job, error)) (Job, bool, error) {
	for range 2 {
		created, err := insert()
		if err == nil {
			return created, true, nil
		}
		if !errors.Is(err, errSlotTaken) {
			return Job{}, false, err
		}

		existing, err := active()
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Job{}, false, err
		}
	}
	return Job{}, false, fmt.Errorf("%w: active job for stage changed during submit", ErrDuplicate)
}

func (r *repo) insert(ctx context.Context, job Job, params, result []byte) (Job, error) {
	q := `
		INSERT INTO jobs(id, project_id, stage, state, params, attempts, reason, error, result, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (project_id, stage) WHERE state IN ('queued', 'running') DO NOTHING
		RETURNING ` + columns

	created, err := repository.QueryOne(ctx, r.db, q, []any{
		job.ID, job.ProjectID, job.Stage, string(job.State), params, job.Attempts,
		string(job.Reason), job.Error, result, job.SubmittedAt,
	}, scanJob)

	switch {
	case err == nil:
		return created, nil
	case errors.Is(err, sql.ErrNoRows), repository.IsUniqueViolation(err, activeIndex):
		return Job{}, errSlotTaken
	default:
		return Job{}, fmt.Errorf("insert job: %w", err)
	}
}

func (r *repo) activeFor(ctx context.Context, projectID uuid.UUID, stage string) (Job, error) {
	q := `SELECT ` + columns + ` FROM jobs
		WHERE project_id = $1 AND stage = $2 AND state IN ('queued', 'running')`

	j, err := repository.QueryOne(ctx, r.db, q, []any{projectID, stage}, scanJob)
	if err != nil {
		return Job{}, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return j, nil
}

func (r *repo) Get(ctx context.Context, id uuid.UUID) (Job, error) {
	q := `SELECT ` + columns + ` FROM jobs WHERE id = $1`

	j, err := repository.QueryOne(ctx, r.db, q, []any{id}, scanJob)
	if err != nil {
		return Job{}, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return j, nil
}

func (r *repo) Latest(ctx context.Context, projectID uuid.UUID, stage string) (Job, error) {
	q := `SELECT ` + columns + ` FROM jobs
		WHERE project_id = $1 AND stage = $2
		ORDER BY submitted_at DESC, id DESC LIMIT 1`

	j, err := repository.QueryOne(ctx, r.db, q, []any{projectID, stage}, scanJob)
	if err != nil {
		return Job{}, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return j, nil
}

func (r *repo) List(ctx context.Context, projectID uuid.UUID) ([]Job, error) {
	q := `SELECT ` + columns + ` FROM jobs WHERE project_id = $1 ORDER BY submitted_at DESC, id DESC`
	return repository.QueryMany(ctx, r.db, q, []any{projectID}, scanJob)
}

func (r *repo) Active(ctx context.Context, projectID uuid.UUID) ([]Job, error) {
	q := `SELECT ` + columns + ` FROM jobs
		WHERE project_id = $1 AND state IN ('queued', 'running')
		ORDER BY submitted_at, id`
	return repository.QueryMany(ctx, r.db, q, []any{projectID}, scanJob)
}

func (r *repo) Unfinished(ctx context.Context) ([]Job, error) {
	q := `SELECT ` + columns + ` FROM jobs
		WHERE state IN ('queued', 'running')
		ORDER BY submitted_at, id`
	return repository.QueryMany(ctx, r.db, q, nil, scanJob)
}

func (r *repo) Transition(ctx context.Context, id uuid.UUID, fn func(*Job) error) (Job, error) {
	return repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Job, error) {
		q := `SELECT ` + columns + ` FROM jobs WHERE id = $1 FOR UPDATE`

		j, err := repository.QueryOne(ctx, tx, q, []any{id}, scanJob)
		if err != nil {
			return Job{}, repository.MapError(err, ErrNotFound, ErrDuplicate)
		}

		if err := fn(&j); err != nil {
			return Job{}, err
		}

		params, result, err := encode(j)
		if err != nil {
			return Job{}, err
		}

		update := `
			UPDATE jobs SET
				state = $2, params = $3, attempts = $4, reason = $5, error = $6, result = $7,
				started_at = $8, completed_at = $9
			WHERE id = $1`

		err = repository.ExecExpectOne(ctx, tx, update,
			j.ID, string(j.State), params, j.Attempts, string(j.Reason), j.Error, result,
			j.StartedAt, j.CompletedAt,
		)
		if err != nil {
			return Job{}, fmt.Errorf("update job: %w", err)
		}
		return j, nil
	})
}

func encode(j Job) ([]byte, []byte, error) {
	params := []byte(j.Params)
	if len(params) == 0 {
		params = []byte("{}")
	}

	result, err := json.Marshal(j.Result)
	if err != nil {
		return nil, nil, fmt.Errorf("encode job result: %w", err)
	}
	return params, result, nil
}

func scanJob(s repository.Scanner) (Job, error) {
	var (
		j              Job
		state, reason  string
		params, result []byte
	)

	err := s.Scan(
		&j.ID,
		&j.ProjectID,
		&j.Stage,
		&state,
		&params,
		&j.Attempts,
		&reason,
		&j.Error,
		&result,
		&j.SubmittedAt,
		&j.StartedAt,
		&j.CompletedAt,
	)
	if err != nil {
		return Job{}, err
	}

	j.State = State(state)
	j.Reason = Reason(reason)
	if len(params) > 0 && string(params) != "{}" {
		j.Params = json.RawMessage(params)
	}
	if len(result) > 0 && string(result) != "null" {
		if err := json.Unmarshal(result, &j.Result); err != nil {
			return Job{}, fmt.Errorf("decode job result: %w", err)
		}
	}
	return j, nil
}
