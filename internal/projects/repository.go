package projects

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/JaimeStill/mrv/pkg/pagination"
	"github.com/JaimeStill/mrv/pkg/query"
	"github.com/JaimeStill/mrv/pkg/repository"
)

type repo struct {
	db         *sql.DB
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates a Postgres-backed project system.
func New(db *sql.DB, logger *slog.Logger, pagination pagination.Config) System {
	return &repo{
		db:         db,
		logger:     logger.With("system", "projects"),
		pagination: pagination,
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger, r.pagination)
}

func (r *repo) List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Project], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereSearch(page.Search, "Name", "Description")

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count projects: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	items, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanProject)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}

	result := pagination.NewPageResult(items, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) Find(ctx context.Context, id uuid.UUID) (*Project, error) {
	q, args := query.NewBuilder(projection).BuildSingle("ID", id)

	p, err := repository.QueryOne(ctx, r.db, q, args, scanProject)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &p, nil
}

func (r *repo) Create(ctx context.Context, cmd CreateCommand) (*Project, error) {
	if err := validateCommand(cmd); err != nil {
		return nil, err
	}

	q := `
		INSERT INTO projects(id, name, description)
		VALUES ($1, $2, $3)
		RETURNING id, name, description, current_stage, created_at, updated_at`

	p, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Project, error) {
		return repository.QueryOne(ctx, tx, q, []any{uuid.New(), cmd.Name, cmd.Description}, scanProject)
	})
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("project created", "id", p.ID, "name", p.Name)
	return &p, nil
}

func (r *repo) Update(ctx context.Context, id uuid.UUID, cmd UpdateCommand) (*Project, error) {
	if err := validateCommand(cmd); err != nil {
		return nil, err
	}

	q := `
		UPDATE projects SET
			name = COALESCE($2, name),
			description = COALESCE($3, description),
			updated_at = NOW()
		WHERE id = $1
		RETURNING id, name, description, current_stage, created_at, updated_at`

	p, err := repository.QueryOne(ctx, r.db, q, []any{id, cmd.Name, cmd.Description}, scanProject)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &p, nil
}

func (r *repo) Stages(ctx context.Context, id uuid.UUID) ([]StageState, error) {
	if _, err := r.Find(ctx, id); err != nil {
		return nil, err
	}

	q := `
		SELECT project_id, stage, status, job_id, last_run_at, completed_at, detail
		FROM project_stages WHERE project_id = $1`

	states, err := repository.QueryMany(ctx, r.db, q, []any{id}, scanStage)
	if err != nil {
		return nil, fmt.Errorf("query stage states: %w", err)
	}
	return states, nil
}

func (r *repo) MarkRunning(ctx context.Context, id uuid.UUID, stage string, jobID *uuid.UUID) error {
	q := `
		INSERT INTO project_stages(project_id, stage, status, job_id, last_run_at, detail)
		VALUES ($1, $2, 'running', $3, NOW(), '')
		ON CONFLICT (project_id, stage) DO UPDATE SET
			status = 'running', job_id = EXCLUDED.job_id, last_run_at = NOW(), detail = ''`

	return r.upsertStage(ctx, id, q, id, stage, jobID)
}

func (r *repo) MarkSucceeded(ctx context.Context, id uuid.UUID, stage, detail string) error {
	_, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (struct{}, error) {
		err := repository.ExecExpectOne(ctx, tx,
			"UPDATE projects SET current_stage = $2, updated_at = NOW() WHERE id = $1",
			id, stage,
		)
		if err != nil {
			return struct{}{}, err
		}

		q := `
			INSERT INTO project_stages(project_id, stage, status, last_run_at, completed_at, detail)
			VALUES ($1, $2, 'succeeded', NOW(), NOW(), $3)
			ON CONFLICT (project_id, stage) DO UPDATE SET
				status = 'succeeded', completed_at = NOW(), detail = $3,
				last_run_at = CASE project_stages.status
					WHEN 'running' THEN COALESCE(project_stages.last_run_at, NOW())
					ELSE NOW() END`

		_, err = tx.ExecContext(ctx, q, id, stage, detail)
		return struct{}{}, err
	})
	if err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return nil
}

func (r *repo) MarkFailed(ctx context.Context, id uuid.UUID, stage, detail string) error {
	q := `
		INSERT INTO project_stages(project_id, stage, status, last_run_at, detail)
		VALUES ($1, $2, 'failed', NOW(), $3)
		ON CONFLICT (project_id, stage) DO UPDATE SET
			status = 'failed', detail = $3,
			last_run_at = CASE project_stages.status
				WHEN 'running' THEN COALESCE(project_stages.last_run_at, NOW())
				ELSE NOW() END`

	return r.upsertStage(ctx, id, q, id, stage, detail)
}

func (r *repo) upsertStage(ctx context.Context, id uuid.UUID, q string, args ...any) error {
	if _, err := r.Find(ctx, id); err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("record stage state: %w", err)
	}
	return nil
}
