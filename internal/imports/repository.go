package imports

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/mrv/internal/records"
	"github.com/JaimeStill/mrv/pkg/pagination"
	"github.com/JaimeStill/mrv/pkg/query"
	"github.com/JaimeStill/mrv/pkg/repository"
	"github.com/JaimeStill/mrv/pkg/storage"
)

type repo struct {
	db *sql.DB
}

// New creates a Postgres-backed import system.
func New(db *sql.DB, recs records.System, blobs storage.System, logger *slog.Logger, pagination pagination.Config) System {
	return newService(&repo{db: db}, recs, blobs, logger, pagination)
}

func (r *repo) create(ctx context.Context, b Batch, rows []Row) (*Batch, error) {
	numbers := make([]int64, len(rows))
	data := make([]string, len(rows))
	errs := make([]string, len(rows))
	for i, row := range rows {
		raw, err := json.Marshal(row)
		if err != nil {
			return nil, fmt.Errorf("encode row %d: %w", row.RowNumber, err)
		}
		numbers[i] = int64(row.RowNumber)
		data[i] = string(raw)
		errs[i] = row.Error
	}

	created, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Batch, error) {
		q := `
			INSERT INTO import_batches AS b(id, project_id, filename, format, storage_key, status, row_count, error_count)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING ` + projection.Columns()

		args := []any{b.ID, b.ProjectID, b.Filename, string(b.Format), b.StorageKey, string(b.Status), b.RowCount, b.ErrorCount}
		created, err := repository.QueryOne(ctx, tx, q, args, scanBatch)
		if err != nil {
			return Batch{}, err
		}

		if len(rows) > 0 {
			q := `
				INSERT INTO import_rows(batch_id, row_number, data, error)
				SELECT $1, r.row_number, r.data::jsonb, NULLIF(r.error, '')
				FROM UNNEST($2::bigint[], $3::text[], $4::text[]) AS r(row_number, data, error)`

			if _, err := tx.ExecContext(ctx, q, b.ID, numbers, data, errs); err != nil {
				return Batch{}, err
			}
		}
		return created, nil
	})
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &created, nil
}

func (r *repo) list(ctx context.Context, projectID uuid.UUID, page pagination.PageRequest) (*pagination.PageResult[Batch], error) {
	qb := query.
		NewBuilder(projection, defaultSort).
		WhereEquals("ProjectID", projectID).
		WhereSearch(page.Search, "Filename")

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count import batches: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	batches, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanBatch)
	if err != nil {
		return nil, fmt.Errorf("query import batches: %w", err)
	}

	result := pagination.NewPageResult(batches, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) find(ctx context.Context, projectID, id uuid.UUID) (*Batch, error) {
	q, args := query.
		NewBuilder(projection).
		WhereEquals("ProjectID", projectID).
		BuildSingle("ID", id)

	b, err := repository.QueryOne(ctx, r.db, q, args, scanBatch)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &b, nil
}

func (r *repo) latest(ctx context.Context, projectID uuid.UUID, status Status) (*Batch, error) {
	q, args := query.
		NewBuilder(projection, defaultSort).
		WhereEquals("ProjectID", projectID).
		WhereEquals("Status", string(status)).
		BuildPage(1, 1)

	b, err := repository.QueryOne(ctx, r.db, q, args, scanBatch)
	if err != nil {
		return nil, repository.MapError(err, ErrNoneStaged, ErrDuplicate)
	}
	return &b, nil
}

func (r *repo) rows(ctx context.Context, id uuid.UUID) ([]Row, error) {
	q := `
		SELECT data
		FROM import_rows
		WHERE batch_id = $1
		ORDER BY row_number`

	return repository.QueryMany(ctx, r.db, q, []any{id}, func(s repository.Scanner) (Row, error) {
		var (
			raw []byte
			row Row
		)
		if err := s.Scan(&raw); err != nil {
			return row, err
		}
		err := json.Unmarshal(raw, &row)
		return row, err
	})
}

func (r *repo) transition(ctx context.Context, projectID, id uuid.UUID, to Status, at time.Time, from ...Status) (*Batch, error) {
	states := make([]string, len(from))
	for i, s := range from {
		states[i] = string(s)
	}

	q := `
		UPDATE import_batches AS b SET
			status = $3::text,
			committed_at = CASE $3::text WHEN 'committed' THEN $4::timestamptz WHEN 'staged' THEN NULL ELSE b.committed_at END,
			deleted_at = CASE $3::text WHEN 'deleted' THEN $4::timestamptz ELSE b.deleted_at END
		WHERE project_id = $1 AND id = $2 AND status = ANY($5::text[])
		RETURNING ` + projection.Columns()

	b, err := repository.QueryOne(ctx, r.db, q, []any{projectID, id, string(to), at, states}, scanBatch)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &b, nil
}
