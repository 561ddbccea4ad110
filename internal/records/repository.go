package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/JaimeStill/mrv/pkg/pagination"
	"github.com/JaimeStill/mrv/pkg/query"
	"github.com/JaimeStill/mrv/pkg/repository"
)

type repo struct {
	db *sql.DB
}

// New creates a Postgres-backed record store.
func New(db *sql.DB, logger *slog.Logger, pagination pagination.Config) System {
	return newService(&repo{db: db}, logger, pagination)
}

func (r *repo) list(ctx context.Context, projectID uuid.UUID, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Record], error) {
	qb := query.
		NewBuilder(projection, defaultSort).
		WhereEquals("ProjectID", projectID).
		WhereSearch(page.Search, "PlotID", "SpeciesCode", "Physiography")

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	recs, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}

	result := pagination.NewPageResult(recs, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) all(ctx context.Context, projectID uuid.UUID, statuses []Status) ([]Record, error) {
	q := fmt.Sprintf(
		"SELECT %s FROM %s WHERE r.project_id = $1 AND r.status = ANY($2::text[]) ORDER BY r.row_number, r.id",
		projection.Columns(), projection.Table(),
	)

	recs, err := repository.QueryMany(ctx, r.db, q, []any{projectID, statusStrings(statuses)}, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	return recs, nil
}

func (r *repo) find(ctx context.Context, projectID, recordID uuid.UUID) (*Record, error) {
	q, args := query.NewBuilder(projection).
		WhereEquals("ProjectID", projectID).
		BuildSingle("ID", recordID)

	rec, err := repository.QueryOne(ctx, r.db, q, args, scanRecord)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &rec, nil
}

func (r *repo) modify(ctx context.Context, projectID, recordID uuid.UUID, fn func(*Record) error) (*Record, error) {
	selectQ := fmt.Sprintf(
		"SELECT %s FROM %s WHERE r.id = $1 AND r.project_id = $2 FOR UPDATE",
		projection.Columns(), projection.Table(),
	)

	updateQ := `
		UPDATE records SET
			plot_id = $3, tree_number = $4, species_code = $5, diameter = $6,
			height = $7, physiography = $8, slope_percent = $9,
			version = version + 1, updated_at = NOW()
		WHERE id = $1 AND project_id = $2
		RETURNING ` + returning

	rec, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Record, error) {
		current, err := repository.QueryOne(ctx, tx, selectQ, []any{recordID, projectID}, scanRecord)
		if err != nil {
			return Record{}, err
		}

		if err := fn(&current); err != nil {
			return Record{}, err
		}

		args := []any{
			recordID, projectID,
			current.PlotID, current.TreeNumber, current.SpeciesCode, current.Diameter,
			current.Height, current.Physiography, current.SlopePercent,
		}
		return repository.QueryOne(ctx, tx, updateQ, args, scanRecord)
	})
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &rec, nil
}

func (r *repo) setStatus(ctx context.Context, projectID uuid.UUID, ids []uuid.UUID, status Status) (int, error) {
	q := `
		UPDATE records SET status = $3, version = version + 1, updated_at = NOW()
		WHERE project_id = $1 AND id = ANY($2::uuid[])
			AND status <> 'removed' AND status <> $3`

	n, err := repository.ExecCount(ctx, r.db, q, projectID, repository.UUIDArray(ids), string(status))
	if err != nil {
		return 0, fmt.Errorf("set record status: %w", err)
	}
	return n, nil
}

func (r *repo) insert(ctx context.Context, recs []Record) (int, error) {
	q := `
		INSERT INTO records(
			id, project_id, import_id, row_number, plot_id, tree_number, species_code,
			diameter, height, physiography, slope_percent, attributes, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	return repository.WithTx(ctx, r.db, func(tx *sql.Tx) (int, error) {
		stmt, err := tx.PrepareContext(ctx, q)
		if err != nil {
			return 0, err
		}
		defer stmt.Close()

		for _, rec := range recs {
			attrs, err := json.Marshal(rec.Attributes)
			if err != nil {
				return 0, fmt.Errorf("encode attributes: %w", err)
			}
			if _, err := stmt.ExecContext(
				ctx,
				rec.ID, rec.ProjectID, rec.ImportID, rec.RowNumber, rec.PlotID, rec.TreeNumber,
				rec.SpeciesCode, rec.Diameter, rec.Height, rec.Physiography, rec.SlopePercent,
				attrs, string(rec.Status),
			); err != nil {
				return 0, repository.MapError(err, ErrNotFound, ErrDuplicate)
			}
		}
		return len(recs), nil
	})
}

func (r *repo) removeWhere(ctx context.Context, projectID uuid.UUID, importID *uuid.UUID, status *Status) (int, error) {
	q := `
		UPDATE records SET status = 'removed', removed_at = NOW(), version = version + 1, updated_at = NOW()
		WHERE project_id = $1 AND status <> 'removed'
			AND ($2::uuid IS NULL OR import_id = $2)
			AND ($3::text IS NULL OR status = $3)`

	var statusArg *string
	if status != nil {
		s := string(*status)
		statusArg = &s
	}

	n, err := repository.ExecCount(ctx, r.db, q, projectID, importID, statusArg)
	if err != nil {
		return 0, fmt.Errorf("remove records: %w", err)
	}
	return n, nil
}

func (r *repo) applyDerived(ctx context.Context, projectID uuid.UUID, derived []Derived) (int, error) {
	q := `
		UPDATE records SET
			hd_model_id = COALESCE($3, hd_model_id),
			predicted_height = COALESCE($4, predicted_height),
			slanted_height = COALESCE($5, slanted_height),
			volume = COALESCE($6, volume),
			volume_ratio = COALESCE($7, volume_ratio),
			allometric_model_id = COALESCE($8, allometric_model_id),
			biomass = COALESCE($9, biomass),
			updated_at = NOW()
		WHERE id = $1 AND project_id = $2 AND status <> 'removed'`

	return repository.WithTx(ctx, r.db, func(tx *sql.Tx) (int, error) {
		stmt, err := tx.PrepareContext(ctx, q)
		if err != nil {
			return 0, err
		}
		defer stmt.Close()

		var total int
		for _, d := range derived {
			res, err := stmt.ExecContext(
				ctx, d.RecordID, projectID,
				d.HDModelID, d.PredictedHeight, d.SlantedHeight, d.Volume,
				d.VolumeRatio, d.AllometricModelID, d.Biomass,
			)
			if err != nil {
				return 0, fmt.Errorf("apply derived %s: %w", d.RecordID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return 0, err
			}
			total += int(n)
		}
		return total, nil
	})
}

func (r *repo) counts(ctx context.Context, projectID uuid.UUID) (Counts, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM records WHERE project_id = $1 GROUP BY status",
		projectID,
	)
	if err != nil {
		return Counts{}, fmt.Errorf("count records: %w", err)
	}
	defer rows.Close()

	var c Counts
	for rows.Next() {
		var status Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return Counts{}, err
		}
		c.add(status, n)
	}
	return c, rows.Err()
}

const returning = `id, project_id, import_id, row_number, plot_id, tree_number, species_code,
	diameter, height, physiography, slope_percent, attributes, hd_model_id, predicted_height,
	slanted_height, volume, volume_ratio, allometric_model_id, biomass, status, version,
	removed_at, created_at, updated_at`
