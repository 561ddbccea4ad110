package assignment

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/google/uuid"

	"github.com/JaimeStill/mrv/internal/records"
	"github.com/JaimeStill/mrv/internal/reference"
	"github.com/JaimeStill/mrv/pkg/repository"
)

type repo struct {
	db *sql.DB
}

// New creates a Postgres-backed assignment module.
func New(db *sql.DB, recs records.System, catalog *reference.Catalog, logger *slog.Logger) System {
	return newService(&repo{db: db}, recs, catalog, logger)
}

func (r *repo) mappings(ctx context.Context, projectID uuid.UUID) ([]SpeciesMapping, error) {
	q := `
		SELECT source_code, species_code, updated_at
		FROM species_mappings
		WHERE project_id = $1
		ORDER BY source_code`

	return repository.QueryMany(ctx, r.db, q, []any{projectID}, func(s repository.Scanner) (SpeciesMapping, error) {
		var m SpeciesMapping
		err := s.Scan(&m.SourceCode, &m.SpeciesCode, &m.UpdatedAt)
		return m, err
	})
}

func (r *repo) saveMappings(ctx context.Context, projectID uuid.UUID, ms []SpeciesMapping) (int, error) {
	return repository.WithTx(ctx, r.db, func(tx *sql.Tx) (int, error) {
		var total int
		for _, m := range ms {
			var (
				n   int
				err error
			)
			if m.SpeciesCode == "" {
				n, err = repository.ExecCount(ctx, tx,
					"DELETE FROM species_mappings WHERE project_id = $1 AND source_code = $2",
					projectID, m.SourceCode,
				)
			} else {
				q := `
					INSERT INTO species_mappings(project_id, source_code, species_code)
					VALUES ($1, $2, $3)
					ON CONFLICT (project_id, source_code) DO UPDATE
					SET species_code = EXCLUDED.species_code, updated_at = NOW()
					WHERE species_mappings.species_code <> EXCLUDED.species_code`

				n, err = repository.ExecCount(ctx, tx, q, projectID, m.SourceCode, m.SpeciesCode)
			}
			if err != nil {
				return 0, err
			}
			total += n
		}
		return total, nil
	})
}

func (r *repo) hdAssignments(ctx context.Context, projectID uuid.UUID) ([]HDAssignment, error) {
	q := `
		SELECT physiography, species_code, model_id
		FROM hd_assignments
		WHERE project_id = $1
		ORDER BY physiography, species_code`

	return repository.QueryMany(ctx, r.db, q, []any{projectID}, func(s repository.Scanner) (HDAssignment, error) {
		var a HDAssignment
		err := s.Scan(&a.Physiography, &a.SpeciesCode, &a.ModelID)
		return a, err
	})
}

func (r *repo) saveHD(ctx context.Context, projectID uuid.UUID, as []HDAssignment) error {
	_, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (struct{}, error) {
		q := `
			INSERT INTO hd_assignments(project_id, physiography, species_code, model_id)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (project_id, physiography, species_code) DO UPDATE
			SET model_id = EXCLUDED.model_id, updated_at = NOW()`

		for _, a := range as {
			if _, err := tx.ExecContext(ctx, q, projectID, a.Physiography, a.SpeciesCode, a.ModelID); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	})
	return err
}

func (r *repo) allometricAssignments(ctx context.Context, projectID uuid.UUID) ([]AllometricAssignment, error) {
	q := `
		SELECT species_code, model_id
		FROM allometric_assignments
		WHERE project_id = $1
		ORDER BY species_code`

	return repository.QueryMany(ctx, r.db, q, []any{projectID}, func(s repository.Scanner) (AllometricAssignment, error) {
		var a AllometricAssignment
		err := s.Scan(&a.SpeciesCode, &a.ModelID)
		return a, err
	})
}

func (r *repo) saveAllometric(ctx context.Context, projectID uuid.UUID, as []AllometricAssignment) error {
	_, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (struct{}, error) {
		q := `
			INSERT INTO allometric_assignments(project_id, species_code, model_id)
			VALUES ($1, $2, $3)
			ON CONFLICT (project_id, species_code) DO UPDATE
			SET model_id = EXCLUDED.model_id, updated_at = NOW()`

		for _, a := range as {
			if _, err := tx.ExecContext(ctx, q, projectID, a.SpeciesCode, a.ModelID); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	})
	return err
}
