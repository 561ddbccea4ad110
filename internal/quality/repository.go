package quality

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/mrv/internal/records"
	"github.com/JaimeStill/mrv/internal/reference"
	"github.com/JaimeStill/mrv/pkg/repository"
)

type repo struct {
	db *sql.DB
}

// New creates a Postgres-backed issue registry.
func New(db *sql.DB, recs records.System, catalog *reference.Catalog, resolver SpeciesResolver, rules Config, logger *slog.Logger) System {
	return newService(&repo{db: db}, recs, catalog, resolver, rules, logger)
}

func (r *repo) replace(ctx context.Context, projectID uuid.UUID, found map[IssueType][]Finding, at time.Time) error {
	_, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (struct{}, error) {
		for t, fs := range found {
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM quality_findings WHERE project_id = $1 AND issue_type = $2",
				projectID, string(t),
			); err != nil {
				return struct{}{}, err
			}

			if len(fs) > 0 {
				ids := make([]uuid.UUID, len(fs))
				reasons := make([]string, len(fs))
				for i, f := range fs {
					ids[i] = f.RecordID
					reasons[i] = f.Reason
				}

				q := `
					INSERT INTO quality_findings(project_id, issue_type, record_id, reason)
					SELECT $1, $2, f.record_id, f.reason
					FROM UNNEST($3::uuid[], $4::text[]) AS f(record_id, reason)`

				if _, err := tx.ExecContext(ctx, q, projectID, string(t), repository.UUIDArray(ids), reasons); err != nil {
					return struct{}{}, err
				}
			}

			q := `
				INSERT INTO quality_scans(project_id, issue_type, scanned_at)
				VALUES ($1, $2, $3)
				ON CONFLICT (project_id, issue_type) DO UPDATE SET scanned_at = EXCLUDED.scanned_at`

			if _, err := tx.ExecContext(ctx, q, projectID, string(t), at); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	})
	return err
}

func (r *repo) findings(ctx context.Context, projectID uuid.UUID, issueType *IssueType) ([]Finding, error) {
	q := `
		SELECT record_id, issue_type, reason
		FROM quality_findings
		WHERE project_id = $1 AND ($2::text IS NULL OR issue_type = $2)`

	return repository.QueryMany(ctx, r.db, q, []any{projectID, typeArg(issueType)}, scanFinding)
}

func (r *repo) ignores(ctx context.Context, projectID uuid.UUID, issueType *IssueType) ([]Ignore, error) {
	q := `
		SELECT record_id, issue_type, ignored_at
		FROM quality_ignores
		WHERE project_id = $1 AND ($2::text IS NULL OR issue_type = $2)`

	return repository.QueryMany(ctx, r.db, q, []any{projectID, typeArg(issueType)}, scanIgnore)
}

func (r *repo) ignore(ctx context.Context, projectID uuid.UUID, issueType IssueType, ids []uuid.UUID) (int, error) {
	q := `
		INSERT INTO quality_ignores(project_id, record_id, issue_type)
		SELECT $1, UNNEST($2::uuid[]), $3
		ON CONFLICT (project_id, record_id, issue_type) DO NOTHING`

	return repository.ExecCount(ctx, r.db, q, projectID, repository.UUIDArray(ids), string(issueType))
}

func (r *repo) unignore(ctx context.Context, projectID uuid.UUID, issueType IssueType, ids []uuid.UUID) (int, error) {
	q := `
		DELETE FROM quality_ignores
		WHERE project_id = $1 AND issue_type = $3 AND record_id = ANY($2::uuid[])`

	return repository.ExecCount(ctx, r.db, q, projectID, repository.UUIDArray(ids), string(issueType))
}

func (r *repo) scans(ctx context.Context, projectID uuid.UUID) ([]Scan, error) {
	q := `
		SELECT issue_type, scanned_at
		FROM quality_scans
		WHERE project_id = $1
		ORDER BY issue_type`

	return repository.QueryMany(ctx, r.db, q, []any{projectID}, scanScan)
}

func typeArg(t *IssueType) any {
	if t == nil {
		return nil
	}
	return string(*t)
}

func scanFinding(s repository.Scanner) (Finding, error) {
	var f Finding
	err := s.Scan(&f.RecordID, &f.IssueType, &f.Reason)
	return f, err
}

func scanIgnore(s repository.Scanner) (Ignore, error) {
	var ig Ignore
	err := s.Scan(&ig.RecordID, &ig.IssueType, &ig.IgnoredAt)
	return ig, err
}

func scanScan(s repository.Scanner) (Scan, error) {
	var sc Scan
	err := s.Scan(&sc.IssueType, &sc.ScannedAt)
	return sc, err
}
