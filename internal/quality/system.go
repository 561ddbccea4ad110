package quality

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/mrv/internal/records"
)

// System defines the public contract of the issue registry.
type System interface {
	Handler() *Handler

	// Scan re-detects the given issue types over the active record set,
	// replacing their stored findings. Ignore decisions are kept. No types
	// means every type.
	Scan(ctx context.Context, projectID uuid.UUID, types []IssueType) (map[IssueType]Issue, error)
	// Details lists the active records affected by an issue type in row order.
	Details(ctx context.Context, projectID uuid.UUID, issueType IssueType) ([]Detail, error)
	// Ignore records ignore decisions. It returns the number of new decisions.
	Ignore(ctx context.Context, projectID uuid.UUID, recordIDs []uuid.UUID, issueType IssueType) (int, error)
	// Unignore clears ignore decisions. It returns the number cleared.
	Unignore(ctx context.Context, projectID uuid.UUID, recordIDs []uuid.UUID, issueType IssueType) (int, error)
	// Ignored lists the active records ignored for an issue type.
	Ignored(ctx context.Context, projectID uuid.UUID, issueType IssueType) ([]records.Record, error)
	Summary(ctx context.Context, projectID uuid.UUID) ([]IssueSummary, error)

	// UpdateRecord corrects one record and re-detects previously scanned types.
	UpdateRecord(ctx context.Context, projectID, recordID uuid.UUID, patch records.Patch) (*records.Record, error)
	// BulkUpdate corrects records and re-detects previously scanned types.
	// Applied corrections are kept when some fail.
	BulkUpdate(ctx context.Context, projectID uuid.UUID, updates []records.Update) (int, error)
}

// SpeciesResolver supplies a project's species mappings, source code to
// reference species code.
type SpeciesResolver interface {
	SpeciesMappings(ctx context.Context, projectID uuid.UUID) (map[string]string, error)
}

type store interface {
	// replace swaps the findings of every type in found and stamps the scan.
	replace(ctx context.Context, projectID uuid.UUID, found map[IssueType][]Finding, at time.Time) error
	// findings returns stored findings, all types when issueType is nil.
	findings(ctx context.Context, projectID uuid.UUID, issueType *IssueType) ([]Finding, error)
	// ignores returns ignore decisions, all types when issueType is nil.
	ignores(ctx context.Context, projectID uuid.UUID, issueType *IssueType) ([]Ignore, error)
	ignore(ctx context.Context, projectID uuid.UUID, issueType IssueType, ids []uuid.UUID) (int, error)
	unignore(ctx context.Context, projectID uuid.UUID, issueType IssueType, ids []uuid.UUID) (int, error)
	scans(ctx context.Context, projectID uuid.UUID) ([]Scan, error)
}
