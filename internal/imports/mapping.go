package imports

import (
	"github.com/JaimeStill/mrv/pkg/query"
	"github.com/JaimeStill/mrv/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "import_batches", "b").
	Project("id", "ID").
	Project("project_id", "ProjectID").
	Project("filename", "Filename").
	Project("format", "Format").
	Project("storage_key", "StorageKey").
	Project("status", "Status").
	Project("row_count", "RowCount").
	Project("error_count", "ErrorCount").
	Project("created_at", "CreatedAt").
	Project("committed_at", "CommittedAt").
	Project("deleted_at", "DeletedAt")

var defaultSort = query.SortField{Field: "CreatedAt", Descending: true}

func scanBatch(s repository.Scanner) (Batch, error) {
	var b Batch
	err := s.Scan(
		&b.ID,
		&b.ProjectID,
		&b.Filename,
		&b.Format,
		&b.StorageKey,
		&b.Status,
		&b.RowCount,
		&b.ErrorCount,
		&b.CreatedAt,
		&b.CommittedAt,
		&b.DeletedAt,
	)
	return b, err
}
