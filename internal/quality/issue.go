package quality

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/mrv/internal/records"
	"github.com/JaimeStill/mrv/pkg/problem"
)

// IssueType identifies a data-quality detection rule.
type IssueType string

const (
	MissingValue         IssueType = "missing_value"
	OutOfRange           IssueType = "out_of_range"
	Duplicate            IssueType = "duplicate"
	SpeciesUnmapped      IssueType = "species_unmapped"
	PhysiographyUnmapped IssueType = "physiography_unmapped"
	HDOutlier            IssueType = "hd_outlier"
)

// AllTypes lists every issue type in detection order.
var AllTypes = []IssueType{
	MissingValue,
	OutOfRange,
	Duplicate,
	SpeciesUnmapped,
	PhysiographyUnmapped,
	HDOutlier,
}

// Valid reports whether t is a known issue type.
func (t IssueType) Valid() bool {
	return slices.Contains(AllTypes, t)
}

// ParseType validates a raw issue type.
func ParseType(raw string) (IssueType, error) {
	t := IssueType(raw)
	if !t.Valid() {
		return "", problem.Invalid("unknown issue type", problem.FieldError{
			Field:   "issue_type",
			Message: fmt.Sprintf("%q is not a known issue type", raw),
		})
	}
	return t, nil
}

// Finding is one record affected by one issue type.
type Finding struct {
	RecordID  uuid.UUID `json:"record_id"`
	IssueType IssueType `json:"issue_type"`
	Reason    string    `json:"reason"`
}

// Affected is a record entry of an Issue.
type Affected struct {
	RecordID  uuid.UUID `json:"record_id"`
	RowNumber int       `json:"row_number"`
	Reason    string    `json:"reason"`
	Ignored   bool      `json:"ignored"`
}

// Issue is the current set of records affected by one issue type.
type Issue struct {
	Type    IssueType  `json:"issue_type"`
	Records []Affected `json:"records"`
}

// IgnoredCount is the number of affected records the user has ignored.
func (i Issue) IgnoredCount() int {
	var n int
	for _, a := range i.Records {
		if a.Ignored {
			n++
		}
	}
	return n
}

// Detail is an affected record with the reason it was flagged.
type Detail struct {
	Record  records.Record `json:"record"`
	Reason  string         `json:"reason"`
	Ignored bool           `json:"ignored"`
}

// Scan records when an issue type was last detected for a project.
type Scan struct {
	IssueType IssueType `json:"issue_type"`
	ScannedAt time.Time `json:"scanned_at"`
}

// Ignore is a user decision to ignore a record for one issue type.
type Ignore struct {
	RecordID  uuid.UUID `json:"record_id"`
	IssueType IssueType `json:"issue_type"`
	IgnoredAt time.Time `json:"ignored_at"`
}

// IssueSummary reports the last scan of one issue type.
type IssueSummary struct {
	IssueType IssueType `json:"issue_type"`
	Affected  int       `json:"affected"`
	Ignored   int       `json:"ignored"`
	ScannedAt time.Time `json:"scanned_at"`
}
