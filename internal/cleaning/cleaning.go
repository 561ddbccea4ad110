// Package cleaning finalizes the quality screen of a project: it summarizes
// record statuses and removes records the analyst chose to ignore.
package cleaning

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/JaimeStill/mrv/internal/pipeline"
	"github.com/JaimeStill/mrv/internal/records"
	"github.com/JaimeStill/mrv/pkg/pagination"
)

// Summary reports a project's record statuses before or after cleaning.
type Summary struct {
	Records records.Counts `json:"records"`
	// Removable is the number of ignored records remove-ignored would remove.
	Removable int `json:"removable"`
	// Retained is the size of the active set once ignored records are removed.
	Retained int `json:"retained"`
}

// System defines the public contract of data cleaning.
type System interface {
	Handler(advance pipeline.Advancer) *Handler

	Summary(ctx context.Context, projectID uuid.UUID) (*Summary, error)
	// RemoveIgnored marks every ignored record removed and returns the
	// number changed. A second call changes nothing.
	RemoveIgnored(ctx context.Context, projectID uuid.UUID) (int, error)
	// ViewRecords pages through a project's records. Without a status
	// filter the removed records are listed too.
	ViewRecords(ctx context.Context, projectID uuid.UUID, page pagination.PageRequest, filters records.Filters) (*pagination.PageResult[records.Record], error)
}

type service struct {
	records    records.System
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates the cleaning system over a record store.
func New(recs records.System, logger *slog.Logger, pagination pagination.Config) System {
	return &service{
		records:    recs,
		logger:     logger.With("system", "cleaning"),
		pagination: pagination,
	}
}

func (s *service) Handler(advance pipeline.Advancer) *Handler {
	return NewHandler(s, advance, s.logger, s.pagination)
}

func (s *service) Summary(ctx context.Context, projectID uuid.UUID) (*Summary, error) {
	c, err := s.records.Counts(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return &Summary{
		Records:   c,
		Removable: c.Ignored,
		Retained:  c.Active + c.Flagged,
	}, nil
}

func (s *service) RemoveIgnored(ctx context.Context, projectID uuid.UUID) (int, error) {
	n, err := s.records.RemoveStatus(ctx, projectID, records.StatusIgnored)
	if err != nil {
		return 0, err
	}
	s.logger.Info("ignored records removed", "project_id", projectID, "count", n)
	return n, nil
}

func (s *service) ViewRecords(ctx context.Context, projectID uuid.UUID, page pagination.PageRequest, filters records.Filters) (*pagination.PageResult[records.Record], error) {
	return s.records.List(ctx, projectID, page, filters)
}
