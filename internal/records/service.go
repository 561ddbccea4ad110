package records

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/JaimeStill/mrv/pkg/pagination"
	"github.com/JaimeStill/mrv/pkg/problem"
)

type service struct {
	store      store
	logger     *slog.Logger
	pagination pagination.Config
}

func newService(s store, logger *slog.Logger, pagination pagination.Config) System {
	return &service{
		store:      s,
		logger:     logger.With("system", "records"),
		pagination: pagination,
	}
}

func (s *service) Handler() *Handler {
	return NewHandler(s, s.logger, s.pagination)
}

func (s *service) List(ctx context.Context, projectID uuid.UUID, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Record], error) {
	page.Normalize(s.pagination)
	return s.store.list(ctx, projectID, page, filters)
}

func (s *service) All(ctx context.Context, projectID uuid.UUID, statuses ...Status) ([]Record, error) {
	if len(statuses) == 0 {
		statuses = ActiveSet
	}
	return s.store.all(ctx, projectID, statuses)
}

func (s *service) Find(ctx context.Context, projectID, recordID uuid.UUID) (*Record, error) {
	return s.store.find(ctx, projectID, recordID)
}

func (s *service) Update(ctx context.Context, projectID, recordID uuid.UUID, patch Patch) (*Record, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	rec, err := s.store.modify(ctx, projectID, recordID, func(r *Record) error {
		if r.Status == StatusRemoved {
			return ErrRemoved
		}
		if patch.IfVersion != nil && *patch.IfVersion != r.Version {
			return fmt.Errorf("%w: expected version %d, found %d", ErrVersionChanged, *patch.IfVersion, r.Version)
		}
		patch.Apply(r)
		return validateMerged(r)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("record updated", "project_id", projectID, "record_id", recordID, "version", rec.Version)
	return rec, nil
}

func (s *service) BulkUpdate(ctx context.Context, projectID uuid.UUID, updates []Update) (int, error) {
	if len(updates) == 0 {
		return 0, problem.Invalid("no updates given", problem.FieldError{Field: "updates", Message: "is required"})
	}

	var applied int
	var failures []problem.Failure

	for _, u := range updates {
		if _, err := s.Update(ctx, projectID, u.RecordID, u.Patch); err != nil {
			if ctx.Err() != nil {
				return applied, ctx.Err()
			}
			if problem.KindOf(err) == problem.KindInternal {
				return applied, fmt.Errorf("update record %s: %w", u.RecordID, err)
			}
			failures = append(failures, problem.Failure{
				ID:     u.RecordID.String(),
				Reason: failureReason(err),
			})
			continue
		}
		applied++
	}

	s.logger.Info("bulk update applied", "project_id", projectID, "applied", applied, "failed", len(failures))

	if len(failures) > 0 {
		return applied, problem.Partial(applied, failures)
	}
	return applied, nil
}

func (s *service) SetStatus(ctx context.Context, projectID uuid.UUID, ids []uuid.UUID, status Status) (int, error) {
	if !status.Valid() || status == StatusRemoved {
		return 0, problem.Invalid("invalid status", problem.FieldError{Field: "status", Message: fmt.Sprintf("cannot set %q", status)})
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return s.store.setStatus(ctx, projectID, ids, status)
}

func (s *service) Insert(ctx context.Context, recs []Record) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	for i := range recs {
		if recs[i].ID == uuid.Nil {
			recs[i].ID = uuid.New()
		}
		if recs[i].Status == "" {
			recs[i].Status = StatusActive
		}
	}
	n, err := s.store.insert(ctx, recs)
	if err != nil {
		return 0, err
	}
	s.logger.Info("records inserted", "project_id", recs[0].ProjectID, "count", n)
	return n, nil
}

func (s *service) RemoveImport(ctx context.Context, projectID, importID uuid.UUID) (int, error) {
	return s.store.removeWhere(ctx, projectID, &importID, nil)
}

func (s *service) RemoveStatus(ctx context.Context, projectID uuid.UUID, status Status) (int, error) {
	if status == StatusRemoved {
		return 0, nil
	}
	n, err := s.store.removeWhere(ctx, projectID, nil, &status)
	if err != nil {
		return 0, err
	}
	s.logger.Info("records removed", "project_id", projectID, "status", status, "count", n)
	return n, nil
}

func (s *service) ApplyDerived(ctx context.Context, projectID uuid.UUID, derived []Derived) (int, error) {
	if len(derived) == 0 {
		return 0, nil
	}
	return s.store.applyDerived(ctx, projectID, derived)
}

func (s *service) Counts(ctx context.Context, projectID uuid.UUID) (Counts, error) {
	return s.store.counts(ctx, projectID)
}
