package imports

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/JaimeStill/mrv/internal/pipeline"
	"github.com/JaimeStill/mrv/internal/records"
	"github.com/JaimeStill/mrv/pkg/pagination"
	"github.com/JaimeStill/mrv/pkg/problem"
	"github.com/JaimeStill/mrv/pkg/storage"
)

const (
	previewErrors = 50
	previewSample = 10
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type service struct {
	store      store
	records    records.System
	storage    storage.System
	logger     *slog.Logger
	pagination pagination.Config
}

func newService(s store, recs records.System, blobs storage.System, logger *slog.Logger, pagination pagination.Config) System {
	return &service{
		store:      s,
		records:    recs,
		storage:    blobs,
		logger:     logger.With("system", "imports"),
		pagination: pagination,
	}
}

func (s *service) Handler(advance pipeline.Advancer, maxUploadSize int64) *Handler {
	return NewHandler(s, advance, s.logger, s.pagination, maxUploadSize)
}

func (s *service) Upload(ctx context.Context, projectID uuid.UUID, filename string, r io.Reader, contentType string) (StageCommand, error) {
	if _, ok := FormatOf(filename); !ok {
		return StageCommand{}, problem.Invalid("unsupported file format", problem.FieldError{
			Field:   "file",
			Message: "must end in .csv or .xlsx",
		})
	}

	key := buildStorageKey(projectID, uuid.New(), sanitizeFilename(filename))
	if err := s.storage.Upload(ctx, key, r, contentType); err != nil {
		return StageCommand{}, fmt.Errorf("upload dataset blob: %w", err)
	}

	s.logger.Info("dataset uploaded", "project_id", projectID, "key", key)
	return StageCommand{StorageKey: key, Filename: filename}, nil
}

func (s *service) Stage(ctx context.Context, projectID uuid.UUID, cmd StageCommand) (*Batch, error) {
	if err := validate.Struct(cmd); err != nil {
		return nil, problem.FromValidator(err)
	}
	format, ok := FormatOf(cmd.Filename)
	if !ok {
		return nil, problem.Invalid("unsupported file format", problem.FieldError{
			Field:   "filename",
			Message: "must end in .csv or .xlsx",
		})
	}

	blob, err := s.storage.Download(ctx, cmd.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, problem.Invalid("uploaded dataset not found", problem.FieldError{
				Field:   "storage_key",
				Message: fmt.Sprintf("no blob at %s", cmd.StorageKey),
			})
		}
		return nil, fmt.Errorf("download dataset blob: %w", err)
	}
	defer blob.Body.Close()

	rows, err := Parse(format, blob.Body)
	if err != nil {
		return nil, err
	}

	b := Batch{
		ID:         uuid.New(),
		ProjectID:  projectID,
		Filename:   cmd.Filename,
		Format:     format,
		StorageKey: cmd.StorageKey,
		Status:     StatusStaged,
		RowCount:   len(rows),
	}
	for _, r := range rows {
		if r.Error != "" {
			b.ErrorCount++
		}
	}

	created, err := s.store.create(ctx, b, rows)
	if err != nil {
		return nil, fmt.Errorf("create import batch: %w", err)
	}

	s.logger.Info(
		"dataset staged",
		"project_id", projectID,
		"import_id", created.ID,
		"rows", created.RowCount,
		"errors", created.ErrorCount,
	)
	return created, nil
}

func (s *service) List(ctx context.Context, projectID uuid.UUID, page pagination.PageRequest) (*pagination.PageResult[Batch], error) {
	page.Normalize(s.pagination)
	return s.store.list(ctx, projectID, page)
}

func (s *service) Find(ctx context.Context, projectID, id uuid.UUID) (*Batch, error) {
	return s.store.find(ctx, projectID, id)
}

func (s *service) LatestStaged(ctx context.Context, projectID uuid.UUID) (*Batch, error) {
	return s.store.latest(ctx, projectID, StatusStaged)
}

func (s *service) Rows(ctx context.Context, projectID, id uuid.UUID) ([]Row, error) {
	if _, err := s.store.find(ctx, projectID, id); err != nil {
		return nil, err
	}
	return s.store.rows(ctx, id)
}

func (s *service) Preview(ctx context.Context, projectID, id uuid.UUID) (*Preview, error) {
	b, err := s.staged(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.rows(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.diff(ctx, b, rows)
}

func (s *service) Commit(ctx context.Context, projectID, id uuid.UUID) (*Preview, error) {
	b, err := s.staged(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.rows(ctx, id)
	if err != nil {
		return nil, err
	}
	p, err := s.diff(ctx, b, rows)
	if err != nil {
		return nil, err
	}

	recs := make([]records.Record, 0, p.Valid)
	for _, r := range rows {
		if r.Error == "" {
			recs = append(recs, r.Record(b))
		}
	}

	committed, err := s.store.transition(ctx, projectID, id, StatusCommitted, time.Now().UTC(), StatusStaged)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotStaged, id)
		}
		return nil, err
	}

	if _, err := s.records.Insert(ctx, recs); err != nil {
		if _, rerr := s.store.transition(ctx, projectID, id, StatusStaged, time.Time{}, StatusCommitted); rerr != nil {
			s.logger.Error("batch status rollback failed", "import_id", id, "error", rerr)
		}
		return nil, fmt.Errorf("insert records: %w", err)
	}

	p.Batch = *committed
	s.logger.Info("import committed", "project_id", projectID, "import_id", id, "records", len(recs))
	return p, nil
}

func (s *service) Delete(ctx context.Context, projectID, id uuid.UUID) (*Batch, error) {
	b, err := s.store.find(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	if b.Status == StatusDeleted {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	deleted, err := s.store.transition(ctx, projectID, id, StatusDeleted, time.Now().UTC(), StatusStaged, StatusCommitted)
	if err != nil {
		return nil, err
	}

	if b.Status == StatusCommitted {
		n, err := s.records.RemoveImport(ctx, projectID, id)
		if err != nil {
			return nil, fmt.Errorf("remove imported records: %w", err)
		}
		s.logger.Info("imported records removed", "import_id", id, "records", n)
	}

	if err := s.storage.Delete(ctx, b.StorageKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.Warn("dataset blob delete failed", "key", b.StorageKey, "error", err)
	}

	s.logger.Info("import deleted", "project_id", projectID, "import_id", id)
	return deleted, nil
}

func (s *service) staged(ctx context.Context, projectID, id uuid.UUID) (*Batch, error) {
	b, err := s.store.find(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	if b.Status != StatusStaged {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotStaged, id, b.Status)
	}
	return b, nil
}

func (s *service) diff(ctx context.Context, b *Batch, rows []Row) (*Preview, error) {
	existing, err := s.records.All(ctx, b.ProjectID)
	if err != nil {
		return nil, err
	}

	type tree struct {
		plot string
		n    int
	}
	known := make(map[tree]bool, len(existing))
	for _, r := range existing {
		known[tree{r.PlotID, r.TreeNumber}] = true
	}

	p := &Preview{Batch: *b, Rows: len(rows)}
	for _, r := range rows {
		if r.Error != "" {
			p.Invalid++
			if len(p.Errors) < previewErrors {
				p.Errors = append(p.Errors, RowError{RowNumber: r.RowNumber, Error: r.Error})
			}
			continue
		}
		p.Valid++
		if known[tree{r.PlotID, r.TreeNumber}] {
			p.Matched++
		} else {
			p.Added++
		}
		if len(p.Sample) < previewSample {
			p.Sample = append(p.Sample, r)
		}
	}
	return p, nil
}

func buildStorageKey(projectID, id uuid.UUID, filename string) string {
	return fmt.Sprintf("uploads/%s/%s/%s", projectID, id, filename)
}

func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	if name == "." || name == "" || name == "/" {
		name = "dataset"
	}
	return url.PathEscape(name)
}
