package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/mrv/internal/pipeline"
	"github.com/JaimeStill/mrv/internal/projects"
	"github.com/JaimeStill/mrv/internal/records"
	"github.com/JaimeStill/mrv/pkg/problem"
	"github.com/JaimeStill/mrv/pkg/storage"
)

var (
	validate = validator.New(validator.WithRequiredStructEnabled())
	unsafe   = regexp.MustCompile(`[^a-z0-9]+`)
)

// System defines the public contract of biometric exports.
type System interface {
	Handler(advance pipeline.Advancer) *Handler

	// Export writes a snapshot of the project's active record set.
	Export(ctx context.Context, projectID uuid.UUID, params Params) (*Snapshot, error)
	// Download opens a snapshot by name. The caller must close Body.
	Download(ctx context.Context, projectID uuid.UUID, name string) (*storage.Blob, error)
}

type service struct {
	projects projects.System
	records  records.System
	storage  storage.System
	logger   *slog.Logger
}

// New creates the export system.
func New(projs projects.System, recs records.System, blobs storage.System, logger *slog.Logger) System {
	return &service{
		projects: projs,
		records:  recs,
		storage:  blobs,
		logger:   logger.With("system", "export"),
	}
}

func (s *service) Handler(advance pipeline.Advancer) *Handler {
	return NewHandler(s, advance, s.logger)
}

func (s *service) Export(ctx context.Context, projectID uuid.UUID, params Params) (*Snapshot, error) {
	if err := validate.Struct(params); err != nil {
		return nil, problem.FromValidator(err)
	}
	format := params.Format
	if format == "" {
		format = FormatCSV
	}

	var (
		project *projects.Project
		recs    []records.Record
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.projects.Find(gctx, projectID)
		project = p
		return err
	})
	g.Go(func() error {
		r, err := s.records.All(gctx, projectID)
		recs = r
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	buf, err := write(format, recs)
	if err != nil {
		return nil, fmt.Errorf("write %s export: %w", format, err)
	}

	now := time.Now().UTC()
	snap := &Snapshot{
		ProjectID: projectID,
		Name:      snapshotName(project.Name, now, format),
		Format:    format,
		Rows:      len(recs),
		CreatedAt: now,
	}
	snap.Key = buildStorageKey(projectID, snap.Name)
	for _, r := range recs {
		if r.Biomass == nil {
			snap.Incomplete++
		}
	}

	if err := s.storage.Upload(ctx, snap.Key, bytes.NewReader(buf.Bytes()), format.ContentType()); err != nil {
		return nil, fmt.Errorf("upload export: %w", err)
	}

	s.logger.Info("export written", "project_id", projectID, "key", snap.Key, "rows", snap.Rows, "incomplete", snap.Incomplete)
	return snap, nil
}

func (s *service) Download(ctx context.Context, projectID uuid.UUID, name string) (*storage.Blob, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	blob, err := s.storage.Download(ctx, buildStorageKey(projectID, name))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, err
	}
	return blob, nil
}

func buildStorageKey(projectID uuid.UUID, name string) string {
	return fmt.Sprintf("exports/%s/%s", projectID, name)
}

func snapshotName(project string, at time.Time, format Format) string {
	slug := strings.Trim(unsafe.ReplaceAllString(strings.ToLower(project), "-"), "-")
	if slug == "" {
		slug = "project"
	}
	return fmt.Sprintf("%s-tree-biometric-%s.%s", slug, at.Format("20060102T150405Z"), format)
}
