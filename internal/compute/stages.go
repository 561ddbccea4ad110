package compute

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/mrv/internal/jobs"
	"github.com/JaimeStill/mrv/internal/pipeline"
	"github.com/JaimeStill/mrv/internal/records"
	"github.com/JaimeStill/mrv/internal/reference"
)

// SpeciesResolver supplies a project's species mappings, source code to
// reference species code.
type SpeciesResolver interface {
	SpeciesMappings(ctx context.Context, projectID uuid.UUID) (map[string]string, error)
}

// Stages runs the compute-heavy pipeline stages as job handlers.
type Stages struct {
	records  records.System
	catalog  *reference.Catalog
	resolver SpeciesResolver
	engine   Engine
	cfg      Config
	logger   *slog.Logger
}

// NewStages creates the stage handlers. resolver may be nil when projects
// carry no species mappings.
func NewStages(recs records.System, catalog *reference.Catalog, resolver SpeciesResolver, engine Engine, cfg Config, logger *slog.Logger) *Stages {
	return &Stages{
		records:  recs,
		catalog:  catalog,
		resolver: resolver,
		engine:   engine,
		cfg:      cfg,
		logger:   logger.With("system", "compute"),
	}
}

// Handlers returns a handler per async stage, keyed by stage name.
func (s *Stages) Handlers() map[string]jobs.Handler {
	return map[string]jobs.Handler{
		string(pipeline.StageHeightPrediction): jobs.HandlerFunc(s.PredictHeights),
		string(pipeline.StageSlantedHeight):    jobs.HandlerFunc(s.SlantedHeights),
		string(pipeline.StageVolumeRatio):      jobs.HandlerFunc(s.VolumeRatios),
		string(pipeline.StageBiomass):          jobs.HandlerFunc(s.Biomass),
	}
}

// batch is one model evaluated over a set of records.
type batch struct {
	model  Model
	ids    []uuid.UUID
	inputs []Inputs
	out    []float64
}

func (b *batch) add(id uuid.UUID, in Inputs) {
	b.ids = append(b.ids, id)
	b.inputs = append(b.inputs, in)
}

// batches groups records by model id, keeping first-seen order.
type batches struct {
	order []string
	by    map[string]*batch
}

func (bs *batches) get(m Model) *batch {
	if bs.by == nil {
		bs.by = make(map[string]*batch)
	}
	b, ok := bs.by[m.ID]
	if !ok {
		b = &batch{model: m}
		bs.by[m.ID] = b
		bs.order = append(bs.order, m.ID)
	}
	return b
}

func (bs *batches) list() []*batch {
	out := make([]*batch, len(bs.order))
	for i, id := range bs.order {
		out[i] = bs.by[id]
	}
	return out
}

// PredictHeights evaluates each record's assigned HD model at its diameter.
func (s *Stages) PredictHeights(ctx context.Context, job jobs.Job) (jobs.Result, error) {
	recs, err := s.records.All(ctx, job.ProjectID)
	if err != nil {
		return nil, err
	}

	var bs batches
	skipped := 0
	for _, r := range recs {
		if r.HDModelID == nil || r.Diameter == nil {
			skipped++
			continue
		}
		m, ok := s.catalog.FindHDModel(*r.HDModelID)
		if !ok {
			return nil, Unavailable("hd model %s is not in the reference catalog", *r.HDModelID)
		}
		bs.get(fromReference(m)).add(r.ID, Inputs{Diameter: *r.Diameter})
	}

	return s.apply(ctx, job, bs.list(), skipped, func(id uuid.UUID, v float64) records.Derived {
		return records.Derived{RecordID: id, PredictedHeight: &v}
	})
}

// SlantedHeights corrects each record's working height for terrain slope.
func (s *Stages) SlantedHeights(ctx context.Context, job jobs.Job) (jobs.Result, error) {
	recs, err := s.records.All(ctx, job.ProjectID)
	if err != nil {
		return nil, err
	}

	var bs batches
	b := bs.get(Model{ID: "slope-correction", Form: FormSlopeCorrection})
	skipped := 0
	for _, r := range recs {
		h := r.WorkingHeight()
		if h == nil {
			skipped++
			continue
		}
		in := Inputs{Height: *h}
		if r.SlopePercent != nil {
			in.SlopePercent = *r.SlopePercent
		}
		b.add(r.ID, in)
	}

	return s.apply(ctx, job, bs.list(), skipped, func(id uuid.UUID, v float64) records.Derived {
		return records.Derived{RecordID: id, SlantedHeight: &v}
	})
}

// VolumeRatios computes stem volume from the slanted height and the
// species form factor, and the ratio of that volume to the cylinder of the
// record's diameter and vertical height.
func (s *Stages) VolumeRatios(ctx context.Context, job jobs.Job) (jobs.Result, error) {
	recs, err := s.records.All(ctx, job.ProjectID)
	if err != nil {
		return nil, err
	}
	species, err := s.species(ctx, job.ProjectID)
	if err != nil {
		return nil, err
	}

	var bs batches
	b := bs.get(Model{ID: "stem-volume", Form: FormVolume})
	cylinders := make(map[uuid.UUID]float64)
	skipped := 0
	for _, r := range recs {
		sp, ok := species(r.SpeciesCode)
		h := r.WorkingHeight()
		if !ok || sp.FormFactor <= 0 || r.Diameter == nil || r.SlantedHeight == nil || h == nil {
			skipped++
			continue
		}
		b.add(r.ID, Inputs{Diameter: *r.Diameter, Height: *r.SlantedHeight, FormFactor: sp.FormFactor})
		cylinders[r.ID] = BasalArea(*r.Diameter) * *h
	}

	return s.apply(ctx, job, bs.list(), skipped, func(id uuid.UUID, v float64) records.Derived {
		ratio := v / cylinders[id]
		return records.Derived{RecordID: id, Volume: &v, VolumeRatio: &ratio}
	})
}

// Biomass evaluates each record's assigned allometric model.
func (s *Stages) Biomass(ctx context.Context, job jobs.Job) (jobs.Result, error) {
	recs, err := s.records.All(ctx, job.ProjectID)
	if err != nil {
		return nil, err
	}
	species, err := s.species(ctx, job.ProjectID)
	if err != nil {
		return nil, err
	}

	var bs batches
	skipped := 0
	for _, r := range recs {
		h := r.WorkingHeight()
		sp, ok := species(r.SpeciesCode)
		if r.AllometricModelID == nil || r.Diameter == nil || h == nil || !ok {
			skipped++
			continue
		}
		m, found := s.catalog.FindAllometric(*r.AllometricModelID)
		if !found {
			return nil, Unavailable("allometric model %s is not in the reference catalog", *r.AllometricModelID)
		}
		in := Inputs{
			Diameter:    *r.Diameter,
			Height:      *h,
			WoodDensity: sp.WoodDensity,
			FormFactor:  sp.FormFactor,
		}
		if r.Volume != nil {
			in.Volume = *r.Volume
		}
		if m.Form == FormVolumeDensity && in.Volume <= 0 {
			skipped++
			continue
		}
		bs.get(fromReference(m)).add(r.ID, in)
	}

	return s.apply(ctx, job, bs.list(), skipped, func(id uuid.UUID, v float64) records.Derived {
		return records.Derived{RecordID: id, Biomass: &v}
	})
}

func fromReference(m reference.Model) Model {
	return Model{ID: m.ID, Form: m.Form, Params: m.Params}
}

// species resolves a record's species code to the reference catalog,
// directly or through the project's species mappings.
func (s *Stages) species(ctx context.Context, projectID uuid.UUID) (func(string) (reference.Species, bool), error) {
	var mappings map[string]string
	if s.resolver != nil {
		m, err := s.resolver.SpeciesMappings(ctx, projectID)
		if err != nil {
			return nil, fmt.Errorf("load species mappings: %w", err)
		}
		mappings = m
	}

	return func(code string) (reference.Species, bool) {
		if sp, ok := s.catalog.FindSpecies(code); ok {
			return sp, true
		}
		if target, ok := mappings[code]; ok {
			return s.catalog.FindSpecies(target)
		}
		return reference.Species{}, false
	}, nil
}

func (s *Stages) apply(ctx context.Context, job jobs.Job, bs []*batch, skipped int, derive func(uuid.UUID, float64) records.Derived) (jobs.Result, error) {
	if err := s.evaluate(ctx, bs); err != nil {
		return nil, err
	}

	var derived []records.Derived
	for _, b := range bs {
		for i, id := range b.ids {
			derived = append(derived, derive(id, b.out[i]))
		}
	}

	n, err := s.records.ApplyDerived(ctx, job.ProjectID, derived)
	if err != nil {
		return nil, fmt.Errorf("apply %s results: %w", job.Stage, err)
	}

	s.logger.Info(
		"stage evaluated",
		"stage", job.Stage,
		"project_id", job.ProjectID,
		"job_id", job.ID,
		"records", n,
		"skipped", skipped,
	)

	return jobs.Result{"records": n, "skipped": skipped}, nil
}

// evaluate runs every batch through the engine in chunks, with at most
// cfg.Parallelism chunks in flight.
func (s *Stages) evaluate(ctx context.Context, bs []*batch) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.cfg.Parallelism, 1))

	size := max(s.cfg.ChunkSize, 1)
	for _, b := range bs {
		b.out = make([]float64, len(b.inputs))
		for lo := 0; lo < len(b.inputs); lo += size {
			hi := min(lo+size, len(b.inputs))
			g.Go(func() error {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				vals, err := s.engine.Evaluate(gctx, b.model, b.inputs[lo:hi])
				if err != nil {
					return err
				}
				copy(b.out[lo:hi], vals)
				return nil
			})
		}
	}

	return g.Wait()
}
