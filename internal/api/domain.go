package api

import (
	"fmt"

	"github.com/JaimeStill/mrv/internal/assignment"
	"github.com/JaimeStill/mrv/internal/cleaning"
	"github.com/JaimeStill/mrv/internal/compute"
	"github.com/JaimeStill/mrv/internal/config"
	"github.com/JaimeStill/mrv/internal/export"
	"github.com/JaimeStill/mrv/internal/imports"
	"github.com/JaimeStill/mrv/internal/jobs"
	"github.com/JaimeStill/mrv/internal/pipeline"
	"github.com/JaimeStill/mrv/internal/projects"
	"github.com/JaimeStill/mrv/internal/quality"
	"github.com/JaimeStill/mrv/internal/records"
	"github.com/JaimeStill/mrv/internal/reference"
)

// Domain holds all domain systems that comprise the API.
type Domain struct {
	Catalog      *reference.Catalog
	Projects     projects.System
	Records      records.System
	Imports      imports.System
	Quality      quality.System
	Cleaning     cleaning.System
	Assignment   assignment.System
	Export       export.System
	Jobs         *jobs.Tracker
	Orchestrator *pipeline.Orchestrator
}

// NewDomain creates all domain systems from the API runtime, backed by
// Postgres or process memory per cfg.Store, and registers every stage with
// the orchestrator and the job tracker.
func NewDomain(cfg *config.Config, runtime *Runtime) (*Domain, error) {
	catalog, err := reference.Load(&cfg.Reference)
	if err != nil {
		return nil, fmt.Errorf("load reference catalog: %w", err)
	}

	d := &Domain{Catalog: catalog}
	var jobStore jobs.Store

	switch cfg.Store {
	case config.StoreMemory:
		d.Projects = projects.NewMemory(runtime.Logger, runtime.Pagination)
		d.Records = records.NewMemory(runtime.Logger, runtime.Pagination)
		d.Imports = imports.NewMemory(d.Records, runtime.Storage, runtime.Logger, runtime.Pagination)
		d.Assignment = assignment.NewMemory(d.Records, catalog, runtime.Logger)
		d.Quality = quality.NewMemory(d.Records, catalog, d.Assignment, cfg.Quality, runtime.Logger)
		jobStore = jobs.NewMemoryStore()
	default:
		db := runtime.DB
		d.Projects = projects.New(db, runtime.Logger, runtime.Pagination)
		d.Records = records.New(db, runtime.Logger, runtime.Pagination)
		d.Imports = imports.New(db, d.Records, runtime.Storage, runtime.Logger, runtime.Pagination)
		d.Assignment = assignment.New(db, d.Records, catalog, runtime.Logger)
		d.Quality = quality.New(db, d.Records, catalog, d.Assignment, cfg.Quality, runtime.Logger)
		jobStore = jobs.NewStore(db)
	}

	d.Cleaning = cleaning.New(d.Records, runtime.Logger, runtime.Pagination)
	d.Export = export.New(d.Projects, d.Records, runtime.Storage, runtime.Logger)

	tel := runtime.Telemetry
	d.Jobs, err = jobs.New(jobStore, cfg.Jobs, runtime.Logger, tel.Tracer, tel.Meter)
	if err != nil {
		return nil, fmt.Errorf("job tracker: %w", err)
	}

	engine := compute.NewLocal()
	if cfg.Compute.Engine == compute.EngineRemote {
		engine = compute.NewRemote(&cfg.Compute)
	}
	stages := compute.NewStages(d.Records, catalog, d.Assignment, engine, cfg.Compute, runtime.Logger)
	for stage, h := range stages.Handlers() {
		d.Jobs.Register(stage, h)
	}

	d.Orchestrator, err = pipeline.New(d.Projects, d.Jobs, cfg.Pipeline, runtime.Logger, tel.Tracer, tel.Meter)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	d.Orchestrator.Register(pipeline.StageImport, imports.StageRunner(d.Imports))
	d.Orchestrator.Register(pipeline.StagePreview, imports.PreviewRunner(d.Imports))
	d.Orchestrator.Register(pipeline.StageQualityCheck, quality.Runner(d.Quality))
	d.Orchestrator.Register(pipeline.StageCleaning, cleaning.Runner(d.Cleaning))
	d.Orchestrator.Register(pipeline.StageHDAssignment, assignment.HDRunner(d.Assignment))
	d.Orchestrator.Register(pipeline.StageAllometricAssignment, assignment.AllometricRunner(d.Assignment))
	d.Orchestrator.Register(pipeline.StageExport, export.Runner(d.Export))

	return d, nil
}
