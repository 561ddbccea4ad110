package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/JaimeStill/mrv/internal/jobs"
	"github.com/JaimeStill/mrv/internal/projects"
	"github.com/JaimeStill/mrv/pkg/keylock"
	"github.com/JaimeStill/mrv/pkg/problem"
)

// Jobs is the part of the job tracker the orchestrator drives.
type Jobs interface {
	Submit(ctx context.Context, projectID uuid.UUID, stage string, params json.RawMessage) (jobs.Job, error)
	Status(ctx context.Context, id uuid.UUID) (jobs.Job, error)
	Latest(ctx context.Context, projectID uuid.UUID, stage string) (jobs.Job, error)
	Active(ctx context.Context, projectID uuid.UUID) ([]jobs.Job, error)
	OnComplete(fn func(jobs.Job))
}

// StageView is one stage of a project's pipeline state.
type StageView struct {
	Stage       Stage                `json:"stage"`
	Async       bool                 `json:"async"`
	Status      projects.StageStatus `json:"status"`
	JobID       *uuid.UUID           `json:"job_id,omitempty"`
	LastRunAt   *time.Time           `json:"last_run_at,omitempty"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
	Detail      string               `json:"detail,omitempty"`
	Ready       bool                 `json:"ready"`
	Missing     []Stage              `json:"missing,omitempty"`
}

// Orchestrator advances projects through the stage graph. Sync stages run
// in the caller's goroutine; async stages are submitted as jobs.
type Orchestrator struct {
	projects projects.System
	jobs     Jobs
	cfg      Config
	logger   *slog.Logger
	tracer   trace.Tracer
	advances metric.Int64Counter
	locks    *keylock.Map
	runners  map[Stage]Runner
}

// New creates an Orchestrator and subscribes it to job completions.
// Runners are registered before the first Advance.
func New(projs projects.System, js Jobs, cfg Config, logger *slog.Logger, tracer trace.Tracer, meter metric.Meter) (*Orchestrator, error) {
	advances, err := meter.Int64Counter(
		"mrv_stage_advances_total",
		metric.WithDescription("Stage advance requests by stage and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("create advance counter: %w", err)
	}

	o := &Orchestrator{
		projects: projs,
		jobs:     js,
		cfg:      cfg,
		logger:   logger.With("system", "pipeline"),
		tracer:   tracer,
		advances: advances,
		locks:    keylock.New(),
		runners:  make(map[Stage]Runner),
	}
	js.OnComplete(o.jobFinished)
	return o, nil
}

// Register binds the runner of a synchronous stage.
func (o *Orchestrator) Register(stage Stage, r Runner) {
	o.runners[stage] = r
}

// Handler returns the pipeline HTTP handler.
func (o *Orchestrator) Handler() *Handler {
	return NewHandler(o, o.logger)
}

// Advance runs or submits a stage for a project once its predecessors have
// succeeded. Blocked and rejected advances leave all state unchanged.
func (o *Orchestrator) Advance(ctx context.Context, projectID uuid.UUID, stage Stage, params json.RawMessage) (out Outcome, err error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.advance",
		trace.WithAttributes(
			attribute.String("project.id", projectID.String()),
			attribute.String("stage", string(stage)),
		),
	)
	defer func() {
		result := string(out.Kind)
		if err != nil {
			result = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("outcome", result))
		span.End()
		o.advances.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("stage", string(stage)),
			attribute.String("outcome", result),
		))
	}()

	node, ok := Lookup(stage)
	if !ok {
		_, err := ParseStage(string(stage))
		return Outcome{}, err
	}

	if _, err := o.projects.Find(ctx, projectID); err != nil {
		return Outcome{}, err
	}

	unlock, err := o.lock(ctx, projectID, stage)
	if err != nil {
		return Outcome{}, err
	}
	defer unlock()

	missing, err := o.missing(ctx, projectID, stage)
	if err != nil {
		return Outcome{}, err
	}
	if len(missing) > 0 {
		o.logger.Info("stage blocked", "project_id", projectID, "stage", stage, "missing", missing)
		return Outcome{Kind: OutcomeBlocked, Stage: stage, Missing: missing}, nil
	}

	if node.Async {
		return o.submit(ctx, projectID, stage, params)
	}
	return o.run(ctx, node, projectID, params)
}

// State returns every stage of a project in pipeline order.
func (o *Orchestrator) State(ctx context.Context, projectID uuid.UUID) ([]StageView, error) {
	states, err := o.stages(ctx, projectID)
	if err != nil {
		return nil, err
	}

	done := func(s Stage) bool { return states[s].Succeeded() }

	out := make([]StageView, 0, len(Graph))
	for _, n := range Graph {
		v := StageView{Stage: n.Stage, Async: n.Async, Status: projects.StagePending}
		if st, ok := states[n.Stage]; ok {
			v.Status = st.Status
			v.JobID = st.JobID
			v.LastRunAt = st.LastRunAt
			v.CompletedAt = st.CompletedAt
			v.Detail = st.Detail
		}
		v.Missing = Missing(n.Stage, done)
		v.Ready = len(v.Missing) == 0
		out = append(out, v)
	}
	return out, nil
}

// Latest returns the most recent job of an async stage.
func (o *Orchestrator) Latest(ctx context.Context, projectID uuid.UUID, stage Stage) (jobs.Job, error) {
	return o.jobs.Latest(ctx, projectID, string(stage))
}

func (o *Orchestrator) lock(ctx context.Context, projectID uuid.UUID, stage Stage) (func(), error) {
	lctx, cancel := context.WithTimeout(ctx, o.cfg.LockTimeoutDuration())
	defer cancel()

	unlock, err := o.locks.Lock(lctx, projectID.String()+"/"+string(stage))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s", ErrStageBusy, stage)
	}
	return unlock, nil
}

func (o *Orchestrator) stages(ctx context.Context, projectID uuid.UUID) (map[Stage]projects.StageState, error) {
	rows, err := o.projects.Stages(ctx, projectID)
	if err != nil {
		return nil, err
	}
	states := make(map[Stage]projects.StageState, len(rows))
	for _, st := range rows {
		states[Stage(st.Stage)] = st
	}
	return states, nil
}

func (o *Orchestrator) missing(ctx context.Context, projectID uuid.UUID, stage Stage) ([]Stage, error) {
	states, err := o.stages(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return Missing(stage, func(s Stage) bool { return states[s].Succeeded() }), nil
}

func (o *Orchestrator) submit(ctx context.Context, projectID uuid.UUID, stage Stage, params json.RawMessage) (Outcome, error) {
	job, err := o.jobs.Submit(ctx, projectID, string(stage), params)
	if err != nil {
		return Outcome{}, err
	}

	if err := o.projects.MarkRunning(ctx, projectID, string(stage), &job.ID); err != nil {
		return Outcome{}, err
	}

	// A job can finish before MarkRunning lands; replay its completion.
	if cur, err := o.jobs.Status(ctx, job.ID); err == nil && cur.State.Terminal() {
		o.jobFinished(cur)
		job = cur
	}

	o.logger.Info("stage submitted", "project_id", projectID, "stage", stage, "job_id", job.ID)
	return Outcome{Kind: OutcomeSubmitted, Stage: stage, Job: &job}, nil
}

func (o *Orchestrator) run(ctx context.Context, node Node, projectID uuid.UUID, params json.RawMessage) (Outcome, error) {
	stage := node.Stage

	r, ok := o.runners[stage]
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s", ErrNoRunner, stage)
	}

	if node.MutatesRecords {
		active, err := o.jobs.Active(ctx, projectID)
		if err != nil {
			return Outcome{}, err
		}
		if len(active) > 0 {
			names := make([]string, len(active))
			for i, j := range active {
				names[i] = j.Stage
			}
			return Outcome{}, fmt.Errorf("%w: %s", ErrJobsActive, strings.Join(names, ", "))
		}
	}

	start := time.Now()
	res, err := r.Run(ctx, projectID, params)
	if err != nil {
		return o.runFailed(ctx, projectID, stage, err)
	}

	if res.Provisional {
		return Outcome{Kind: OutcomeCompleted, Stage: stage, Result: &res}, nil
	}

	if err := o.projects.MarkSucceeded(ctx, projectID, string(stage), res.Detail); err != nil {
		return Outcome{}, fmt.Errorf("record stage success: %w", err)
	}

	o.logger.Info("stage completed",
		"project_id", projectID,
		"stage", stage,
		"detail", res.Detail,
		"duration", time.Since(start),
	)
	return Outcome{Kind: OutcomeCompleted, Stage: stage, Result: &res}, nil
}

// runFailed classifies a runner error. Validation errors reject the
// advance; faults are recorded as stage failures; other kinds are returned
// as they are.
func (o *Orchestrator) runFailed(ctx context.Context, projectID uuid.UUID, stage Stage, err error) (Outcome, error) {
	switch problem.KindOf(err) {
	case problem.KindValidation:
		pe := problem.As(err)
		return Outcome{Kind: OutcomeRejected, Stage: stage, Detail: pe.Detail, Fields: pe.Fields}, nil
	case problem.KindInternal, problem.KindComputationFailed, problem.KindPartialFailure:
		if errors.Is(err, context.Canceled) {
			return Outcome{}, err
		}
		if merr := o.projects.MarkFailed(context.WithoutCancel(ctx), projectID, string(stage), err.Error()); merr != nil {
			o.logger.Error("record stage failure", "project_id", projectID, "stage", stage, "error", merr)
		}
		o.logger.Warn("stage failed", "project_id", projectID, "stage", stage, "error", err)
	}
	return Outcome{}, err
}

func (o *Orchestrator) jobFinished(j jobs.Job) {
	ctx := context.Background()

	var err error
	switch j.State {
	case jobs.StateSucceeded:
		err = o.projects.MarkSucceeded(ctx, j.ProjectID, j.Stage, summarize(j.Result))
	case jobs.StateFailed:
		err = o.projects.MarkFailed(ctx, j.ProjectID, j.Stage, fmt.Sprintf("%s: %s", j.Reason, j.Error))
	default:
		return
	}
	if err != nil {
		o.logger.Error("record job outcome", "job_id", j.ID, "stage", j.Stage, "error", err)
	}
}

func summarize(r jobs.Result) string {
	parts := make([]string, 0, len(r))
	for _, k := range slices.Sorted(maps.Keys(r)) {
		parts = append(parts, fmt.Sprintf("%s=%d", k, r[k]))
	}
	return strings.Join(parts, " ")
}
