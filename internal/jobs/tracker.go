// Package jobs runs asynchronous stage work in a bounded worker pool and
// tracks each run as a persisted job.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/JaimeStill/mrv/pkg/lifecycle"
)

// Tracker accepts job submissions, dispatches them to stage handlers, and
// records their outcome.
type Tracker struct {
	store    Store
	cfg      Config
	logger   *slog.Logger
	tracer   trace.Tracer
	finished metric.Int64Counter

	queue chan uuid.UUID

	mu       sync.Mutex
	handlers map[string]Handler
	cancels  map[uuid.UUID]context.CancelFunc
	hooks    []func(Job)
}

// New creates a Tracker. Handlers are registered before Start.
func New(store Store, cfg Config, logger *slog.Logger, tracer trace.Tracer, meter metric.Meter) (*Tracker, error) {
	finished, err := meter.Int64Counter(
		"mrv_jobs_finished_total",
		metric.WithDescription("Jobs reaching a terminal state by stage, state, and reason"),
	)
	if err != nil {
		return nil, fmt.Errorf("create job counter: %w", err)
	}

	return &Tracker{
		store:    store,
		cfg:      cfg,
		logger:   logger.With("system", "jobs"),
		tracer:   tracer,
		finished: finished,
		queue:    make(chan uuid.UUID, cfg.QueueSize),
		handlers: make(map[string]Handler),
		cancels:  make(map[uuid.UUID]context.CancelFunc),
	}, nil
}

// Register binds a handler to a stage.
func (t *Tracker) Register(stage string, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[stage] = h
}

// Handles reports whether a handler is registered for stage.
func (t *Tracker) Handles(stage string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.handlers[stage]
	return ok
}

// OnComplete registers a hook called with every job that reaches a
// terminal state.
func (t *Tracker) OnComplete(fn func(Job)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hooks = append(t.hooks, fn)
}

// Start launches the workers and re-enqueues jobs left unfinished by a
// previous process.
func (t *Tracker) Start(lc *lifecycle.Coordinator) error {
	for i := range t.cfg.Workers {
		lc.Go(func(ctx context.Context) {
			t.work(ctx, i)
		})
	}

	unfinished, err := t.store.Unfinished(lc.Context())
	if err != nil {
		return fmt.Errorf("load unfinished jobs: %w", err)
	}

	for _, j := range unfinished {
		if j.State == StateRunning {
			if _, err := t.store.Transition(lc.Context(), j.ID, func(j *Job) error {
				j.State = StateQueued
				return nil
			}); err != nil {
				return fmt.Errorf("requeue job %s: %w", j.ID, err)
			}
		}
		if err := t.enqueue(lc.Context(), j); err != nil {
			return err
		}
	}

	t.logger.Info("job tracker started", "workers", t.cfg.Workers, "recovered", len(unfinished))
	return nil
}

// Submit returns the in-flight job of the project's stage, or creates and
// enqueues a new one.
func (t *Tracker) Submit(ctx context.Context, projectID uuid.UUID, stage string, params json.RawMessage) (Job, error) {
	if !t.Handles(stage) {
		return Job{}, fmt.Errorf("%w: %s", ErrNoHandler, stage)
	}

	job := Job{
		ID:          uuid.New(),
		ProjectID:   projectID,
		Stage:       stage,
		State:       StateQueued,
		Params:      params,
		SubmittedAt: time.Now().UTC(),
	}

	j, created, err := t.store.CreateIfAbsent(ctx, job)
	if err != nil {
		return Job{}, fmt.Errorf("create job: %w", err)
	}
	if !created {
		t.logger.Debug("job already in flight", "job_id", j.ID, "project_id", projectID, "stage", stage)
		return j, nil
	}

	if err := t.enqueue(ctx, j); err != nil {
		return Job{}, err
	}

	t.logger.Info("job submitted", "job_id", j.ID, "project_id", projectID, "stage", stage)
	return j, nil
}

// Status returns a snapshot of a job. It has no side effects.
func (t *Tracker) Status(ctx context.Context, id uuid.UUID) (Job, error) {
	return t.store.Get(ctx, id)
}

// Latest returns the most recent job of a project's stage.
func (t *Tracker) Latest(ctx context.Context, projectID uuid.UUID, stage string) (Job, error) {
	return t.store.Latest(ctx, projectID, stage)
}

// List returns a project's jobs, newest first.
func (t *Tracker) List(ctx context.Context, projectID uuid.UUID) ([]Job, error) {
	return t.store.List(ctx, projectID)
}

// Active returns a project's non-terminal jobs.
func (t *Tracker) Active(ctx context.Context, projectID uuid.UUID) ([]Job, error) {
	return t.store.Active(ctx, projectID)
}

// Cancel fails a queued or running job with reason Cancelled. Cancelling a
// terminal job returns it unchanged.
func (t *Tracker) Cancel(ctx context.Context, id uuid.UUID) (Job, error) {
	var changed bool
	j, err := t.store.Transition(ctx, id, func(j *Job) error {
		if j.State.Terminal() {
			return nil
		}
		changed = true
		now := time.Now().UTC()
		j.State = StateFailed
		j.Reason = ReasonCancelled
		j.Error = "cancelled by request"
		j.CompletedAt = &now
		return nil
	})
	if err != nil {
		return Job{}, err
	}

	if !changed {
		return j, nil
	}

	t.mu.Lock()
	cancel, ok := t.cancels[id]
	t.mu.Unlock()
	if ok {
		cancel()
	}

	t.logger.Info("job cancelled", "job_id", id, "stage", j.Stage)
	t.complete(j)
	return j, nil
}

func (t *Tracker) enqueue(ctx context.Context, j Job) error {
	select {
	case t.queue <- j.ID:
		return nil
	default:
	}

	failed, err := t.store.Transition(ctx, j.ID, func(j *Job) error {
		now := time.Now().UTC()
		j.State = StateFailed
		j.Reason = ReasonUnknown
		j.Error = ErrQueueFull.Error()
		j.CompletedAt = &now
		return nil
	})
	if err != nil {
		return fmt.Errorf("fail unqueued job: %w", err)
	}
	t.complete(failed)
	return ErrQueueFull
}

func (t *Tracker) work(ctx context.Context, worker int) {
	logger := t.logger.With("worker", worker)
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-t.queue:
			t.execute(ctx, logger, id)
		}
	}
}

var errSkip = errors.New("job no longer queued")

func (t *Tracker) execute(ctx context.Context, logger *slog.Logger, id uuid.UUID) {
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	t.mu.Lock()
	t.cancels[id] = cancel
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.cancels, id)
		t.mu.Unlock()
	}()

	job, err := t.store.Transition(ctx, id, func(j *Job) error {
		if j.State != StateQueued {
			return errSkip
		}
		now := time.Now().UTC()
		j.State = StateRunning
		j.Attempts = 1
		if j.StartedAt == nil {
			j.StartedAt = &now
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, errSkip) {
			logger.Error("start job", "job_id", id, "error", err)
		}
		return
	}

	// The job stays running through retries and backoff.
	for attempt := 1; ; attempt++ {
		result, err := t.attempt(jobCtx, job)
		if err == nil {
			t.finish(ctx, id, func(j *Job) {
				j.State = StateSucceeded
				j.Result = result
			})
			return
		}

		reason := ReasonOf(err)
		if jobCtx.Err() != nil && ctx.Err() == nil {
			// Cancel already recorded the terminal state.
			return
		}
		if ctx.Err() != nil {
			logger.Warn("job interrupted by shutdown", "job_id", id, "attempt", attempt)
			t.requeue(ctx, id)
			return
		}

		logger.Warn("job attempt failed",
			"job_id", id,
			"stage", job.Stage,
			"attempt", attempt,
			"reason", reason,
			"error", err,
		)

		if !reason.Transient() || attempt >= t.cfg.MaxAttempts {
			t.finish(ctx, id, func(j *Job) {
				j.State = StateFailed
				j.Reason = reason
				j.Error = err.Error()
			})
			return
		}

		select {
		case <-jobCtx.Done():
			if ctx.Err() != nil {
				t.requeue(ctx, id)
			}
			return
		case <-time.After(t.cfg.Backoff(attempt)):
		}

		next := attempt + 1
		job, err = t.store.Transition(ctx, id, func(j *Job) error {
			if j.State != StateRunning {
				return errSkip
			}
			j.Attempts = next
			return nil
		})
		if err != nil {
			if !errors.Is(err, errSkip) {
				logger.Error("retry job", "job_id", id, "error", err)
			}
			return
		}
	}
}

// requeue returns a running job to the queue so recovery picks it up on the
// next start.
func (t *Tracker) requeue(ctx context.Context, id uuid.UUID) {
	t.store.Transition(context.WithoutCancel(ctx), id, func(j *Job) error {
		if j.State == StateRunning {
			j.State = StateQueued
		}
		return nil
	})
}

// attempt runs the stage handler once under the per-job timeout. Panics are
// reported as errors.
func (t *Tracker) attempt(ctx context.Context, job Job) (result Result, err error) {
	t.mu.Lock()
	h, ok := t.handlers[job.Stage]
	t.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, job.Stage)
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.JobTimeoutDuration())
	defer cancel()

	ctx, span := t.tracer.Start(ctx, "job."+job.Stage,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("job.id", job.ID.String()),
			attribute.String("job.project_id", job.ProjectID.String()),
			attribute.Int("job.attempt", job.Attempts),
		),
	)
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("job handler panic", "job_id", job.ID, "panic", r, "stack", string(debug.Stack()))
			result, err = nil, fmt.Errorf("handler panic: %v", r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	return h.Handle(ctx, job)
}

func (t *Tracker) finish(ctx context.Context, id uuid.UUID, fn func(*Job)) {
	j, err := t.store.Transition(context.WithoutCancel(ctx), id, func(j *Job) error {
		if j.State.Terminal() {
			return errSkip
		}
		now := time.Now().UTC()
		fn(j)
		j.CompletedAt = &now
		return nil
	})
	if err != nil {
		if !errors.Is(err, errSkip) {
			t.logger.Error("finish job", "job_id", id, "error", err)
		}
		return
	}

	t.logger.Info("job finished", "job_id", id, "stage", j.Stage, "state", j.State, "reason", j.Reason, "attempts", j.Attempts)
	t.complete(j)
}

func (t *Tracker) complete(j Job) {
	t.finished.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("stage", j.Stage),
		attribute.String("state", string(j.State)),
		attribute.String("reason", string(j.Reason)),
	))

	t.mu.Lock()
	hooks := append([]func(Job){}, t.hooks...)
	t.mu.Unlock()

	for _, fn := range hooks {
		fn(j)
	}
}
