package jobs_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/JaimeStill/mrv/internal/jobs"
	"github.com/JaimeStill/mrv/pkg/lifecycle"
	"github.com/JaimeStill/mrv/pkg/problem"
	"github.com/JaimeStill/mrv/pkg/routes"
)

type reasonError string

func (e reasonError) Error() string  { return string(e) }
func (e reasonError) Reason() string { return string(e) }

func testConfig(t *testing.T) jobs.Config {
	t.Helper()
	cfg := jobs.Config{
		Workers:     2,
		BackoffBase: "5ms",
		BackoffMax:  "20ms",
		JobTimeout:  "2s",
	}
	require.NoError(t, cfg.Finalize(nil))
	return cfg
}

func newTracker(t *testing.T, cfg jobs.Config, store jobs.Store) *jobs.Tracker {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tr, err := jobs.New(store, cfg, logger, tracenoop.NewTracerProvider().Tracer("test"), metricnoop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	return tr
}

func start(t *testing.T, tr *jobs.Tracker) {
	t.Helper()
	lc := lifecycle.New()
	require.NoError(t, tr.Start(lc))
	t.Cleanup(func() { lc.Shutdown(5 * time.Second) })
}

func waitTerminal(t *testing.T, tr *jobs.Tracker, id uuid.UUID) jobs.Job {
	t.Helper()
	var job jobs.Job
	var mu sync.Mutex
	require.Eventually(t, func() bool {
		j, err := tr.Status(context.Background(), id)
		if err != nil {
			return false
		}
		mu.Lock()
		job = j
		mu.Unlock()
		return j.State.Terminal()
	}, 5*time.Second, 5*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	return job
}

func TestSubmitRunsHandler(t *testing.T) {
	tr := newTracker(t, testConfig(t), jobs.NewMemoryStore())
	tr.Register("height_prediction", jobs.HandlerFunc(func(ctx context.Context, job jobs.Job) (jobs.Result, error) {
		return jobs.Result{"records": 100}, nil
	}))

	var hooked atomic.Int32
	tr.OnComplete(func(j jobs.Job) { hooked.Add(1) })
	start(t, tr)

	job, err := tr.Submit(context.Background(), uuid.New(), "height_prediction", nil)
	require.NoError(t, err)
	assert.Equal(t, jobs.StateQueued, job.State)

	done := waitTerminal(t, tr, job.ID)
	assert.Equal(t, jobs.StateSucceeded, done.State)
	assert.Equal(t, 100, done.Result["records"])
	assert.Equal(t, 1, done.Attempts)
	assert.NotNil(t, done.CompletedAt)
	assert.Eventually(t, func() bool { return hooked.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSubmitDeduplicatesInFlight(t *testing.T) {
	release := make(chan struct{})
	tr := newTracker(t, testConfig(t), jobs.NewMemoryStore())
	tr.Register("biomass", jobs.HandlerFunc(func(ctx context.Context, job jobs.Job) (jobs.Result, error) {
		<-release
		return jobs.Result{}, nil
	}))
	start(t, tr)

	projectID := uuid.New()
	first, err := tr.Submit(context.Background(), projectID, "biomass", nil)
	require.NoError(t, err)

	second, err := tr.Submit(context.Background(), projectID, "biomass", nil)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "in-flight job should be returned")

	other, err := tr.Submit(context.Background(), uuid.New(), "biomass", nil)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID, "other projects get their own job")

	close(release)
	waitTerminal(t, tr, first.ID)

	fresh, err := tr.Submit(context.Background(), projectID, "biomass", nil)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, fresh.ID, "a terminal job is not reused")
	waitTerminal(t, tr, fresh.ID)
}

func TestFreshJobAfterFailure(t *testing.T) {
	var calls atomic.Int32
	tr := newTracker(t, testConfig(t), jobs.NewMemoryStore())
	tr.Register("volume_ratio", jobs.HandlerFunc(func(ctx context.Context, job jobs.Job) (jobs.Result, error) {
		if calls.Add(1) == 1 {
			return nil, reasonError(jobs.ReasonInvalidInput)
		}
		return jobs.Result{"records": 1}, nil
	}))
	start(t, tr)

	projectID := uuid.New()
	first, err := tr.Submit(context.Background(), projectID, "volume_ratio", nil)
	require.NoError(t, err)

	failed := waitTerminal(t, tr, first.ID)
	assert.Equal(t, jobs.StateFailed, failed.State)
	assert.Equal(t, jobs.ReasonInvalidInput, failed.Reason)
	assert.Equal(t, 1, failed.Attempts, "invalid input is not retried")

	second, err := tr.Submit(context.Background(), projectID, "volume_ratio", nil)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, jobs.StateSucceeded, waitTerminal(t, tr, second.ID).State)
}

func TestTransientFailuresRetry(t *testing.T) {
	var calls atomic.Int32
	tr := newTracker(t, testConfig(t), jobs.NewMemoryStore())
	tr.Register("height_prediction", jobs.HandlerFunc(func(ctx context.Context, job jobs.Job) (jobs.Result, error) {
		if calls.Add(1) < 3 {
			return nil, reasonError(jobs.ReasonModelUnavailable)
		}
		return jobs.Result{}, nil
	}))
	start(t, tr)

	job, err := tr.Submit(context.Background(), uuid.New(), "height_prediction", nil)
	require.NoError(t, err)

	done := waitTerminal(t, tr, job.ID)
	assert.Equal(t, jobs.StateSucceeded, done.State)
	assert.Equal(t, 3, done.Attempts)
}

func TestRetryStaysRunning(t *testing.T) {
	cfg := testConfig(t)
	cfg.BackoffBase = "60ms"
	cfg.BackoffMax = "60ms"

	failedOnce := make(chan struct{})
	var calls atomic.Int32
	tr := newTracker(t, cfg, jobs.NewMemoryStore())
	tr.Register("height_prediction", jobs.HandlerFunc(func(ctx context.Context, job jobs.Job) (jobs.Result, error) {
		if calls.Add(1) == 1 {
			close(failedOnce)
			return nil, reasonError(jobs.ReasonTimeout)
		}
		return jobs.Result{"records": 4}, nil
	}))
	start(t, tr)

	job, err := tr.Submit(context.Background(), uuid.New(), "height_prediction", nil)
	require.NoError(t, err)
	<-failedOnce

	var seen []jobs.State
	require.Eventually(t, func() bool {
		j, err := tr.Status(context.Background(), job.ID)
		if err != nil {
			return false
		}
		if len(seen) == 0 || seen[len(seen)-1] != j.State {
			seen = append(seen, j.State)
		}
		return j.State.Terminal()
	}, 5*time.Second, 2*time.Millisecond)

	assert.Equal(t, []jobs.State{jobs.StateRunning, jobs.StateSucceeded}, seen)

	done, err := tr.Status(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, done.Attempts)
}

func TestCancelDuringBackoff(t *testing.T) {
	cfg := testConfig(t)
	cfg.BackoffBase = "1s"
	cfg.BackoffMax = "1s"

	failedOnce := make(chan struct{})
	var calls atomic.Int32
	tr := newTracker(t, cfg, jobs.NewMemoryStore())
	tr.Register("biomass", jobs.HandlerFunc(func(ctx context.Context, job jobs.Job) (jobs.Result, error) {
		if calls.Add(1) == 1 {
			close(failedOnce)
		}
		return nil, reasonError(jobs.ReasonModelUnavailable)
	}))
	start(t, tr)

	job, err := tr.Submit(context.Background(), uuid.New(), "biomass", nil)
	require.NoError(t, err)
	<-failedOnce

	cancelled, err := tr.Cancel(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.ReasonCancelled, cancelled.Reason)

	time.Sleep(50 * time.Millisecond)
	got, err := tr.Status(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StateFailed, got.State)
	assert.Equal(t, jobs.ReasonCancelled, got.Reason)
	assert.Equal(t, int32(1), calls.Load(), "no attempt runs after cancellation")
}

func TestRetriesExhausted(t *testing.T) {
	tr := newTracker(t, testConfig(t), jobs.NewMemoryStore())
	tr.Register("height_prediction", jobs.HandlerFunc(func(ctx context.Context, job jobs.Job) (jobs.Result, error) {
		return nil, fmt.Errorf("evaluate: %w", reasonError(jobs.ReasonTimeout))
	}))
	start(t, tr)

	job, err := tr.Submit(context.Background(), uuid.New(), "height_prediction", nil)
	require.NoError(t, err)

	done := waitTerminal(t, tr, job.ID)
	assert.Equal(t, jobs.StateFailed, done.State)
	assert.Equal(t, jobs.ReasonTimeout, done.Reason)
	assert.Equal(t, 3, done.Attempts)
}

func TestPanicBecomesUnknown(t *testing.T) {
	tr := newTracker(t, testConfig(t), jobs.NewMemoryStore())
	tr.Register("biomass", jobs.HandlerFunc(func(ctx context.Context, job jobs.Job) (jobs.Result, error) {
		panic("nil model")
	}))
	start(t, tr)

	job, err := tr.Submit(context.Background(), uuid.New(), "biomass", nil)
	require.NoError(t, err)

	done := waitTerminal(t, tr, job.ID)
	assert.Equal(t, jobs.StateFailed, done.State)
	assert.Equal(t, jobs.ReasonUnknown, done.Reason)
	assert.Contains(t, done.Error, "nil model")
}

func TestCancelRunningJob(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	tr := newTracker(t, testConfig(t), jobs.NewMemoryStore())
	tr.Register("slanted_height", jobs.HandlerFunc(func(ctx context.Context, job jobs.Job) (jobs.Result, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return nil, ctx.Err()
	}))
	start(t, tr)

	job, err := tr.Submit(context.Background(), uuid.New(), "slanted_height", nil)
	require.NoError(t, err)
	<-started

	cancelled, err := tr.Cancel(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StateFailed, cancelled.State)
	assert.Equal(t, jobs.ReasonCancelled, cancelled.Reason)

	// The worker must not overwrite the cancellation.
	time.Sleep(50 * time.Millisecond)
	got, err := tr.Status(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.ReasonCancelled, got.Reason)

	again, err := tr.Cancel(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, cancelled.CompletedAt, again.CompletedAt, "cancelling a terminal job is a no-op")
}

func TestStatusHasNoSideEffects(t *testing.T) {
	store := jobs.NewMemoryStore()
	tr := newTracker(t, testConfig(t), store)
	tr.Register("biomass", jobs.HandlerFunc(func(ctx context.Context, job jobs.Job) (jobs.Result, error) {
		return jobs.Result{}, nil
	}))

	// Not started: the job stays queued.
	job, err := tr.Submit(context.Background(), uuid.New(), "biomass", nil)
	require.NoError(t, err)

	for range 5 {
		got, err := tr.Status(context.Background(), job.ID)
		require.NoError(t, err)
		assert.Equal(t, job, got)
	}

	_, err = tr.Status(context.Background(), uuid.New())
	assert.Equal(t, problem.KindNotFound, problem.KindOf(err))
}

func TestSubmitUnknownStage(t *testing.T) {
	tr := newTracker(t, testConfig(t), jobs.NewMemoryStore())

	_, err := tr.Submit(context.Background(), uuid.New(), "export", nil)
	assert.True(t, errors.Is(err, jobs.ErrNoHandler))
	assert.Equal(t, problem.KindValidation, problem.KindOf(err))
}

func TestRecoveryRequeuesUnfinished(t *testing.T) {
	store := jobs.NewMemoryStore()
	stale := jobs.Job{
		ID:          uuid.New(),
		ProjectID:   uuid.New(),
		Stage:       "biomass",
		State:       jobs.StateRunning,
		Attempts:    1,
		SubmittedAt: time.Now().UTC(),
	}
	_, created, err := store.CreateIfAbsent(context.Background(), stale)
	require.NoError(t, err)
	require.True(t, created)

	tr := newTracker(t, testConfig(t), store)
	tr.Register("biomass", jobs.HandlerFunc(func(ctx context.Context, job jobs.Job) (jobs.Result, error) {
		return jobs.Result{"records": 3}, nil
	}))
	start(t, tr)

	done := waitTerminal(t, tr, stale.ID)
	assert.Equal(t, jobs.StateSucceeded, done.State)
}

func TestMemoryStoreOrderingTiebreak(t *testing.T) {
	store := jobs.NewMemoryStore()
	ctx := context.Background()
	projectID := uuid.New()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	low := uuid.MustParse("00000000-0000-4000-8000-000000000001")
	high := uuid.MustParse("ffffffff-0000-4000-8000-000000000001")
	for _, id := range []uuid.UUID{high, low} {
		_, created, err := store.CreateIfAbsent(ctx, jobs.Job{
			ID:          id,
			ProjectID:   projectID,
			Stage:       "biomass",
			State:       jobs.StateFailed,
			Reason:      jobs.ReasonTimeout,
			SubmittedAt: at,
		})
		require.NoError(t, err)
		require.True(t, created)
	}

	for range 10 {
		latest, err := store.Latest(ctx, projectID, "biomass")
		require.NoError(t, err)
		assert.Equal(t, high, latest.ID)

		list, err := store.List(ctx, projectID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, []uuid.UUID{high, low}, []uuid.UUID{list[0].ID, list[1].ID})
	}
}

func TestReasonOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want jobs.Reason
	}{
		{"deadline", fmt.Errorf("eval: %w", context.DeadlineExceeded), jobs.ReasonTimeout},
		{"cancelled", context.Canceled, jobs.ReasonCancelled},
		{"reasoned", reasonError("ModelUnavailable"), jobs.ReasonModelUnavailable},
		{"unknown reason text", reasonError("Exploded"), jobs.ReasonUnknown},
		{"problem reason", problem.Computation("InvalidInput", "bad diameter"), jobs.ReasonInvalidInput},
		{"validation", problem.Invalid("bad params"), jobs.ReasonInvalidInput},
		{"plain", errors.New("boom"), jobs.ReasonUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, jobs.ReasonOf(tt.err))
		})
	}
}

func TestConfigBackoff(t *testing.T) {
	cfg := jobs.Config{BackoffBase: "1s", BackoffMax: "5s"}
	require.NoError(t, cfg.Finalize(nil))

	assert.Equal(t, time.Second, cfg.Backoff(1))
	assert.Equal(t, 2*time.Second, cfg.Backoff(2))
	assert.Equal(t, 4*time.Second, cfg.Backoff(3))
	assert.Equal(t, 5*time.Second, cfg.Backoff(4))
	assert.Equal(t, 64, cfg.QueueSize)
}

func TestHTTPHandler(t *testing.T) {
	release := make(chan struct{})
	tr := newTracker(t, testConfig(t), jobs.NewMemoryStore())
	tr.Register("biomass", jobs.HandlerFunc(func(ctx context.Context, job jobs.Job) (jobs.Result, error) {
		select {
		case <-release:
			return jobs.Result{}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}))
	start(t, tr)
	defer close(release)

	mux := http.NewServeMux()
	routes.Register(mux, jobs.NewHTTPHandler(tr, slog.New(slog.NewTextHandler(io.Discard, nil))).Routes())

	projectID := uuid.New()
	job, err := tr.Submit(context.Background(), projectID, "biomass", nil)
	require.NoError(t, err)

	serve := func(method, path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
		return rec
	}

	rec := serve(http.MethodGet, "/jobs/"+job.ID.String())
	require.Equal(t, http.StatusOK, rec.Code)
	var got jobs.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, job.ID, got.ID)

	rec = serve(http.MethodGet, "/projects/"+projectID.String()+"/jobs")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []jobs.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = serve(http.MethodPost, "/jobs/"+job.ID.String()+"/cancel")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, jobs.StateFailed, got.State)
	assert.Equal(t, jobs.ReasonCancelled, got.Reason)

	assert.Equal(t, http.StatusNotFound, serve(http.MethodGet, "/jobs/"+uuid.NewString()).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, serve(http.MethodGet, "/jobs/not-a-uuid").Code)
}
