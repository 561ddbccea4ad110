package compute_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/JaimeStill/mrv/internal/compute"
	"github.com/JaimeStill/mrv/internal/jobs"
	"github.com/JaimeStill/mrv/internal/records"
	"github.com/JaimeStill/mrv/internal/records/recordstest"
	"github.com/JaimeStill/mrv/internal/reference"
	"github.com/JaimeStill/mrv/pkg/problem"
)

const tolerance = 1e-9

func approx(a, b float64) bool { return math.Abs(a-b) < tolerance*math.Max(1, math.Abs(b)) }

func TestLocalForms(t *testing.T) {
	engine := compute.NewLocal()

	tests := []struct {
		name  string
		model compute.Model
		in    compute.Inputs
		want  float64
	}{
		{
			"naslund",
			compute.Model{ID: "n", Form: compute.FormNaslund, Params: map[string]float64{"a": 1, "b": 0.2}},
			compute.Inputs{Diameter: 20},
			1.3 + 400.0/25.0,
		},
		{
			"michailoff",
			compute.Model{ID: "m", Form: compute.FormMichailoff, Params: map[string]float64{"a": 30, "b": 10}},
			compute.Inputs{Diameter: 10},
			1.3 + 30*math.Exp(-1),
		},
		{
			"power",
			compute.Model{ID: "p", Form: compute.FormPower, Params: map[string]float64{"a": 2, "b": 0.5}},
			compute.Inputs{Diameter: 16},
			8,
		},
		{
			"slope correction",
			compute.Model{ID: "s", Form: compute.FormSlopeCorrection},
			compute.Inputs{Height: 10, SlopePercent: 75},
			12.5,
		},
		{
			"flat ground keeps height",
			compute.Model{ID: "s", Form: compute.FormSlopeCorrection},
			compute.Inputs{Height: 10},
			10,
		},
		{
			"volume",
			compute.Model{ID: "v", Form: compute.FormVolume},
			compute.Inputs{Diameter: 20, Height: 10, FormFactor: 0.5},
			0.5 * math.Pi * 0.01 * 10,
		},
		{
			"chave2014",
			compute.Model{ID: "c", Form: compute.FormChave2014},
			compute.Inputs{Diameter: 30, Height: 20, WoodDensity: 0.6},
			0.0673 * math.Pow(0.6*900*20, 0.976),
		},
		{
			"volume density",
			compute.Model{ID: "vd", Form: compute.FormVolumeDensity, Params: map[string]float64{"bef": 1.5}},
			compute.Inputs{Volume: 0.4, WoodDensity: 0.5},
			300,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engine.Evaluate(context.Background(), tt.model, []compute.Inputs{tt.in})
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if len(got) != 1 || !approx(got[0], tt.want) {
				t.Errorf("Evaluate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLocalErrors(t *testing.T) {
	engine := compute.NewLocal()

	tests := []struct {
		name   string
		model  compute.Model
		in     compute.Inputs
		reason string
	}{
		{"unknown form", compute.Model{ID: "x", Form: "spline"}, compute.Inputs{Diameter: 10}, compute.ReasonModelUnavailable},
		{"missing parameter", compute.Model{ID: "p", Form: compute.FormPower, Params: map[string]float64{"a": 1}}, compute.Inputs{Diameter: 10}, compute.ReasonInvalidInput},
		{"non-positive diameter", compute.Model{ID: "p", Form: compute.FormPower, Params: map[string]float64{"a": 1, "b": 1}}, compute.Inputs{}, compute.ReasonInvalidInput},
		{"missing wood density", compute.Model{ID: "c", Form: compute.FormChave2014}, compute.Inputs{Diameter: 10, Height: 5}, compute.ReasonInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Evaluate(context.Background(), tt.model, []compute.Inputs{tt.in})
			if got := compute.ReasonOf(err); got != tt.reason {
				t.Errorf("reason = %q, want %q (err %v)", got, tt.reason, err)
			}
			if problem.KindOf(err) != problem.KindComputationFailed {
				t.Errorf("kind = %s, want %s", problem.KindOf(err), problem.KindComputationFailed)
			}
			if got := jobs.ReasonOf(err); string(got) != tt.reason {
				t.Errorf("job reason = %q, want %q", got, tt.reason)
			}
		})
	}
}

func TestFitPower(t *testing.T) {
	var ds, hs []float64
	for d := 5.0; d <= 60; d += 5 {
		ds = append(ds, d)
		hs = append(hs, 1.8*math.Pow(d, 0.7))
	}
	ds = append(ds, 0)
	hs = append(hs, 12)

	fit, ok := compute.FitPower(ds, hs)
	if !ok {
		t.Fatal("FitPower reported no fit")
	}
	if fit.N != 12 {
		t.Errorf("N = %d, want 12", fit.N)
	}
	if math.Abs(fit.A-1.8) > 1e-6 || math.Abs(fit.B-0.7) > 1e-6 {
		t.Errorf("fit = %+v, want a=1.8 b=0.7", fit)
	}
	if math.Abs(fit.RSquared-1) > 1e-9 {
		t.Errorf("r² = %v, want 1", fit.RSquared)
	}
	if got := fit.Predict(10); math.Abs(got-1.8*math.Pow(10, 0.7)) > 1e-6 {
		t.Errorf("Predict(10) = %v", got)
	}

	if _, ok := compute.FitPower([]float64{10}, []float64{5}); ok {
		t.Error("single point should not fit")
	}
}

func remoteConfig(t *testing.T, url string) *compute.Config {
	t.Helper()
	cfg := &compute.Config{Engine: compute.EngineRemote, Endpoint: url, RateLimit: 1000, Burst: 10}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	return cfg
}

func TestRemoteEvaluate(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/models/power/evaluate" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model  compute.Model    `json:"model"`
			Inputs []compute.Inputs `json:"inputs"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		values := make([]float64, len(req.Inputs))
		for i, in := range req.Inputs {
			values[i] = req.Model.Params["a"] * in.Diameter
		}
		json.NewEncoder(w).Encode(map[string]any{"values": values})
	}))
	defer srv.Close()

	engine := compute.NewRemote(remoteConfig(t, srv.URL+"/"))
	got, err := engine.Evaluate(context.Background(),
		compute.Model{ID: "p", Form: compute.FormPower, Params: map[string]float64{"a": 2}},
		[]compute.Inputs{{Diameter: 1}, {Diameter: 3}},
	)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if diff := cmp.Diff([]float64{2, 6}, got); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestRemoteStatusReasons(t *testing.T) {
	tests := []struct {
		status int
		reason string
	}{
		{http.StatusNotFound, compute.ReasonModelUnavailable},
		{http.StatusServiceUnavailable, compute.ReasonModelUnavailable},
		{http.StatusTooManyRequests, compute.ReasonTimeout},
		{http.StatusBadGateway, compute.ReasonTimeout},
		{http.StatusUnprocessableEntity, compute.ReasonInvalidInput},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			engine := compute.NewRemote(remoteConfig(t, srv.URL))
			_, err := engine.Evaluate(context.Background(), compute.Model{ID: "m", Form: "power"}, []compute.Inputs{{Diameter: 1}})

			var ce *compute.Error
			if !errors.As(err, &ce) {
				t.Fatalf("err = %v, want *compute.Error", err)
			}
			if ce.Reason() != tt.reason {
				t.Errorf("reason = %q, want %q", ce.Reason(), tt.reason)
			}
		})
	}
}

func TestConfig(t *testing.T) {
	var cfg compute.Config
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("finalize defaults: %v", err)
	}
	if cfg.Engine != compute.EngineLocal || cfg.ChunkSize != 500 || cfg.Parallelism != 4 {
		t.Errorf("defaults = %+v", cfg)
	}

	remote := compute.Config{Engine: compute.EngineRemote}
	if err := remote.Finalize(nil); err == nil {
		t.Error("remote engine without endpoint should fail validation")
	}

	t.Setenv("TEST_COMPUTE_CHUNK", "50")
	env := compute.Env{ChunkSize: "TEST_COMPUTE_CHUNK"}
	overridden := compute.Config{}
	if err := overridden.Finalize(&env); err != nil {
		t.Fatalf("finalize env: %v", err)
	}
	if overridden.ChunkSize != 50 {
		t.Errorf("chunk size = %d, want 50", overridden.ChunkSize)
	}
}

type mappings map[string]string

func (m mappings) SpeciesMappings(context.Context, uuid.UUID) (map[string]string, error) {
	return m, nil
}

func stages(t *testing.T, recs records.System, resolver compute.SpeciesResolver) *compute.Stages {
	t.Helper()
	catalog, err := reference.Load(nil)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	cfg := compute.Config{ChunkSize: 7, Parallelism: 3}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	return compute.NewStages(recs, catalog, resolver, compute.NewLocal(), cfg, recordstest.Logger())
}

func TestStagesEndToEnd(t *testing.T) {
	ctx := context.Background()
	store := recordstest.NewStore()
	projectID := uuid.New()

	hd := "hd-naslund-lowland"
	agb := "agb-chave2014"
	seeded := recordstest.Seed(t, store, projectID, 30, func(i int, r *records.Record) {
		r.HDModelID = &hd
		r.AllometricModelID = &agb
		switch {
		case i < 10:
			r.Height = nil
		case i == 29:
			r.SpeciesCode = "sal"
		}
	})

	s := stages(t, store, mappings{"sal": "SHRO"})
	handlers := s.Handlers()
	for _, stage := range []string{"height_prediction", "slanted_height", "volume_ratio", "biomass"} {
		h, ok := handlers[stage]
		if !ok {
			t.Fatalf("no handler for %s", stage)
		}
		res, err := h.Handle(ctx, jobs.Job{ID: uuid.New(), ProjectID: projectID, Stage: stage})
		if err != nil {
			t.Fatalf("%s: %v", stage, err)
		}
		if diff := cmp.Diff(jobs.Result{"records": 30, "skipped": 0}, res); diff != "" {
			t.Errorf("%s result mismatch (-want +got):\n%s", stage, diff)
		}
	}

	got, err := store.All(ctx, projectID)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	for i, r := range got {
		if r.PredictedHeight == nil || r.SlantedHeight == nil || r.Volume == nil || r.VolumeRatio == nil || r.Biomass == nil {
			t.Fatalf("row %d missing derived values: %+v", i, r)
		}
		h := *r.WorkingHeight()
		if *r.SlantedHeight < h {
			t.Errorf("row %d slanted height %v below vertical %v", i, *r.SlantedHeight, h)
		}
		if i < 10 && !approx(h, *r.PredictedHeight) {
			t.Errorf("row %d working height should fall back to the prediction", i)
		}
	}

	d := *seeded[0].Diameter
	want := 1.3 + d*d/math.Pow(1.05+0.175*d, 2)
	if !approx(*got[0].PredictedHeight, want) {
		t.Errorf("predicted height = %v, want %v", *got[0].PredictedHeight, want)
	}
}

func TestStagesSkipIncompleteRecords(t *testing.T) {
	ctx := context.Background()
	store := recordstest.NewStore()
	projectID := uuid.New()

	hd := "hd-power-upland"
	recordstest.Seed(t, store, projectID, 10, func(i int, r *records.Record) {
		if i%2 == 0 {
			r.HDModelID = &hd
		}
	})

	res, err := stages(t, store, nil).PredictHeights(ctx, jobs.Job{ProjectID: projectID, Stage: "height_prediction"})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if res["records"] != 5 || res["skipped"] != 5 {
		t.Errorf("result = %v, want 5 records and 5 skipped", res)
	}
}

func TestStagesUnknownModel(t *testing.T) {
	store := recordstest.NewStore()
	projectID := uuid.New()

	missing := "hd-retired"
	recordstest.Seed(t, store, projectID, 3, func(_ int, r *records.Record) { r.HDModelID = &missing })

	_, err := stages(t, store, nil).PredictHeights(context.Background(), jobs.Job{ProjectID: projectID})
	if got := jobs.ReasonOf(err); got != jobs.ReasonModelUnavailable {
		t.Errorf("reason = %q, want %q", got, jobs.ReasonModelUnavailable)
	}

	got, _ := store.All(context.Background(), projectID)
	for _, r := range got {
		if r.PredictedHeight != nil {
			t.Fatal("failed stage must not write derived values")
		}
	}
}

func TestStagesCancelled(t *testing.T) {
	store := recordstest.NewStore()
	projectID := uuid.New()
	recordstest.Seed(t, store, projectID, 50, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := stages(t, store, nil).SlantedHeights(ctx, jobs.Job{ProjectID: projectID})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
