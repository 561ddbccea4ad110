package api_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JaimeStill/mrv/internal/api"
	"github.com/JaimeStill/mrv/internal/config"
	"github.com/JaimeStill/mrv/internal/infrastructure"
	"github.com/JaimeStill/mrv/pkg/storage"
)

const dataset = `plot_id,tree_number,species_code,diameter,height,physiography,slope_percent
P01,1,SHRO,24.5,18.2,TERAI,4
P01,2,SHRO,31.0,21.7,TERAI,6
P02,1,TEGR,18.3,14.9,TERAI,12
`

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	off := false
	cfg := &config.Config{
		Store:     config.StoreMemory,
		Storage:   storage.Config{Backend: storage.BackendMemory},
		Telemetry: config.TelemetryConfig{Metrics: &off},
		Logging:   config.LoggingConfig{Level: "error"},
	}
	if err := cfg.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	return cfg
}

func newHandler(t *testing.T) http.Handler {
	t.Helper()
	return serve(t, memoryConfig(t))
}

func serve(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()

	infra, err := infrastructure.New(cfg)
	if err != nil {
		t.Fatalf("infrastructure.New() error = %v", err)
	}

	m, err := api.NewModule(cfg, infra)
	if err != nil {
		t.Fatalf("NewModule() error = %v", err)
	}
	if m.Prefix() != "/api" {
		t.Errorf("prefix = %q, want /api", m.Prefix())
	}

	if err := infra.Start(); err != nil {
		t.Fatalf("infra.Start() error = %v", err)
	}
	infra.Lifecycle.WaitForStartup()
	t.Cleanup(func() { infra.Lifecycle.Shutdown(5 * time.Second) })

	return m.Handler()
}

func do(t *testing.T, h http.Handler, req *http.Request, wantStatus int, out any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != wantStatus {
		t.Fatalf("%s %s: status = %d, want %d: %s", req.Method, req.URL.Path, rec.Code, wantStatus, rec.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s: %v", req.URL.Path, err)
		}
	}
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func uploadRequest(t *testing.T, path, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	part.Write([]byte(content))
	w.Close()

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

type stageView struct {
	Stage   string   `json:"stage"`
	Status  string   `json:"status"`
	Ready   bool     `json:"ready"`
	Missing []string `json:"missing"`
}

func TestImportThroughPipeline(t *testing.T) {
	exercisePipeline(t, newHandler(t), "Siwalik block 3")
}

// exercisePipeline creates a project, imports a dataset, and checks the
// resulting stage graph state.
func exercisePipeline(t *testing.T, h http.Handler, name string) {
	t.Helper()

	var project struct {
		ID string `json:"id"`
	}
	do(t, h, jsonRequest(http.MethodPost, "/projects", `{"name":"`+name+`"}`), http.StatusCreated, &project)
	base := "/projects/" + project.ID

	var staged struct {
		Outcome string `json:"outcome"`
		Result  struct {
			Data struct {
				ID       string `json:"id"`
				RowCount int    `json:"row_count"`
			} `json:"data"`
		} `json:"result"`
	}
	do(t, h, uploadRequest(t, base+"/data-imports", "trees.csv", dataset), http.StatusOK, &staged)
	if staged.Outcome != "completed" || staged.Result.Data.RowCount != 3 {
		t.Fatalf("staged = %+v", staged)
	}

	importPath := base + "/data-imports/" + staged.Result.Data.ID
	do(t, h, httptest.NewRequest(http.MethodGet, importPath+"/preview", nil), http.StatusOK, nil)
	do(t, h, httptest.NewRequest(http.MethodPost, importPath+"/create", nil), http.StatusOK, nil)

	var counts struct {
		Active int `json:"active"`
	}
	do(t, h, httptest.NewRequest(http.MethodGet, base+"/records/counts", nil), http.StatusOK, &counts)
	if counts.Active != 3 {
		t.Errorf("active records = %d, want 3", counts.Active)
	}

	var views []stageView
	do(t, h, httptest.NewRequest(http.MethodGet, base+"/pipeline", nil), http.StatusOK, &views)
	status := make(map[string]stageView, len(views))
	for _, v := range views {
		status[v.Stage] = v
	}
	for _, s := range []string{"import", "preview"} {
		if status[s].Status != "succeeded" {
			t.Errorf("stage %s status = %q, want succeeded", s, status[s].Status)
		}
	}
	if !status["quality_check"].Ready {
		t.Error("quality_check should be ready once preview succeeded")
	}

	do(t, h, jsonRequest(http.MethodPost, base+"/biomass-calculation", ""), http.StatusPreconditionFailed, nil)
	do(t, h, jsonRequest(http.MethodPost, base+"/data-quality-check", `{"issue_types":["missing_value"]}`), http.StatusOK, nil)
}

func TestReferenceRoutes(t *testing.T) {
	h := newHandler(t)

	for _, path := range []string{"/physiography", "/forest-species", "/hd-model", "/allometric-models", "/openapi.json"} {
		do(t, h, httptest.NewRequest(http.MethodGet, path, nil), http.StatusOK, nil)
	}
}

func TestUnknownProject(t *testing.T) {
	h := newHandler(t)

	do(t, h, httptest.NewRequest(http.MethodGet, "/projects/6f1c2a4e-9b3d-4c2e-8f5a-1d2e3f4a5b6c/pipeline", nil), http.StatusNotFound, nil)
	do(t, h, httptest.NewRequest(http.MethodGet, "/projects/not-a-uuid", nil), http.StatusUnprocessableEntity, nil)
}
