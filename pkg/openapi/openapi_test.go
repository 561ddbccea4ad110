package openapi_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/JaimeStill/mrv/pkg/openapi"
	"github.com/JaimeStill/mrv/pkg/routes"
)

func noop(w http.ResponseWriter, r *http.Request) {}

func TestNewSpec(t *testing.T) {
	cfg := &openapi.Config{}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	spec := openapi.NewSpec(cfg, "1.0.0", "/api")

	if spec.OpenAPI != "3.1.0" {
		t.Errorf("openapi version: got %s, want 3.1.0", spec.OpenAPI)
	}
	if spec.Info.Title != "MRV API" || spec.Info.Version != "1.0.0" {
		t.Errorf("info: got %+v", spec.Info)
	}
	if len(spec.Servers) != 1 || spec.Servers[0].URL != "/api" {
		t.Errorf("servers: got %+v", spec.Servers)
	}
	if spec.Paths == nil {
		t.Fatal("paths should be initialized")
	}

	if s := openapi.NewSpec(cfg, "1.0.0", ""); len(s.Servers) != 0 {
		t.Errorf("empty base path should omit servers")
	}
}

func TestNewComponents(t *testing.T) {
	c := openapi.NewComponents()

	for _, name := range []string{"PageRequest", "Problem", "Outcome"} {
		if _, ok := c.Schemas[name]; !ok {
			t.Errorf("missing schema %s", name)
		}
	}
	for _, name := range []string{"ValidationError", "NotFound", "Conflict", "PreconditionNotMet"} {
		r, ok := c.Responses[name]
		if !ok {
			t.Errorf("missing response %s", name)
			continue
		}
		if r.Content["application/problem+json"].Schema.Ref != "#/components/schemas/Problem" {
			t.Errorf("response %s does not reference Problem", name)
		}
	}
}

func TestAddRoutes(t *testing.T) {
	spec := openapi.NewSpec(&openapi.Config{Title: "MRV API"}, "1.0.0", "/api")
	spec.AddRoutes(
		routes.Group{
			Prefix: "/projects",
			Routes: []routes.Route{
				{Method: "GET", Pattern: "", Handler: noop},
				{Method: "POST", Pattern: "", Handler: noop},
			},
		},
		routes.Group{
			Prefix: "/projects/{id}",
			Routes: []routes.Route{
				{Method: "POST", Pattern: "/pipeline/{stage}", Handler: noop, Summary: "Advance any stage"},
			},
			Children: []routes.Group{{
				Prefix: "/data-imports",
				Routes: []routes.Route{
					{Method: "DELETE", Pattern: "/{importId}", Handler: noop},
				},
			}},
		},
		routes.Group{
			Routes: []routes.Route{
				{Method: "GET", Pattern: "/physiography", Handler: noop},
			},
		},
	)

	list := spec.Paths["/projects"]
	if list == nil || list.Get == nil || list.Post == nil {
		t.Fatalf("/projects: got %+v", list)
	}
	if list.Get.Summary != "GET /projects" {
		t.Errorf("default summary: got %q", list.Get.Summary)
	}
	if list.Get.Tags[0] != "projects" {
		t.Errorf("projects tag: got %v", list.Get.Tags)
	}
	if len(list.Get.Parameters) != 0 {
		t.Errorf("/projects should have no parameters")
	}

	advance := spec.Paths["/projects/{id}/pipeline/{stage}"]
	if advance == nil || advance.Post == nil {
		t.Fatal("advance route missing")
	}
	op := advance.Post
	if op.Summary != "Advance any stage" {
		t.Errorf("summary: got %q", op.Summary)
	}
	if op.Tags[0] != "pipeline" {
		t.Errorf("advance tag: got %v", op.Tags)
	}
	if len(op.Parameters) != 2 {
		t.Fatalf("advance parameters: got %d, want 2", len(op.Parameters))
	}
	if op.Parameters[0].Schema.Format != "uuid" {
		t.Errorf("id param should be a uuid")
	}
	if op.Parameters[1].Name != "stage" || op.Parameters[1].Schema.Format != "" {
		t.Errorf("stage param: got %+v", op.Parameters[1])
	}
	if op.Responses[412].Ref != "#/components/responses/PreconditionNotMet" {
		t.Errorf("advance should document 412")
	}

	del := spec.Paths["/projects/{id}/data-imports/{importId}"]
	if del == nil || del.Delete == nil {
		t.Fatal("nested child route missing")
	}
	if del.Delete.Tags[0] != "data-imports" {
		t.Errorf("child tag: got %v", del.Delete.Tags)
	}

	if ref := spec.Paths["/physiography"]; ref == nil || ref.Get.Tags[0] != "physiography" {
		t.Error("prefixless group route missing")
	}
}

func TestHandler(t *testing.T) {
	spec := openapi.NewSpec(&openapi.Config{Title: "MRV API"}, "1.0.0", "/api")
	serve, err := spec.Handler()
	if err != nil {
		t.Fatalf("Handler: %v", err)
	}

	rec := httptest.NewRecorder()
	serve(rec, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("content type: got %s", ct)
	}
	body, _ := io.ReadAll(rec.Body)
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if decoded["openapi"] != "3.1.0" {
		t.Errorf("openapi: got %v", decoded["openapi"])
	}
}

func TestConfig(t *testing.T) {
	t.Setenv("MRV_OPENAPI_TITLE", "Inventory API")

	cfg := &openapi.Config{}
	if err := cfg.Finalize(&openapi.ConfigEnv{Title: "MRV_OPENAPI_TITLE"}); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if cfg.Title != "Inventory API" {
		t.Errorf("title: got %s, want env override", cfg.Title)
	}
	if cfg.Description == "" {
		t.Error("description default should be set")
	}

	cfg.Merge(&openapi.Config{Description: "overlay"})
	if cfg.Description != "overlay" || cfg.Title != "Inventory API" {
		t.Errorf("merge: got %+v", cfg)
	}

	blank := &openapi.Config{Title: "   "}
	if err := blank.Finalize(nil); err == nil {
		t.Error("blank title should be rejected")
	}
}
