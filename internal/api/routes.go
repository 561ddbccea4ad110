package api

import (
	"fmt"
	"net/http"

	"github.com/JaimeStill/mrv/internal/config"
	"github.com/JaimeStill/mrv/internal/jobs"
	"github.com/JaimeStill/mrv/internal/reference"
	"github.com/JaimeStill/mrv/pkg/openapi"
	"github.com/JaimeStill/mrv/pkg/routes"
)

func registerRoutes(
	mux *http.ServeMux,
	domain *Domain,
	cfg *config.Config,
	runtime *Runtime,
) error {
	advance := domain.Orchestrator

	groups := []routes.Group{
		domain.Projects.Handler().Routes(),
		domain.Records.Handler().Routes(),
		domain.Orchestrator.Handler().Routes(),
		domain.Imports.Handler(advance, cfg.API.MaxUploadSizeBytes()).Routes(),
		domain.Quality.Handler().Routes(),
		domain.Cleaning.Handler(advance).Routes(),
		domain.Assignment.Handler().Routes(),
		domain.Export.Handler(advance).Routes(),
		jobs.NewHTTPHandler(domain.Jobs, runtime.Logger).Routes(),
		reference.NewHandler(domain.Catalog, runtime.Logger).Routes(),
	}
	routes.Register(mux, groups...)

	spec := openapi.NewSpec(&cfg.API.OpenAPI, cfg.Version, cfg.API.BasePath)
	spec.AddRoutes(groups...)

	serveSpec, err := spec.Handler()
	if err != nil {
		return fmt.Errorf("openapi document: %w", err)
	}
	mux.HandleFunc("GET /openapi.json", serveSpec)

	return nil
}
