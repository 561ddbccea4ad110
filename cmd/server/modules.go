package main

import (
	"encoding/json"
	"net/http"

	"github.com/JaimeStill/mrv/internal/api"
	"github.com/JaimeStill/mrv/internal/config"
	"github.com/JaimeStill/mrv/internal/infrastructure"
	"github.com/JaimeStill/mrv/pkg/module"
)

// Modules lists the prefixed modules served by the process.
type Modules struct {
	API *module.Module
}

func NewModules(infra *infrastructure.Infrastructure, cfg *config.Config) (*Modules, error) {
	apiModule, err := api.NewModule(cfg, infra)
	if err != nil {
		return nil, err
	}
	return &Modules{API: apiModule}, nil
}

func (m *Modules) Mount(router *module.Router) {
	router.Mount(m.API)
}

// buildRouter registers the unprefixed probe and metrics endpoints.
func buildRouter(infra *infrastructure.Infrastructure) *module.Router {
	router := module.NewRouter()

	router.HandleNative("GET /healthz", probe(func() bool { return true }, "ok"))
	router.HandleNative("GET /readyz", probe(infra.Lifecycle.Ready, "ready"))
	router.HandleNative("GET /metrics", infra.Telemetry.Metrics)

	return router
}

func probe(check func() bool, healthy string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status, code := healthy, http.StatusOK
		if !check() {
			status, code = "not "+healthy, http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	})
}
