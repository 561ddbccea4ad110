// Package api assembles the API module with all domain systems and route registration.
package api

import (
	"fmt"
	"net/http"

	"github.com/JaimeStill/mrv/internal/config"
	"github.com/JaimeStill/mrv/internal/infrastructure"
	"github.com/JaimeStill/mrv/pkg/middleware"
	"github.com/JaimeStill/mrv/pkg/module"
)

// NewModule creates the API module with all domain handlers and middleware.
// The job tracker's workers are registered with the lifecycle coordinator.
func NewModule(cfg *config.Config, infra *infrastructure.Infrastructure) (*module.Module, error) {
	runtime := NewRuntime(cfg, infra)

	domain, err := NewDomain(cfg, runtime)
	if err != nil {
		return nil, err
	}
	if err := domain.Jobs.Start(runtime.Lifecycle); err != nil {
		return nil, fmt.Errorf("start job tracker: %w", err)
	}

	mux := http.NewServeMux()
	if err := registerRoutes(mux, domain, cfg, runtime); err != nil {
		return nil, err
	}

	telemetry, err := middleware.Telemetry(runtime.Telemetry.Tracer, runtime.Telemetry.Meter)
	if err != nil {
		return nil, fmt.Errorf("telemetry middleware: %w", err)
	}

	m := module.New(cfg.API.BasePath, mux)
	m.Use(
		middleware.CORS(&cfg.API.CORS),
		middleware.Logger(runtime.Logger),
		middleware.Recover(runtime.Logger),
		telemetry,
	)

	return m, nil
}
