package api

import (
	"database/sql"
	"log/slog"

	"github.com/JaimeStill/mrv/internal/config"
	"github.com/JaimeStill/mrv/internal/infrastructure"
	"github.com/JaimeStill/mrv/pkg/lifecycle"
	"github.com/JaimeStill/mrv/pkg/pagination"
	"github.com/JaimeStill/mrv/pkg/storage"
)

// Runtime is the slice of infrastructure the domain systems are built from.
// DB is nil when the memory store is configured.
type Runtime struct {
	Lifecycle  *lifecycle.Coordinator
	Logger     *slog.Logger
	Telemetry  *infrastructure.Telemetry
	DB         *sql.DB
	Storage    storage.System
	Pagination pagination.Config
}

// NewRuntime creates an API runtime with a module-scoped logger.
func NewRuntime(cfg *config.Config, infra *infrastructure.Infrastructure) *Runtime {
	rt := &Runtime{
		Lifecycle:  infra.Lifecycle,
		Logger:     infra.Logger.With("module", "api", "store", cfg.Store),
		Telemetry:  infra.Telemetry,
		Storage:    infra.Storage,
		Pagination: cfg.API.Pagination,
	}
	if infra.Database != nil {
		rt.DB = infra.Database.Connection()
	}
	return rt
}
