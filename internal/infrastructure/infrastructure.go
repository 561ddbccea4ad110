// Package infrastructure provides core service initialization for application startup.
// It assembles common dependencies (logging, telemetry, database, storage) that domain systems require.
package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/JaimeStill/mrv/internal/config"
	"github.com/JaimeStill/mrv/pkg/database"
	"github.com/JaimeStill/mrv/pkg/lifecycle"
	"github.com/JaimeStill/mrv/pkg/storage"
)

// Infrastructure holds the core systems required by all domain modules.
// Database is nil when the memory store is configured.
type Infrastructure struct {
	Lifecycle *lifecycle.Coordinator
	Logger    *slog.Logger
	Telemetry *Telemetry
	Database  database.System
	Storage   storage.System

	closeLog func() error
}

// New creates an Infrastructure from the application configuration.
// It initializes all systems but does not start them; call Start separately.
func New(cfg *config.Config) (*Infrastructure, error) {
	lc := lifecycle.New()

	logger, closeLog, err := NewLogger(&cfg.Logging, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}

	tel, err := NewTelemetry(&cfg.Telemetry, cfg.Version)
	if err != nil {
		closeLog()
		return nil, fmt.Errorf("telemetry init failed: %w", err)
	}

	var db database.System
	if cfg.Store == config.StorePostgres {
		db, err = database.New(&cfg.Database, logger)
		if err != nil {
			closeLog()
			return nil, fmt.Errorf("database init failed: %w", err)
		}
	}

	store, err := storage.New(&cfg.Storage, logger)
	if err != nil {
		closeLog()
		return nil, fmt.Errorf("storage init failed: %w", err)
	}

	return &Infrastructure{
		Lifecycle: lc,
		Logger:    logger,
		Telemetry: tel,
		Database:  db,
		Storage:   store,
		closeLog:  closeLog,
	}, nil
}

// Start registers all infrastructure systems with the lifecycle coordinator.
// Readiness follows the database when one is configured. Telemetry is
// flushed and the log file closed on shutdown.
func (i *Infrastructure) Start() error {
	if i.Database != nil {
		if err := i.Database.Start(i.Lifecycle); err != nil {
			return fmt.Errorf("database start failed: %w", err)
		}
		i.Lifecycle.Require(i.Database)
	}
	if err := i.Storage.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("storage start failed: %w", err)
	}

	i.Lifecycle.OnShutdown(func() {
		<-i.Lifecycle.Context().Done()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := i.Telemetry.Shutdown(ctx); err != nil {
			i.Logger.Error("telemetry shutdown failed", "error", err)
		}
		i.closeLog()
	})
	return nil
}
