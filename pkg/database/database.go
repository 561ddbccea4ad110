// Package database owns the PostgreSQL connection pool used by the
// persistent stores, and reports its readiness to the lifecycle coordinator.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/JaimeStill/mrv/pkg/lifecycle"
)

// ErrNotReady is returned by Ping when the database cannot be reached.
var ErrNotReady = errors.New("database not ready")

// System is a lifecycle-managed connection pool.
type System interface {
	lifecycle.ReadinessChecker
	Connection() *sql.DB
	// Ping checks connectivity within the configured connect timeout and
	// updates readiness.
	Ping(ctx context.Context) error
	Start(lc *lifecycle.Coordinator) error
}

type pool struct {
	db      *sql.DB
	logger  *slog.Logger
	timeout time.Duration
	ready   atomic.Bool
}

// New opens a pool over the pgx driver. No connection is made until Start.
func New(cfg *Config, logger *slog.Logger) (System, error) {
	db, err := sql.Open("pgx", cfg.Dsn())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetimeDuration())

	return &pool{
		db:      db,
		logger:  logger.With("system", "database", "host", cfg.Host, "name", cfg.Name),
		timeout: cfg.ConnTimeoutDuration(),
	}, nil
}

func (p *pool) Connection() *sql.DB { return p.db }

func (p *pool) Ready() bool { return p.ready.Load() }

func (p *pool) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.db.PingContext(ctx)
	p.ready.Store(err == nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	return nil
}

// Start pings on startup and closes the pool once the coordinator's context
// is cancelled. A failed ping leaves the pool not ready.
func (p *pool) Start(lc *lifecycle.Coordinator) error {
	lc.OnStartup(func() {
		if err := p.Ping(lc.Context()); err != nil {
			p.logger.Error("database unreachable", "error", err)
			return
		}
		p.logger.Info("database connected")
	})

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		p.ready.Store(false)
		if err := p.db.Close(); err != nil {
			p.logger.Error("database close failed", "error", err)
			return
		}
		p.logger.Info("database closed")
	})
	return nil
}
