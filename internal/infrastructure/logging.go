package infrastructure

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"

	"github.com/JaimeStill/mrv/internal/config"
)

// NewLogger builds the root logger: text or JSON to w, fanned out to a JSON
// file when cfg.File is set. The returned close function releases the file.
func NewLogger(cfg *config.LoggingConfig, w io.Writer) (*slog.Logger, func() error, error) {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}

	var primary slog.Handler
	if cfg.Format == "json" {
		primary = slog.NewJSONHandler(w, opts)
	} else {
		primary = slog.NewTextHandler(w, opts)
	}

	if cfg.File == "" {
		return slog.New(primary), func() error { return nil }, nil
	}

	file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	logger := slog.New(slogmulti.Fanout(primary, slog.NewJSONHandler(file, opts)))
	return logger, file.Close, nil
}
