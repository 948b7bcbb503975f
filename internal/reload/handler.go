package reload

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flemzord/resticd/internal/config"
	"github.com/flemzord/resticd/internal/security"
)

// Handler loads the configuration for a new generation.
type Handler struct {
	path     string
	logger   *slog.Logger
	redactor *security.Redactor
}

// NewHandler creates a reload handler for the file at path. When redactor
// is non-nil, the secrets of every successfully loaded configuration
// replace its literals.
func NewHandler(path string, logger *slog.Logger, redactor *security.Redactor) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{path: path, logger: logger, redactor: redactor}
}

// Path returns the watched configuration path.
func (h *Handler) Path() string { return h.path }

// Load reads and validates the configuration file.
func (h *Handler) Load(ctx context.Context) (*config.Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled before reload: %w", err)
	}

	cfg, err := config.Load(h.path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if h.redactor != nil {
		h.redactor.SetLiterals(cfg.Secrets())
	}

	h.logger.Info("configuration loaded", "path", h.path, "jobs", len(cfg.Jobs))
	return cfg, nil
}
