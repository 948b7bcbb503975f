// Package restic drives the restic command line tool: it builds argument
// lists, runs the binary while streaming its output line by line, decodes
// the JSON messages restic prints and maps exit codes to typed errors.
package restic

import (
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
)

// DefaultBinary is looked up in PATH when Config.Binary is empty.
const DefaultBinary = "restic"

// Config configures a Client.
type Config struct {
	// Binary is the restic executable name or path.
	Binary string

	// Repository and Password are exported as RESTIC_REPOSITORY and
	// RESTIC_PASSWORD. Empty values are not exported.
	Repository string
	Password   string

	// Environment holds extra variables merged over the host environment.
	// It takes precedence over Repository and Password.
	Environment map[string]string

	Logger *slog.Logger
}

// Client runs restic commands against one repository.
type Client struct {
	binary string
	env    []string
	logger *slog.Logger
}

// New creates a Client. The environment is resolved once, at construction.
func New(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	binary := cfg.Binary
	if binary == "" {
		binary = DefaultBinary
	}

	overrides := make(map[string]string, len(cfg.Environment)+2)
	if cfg.Repository != "" {
		overrides["RESTIC_REPOSITORY"] = cfg.Repository
	}
	if cfg.Password != "" {
		overrides["RESTIC_PASSWORD"] = cfg.Password
	}
	maps.Copy(overrides, cfg.Environment)

	return &Client{
		binary: binary,
		env:    mergeEnv(os.Environ(), overrides),
		logger: logger,
	}
}

// Binary returns the configured executable.
func (c *Client) Binary() string { return c.binary }

// mergeEnv returns base with every key in overrides replaced or appended.
// Overrides are appended in sorted key order.
func mergeEnv(base []string, overrides map[string]string) []string {
	out := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := overrides[key]; ok {
			continue
		}
		out = append(out, kv)
	}
	for _, key := range slices.Sorted(maps.Keys(overrides)) {
		out = append(out, key+"="+overrides[key])
	}
	return out
}
