package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/resticd/internal/config"
	"github.com/flemzord/resticd/internal/security"
)

// syncBuffer is a bytes.Buffer safe for the concurrent writes of a logger.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

const testConfig = `version: "1"
log_level: debug
history:
  path: %s
reload:
  poll_interval: 20ms
  debounce: 20ms
jobs:
  daily:
    cron: "0 2 * * *"
    repository:
      url: /srv/restic
      password: hunter2-very-secret
    backup:
      sources: [/home]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), config.FileName)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func runFor(t *testing.T, params RunParams, d time.Duration) (string, error) {
	t.Helper()

	var out syncBuffer
	params.LogOutput = &out

	ctx, cancel := context.WithTimeout(t.Context(), d)
	defer cancel()
	err := Run(ctx, params)
	return out.String(), err
}

func TestRun_CleanShutdown(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	path := writeConfig(t, strings.Replace(testConfig, "%s", dbPath, 1))

	logs, err := runFor(t, RunParams{ConfigPath: path, Version: "test"}, 300*time.Millisecond)
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}

	for _, want := range []string{"starting resticd", "generation started", "shutdown complete"} {
		if !strings.Contains(logs, want) {
			t.Errorf("logs missing %q:\n%s", want, logs)
		}
	}
	if strings.Contains(logs, "hunter2-very-secret") {
		t.Errorf("logs leak the repository password:\n%s", logs)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("history database not created: %v", err)
	}
}

func TestRun_MissingConfigKeepsRunning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.yaml")

	logs, err := runFor(t, RunParams{ConfigPath: path}, 200*time.Millisecond)
	if err != nil {
		t.Fatalf("Run() = %v, want clean shutdown", err)
	}
	if !strings.Contains(logs, "configuration load failed") {
		t.Errorf("expected a load failure to be logged:\n%s", logs)
	}
}

func TestRun_InvalidConfigContent(t *testing.T) {
	path := writeConfig(t, "not: valid: yaml: [")

	if _, err := runFor(t, RunParams{ConfigPath: path}, 200*time.Millisecond); err != nil {
		t.Fatalf("Run() = %v, want clean shutdown", err)
	}
}

func TestRun_InvalidLogLevel(t *testing.T) {
	err := Run(t.Context(), RunParams{LogLevel: "loud"})
	if err == nil {
		t.Error("expected error for an invalid log level")
	}
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func TestRun_ServesAPI(t *testing.T) {
	addr := freeAddr(t)
	path := writeConfig(t, `version: "1"
api:
  enabled: true
  bind: `+addr+`
jobs: {}
`)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, RunParams{ConfigPath: path, LogOutput: io.Discard})
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get("http://" + addr + "/health")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("API never became healthy (last error: %v)", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() = %v", err)
	}
}

func TestBootstrap_RegistersSecrets(t *testing.T) {
	path := writeConfig(t, strings.Replace(testConfig, "%s", `""`, 1))

	redactor := security.NewRedactor()
	got, cfg := bootstrap(path, redactor, slog.New(slog.DiscardHandler))
	if got != path {
		t.Errorf("path = %q, want %q", got, path)
	}
	if !slices.Equal(cfg.JobNames(), []string{"daily"}) {
		t.Errorf("jobs = %v", cfg.JobNames())
	}
	if s := redactor.Redact("pw hunter2-very-secret"); strings.Contains(s, "hunter2") {
		t.Errorf("secret not registered: %q", s)
	}
}

func TestBootstrap_FallsBackToDefaults(t *testing.T) {
	path := writeConfig(t, "version: \"2\"\njobs: {}\n")

	got, cfg := bootstrap(path, security.NewRedactor(), slog.New(slog.DiscardHandler))
	if got != path {
		t.Errorf("path = %q, want %q", got, path)
	}
	if cfg.API.Enabled || cfg.History.Path != "" || cfg.QueueCapacity != config.DefaultQueueCapacity {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestServiceConfig(t *testing.T) {
	cfg, err := ServiceConfig("resticd.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Name != ServiceName {
		t.Errorf("Name = %q", cfg.Name)
	}
	if len(cfg.Arguments) != 3 || cfg.Arguments[0] != "run" || !filepath.IsAbs(cfg.Arguments[2]) {
		t.Errorf("Arguments = %v", cfg.Arguments)
	}

	cfg, err = ServiceConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(cfg.Arguments, []string{"run"}) {
		t.Errorf("Arguments = %v", cfg.Arguments)
	}
}

func TestProgram_StartStop(t *testing.T) {
	path := writeConfig(t, strings.Replace(testConfig, "%s", `""`, 1))
	var out syncBuffer
	p := &program{params: RunParams{ConfigPath: path, LogOutput: &out}}

	if err := p.Start(nil); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if err := p.Stop(nil); err != nil {
		t.Fatalf("Stop() = %v", err)
	}
	if !strings.Contains(out.String(), "shutdown complete") {
		t.Errorf("daemon did not shut down:\n%s", out.String())
	}
}

func TestProgram_StartReportsSetupError(t *testing.T) {
	path := writeConfig(t, strings.Replace(testConfig, "%s", `""`, 1))
	p := &program{params: RunParams{ConfigPath: path, LogLevel: "loud", LogOutput: io.Discard}}

	if err := p.Start(nil); err == nil {
		t.Fatal("Start() = nil, want the log level error")
	}
	if err := p.Stop(nil); err != nil {
		t.Errorf("Stop() after a failed Start = %v", err)
	}
}
