package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/flemzord/resticd/internal/config"
	"github.com/flemzord/resticd/internal/jobs"
)

const validConfig = `version: "1"
api:
  enabled: true
  bind: 127.0.0.1:42038
  bearer_token: file-token
jobs:
  daily:
    cron: "0 2 * * *"
    repository:
      url: /srv/restic
      password: secret
    backup:
      sources: [/home]
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := rootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), config.FileName)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "resticd dev") {
		t.Errorf("output = %q", out)
	}
}

func TestConfigCheck(t *testing.T) {
	path := writeFile(t, validConfig)

	out, err := execute(t, "config", "check", path)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(out, "Configuration OK") || !strings.Contains(out, "daily") {
		t.Errorf("output = %q", out)
	}

	bad := writeFile(t, "version: \"1\"\njobs:\n  daily:\n    cron: nope\n")
	if _, err := execute(t, "--config", bad, "config", "check"); err == nil {
		t.Error("expected validation error")
	}
}

func TestConfigPath(t *testing.T) {
	path := writeFile(t, validConfig)

	out, err := execute(t, "--config", path, "config", "path")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != path {
		t.Errorf("output = %q, want %q", out, path)
	}
}

func TestPrintCheck_NextRun(t *testing.T) {
	orig := now
	now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { now = orig })

	cfg, err := config.Parse([]byte(validConfig), "test")
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	printCheck(&out, "resticd.yaml", cfg)

	if !strings.Contains(out.String(), "next: 2026-03-02 02:00 UTC") {
		t.Errorf("output = %q", out.String())
	}
}

func TestInitAnswers(t *testing.T) {
	a := defaultAnswers()
	a.RepoURL = "/srv/restic"
	a.Sources = " /home , /etc,,"

	cfg, err := a.config()
	if err != nil {
		t.Fatalf("config() = %v", err)
	}
	job := cfg.Jobs["daily"]
	if job.Repository.Password != "${RESTIC_PASSWORD}" {
		t.Errorf("password = %q, want an environment reference", job.Repository.Password)
	}
	if len(job.Backup.Sources) != 2 || job.Backup.Sources[1] != "/etc" {
		t.Errorf("sources = %v", job.Backup.Sources)
	}
	if !job.Forget.Enabled || job.Forget.KeepDaily == nil || *job.Forget.KeepDaily != 7 {
		t.Errorf("forget = %+v", job.Forget)
	}

	data, err := config.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Setenv("RESTIC_PASSWORD", "from-env")
	back, err := config.Parse(data, "generated")
	if err != nil {
		t.Fatalf("generated config does not parse: %v\n%s", err, data)
	}
	if err := config.Validate(back); err != nil {
		t.Fatalf("generated config is invalid: %v\n%s", err, data)
	}
	if got := back.Jobs["daily"].Repository.Password; got != "from-env" {
		t.Errorf("password = %q", got)
	}
}

func TestInitAnswers_Invalid(t *testing.T) {
	a := defaultAnswers()
	a.RepoURL = "/srv/restic"
	if _, err := a.config(); err == nil {
		t.Error("expected error without sources")
	}

	a.Sources = "/home"
	a.KeepDaily = "many"
	if _, err := a.config(); err == nil {
		t.Error("expected error for a non-numeric keep daily")
	}

	a.KeepDaily = "0"
	cfg, err := a.config()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Jobs["daily"].Forget.Enabled {
		t.Error("keep daily 0 should leave forget disabled")
	}
}

func TestJobsList_UsesConfigToken(t *testing.T) {
	auth := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case auth <- r.Header.Get("Authorization"):
		default:
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`["daily","weekly"]`))
	}))
	t.Cleanup(srv.Close)

	t.Setenv("RESTICD_TOKEN", "")
	path := writeFile(t, validConfig)

	out, err := execute(t, "--config", path, "jobs", "list", "--api", srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if out != "daily\nweekly\n" {
		t.Errorf("output = %q", out)
	}
	if got := <-auth; got != "Bearer file-token" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestPrintRuns(t *testing.T) {
	start := time.Date(2026, 3, 2, 2, 0, 0, 0, time.Local)
	var out bytes.Buffer
	err := printRuns(&out, []*jobs.Run{{
		Job:        "daily",
		Source:     jobs.SourceCron,
		Status:     jobs.StatusDegraded,
		StartedAt:  start,
		FinishedAt: start.Add(90 * time.Second),
		Steps: []jobs.StepResult{
			{Step: jobs.StepBackup, Status: jobs.StatusDegraded},
			{Step: jobs.StepClearLocks, Status: jobs.StatusSucceeded},
		},
	}})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"2026-03-02 02:00:00", "degraded", "1m30s", "backup=degraded clear_locks=succeeded"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}
