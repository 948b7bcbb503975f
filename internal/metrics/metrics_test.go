package metrics

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/flemzord/resticd/internal/config"
	"github.com/flemzord/resticd/internal/host"
	"github.com/flemzord/resticd/internal/jobs"
)

func TestMetrics_QueueCounters(t *testing.T) {
	t.Parallel()

	m := New()
	m.Queued(jobs.WorkItem{Name: "daily", Source: jobs.SourceCron})
	m.Queued(jobs.WorkItem{Name: "daily", Source: jobs.SourceCron})
	m.Rejected("daily", jobs.SourceAPI, fmt.Errorf("wrapped: %w", jobs.ErrQueueFull))
	m.Rejected("nope", jobs.SourceAPI, jobs.ErrJobNotFound)

	if got := testutil.ToFloat64(m.queued.WithLabelValues("daily", jobs.SourceCron)); got != 2 {
		t.Errorf("queued = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.rejected.WithLabelValues("daily", jobs.SourceAPI, "queue_full")); got != 1 {
		t.Errorf("rejected queue_full = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.rejected.WithLabelValues("nope", jobs.SourceAPI, "not_found")); got != 1 {
		t.Errorf("rejected not_found = %v, want 1", got)
	}
}

func TestMetrics_QueueDepth(t *testing.T) {
	t.Parallel()

	m := New()
	m.Queued(jobs.WorkItem{Name: "daily", Source: jobs.SourceCron})
	m.Queued(jobs.WorkItem{Name: "weekly", Source: jobs.SourceAPI})
	m.RunStarted(&jobs.Run{Job: "daily"})

	if got := testutil.ToFloat64(m.queueDepth); got != 1 {
		t.Errorf("queue depth = %v, want 1", got)
	}

	m.GenerationStarted(2, &config.Config{})
	if got := testutil.ToFloat64(m.queueDepth); got != 0 {
		t.Errorf("queue depth after reload = %v, want 0", got)
	}
}

func TestMetrics_RunLifecycle(t *testing.T) {
	t.Parallel()

	m := New()
	run := &jobs.Run{Job: "daily"}
	m.RunStarted(run)
	if got := testutil.ToFloat64(m.running); got != 1 {
		t.Errorf("in progress = %v, want 1", got)
	}

	m.StepFinished(run, jobs.StepResult{Step: jobs.StepBackup, Status: jobs.StatusSucceeded, Duration: 3 * time.Second})
	m.StepFinished(run, jobs.StepResult{Step: jobs.StepForget, Status: jobs.StatusSkipped})

	run.Status = jobs.StatusSucceeded
	run.FinishedAt = time.Unix(1_700_000_000, 0)
	m.RunFinished(run)

	if got := testutil.ToFloat64(m.running); got != 0 {
		t.Errorf("in progress = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.runs.WithLabelValues("daily", "succeeded")); got != 1 {
		t.Errorf("runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.lastSuccess.WithLabelValues("daily")); got != 1_700_000_000 {
		t.Errorf("last success = %v", got)
	}
	if got := testutil.CollectAndCount(m.stepDuration); got != 1 {
		t.Errorf("duration series = %d, want 1", got)
	}
}

func TestMetrics_SupervisorState(t *testing.T) {
	t.Parallel()

	m := New()
	if got := testutil.ToFloat64(m.state.WithLabelValues("idle")); got != 1 {
		t.Errorf("idle = %v, want 1", got)
	}

	m.StateChanged(host.StateRunning)
	m.GenerationStarted(1, &config.Config{Jobs: map[string]config.Job{"a": {}, "b": {}}})

	if got := testutil.ToFloat64(m.state.WithLabelValues("idle")); got != 0 {
		t.Errorf("idle = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.state.WithLabelValues("running")); got != 1 {
		t.Errorf("running = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.jobs); got != 2 {
		t.Errorf("jobs = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.generations); got != 1 {
		t.Errorf("generations = %v, want 1", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	t.Parallel()

	m := New()
	m.Queued(jobs.WorkItem{Name: "daily", Source: jobs.SourceCron})

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		`resticd_runs_queued_total{job="daily",source="cron"} 1`,
		"resticd_supervisor_state",
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
}
