package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/resticd/internal/config"
	"github.com/flemzord/resticd/internal/host"
	"github.com/flemzord/resticd/internal/jobs"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 500
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status     string `json:"status"` // "ok" or "degraded"
	State      string `json:"state"`
	Generation uint64 `json:"generation"`
	Uptime     int64  `json:"uptime_seconds"`
}

// JobResponse is the JSON response for GET /api/v1/jobs/{id}.
type JobResponse struct {
	Name       string     `json:"name"`
	Definition config.Job `json:"definition"`
	NextRun    *time.Time `json:"next_run,omitempty"`
}

// QueueResponse is the JSON response for POST /api/v1/jobs/{id}/queue.
type QueueResponse struct {
	Job    string `json:"job"`
	Queued bool   `json:"queued"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleHealth reports the supervisor state. Returns 503 while no
// configuration generation is running.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		state := g.service.State()
		resp := HealthResponse{
			Status:     "ok",
			State:      state.String(),
			Generation: g.service.Generation(),
			Uptime:     int64(time.Since(g.startedAt).Seconds()),
		}

		code := http.StatusOK
		if state != host.StateRunning {
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	}
}

// handleListJobs returns the job names of the live configuration.
func (g *Gateway) handleListJobs() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		names := []string{}
		if m := g.service.Manager(); m != nil {
			names = m.Names()
		}
		writeJSON(w, http.StatusOK, names)
	}
}

// handleGetJob returns one job definition with credentials masked.
func (g *Gateway) handleGetJob() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "id")
		job, ok := g.lookup(name)
		if !ok {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}

		resp := JobResponse{Name: name, Definition: job.Redacted()}
		if next, ok := g.service.NextRun(name); ok && !next.IsZero() {
			resp.NextRun = &next
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// handleQueueJob enqueues a run of one job.
func (g *Gateway) handleQueueJob() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "id")

		err := g.service.Enqueue(name, jobs.SourceAPI)
		switch {
		case err == nil:
			writeJSON(w, http.StatusAccepted, QueueResponse{Job: name, Queued: true})
		case errors.Is(err, jobs.ErrJobNotFound):
			writeError(w, http.StatusNotFound, "job not found")
		case errors.Is(err, jobs.ErrQueueFull):
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusServiceUnavailable, "queue is full")
		case errors.Is(err, jobs.ErrShuttingDown), errors.Is(err, host.ErrNotReady):
			writeError(w, http.StatusServiceUnavailable, "not accepting jobs")
		default:
			g.logger.Error("gateway: enqueue failed", "job", name, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
	}
}

// handleJobRuns returns the latest runs of one job.
func (g *Gateway) handleJobRuns() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "id")
		if _, ok := g.lookup(name); !ok {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		g.serveRuns(w, r, name)
	}
}

// handleRuns returns the latest runs of every job.
func (g *Gateway) handleRuns() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g.serveRuns(w, r, "")
	}
}

func (g *Gateway) serveRuns(w http.ResponseWriter, r *http.Request, job string) {
	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunsLimit)
	}

	runs := []*jobs.Run{}
	if g.runs != nil {
		got, err := g.runs.Runs(r.Context(), job, limit)
		if err != nil {
			g.logger.Error("gateway: listing runs failed", "job", job, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if got != nil {
			runs = got
		}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (g *Gateway) lookup(name string) (config.Job, bool) {
	m := g.service.Manager()
	if m == nil {
		return config.Job{}, false
	}
	return m.Job(name)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}
