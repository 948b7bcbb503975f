package apiclient

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flemzord/resticd/internal/config"
	"github.com/flemzord/resticd/internal/gateway"
	"github.com/flemzord/resticd/internal/host"
	"github.com/flemzord/resticd/internal/jobs"
)

type stubService struct {
	manager *jobs.Manager
	state   host.State
}

func (s *stubService) Manager() *jobs.Manager            { return s.manager }
func (s *stubService) State() host.State                 { return s.state }
func (s *stubService) Generation() uint64                { return 3 }
func (s *stubService) NextRun(string) (time.Time, bool)  { return time.Time{}, false }
func (s *stubService) Enqueue(name, source string) error { return s.manager.Enqueue(name, source) }

type stubRuns struct {
	mu  sync.Mutex
	job string
}

func (s *stubRuns) lastJob() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.job
}

func (s *stubRuns) Runs(_ context.Context, job string, _ int) ([]*jobs.Run, error) {
	s.mu.Lock()
	s.job = job
	s.mu.Unlock()
	return []*jobs.Run{{ID: "r1", Job: "daily", Status: jobs.StatusSucceeded}}, nil
}

func newServer(t *testing.T, token string, state host.State) (*Client, chan jobs.WorkItem, *stubRuns) {
	t.Helper()

	queue := make(chan jobs.WorkItem, 1)
	m := jobs.NewManager(jobs.ManagerConfig{
		Jobs: map[string]config.Job{
			"daily": {Cron: "0 2 * * *", Repository: config.Repository{URL: "/srv/restic", Password: "hunter2"}},
		},
		Queue:  queue,
		Logger: slog.New(slog.DiscardHandler),
	})
	runs := &stubRuns{}
	g := gateway.New(gateway.Config{BearerToken: token}, &stubService{manager: m, state: state}, gateway.Options{
		Runs:   runs,
		Logger: slog.New(slog.DiscardHandler),
	})
	srv := httptest.NewServer(g.Handler())
	t.Cleanup(srv.Close)

	return New(srv.URL, token), queue, runs
}

func TestClient_Jobs(t *testing.T) {
	t.Parallel()

	c, _, _ := newServer(t, "tok", host.StateRunning)

	names, err := c.Jobs(t.Context())
	require.NoError(t, err)
	require.Equal(t, []string{"daily"}, names)

	job, err := c.Job(t.Context(), "daily")
	require.NoError(t, err)
	require.Equal(t, "daily", job.Name)
	require.Equal(t, config.Mask, job.Definition.Repository.Password)

	_, err = c.Job(t.Context(), "weekly")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestClient_Queue(t *testing.T) {
	t.Parallel()

	c, queue, _ := newServer(t, "", host.StateRunning)

	require.NoError(t, c.Queue(t.Context(), "daily"))
	item := <-queue
	require.Equal(t, jobs.SourceAPI, item.Source)

	require.NoError(t, c.Queue(t.Context(), "daily"))
	err := c.Queue(t.Context(), "daily")
	require.ErrorIs(t, err, ErrUnavailable)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "queue is full", apiErr.Message)
}

func TestClient_Runs(t *testing.T) {
	t.Parallel()

	c, _, runs := newServer(t, "", host.StateRunning)

	got, err := c.Runs(t.Context(), "daily", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "r1", got[0].ID)
	require.Equal(t, "daily", runs.lastJob())

	_, err = c.Runs(t.Context(), "", 0)
	require.NoError(t, err)
	require.Empty(t, runs.lastJob())
}

func TestClient_Health(t *testing.T) {
	t.Parallel()

	c, _, _ := newServer(t, "", host.StateLoading)

	h, err := c.Health(t.Context())
	require.NoError(t, err)
	require.Equal(t, "degraded", h.Status)
	require.Equal(t, uint64(3), h.Generation)
}

func TestClient_Unauthorized(t *testing.T) {
	t.Parallel()

	c, _, _ := newServer(t, "tok", host.StateRunning)
	c.token = "wrong"

	_, err := c.Jobs(t.Context())
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestNew_BareAddress(t *testing.T) {
	t.Parallel()

	require.Equal(t, "http://127.0.0.1:42038", New("127.0.0.1:42038/", "").baseURL)
	require.Equal(t, "https://backup.lan", New("https://backup.lan", "").baseURL)
}

func TestClient_Unreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := New(addr, "").Jobs(t.Context())
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNotFound)
}
