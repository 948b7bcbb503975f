package gateway

import (
	"net/http"
	"testing"
	"time"
)

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	g := New(Config{}, &fakeService{}, Options{})
	if g.config.Bind != DefaultBind {
		t.Errorf("Bind = %q, want %q", g.config.Bind, DefaultBind)
	}
	if g.config.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v", g.config.ShutdownTimeout)
	}
	if g.logger == nil {
		t.Error("logger should default")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	if err := New(Config{Bind: "127.0.0.1:0"}, &fakeService{}, Options{}).Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
	if err := New(Config{Bind: "not an address"}, &fakeService{}, Options{}).Validate(); err == nil {
		t.Error("Validate() should reject a malformed bind")
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(1)
	g := New(Config{Bind: "127.0.0.1:0"}, svc, Options{Logger: discardLogger()})

	if err := g.Start(t.Context()); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if err := g.Stop(t.Context()); err != nil {
		t.Errorf("Stop() = %v", err)
	}
}

func TestStopWithoutStart(t *testing.T) {
	t.Parallel()

	if err := New(Config{}, &fakeService{}, Options{}).Stop(t.Context()); err != nil {
		t.Errorf("Stop() = %v", err)
	}
}

func TestUnknownRoute(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(1)
	rr := do(t, New(Config{}, svc, Options{Logger: discardLogger()}).Handler(), http.MethodGet, "/api/v2/jobs", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}
