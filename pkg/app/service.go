package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/kardianos/service"
)

// ServiceName is the name registered with the OS service manager.
const ServiceName = "resticd"

// ServiceActions are the control verbs accepted by ControlService.
var ServiceActions = service.ControlAction

// program adapts Run to the start/stop callbacks of the service manager.
type program struct {
	params RunParams
	cancel context.CancelFunc
	done   chan error
}

var _ service.Interface = (*program)(nil)

// Start must not block. Setup errors are returned so the service manager
// reports a failed start; the daemon then runs in the background until Stop.
func (p *program) Start(service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	d, err := start(ctx, p.params)
	if err != nil {
		cancel()
		return err
	}
	p.cancel = cancel
	p.done = make(chan error, 1)
	go func() {
		p.done <- d.serve(ctx, false)
	}()
	return nil
}

// Stop cancels the daemon and waits until it has drained.
func (p *program) Stop(service.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	return <-p.done
}

// ServiceConfig describes the service. The installed command runs the
// daemon against the absolute form of configPath when one is given.
func ServiceConfig(configPath string) (*service.Config, error) {
	args := []string{"run"}
	if configPath != "" {
		abs, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("service: resolving config path: %w", err)
		}
		args = append(args, "--config", abs)
	}
	return &service.Config{
		Name:        ServiceName,
		DisplayName: "resticd backup scheduler",
		Description: "Runs scheduled restic backup jobs.",
		Arguments:   args,
	}, nil
}

// NewService wraps the daemon for the OS service manager. Signals are
// handled by the service manager, so params.Signals is ignored.
func NewService(params RunParams) (service.Service, error) {
	cfg, err := ServiceConfig(params.ConfigPath)
	if err != nil {
		return nil, err
	}
	params.Signals = false
	return service.New(&program{params: params}, cfg)
}

// ControlService runs one of ServiceActions against the installed service.
func ControlService(params RunParams, action string) error {
	svc, err := NewService(params)
	if err != nil {
		return err
	}
	if err := service.Control(svc, action); err != nil {
		return fmt.Errorf("service %s: %w", action, err)
	}
	return nil
}

// ServiceStatus reports the state of the installed service.
func ServiceStatus(params RunParams) (string, error) {
	svc, err := NewService(params)
	if err != nil {
		return "", err
	}
	status, err := svc.Status()
	if err != nil {
		if errors.Is(err, service.ErrNotInstalled) {
			return "not installed", nil
		}
		return "", fmt.Errorf("service status: %w", err)
	}
	switch status {
	case service.StatusRunning:
		return "running", nil
	case service.StatusStopped:
		return "stopped", nil
	default:
		return "unknown", nil
	}
}

// Interactive reports whether the process runs from a terminal rather
// than under a service manager.
func Interactive() bool {
	return service.Interactive()
}
