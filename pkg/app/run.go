// Package app provides the shared entry point of the resticd daemon, used
// by the foreground run command and by the OS service wrapper.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/flemzord/resticd/internal/config"
	"github.com/flemzord/resticd/internal/core"
	"github.com/flemzord/resticd/internal/events"
	"github.com/flemzord/resticd/internal/gateway"
	"github.com/flemzord/resticd/internal/history"
	"github.com/flemzord/resticd/internal/host"
	"github.com/flemzord/resticd/internal/jobs"
	"github.com/flemzord/resticd/internal/metrics"
	"github.com/flemzord/resticd/internal/reload"
	"github.com/flemzord/resticd/internal/security"
	"github.com/flemzord/resticd/internal/telemetry"
)

// historyKeep is how many runs per job survive the startup prune.
const historyKeep = 1000

// RunParams configures the daemon.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, config.Locate probes the default locations.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// LogLevel overrides the log_level of every loaded configuration
	// when non-empty.
	LogLevel string

	// LogOutput receives the log lines. Defaults to os.Stderr.
	LogOutput io.Writer

	// Signals enables SIGINT/SIGTERM shutdown and SIGHUP reload. The
	// service wrapper turns it off and cancels ctx itself.
	Signals bool
}

// Run starts the daemon and blocks until ctx is done or a shutdown signal
// is received. A configuration that cannot be loaded does not stop the
// daemon: it keeps running idle until the file is fixed.
func Run(ctx context.Context, params RunParams) error {
	if params.Signals {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
	}

	d, err := start(ctx, params)
	if err != nil {
		return err
	}
	return d.serve(ctx, params.Signals)
}

// daemon holds the long-lived pieces built by wire.
type daemon struct {
	app        *core.App
	supervisor *host.Supervisor
	watcher    *reload.Watcher
	logger     *slog.Logger
}

// start performs every setup step that can fail and starts the process
// components. The supervisor itself is started by serve.
func start(ctx context.Context, params RunParams) (*daemon, error) {
	var level slog.LevelVar
	override := params.LogLevel != ""
	if override {
		lvl, err := config.ParseLogLevel(params.LogLevel)
		if err != nil {
			return nil, err
		}
		level.Set(lvl)
	}

	// Every handler goes through the redactor so that repository
	// passwords and credential overrides never reach the log.
	redactor := security.NewRedactor()
	out := params.LogOutput
	if out == nil {
		out = os.Stderr
	}
	logger := slog.New(security.NewRedactingHandler(
		slog.NewTextHandler(out, &slog.HandlerOptions{Level: &level}),
		redactor,
	))

	cfgPath, boot := bootstrap(params.ConfigPath, redactor, logger)
	if !override {
		if lvl, err := config.ParseLogLevel(boot.LogLevel); err == nil {
			level.Set(lvl)
		}
	}
	logger.Info("starting resticd", "version", params.Version, "commit", params.Commit, "config", cfgPath)

	d, err := wire(ctx, params, cfgPath, boot, redactor, &level, override, logger)
	if err != nil {
		return nil, err
	}
	if err := d.app.Start(ctx); err != nil {
		_ = d.app.Stop()
		return nil, err
	}
	return d, nil
}

// serve runs the supervisor until ctx is done, then stops the components.
func (d *daemon) serve(ctx context.Context, signals bool) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.supervisor.Run(gctx)
	})
	g.Go(func() error {
		var hup chan os.Signal
		if signals {
			hup = make(chan os.Signal, 1)
			signal.Notify(hup, syscall.SIGHUP)
			defer signal.Stop(hup)
		}
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				d.logger.Info("SIGHUP received, reloading configuration")
				d.watcher.Notify()
			case evt := <-d.watcher.Events():
				d.logger.Debug("reload event", "type", string(evt.Type), "path", evt.ConfigPath)
			}
		}
	})

	runErr := g.Wait()
	stopErr := d.app.Stop()
	d.logger.Info("shutdown complete")
	return errors.Join(runErr, stopErr)
}

// bootstrap locates and reads the configuration once for the settings
// that live for the whole process: API, history, telemetry and reload
// timing. When it is missing or invalid the defaults are used and the
// supervisor waits for a valid file at the returned path.
func bootstrap(explicit string, redactor *security.Redactor, logger *slog.Logger) (string, *config.Config) {
	path, err := config.Locate(explicit)
	if err != nil {
		candidates := config.SearchPaths()
		if len(candidates) > 0 {
			path = candidates[len(candidates)-1]
		} else {
			path = config.FileName
		}
		logger.Warn("no configuration file found, waiting for one", "path", path, "error", err)
		return path, config.Default()
	}

	cfg, err := config.Load(path)
	if err == nil {
		err = config.Validate(cfg)
	}
	if err != nil {
		logger.Warn("configuration unusable at startup, using defaults until it is fixed", "path", path, "error", err)
		return path, config.Default()
	}
	redactor.SetLiterals(cfg.Secrets())
	return path, cfg
}

// wire builds the process components and registers them with a core.App
// in start order.
func wire(
	ctx context.Context,
	params RunParams,
	cfgPath string,
	boot *config.Config,
	redactor *security.Redactor,
	level *slog.LevelVar,
	levelOverride bool,
	logger *slog.Logger,
) (*daemon, error) {
	app := core.NewApp(logger)

	tp, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:       boot.Telemetry.OTLPEndpoint,
		Insecure:       boot.Telemetry.Insecure,
		ServiceName:    "resticd",
		ServiceVersion: params.Version,
	})
	if err != nil {
		return nil, err
	}
	app.Add("telemetry", core.Hooks{OnStop: tp.Shutdown})
	if tp.Exporting() {
		logger.Info("exporting traces", "endpoint", boot.Telemetry.OTLPEndpoint)
	}

	m := metrics.New()
	bus := events.NewBus()
	jobObservers := jobs.Observers{m, bus}

	var (
		runs  gateway.RunStore
		store *history.Store
	)
	fail := func(err error) (*daemon, error) {
		_ = tp.Shutdown(ctx)
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}

	if boot.History.Path != "" {
		store, err = history.Open(ctx, boot.History.Path)
		if err != nil {
			return fail(err)
		}
		if n, err := store.Prune(ctx, historyKeep); err != nil {
			logger.Warn("pruning run history failed", "error", err)
		} else if n > 0 {
			logger.Info("pruned run history", "runs", n)
		}
		runs = store
		jobObservers = append(jobObservers, history.NewRecorder(store, logger))
		app.Add("history", core.Hooks{OnStop: func(context.Context) error { return store.Close() }})
	}

	watcher := reload.NewWatcher(reload.WatcherConfig{
		ConfigPath:   cfgPath,
		PollInterval: boot.Reload.PollInterval,
		Debounce:     boot.Reload.Debounce,
		Logger:       logger,
	})
	app.Add("watcher", core.Hooks{
		OnStart: func(ctx context.Context) error {
			watcher.Start(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			watcher.Stop()
			return nil
		},
	})

	tracer := tp.Tracer("github.com/flemzord/resticd/internal/jobs")
	supervisor := host.New(host.Config{
		Loader:   reload.NewHandler(cfgPath, logger, redactor),
		Notifier: watcher,
		NewRunner: func(cfg *config.Config) host.Runner {
			return jobs.NewRunner(jobs.RunnerConfig{
				Binary:   cfg.Restic.Binary,
				Logger:   logger,
				Observer: jobObservers,
				Tracer:   tracer,
			})
		},
		JobObserver: jobObservers,
		Observer:    host.Observers{m, bus, &levelObserver{level: level, fixed: levelOverride, logger: logger}},
		Logger:      logger,
	})

	if boot.API.Enabled {
		gw := gateway.New(gateway.Config{
			Bind:        boot.API.Bind,
			BearerToken: boot.API.BearerToken,
		}, supervisor, gateway.Options{
			Runs:    runs,
			Events:  bus,
			Metrics: m.Handler(),
			Logger:  logger,
		})
		if err := gw.Validate(); err != nil {
			return fail(fmt.Errorf("api: %w", err))
		}
		app.Add("gateway", gw)
	}

	return &daemon{app: app, supervisor: supervisor, watcher: watcher, logger: logger}, nil
}

// levelObserver applies the log_level of every new generation unless the
// level was fixed on the command line.
type levelObserver struct {
	level  *slog.LevelVar
	fixed  bool
	logger *slog.Logger
}

func (o *levelObserver) StateChanged(host.State) {}

func (o *levelObserver) GenerationStarted(_ uint64, cfg *config.Config) {
	if o.fixed {
		return
	}
	lvl, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		o.logger.Warn("ignoring log level", "error", err)
		return
	}
	if lvl != o.level.Level() {
		o.logger.Info("log level changed", "level", lvl.String())
		o.level.Set(lvl)
	}
}
