// Package app assembles the shell: configuration in, a running supervisor,
// command surface and background workers out.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"vawter.tech/stopper"

	"github.com/loykin/chickenshell/internal/config"
	"github.com/loykin/chickenshell/internal/env"
	"github.com/loykin/chickenshell/internal/events"
	"github.com/loykin/chickenshell/internal/history"
	"github.com/loykin/chickenshell/internal/history/factory"
	"github.com/loykin/chickenshell/internal/lifecycle"
	"github.com/loykin/chickenshell/internal/logger"
	"github.com/loykin/chickenshell/internal/metrics"
	"github.com/loykin/chickenshell/internal/secret"
	"github.com/loykin/chickenshell/internal/server"
	"github.com/loykin/chickenshell/internal/supervisor"
	"github.com/loykin/chickenshell/internal/tracing"
	"github.com/loykin/chickenshell/internal/windowstate"
)

// Option customizes App construction.
type Option func(*options)

type options struct {
	launcher supervisor.Launcher
	resolver supervisor.PathResolver
	registry *prometheus.Registry
	logOut   io.Writer
}

// WithLauncher replaces the sidecar launcher.
func WithLauncher(l supervisor.Launcher) Option { return func(o *options) { o.launcher = l } }

// WithResolver replaces the configured path resolver.
func WithResolver(r supervisor.PathResolver) Option { return func(o *options) { o.resolver = r } }

// WithRegistry uses r instead of a fresh Prometheus registry.
func WithRegistry(r *prometheus.Registry) Option { return func(o *options) { o.registry = r } }

// WithLogOutput sends application logs to w.
func WithLogOutput(w io.Writer) Option { return func(o *options) { o.logOut = w } }

// App is the assembled shell.
type App struct {
	cfg *config.Config
	log *slog.Logger
	lv  *slog.LevelVar

	bus     *events.Bus
	sup     *supervisor.Supervisor
	hooks   *lifecycle.Hooks
	secrets *secret.Store
	window  *windowstate.Tracker
	hist    history.Sink
	tracer  *tracing.Provider
	reg     *prometheus.Registry
	sampler *metrics.Sampler
	router  *server.Router
	handler http.Handler

	sctx *stopper.Context
}

// New wires every component from cfg. Nothing is started.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	lc := cfg.Log
	if o.logOut != nil {
		lc.Slog.Output = o.logOut
	}
	log, lv := lc.NewSlogger()
	slog.SetDefault(log)

	a := &App{cfg: cfg, log: log, lv: lv}

	a.reg = o.registry
	if a.reg == nil {
		a.reg = prometheus.NewRegistry()
	}
	if cfg.Metrics.Enabled {
		if err := metrics.Register(a.reg); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	a.bus = events.NewBus(
		events.WithBuffer(cfg.EventsBuffer),
		events.WithDropHook(metrics.IncEventDropped),
	)

	tp, err := tracing.Setup(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Output:      cfg.Tracing.Output,
		ServiceName: cfg.Tracing.ServiceName,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	a.tracer = tp

	if cfg.History.Enabled {
		sink, err := factory.NewSinkFromDSN(cfg.History.DSN)
		if err != nil {
			a.closeEarly()
			return nil, fmt.Errorf("history sink: %w", err)
		}
		a.hist = sink
	}

	e := env.New()
	if !cfg.UseOSEnv {
		e.FromList(nil)
	}
	e.SetAll(cfg.Env)

	res := o.resolver
	if res == nil {
		res = cfg.Resolver()
	}
	supOpts := []supervisor.Option{
		supervisor.WithEnv(e),
		supervisor.WithInterpreter(cfg.Sidecar.Interpreter),
		supervisor.WithArgs(cfg.Sidecar.Args...),
		supervisor.WithWorkDir(cfg.Sidecar.WorkDir),
		supervisor.WithExitWait(cfg.Sidecar.ExitWait),
		supervisor.WithLogger(log),
		supervisor.WithTracerProvider(tp.TracerProvider()),
		supervisor.WithMirror(func(name string) (io.WriteCloser, io.WriteCloser, error) {
			return cfg.Log.ProcessWriters(name)
		}),
	}
	if o.launcher != nil {
		supOpts = append(supOpts, supervisor.WithLauncher(o.launcher))
	}
	if a.hist != nil {
		supOpts = append(supOpts, supervisor.WithHistory(a.hist))
	}
	a.sup = supervisor.New(cfg.Sidecar.Name, res, a.bus, supOpts...)

	if s, err := secret.New(cfg.Secret.Service); err != nil {
		log.Warn("secret store unavailable", "error", err)
	} else {
		a.secrets = s
	}

	if w, err := windowstate.NewTracker(cfg.WindowStateFile()); err != nil {
		log.Warn("window state unreadable; using defaults", "file", cfg.WindowStateFile(), "error", err)
		a.window = windowstate.NewTrackerFrom(cfg.WindowStateFile(), windowstate.Default)
	} else {
		a.window = w
	}
	a.hooks = lifecycle.New(a.sup, a.window, cfg.Sidecar.Autostart, log)

	if cfg.Metrics.Enabled {
		a.sampler = metrics.NewSampler(cfg.Metrics.SampleInterval, a.sup.PID)
		if err := a.sampler.Register(a.reg); err != nil {
			a.closeEarly()
			return nil, fmt.Errorf("register sampler: %w", err)
		}
	}

	deps := server.Deps{
		Sidecar:    a.sup,
		Bus:        a.bus,
		Window:     a.window,
		BackendURL: cfg.BackendURL,
		Sampler:    a.sampler,
		Logger:     log,
	}
	if a.secrets != nil {
		deps.Secrets = a.secrets
	}
	if cfg.Metrics.Enabled {
		deps.Gatherer = a.reg
	}
	if q, ok := a.hist.(history.Querier); ok {
		deps.History = q
	}
	a.router = server.NewRouter(deps, cfg.Server.BasePath)
	a.handler = a.router.Handler()
	return a, nil
}

func (a *App) Config() *config.Config             { return a.cfg }
func (a *App) Logger() *slog.Logger               { return a.log }
func (a *App) Supervisor() *supervisor.Supervisor { return a.sup }
func (a *App) Bus() *events.Bus                   { return a.bus }
func (a *App) Handler() http.Handler              { return a.handler }
func (a *App) Window() *windowstate.Tracker       { return a.window }
func (a *App) Registry() *prometheus.Registry     { return a.reg }

// Secrets returns the keyring store, or nil when the OS user is unknown.
func (a *App) Secrets() *secret.Store { return a.secrets }

// SetLogLevel changes the application log level at runtime.
func (a *App) SetLogLevel(level string) { a.lv.Set(logger.ParseLevel(level)) }

// Startup launches background workers (HTTP server, sampler) and then runs
// the startup hook. A sidecar that fails to start does not fail Startup.
func (a *App) Startup(ctx context.Context) error {
	if a.sctx != nil {
		return errors.New("already started")
	}
	a.sctx = stopper.WithContext(context.WithoutCancel(ctx))

	if a.cfg.Server.Enabled {
		srv := server.NewServer(a.cfg.Server.Listen, a.handler)
		srv.RegisterOnShutdown(a.router.Drain)
		a.sctx.Go(func(sctx *stopper.Context) error {
			a.log.Info("command server listening", "addr", a.cfg.Server.Listen, "base", a.cfg.Server.BasePath)
			return server.ListenAndServe(stopping(sctx), srv)
		})
	}
	if a.sampler != nil {
		a.sctx.Go(func(sctx *stopper.Context) error {
			return a.sampler.Run(stopping(sctx))
		})
	}
	a.hooks.OnStartup(ctx)
	return nil
}

// Exit stops the command server and sampler, closes the supervisor to new
// starts, runs the exit-requested hook and then releases resources. It
// reports every failure.
func (a *App) Exit(ctx context.Context) error {
	var errs []error
	if a.sctx != nil {
		a.sctx.Stop(5 * time.Second)
		errs = append(errs, a.sctx.Wait())
	}
	a.router.Drain()
	a.sup.Close()
	errs = append(errs, a.hooks.OnExitRequested(ctx))

	reaped := make(chan struct{})
	go func() {
		a.sup.Wait()
		close(reaped)
	}()
	select {
	case <-reaped:
	case <-ctx.Done():
		a.log.Warn("sidecar output still open at exit")
	}
	a.bus.Close()
	if a.hist != nil {
		errs = append(errs, a.hist.Close())
	}
	errs = append(errs, a.tracer.Shutdown(ctx))
	return errors.Join(errs...)
}

// Run is Startup, block until ctx is done, Exit.
func (a *App) Run(ctx context.Context) error {
	if err := a.Startup(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	exitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	return a.Exit(exitCtx)
}

func (a *App) closeEarly() {
	a.bus.Close()
	if a.hist != nil {
		_ = a.hist.Close()
	}
	if a.tracer != nil {
		_ = a.tracer.Shutdown(context.Background())
	}
}

// stopping returns a context cancelled as soon as sctx begins stopping.
func stopping(sctx *stopper.Context) context.Context {
	ctx, cancel := context.WithCancel(sctx)
	go func() {
		select {
		case <-sctx.Stopping():
		case <-ctx.Done():
		}
		cancel()
	}()
	return ctx
}
