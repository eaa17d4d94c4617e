// Package chickenshell embeds the desktop shell's sidecar supervisor:
// the worker lifecycle, its output stream and the local command surface.
package chickenshell

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/chickenshell/internal/app"
	"github.com/loykin/chickenshell/internal/config"
	"github.com/loykin/chickenshell/internal/events"
	"github.com/loykin/chickenshell/internal/metrics"
	"github.com/loykin/chickenshell/internal/process"
	"github.com/loykin/chickenshell/internal/server"
	"github.com/loykin/chickenshell/internal/supervisor"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = config.Config

type Status = supervisor.Status

type Event = events.Event

type Subscription = events.Subscription

type Option = app.Option

type PathResolver = supervisor.PathResolver

type PathResolverFunc = supervisor.PathResolverFunc

type Launcher = supervisor.Launcher

type LauncherFunc = supervisor.LauncherFunc

type Worker = supervisor.Worker

type LaunchSpec = process.Spec

// Output topics carrying the worker's stdout and stderr lines.
const (
	TopicStdout = events.TopicStdout
	TopicStderr = events.TopicStderr
)

// Lifecycle errors returned by Shell operations.
var (
	ErrResolutionFailed = supervisor.ErrResolutionFailed
	ErrLaunchFailed     = supervisor.ErrLaunchFailed
	ErrNotRunning       = supervisor.ErrNotRunning
	ErrKillFailed       = supervisor.ErrKillFailed
	ErrExitTimeout      = supervisor.ErrExitTimeout
	ErrClosed           = supervisor.ErrClosed
)

var (
	WithLauncher  = app.WithLauncher
	WithResolver  = app.WithResolver
	WithRegistry  = app.WithRegistry
	WithLogOutput = app.WithLogOutput
)

// Shell is a thin facade over internal/app.App.
// It provides a stable public API for embedding.
type Shell struct{ inner *app.App }

// LoadConfig reads a TOML file; an empty path yields defaults plus environment.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// New wires a shell from cfg. Nothing runs until Startup.
func New(cfg *Config, opts ...Option) (*Shell, error) {
	a, err := app.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &Shell{inner: a}, nil
}

func (s *Shell) Startup(ctx context.Context) error { return s.inner.Startup(ctx) }
func (s *Shell) Exit(ctx context.Context) error    { return s.inner.Exit(ctx) }

// Run starts the shell and blocks until ctx is done, then exits.
func (s *Shell) Run(ctx context.Context) error { return s.inner.Run(ctx) }

func (s *Shell) StartSidecar(ctx context.Context) error    { return s.inner.Supervisor().Start(ctx) }
func (s *Shell) ShutdownSidecar(ctx context.Context) error { return s.inner.Supervisor().Shutdown(ctx) }
func (s *Shell) SidecarPath() (string, error)              { return s.inner.Supervisor().Path() }
func (s *Shell) Status() Status                            { return s.inner.Supervisor().Status() }
func (s *Shell) BackendURL() string                        { return s.inner.Config().BackendURL }

// Subscribe opens a subscription to the given output topics, or all when none.
func (s *Shell) Subscribe(topics ...string) (*Subscription, error) {
	return s.inner.Bus().Subscribe(topics...)
}

// Handler returns the command surface for mounting in another server.
func (s *Shell) Handler() http.Handler { return s.inner.Handler() }

// MountEcho routes the command surface's base path on e.
func (s *Shell) MountEcho(e *echo.Echo) {
	server.MountEcho(e, s.inner.Config().Server.BasePath, s.Handler())
}

// Registry returns the Prometheus registry the shell's collectors live in.
func (s *Shell) Registry() *prometheus.Registry { return s.inner.Registry() }

// SetLogLevel changes the shell's log level at runtime.
func (s *Shell) SetLogLevel(level string) { s.inner.SetLogLevel(level) }

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
