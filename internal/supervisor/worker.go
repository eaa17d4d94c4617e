package supervisor

import (
	"io"
	"time"

	"github.com/loykin/chickenshell/internal/process"
)

// Worker is a spawned sidecar as seen by the supervisor.
type Worker interface {
	PID() int
	StartedAt() time.Time
	Stdout() io.Reader
	Stderr() io.Reader
	// Kill sends one forceful termination request and returns without waiting.
	Kill() error
	// Wait blocks until the worker process was reaped, independent of its
	// output streams.
	Wait() error
	Done() <-chan struct{}
	ExitCode() int
}

// Launcher spawns workers.
type Launcher interface {
	Launch(spec process.Spec) (Worker, error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(spec process.Spec) (Worker, error)

func (f LauncherFunc) Launch(spec process.Spec) (Worker, error) { return f(spec) }

// ProcessLauncher starts real OS processes.
var ProcessLauncher Launcher = LauncherFunc(func(spec process.Spec) (Worker, error) {
	h, err := process.Start(spec)
	if err != nil {
		return nil, err
	}
	return h, nil
})

// PathResolver yields the sidecar executable path.
type PathResolver interface {
	Resolve() (string, error)
}

// PathResolverFunc adapts a function to PathResolver.
type PathResolverFunc func() (string, error)

func (f PathResolverFunc) Resolve() (string, error) { return f() }
