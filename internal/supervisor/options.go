package supervisor

import (
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/loykin/chickenshell/internal/env"
	"github.com/loykin/chickenshell/internal/history"
)

// DefaultExitWait bounds how long Stop waits for a killed sidecar to be reaped.
const DefaultExitWait = 2 * time.Second

// MirrorFunc opens the stdout/stderr mirror destinations for one run. Either may be nil.
type MirrorFunc func(name string) (stdout, stderr io.WriteCloser, err error)

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLauncher replaces the process launcher.
func WithLauncher(l Launcher) Option {
	return func(s *Supervisor) {
		if l != nil {
			s.launcher = l
		}
	}
}

// WithEnv sets the environment composer. PYTHONIOENCODING=utf-8 is always forced.
func WithEnv(e *env.Env) Option {
	return func(s *Supervisor) {
		if e != nil {
			s.env = e
		}
	}
}

// WithInterpreter runs the resolved path through an interpreter command line.
func WithInterpreter(cmdline string) Option {
	return func(s *Supervisor) { s.interpreter = cmdline }
}

// WithArgs appends extra arguments to the sidecar command line.
func WithArgs(args ...string) Option {
	return func(s *Supervisor) { s.args = append([]string(nil), args...) }
}

// WithWorkDir sets the sidecar working directory.
func WithWorkDir(dir string) Option {
	return func(s *Supervisor) { s.workDir = dir }
}

// WithMirror enables copying sidecar output to files.
func WithMirror(fn MirrorFunc) Option {
	return func(s *Supervisor) { s.mirror = fn }
}

// WithHistory records lifecycle events into sink.
func WithHistory(sink history.Sink) Option {
	return func(s *Supervisor) { s.hist = sink }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) {
		if l != nil {
			s.log = l
		}
	}
}

// WithTracerProvider sets the provider spans are created from.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Supervisor) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithExitWait bounds Stop. Zero means do not wait at all.
func WithExitWait(d time.Duration) Option {
	return func(s *Supervisor) {
		if d >= 0 {
			s.exitWait = d
		}
	}
}
