// Package supervisor owns the lifetime of the single sidecar process.
//
// At most one sidecar exists at a time. Start is idempotent while one is
// running, Shutdown hands the handle out exactly once and kills it, and a
// sidecar that exits on its own is cleared so the next Start spawns afresh.
// Nothing is restarted automatically.
package supervisor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/loykin/chickenshell/internal/env"
	"github.com/loykin/chickenshell/internal/events"
	"github.com/loykin/chickenshell/internal/history"
	"github.com/loykin/chickenshell/internal/metrics"
	"github.com/loykin/chickenshell/internal/process"
	"github.com/loykin/chickenshell/internal/relay"
	"github.com/loykin/chickenshell/internal/slot"
)

const tracerName = "github.com/loykin/chickenshell/internal/supervisor"

// Status is a point-in-time view of the sidecar.
type Status struct {
	Running   bool      `json:"running"`
	Starting  bool      `json:"starting,omitempty"`
	Name      string    `json:"name"`
	PID       int       `json:"pid,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
	Path      string    `json:"path,omitempty"`
	StartedAt time.Time `json:"started_at,omitzero"`
}

// run is one spawned sidecar. Fields other than the atomics never change after Install.
type run struct {
	id      string
	path    string
	worker  Worker
	mirrors []io.Closer

	killed atomic.Bool
	relay  atomic.Pointer[relay.Relay]
}

// Supervisor spawns, tracks and kills the sidecar.
type Supervisor struct {
	name     string
	res      PathResolver
	bus      *events.Bus
	launcher Launcher
	env      *env.Env

	interpreter string
	args        []string
	workDir     string
	mirror      MirrorFunc
	hist        history.Sink
	exitWait    time.Duration

	log    *slog.Logger
	tracer trace.Tracer

	slot *slot.Slot[*run]
	wg   sync.WaitGroup

	// startMu orders Start against Close; Start holds it shared.
	startMu sync.RWMutex
	closed  bool
}

// New creates a supervisor for the sidecar called name. Output lines are
// published on bus under events.TopicStdout and events.TopicStderr.
func New(name string, res PathResolver, bus *events.Bus, opts ...Option) *Supervisor {
	s := &Supervisor{
		name:     name,
		res:      res,
		bus:      bus,
		launcher: ProcessLauncher,
		env:      env.New(),
		exitWait: DefaultExitWait,
		log:      slog.Default(),
		tracer:   otel.Tracer(tracerName),
		slot:     slot.New[*run](),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With("component", "supervisor", "sidecar", name)
	return s
}

// Name returns the sidecar name.
func (s *Supervisor) Name() string { return s.name }

// Start spawns the sidecar unless one is already running or being spawned,
// in which case it returns nil without doing anything. After Close it
// returns ErrClosed.
func (s *Supervisor) Start(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "sidecar.start")
	defer span.End()

	s.startMu.RLock()
	defer s.startMu.RUnlock()
	if s.closed {
		span.SetAttributes(attribute.Bool("sidecar.closed", true))
		return ErrClosed
	}

	if !s.slot.TryAcquire() {
		span.SetAttributes(attribute.Bool("sidecar.already_running", true))
		s.log.Debug("start requested while sidecar is held; ignoring")
		return nil
	}

	path, err := s.res.Resolve()
	if err != nil {
		s.slot.Release()
		return s.spawnFailed(ctx, span, metrics.ReasonResolve, "", fmt.Errorf("%w: %w", ErrResolutionFailed, err))
	}
	span.SetAttributes(attribute.String("sidecar.path", path))

	spec := process.Spec{
		Name:        s.name,
		Path:        path,
		Interpreter: s.interpreter,
		Args:        s.args,
		WorkDir:     s.workDir,
		Env:         s.env.Merge(nil),
	}
	w, err := s.launcher.Launch(spec)
	if err != nil {
		s.slot.Release()
		return s.spawnFailed(ctx, span, metrics.ReasonLaunch, path, fmt.Errorf("%w: %w", ErrLaunchFailed, err))
	}

	r := &run{id: uuid.NewString(), path: path, worker: w}
	var outW, errW io.Writer
	if s.mirror != nil {
		o, e, err := s.mirror(s.name)
		if err != nil {
			s.log.Warn("sidecar output mirror unavailable", "error", err)
		}
		if o != nil {
			outW = o
			r.mirrors = append(r.mirrors, o)
		}
		if e != nil {
			errW = e
			r.mirrors = append(r.mirrors, e)
		}
	}

	s.slot.Install(r)
	s.wg.Add(2)
	r.relay.Store(relay.Start(w.Stdout(), w.Stderr(), s.emitter(),
		relay.WithMirror(outW, errW),
		relay.WithOnExit(func() { s.onDrained(r) }),
	))
	go s.watch(r)

	span.SetAttributes(attribute.Int("sidecar.pid", w.PID()), attribute.String("sidecar.run_id", r.id))
	metrics.IncSpawn()
	s.log.Info("sidecar started", "pid", w.PID(), "path", path, "run_id", r.id)
	s.record(ctx, history.EventStart, s.recordOf(r))
	return nil
}

func (s *Supervisor) spawnFailed(ctx context.Context, span trace.Span, reason, path string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, reason)
	metrics.IncSpawnFailure(reason)
	s.log.Error("sidecar spawn failed", "reason", reason, "error", err)
	s.record(ctx, history.EventSpawnFailed, history.Record{
		Name:  s.name,
		Path:  path,
		Error: err.Error(),
	})
	return err
}

// Shutdown removes the sidecar from the supervisor and sends it one forceful
// kill. It does not wait for the process to exit. If the OS rejects the kill
// the handle is not put back.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	_, err := s.shutdown(ctx)
	return err
}

func (s *Supervisor) shutdown(ctx context.Context) (*run, error) {
	_, span := s.tracer.Start(ctx, "sidecar.shutdown")
	defer span.End()

	r, ok := s.slot.Take()
	if !ok {
		span.SetAttributes(attribute.Bool("sidecar.running", false))
		return nil, ErrNotRunning
	}
	span.SetAttributes(attribute.Int("sidecar.pid", r.worker.PID()), attribute.String("sidecar.run_id", r.id))
	r.killed.Store(true)
	if err := r.worker.Kill(); err != nil {
		err = fmt.Errorf("%w: %w", ErrKillFailed, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "kill")
		metrics.IncKillFailure()
		s.log.Error("sidecar kill failed", "pid", r.worker.PID(), "error", err)
		return r, err
	}
	metrics.IncShutdown()
	s.log.Info("sidecar killed", "pid", r.worker.PID(), "run_id", r.id)
	rec := s.recordOf(r)
	rec.EndedAt = time.Now()
	s.record(ctx, history.EventShutdown, rec)
	return r, nil
}

// Stop is Shutdown followed by a bounded wait for the process to be reaped.
// A sidecar that is not running is reported as ErrNotRunning.
func (s *Supervisor) Stop(ctx context.Context) error {
	r, err := s.shutdown(ctx)
	if err != nil {
		return err
	}
	if s.exitWait == 0 {
		return nil
	}
	t := time.NewTimer(s.exitWait)
	defer t.Stop()
	select {
	case <-r.worker.Done():
		return nil
	case <-t.C:
		s.log.Warn("sidecar not reaped after kill", "pid", r.worker.PID(), "wait", s.exitWait)
		return fmt.Errorf("%w: waited %s", ErrExitTimeout, s.exitWait)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close makes every later Start fail with ErrClosed. A Start already in
// flight finishes first. It does not touch a running sidecar; follow it with
// Stop for that.
func (s *Supervisor) Close() {
	s.startMu.Lock()
	s.closed = true
	s.startMu.Unlock()
}

// Path returns the resolver's current answer without spawning anything.
func (s *Supervisor) Path() (string, error) {
	p, err := s.res.Resolve()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrResolutionFailed, err)
	}
	return p, nil
}

// Status reports whether a sidecar is held and, if so, which one.
func (s *Supervisor) Status() Status {
	st := Status{Name: s.name}
	r, ok := s.slot.Peek()
	if !ok {
		st.Starting = s.slot.Busy()
		return st
	}
	st.Running = true
	st.PID = r.worker.PID()
	st.RunID = r.id
	st.Path = r.path
	st.StartedAt = r.worker.StartedAt()
	return st
}

// PID returns the pid of the held sidecar.
func (s *Supervisor) PID() (int, bool) {
	r, ok := s.slot.Peek()
	if !ok {
		return 0, false
	}
	return r.worker.PID(), true
}

// Wait blocks until every sidecar started so far was reaped and its output
// drained. Call Close first if no new Start may race it.
func (s *Supervisor) Wait() { s.wg.Wait() }

func (s *Supervisor) emitter() relay.Emitter {
	return relay.EmitterFunc(func(l relay.Line) {
		topic := events.TopicStdout
		if l.Stream == relay.Stderr {
			topic = events.TopicStderr
		}
		metrics.IncOutputLine(string(l.Stream))
		if s.bus != nil {
			s.bus.Publish(topic, l.Text)
		}
	})
}

// watch waits for the process itself to exit. Output may still be flowing
// from a grandchild that inherited the pipes; the relay keeps draining it.
func (s *Supervisor) watch(r *run) {
	defer s.wg.Done()

	waitErr := r.worker.Wait()
	// a sidecar that died on its own is still in the slot
	unexpected := s.slot.TakeIf(r)
	lifetime := time.Since(r.worker.StartedAt())
	metrics.ObserveExit(!unexpected, lifetime.Seconds())

	rec := s.recordOf(r)
	rec.EndedAt = time.Now()
	rec.ExitCode = r.worker.ExitCode()
	if waitErr != nil {
		rec.Error = waitErr.Error()
	}
	attrs := []any{"pid", r.worker.PID(), "run_id", r.id, "exit_code", rec.ExitCode,
		"uptime", lifetime.Round(time.Millisecond)}
	if unexpected {
		s.log.Warn("sidecar exited", append(attrs, "error", waitErr)...)
	} else {
		s.log.Info("sidecar exited after kill", attrs...)
	}
	s.record(context.Background(), history.EventExit, rec)
}

// onDrained runs on the relay goroutine once both streams hit EOF.
func (s *Supervisor) onDrained(r *run) {
	defer s.wg.Done()

	for _, c := range r.mirrors {
		_ = c.Close()
	}
	if c, ok := r.worker.(io.Closer); ok {
		_ = c.Close()
	}
	var out, errLines uint64
	if rl := r.relay.Load(); rl != nil {
		out, errLines = rl.Lines()
	}
	s.log.Debug("sidecar output closed", "run_id", r.id, "stdout_lines", out, "stderr_lines", errLines)
}

func (s *Supervisor) recordOf(r *run) history.Record {
	return history.Record{
		RunID:     r.id,
		Name:      s.name,
		Path:      r.path,
		PID:       r.worker.PID(),
		StartedAt: r.worker.StartedAt(),
	}
}

func (s *Supervisor) record(ctx context.Context, typ history.EventType, rec history.Record) {
	if s.hist == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	e := history.Event{Type: typ, OccurredAt: time.Now().UTC(), Record: rec}
	if err := s.hist.Send(ctx, e); err != nil {
		s.log.Debug("history record failed", "event", typ, "error", err)
	}
}
