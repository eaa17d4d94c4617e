package supervisor

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loykin/chickenshell/internal/process"
)

// fakeWorker is an in-memory sidecar. exit reaps it and closes its output
// pipes; Kill does so unless killErr or ignoreKill is set.
type fakeWorker struct {
	pid        int
	startedAt  time.Time
	outR       *io.PipeReader
	outW       *io.PipeWriter
	errR       *io.PipeReader
	errW       *io.PipeWriter
	killErr    error
	ignoreKill bool
	kills      atomic.Int32

	once sync.Once
	done chan struct{}
	code atomic.Int32
}

func newFakeWorker(pid int) *fakeWorker {
	w := &fakeWorker{pid: pid, startedAt: time.Now(), done: make(chan struct{})}
	w.outR, w.outW = io.Pipe()
	w.errR, w.errW = io.Pipe()
	w.code.Store(-1)
	return w
}

func (w *fakeWorker) PID() int              { return w.pid }
func (w *fakeWorker) StartedAt() time.Time  { return w.startedAt }
func (w *fakeWorker) Stdout() io.Reader     { return w.outR }
func (w *fakeWorker) Stderr() io.Reader     { return w.errR }
func (w *fakeWorker) Done() <-chan struct{} { return w.done }
func (w *fakeWorker) ExitCode() int         { return int(w.code.Load()) }

func (w *fakeWorker) Kill() error {
	w.kills.Add(1)
	if w.killErr != nil {
		return w.killErr
	}
	if w.ignoreKill {
		return nil
	}
	w.exit(-1)
	return nil
}

// exit simulates the process going away with the given code and its pipes
// closing with it.
func (w *fakeWorker) exit(code int) {
	w.reap(code)
	_ = w.outW.Close()
	_ = w.errW.Close()
}

// reap marks the process as gone while leaving its pipes open, as when a
// grandchild still holds them.
func (w *fakeWorker) reap(code int) {
	w.once.Do(func() {
		w.code.Store(int32(code))
		close(w.done)
	})
}

// closeOutput ends the streams of an already reaped worker.
func (w *fakeWorker) closeOutput() {
	_ = w.outW.Close()
	_ = w.errW.Close()
}

func (w *fakeWorker) Wait() error {
	<-w.done
	if w.ExitCode() != 0 {
		return errors.New("exit status nonzero")
	}
	return nil
}

// countingLauncher records every spawn and hands out fake workers.
type countingLauncher struct {
	mu         sync.Mutex
	specs      []process.Spec
	workers    []*fakeWorker
	fail       error
	delay      time.Duration
	killErr    error
	ignoreKill bool
}

func (l *countingLauncher) Launch(spec process.Spec) (Worker, error) {
	if l.delay > 0 {
		time.Sleep(l.delay)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.specs = append(l.specs, spec)
	if l.fail != nil {
		return nil, l.fail
	}
	w := newFakeWorker(1000 + len(l.workers))
	w.killErr = l.killErr
	w.ignoreKill = l.ignoreKill
	l.workers = append(l.workers, w)
	return w, nil
}

func (l *countingLauncher) spawns() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.workers)
}

func (l *countingLauncher) attempts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.specs)
}

func (l *countingLauncher) worker(i int) *fakeWorker {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.workers[i]
}
