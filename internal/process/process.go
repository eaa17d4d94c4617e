// Package process wraps one running sidecar OS process and its pipes.
package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// Handle is a live sidecar process. It keeps the stdin pipe open for the
// lifetime of the process; the worker treats stdin EOF as its parent going away.
//
// The stdio pipes are plain os.Pipe pairs, so the process is reaped as soon as
// it exits while its output can still be read to EOF. A grandchild that
// inherited stdout keeps the read side open after the sidecar itself is gone.
type Handle struct {
	name      string
	cmd       *exec.Cmd
	stdin     *os.File
	stdout    *os.File
	stderr    *os.File
	pid       int
	startedAt time.Time

	stdinOnce sync.Once
	closeOnce sync.Once
	waitErr   error
	done      chan struct{}
}

// Start launches the process described by spec with all three stdio pipes
// attached and begins waiting for it in the background.
func Start(spec Spec) (*Handle, error) {
	cmd := spec.BuildCommand()
	var opened []*os.File
	pipe := func() (r, w *os.File, err error) {
		r, w, err = os.Pipe()
		if err == nil {
			opened = append(opened, r, w)
		}
		return r, w, err
	}
	inR, inW, err := pipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	outR, outW, err := pipe()
	if err != nil {
		closeFiles(opened...)
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	errR, errW, err := pipe()
	if err != nil {
		closeFiles(opened...)
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	cmd.Stdin, cmd.Stdout, cmd.Stderr = inR, outW, errW
	if err := cmd.Start(); err != nil {
		closeFiles(opened...)
		return nil, err
	}
	// the child owns its ends now
	closeFiles(inR, outW, errW)

	h := &Handle{
		name:      spec.Name,
		cmd:       cmd,
		stdin:     inW,
		stdout:    outR,
		stderr:    errR,
		pid:       cmd.Process.Pid,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
	go h.reap()
	return h, nil
}

func (h *Handle) reap() {
	h.waitErr = h.cmd.Wait()
	_ = h.CloseStdin()
	close(h.done)
}

func (h *Handle) Name() string         { return h.name }
func (h *Handle) PID() int             { return h.pid }
func (h *Handle) StartedAt() time.Time { return h.startedAt }
func (h *Handle) Stdin() io.Writer     { return h.stdin }
func (h *Handle) Stdout() io.Reader    { return h.stdout }
func (h *Handle) Stderr() io.Reader    { return h.stderr }

// Done is closed once the process has been reaped.
func (h *Handle) Done() <-chan struct{} { return h.done }

// CloseStdin closes the input pipe. Safe to call more than once.
func (h *Handle) CloseStdin() error {
	var err error
	h.stdinOnce.Do(func() { err = h.stdin.Close() })
	return err
}

// Close releases the read ends of stdout and stderr. Call it once both were
// drained; a pending read returns an error.
func (h *Handle) Close() error {
	var err error
	h.closeOnce.Do(func() { err = errors.Join(h.stdout.Close(), h.stderr.Close()) })
	return err
}

// Wait blocks until the process was reaped and returns its exit error.
// It does not depend on the output pipes being drained.
func (h *Handle) Wait() error {
	<-h.done
	return h.waitErr
}

// Kill issues a single forceful termination request to the process (and its
// process group on Unix). It does not wait for the process to exit.
// A process that has already been reaped is not an error.
func (h *Handle) Kill() error {
	_ = h.CloseStdin()
	select {
	case <-h.done:
		return nil
	default:
	}
	err := killTree(h.cmd.Process)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// ExitCode returns the exit code once the process was reaped, or -1.
func (h *Handle) ExitCode() int {
	select {
	case <-h.done:
	default:
		return -1
	}
	if h.cmd.ProcessState == nil {
		return -1
	}
	return h.cmd.ProcessState.ExitCode()
}

func closeFiles(fs ...*os.File) {
	for _, f := range fs {
		_ = f.Close()
	}
}
