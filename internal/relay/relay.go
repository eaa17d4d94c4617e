// Package relay drains a sidecar's stdout and stderr and republishes every
// line as an event.
package relay

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/text/encoding/unicode"
)

// Stream tags the origin of a line.
type Stream string

const (
	Stdout Stream = "out"
	Stderr Stream = "err"
)

// Line is one line of worker output with the trailing newline removed.
type Line struct {
	Stream Stream `json:"stream"`
	Text   string `json:"text"`
}

// Emitter receives lines. Emit must not block for long; it is called from
// the stream's drain goroutine and delays the next read.
type Emitter interface {
	Emit(Line)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Line)

func (f EmitterFunc) Emit(l Line) { f(l) }

// Option configures a Relay.
type Option func(*Relay)

// WithMirror copies every decoded line (plus '\n') to the given writers.
// Either writer may be nil. Write errors are ignored.
func WithMirror(stdout, stderr io.Writer) Option {
	return func(r *Relay) {
		r.mirror[Stdout] = stdout
		r.mirror[Stderr] = stderr
	}
}

// WithOnExit registers fn to run once after both streams reached EOF.
func WithOnExit(fn func()) Option {
	return func(r *Relay) { r.onExit = fn }
}

// Relay is the drain task for one process. It stops on its own when both
// streams are closed; there is no way to cancel it from outside.
type Relay struct {
	emit   Emitter
	mirror map[Stream]io.Writer
	onExit func()

	wg   sync.WaitGroup
	done chan struct{}

	outLines atomic.Uint64
	errLines atomic.Uint64
}

// Start launches the drain goroutines and returns immediately.
func Start(stdout, stderr io.Reader, emit Emitter, opts ...Option) *Relay {
	r := &Relay{
		emit:   emit,
		mirror: make(map[Stream]io.Writer, 2),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(r)
	}
	r.wg.Add(2)
	go r.drain(Stdout, stdout, &r.outLines)
	go r.drain(Stderr, stderr, &r.errLines)
	go func() {
		r.wg.Wait()
		if r.onExit != nil {
			r.onExit()
		}
		close(r.done)
	}()
	return r
}

// Done is closed after both streams ended and the exit hook returned.
func (r *Relay) Done() <-chan struct{} { return r.done }

// Wait blocks until Done is closed.
func (r *Relay) Wait() { <-r.done }

// Lines returns how many lines were relayed per stream so far.
func (r *Relay) Lines() (stdout, stderr uint64) {
	return r.outLines.Load(), r.errLines.Load()
}

func (r *Relay) drain(s Stream, src io.Reader, n *atomic.Uint64) {
	defer r.wg.Done()
	if src == nil {
		return
	}
	dec := unicode.UTF8.NewDecoder()
	br := bufio.NewReader(src)
	for {
		raw, err := br.ReadBytes('\n')
		if len(raw) > 0 {
			text := decode(dec.Bytes, trimEOL(raw))
			n.Add(1)
			if w := r.mirror[s]; w != nil {
				_, _ = io.WriteString(w, text+"\n")
			}
			if r.emit != nil {
				r.emit.Emit(Line{Stream: s, Text: text})
			}
		}
		if err != nil {
			// io.EOF or a closed pipe: either way the stream is finished
			return
		}
	}
}

func trimEOL(b []byte) []byte {
	b = bytes.TrimSuffix(b, []byte{'\n'})
	return bytes.TrimSuffix(b, []byte{'\r'})
}

// decode converts b to text, substituting U+FFFD for invalid sequences.
func decode(fn func([]byte) ([]byte, error), b []byte) string {
	out, err := fn(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "�")
	}
	return string(out)
}
