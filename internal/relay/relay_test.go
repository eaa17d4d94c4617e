package relay

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type collector struct {
	mu    sync.Mutex
	lines []Line
}

func (c *collector) Emit(l Line) {
	c.mu.Lock()
	c.lines = append(c.lines, l)
	c.mu.Unlock()
}

func (c *collector) stream(s Stream) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, l := range c.lines {
		if l.Stream == s {
			out = append(out, l.Text)
		}
	}
	return out
}

func waitRelay(t *testing.T, r *Relay) {
	t.Helper()
	select {
	case <-r.Done():
	case <-time.After(3 * time.Second):
		t.Fatalf("relay did not finish after both streams closed")
	}
}

func TestRelay_LinesPerStream(t *testing.T) {
	c := &collector{}
	r := Start(strings.NewReader("a\nb\r\nc"), strings.NewReader("e1\ne2\n"), c)
	waitRelay(t, r)

	assert.Equal(t, []string{"a", "b", "c"}, c.stream(Stdout))
	assert.Equal(t, []string{"e1", "e2"}, c.stream(Stderr))
	out, errn := r.Lines()
	assert.Equal(t, uint64(3), out)
	assert.Equal(t, uint64(2), errn)
}

func TestRelay_EmptyLinesPreserved(t *testing.T) {
	c := &collector{}
	r := Start(strings.NewReader("\n\nx\n"), strings.NewReader(""), c)
	waitRelay(t, r)
	assert.Equal(t, []string{"", "", "x"}, c.stream(Stdout))
	assert.Empty(t, c.stream(Stderr))
}

func TestRelay_InvalidBytesReplaced(t *testing.T) {
	c := &collector{}
	r := Start(strings.NewReader("ok\n\xff\xfebad\nafter\n"), strings.NewReader("\xc3\n"), c)
	waitRelay(t, r)

	out := c.stream(Stdout)
	require.Len(t, out, 3)
	assert.Equal(t, "ok", out[0])
	assert.Contains(t, out[1], "�")
	assert.True(t, strings.HasSuffix(out[1], "bad"))
	assert.Equal(t, "after", out[2])

	errs := c.stream(Stderr)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "�")
}

func TestRelay_LongLine(t *testing.T) {
	c := &collector{}
	long := strings.Repeat("x", 256*1024)
	r := Start(strings.NewReader(long+"\n"), nil, c)
	waitRelay(t, r)
	out := c.stream(Stdout)
	require.Len(t, out, 1)
	assert.Len(t, out[0], len(long))
}

func TestRelay_MirrorAndOnExit(t *testing.T) {
	var outBuf, errBuf bytes.Buffer
	exited := make(chan struct{})
	r := Start(strings.NewReader("o1\no2\n"), strings.NewReader("e1\n"), nil,
		WithMirror(&outBuf, &errBuf),
		WithOnExit(func() { close(exited) }),
	)
	waitRelay(t, r)
	select {
	case <-exited:
	default:
		t.Fatalf("exit hook did not run before Done")
	}
	assert.Equal(t, "o1\no2\n", outBuf.String())
	assert.Equal(t, "e1\n", errBuf.String())
}

func TestRelay_RunsUntilBothStreamsClose(t *testing.T) {
	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	c := &collector{}
	r := Start(outR, errR, c)

	_, _ = io.WriteString(outW, "first\n")
	require.NoError(t, outW.Close())

	select {
	case <-r.Done():
		t.Fatalf("relay finished while stderr still open")
	case <-time.After(50 * time.Millisecond):
	}

	_, _ = io.WriteString(errW, "late\n")
	require.NoError(t, errW.Close())
	waitRelay(t, r)

	assert.Equal(t, []string{"first"}, c.stream(Stdout))
	assert.Equal(t, []string{"late"}, c.stream(Stderr))
}

func TestRelay_LineFidelityProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		outLines := rapid.SliceOfN(rapid.StringMatching(`[a-zA-Z0-9 _.:-]{0,24}`), 0, 40).Draw(rt, "stdout")
		errLines := rapid.SliceOfN(rapid.StringMatching(`[a-zA-Z0-9 _.:-]{0,24}`), 0, 40).Draw(rt, "stderr")

		outR, outW := io.Pipe()
		errR, errW := io.Pipe()
		c := &collector{}
		r := Start(outR, errR, c)

		write := func(w *io.PipeWriter, lines []string) {
			for _, l := range lines {
				_, _ = io.WriteString(w, l+"\n")
			}
			_ = w.Close()
		}
		go write(outW, outLines)
		go write(errW, errLines)

		select {
		case <-r.Done():
		case <-time.After(3 * time.Second):
			rt.Fatalf("relay did not finish")
		}

		gotOut, gotErr := c.stream(Stdout), c.stream(Stderr)
		if len(gotOut) != len(outLines) || len(gotErr) != len(errLines) {
			rt.Fatalf("got %d/%d lines, want %d/%d", len(gotOut), len(gotErr), len(outLines), len(errLines))
		}
		for i := range outLines {
			if gotOut[i] != outLines[i] {
				rt.Fatalf("stdout[%d] = %q, want %q", i, gotOut[i], outLines[i])
			}
		}
		for i := range errLines {
			if gotErr[i] != errLines[i] {
				rt.Fatalf("stderr[%d] = %q, want %q", i, gotErr[i], errLines[i])
			}
		}
	})
}
