package process

import (
	"io"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

func TestSpec_BuildCommandDirect(t *testing.T) {
	s := Spec{Path: "/opt/chicken/chicken-core", Args: []string{"--port", "8009"}, WorkDir: "/tmp"}
	cmd := s.BuildCommand()
	if got := strings.Join(cmd.Args, " "); got != "/opt/chicken/chicken-core --port 8009" {
		t.Fatalf("unexpected args: %q", got)
	}
	if cmd.Dir != "/tmp" {
		t.Fatalf("workdir not applied: %q", cmd.Dir)
	}
	if cmd.SysProcAttr == nil {
		t.Fatalf("expected platform process attributes")
	}
}

func TestSpec_BuildCommandInterpreter(t *testing.T) {
	s := Spec{Path: "/repo/src/main.py", Interpreter: "python3 -u", Args: []string{"serve"}}
	cmd := s.BuildCommand()
	want := []string{"python3", "-u", "/repo/src/main.py", "serve"}
	if strings.Join(cmd.Args, "|") != strings.Join(want, "|") {
		t.Fatalf("args = %v, want %v", cmd.Args, want)
	}
}

func TestStart_MissingBinary(t *testing.T) {
	_, err := Start(Spec{Name: "missing", Path: filepath.Join(t.TempDir(), "nope")})
	if err == nil {
		t.Fatalf("expected launch error for missing binary")
	}
}

func TestHandle_OutputAndWait(t *testing.T) {
	requireUnix(t)
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	h, err := Start(Spec{Name: "echo", Path: sh, Args: []string{"-c", "echo out; echo err 1>&2"}})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if h.PID() <= 0 {
		t.Fatalf("expected pid, got %d", h.PID())
	}
	out, _ := io.ReadAll(h.Stdout())
	errb, _ := io.ReadAll(h.Stderr())
	if err := h.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if string(out) != "out\n" || string(errb) != "err\n" {
		t.Fatalf("unexpected output %q / %q", out, errb)
	}
	if h.ExitCode() != 0 {
		t.Fatalf("exit code = %d", h.ExitCode())
	}
	select {
	case <-h.Done():
	default:
		t.Fatalf("done channel not closed after Wait")
	}
	// killing a reaped process is not an error
	if err := h.Kill(); err != nil {
		t.Fatalf("kill after exit: %v", err)
	}
}

func TestHandle_KillLongRunning(t *testing.T) {
	requireUnix(t)
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	h, err := Start(Spec{Name: "sleeper", Path: sh, Args: []string{"-c", "sleep 30"}})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if h.ExitCode() != -1 {
		t.Fatalf("exit code before reap should be -1")
	}
	if err := h.Kill(); err != nil {
		t.Fatalf("kill: %v", err)
	}
	done := make(chan struct{})
	go func() {
		_, _ = io.ReadAll(h.Stdout())
		_, _ = io.ReadAll(h.Stderr())
		_ = h.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("process was not reaped after kill")
	}
}

func TestHandle_StdinStaysOpen(t *testing.T) {
	requireUnix(t)
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	// echoes one stdin line back, then exits on EOF
	h, err := Start(Spec{Name: "cat", Path: sh, Args: []string{"-c", "read l; echo got:$l; cat >/dev/null; echo eof"}})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := io.WriteString(h.Stdin(), "ping\n"); err != nil {
		t.Fatalf("write stdin: %v", err)
	}
	if err := h.CloseStdin(); err != nil {
		t.Fatalf("close stdin: %v", err)
	}
	out, _ := io.ReadAll(h.Stdout())
	_, _ = io.ReadAll(h.Stderr())
	_ = h.Wait()
	if string(out) != "got:ping\neof\n" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestHandle_WaitDoesNotNeedOutputEOF(t *testing.T) {
	requireUnix(t)
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	// the background sleep inherits stdout and outlives the shell
	h, err := Start(Spec{Name: "bg", Path: sh, Args: []string{"-c", "sleep 2 & echo up; exit 0"}})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatalf("exit not observed while a child holds stdout")
	}
	if err := h.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if h.ExitCode() != 0 {
		t.Fatalf("exit code = %d", h.ExitCode())
	}
	out, _ := io.ReadAll(h.Stdout())
	if string(out) != "up\n" {
		t.Fatalf("unexpected output %q", out)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
