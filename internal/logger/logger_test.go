package logger

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// helper to close non-nil closers and ignore errors
func closeIf(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}

func TestProcessWriters_WithDirOnly(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	cfg := Config{File: FileConfig{Dir: dir}}
	outW, errW, err := cfg.ProcessWriters("chicken-core")
	if err != nil {
		t.Fatalf("ProcessWriters error: %v", err)
	}
	if outW == nil || errW == nil {
		t.Fatalf("expected both writers non-nil when Dir is set")
	}
	_, _ = outW.Write([]byte("server ready\n"))
	_, _ = errW.Write([]byte("warning\n"))
	closeIf(outW)
	closeIf(errW)
	for _, p := range []string{"chicken-core.stdout.log", "chicken-core.stderr.log"} {
		if _, err := os.Stat(filepath.Join(dir, p)); err != nil {
			t.Fatalf("log not created at %s: %v", p, err)
		}
	}
}

func TestProcessWriters_ExplicitPathsWin(t *testing.T) {
	dir := t.TempDir()
	sp := filepath.Join(dir, "out.log")
	cfg := Config{File: FileConfig{Dir: dir, StdoutPath: sp}}
	outW, errW, _ := cfg.ProcessWriters("core")
	ol, ok := outW.(*lj.Logger)
	if !ok || ol.Filename != sp {
		t.Fatalf("explicit stdout path not used: %#v", outW)
	}
	el, ok := errW.(*lj.Logger)
	if !ok || el.Filename != filepath.Join(dir, "core.stderr.log") {
		t.Fatalf("stderr should derive from Dir: %#v", errW)
	}
}

func TestProcessWriters_DefaultsAndOverrides(t *testing.T) {
	cfg := Config{}
	outW, errW, _ := cfg.ProcessWriters("n")
	if outW != nil || errW != nil {
		t.Fatalf("expected nil writers when nothing is configured")
	}

	cfg = Config{File: FileConfig{StdoutPath: "x", StderrPath: "y"}}
	outW, _, _ = cfg.ProcessWriters("n")
	ol := outW.(*lj.Logger)
	if ol.MaxSize != DefaultMaxSizeMB || ol.MaxBackups != DefaultMaxBackups || ol.MaxAge != DefaultMaxAgeDays {
		t.Fatalf("unexpected defaults: size=%d backups=%d age=%d", ol.MaxSize, ol.MaxBackups, ol.MaxAge)
	}

	cfg = Config{File: FileConfig{StdoutPath: "x2", MaxSizeMB: 1, MaxBackups: 9, MaxAgeDays: 11, Compress: true}}
	outW, errW, _ = cfg.ProcessWriters("n")
	ol = outW.(*lj.Logger)
	if ol.MaxSize != 1 || ol.MaxBackups != 9 || ol.MaxAge != 11 || !ol.Compress {
		t.Fatalf("unexpected overrides: %+v", ol)
	}
	if errW != nil {
		t.Fatalf("expected stdout writer only")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewSlogger_FormatsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	lg, lv := Config{Slog: SlogConfig{Level: "warn", Format: FormatJSON, Output: &buf}}.NewSlogger()
	lg.Info("hidden")
	lg.Warn("shown", "pid", 42)
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"pid":42`) {
		t.Fatalf("unexpected json output: %s", out)
	}
	if strings.Contains(out, `"time"`) {
		t.Fatalf("time should be dropped when TimeStamps is false: %s", out)
	}

	buf.Reset()
	lv.Set(slog.LevelDebug)
	lg.Debug("now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Fatalf("level var did not apply")
	}
}

func TestNewSlogger_Color(t *testing.T) {
	var buf bytes.Buffer
	lg, _ := Config{Slog: SlogConfig{Color: true, Output: &buf}}.NewSlogger()
	lg.With("component", "supervisor").Error("boom")
	out := buf.String()
	if !strings.Contains(out, "ERROR") || !strings.Contains(out, "boom") || !strings.Contains(out, "component=supervisor") {
		t.Fatalf("unexpected color output: %q", out)
	}
}
