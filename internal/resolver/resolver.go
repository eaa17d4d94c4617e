// Package resolver locates the sidecar executable for the current run mode.
package resolver

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// ErrNotFound is returned when the development entry point does not exist.
var ErrNotFound = errors.New("sidecar executable not found")

// ErrNoExecutableDir is returned when the host executable's directory is unknown.
var ErrNoExecutableDir = errors.New("cannot determine host executable directory")

// Mode selects the resolution strategy.
type Mode int

const (
	// ModePackaged looks in the resource directory, then next to the host executable.
	ModePackaged Mode = iota
	// ModeDevelopment points at the sidecar's source entry inside the repository.
	ModeDevelopment
)

func (m Mode) String() string {
	switch m {
	case ModeDevelopment:
		return "development"
	case ModePackaged:
		return "packaged"
	default:
		return "unknown"
	}
}

// ParseMode accepts "development"/"dev" and "packaged"/"production"/"prod".
// An empty string means packaged.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "packaged", "production", "prod", "release":
		return ModePackaged, nil
	case "development", "dev", "debug":
		return ModeDevelopment, nil
	default:
		return ModePackaged, fmt.Errorf("unknown run mode %q", s)
	}
}

// Option configures a Resolver.
type Option func(*Resolver)

// Resolver computes the sidecar path. It keeps no state between calls.
type Resolver struct {
	name     string
	mode     Mode
	goos     string
	devRoot  string
	devEntry string

	resourceDir func() (string, error)
	executable  func() (string, error)
	stat        func(string) (os.FileInfo, error)
	evalLinks   func(string) (string, error)
}

// New creates a resolver for the binary called name.
func New(name string, mode Mode, opts ...Option) *Resolver {
	r := &Resolver{
		name:       name,
		mode:       mode,
		goos:       runtime.GOOS,
		devRoot:    ".",
		devEntry:   filepath.Join("src", "main.py"),
		executable: os.Executable,
		stat:       os.Stat,
		evalLinks:  filepath.EvalSymlinks,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// WithDevEntry sets the source tree root and the entry file relative to it.
func WithDevEntry(root, entry string) Option {
	return func(r *Resolver) {
		if root != "" {
			r.devRoot = root
		}
		if entry != "" {
			r.devEntry = entry
		}
	}
}

// WithResourceDir supplies the platform resource directory lookup.
func WithResourceDir(fn func() (string, error)) Option {
	return func(r *Resolver) { r.resourceDir = fn }
}

// WithStaticResourceDir is WithResourceDir for a fixed directory; empty disables the probe.
func WithStaticResourceDir(dir string) Option {
	return func(r *Resolver) {
		if dir == "" {
			r.resourceDir = nil
			return
		}
		r.resourceDir = func() (string, error) { return dir, nil }
	}
}

// WithExecutable overrides os.Executable.
func WithExecutable(fn func() (string, error)) Option {
	return func(r *Resolver) { r.executable = fn }
}

// WithGOOS overrides the target OS used for binary naming.
func WithGOOS(goos string) Option {
	return func(r *Resolver) { r.goos = goos }
}

// WithStat overrides os.Stat for the resource probe.
func WithStat(fn func(string) (os.FileInfo, error)) Option {
	return func(r *Resolver) { r.stat = fn }
}

// Mode returns the configured mode.
func (r *Resolver) Mode() Mode { return r.mode }

// BinaryName returns the per-OS file name of the sidecar.
func (r *Resolver) BinaryName() string {
	if r.goos == "windows" {
		return r.name + ".exe"
	}
	return r.name
}

// Resolve returns the sidecar path for the configured mode.
func (r *Resolver) Resolve() (string, error) {
	if r.mode == ModeDevelopment {
		return r.resolveDev()
	}
	return r.resolvePackaged()
}

func (r *Resolver) resolveDev() (string, error) {
	p := filepath.Join(r.devRoot, r.devEntry)
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrNotFound, p, err)
	}
	canon, err := r.evalLinks(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrNotFound, abs, err)
	}
	slog.Debug("Using development sidecar path", "path", canon)
	return canon, nil
}

func (r *Resolver) resolvePackaged() (string, error) {
	bin := r.BinaryName()
	if r.resourceDir != nil {
		if dir, err := r.resourceDir(); err == nil && dir != "" {
			p := filepath.Join(dir, bin)
			if _, err := r.stat(p); err == nil {
				slog.Debug("Using resource sidecar path", "path", p)
				return p, nil
			}
		}
	}
	exe, err := r.executable()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoExecutableDir, err)
	}
	dir := filepath.Dir(exe)
	if dir == "" {
		return "", ErrNoExecutableDir
	}
	p := filepath.Join(dir, bin)
	slog.Debug("Using fallback sidecar path", "path", p)
	return p, nil
}
