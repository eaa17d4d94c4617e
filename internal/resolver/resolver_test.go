package resolver

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{
		"":            ModePackaged,
		"packaged":    ModePackaged,
		"Production":  ModePackaged,
		"dev":         ModeDevelopment,
		"development": ModeDevelopment,
	}
	for in, want := range cases {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseMode("staging")
	assert.Error(t, err)
}

func TestBinaryName(t *testing.T) {
	assert.Equal(t, "chicken-core.exe", New("chicken-core", ModePackaged, WithGOOS("windows")).BinaryName())
	assert.Equal(t, "chicken-core", New("chicken-core", ModePackaged, WithGOOS("linux")).BinaryName())
	assert.Equal(t, "chicken-core", New("chicken-core", ModePackaged, WithGOOS("darwin")).BinaryName())
}

func TestResolve_DevelopmentExisting(t *testing.T) {
	root := t.TempDir()
	entry := filepath.Join("src", "main.py")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(root, entry), []byte("print('hi')\n"), 0o600))

	r := New("chicken-core", ModeDevelopment, WithDevEntry(root, entry))
	got, err := r.Resolve()
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(filepath.Join(root, entry))
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.True(t, filepath.IsAbs(got))
}

func TestResolve_DevelopmentCanonicalizesDotDot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "tauri"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "main.py"), nil, 0o600))

	r := New("chicken-core", ModeDevelopment, WithDevEntry(filepath.Join(root, "src", "tauri", ".."), "main.py"))
	got, err := r.Resolve()
	require.NoError(t, err)
	assert.NotContains(t, got, "..")
}

func TestResolve_DevelopmentMissing(t *testing.T) {
	r := New("chicken-core", ModeDevelopment, WithDevEntry(t.TempDir(), "src/nope.py"))
	_, err := r.Resolve()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestResolve_PackagedPrefersResourceDir(t *testing.T) {
	res := t.TempDir()
	bin := filepath.Join(res, "chicken-core")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o700))

	r := New("chicken-core", ModePackaged,
		WithGOOS("linux"),
		WithStaticResourceDir(res),
		WithExecutable(func() (string, error) { return "/opt/chicken/chicken", nil }),
	)
	got, err := r.Resolve()
	require.NoError(t, err)
	assert.Equal(t, bin, got)
}

func TestResolve_PackagedFallsBackToExecutableDir(t *testing.T) {
	r := New("chicken-core", ModePackaged,
		WithGOOS("windows"),
		WithStaticResourceDir(t.TempDir()), // empty: probe misses
		WithExecutable(func() (string, error) { return filepath.Join("opt", "chicken", "chicken.exe"), nil }),
	)
	got, err := r.Resolve()
	require.NoError(t, err)
	// fallback is returned without an existence check
	assert.Equal(t, filepath.Join("opt", "chicken", "chicken-core.exe"), got)
}

func TestResolve_PackagedResourceLookupError(t *testing.T) {
	r := New("chicken-core", ModePackaged,
		WithGOOS("linux"),
		WithResourceDir(func() (string, error) { return "", errors.New("no resources") }),
		WithExecutable(func() (string, error) { return "/usr/bin/chicken", nil }),
	)
	got, err := r.Resolve()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/usr/bin", "chicken-core"), got)
}

func TestResolve_PackagedNoExecutable(t *testing.T) {
	r := New("chicken-core", ModePackaged,
		WithExecutable(func() (string, error) { return "", errors.New("boom") }),
	)
	_, err := r.Resolve()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoExecutableDir))
}
