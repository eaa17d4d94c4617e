// Package config loads the shell's TOML configuration through viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/loykin/chickenshell/internal/logger"
	"github.com/loykin/chickenshell/internal/resolver"
)

// EnvPrefix is the prefix for environment overrides, e.g. CHICKEN_SIDECAR_MODE.
const EnvPrefix = "CHICKEN"

// DefaultBackendURL is the fixed address the sidecar listens on.
const DefaultBackendURL = "http://localhost:8009"

// Config is the top-level configuration.
type Config struct {
	BackendURL   string        `mapstructure:"backend_url"`
	EventsBuffer int           `mapstructure:"events_buffer"`
	Env          []string      `mapstructure:"env"`
	EnvFiles     []string      `mapstructure:"env_files"`
	UseOSEnv     bool          `mapstructure:"use_os_env"`
	Sidecar      SidecarConfig `mapstructure:"sidecar"`
	Server       ServerConfig  `mapstructure:"server"`
	Log          logger.Config `mapstructure:"log"`
	History      HistoryConfig `mapstructure:"history"`
	Metrics      MetricsConfig `mapstructure:"metrics"`
	Tracing      TracingConfig `mapstructure:"tracing"`
	Secret       SecretConfig  `mapstructure:"secret"`
	Window       WindowConfig  `mapstructure:"window"`
}

// SidecarConfig describes the worker process.
type SidecarConfig struct {
	Name        string        `mapstructure:"name"`
	Mode        string        `mapstructure:"mode"` // packaged | development
	// DevRoot is the checkout holding DevEntry. A relative value is taken
	// from the config file's directory, or from the working directory at
	// load time when there is no file. Load always returns it absolute.
	DevRoot     string        `mapstructure:"dev_root"`
	DevEntry    string        `mapstructure:"dev_entry"`
	Interpreter string        `mapstructure:"interpreter"`
	ResourceDir string        `mapstructure:"resource_dir"`
	WorkDir     string        `mapstructure:"workdir"`
	Args        []string      `mapstructure:"args"`
	Autostart   bool          `mapstructure:"autostart"`
	ExitWait    time.Duration `mapstructure:"exit_wait"`
}

// ServerConfig is the local HTTP command surface used by the UI layer.
type ServerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Listen   string `mapstructure:"listen"`
	BasePath string `mapstructure:"base_path"`
}

// HistoryConfig selects the lifecycle history sink by DSN.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

// MetricsConfig controls Prometheus collectors and the process sampler.
type MetricsConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	SampleInterval time.Duration `mapstructure:"sample_interval"`
}

// TracingConfig controls the OpenTelemetry stdout exporter.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Output      string `mapstructure:"output"` // stdout | stderr | file path
	ServiceName string `mapstructure:"service_name"`
}

// SecretConfig names the keyring service.
type SecretConfig struct {
	Service string `mapstructure:"service"`
}

// WindowConfig locates the persisted window geometry.
type WindowConfig struct {
	StateFile string `mapstructure:"state_file"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend_url", DefaultBackendURL)
	v.SetDefault("events_buffer", 256)
	v.SetDefault("env", []string{})
	v.SetDefault("env_files", []string{})
	v.SetDefault("use_os_env", true)

	v.SetDefault("sidecar.name", "chicken-core")
	v.SetDefault("sidecar.mode", "packaged")
	v.SetDefault("sidecar.dev_root", ".")
	v.SetDefault("sidecar.dev_entry", filepath.Join("src", "main.py"))
	v.SetDefault("sidecar.interpreter", "")
	v.SetDefault("sidecar.resource_dir", "")
	v.SetDefault("sidecar.workdir", "")
	v.SetDefault("sidecar.args", []string{})
	v.SetDefault("sidecar.autostart", true)
	v.SetDefault("sidecar.exit_wait", 2*time.Second)

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.listen", "127.0.0.1:8010")
	v.SetDefault("server.base_path", "/api")

	v.SetDefault("log.slog.level", logger.LevelInfo)
	v.SetDefault("log.slog.format", logger.FormatText)
	v.SetDefault("log.slog.color", false)
	v.SetDefault("log.slog.timestamps", true)
	v.SetDefault("log.slog.source", false)
	v.SetDefault("log.file.dir", "")
	v.SetDefault("log.file.stdout", "")
	v.SetDefault("log.file.stderr", "")
	v.SetDefault("log.file.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.file.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.file.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.file.compress", false)

	v.SetDefault("history.enabled", false)
	v.SetDefault("history.dsn", "")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.sample_interval", 5*time.Second)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.output", "stderr")
	v.SetDefault("tracing.service_name", "chicken")

	v.SetDefault("secret.service", "chiken")
	v.SetDefault("window.state_file", "")
}

// Loader owns a viper instance bound to one (optional) config file.
type Loader struct {
	v    *viper.Viper
	path string
	mu   sync.Mutex
}

// NewLoader prepares a loader. An empty path means defaults plus environment.
func NewLoader(path string) *Loader {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
	}
	return &Loader{v: v, path: path}
}

// Load reads the file (if any), decodes and validates it.
func (l *Loader) Load() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.path != "" {
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", l.path, err)
		}
	}
	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	var c Config
	if err := l.v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	envs, err := c.globalEnv()
	if err != nil {
		return nil, err
	}
	c.Env = envs
	if c.Sidecar.DevRoot, err = l.absDir(c.Sidecar.DevRoot); err != nil {
		return nil, fmt.Errorf("sidecar.dev_root: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// absDir anchors a relative dir at the config file's directory.
func (l *Loader) absDir(dir string) (string, error) {
	if dir == "" || filepath.IsAbs(dir) {
		return dir, nil
	}
	if l.path != "" {
		dir = filepath.Join(filepath.Dir(l.path), dir)
	}
	return filepath.Abs(dir)
}

// Watch re-decodes the config whenever the file changes and hands the
// result to fn. It is a no-op without a config file.
func (l *Loader) Watch(fn func(*Config, error)) {
	if l.path == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		l.mu.Lock()
		c, err := l.decode()
		l.mu.Unlock()
		fn(c, err)
	})
	l.v.WatchConfig()
}

// Load is a convenience wrapper around NewLoader(path).Load().
func Load(path string) (*Config, error) {
	return NewLoader(path).Load()
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	var errs []error
	if !isSafeName(c.Sidecar.Name) {
		errs = append(errs, fmt.Errorf("sidecar.name %q: allowed [A-Za-z0-9._-]", c.Sidecar.Name))
	}
	if _, err := resolver.ParseMode(c.Sidecar.Mode); err != nil {
		errs = append(errs, fmt.Errorf("sidecar.mode: %w", err))
	}
	if c.Sidecar.ExitWait < 0 {
		errs = append(errs, errors.New("sidecar.exit_wait must not be negative"))
	}
	if c.Server.Enabled && strings.TrimSpace(c.Server.Listen) == "" {
		errs = append(errs, errors.New("server.listen required when server is enabled"))
	}
	if c.EventsBuffer <= 0 {
		errs = append(errs, errors.New("events_buffer must be positive"))
	}
	if c.History.Enabled && strings.TrimSpace(c.History.DSN) == "" {
		errs = append(errs, errors.New("history.dsn required when history is enabled"))
	}
	if c.Metrics.Enabled && c.Metrics.SampleInterval < 0 {
		errs = append(errs, errors.New("metrics.sample_interval must not be negative"))
	}
	if strings.TrimSpace(c.Secret.Service) == "" {
		errs = append(errs, errors.New("secret.service required"))
	}
	return errors.Join(errs...)
}

// RunMode returns the parsed sidecar mode.
func (c *Config) RunMode() resolver.Mode {
	m, _ := resolver.ParseMode(c.Sidecar.Mode)
	return m
}

// Resolver builds the sidecar path resolver for the configured mode.
func (c *Config) Resolver() *resolver.Resolver {
	opts := []resolver.Option{resolver.WithDevEntry(c.Sidecar.DevRoot, c.Sidecar.DevEntry)}
	if c.Sidecar.ResourceDir != "" {
		opts = append(opts, resolver.WithStaticResourceDir(c.Sidecar.ResourceDir))
	}
	return resolver.New(c.Sidecar.Name, c.RunMode(), opts...)
}

// WindowStateFile returns the configured state file or the per-user default.
func (c *Config) WindowStateFile() string {
	if c.Window.StateFile != "" {
		return c.Window.StateFile
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "chicken", "window-state.json")
}

// globalEnv merges env_files contents and the top-level env list.
// Precedence: env files in order, then the env list overrides last.
// The OS environment is applied later by the env package when use_os_env is set.
func (c *Config) globalEnv() ([]string, error) {
	m := make(map[string]string)
	for _, p := range c.EnvFiles {
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, fmt.Errorf("env file %s: %w", p, err)
		}
		for k, v := range pairs {
			m[k] = v
		}
	}
	for _, kv := range c.Env {
		if i := strings.IndexByte(kv, '='); i > 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(m))
	for _, k := range keys {
		out = append(out, k+"="+m[k])
	}
	return out, nil
}

// LoadEnvFile parses a simple .env file and returns a slice of "KEY=VALUE" entries.
func LoadEnvFile(path string) ([]string, error) {
	m, err := loadEnvFile(path)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out, nil
}

// loadEnvFile parses KEY=VALUE lines (no export, no quotes). Lines starting with # are ignored.
func loadEnvFile(path string) (map[string]string, error) {
	clean := filepath.Clean(path)
	b, err := os.ReadFile(clean)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i > 0 {
			k := strings.TrimSpace(line[:i])
			v := strings.TrimSpace(line[i+1:])
			m[k] = v
		}
	}
	return m, nil
}

// isSafeName allows A-Z a-z 0-9 . _ - and rejects "..".
func isSafeName(s string) bool {
	if s == "" || strings.Contains(s, "..") {
		return false
	}
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-' {
			continue
		}
		return false
	}
	return true
}
