package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/loykin/chickenshell"
	"github.com/loykin/chickenshell/internal/config"
	"github.com/loykin/chickenshell/internal/secret"
	"github.com/loykin/chickenshell/pkg/client"
)

type command struct {
	global *GlobalFlags
}

func (c *command) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.global.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	return cfg, nil
}

// Run starts the shell and blocks until SIGINT/SIGTERM.
func (c *command) Run(ctx context.Context) error {
	loader := config.NewLoader(c.global.ConfigPath)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	sh, err := chickenshell.New(cfg)
	if err != nil {
		return err
	}
	loader.Watch(func(next *config.Config, err error) {
		if err != nil {
			slog.Warn("config reload failed", "error", err)
			return
		}
		sh.SetLogLevel(next.Log.Slog.Level)
		slog.Info("config reloaded", "log_level", next.Log.Slog.Level)
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return sh.Run(ctx)
}

// Path prints where the sidecar resolves under the current config.
func (c *command) Path(w io.Writer) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	p, err := cfg.Resolver().Resolve()
	if err != nil {
		return fmt.Errorf("%w: %w", chickenshell.ErrResolutionFailed, err)
	}
	_, err = fmt.Fprintln(w, p)
	return err
}

func (c *command) BackendURL(w io.Writer) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, cfg.BackendURL)
	return err
}

// apiClient connects to the shell named by flags, falling back to the
// configured listen address.
func (c *command) apiClient(ctx context.Context, f APIFlags) (*client.Client, error) {
	url := f.APIUrl
	if url == "" {
		cfg, err := c.loadConfig()
		if err != nil {
			return nil, err
		}
		url = apiURL(cfg)
	}
	cl := client.New(client.Config{BaseURL: url, Timeout: f.APITimeout})
	if !cl.IsReachable(ctx) {
		return nil, fmt.Errorf("shell not reachable at %s - start it first with 'chicken run'", url)
	}
	return cl, nil
}

func apiURL(cfg *config.Config) string {
	listen := cfg.Server.Listen
	if strings.HasPrefix(listen, ":") {
		listen = "127.0.0.1" + listen
	}
	return "http://" + listen + cfg.Server.BasePath
}

func (c *command) SidecarStart(ctx context.Context, w io.Writer, f APIFlags) error {
	cl, err := c.apiClient(ctx, f)
	if err != nil {
		return err
	}
	if err := cl.StartSidecar(ctx); err != nil {
		return err
	}
	return c.printStatus(ctx, w, cl)
}

// SidecarShutdown kills the sidecar. A sidecar that is not running is reported, not failed.
func (c *command) SidecarShutdown(ctx context.Context, w io.Writer, f APIFlags) error {
	cl, err := c.apiClient(ctx, f)
	if err != nil {
		return err
	}
	if err := cl.ShutdownSidecar(ctx); err != nil {
		if !client.IsNotRunning(err) {
			return err
		}
		_, _ = fmt.Fprintln(w, "sidecar not running")
	}
	return c.printStatus(ctx, w, cl)
}

func (c *command) SidecarStatus(ctx context.Context, w io.Writer, f APIFlags) error {
	cl, err := c.apiClient(ctx, f)
	if err != nil {
		return err
	}
	return c.printStatus(ctx, w, cl)
}

func (c *command) printStatus(ctx context.Context, w io.Writer, cl *client.Client) error {
	st, err := cl.Status(ctx)
	if err != nil {
		return err
	}
	printJSON(w, st)
	return nil
}

func (c *command) secrets() (*secret.Store, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	return secret.New(cfg.Secret.Service)
}

func (c *command) SecretSet(value string) error {
	s, err := c.secrets()
	if err != nil {
		return err
	}
	return s.StoreSecret(value)
}

func (c *command) SecretGet(w io.Writer) error {
	s, err := c.secrets()
	if err != nil {
		return err
	}
	v, found, err := s.LoadSecret()
	if err != nil {
		return err
	}
	if !found {
		return errors.New("no secret stored")
	}
	_, err = fmt.Fprintln(w, v)
	return err
}

func (c *command) SecretDelete() error {
	s, err := c.secrets()
	if err != nil {
		return err
	}
	return s.DeleteSecret()
}

func (c *command) Window(ctx context.Context, w io.Writer, f APIFlags) error {
	cl, err := c.apiClient(ctx, f)
	if err != nil {
		return err
	}
	g, err := cl.Window(ctx)
	if err != nil {
		return err
	}
	printJSON(w, g)
	return nil
}

func (c *command) ToggleFullscreen(ctx context.Context, w io.Writer, f APIFlags) error {
	cl, err := c.apiClient(ctx, f)
	if err != nil {
		return err
	}
	on, err := cl.ToggleFullscreen(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "fullscreen: %t\n", on)
	return err
}

func (c *command) History(ctx context.Context, w io.Writer, f HistoryFlags) error {
	cl, err := c.apiClient(ctx, f.APIFlags)
	if err != nil {
		return err
	}
	evs, err := cl.History(ctx, f.Limit)
	if err != nil {
		return err
	}
	printJSON(w, evs)
	return nil
}
