// Package lifecycle ties the sidecar to application startup and exit.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/loykin/chickenshell/internal/supervisor"
)

// Sidecar is the part of the supervisor the hooks drive.
type Sidecar interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// StateSaver persists host state (window geometry) on exit.
type StateSaver interface {
	Save() error
}

// Hooks runs the startup and exit-requested actions.
type Hooks struct {
	sidecar   Sidecar
	state     StateSaver
	autostart bool
	log       *slog.Logger
}

// New creates hooks. state may be nil.
func New(sidecar Sidecar, state StateSaver, autostart bool, log *slog.Logger) *Hooks {
	if log == nil {
		log = slog.Default()
	}
	return &Hooks{sidecar: sidecar, state: state, autostart: autostart, log: log.With("component", "lifecycle")}
}

// OnStartup spawns the sidecar. A failure is logged and never aborts startup;
// the UI can retry through the start command.
func (h *Hooks) OnStartup(ctx context.Context) {
	if !h.autostart {
		h.log.Info("sidecar autostart disabled")
		return
	}
	h.log.Info("creating sidecar")
	if err := h.sidecar.Start(ctx); err != nil {
		h.log.Error("sidecar failed to start at startup", "error", err)
		return
	}
	h.log.Info("sidecar spawned")
}

// OnExitRequested saves host state, then kills the sidecar and waits briefly
// for it to go away. Having no sidecar to stop is not an error.
func (h *Hooks) OnExitRequested(ctx context.Context) error {
	h.log.Info("exit requested; shutting down sidecar")
	var errs []error
	if h.state != nil {
		if err := h.state.Save(); err != nil {
			h.log.Error("failed to save window state", "error", err)
			errs = append(errs, fmt.Errorf("save window state: %w", err))
		}
	}
	switch err := h.sidecar.Stop(ctx); {
	case err == nil:
		h.log.Info("sidecar terminated on exit")
	case errors.Is(err, supervisor.ErrNotRunning):
		h.log.Info("no active sidecar to terminate")
	default:
		h.log.Error("failed to terminate sidecar on exit", "error", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
