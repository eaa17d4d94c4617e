// Package windowstate persists the main window geometry between runs.
package windowstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"
)

// FileMode is the mode the state file is written with.
const FileMode = 0o600

// Geometry is the persisted window state.
type Geometry struct {
	X          int  `json:"x"`
	Y          int  `json:"y"`
	Width      int  `json:"width"`
	Height     int  `json:"height"`
	Maximized  bool `json:"maximized"`
	Fullscreen bool `json:"fullscreen"`
	Visible    bool `json:"visible"`
	Decorated  bool `json:"decorated"`
}

// Default is used when nothing was saved yet.
var Default = Geometry{Width: 1280, Height: 800, Visible: true, Decorated: true}

// Validate rejects geometry no window can have.
func (g Geometry) Validate() error {
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("invalid window size %dx%d", g.Width, g.Height)
	}
	return nil
}

// Load reads the state file. A missing file is not an error: found is false.
func Load(path string) (g Geometry, found bool, err error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if errors.Is(err, fs.ErrNotExist) {
		return Default, false, nil
	}
	if err != nil {
		return Default, false, err
	}
	if err := json.Unmarshal(b, &g); err != nil {
		return Default, false, fmt.Errorf("parse %s: %w", path, err)
	}
	return g, true, nil
}

// Save writes g atomically, creating parent directories as needed.
func Save(path string, g Geometry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	b, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return err
	}
	return renameio.WriteFile(path, append(b, '\n'), FileMode)
}

// Tracker keeps the latest geometry reported by the UI and writes it on Save.
type Tracker struct {
	path string

	mu    sync.Mutex
	cur   Geometry
	dirty bool
}

// NewTracker loads the saved state (or Default) for path.
func NewTracker(path string) (*Tracker, error) {
	g, _, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Tracker{path: path, cur: g}, nil
}

// NewTrackerFrom starts a tracker at g without reading path.
func NewTrackerFrom(path string, g Geometry) *Tracker {
	return &Tracker{path: path, cur: g}
}

// Path returns the state file location.
func (t *Tracker) Path() string { return t.path }

// Current returns the last known geometry.
func (t *Tracker) Current() Geometry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cur
}

// Update records a new geometry reported by the UI.
func (t *Tracker) Update(g Geometry) error {
	if err := g.Validate(); err != nil {
		return err
	}
	t.mu.Lock()
	t.cur = g
	t.dirty = true
	t.mu.Unlock()
	return nil
}

// ToggleFullscreen flips the fullscreen flag and returns the new value.
func (t *Tracker) ToggleFullscreen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cur.Fullscreen = !t.cur.Fullscreen
	t.dirty = true
	return t.cur.Fullscreen
}

// Save writes the current geometry if it changed since the last save.
func (t *Tracker) Save() error {
	t.mu.Lock()
	g, dirty := t.cur, t.dirty
	t.mu.Unlock()
	if !dirty {
		return nil
	}
	if err := Save(t.path, g); err != nil {
		return err
	}
	t.mu.Lock()
	if t.cur == g {
		t.dirty = false
	}
	t.mu.Unlock()
	return nil
}
