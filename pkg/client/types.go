package client

import "time"

// SidecarStatus is the reply of GET /sidecar/status.
type SidecarStatus struct {
	Running   bool      `json:"running"`
	Starting  bool      `json:"starting,omitempty"`
	Name      string    `json:"name"`
	PID       int       `json:"pid,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
	Path      string    `json:"path,omitempty"`
	StartedAt time.Time `json:"started_at,omitzero"`
	Sample    *Sample   `json:"sample,omitempty"`
}

// Sample is the last resource sample of the running worker.
type Sample struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
	MemoryRSS  uint64    `json:"memory_rss"`
	MemoryVMS  uint64    `json:"memory_vms"`
	NumThreads int32     `json:"num_threads"`
	NumFDs     int32     `json:"num_fds,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// WindowGeometry mirrors the persisted window state.
type WindowGeometry struct {
	X          int  `json:"x"`
	Y          int  `json:"y"`
	Width      int  `json:"width"`
	Height     int  `json:"height"`
	Maximized  bool `json:"maximized"`
	Fullscreen bool `json:"fullscreen"`
	Visible    bool `json:"visible"`
	Decorated  bool `json:"decorated"`
}

// HistoryRecord describes one worker run.
type HistoryRecord struct {
	RunID     string    `json:"run_id"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitzero"`
	ExitCode  int       `json:"exit_code"`
	Error     string    `json:"error,omitempty"`
}

// HistoryEvent is one lifecycle transition.
type HistoryEvent struct {
	Type       string        `json:"type"`
	OccurredAt time.Time     `json:"occurred_at"`
	Record     HistoryRecord `json:"record"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type secretBody struct {
	Value *string `json:"value,omitempty"`
	Found bool    `json:"found,omitempty"`
}

type pathBody struct {
	Path string `json:"path"`
}

type urlBody struct {
	URL string `json:"url"`
}

type fullscreenBody struct {
	Fullscreen bool `json:"fullscreen"`
}
