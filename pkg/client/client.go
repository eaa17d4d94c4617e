// Package client talks to a running shell's local HTTP command surface.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DefaultBaseURL matches the server's default listen address and base path.
const DefaultBaseURL = "http://127.0.0.1:8010/api"

// Client provides HTTP client functionality to communicate with the shell.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // Optional logger for client operations
}

// APIError is returned for non-2xx replies that carry an error body.
type APIError struct {
	Status  int
	Kind    string
	Message string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("API error (%s): %s", e.Kind, e.Message)
	}
	return "API error: " + e.Message
}

// IsNotRunning reports whether err is the server's "not running" reply.
func IsNotRunning(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Kind == "not_running"
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: DefaultBaseURL,
		Timeout: 10 * time.Second,
	}
}

// New creates a new API client.
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// IsReachable checks if the shell is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		c.logger.Debug("Failed to create request for reachability check", "error", err)
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("Shell unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	reachable := resp.StatusCode == http.StatusOK
	c.logger.Debug("Shell reachability check", "reachable", reachable, "status", resp.StatusCode)
	return reachable
}

// StartSidecar asks the shell to spawn the worker.
func (c *Client) StartSidecar(ctx context.Context) error {
	c.logger.Debug("Starting sidecar")
	return c.do(ctx, http.MethodPost, "/sidecar/start", nil, nil)
}

// ShutdownSidecar asks the shell to kill the worker.
func (c *Client) ShutdownSidecar(ctx context.Context) error {
	c.logger.Debug("Shutting down sidecar")
	return c.do(ctx, http.MethodPost, "/sidecar/shutdown", nil, nil)
}

// SidecarPath returns the resolved worker path.
func (c *Client) SidecarPath(ctx context.Context) (string, error) {
	var out pathBody
	if err := c.do(ctx, http.MethodGet, "/sidecar/path", nil, &out); err != nil {
		return "", err
	}
	return out.Path, nil
}

// Status returns the supervisor state.
func (c *Client) Status(ctx context.Context) (SidecarStatus, error) {
	var out SidecarStatus
	err := c.do(ctx, http.MethodGet, "/sidecar/status", nil, &out)
	return out, err
}

// BackendURL returns the fixed worker address.
func (c *Client) BackendURL(ctx context.Context) (string, error) {
	var out urlBody
	if err := c.do(ctx, http.MethodGet, "/backend-url", nil, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

// SetSecret stores value in the OS keyring.
func (c *Client) SetSecret(ctx context.Context, value string) error {
	return c.do(ctx, http.MethodPut, "/secret", secretBody{Value: &value}, nil)
}

// GetSecret loads the stored secret. found is false when none is stored.
func (c *Client) GetSecret(ctx context.Context) (value string, found bool, err error) {
	var out secretBody
	if err := c.do(ctx, http.MethodGet, "/secret", nil, &out); err != nil {
		return "", false, err
	}
	if out.Value != nil {
		value = *out.Value
	}
	return value, out.Found, nil
}

// Window returns the current window geometry.
func (c *Client) Window(ctx context.Context) (WindowGeometry, error) {
	var out WindowGeometry
	err := c.do(ctx, http.MethodGet, "/window", nil, &out)
	return out, err
}

// SetWindow replaces the window geometry.
func (c *Client) SetWindow(ctx context.Context, g WindowGeometry) error {
	return c.do(ctx, http.MethodPut, "/window", g, nil)
}

// ToggleFullscreen flips fullscreen and returns the new value.
func (c *Client) ToggleFullscreen(ctx context.Context) (bool, error) {
	var out fullscreenBody
	if err := c.do(ctx, http.MethodPost, "/window/fullscreen", nil, &out); err != nil {
		return false, err
	}
	return out.Fullscreen, nil
}

// History returns up to limit recent lifecycle events, newest first.
// A non-positive limit uses the server default.
func (c *Client) History(ctx context.Context, limit int) ([]HistoryEvent, error) {
	path := "/history"
	if limit > 0 {
		path += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}
	var out []HistoryEvent
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// do performs an HTTP request with common error handling. in is encoded as
// JSON when non-nil; out is decoded from a 200 reply when non-nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("HTTP request failed", "error", err, "path", path)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := c.handleErrorResponse(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// handleErrorResponse handles HTTP error responses
func (c *Client) handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	var errorResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil || errorResp.Error == "" {
		c.logger.Error("Failed to decode error response", "status", resp.StatusCode)
		return &APIError{Status: resp.StatusCode, Message: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}

	c.logger.Error("API request failed", "error", errorResp.Error, "kind", errorResp.Kind, "status", resp.StatusCode)
	return &APIError{Status: resp.StatusCode, Kind: errorResp.Kind, Message: errorResp.Error}
}
