package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/loykin/chickenshell/internal/events"
	"github.com/loykin/chickenshell/internal/supervisor"
)

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	bp = strings.TrimRight(bp, "/")
	return bp
}

// parseTopics reads a comma separated topic list. Empty means both sidecar streams.
func parseTopics(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return []string{events.TopicStdout, events.TopicStderr}, nil
	}
	var out []string
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		switch t {
		case "":
			continue
		case events.TopicStdout, events.TopicStderr:
			out = append(out, t)
		default:
			return nil, errors.New("unknown topic " + strconv.Quote(t))
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no topics")
	}
	return out, nil
}

// parseLimit parses a positive integer no larger than max; empty gives def.
func parseLimit(raw string, def, max int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	if n > max {
		n = max
	}
	return n, nil
}

// errorKind maps supervisor errors to the stable kind strings the UI switches on.
func errorKind(err error) (int, string) {
	switch {
	case errors.Is(err, supervisor.ErrNotRunning):
		return http.StatusConflict, "not_running"
	case errors.Is(err, supervisor.ErrResolutionFailed):
		return http.StatusInternalServerError, "resolution_failed"
	case errors.Is(err, supervisor.ErrLaunchFailed):
		return http.StatusInternalServerError, "launch_failed"
	case errors.Is(err, supervisor.ErrKillFailed):
		return http.StatusInternalServerError, "kill_failed"
	case errors.Is(err, supervisor.ErrExitTimeout):
		return http.StatusGatewayTimeout, "exit_timeout"
	case errors.Is(err, supervisor.ErrClosed):
		return http.StatusServiceUnavailable, "closed"
	}
	return http.StatusInternalServerError, "internal"
}

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}
