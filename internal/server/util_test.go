package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/loykin/chickenshell/internal/events"
	"github.com/loykin/chickenshell/internal/supervisor"
)

func TestSanitizeBase(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/", ""},
		{"api", "/api"},
		{"/api", "/api"},
		{"/api/", "/api"},
		{" api ", "/api"},
	}
	for _, c := range cases {
		if got := sanitizeBase(c.in); got != c.want {
			t.Fatalf("sanitizeBase(%q)=%q want %q", c.in, got, c.want)
		}
	}
}

func TestParseTopics(t *testing.T) {
	got, err := parseTopics("")
	if err != nil || len(got) != 2 {
		t.Fatalf("default topics: %v %v", got, err)
	}
	got, err = parseTopics(" sidecar-stderr , ")
	if err != nil || len(got) != 1 || got[0] != events.TopicStderr {
		t.Fatalf("single topic: %v %v", got, err)
	}
	if _, err := parseTopics("sidecar-stdin"); err == nil {
		t.Fatalf("unknown topic accepted")
	}
	if _, err := parseTopics(",,"); err == nil {
		t.Fatalf("empty list accepted")
	}
}

func TestParseLimit(t *testing.T) {
	if n, err := parseLimit("", 50, 500); err != nil || n != 50 {
		t.Fatalf("default: %d %v", n, err)
	}
	if n, err := parseLimit("9999", 50, 500); err != nil || n != 500 {
		t.Fatalf("clamp: %d %v", n, err)
	}
	for _, bad := range []string{"0", "-1", "x"} {
		if _, err := parseLimit(bad, 50, 500); err == nil {
			t.Fatalf("accepted %q", bad)
		}
	}
}

func TestErrorKind(t *testing.T) {
	cases := []struct {
		err  error
		code int
		kind string
	}{
		{supervisor.ErrNotRunning, http.StatusConflict, "not_running"},
		{fmt.Errorf("%w: %w", supervisor.ErrLaunchFailed, fmt.Errorf("exec")), http.StatusInternalServerError, "launch_failed"},
		{supervisor.ErrResolutionFailed, http.StatusInternalServerError, "resolution_failed"},
		{supervisor.ErrKillFailed, http.StatusInternalServerError, "kill_failed"},
		{supervisor.ErrExitTimeout, http.StatusGatewayTimeout, "exit_timeout"},
		{supervisor.ErrClosed, http.StatusServiceUnavailable, "closed"},
		{fmt.Errorf("other"), http.StatusInternalServerError, "internal"},
	}
	for _, c := range cases {
		code, kind := errorKind(c.err)
		if code != c.code || kind != c.kind {
			t.Fatalf("errorKind(%v) = %d %s", c.err, code, kind)
		}
	}
}

func TestWriteJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", func(c *gin.Context) { writeJSON(c, 201, map[string]any{"a": 1}) })
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/x", nil))
	if rec.Code != 201 {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type: %s", ct)
	}
}
