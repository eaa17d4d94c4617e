package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/chickenshell/internal/events"
	"github.com/loykin/chickenshell/internal/history"
	"github.com/loykin/chickenshell/internal/metrics"
	"github.com/loykin/chickenshell/internal/supervisor"
	"github.com/loykin/chickenshell/internal/windowstate"
)

// Sidecar is the supervisor surface exposed over HTTP.
type Sidecar interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
	Path() (string, error)
	Status() supervisor.Status
}

// SecretStore is the keyring surface.
type SecretStore interface {
	StoreSecret(value string) error
	LoadSecret() (value string, found bool, err error)
}

// WindowState is the window geometry surface.
type WindowState interface {
	Current() windowstate.Geometry
	Update(g windowstate.Geometry) error
	ToggleFullscreen() bool
}

// Deps wires the router to the shell. Only Sidecar is required.
type Deps struct {
	Sidecar    Sidecar
	Bus        *events.Bus
	Secrets    SecretStore
	Window     WindowState
	BackendURL string
	Gatherer   prometheus.Gatherer
	Sampler    *metrics.Sampler
	History    history.Querier
	Logger     *slog.Logger
}

// Router provides embeddable HTTP handlers for the shell commands.
// Endpoints (relative to basePath):
//
//	POST /sidecar/start          start-sidecar
//	POST /sidecar/shutdown       shutdown-sidecar
//	GET  /sidecar/path           get-sidecar-path
//	GET  /sidecar/status         sidecar-status
//	GET  /backend-url            get-backend-url
//	GET  /secret, PUT /secret    get-secret, set-secret
//	GET  /window, PUT /window    get-window-state, set-window-state
//	POST /window/fullscreen      toggle-fullscreen
//	GET  /events?topics=...      sidecar output as server-sent events
//	GET  /history?limit=N        recent lifecycle events
//	GET  /metrics                Prometheus exposition
//	POST /invoke/:command        any command above by name
type Router struct {
	d        Deps
	basePath string
	log      *slog.Logger
	commands map[string]gin.HandlerFunc

	drainOnce sync.Once
	drain     chan struct{}
}

// NewRouter constructs a new Router with configurable basePath.
func NewRouter(d Deps, basePath string) *Router {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	r := &Router{d: d, basePath: sanitizeBase(basePath), log: log.With("component", "server"), drain: make(chan struct{})}
	r.commands = map[string]gin.HandlerFunc{
		"start-sidecar":     r.handleStart,
		"shutdown-sidecar":  r.handleShutdown,
		"get-sidecar-path":  r.handlePath,
		"sidecar-status":    r.handleStatus,
		"get-backend-url":   r.handleBackendURL,
		"set-secret":        r.handleSetSecret,
		"get-secret":        r.handleGetSecret,
		"get-window-state":  r.handleGetWindow,
		"set-window-state":  r.handleSetWindow,
		"toggle-fullscreen": r.handleToggleFullscreen,
	}
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/healthz", func(c *gin.Context) { writeJSON(c, http.StatusOK, okResp{OK: true}) })
	group.POST("/sidecar/start", r.handleStart)
	group.POST("/sidecar/shutdown", r.handleShutdown)
	group.GET("/sidecar/path", r.handlePath)
	group.GET("/sidecar/status", r.handleStatus)
	group.GET("/backend-url", r.handleBackendURL)
	group.GET("/secret", r.handleGetSecret)
	group.PUT("/secret", r.handleSetSecret)
	group.GET("/window", r.handleGetWindow)
	group.PUT("/window", r.handleSetWindow)
	group.POST("/window/fullscreen", r.handleToggleFullscreen)
	group.GET("/events", r.handleEvents)
	group.GET("/history", r.handleHistory)
	group.GET("/metrics", r.handleMetrics)
	group.POST("/invoke/:command", r.handleInvoke)
	return g
}

// Drain ends every open event stream and refuses new ones. Register it with
// http.Server.RegisterOnShutdown so Shutdown does not wait on them.
func (r *Router) Drain() {
	r.drainOnce.Do(func() { close(r.drain) })
}

// NewServer builds an HTTP server for handler. It is not started.
// There is no write timeout: the event stream is long lived.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type pathResp struct {
	Path string `json:"path"`
}

type urlResp struct {
	URL string `json:"url"`
}

type secretReq struct {
	Value *string `json:"value"`
}

type secretResp struct {
	Value string `json:"value,omitempty"`
	Found bool   `json:"found"`
}

type statusResp struct {
	supervisor.Status
	Sample *metrics.Sample `json:"sample,omitempty"`
}

type fullscreenResp struct {
	Fullscreen bool `json:"fullscreen"`
}

func (r *Router) fail(c *gin.Context, err error) {
	code, kind := errorKind(err)
	writeJSON(c, code, errorResp{Error: err.Error(), Kind: kind})
}

func (r *Router) handleStart(c *gin.Context) {
	if err := r.d.Sidecar.Start(c.Request.Context()); err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleShutdown(c *gin.Context) {
	if err := r.d.Sidecar.Shutdown(c.Request.Context()); err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handlePath(c *gin.Context) {
	p, err := r.d.Sidecar.Path()
	if err != nil {
		r.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, pathResp{Path: p})
}

func (r *Router) handleStatus(c *gin.Context) {
	resp := statusResp{Status: r.d.Sidecar.Status()}
	if r.d.Sampler != nil && resp.Running {
		if smp, ok := r.d.Sampler.Last(); ok && int(smp.PID) == resp.PID {
			resp.Sample = &smp
		}
	}
	writeJSON(c, http.StatusOK, resp)
}

func (r *Router) handleBackendURL(c *gin.Context) {
	writeJSON(c, http.StatusOK, urlResp{URL: r.d.BackendURL})
}

func (r *Router) handleSetSecret(c *gin.Context) {
	if r.d.Secrets == nil {
		writeJSON(c, http.StatusNotImplemented, errorResp{Error: "secret store not configured"})
		return
	}
	var req secretReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if req.Value == nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "value required"})
		return
	}
	if err := r.d.Secrets.StoreSecret(*req.Value); err != nil {
		r.log.Error("set secret failed", "error", err)
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleGetSecret(c *gin.Context) {
	if r.d.Secrets == nil {
		writeJSON(c, http.StatusNotImplemented, errorResp{Error: "secret store not configured"})
		return
	}
	v, found, err := r.d.Secrets.LoadSecret()
	if err != nil {
		r.log.Error("get secret failed", "error", err)
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, secretResp{Value: v, Found: found})
}

func (r *Router) handleGetWindow(c *gin.Context) {
	if r.d.Window == nil {
		writeJSON(c, http.StatusNotImplemented, errorResp{Error: "window state not configured"})
		return
	}
	writeJSON(c, http.StatusOK, r.d.Window.Current())
}

func (r *Router) handleSetWindow(c *gin.Context) {
	if r.d.Window == nil {
		writeJSON(c, http.StatusNotImplemented, errorResp{Error: "window state not configured"})
		return
	}
	var g windowstate.Geometry
	if err := c.ShouldBindJSON(&g); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if err := r.d.Window.Update(g); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleToggleFullscreen(c *gin.Context) {
	if r.d.Window == nil {
		writeJSON(c, http.StatusNotImplemented, errorResp{Error: "window state not configured"})
		return
	}
	writeJSON(c, http.StatusOK, fullscreenResp{Fullscreen: r.d.Window.ToggleFullscreen()})
}

func (r *Router) handleEvents(c *gin.Context) {
	if r.d.Bus == nil {
		writeJSON(c, http.StatusNotImplemented, errorResp{Error: "event bus not configured"})
		return
	}
	topics, err := parseTopics(c.Query("topics"))
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	select {
	case <-r.drain:
		writeJSON(c, http.StatusServiceUnavailable, errorResp{Error: "shutting down"})
		return
	default:
	}
	sub, err := r.d.Bus.Subscribe(topics...)
	if err != nil {
		writeJSON(c, http.StatusServiceUnavailable, errorResp{Error: err.Error()})
		return
	}
	defer sub.Cancel()
	r.log.Debug("event stream opened", "subscription", sub.ID(), "topics", topics)

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	ctx := c.Request.Context()
	c.Stream(func(io.Writer) bool {
		select {
		case ev, ok := <-sub.C():
			if !ok {
				return false
			}
			c.SSEvent(ev.Topic, ev)
			return true
		case <-ctx.Done():
			return false
		case <-r.drain:
			return false
		}
	})
	r.log.Debug("event stream closed", "subscription", sub.ID(), "dropped", sub.Dropped())
}

func (r *Router) handleHistory(c *gin.Context) {
	if r.d.History == nil {
		writeJSON(c, http.StatusNotImplemented, errorResp{Error: "history not configured"})
		return
	}
	limit, err := parseLimit(c.Query("limit"), 50, 500)
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	evs, err := r.d.History.Recent(c.Request.Context(), limit)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	if evs == nil {
		evs = []history.Event{}
	}
	writeJSON(c, http.StatusOK, evs)
}

func (r *Router) handleMetrics(c *gin.Context) {
	if r.d.Gatherer == nil {
		writeJSON(c, http.StatusNotImplemented, errorResp{Error: "metrics not configured"})
		return
	}
	metrics.HandlerFor(r.d.Gatherer).ServeHTTP(c.Writer, c.Request)
}

func (r *Router) handleInvoke(c *gin.Context) {
	name := c.Param("command")
	h, ok := r.commands[name]
	if !ok {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "unknown command " + name})
		return
	}
	h(c)
}

// Commands lists the command names accepted by /invoke.
func (r *Router) Commands() []string {
	out := make([]string, 0, len(r.commands))
	for k := range r.commands {
		out = append(out, k)
	}
	return out
}

// ListenAndServe runs srv until ctx is done, then shuts it down gracefully.
func ListenAndServe(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
