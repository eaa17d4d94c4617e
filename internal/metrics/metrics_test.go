package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterIdempotentAndCountersWork(t *testing.T) {
	regOK.Store(false)
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	before := testutil.ToFloat64(sidecarSpawns)
	IncSpawn()
	IncSpawn()
	IncSpawnFailure(ReasonLaunch)
	IncShutdown()
	IncKillFailure()
	ObserveExit(true, 12)
	IncOutputLine("out")
	IncEventDropped("sidecar-stdout")

	if got := testutil.ToFloat64(sidecarSpawns) - before; got != 2 {
		t.Fatalf("spawns delta = %v", got)
	}
	if got := testutil.ToFloat64(sidecarRunning); got != 0 {
		t.Fatalf("running gauge after shutdown = %v", got)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	wantNames := map[string]bool{
		"chicken_sidecar_spawns_total":         false,
		"chicken_sidecar_spawn_failures_total": false,
		"chicken_sidecar_shutdowns_total":      false,
		"chicken_sidecar_kill_failures_total":  false,
		"chicken_sidecar_exits_total":          false,
		"chicken_sidecar_run_duration_seconds": false,
		"chicken_sidecar_output_lines_total":   false,
		"chicken_events_dropped_total":         false,
	}
	for _, mf := range mfs {
		if _, ok := wantNames[mf.GetName()]; ok {
			wantNames[mf.GetName()] = true
			if len(mf.GetMetric()) == 0 {
				t.Fatalf("metric %s has no samples", mf.GetName())
			}
		}
	}
	for n, ok := range wantNames {
		if !ok {
			t.Fatalf("expected to find metric %s", n)
		}
	}
}

func TestRegisterWithSeveralRegistries(t *testing.T) {
	regOK.Store(false)
	first, second := prometheus.NewRegistry(), prometheus.NewRegistry()
	if err := Register(first); err != nil {
		t.Fatalf("first registry: %v", err)
	}
	if err := Register(second); err != nil {
		t.Fatalf("second registry: %v", err)
	}
	IncSpawn()

	for i, reg := range []*prometheus.Registry{first, second} {
		n, err := testutil.GatherAndCount(reg, "chicken_sidecar_spawns_total")
		if err != nil {
			t.Fatalf("registry %d: gather: %v", i, err)
		}
		if n != 1 {
			t.Fatalf("registry %d: spawns_total series = %d", i, n)
		}
	}
}

func TestUnexpectedExitClearsRunning(t *testing.T) {
	regOK.Store(false)
	if err := Register(prometheus.NewRegistry()); err != nil {
		t.Fatal(err)
	}
	IncSpawn()
	if got := testutil.ToFloat64(sidecarRunning); got != 1 {
		t.Fatalf("running = %v", got)
	}
	ObserveExit(false, 1)
	if got := testutil.ToFloat64(sidecarRunning); got != 0 {
		t.Fatalf("running after crash = %v", got)
	}
}

func TestHandlerForServesMetrics(t *testing.T) {
	regOK.Store(false)
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(HandlerFor(reg))
	defer srv.Close()

	IncSpawn()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != 200 {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), "chicken_sidecar_spawns_total") {
		t.Fatalf("metrics output missing spawns_total")
	}
}

func TestConcurrentIncrements(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			IncSpawn()
			IncOutputLine("err")
			IncShutdown()
		}()
	}
	wg.Wait()
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("gather: %v", err)
	}
}

func TestMetricsBeforeRegister(t *testing.T) {
	originalState := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(originalState)

	// no-ops before Register
	IncSpawn()
	IncSpawnFailure(ReasonResolve)
	IncShutdown()
	IncKillFailure()
	ObserveExit(false, 1)
	IncOutputLine("out")
	IncEventDropped("x")
}

func TestRegisterError(t *testing.T) {
	originalState := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(originalState)

	err := Register(&errorRegisterer{})
	if err == nil || err.Error() != "test registration error" {
		t.Fatalf("unexpected error: %v", err)
	}
}

type errorRegisterer struct{}

func (e *errorRegisterer) Register(prometheus.Collector) error {
	return errors.New("test registration error")
}
func (e *errorRegisterer) MustRegister(...prometheus.Collector) {}
func (e *errorRegisterer) Unregister(prometheus.Collector) bool { return false }
