package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Spawn failure reasons.
const (
	ReasonResolve = "resolve"
	ReasonLaunch  = "launch"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	sidecarSpawns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chicken",
			Subsystem: "sidecar",
			Name:      "spawns_total",
			Help:      "Number of successful sidecar spawns.",
		},
	)
	sidecarSpawnFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chicken",
			Subsystem: "sidecar",
			Name:      "spawn_failures_total",
			Help:      "Number of failed spawn attempts by reason.",
		}, []string{"reason"},
	)
	sidecarShutdowns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chicken",
			Subsystem: "sidecar",
			Name:      "shutdowns_total",
			Help:      "Number of kill requests delivered to the sidecar.",
		},
	)
	sidecarKillFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chicken",
			Subsystem: "sidecar",
			Name:      "kill_failures_total",
			Help:      "Number of kill requests the OS rejected.",
		},
	)
	sidecarExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chicken",
			Subsystem: "sidecar",
			Name:      "exits_total",
			Help:      "Number of observed sidecar exits.",
		}, []string{"expected"},
	)
	sidecarRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chicken",
			Subsystem: "sidecar",
			Name:      "running",
			Help:      "1 while a sidecar handle is held.",
		},
	)
	sidecarUptime = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chicken",
			Subsystem: "sidecar",
			Name:      "run_duration_seconds",
			Help:      "Lifetime of sidecar runs from spawn to exit.",
			Buckets:   []float64{1, 10, 60, 300, 1800, 3600, 4 * 3600, 24 * 3600},
		},
	)
	outputLines = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chicken",
			Subsystem: "sidecar",
			Name:      "output_lines_total",
			Help:      "Number of output lines relayed per stream.",
		}, []string{"stream"},
	)
	eventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chicken",
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Events dropped because a subscriber buffer was full.",
		}, []string{"topic"},
	)
)

// Register registers all metrics with the provided registerer. The
// collectors are shared, so every registry they are added to serves the same
// values. Registering twice with the same registerer is not an error.
func Register(r prometheus.Registerer) error {
	cs := []prometheus.Collector{
		sidecarSpawns, sidecarSpawnFailures, sidecarShutdowns, sidecarKillFailures,
		sidecarExits, sidecarRunning, sidecarUptime, outputLines, eventsDropped,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// HandlerFor serves metrics for a specific gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncSpawn() {
	if regOK.Load() {
		sidecarSpawns.Inc()
		sidecarRunning.Set(1)
	}
}

func IncSpawnFailure(reason string) {
	if regOK.Load() {
		sidecarSpawnFailures.WithLabelValues(reason).Inc()
	}
}

func IncShutdown() {
	if regOK.Load() {
		sidecarShutdowns.Inc()
		sidecarRunning.Set(0)
	}
}

func IncKillFailure() {
	if regOK.Load() {
		sidecarKillFailures.Inc()
	}
}

// ObserveExit records a sidecar exit. expected is true when the exit followed a shutdown.
func ObserveExit(expected bool, seconds float64) {
	if !regOK.Load() {
		return
	}
	label := "false"
	if expected {
		label = "true"
	}
	sidecarExits.WithLabelValues(label).Inc()
	sidecarUptime.Observe(seconds)
	if !expected {
		sidecarRunning.Set(0)
	}
}

func IncOutputLine(stream string) {
	if regOK.Load() {
		outputLines.WithLabelValues(stream).Inc()
	}
}

func IncEventDropped(topic string) {
	if regOK.Load() {
		eventsDropped.WithLabelValues(topic).Inc()
	}
}
