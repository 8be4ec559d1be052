package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	spawns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nodebase",
			Subsystem: "process",
			Name:      "spawns_total",
			Help:      "Number of successful process spawns.",
		}, []string{"name"},
	)
	spawnFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nodebase",
			Subsystem: "process",
			Name:      "spawn_failures_total",
			Help:      "Number of spawns rejected by the OS.",
		}, []string{"name"},
	)
	stops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nodebase",
			Subsystem: "process",
			Name:      "stops_total",
			Help:      "Number of observed process exits.",
		}, []string{"name"},
	)
	restarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nodebase",
			Subsystem: "process",
			Name:      "restarts_total",
			Help:      "Number of explicit restarts.",
		}, []string{"name"},
	)
	terminationTimeouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nodebase",
			Subsystem: "process",
			Name:      "termination_timeouts_total",
			Help:      "Number of stops whose exit was not confirmed within the wait bound.",
		}, []string{"name"},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nodebase",
			Subsystem: "process",
			Name:      "state_transitions_total",
			Help:      "Number of state transitions between lifecycle states.",
		}, []string{"name", "from", "to"},
	)
	currentStates = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "nodebase",
			Subsystem: "process",
			Name:      "current_state",
			Help:      "Current lifecycle state of processes (1 = active state, 0 = inactive).",
		}, []string{"name", "state"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{spawns, spawnFailures, stops, restarts, terminationTimeouts, stateTransitions, currentStates}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
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

// HandlerFor serves metrics from a specific gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncSpawn(name string) {
	if regOK.Load() {
		spawns.WithLabelValues(name).Inc()
	}
}

func IncSpawnFailure(name string) {
	if regOK.Load() {
		spawnFailures.WithLabelValues(name).Inc()
	}
}

func IncStop(name string) {
	if regOK.Load() {
		stops.WithLabelValues(name).Inc()
	}
}

func IncRestart(name string) {
	if regOK.Load() {
		restarts.WithLabelValues(name).Inc()
	}
}

func IncTerminationTimeout(name string) {
	if regOK.Load() {
		terminationTimeouts.WithLabelValues(name).Inc()
	}
}

func RecordStateTransition(name, from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(name, from, to).Inc()
	}
}

func SetCurrentState(name, state string, active bool) {
	if regOK.Load() {
		var value float64
		if active {
			value = 1
		}
		currentStates.WithLabelValues(name, state).Set(value)
	}
}
