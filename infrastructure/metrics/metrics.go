// Package metrics provides Prometheus metrics collection
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for a sidereal process
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Simulation metrics
	TickDuration     prometheus.Histogram
	SimulatedBodies  prometheus.Gauge
	ActionsDropped   *prometheus.CounterVec
	EnginesExhausted prometheus.Counter

	// Replication metrics
	ConnectedSessions prometheus.Gauge
	StateFramesSent   prometheus.Counter
	InputFramesRecv   prometheus.Counter
	DatagramsDropped  *prometheus.CounterVec

	// Persistence metrics
	PersistBatchesTotal *prometheus.CounterVec
	PersistedEntities   prometheus.Counter
	SnapshotMarkers     prometheus.Counter
}

// New creates a new Metrics instance registered on the default registerer
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new Metrics instance with a custom registry
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	constLabels := prometheus.Labels{"service": serviceName}

	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: constLabels,
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "HTTP request duration in seconds",
				Buckets:     []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
				ConstLabels: constLabels,
			},
			[]string{"method", "path"},
		),
		TickDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:        "simulation_tick_duration_seconds",
				Help:        "Authoritative simulation tick duration in seconds",
				Buckets:     []float64{.0001, .0005, .001, .005, .01, .033, .1},
				ConstLabels: constLabels,
			},
		),
		SimulatedBodies: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name:        "simulation_bodies",
				Help:        "Current number of simulated physics bodies",
				ConstLabels: constLabels,
			},
		),
		ActionsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "simulation_actions_dropped_total",
				Help:        "Actions dropped by the capability validator",
				ConstLabels: constLabels,
			},
			[]string{"action"},
		),
		EnginesExhausted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name:        "simulation_engines_exhausted_total",
				Help:        "Engine thrust requests skipped because fuel was exhausted",
				ConstLabels: constLabels,
			},
		),
		ConnectedSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name:        "replication_connected_sessions",
				Help:        "Current number of connected transport sessions",
				ConstLabels: constLabels,
			},
		),
		StateFramesSent: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name:        "replication_state_frames_sent_total",
				Help:        "State frames delivered to sessions",
				ConstLabels: constLabels,
			},
		),
		InputFramesRecv: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name:        "replication_input_frames_received_total",
				Help:        "Input frames received from sessions",
				ConstLabels: constLabels,
			},
		),
		DatagramsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "replication_datagrams_dropped_total",
				Help:        "Datagrams dropped before reaching the simulation",
				ConstLabels: constLabels,
			},
			[]string{"reason"},
		),
		PersistBatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "persistence_batches_total",
				Help:        "World-delta persistence flushes by outcome",
				ConstLabels: constLabels,
			},
			[]string{"status"},
		),
		PersistedEntities: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name:        "persistence_entities_total",
				Help:        "Entity records written by persistence flushes",
				ConstLabels: constLabels,
			},
		),
		SnapshotMarkers: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name:        "persistence_snapshot_markers_total",
				Help:        "Snapshot markers recorded",
				ConstLabels: constLabels,
			},
		),
	}

	registerer.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.TickDuration,
		m.SimulatedBodies,
		m.ActionsDropped,
		m.EnginesExhausted,
		m.ConnectedSessions,
		m.StateFramesSent,
		m.InputFramesRecv,
		m.DatagramsDropped,
		m.PersistBatchesTotal,
		m.PersistedEntities,
		m.SnapshotMarkers,
	)
	return m
}
