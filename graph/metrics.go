package graph

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides Prometheus-compatible metrics collection for graph
// execution monitoring in production environments.
//
// Metrics exposed (all namespaced with "agentgraph_"):
//
//  1. invocations_total (counter): Completed graph invocations.
//     Labels: graph, status (success/error).
//     Use: Request rates and error ratios per graph.
//
//  2. node_latency_ms (histogram): Node execution duration in milliseconds.
//     Labels: graph, node, status (success/error).
//     Buckets: [1, 5, 10, 50, 100, 500, 1000, 5000, 10000].
//     Use: P50/P95/P99 latency analysis per node.
//
//  3. checkpoint_saves_total (counter): Checkpoint persistence attempts.
//     Labels: backend, status (success/error).
//     Use: Store health and write volume per backend.
//
//  4. active_invocations (gauge): Invocations currently executing.
//     Labels: graph.
//     Use: Concurrency levels and saturation.
//
// Create one Metrics per registry and share it across compiled graphs;
// the label sets keep the series apart. All methods are nil-safe, so an
// engine without metrics configured can call them unconditionally.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := graph.NewMetrics(registry)
//	compiled, err := g.Compile(
//	    graph.WithMetrics[MyState](metrics),
//	)
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
type Metrics struct {
	invocations     *prometheus.CounterVec
	nodeLatency     *prometheus.HistogramVec
	checkpointSaves *prometheus.CounterVec
	active          *prometheus.GaugeVec

	registry prometheus.Registerer
	enabled  bool
}

// NewMetrics creates and registers all graph execution metrics with the
// provided Prometheus registry.
//
// Pass nil to register with prometheus.DefaultRegisterer. Use a dedicated
// registry in tests and long-lived processes to avoid collisions:
//
//	registry := prometheus.NewRegistry()
//	metrics := graph.NewMetrics(registry)
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	m := &Metrics{
		registry: registry,
		enabled:  true,
	}

	m.invocations = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentgraph",
		Name:      "invocations_total",
		Help:      "Completed graph invocations by terminal status",
	}, []string{"graph", "status"})

	m.nodeLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "agentgraph",
		Name:      "node_latency_ms",
		Help:      "Node execution duration in milliseconds (from dispatch to completion)",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000}, // 1ms to 10s
	}, []string{"graph", "node", "status"})

	m.checkpointSaves = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentgraph",
		Name:      "checkpoint_saves_total",
		Help:      "Checkpoint persistence attempts by backend and status",
	}, []string{"backend", "status"})

	m.active = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "agentgraph",
		Name:      "active_invocations",
		Help:      "Graph invocations currently executing",
	}, []string{"graph"})

	return m
}

// RecordInvocation increments the invocation counter for a graph.
// Status is "success" or "error".
func (m *Metrics) RecordInvocation(graphName, status string) {
	if m == nil || !m.enabled {
		return
	}

	m.invocations.WithLabelValues(graphName, status).Inc()
}

// RecordNodeLatency observes one node execution duration.
// Status is "success" or "error".
func (m *Metrics) RecordNodeLatency(graphName, node string, latency time.Duration, status string) {
	if m == nil || !m.enabled {
		return
	}

	m.nodeLatency.WithLabelValues(graphName, node, status).Observe(float64(latency.Milliseconds()))
}

// RecordCheckpointSave increments the checkpoint save counter for a backend.
// Status is "success" or "error".
func (m *Metrics) RecordCheckpointSave(backend, status string) {
	if m == nil || !m.enabled {
		return
	}

	m.checkpointSaves.WithLabelValues(backend, status).Inc()
}

// InvocationStarted increments the active invocation gauge for a graph.
func (m *Metrics) InvocationStarted(graphName string) {
	if m == nil || !m.enabled {
		return
	}

	m.active.WithLabelValues(graphName).Inc()
}

// InvocationFinished decrements the active invocation gauge for a graph.
func (m *Metrics) InvocationFinished(graphName string) {
	if m == nil || !m.enabled {
		return
	}

	m.active.WithLabelValues(graphName).Dec()
}
