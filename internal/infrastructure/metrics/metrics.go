package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Persistence outcomes
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// Collector holds the Prometheus metrics for one workspace
type Collector struct {
	registry  *prometheus.Registry
	namespace string

	Mutations   *prometheus.CounterVec
	Persistence *prometheus.CounterVec
	Malformed   *prometheus.CounterVec
	Nodes       prometheus.Gauge
	Edges       prometheus.Gauge
}

// NewCollector creates a collector registered on its own registry
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry:  registry,
		namespace: namespace,
		Mutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "graph_mutations_total",
				Help:      "Total number of applied graph mutations",
			},
			[]string{"op"},
		),
		Persistence: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "persistence_operations_total",
				Help:      "Total number of snapshot save and load calls",
			},
			[]string{"op", "outcome"},
		),
		Malformed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "malformed_payloads_total",
				Help:      "Total number of replace payloads that were not JSON arrays",
			},
			[]string{"target"},
		),
		Nodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "graph_nodes",
			Help:      "Current number of nodes in the graph",
		}),
		Edges: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "graph_edges",
			Help:      "Current number of edges in the graph",
		}),
	}

	registry.MustRegister(c.Mutations, c.Persistence, c.Malformed, c.Nodes, c.Edges)
	return c
}

// Registry returns the registry backing this collector
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Mutation counts one applied mutation. A nil collector records nothing.
func (c *Collector) Mutation(op string) {
	if c == nil {
		return
	}
	c.Mutations.WithLabelValues(op).Inc()
}

// PersistenceOp counts one save or load attempt by outcome
func (c *Collector) PersistenceOp(op, outcome string) {
	if c == nil {
		return
	}
	c.Persistence.WithLabelValues(op, outcome).Inc()
}

// MalformedPayload counts a replace payload that was not a JSON array
func (c *Collector) MalformedPayload(target string) {
	if c == nil {
		return
	}
	c.Malformed.WithLabelValues(target).Inc()
}

// SetGraphSize records the current node and edge counts
func (c *Collector) SetGraphSize(nodes, edges int) {
	if c == nil {
		return
	}
	c.Nodes.Set(float64(nodes))
	c.Edges.Set(float64(edges))
}

// ObserveStore exports how many snapshots a storage backend holds and their
// payload bytes. fn is read at scrape time. Call it at most once per
// collector.
func (c *Collector) ObserveStore(fn func() (count int, bytes int64)) {
	if c == nil || fn == nil {
		return
	}
	c.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: c.namespace,
			Name:      "stored_snapshots",
			Help:      "Number of snapshots held by the storage backend",
		}, func() float64 {
			n, _ := fn()
			return float64(n)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: c.namespace,
			Name:      "stored_snapshot_bytes",
			Help:      "Payload bytes held by the storage backend",
		}, func() float64 {
			_, b := fn()
			return float64(b)
		}),
	)
}
