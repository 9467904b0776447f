// Package metrics exposes prometheus collectors for the network engine. A nil
// *Collector is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "netengine"

// Dial results.
const (
	DialSuccess = "success"
	DialFailure = "failure"
	DialRefused = "circuit_open"
)

// Find-node outcomes.
const (
	FindFound    = "found"
	FindNotFound = "not_found"
)

type Collector struct {
	registry *prometheus.Registry

	actions     *prometheus.CounterVec
	submissions *prometheus.CounterVec
	dials       *prometheus.CounterVec
	findNode    *prometheus.CounterVec
	subscribers prometheus.Gauge
	knownNodes  prometheus.Gauge
}

// New registers every collector on a fresh registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "actions_total",
			Help:      "actions reduced by the network controller, by kind",
		}, []string{"kind"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submit",
			Name:      "completed_total",
			Help:      "completed atom submissions, by outcome",
		}, []string{"outcome"}),
		dials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "dials_total",
			Help:      "connection attempts to nodes, by result",
		}, []string{"result"}),
		findNode: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "find_node",
			Name:      "requests_total",
			Help:      "finished find-node requests, by outcome",
		}, []string{"outcome"}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "subscribers",
			Help:      "active action stream subscribers",
		}),
		knownNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "known_nodes",
			Help:      "nodes present in the network state",
		}),
	}

	c.registry.MustRegister(
		c.actions,
		c.submissions,
		c.dials,
		c.findNode,
		c.subscribers,
		c.knownNodes,
		prometheus.NewGoCollector(),
	)
	return c
}

// Registry is what the HTTP façade serves on /metrics.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) ActionReduced(kind string, knownNodes int) {
	if c == nil {
		return
	}
	c.actions.WithLabelValues(kind).Inc()
	c.knownNodes.Set(float64(knownNodes))
}

func (c *Collector) SubscriberAdded() {
	if c == nil {
		return
	}
	c.subscribers.Inc()
}

func (c *Collector) SubscriberRemoved() {
	if c == nil {
		return
	}
	c.subscribers.Dec()
}

// SubmissionCompleted records a submission outcome, e.g. "stored", "timeout".
func (c *Collector) SubmissionCompleted(outcome string) {
	if c == nil {
		return
	}
	c.submissions.WithLabelValues(outcome).Inc()
}

func (c *Collector) Dial(result string) {
	if c == nil {
		return
	}
	c.dials.WithLabelValues(result).Inc()
}

func (c *Collector) FindNodeFinished(outcome string) {
	if c == nil {
		return
	}
	c.findNode.WithLabelValues(outcome).Inc()
}
