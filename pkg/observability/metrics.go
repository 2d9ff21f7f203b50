// Package observability wires Prometheus metrics and OpenTelemetry tracing
// into the HTTP server.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the application. Each collector
// owns its registry so tests can build as many as they like.
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Business metrics
	Logins          *prometheus.CounterVec
	TokenRefreshes  *prometheus.CounterVec
	ProjectsCreated prometheus.Counter
	ProjectsDeleted prometheus.Counter
	PatchedChanges  *prometheus.CounterVec
	VersionConflict prometheus.Counter
}

// NewCollector creates a new metrics collector with the given namespace
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		Logins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "logins_total",
				Help:      "Login attempts by outcome",
			},
			[]string{"outcome"},
		),
		TokenRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_refreshes_total",
				Help:      "Refresh token exchanges by outcome",
			},
			[]string{"outcome"},
		),
		ProjectsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "projects_created_total",
			Help:      "Total number of projects created",
		}),
		ProjectsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "projects_deleted_total",
			Help:      "Total number of projects deleted",
		}),
		PatchedChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "graph_changes_total",
				Help:      "Graph changes applied by project patches",
			},
			[]string{"kind"},
		),
		VersionConflict: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "version_conflicts_total",
			Help:      "Project saves rejected by a concurrent write",
		}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.HTTPRequests,
		c.HTTPDuration,
		c.Logins,
		c.TokenRefreshes,
		c.ProjectsCreated,
		c.ProjectsDeleted,
		c.PatchedChanges,
		c.VersionConflict,
	)
	return c
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// The Record helpers are safe on a nil collector so callers can run with
// metrics disabled.

func (c *Collector) RecordLogin(outcome string) {
	if c != nil {
		c.Logins.WithLabelValues(outcome).Inc()
	}
}

func (c *Collector) RecordRefresh(outcome string) {
	if c != nil {
		c.TokenRefreshes.WithLabelValues(outcome).Inc()
	}
}

func (c *Collector) RecordProjectCreated() {
	if c != nil {
		c.ProjectsCreated.Inc()
	}
}

func (c *Collector) RecordProjectDeleted() {
	if c != nil {
		c.ProjectsDeleted.Inc()
	}
}

// RecordPatch counts the changes a patch carried, by kind.
func (c *Collector) RecordPatch(nodeAdds, nodeUpdates, nodeRemovals, edgeAdds, edgeRemovals int) {
	if c == nil {
		return
	}
	for kind, n := range map[string]int{
		"node_add":    nodeAdds,
		"node_update": nodeUpdates,
		"node_remove": nodeRemovals,
		"edge_add":    edgeAdds,
		"edge_remove": edgeRemovals,
	} {
		if n > 0 {
			c.PatchedChanges.WithLabelValues(kind).Add(float64(n))
		}
	}
}

func (c *Collector) RecordVersionConflict() {
	if c != nil {
		c.VersionConflict.Inc()
	}
}
