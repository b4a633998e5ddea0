// Copyright 2025 ZeroXBridge
//
// Prometheus metrics for the sequencer. The gauges are sampled from the
// journal by the supervisor's poll task rather than pushed from the hot
// paths.

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the sequencer's collectors.
type Metrics struct {
	// CursorHeight is the last processed block per watcher key.
	CursorHeight *prometheus.GaugeVec
	// AccumulatorSize is the elements count per in-memory accumulator,
	// labelled by direction.
	AccumulatorSize *prometheus.GaugeVec

	registry *prometheus.Registry
}

// New creates and registers the sequencer collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		CursorHeight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sequencer_cursor_height",
			Help: "Last processed block per watcher.",
		}, []string{"watcher"}),
		AccumulatorSize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sequencer_accumulator_elements",
			Help: "Elements count per in-memory accumulator.",
		}, []string{"direction"}),
		registry: registry,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
