// Package metrics exposes Prometheus metrics for the player service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and
// records nothing, so wiring stays optional in tests.
type Metrics struct {
	registry *prometheus.Registry

	SessionsActive  prometheus.Gauge
	SessionsCreated prometheus.Counter
	ItemsQueued     prometheus.Counter
	ItemsPlayed     prometheus.Counter
	PlaybackErrors  prometheus.Counter
	Teardowns       *prometheus.CounterVec
}

// New creates and registers all collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "player_sessions_active",
			Help: "Current number of live playback sessions",
		}),
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "player_sessions_created_total",
			Help: "Total number of playback sessions created",
		}),
		ItemsQueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "player_items_queued_total",
			Help: "Total number of items enqueued",
		}),
		ItemsPlayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "player_items_played_total",
			Help: "Total number of items that started playing",
		}),
		PlaybackErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "player_playback_errors_total",
			Help: "Total number of mid-item playback failures",
		}),
		Teardowns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "player_session_teardowns_total",
			Help: "Total number of session teardowns by reason",
		}, []string{"reason"}),
	}
}

// Handler serves the /metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
	m.SessionsCreated.Inc()
}

func (m *Metrics) SessionClosed(reason string) {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
	m.Teardowns.WithLabelValues(reason).Inc()
}

func (m *Metrics) ItemQueued() {
	if m == nil {
		return
	}
	m.ItemsQueued.Inc()
}

func (m *Metrics) ItemStarted() {
	if m == nil {
		return
	}
	m.ItemsPlayed.Inc()
}

func (m *Metrics) PlaybackFailed() {
	if m == nil {
		return
	}
	m.PlaybackErrors.Inc()
}
