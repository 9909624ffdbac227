// Package metrics exposes Prometheus collectors for the WAAPI session and the
// undo tracker. A nil *Metrics is valid and records nothing, so components can
// run without a registry in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Call outcomes used as the "outcome" label.
const (
	OutcomeOK           = "ok"
	OutcomeRemoteError  = "remote_error"
	OutcomeNotConnected = "not_connected"
	OutcomeTransport    = "transport_error"
	OutcomeAbandoned    = "abandoned"
)

type Metrics struct {
	registry     *prometheus.Registry
	calls        *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	events       *prometheus.CounterVec
	status       prometheus.Gauge
	connects     *prometheus.CounterVec
	history      *prometheus.GaugeVec
}

// New creates collectors registered on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "waapi_calls_total",
				Help: "Remote procedure calls issued, by procedure URI and outcome.",
			},
			[]string{"uri", "outcome"},
		),
		callDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "waapi_call_duration_seconds",
				Help:    "Round-trip time of remote procedure calls.",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"uri"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "waapi_events_total",
				Help: "Topic events received.",
			},
			[]string{"topic"},
		),
		status: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "waapi_connection_status",
			Help: "Connection status: 0 disconnected, 1 connecting, 2 connected, 3 error.",
		}),
		connects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "waapi_connect_attempts_total",
				Help: "Connect attempts by result.",
			},
			[]string{"result"},
		),
		history: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "waapi_undo_history_depth",
				Help: "Labels held by the tracked undo and redo stacks.",
			},
			[]string{"stack"},
		),
	}
	m.registry.MustRegister(m.calls, m.callDuration, m.events, m.status, m.connects, m.history)
	return m
}

// Registry returns the registry backing the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveCall(uri, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(uri, outcome).Inc()
	if outcome == OutcomeOK || outcome == OutcomeRemoteError {
		m.callDuration.WithLabelValues(uri).Observe(d.Seconds())
	}
}

func (m *Metrics) ObserveEvent(topic string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(topic).Inc()
}

func (m *Metrics) ObserveConnect(ok bool) {
	if m == nil {
		return
	}
	result := "failed"
	if ok {
		result = "connected"
	}
	m.connects.WithLabelValues(result).Inc()
}

func (m *Metrics) SetStatus(code int) {
	if m == nil {
		return
	}
	m.status.Set(float64(code))
}

func (m *Metrics) SetHistory(undo, redo int) {
	if m == nil {
		return
	}
	m.history.WithLabelValues("undo").Set(float64(undo))
	m.history.WithLabelValues("redo").Set(float64(redo))
}

// Serve runs a /metrics endpoint on addr until the server fails.
func (m *Metrics) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv.ListenAndServe()
}
