// Package metrics provides Prometheus instrumentation for the chat
// coordinator. It exposes gauges for connection and presence counts, counters
// for event and broadcast throughput, and a histogram for persistence latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsActive tracks the current number of active WebSocket connections.
	ConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tripcast_chat_connections_active",
		Help: "Current number of active WebSocket connections",
	})

	// EventsTotal counts client events processed, labeled by event type and
	// outcome ("ok", "forbidden", "not_found", "bad_request", "rate_limited",
	// "internal").
	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tripcast_chat_events_total",
		Help: "Total number of client events processed",
	}, []string{"event", "outcome"})

	// BroadcastsTotal counts room broadcasts published, labeled by kind.
	BroadcastsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tripcast_chat_broadcasts_total",
		Help: "Total number of room broadcasts published",
	}, []string{"kind"})

	// PersistLatency records storage call latency in seconds.
	PersistLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tripcast_chat_persist_latency_seconds",
		Help:    "Storage call latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	// PresenceRooms tracks the number of groups with at least one online user.
	PresenceRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tripcast_chat_presence_rooms",
		Help: "Number of groups with at least one online user",
	})

	// AuthFailuresTotal counts rejected connection attempts.
	AuthFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tripcast_chat_auth_failures_total",
		Help: "Total number of rejected connection attempts",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsActive,
		EventsTotal,
		BroadcastsTotal,
		PersistLatency,
		PresenceRooms,
		AuthFailuresTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
