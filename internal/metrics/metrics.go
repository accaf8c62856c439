// Package metrics holds the prometheus collectors of the relay.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	connections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "roomrelay_ws_connections",
			Help: "Current number of active websocket connections.",
		},
	)
	rooms = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "roomrelay_rooms",
			Help: "Current number of rooms with at least one member.",
		},
	)
	inbound = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomrelay_inbound_messages_total",
			Help: "Client messages received, by action and outcome.",
		},
		[]string{"action", "outcome"},
	)
	outbound = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomrelay_outbound_messages_total",
			Help: "Server messages handed to the transport, by action and result.",
		},
		[]string{"action", "result"},
	)
)

func init() {
	prometheus.MustRegister(connections, rooms, inbound, outbound)
}

// SetMembership records the current connection and room counts.
func SetMembership(connCount, roomCount int) {
	connections.Set(float64(connCount))
	rooms.Set(float64(roomCount))
}

// Inbound counts one client message. outcome is "handled" or "ignored".
func Inbound(action, outcome string) {
	inbound.WithLabelValues(action, outcome).Inc()
}

// Outbound counts delivered and dropped frames for one fan-out.
func Outbound(action string, delivered, dropped int) {
	if delivered > 0 {
		outbound.WithLabelValues(action, "delivered").Add(float64(delivered))
	}
	if dropped > 0 {
		outbound.WithLabelValues(action, "dropped").Add(float64(dropped))
	}
}

// Handler exposes /metrics from the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
