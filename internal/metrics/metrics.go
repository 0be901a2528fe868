// Package metrics exposes the prometheus collectors shared by the relay and
// signaling servers.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server label values.
const (
	Relay     = "relay"
	Signaling = "signaling"
)

var (
	// RoomsActive counts rooms currently held by a registry.
	RoomsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "dotr",
		Name:      "rooms_active",
		Help:      "Rooms currently open.",
	}, []string{"server"})

	// Connections counts open websocket connections.
	Connections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "dotr",
		Name:      "connections_open",
		Help:      "Open websocket connections.",
	}, []string{"server"})

	// MessagesReceived counts inbound messages by type tag.
	MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dotr",
		Name:      "messages_received_total",
		Help:      "Inbound messages by type.",
	}, []string{"server", "type"})

	// ActionsRelayed counts game actions forwarded between participants.
	ActionsRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dotr",
		Name:      "actions_relayed_total",
		Help:      "Game actions relayed by action type.",
	}, []string{"action"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
