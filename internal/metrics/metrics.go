/*
Package metrics declares the Prometheus collectors for the realtime core.

Collectors register with the default registry on import, which /metrics serves.
*/
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Drop reasons recorded by FramesDropped.
const (
	DropBufferFull = "buffer_full"
	DropClosed     = "closed"
)

// Admission outcomes recorded by Admissions.
const (
	AdmitAccepted     = "accepted"
	AdmitUnauthorized = "unauthorized"
	AdmitStoreError   = "store_error"
	AdmitRateLimited  = "rate_limited"
)

var (
	// WSConnections tracks live admitted realtime connections.
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of admitted websocket connections",
		},
	)

	WSOnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_online_users",
			Help: "Current number of users with at least one live connection",
		},
	)

	WSMessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of frames enqueued for delivery, by event type",
		},
		[]string{"type"},
	)

	WSMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_messages_received_total",
			Help: "Total number of inbound frames, by intent type",
		},
		[]string{"type"},
	)

	FramesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_frames_dropped_total",
			Help: "Frames skipped during fan-out because the connection could not take them",
		},
		[]string{"reason"},
	)

	Broadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_broadcasts_total",
			Help: "Broadcast calls, by scope",
		},
		[]string{"scope"},
	)

	Admissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_admissions_total",
			Help: "Upgrade attempts on the realtime endpoint, by outcome",
		},
		[]string{"outcome"},
	)
)

// RecordReceived counts one inbound frame. Unrecognized frames are counted as "ignored".
func RecordReceived(intent string) {
	if intent == "" {
		intent = "ignored"
	}
	WSMessagesReceived.WithLabelValues(intent).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
