// Package metrics exposes the server's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectedSessions tracks currently open websocket sessions.
	ConnectedSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "teamchat_connected_sessions",
		Help: "Number of open websocket sessions.",
	})

	// MessagesAppended counts messages accepted into channel logs.
	MessagesAppended = promauto.NewCounter(prometheus.CounterOpts{
		Name: "teamchat_messages_appended_total",
		Help: "Messages appended to channel logs.",
	})

	// EventsSent counts outbound frames handed to client send buffers.
	EventsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "teamchat_events_sent_total",
		Help: "Outbound events enqueued to clients.",
	})

	// EventsDropped counts frames dropped for slow or rate-limited clients.
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "teamchat_events_dropped_total",
		Help: "Events dropped due to backpressure or rate limiting.",
	})
)
