package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the advisory client's real-time subsystems.
//
// Naming convention: namespace_subsystem_name
// - namespace: agri_advisor (application-level grouping)
// - subsystem: signaling, chat, media, playback, backend
// - name: specific metric (connections_active, messages_total, etc.)
//
// Metric Types:
// - Gauge: Current state (socket open, playback queue depth)
// - Counter: Cumulative events (messages, chunks, reconnects)

var (
	// ActiveSignalingConnections tracks currently open signaling sockets (Gauge - current state)
	ActiveSignalingConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "agri_advisor",
		Subsystem: "signaling",
		Name:      "connections_active",
		Help:      "Current number of open signaling connections",
	})

	// SignalingReconnects counts chat reconnection attempts (Counter - cumulative)
	SignalingReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agri_advisor",
		Subsystem: "signaling",
		Name:      "reconnects_total",
		Help:      "Total signaling reconnection attempts",
	})

	// SignalingDroppedSends counts envelopes dropped because the socket was not open (Counter - cumulative)
	SignalingDroppedSends = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agri_advisor",
		Subsystem: "signaling",
		Name:      "dropped_sends_total",
		Help:      "Total envelopes dropped while the socket was not open",
	})

	// ChatMessages tracks chat messages by direction and type (CounterVec - cumulative)
	ChatMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agri_advisor",
		Subsystem: "chat",
		Name:      "messages_total",
		Help:      "Total chat messages processed",
	}, []string{"direction", "message_type"})

	// ModerationWarnings counts moderation rejections received (Counter - cumulative)
	ModerationWarnings = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agri_advisor",
		Subsystem: "chat",
		Name:      "moderation_warnings_total",
		Help:      "Total moderation warnings received",
	})

	// MediaChunks tracks transmitted capture chunks by mime type (CounterVec - cumulative)
	MediaChunks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agri_advisor",
		Subsystem: "media",
		Name:      "chunks_sent_total",
		Help:      "Total media chunks transmitted",
	}, []string{"mime_type"})

	// PlaybackQueueDepth tracks pending audio chunks awaiting playback (Gauge - current state)
	PlaybackQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "agri_advisor",
		Subsystem: "playback",
		Name:      "queue_depth",
		Help:      "Current number of audio chunks awaiting playback",
	})

	// PlaybackChunks counts audio chunks rendered to the output (Counter - cumulative)
	PlaybackChunks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agri_advisor",
		Subsystem: "playback",
		Name:      "chunks_total",
		Help:      "Total audio chunks processed by the playback queue",
	}, []string{"status"})

	// CircuitBreakerState exposes the backend breaker state (0 closed, 1 open, 2 half-open)
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "agri_advisor",
		Subsystem: "backend",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state per upstream (0=closed, 1=open, 2=half-open)",
	}, []string{"upstream"})
)

func IncConnection() {
	ActiveSignalingConnections.Inc()
}

func DecConnection() {
	ActiveSignalingConnections.Dec()
}
