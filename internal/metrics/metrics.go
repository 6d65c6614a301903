package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesSent counts outbound OCPP frames, labeled by message type (CALL, CALLRESULT, CALLERROR).
	FramesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "simulator_frames_sent_total",
		Help: "Total number of frames sent to the central system.",
	}, []string{"message_type"})

	// FramesReceived counts inbound OCPP frames, labeled by message type.
	FramesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "simulator_frames_received_total",
		Help: "Total number of frames received from the central system.",
	}, []string{"message_type"})

	// Status is 1 for the current charge point status and 0 for all others.
	Status = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "simulator_status",
		Help: "Current charge point status (1 = active).",
	}, []string{"status"})

	// HeartbeatsSent counts Heartbeat CALLs.
	HeartbeatsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "simulator_heartbeats_sent_total",
		Help: "Total number of heartbeats sent.",
	})

	// PendingCalls tracks outbound CALLs awaiting a result.
	PendingCalls = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "simulator_pending_calls",
		Help: "Number of outbound calls awaiting a result.",
	})

	// CallErrors counts CALLERROR frames received, labeled by error code.
	CallErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "simulator_call_errors_total",
		Help: "Total number of CALLERROR frames received.",
	}, []string{"error_code"})

	// EventsPublished counts the total number of events published to Kafka, labeled by event type.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "simulator_events_published_total",
		Help: "Total number of events published to the message broker.",
	}, []string{"event_type"})

	// CommandsConsumed counts control commands, labeled by command name and source (http, kafka).
	CommandsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "simulator_commands_consumed_total",
		Help: "Total number of control commands handled.",
	}, []string{"command_name", "source"})
)

// SetStatus marks current as the active status and clears the others in all.
func SetStatus(current string, all []string) {
	for _, s := range all {
		if s == current {
			Status.WithLabelValues(s).Set(1)
		} else {
			Status.WithLabelValues(s).Set(0)
		}
	}
}
