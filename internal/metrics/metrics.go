// Package metrics defines the lookout stream metrics and binds them to the
// pipeline's event hooks.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"frameworks/lookout/internal/stream"
	"frameworks/lookout/pkg/monitoring"
)

// Metrics holds the stream-side Prometheus series.
type Metrics struct {
	FramesTotal       *prometheus.CounterVec
	FrameBytesTotal   *prometheus.CounterVec
	FramesDropped     *prometheus.CounterVec
	ActiveSessions    *prometheus.GaugeVec
	Reconnects        *prometheus.CounterVec
	StateTransitions  *prometheus.CounterVec
	StreamState       *prometheus.GaugeVec
	SubscribeRejected *prometheus.CounterVec
}

// New registers the stream metrics on the service collector.
func New(mc *monitoring.MetricsCollector) *Metrics {
	return &Metrics{
		FramesTotal: mc.NewCounter("frames_total",
			"Frames retained and fanned out, per camera", []string{"camera"}),
		FrameBytesTotal: mc.NewCounter("frame_bytes_total",
			"Encoded frame payload bytes fanned out, per camera", []string{"camera"}),
		FramesDropped: mc.NewCounter("frames_dropped_total",
			"Frames dropped because a session queue was full", []string{"camera"}),
		ActiveSessions: mc.NewGauge("active_sessions",
			"Currently subscribed viewer sessions, per camera", []string{"camera"}),
		Reconnects: mc.NewCounter("reconnect_attempts_total",
			"Failed connect cycles, per camera", []string{"camera"}),
		StateTransitions: mc.NewCounter("state_transitions_total",
			"Pipeline state transitions", []string{"camera", "from", "to"}),
		StreamState: mc.NewGauge("stream_state",
			"Current pipeline state (1 for the active state)", []string{"camera", "state"}),
		SubscribeRejected: mc.NewCounter("subscribe_rejected_total",
			"Subscriptions refused, per camera and reason", []string{"camera", "reason"}),
	}
}

var allStates = []stream.State{
	stream.StateIdle,
	stream.StateConnecting,
	stream.StateStreaming,
	stream.StateReconnecting,
	stream.StateFailed,
}

// Hooks returns pipeline hooks feeding these series. The next hook in the
// chain, when not nil, is invoked after the metrics update so lifecycle
// publishing can share the same hook slot.
func (m *Metrics) Hooks(next *stream.Hooks) *stream.Hooks {
	return &stream.Hooks{
		OnStateChange: func(camera string, from, to stream.State) {
			m.StateTransitions.WithLabelValues(camera, string(from), string(to)).Inc()
			for _, s := range allStates {
				v := 0.0
				if s == to {
					v = 1.0
				}
				m.StreamState.WithLabelValues(camera, string(s)).Set(v)
			}
			if next != nil && next.OnStateChange != nil {
				next.OnStateChange(camera, from, to)
			}
		},
		OnFrame: func(camera string, bytes int) {
			m.FramesTotal.WithLabelValues(camera).Inc()
			m.FrameBytesTotal.WithLabelValues(camera).Add(float64(bytes))
			if next != nil && next.OnFrame != nil {
				next.OnFrame(camera, bytes)
			}
		},
		OnFrameDropped: func(camera, sessionID string) {
			m.FramesDropped.WithLabelValues(camera).Inc()
			if next != nil && next.OnFrameDropped != nil {
				next.OnFrameDropped(camera, sessionID)
			}
		},
		OnSessionStart: func(camera string, active int) {
			m.ActiveSessions.WithLabelValues(camera).Set(float64(active))
			if next != nil && next.OnSessionStart != nil {
				next.OnSessionStart(camera, active)
			}
		},
		OnSessionEnd: func(camera string, active int) {
			m.ActiveSessions.WithLabelValues(camera).Set(float64(active))
			if next != nil && next.OnSessionEnd != nil {
				next.OnSessionEnd(camera, active)
			}
		},
		OnReconnect: func(camera string, attempt int) {
			m.Reconnects.WithLabelValues(camera).Inc()
			if next != nil && next.OnReconnect != nil {
				next.OnReconnect(camera, attempt)
			}
		},
		OnSubscribeRejected: func(camera, reason string) {
			m.SubscribeRejected.WithLabelValues(camera, reason).Inc()
			if next != nil && next.OnSubscribeRejected != nil {
				next.OnSubscribeRejected(camera, reason)
			}
		},
	}
}
