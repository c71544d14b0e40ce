package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"frameworks/lookout/internal/stream"
	"frameworks/lookout/pkg/monitoring"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return New(monitoring.NewMetricsCollector("lookout-test", "test", "none"))
}

func TestHooksFeedSeries(t *testing.T) {
	m := newTestMetrics(t)
	h := m.Hooks(nil)

	h.OnFrame("gate", 1024)
	h.OnFrame("gate", 1024)
	h.OnFrameDropped("gate", "s1")
	h.OnSessionStart("gate", 3)
	h.OnReconnect("gate", 1)
	h.OnSubscribeRejected("gate", "capacity")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesTotal.WithLabelValues("gate")))
	assert.Equal(t, 2048.0, testutil.ToFloat64(m.FrameBytesTotal.WithLabelValues("gate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesDropped.WithLabelValues("gate")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ActiveSessions.WithLabelValues("gate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reconnects.WithLabelValues("gate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SubscribeRejected.WithLabelValues("gate", "capacity")))
}

func TestStateGaugeTracksSingleActiveState(t *testing.T) {
	m := newTestMetrics(t)
	h := m.Hooks(nil)

	h.OnStateChange("gate", stream.StateIdle, stream.StateConnecting)
	h.OnStateChange("gate", stream.StateConnecting, stream.StateStreaming)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StreamState.WithLabelValues("gate", "streaming")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.StreamState.WithLabelValues("gate", "connecting")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StateTransitions.WithLabelValues("gate", "idle", "connecting")))
}

func TestHooksChainToNext(t *testing.T) {
	m := newTestMetrics(t)
	var got []string
	h := m.Hooks(&stream.Hooks{
		OnStateChange: func(camera string, _, to stream.State) {
			got = append(got, camera+":"+string(to))
		},
		OnFrame: func(camera string, _ int) {
			got = append(got, camera+":frame")
		},
	})

	h.OnStateChange("gate", stream.StateIdle, stream.StateConnecting)
	h.OnFrame("gate", 10)
	h.OnSessionEnd("gate", 0)

	assert.Equal(t, []string{"gate:connecting", "gate:frame"}, got)
}
