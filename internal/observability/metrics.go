package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ActiveCalls     prometheus.Gauge
	CallEvents      *prometheus.CounterVec
	AudioChunks     *prometheus.CounterVec
	PlaybackBuffers *prometheus.CounterVec
	Interruptions   prometheus.Counter
	WSMessages      *prometheus.CounterVec
	ReplyRequests   *prometheus.CounterVec
	ReplyLatency    prometheus.Histogram
	ConnectLatency  prometheus.Histogram
	CallDuration    prometheus.Histogram

	window *latencyWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveCalls: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_calls",
			Help:      "Number of live audio sessions currently holding device resources.",
		}),
		CallEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_events_total",
			Help:      "Call lifecycle events by type.",
		}, []string{"event"}),
		AudioChunks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_total",
			Help:      "Captured microphone windows by outcome.",
		}, []string{"outcome"}),
		PlaybackBuffers: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_buffers_total",
			Help:      "Inbound playback buffers by outcome.",
		}, []string{"outcome"}),
		Interruptions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interruptions_total",
			Help:      "Remote interruption signals handled.",
		}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "Device websocket messages by direction and type.",
		}, []string{"direction", "type"}),
		ReplyRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reply_requests_total",
			Help:      "Text reply generation requests by outcome.",
		}, []string{"outcome"}),
		ReplyLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reply_latency_ms",
			Help:      "Latency of text reply generation in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 16000},
		}),
		ConnectLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "live_connect_latency_ms",
			Help:      "Latency from call start to remote connection open in milliseconds.",
			Buckets:   []float64{100, 200, 300, 500, 700, 900, 1200, 2000, 5000},
		}),
		CallDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Elapsed call time at teardown.",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600},
		}),
		window: newLatencyWindow(256),
	}
}

func (m *Metrics) CallEvent(event string) {
	if m == nil {
		return
	}
	m.CallEvents.WithLabelValues(event).Inc()
	m.window.count(event)
}

func (m *Metrics) SetActiveCalls(n int) {
	if m == nil {
		return
	}
	m.ActiveCalls.Set(float64(n))
}

func (m *Metrics) AudioChunk(outcome string) {
	if m == nil {
		return
	}
	m.AudioChunks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PlaybackBuffer(outcome string) {
	if m == nil {
		return
	}
	m.PlaybackBuffers.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Interruption() {
	if m == nil {
		return
	}
	m.Interruptions.Inc()
	m.window.count("interrupted")
}

func (m *Metrics) WSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

func (m *Metrics) ObserveReply(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ReplyRequests.WithLabelValues(outcome).Inc()
	m.ReplyLatency.Observe(float64(d.Milliseconds()))
	if outcome == "ok" {
		m.window.observe(StageReply, d)
	}
}

func (m *Metrics) ObserveConnectLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.ConnectLatency.Observe(float64(d.Milliseconds()))
	m.window.observe(StageLiveConnect, d)
}

func (m *Metrics) ObserveCallDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.CallDuration.Observe(d.Seconds())
}

// SnapshotLatency returns recent per-stage latencies and event counts.
func (m *Metrics) SnapshotLatency() LatencySnapshot {
	if m == nil || m.window == nil {
		return LatencySnapshot{GeneratedAt: time.Now().UTC(), Stages: []LatencyStats{}}
	}
	return m.window.snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
