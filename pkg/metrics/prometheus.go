package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	stepsReceived  *prometheus.CounterVec
	protocolFaults *prometheus.CounterVec
	sessionsEnded  *prometheus.CounterVec
	bandClamps     prometheus.Counter
	activeSession  prometheus.Gauge
	mergeDuration  prometheus.Histogram
	fetchDuration  *prometheus.HistogramVec
	errorsTotal    *prometheus.CounterVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		stepsReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polen_steps_received_total",
				Help: "Simulation step messages accepted into the accumulation list",
			},
			[]string{"transport"},
		),
		protocolFaults: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polen_protocol_faults_total",
				Help: "Dropped step messages by fault kind",
			},
			[]string{"kind"},
		),
		sessionsEnded: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polen_sessions_ended_total",
				Help: "Run sessions by terminal state",
			},
			[]string{"state"},
		),
		bandClamps: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "polen_band_clamps_total",
				Help: "Percentile-order violations clamped by the normalizer",
			},
		),
		activeSession: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "polen_active_session",
				Help: "1 while a run session is connecting or streaming",
			},
		),
		mergeDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "polen_merge_duration_seconds",
				Help:    "Time to build the merged series table",
				Buckets: prometheus.DefBuckets,
			},
		),
		fetchDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "polen_engine_fetch_duration_seconds",
				Help:    "Latency of engine API calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polen_errors_total",
				Help: "Errors by kind",
			},
			[]string{"kind"},
		),
	}
}

// RecordStepReceived counts an accepted step message.
func (r *Recorder) RecordStepReceived(transport string) {
	r.stepsReceived.WithLabelValues(transport).Inc()
}

// RecordProtocolFault counts a dropped step message.
func (r *Recorder) RecordProtocolFault(kind string) {
	r.protocolFaults.WithLabelValues(kind).Inc()
}

// RecordSessionEnded counts a session reaching a terminal state.
func (r *Recorder) RecordSessionEnded(state string) {
	r.sessionsEnded.WithLabelValues(state).Inc()
}

// RecordBandClamp counts a percentile-order clamp in the normalizer.
func (r *Recorder) RecordBandClamp() {
	r.bandClamps.Inc()
}

// SetSessionActive tracks whether a live session is open.
func (r *Recorder) SetSessionActive(active bool) {
	if active {
		r.activeSession.Set(1)
		return
	}
	r.activeSession.Set(0)
}

// RecordMergeDuration records one merged-table build.
func (r *Recorder) RecordMergeDuration(seconds float64) {
	r.mergeDuration.Observe(seconds)
}

// RecordFetch records the latency of one engine API call.
func (r *Recorder) RecordFetch(op string, seconds float64) {
	r.fetchDuration.WithLabelValues(op).Observe(seconds)
}

// RecordError counts an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}
