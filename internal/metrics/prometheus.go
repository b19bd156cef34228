// Package metrics exports sync controller activity to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"goaltrack/internal/gt"
)

var allStates = []gt.SyncState{gt.StateIdle, gt.StateSyncing, gt.StateSaved, gt.StateError, gt.StateRemoteAhead}

// SyncMetrics implements gt.SyncMetrics on a private registry.
type SyncMetrics struct {
	registry     *prometheus.Registry
	handler      http.Handler
	attempts     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	mediaUploads *prometheus.CounterVec
	state        *prometheus.GaugeVec
}

var _ gt.SyncMetrics = (*SyncMetrics)(nil)

// NewSyncMetrics registers the sync collectors plus the Go runtime
// collectors.
func NewSyncMetrics() *SyncMetrics {
	registry := prometheus.NewRegistry()

	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "goaltrack",
		Name:      "sync_attempts_total",
		Help:      "Snapshot sync attempts by trigger and outcome",
	}, []string{"trigger", "outcome"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "goaltrack",
		Name:      "sync_duration_seconds",
		Help:      "Duration of snapshot sync attempts",
		Buckets:   prometheus.DefBuckets,
	}, []string{"trigger"})

	mediaUploads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "goaltrack",
		Name:      "media_uploads_total",
		Help:      "Media uploads by outcome",
	}, []string{"outcome"})

	state := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "goaltrack",
		Name:      "sync_state",
		Help:      "1 for the current sync state, 0 otherwise",
	}, []string{"state"})

	registry.MustRegister(attempts, duration, mediaUploads, state,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &SyncMetrics{
		registry:     registry,
		handler:      promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		attempts:     attempts,
		duration:     duration,
		mediaUploads: mediaUploads,
		state:        state,
	}
	m.StateChanged(gt.StateIdle)
	return m
}

// Handler exposes the Prometheus HTTP handler.
func (m *SyncMetrics) Handler() http.Handler {
	return m.handler
}

// Registry returns the underlying registry.
func (m *SyncMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *SyncMetrics) SyncAttempt(trigger gt.Trigger, outcome string, took time.Duration) {
	m.attempts.WithLabelValues(string(trigger), outcome).Inc()
	m.duration.WithLabelValues(string(trigger)).Observe(took.Seconds())
}

func (m *SyncMetrics) MediaUpload(outcome string) {
	m.mediaUploads.WithLabelValues(outcome).Inc()
}

func (m *SyncMetrics) StateChanged(state gt.SyncState) {
	for _, s := range allStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.state.WithLabelValues(s.String()).Set(v)
	}
}
