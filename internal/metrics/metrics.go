// Package metrics exposes the driver's ambient process-health surface as
// Prometheus collectors: duty-cycle timing, agent-loop counters, and the
// size of the distinct error log. It is not the same thing as the
// counters collaborator (internal/counters) — this is a separate
// observability surface: each agent's Runner records duty-cycle duration
// and work count once per cycle. Nothing in the driver sets ErrorLogSize.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles the collectors a driver process registers exactly once.
type Registry struct {
	DutyCycleDuration *prometheus.HistogramVec
	AgentWorkCount    *prometheus.CounterVec
	ErrorLogSize      prometheus.Gauge
	FramesSent        *prometheus.CounterVec
	FramesReceived    *prometheus.CounterVec
	NaksSent          prometheus.Counter
	NaksReceived      prometheus.Counter
	RetransmitsSent   prometheus.Counter
	PublicationsActive prometheus.Gauge
	ImagesActive       prometheus.Gauge
}

// NewRegistry constructs and registers all collectors against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		DutyCycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "media_driver",
			Name:      "duty_cycle_duration_seconds",
			Help:      "Duration of a single DoWork invocation per agent.",
			Buckets:   prometheus.ExponentialBuckets(0.000001, 4, 12),
		}, []string{"agent"}),
		AgentWorkCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "media_driver",
			Name:      "agent_work_total",
			Help:      "Count of non-zero-work duty cycles per agent.",
		}, []string{"agent"}),
		ErrorLogSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "media_driver",
			Name:      "error_log_distinct_entries",
			Help:      "Number of distinct observations in the process error log.",
		}),
		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "media_driver",
			Name:      "frames_sent_total",
			Help:      "Wire frames sent, by frame type.",
		}, []string{"type"}),
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "media_driver",
			Name:      "frames_received_total",
			Help:      "Wire frames received, by frame type.",
		}, []string{"type"}),
		NaksSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "media_driver",
			Name:      "naks_sent_total",
			Help:      "NAK frames sent by receivers.",
		}),
		NaksReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "media_driver",
			Name:      "naks_received_total",
			Help:      "NAK frames received by senders.",
		}),
		RetransmitsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "media_driver",
			Name:      "retransmits_sent_total",
			Help:      "Retransmitted DATA frames sent.",
		}),
		PublicationsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "media_driver",
			Name:      "publications_active",
			Help:      "Currently active publications (network + ipc).",
		}),
		ImagesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "media_driver",
			Name:      "images_active",
			Help:      "Currently active publication images.",
		}),
	}
	reg.MustRegister(
		r.DutyCycleDuration, r.AgentWorkCount, r.ErrorLogSize,
		r.FramesSent, r.FramesReceived, r.NaksSent, r.NaksReceived,
		r.RetransmitsSent, r.PublicationsActive, r.ImagesActive,
	)
	return r
}

// NewTestRegistry builds a Registry against a private prometheus.Registry,
// convenient for tests that don't want to touch the default registry.
func NewTestRegistry() (*Registry, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewRegistry(reg), reg
}
