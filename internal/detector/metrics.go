package detector

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "opportunity_engine"

// PromMetrics holds the Prometheus collectors for detection runs
type PromMetrics struct {
	DetectionRuns     *prometheus.CounterVec
	DetectionDuration prometheus.Histogram
	DetectorOutcomes  *prometheus.CounterVec
	InsightsDetected  *prometheus.CounterVec
	SweepTransitions  *prometheus.CounterVec
}

// NewPromMetrics creates and registers the collectors on reg
func NewPromMetrics(reg prometheus.Registerer) *PromMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PromMetrics{
		DetectionRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "detection_runs_total",
				Help:      "Total number of aggregate detection runs",
			},
			[]string{"status"},
		),
		DetectionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "detection_duration_seconds",
				Help:      "Duration of aggregate detection runs in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
			},
		),
		DetectorOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "detector_outcomes_total",
				Help:      "Detector runs by detector and outcome",
			},
			[]string{"detector", "outcome"},
		),
		InsightsDetected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "insights_detected_total",
				Help:      "Insights produced by type and urgency",
			},
			[]string{"type", "urgency"},
		),
		SweepTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "sweep_transitions_total",
				Help:      "Insights changed by the expiry sweep",
			},
			[]string{"change"},
		),
	}
}

// promauto panics on duplicate registration, so the default registry is shared
var defaultPromMetrics = sync.OnceValue(func() *PromMetrics {
	return NewPromMetrics(prometheus.DefaultRegisterer)
})
