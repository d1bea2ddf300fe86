package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"leadflow/internal/model"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is a no-op.
type Metrics struct {
	sessionsStarted  *prometheus.CounterVec
	steps            prometheus.Counter
	stepDuration     prometheus.Histogram
	completions      *prometheus.CounterVec
	textgenFallbacks *prometheus.CounterVec
	scoringFallbacks prometheus.Counter
	persistDropped   prometheus.Counter
	persistFailed    prometheus.Counter
	lockBusy         prometheus.Counter
}

// NewMetrics registers the collectors on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		sessionsStarted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadflow",
			Name:      "sessions_started_total",
			Help:      "Sessions started, by form.",
		}, []string{"form_id"}),
		steps: f.NewCounter(prometheus.CounterOpts{
			Namespace: "leadflow",
			Name:      "steps_total",
			Help:      "Steps processed.",
		}),
		stepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "leadflow",
			Name:      "step_duration_seconds",
			Help:      "Time spent processing one step.",
			Buckets:   prometheus.DefBuckets,
		}),
		completions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadflow",
			Name:      "completions_total",
			Help:      "Completed sessions, by completion type.",
		}, []string{"completion_type"}),
		textgenFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadflow",
			Name:      "textgen_fallbacks_total",
			Help:      "Text generation calls replaced by the deterministic fallback.",
		}, []string{"operation"}),
		scoringFallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: "leadflow",
			Name:      "scoring_fallbacks_total",
			Help:      "Scoring passes that returned the neutral result.",
		}),
		persistDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "leadflow",
			Name:      "persist_dropped_total",
			Help:      "Persistence tasks dropped because the queue was full or closed.",
		}),
		persistFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "leadflow",
			Name:      "persist_failed_total",
			Help:      "Persistence tasks that failed after all retries.",
		}),
		lockBusy: f.NewCounter(prometheus.CounterOpts{
			Namespace: "leadflow",
			Name:      "session_lock_busy_total",
			Help:      "Requests rejected because the session was being processed.",
		}),
	}
}

func (m *Metrics) SessionStarted(formID string) {
	if m == nil {
		return
	}
	m.sessionsStarted.WithLabelValues(formID).Inc()
}

func (m *Metrics) StepProcessed(started time.Time) {
	if m == nil {
		return
	}
	m.steps.Inc()
	m.stepDuration.Observe(time.Since(started).Seconds())
}

func (m *Metrics) Completed(t model.CompletionType) {
	if m == nil {
		return
	}
	m.completions.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) TextGenFallback(operation string) {
	if m == nil {
		return
	}
	m.textgenFallbacks.WithLabelValues(operation).Inc()
}

func (m *Metrics) ScoringFallback() {
	if m == nil {
		return
	}
	m.scoringFallbacks.Inc()
}

func (m *Metrics) PersistDropped() {
	if m == nil {
		return
	}
	m.persistDropped.Inc()
}

func (m *Metrics) PersistFailed() {
	if m == nil {
		return
	}
	m.persistFailed.Inc()
}

func (m *Metrics) LockBusy() {
	if m == nil {
		return
	}
	m.lockBusy.Inc()
}
