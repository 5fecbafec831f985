package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	signals       *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	decisions     *prometheus.CounterVec
	cascadeResets *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	latency       *prometheus.HistogramVec
}

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		signals: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartflow_signals_total",
				Help: "Structure shift signals emitted",
			},
			[]string{"tf", "direction"},
		),
		rejections: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartflow_rejections_total",
				Help: "Candidates rejected by a pipeline stage",
			},
			[]string{"stage", "reason"},
		),
		decisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartflow_decisions_total",
				Help: "Qualified entry decisions",
			},
			[]string{"phase", "direction"},
		),
		cascadeResets: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartflow_cascade_resets_total",
				Help: "Cascade resets on timeout or restart",
			},
			[]string{"cascade"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartflow_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "smartflow_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordSignal records an emitted structure shift.
func (r *Recorder) RecordSignal(tf, direction string) {
	r.signals.WithLabelValues(tf, direction).Inc()
}

// RecordRejection records a candidate withheld by a stage.
func (r *Recorder) RecordRejection(stage, reason string) {
	r.rejections.WithLabelValues(stage, reason).Inc()
}

// RecordDecision records a decision handed to execution.
func (r *Recorder) RecordDecision(phase, direction string) {
	r.decisions.WithLabelValues(phase, direction).Inc()
}

// RecordCascadeReset records a cascade reset.
func (r *Recorder) RecordCascadeReset(cascade string) {
	r.cascadeResets.WithLabelValues(cascade).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards every observation.
type Nop struct{}

func (Nop) RecordSignal(string, string)    {}
func (Nop) RecordRejection(string, string) {}
func (Nop) RecordDecision(string, string)  {}
func (Nop) RecordCascadeReset(string)      {}
func (Nop) RecordError(string)             {}
func (Nop) RecordLatency(string, float64)  {}
