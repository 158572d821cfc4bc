// Package metrics exposes the engine's Prometheus instrumentation: step
// and workflow counters and duration histograms, scraped over HTTP by
// whatever process hosts the remote event server (internal/server).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder wraps the Prometheus collectors the executor and runner report
// into. It is safe to share across concurrent workflow runs.
type Recorder struct {
	stepsTotal     *prometheus.CounterVec
	stepDuration   *prometheus.HistogramVec
	workflowsTotal *prometheus.CounterVec
	workflowDuration prometheus.Histogram
}

// NewRecorder registers the collectors on reg and returns a bound
// Recorder. Pass prometheus.NewRegistry() for an isolated registry, or
// prometheus.DefaultRegisterer to expose on the process-wide /metrics
// endpoint.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		stepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "laq",
			Name:      "steps_total",
			Help:      "Total steps executed, by step type and outcome.",
		}, []string{"type", "outcome"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "laq",
			Name:      "step_duration_seconds",
			Help:      "Step execution duration in seconds, by step type.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		workflowsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "laq",
			Name:      "workflows_total",
			Help:      "Total workflow runs, by outcome.",
		}, []string{"outcome"}),
		workflowDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "laq",
			Name:      "workflow_duration_seconds",
			Help:      "Workflow run duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(r.stepsTotal, r.stepDuration, r.workflowsTotal, r.workflowDuration)
	return r
}

// ObserveStep records one step's outcome and duration.
func (r *Recorder) ObserveStep(stepType string, success bool, d time.Duration) {
	if r == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	r.stepsTotal.WithLabelValues(stepType, outcome).Inc()
	r.stepDuration.WithLabelValues(stepType).Observe(d.Seconds())
}

// ObserveWorkflow records one workflow run's outcome and duration.
func (r *Recorder) ObserveWorkflow(success bool, d time.Duration) {
	if r == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	r.workflowsTotal.WithLabelValues(outcome).Inc()
	r.workflowDuration.Observe(d.Seconds())
}
