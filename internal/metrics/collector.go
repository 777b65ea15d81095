// Package metrics provides the execution core's Prometheus collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the core's metric families: skill dispatch, sandbox
// executions, policy rejections, and lane contention.
type Collector struct {
	skillInvocations  *prometheus.CounterVec
	skillDuration     *prometheus.HistogramVec
	sandboxExecutions *prometheus.CounterVec
	sandboxDuration   *prometheus.HistogramVec
	policyViolations  *prometheus.CounterVec
	laneWaitSeconds   prometheus.Histogram
	workflowRuns      *prometheus.CounterVec
}

// NewCollector registers the metric families on reg. Pass a fresh
// registry in tests to avoid duplicate-registration panics.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		skillInvocations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skill_invocations_total",
			Help:      "Total number of skill invocations",
		}, []string{"skill", "status"}),
		skillDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "skill_duration_seconds",
			Help:      "Skill execution duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"skill"}),
		sandboxExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sandbox_executions_total",
			Help:      "Total number of sandbox executions",
		}, []string{"language", "backend", "status"}),
		sandboxDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sandbox_duration_seconds",
			Help:      "Sandbox execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"language"}),
		policyViolations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_violations_total",
			Help:      "Total number of static policy rejections",
		}, []string{"language"}),
		laneWaitSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lane_wait_seconds",
			Help:      "Time spent waiting for the per-session lane",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30},
		}),
		workflowRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_runs_total",
			Help:      "Total number of workflow executions",
		}, []string{"status"}),
	}
}

// ObserveSkill records one skill invocation.
func (c *Collector) ObserveSkill(skill string, success bool, duration time.Duration) {
	c.skillInvocations.WithLabelValues(skill, statusLabel(success)).Inc()
	c.skillDuration.WithLabelValues(skill).Observe(duration.Seconds())
}

// ObserveSandbox records one sandbox execution.
func (c *Collector) ObserveSandbox(language, backend string, success bool, duration time.Duration) {
	c.sandboxExecutions.WithLabelValues(language, backend, statusLabel(success)).Inc()
	c.sandboxDuration.WithLabelValues(language).Observe(duration.Seconds())
}

// IncPolicyViolation records one static policy rejection.
func (c *Collector) IncPolicyViolation(language string) {
	c.policyViolations.WithLabelValues(language).Inc()
}

// ObserveLaneWait records time spent waiting to enter a session lane.
func (c *Collector) ObserveLaneWait(wait time.Duration) {
	c.laneWaitSeconds.Observe(wait.Seconds())
}

// ObserveWorkflow records one workflow run.
func (c *Collector) ObserveWorkflow(success bool) {
	c.workflowRuns.WithLabelValues(statusLabel(success)).Inc()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
