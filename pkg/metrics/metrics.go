// Package metrics exposes Prometheus instrumentation for policy validation
// and execution.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Dispatch branches.
const (
	BranchManagedCode = "managed_code"
	BranchManagedSQL  = "managed_sql"
	BranchCustomSQL   = "custom_sql"
	BranchDocument    = "document"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics records policy engine activity. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	executions         *prometheus.CounterVec
	executionDuration  *prometheus.HistogramVec
	violations         *prometheus.CounterVec
	validationFailures *prometheus.CounterVec
	cloudRetries       *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_executions_total",
				Help:      "Total number of policy executions by dispatch branch and outcome",
			},
			[]string{"branch", "outcome"},
		),
		executionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "policy_execution_duration_seconds",
				Help:      "Duration of policy executions in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"branch"},
		),
		violations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_violations_total",
				Help:      "Total number of violating resources reported",
			},
			[]string{"branch"},
		),
		validationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_validation_failures_total",
				Help:      "Total number of rejected policies and arguments by error code",
			},
			[]string{"code"},
		),
		cloudRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cloud_api_retries_total",
				Help:      "Total number of retried cloud API calls by reason",
			},
			[]string{"reason"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.executions, m.executionDuration, m.violations, m.validationFailures, m.cloudRetries,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return m, nil
}

// RecordExecution records one dispatch.
func (m *Metrics) RecordExecution(branch string, duration time.Duration, violations int, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	m.executions.WithLabelValues(branch, outcome).Inc()
	m.executionDuration.WithLabelValues(branch).Observe(duration.Seconds())
	if err == nil && violations > 0 {
		m.violations.WithLabelValues(branch).Add(float64(violations))
	}
}

// RecordValidationFailure records a rejected policy or argument set.
func (m *Metrics) RecordValidationFailure(code string) {
	if m == nil {
		return
	}
	m.validationFailures.WithLabelValues(code).Inc()
}

// RecordCloudRetry records a retried cloud API call ("throttled", "expired_token", "mfa").
func (m *Metrics) RecordCloudRetry(reason string) {
	if m == nil {
		return
	}
	m.cloudRetries.WithLabelValues(reason).Inc()
}
