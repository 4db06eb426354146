package service

import "time"

// MetricsService records operational metrics. The prometheus-backed
// implementation lives in internal/infrastructure/monitoring; a noop
// implementation backs tests.
type MetricsService interface {
	RecordIssue(principalID, result string, duration time.Duration)
	RecordRevocation(principalID string)
	RecordTaskExecution(action, result string, duration time.Duration)
	RecordSpendDenial(reason string)
	RecordReconciliationFault()
}

type noopMetrics struct{}

// NewNoopMetrics returns a MetricsService that records nothing.
func NewNoopMetrics() MetricsService {
	return noopMetrics{}
}

func (noopMetrics) RecordIssue(string, string, time.Duration)         {}
func (noopMetrics) RecordRevocation(string)                           {}
func (noopMetrics) RecordTaskExecution(string, string, time.Duration) {}
func (noopMetrics) RecordSpendDenial(string)                          {}
func (noopMetrics) RecordReconciliationFault()                        {}
