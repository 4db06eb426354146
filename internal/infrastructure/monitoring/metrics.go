package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bitizen-labs/sessiond/internal/domain/service"
)

// PrometheusMetrics implements MetricsService on prometheus collectors.
type PrometheusMetrics struct {
	issueTotal        *prometheus.CounterVec
	issueDuration     *prometheus.HistogramVec
	revocationTotal   *prometheus.CounterVec
	taskTotal         *prometheus.CounterVec
	taskDuration      *prometheus.HistogramVec
	spendDenialTotal  *prometheus.CounterVec
	reconcileFaults   prometheus.Counter
}

// NewPrometheusMetrics registers the service collectors on the given
// registerer (pass prometheus.DefaultRegisterer in main).
func NewPrometheusMetrics(reg prometheus.Registerer) service.MetricsService {
	factory := promauto.With(reg)
	return &PrometheusMetrics{
		issueTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessiond",
			Name:      "session_issue_total",
			Help:      "Session issuance attempts by result.",
		}, []string{"result"}),
		issueDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sessiond",
			Name:      "session_issue_duration_seconds",
			Help:      "Session issuance latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
		revocationTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessiond",
			Name:      "session_revocation_total",
			Help:      "Effective session revocations.",
		}, []string{"principal"}),
		taskTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessiond",
			Name:      "task_execution_total",
			Help:      "Delegated task gate outcomes by action and result.",
		}, []string{"action", "result"}),
		taskDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sessiond",
			Name:      "task_execution_duration_seconds",
			Help:      "End-to-end gate latency including settlement.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"action", "result"}),
		spendDenialTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessiond",
			Name:      "spend_denial_total",
			Help:      "Spend-limit denials by reason.",
		}, []string{"reason"}),
		reconcileFaults: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sessiond",
			Name:      "reconciliation_fault_total",
			Help:      "Executions whose usage could not be recorded. Alert on any increase.",
		}),
	}
}

func (m *PrometheusMetrics) RecordIssue(_, result string, duration time.Duration) {
	m.issueTotal.WithLabelValues(result).Inc()
	m.issueDuration.WithLabelValues(result).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordRevocation(principalID string) {
	m.revocationTotal.WithLabelValues(principalID).Inc()
}

func (m *PrometheusMetrics) RecordTaskExecution(action, result string, duration time.Duration) {
	m.taskTotal.WithLabelValues(action, result).Inc()
	m.taskDuration.WithLabelValues(action, result).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordSpendDenial(reason string) {
	m.spendDenialTotal.WithLabelValues(reason).Inc()
}

func (m *PrometheusMetrics) RecordReconciliationFault() {
	m.reconcileFaults.Inc()
}
