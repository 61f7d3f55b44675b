package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// GroupMetrics counts group session activity. Labels never carry group ids
// or member identities.
type GroupMetrics struct {
	operationCount    *prometheus.CounterVec
	failedOperations  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	receivedMessages  *prometheus.CounterVec
	epochAdvances     prometheus.Counter
	poisonedSessions  prometheus.Counter
}

// NewGroupMetrics registers the group session collectors with registerer.
func NewGroupMetrics(registerer prometheus.Registerer) *GroupMetrics {
	m := GroupMetrics{
		operationCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "group_operation_count",
				Help: "Number of group session operations that completed",
			},
			[]string{"operation"},
		),
		failedOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "group_failed_operation_count",
				Help: "Number of group session operations that returned an error",
			},
			[]string{"operation", "error_kind"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "group_operation_duration_seconds",
				Help:    "Time spent holding the session lock per operation",
				Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
			},
			[]string{"operation"},
		),
		receivedMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "group_received_message_count",
				Help: "Number of inbound messages processed, by result variant",
			},
			[]string{"variant"},
		),
		epochAdvances: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "group_epoch_advance_count",
				Help: "Number of epoch transitions applied by local sessions",
			},
		),
		poisonedSessions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "group_poisoned_session_count",
				Help: "Number of sessions poisoned by a panicking collaborator",
			},
		),
	}

	registerer.MustRegister(m.operationCount)
	registerer.MustRegister(m.failedOperations)
	registerer.MustRegister(m.operationDuration)
	registerer.MustRegister(m.receivedMessages)
	registerer.MustRegister(m.epochAdvances)
	registerer.MustRegister(m.poisonedSessions)

	return &m
}

// ObserveOperation records one finished operation. errorKind is empty on
// success.
func (m *GroupMetrics) ObserveOperation(operation, errorKind string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.operationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
	if errorKind != "" {
		m.failedOperations.WithLabelValues(operation, errorKind).Inc()
		return
	}
	m.operationCount.WithLabelValues(operation).Inc()
}

func (m *GroupMetrics) IncReceived(variant string) {
	if m == nil {
		return
	}
	m.receivedMessages.WithLabelValues(variant).Inc()
}

func (m *GroupMetrics) IncEpochAdvance() {
	if m == nil {
		return
	}
	m.epochAdvances.Inc()
}

func (m *GroupMetrics) IncPoisoned() {
	if m == nil {
		return
	}
	m.poisonedSessions.Inc()
}
