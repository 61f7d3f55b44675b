package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"mlsgroup/internal/metrics"
)

func TestGroupMetrics_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewGroupMetrics(reg)

	m.ObserveOperation("commit", "", time.Millisecond)
	m.ObserveOperation("commit", "", time.Millisecond)
	m.ObserveOperation("commit", "protocol", time.Millisecond)
	m.IncReceived("application")
	m.IncEpochAdvance()

	n, err := testutil.GatherAndCount(reg, "group_operation_duration_seconds")
	assert.NoError(t, err)
	assert.Equal(t, 1, n, "one histogram series per operation label")
	n, err = testutil.GatherAndCount(reg, "group_operation_count")
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = testutil.GatherAndCount(reg, "group_failed_operation_count")
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = testutil.GatherAndCount(reg, "group_received_message_count", "group_epoch_advance_count")
	assert.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestGroupMetrics_NilIsNoop(t *testing.T) {
	var m *metrics.GroupMetrics
	m.ObserveOperation("commit", "", time.Second)
	m.IncReceived("commit")
	m.IncEpochAdvance()
	m.IncPoisoned()
}
