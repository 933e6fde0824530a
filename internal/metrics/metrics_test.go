package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSinkUnderflowAndOverflow(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewDriverMetrics(reg)
	require.NoError(t, err)

	m.RecordSinkUnderflow("Speakers")
	m.RecordSinkUnderflow("Speakers")
	m.RecordSinkOverflow("Speakers")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.sinkUnderflows.WithLabelValues("Speakers")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.sinkOverflows.WithLabelValues("Speakers")))
}

func TestSetClapQueueDepth(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewDriverMetrics(reg)
	require.NoError(t, err)

	m.SetClapQueueDepth(5)
	assert.Equal(t, float64(5), testutil.ToFloat64(m.clapQueueDepth))

	m.SetClapQueueDepth(0)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.clapQueueDepth))
}

func TestRecordLoopbackDrop(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewDriverMetrics(reg)
	require.NoError(t, err)

	m.RecordLoopbackDrop()
	m.RecordLoopbackDrop()
	assert.Equal(t, float64(2), testutil.ToFloat64(m.loopbackDrops))
}

func TestDoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewDriverMetrics(reg)
	require.NoError(t, err)

	_, err = NewDriverMetrics(reg)
	assert.Error(t, err)
}
