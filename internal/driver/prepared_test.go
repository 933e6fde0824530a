package driver

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trgk-audio/asio-wasapi-bridge/internal/hostapi"
)

type fakeCallbacks struct {
	switches []int
}

func (f *fakeCallbacks) BufferSwitch(bufferIndex int, directProcess bool) {
	f.switches = append(f.switches, bufferIndex)
}
func (f *fakeCallbacks) ResetRequest() {}

func TestBufferSwitchAlternatesAndAdvancesSamplePosition(t *testing.T) {
	cb := &fakeCallbacks{}
	p := NewPreparedState(2, 64, 48000, cb, func(PreparedHandle) (*RunningState, error) {
		return nil, nil
	})

	prevTimestamp := int64(0)
	for i := 1; i <= 4; i++ {
		p.BufferSwitch(i%2, true)
		pos := p.GetSamplePosition()
		assert.Equal(t, int64(i)*64, pos.Samples)
		assert.GreaterOrEqual(t, pos.TimestampNanos, prevTimestamp)
		prevTimestamp = pos.TimestampNanos
	}
	assert.Equal(t, []int{1, 0, 1, 0}, cb.switches)
}

func TestStartIsIdempotentWhenAlreadyRunning(t *testing.T) {
	calls := 0
	p := NewPreparedState(1, 32, 48000, nil, func(PreparedHandle) (*RunningState, error) {
		calls++
		return &RunningState{}, nil
	})

	ok, err := p.Start()
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Start()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, calls)
}

func TestStartPropagatesConstructionFailure(t *testing.T) {
	p := NewPreparedState(1, 32, 48000, nil, func(PreparedHandle) (*RunningState, error) {
		return nil, errors.New("boom")
	})

	ok, err := p.Start()
	assert.False(t, ok)
	assert.Error(t, err)
	assert.False(t, p.IsRunning())
}

func TestBufferReturnsDistinctDoubleBufferSlots(t *testing.T) {
	p := NewPreparedState(1, 8, 48000, nil, nil)
	b0 := p.Buffer(0)
	b1 := p.Buffer(1)
	assert.Len(t, b0.Channels[0], 8)
	assert.Len(t, b1.Channels[0], 8)

	b0.Channels[0][0] = 42
	assert.NotEqual(t, b0.Channels[0][0], b1.Channels[0][0])
}

func TestOutputReadyIsNoopWithoutRunningState(t *testing.T) {
	p := NewPreparedState(1, 8, 48000, nil, nil)
	assert.NotPanics(t, func() {
		p.OutputReady()
	})
}

var _ hostapi.Callbacks = (*fakeCallbacks)(nil)
