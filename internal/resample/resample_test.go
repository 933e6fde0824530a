package resample

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsNonPositiveRates(t *testing.T) {
	_, err := New(0, 48000)
	assert.Error(t, err)

	_, err = New(48000, -1)
	assert.Error(t, err)
}

func TestProcessOfEmptyInputReturnsEmpty(t *testing.T) {
	r, err := New(44100, 48000)
	require.NoError(t, err)
	assert.Empty(t, r.Process(nil))
	assert.Empty(t, r.Process([]float64{}))
}

func TestProcessScalesLengthByRateRatio(t *testing.T) {
	r, err := New(44100, 48000)
	require.NoError(t, err)

	input := make([]float64, 4410)
	out := r.Process(input)

	// Warm-up/flush latency means the exact length varies; it should be
	// in the right neighborhood of n * Ro/Ri.
	expected := len(input) * 48000 / 44100
	assert.InDelta(t, expected, len(out), float64(expected)/4+64)
}

func TestResetClearsState(t *testing.T) {
	r, err := New(22050, 44100)
	require.NoError(t, err)

	_ = r.Process(make([]float64, 512))
	r.Reset()
	assert.NotPanics(t, func() {
		_ = r.Process(make([]float64, 512))
	})
}
