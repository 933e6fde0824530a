package clap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDegradesGracefullyOnBadBlobs(t *testing.T) {
	r := New([][]byte{[]byte("garbage"), nil}, 48000)
	require.NotNil(t, r)
	assert.Equal(t, 0.0, r.GetMaxClapSoundLength())

	mix := make([]int32, 16)
	r.Render(mix, 0, 0, 1.0)
	for _, s := range mix {
		assert.Zero(t, s)
	}
}

func TestRenderOutOfRangeIndexIsNoop(t *testing.T) {
	r := &Renderer{waveforms: [][]float64{{1, 1, 1}}, maxLenSecs: 1}
	mix := make([]int32, 4)
	r.Render(mix, 0, 5, 1.0)
	for _, s := range mix {
		assert.Zero(t, s)
	}
}

func TestRenderMixesWithOffsetAndGain(t *testing.T) {
	r := &Renderer{waveforms: [][]float64{{1.0, 0.5, -1.0}}, maxLenSecs: 3.0 / 48000}
	mix := make([]int32, 5)

	// startFrameOffset = -2: sample 0 of the effect lands at output frame 2.
	r.Render(mix, -2, 0, 1.0)

	assert.Equal(t, int32(0), mix[0])
	assert.Equal(t, int32(0), mix[1])
	assert.Equal(t, int32(1<<23), mix[2])
	assert.Equal(t, int32(1<<22), mix[3])
	assert.Equal(t, int32(-1<<23), mix[4])
}

func TestRenderSkipsSamplesOutsideMixBounds(t *testing.T) {
	r := &Renderer{waveforms: [][]float64{{1, 1, 1, 1, 1}}, maxLenSecs: 1}
	mix := make([]int32, 2)

	// startFrameOffset = 3: effect sample 0 would land at frame -3, well
	// before the mix window; only in-bounds samples should be added.
	assert.NotPanics(t, func() {
		r.Render(mix, 3, 0, 1.0)
	})
}

func TestRenderAccumulatesAdditively(t *testing.T) {
	r := &Renderer{waveforms: [][]float64{{1.0}}, maxLenSecs: 1}
	mix := []int32{1000}
	r.Render(mix, 0, 0, 0.5)
	assert.Equal(t, int32(1000+1<<22), mix[0])
}
