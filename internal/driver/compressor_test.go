package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompressSamplePassesThroughBelowThreshold(t *testing.T) {
	for _, s := range []int32{0, 1000, -1000, compressionThresholdHigh, compressionThresholdLow} {
		assert.Equal(t, s<<8, compressSample(s))
	}
}

func TestCompressSampleClampsAboveThreshold(t *testing.T) {
	s := compressionThresholdHigh + 1000
	out := compressSample(s)

	assert.Greater(t, out, compressionThresholdHigh<<8)
	assert.Less(t, out, int32(1<<31-1))
}

func TestCompressSampleClampsBelowThreshold(t *testing.T) {
	s := compressionThresholdLow - 1000
	out := compressSample(s)

	assert.Less(t, out, compressionThresholdLow<<8)
	assert.Greater(t, out, int32(-1<<31))
}

func TestCompressSampleIsMonotonic(t *testing.T) {
	prev := compressSample(compressionThresholdHigh + 1)
	for s := compressionThresholdHigh + 1001; s < compressionThresholdHigh+200000; s += 1000 {
		out := compressSample(s)
		assert.Greater(t, out, prev, "compressor must be strictly monotonic in the compression region")
		prev = out
	}
}

func TestCompressSampleIsOddSymmetric(t *testing.T) {
	for _, s := range []int32{100, compressionThresholdHigh + 500, compressionThresholdHigh + 50000} {
		assert.Equal(t, compressSample(s), -compressSample(-s))
	}
}

func TestCompressBlockAppliesPerChannel(t *testing.T) {
	mix := [][]int32{{0, 100}, {-100, compressionThresholdHigh + 1000}}
	compressBlock(mix)

	assert.Equal(t, int32(0), mix[0][0])
	assert.Equal(t, int32(100<<8), mix[0][1])
	assert.Equal(t, int32(-100<<8), mix[1][0])
	assert.Less(t, mix[1][1], int32(1<<31-1))
}
