// Package driver implements the real-time mix/compress/dispatch loop
// (RunningState), the double-buffered host handoff (PreparedState), and
// the host-facing state machine (Driver facade).
package driver

import "math"

// Soft-clip compressor constants, carried over bit-exact from the
// legacy 24-bit-headroom formulation (spec §9 open question: adopting
// the 24-bit-scaled sigmoid over the alternative numerically similar
// formulation present in the source).
const (
	overflowPreventer        = 5
	compressPadding    int32 = (1 << 19) - overflowPreventer
	compressionThresholdHigh = (1 << 23) - compressPadding - overflowPreventer
	compressionThresholdLow  = -compressionThresholdHigh
)

// compressSample soft-clips a 24-bit-headroom sample (mix[ch][i] as
// produced by processOneBlock, i.e. already right-shifted into 24-bit
// range) and restores a full 32-bit signed representation by shifting
// left 8 bits, exactly mirroring compress24bitTo32bit.
func compressSample(s int32) int32 {
	var o int32
	switch {
	case s > compressionThresholdHigh:
		overflow := float64(s - compressionThresholdHigh)
		o = compressionThresholdHigh + int32(math.Round(float64(compressPadding)*(2/(1+math.Exp(-overflow/float64(compressPadding)))-1)))
	case s < compressionThresholdLow:
		overflow := float64(s - compressionThresholdLow)
		o = compressionThresholdLow + int32(math.Round(float64(compressPadding)*(2/(1+math.Exp(-overflow/float64(compressPadding)))-1)))
	default:
		o = s
	}
	return o << 8
}

// compressBlock soft-clips every sample of every channel in place,
// replacing each 24-bit-headroom mix value with its 32-bit compressed
// counterpart.
func compressBlock(mix [][]int32) {
	for ch := range mix {
		channel := mix[ch]
		for i, s := range channel {
			channel[i] = compressSample(s)
		}
	}
}
