// Package resample wraps github.com/tphakala/go-audio-resampler behind a
// small streaming interface: construct once for an input/output rate
// pair, then feed it chunks of mono float64 samples as they arrive from
// the real-time capture or clap-decode paths.
package resample

import (
	"fmt"

	resampler "github.com/tphakala/go-audio-resampler"
)

// Resampler converts mono double-precision samples from an input rate
// to an output rate, retaining internal filter/warm-up state across
// Process calls (spec §4.2).
type Resampler struct {
	inputRate  int
	outputRate int
	impl       *resampler.Resampler
}

// New constructs a streaming resampler from inputRate to outputRate Hz.
// A unity ratio still routes through the filter so warm-up/flush latency
// behaves the same regardless of rate.
func New(inputRate, outputRate int) (*Resampler, error) {
	if inputRate <= 0 || outputRate <= 0 {
		return nil, fmt.Errorf("resample: rates must be positive, got %d -> %d", inputRate, outputRate)
	}
	impl, err := resampler.New(float64(outputRate) / float64(inputRate))
	if err != nil {
		return nil, fmt.Errorf("resample: constructing filter for %d -> %d: %w", inputRate, outputRate, err)
	}
	return &Resampler{inputRate: inputRate, outputRate: outputRate, impl: impl}, nil
}

// Process resamples input and returns a slice of approximately
// len(input) * outputRate / inputRate samples. The returned slice is
// owned by the caller; the Resampler does not retain it, only its
// internal filter state, across calls.
func (r *Resampler) Process(input []float64) []float64 {
	if len(input) == 0 {
		return nil
	}
	return r.impl.Process(input)
}

// Reset clears filter/warm-up state, as if freshly constructed.
func (r *Resampler) Reset() {
	r.impl.Reset()
}

// InputRate returns the configured input sample rate in Hz.
func (r *Resampler) InputRate() int { return r.inputRate }

// OutputRate returns the configured output sample rate in Hz.
func (r *Resampler) OutputRate() int { return r.outputRate }
