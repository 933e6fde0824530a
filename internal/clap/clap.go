// Package clap implements the clap-sound renderer: a fixed list of short
// WAV effects decoded once at construction and additively mixed into an
// output block on demand (spec §4.3).
package clap

import (
	"math"

	"github.com/trgk-audio/asio-wasapi-bridge/internal/dlog"
	"github.com/trgk-audio/asio-wasapi-bridge/internal/resample"
	"github.com/trgk-audio/asio-wasapi-bridge/internal/wavfile"
)

// Renderer holds the resampled waveforms of every configured clap
// effect. Construction never fails: a blob that cannot be decoded is
// dropped and logged, and a Renderer with no usable effects degrades to
// a no-op.
type Renderer struct {
	waveforms  [][]float64
	maxLenSecs float64
}

// New decodes each WAV blob in blobs, resampling it once to
// targetSampleRate. Blobs that are not mono 16-bit PCM are skipped with
// a logged warning rather than failing construction.
func New(blobs [][]byte, targetSampleRate int) *Renderer {
	log := dlog.For("clap")
	r := &Renderer{}

	for i, blob := range blobs {
		samples, nativeRate, err := wavfile.DecodeMono16(blob)
		if err != nil {
			log.Warn("dropping unusable clap sound", "index", i, "error", err)
			continue
		}

		waveform := samples
		if nativeRate != targetSampleRate {
			rs, err := resample.New(nativeRate, targetSampleRate)
			if err != nil {
				log.Warn("dropping clap sound: cannot build resampler", "index", i, "error", err)
				continue
			}
			waveform = rs.Process(samples)
		}

		r.waveforms = append(r.waveforms, waveform)
		length := float64(len(waveform)) / float64(targetSampleRate)
		if length > r.maxLenSecs {
			r.maxLenSecs = length
		}
	}

	if len(r.waveforms) == 0 {
		log.Warn("clap renderer has no usable sounds; clap playback is a no-op")
	}
	return r
}

// GetMaxClapSoundLength returns the duration in seconds of the longest
// stored waveform, or 0 if none loaded.
func (r *Renderer) GetMaxClapSoundLength() float64 {
	return r.maxLenSecs
}

// Render additively mixes effect index into mix so that sample 0 of the
// effect lands at output frame -startFrameOffset. Samples outside mix
// are silently skipped. Each added sample is round(effectSample * gain *
// 2^23); clipping is left to the running-state compressor.
func (r *Renderer) Render(mix []int32, startFrameOffset int, index int, gain float64) {
	if len(r.waveforms) == 0 {
		return
	}
	if index < 0 || index >= len(r.waveforms) {
		dlog.For("clap").Warn("render called with out-of-range index", "index", index, "count", len(r.waveforms))
		return
	}

	samples := r.waveforms[index]
	start := 0
	if -startFrameOffset > 0 {
		start = -startFrameOffset
	}
	for i := start; i < len(mix); i++ {
		inPos := i + startFrameOffset
		if inPos < 0 {
			continue
		}
		if inPos >= len(samples) {
			break
		}
		mix[i] += int32(math.Round(samples[inPos] * gain * (1 << 23)))
	}
}
