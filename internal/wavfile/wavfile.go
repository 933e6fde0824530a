// Package wavfile decodes short mono 16-bit PCM WAV blobs into
// normalized double-precision sample vectors, in the style of the
// teacher's readAudioData helper but restricted to the single format
// ClapRenderer accepts (spec §4.3).
package wavfile

import (
	"bytes"
	"fmt"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// DecodeMono16 parses a RIFF/WAVE blob, rejecting anything that is not
// mono 16-bit PCM, and returns the samples normalized to [-1, 1] doubles
// plus the file's native sample rate.
func DecodeMono16(blob []byte) ([]float64, int, error) {
	decoder := wav.NewDecoder(bytes.NewReader(blob))
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return nil, 0, fmt.Errorf("wavfile: not a valid WAV file")
	}
	if decoder.NumChans != 1 {
		return nil, 0, fmt.Errorf("wavfile: expected mono, got %d channels", decoder.NumChans)
	}
	if decoder.BitDepth != 16 {
		return nil, 0, fmt.Errorf("wavfile: expected 16-bit PCM, got %d-bit", decoder.BitDepth)
	}

	sampleRate := int(decoder.SampleRate)
	buf := &audio.IntBuffer{
		Data:   make([]int, 4096),
		Format: &audio.Format{SampleRate: sampleRate, NumChannels: 1},
	}

	const divisor = 32768.0
	var out []float64
	for {
		n, err := decoder.PCMBuffer(buf)
		if err != nil {
			return nil, 0, fmt.Errorf("wavfile: decoding PCM data: %w", err)
		}
		if n == 0 {
			break
		}
		for _, sample := range buf.Data[:n] {
			out = append(out, float64(sample)/divisor)
		}
	}
	return out, sampleRate, nil
}
