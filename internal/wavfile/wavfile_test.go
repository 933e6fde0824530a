package wavfile

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildMono16WAV hand-assembles a minimal canonical RIFF/WAVE file with a
// single mono 16-bit PCM data chunk, so the decode test has no
// dependency on an encoder's behavior.
func buildMono16WAV(t *testing.T, sampleRate int, samples []int16) []byte {
	t.Helper()

	var data bytes.Buffer
	for _, s := range samples {
		require.NoError(t, binary.Write(&data, binary.LittleEndian, s))
	}

	const (
		numChannels   = 1
		bitsPerSample = 16
	)
	byteRate := sampleRate * numChannels * bitsPerSample / 8
	blockAlign := numChannels * bitsPerSample / 8

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+data.Len()))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(numChannels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(data.Len()))
	buf.Write(data.Bytes())

	return buf.Bytes()
}

func TestDecodeMono16RoundTrip(t *testing.T) {
	blob := buildMono16WAV(t, 44100, []int16{0, 16384, -16384, 32767, -32768})

	samples, rate, err := DecodeMono16(blob)
	require.NoError(t, err)
	assert.Equal(t, 44100, rate)
	require.Len(t, samples, 5)
	assert.InDelta(t, 0.0, samples[0], 1e-9)
	assert.InDelta(t, 0.5, samples[1], 1e-4)
	assert.InDelta(t, -0.5, samples[2], 1e-4)
	assert.InDelta(t, 1.0, samples[3], 1e-4)
	assert.InDelta(t, -1.0, samples[4], 1e-4)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, _, err := DecodeMono16([]byte("not a wav file"))
	assert.Error(t, err)
}
