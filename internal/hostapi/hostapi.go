// Package hostapi defines the Go-native surface the driver facade
// exposes to a host application: the fixed driver identity, channel
// naming, the host-visible buffer layout, and the callback table a host
// registers with createBuffers.
package hostapi

import "github.com/trgk-audio/asio-wasapi-bridge/internal/rterrors"

// DriverName is the fixed, host-visible identity of this driver
// (spec §6). It is always ≤ 32 bytes.
const DriverName = "trgkASIO"

// DriverVersion is the fixed host-visible driver version (spec §6).
const DriverVersion = 1

// ClockSourceName is the single clock source this driver exposes.
const ClockSourceName = "Internal clock"

// ChannelNames is the fixed list channel names are drawn from (spec
// §6); channels beyond this list are named "Unknown".
var ChannelNames = []string{
	"Front left", "Front right", "Front center", "Low frequency",
	"Back left", "Back right", "Front left of center", "Front right of center",
	"Back center", "Side left", "Side right",
}

// ChannelName returns the fixed name for output channel index ch.
func ChannelName(ch int) string {
	if ch < 0 || ch >= len(ChannelNames) {
		return "Unknown"
	}
	return ChannelNames[ch]
}

// ChannelInfo mirrors the host-facing getChannelInfo response.
type ChannelInfo struct {
	Channel      int
	IsInput      bool
	Type         string // always "PCM32" for this driver: signed 32-bit little-endian PCM
	ChannelGroup int
	IsActive     bool
	Name         string
}

// SampleFormat is the host-visible channel sample format.
const SampleFormat = "PCM32"

// AudioBlock is one of PreparedState's two double-buffer slots: N
// independent planar channel vectors, all of length BlockSize.
type AudioBlock struct {
	Channels [][]int32
}

// NewAudioBlock allocates a zeroed AudioBlock of channelCount channels,
// each blockSize frames long.
func NewAudioBlock(channelCount, blockSize int) AudioBlock {
	b := AudioBlock{Channels: make([][]int32, channelCount)}
	for ch := range b.Channels {
		b.Channels[ch] = make([]int32, blockSize)
	}
	return b
}

// SamplePosition is the pair returned by getSamplePosition: a
// monotonic frame counter and the system time (nanoseconds since the
// Unix epoch) captured at the same bufferSwitch.
type SamplePosition struct {
	Samples        int64
	TimestampNanos int64
}

// Callbacks is the table a host registers via createBuffers. BufferSwitch
// is invoked once per processed block with the buffer index the host
// should now read from/write into, and whether the driver is currently
// inside its own processing stack ("direct process").
type Callbacks interface {
	BufferSwitch(bufferIndex int, directProcess bool)
	ResetRequest()
}

// BufferInfo is the per-channel descriptor written back to the host by
// createBuffers, pointing at both double-buffer slots for that channel.
type BufferInfo struct {
	Channel int
	IsInput bool
	Buffers [2][]int32
}

// Code re-exports the driver's error taxonomy for host-facing signatures.
type Code = rterrors.Code

const (
	OK                = rterrors.OK
	NotPresent        = rterrors.NotPresent
	InvalidParameter  = rterrors.InvalidParameter
	InvalidMode       = rterrors.InvalidMode
	NoClock           = rterrors.NoClock
	HWMalfunction     = rterrors.HWMalfunction
	FormatUnsupported = rterrors.FormatUnsupported
)
