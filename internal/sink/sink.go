// Package sink implements OutputSink (spec §4.6): one system audio
// endpoint driven by malgo, fed from per-channel ring buffers that the
// real-time poll loop pushes whole blocks into.
package sink

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/google/uuid"

	"github.com/trgk-audio/asio-wasapi-bridge/internal/dlog"
	"github.com/trgk-audio/asio-wasapi-bridge/internal/metrics"
	"github.com/trgk-audio/asio-wasapi-bridge/internal/ring"
	"github.com/trgk-audio/asio-wasapi-bridge/internal/rterrors"
)

// Mode selects exclusive vs shared endpoint activation.
type Mode int

const (
	Exclusive Mode = iota
	Shared
)

// waveFormat is the result of negotiating a format with the endpoint:
// container bit depth, valid bits within the container, and the malgo
// format constant that implements it.
type waveFormat struct {
	containerBits int
	validBits     int
	malgoFormat   malgo.FormatType
}

// candidateFormats are tried in order (spec §4.6 step 1): 32/32, 32/24,
// then 16-bit. malgo's sample formats are always fully "valid" within
// their container, so the 32/24 candidate only differs from 32/32 in
// the bit depth this sink reports to callers for scaling purposes; the
// wire format malgo negotiates is still 32-bit.
var candidateFormats = []waveFormat{
	{32, 32, malgo.FormatS32},
	{32, 24, malgo.FormatS32},
	{16, 16, malgo.FormatS16},
}

// Sink owns one endpoint: ring buffers feeding a malgo playback device
// whose data callback drains them in real time.
type Sink struct {
	instanceID uuid.UUID
	endpointID string
	format     waveFormat
	channels   int
	inputSize  int
	outputSize int
	mode       Mode

	rings []*ring.Buffer[int32]

	ctx    *malgo.AllocatedContext
	device *malgo.Device

	metrics *metrics.DriverMetrics

	mu sync.Mutex
}

// Config bundles OutputSink construction parameters (spec §4.6).
type Config struct {
	EndpointID      string
	ChannelCount    int
	CoreSampleRate  int
	InputBufferSize int
	Mode            Mode
	Multiplier      int
	BufferDuration  float64 // seconds; 0 means endpoint-default (shared mode)
	Metrics         *metrics.DriverMetrics
}

// New negotiates a format with the endpoint, allocates ring buffers,
// and starts the render thread (malgo's own callback thread). It
// returns a *rterrors.DriverError with a taxonomy code on any
// construction failure, per spec §4.6/§9.
func New(cfg Config) (*Sink, error) {
	instanceID := uuid.New()
	log := dlog.For("sink").With("endpoint", cfg.EndpointID, "instance", instanceID)

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		log.Debug("malgo", "message", message)
	})
	if err != nil {
		return nil, rterrors.New(err).Component("sink").WithCode(rterrors.HWMalfunction).
			Context("endpoint", cfg.EndpointID).Build()
	}

	s := &Sink{
		instanceID: instanceID,
		endpointID: cfg.EndpointID,
		channels:   cfg.ChannelCount,
		inputSize:  cfg.InputBufferSize,
		mode:       cfg.Mode,
		ctx:        ctx,
		metrics:    cfg.Metrics,
	}

	format, device, outputSize, err := negotiateFormat(ctx, cfg, s.onData)
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return nil, rterrors.New(err).Component("sink").WithCode(rterrors.FormatUnsupported).
			Context("endpoint", cfg.EndpointID).Build()
	}
	s.format = format
	s.device = device
	s.outputSize = outputSize

	capacity := (cfg.InputBufferSize + outputSize) * cfg.Multiplier
	s.rings = make([]*ring.Buffer[int32], cfg.ChannelCount)
	for ch := range s.rings {
		s.rings[ch] = ring.New[int32](capacity)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		ctx.Uninit()
		ctx.Free()
		return nil, rterrors.New(err).Component("sink").WithCode(rterrors.HWMalfunction).
			Context("endpoint", cfg.EndpointID).Build()
	}

	log.Debug("sink initialized", "mode", cfg.Mode, "format", format, "output_buffer_size", outputSize)
	return s, nil
}

// deviceOpenFunc activates one malgo playback device for a fully-built
// device config. Production code routes it straight to malgo.InitDevice;
// tests substitute a fake to drive the format-fallback and buffer-size
// alignment retry paths without real hardware.
type deviceOpenFunc func(ctx *malgo.AllocatedContext, deviceConfig malgo.DeviceConfig, callbacks malgo.DeviceCallbacks) (*malgo.Device, error)

var openDevice deviceOpenFunc = func(ctx *malgo.AllocatedContext, deviceConfig malgo.DeviceConfig, callbacks malgo.DeviceCallbacks) (*malgo.Device, error) {
	return malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
}

// bufferSizeNotAlignedError mirrors WASAPI's AUDCLNT_E_BUFFER_SIZE_NOT_ALIGNED
// (spec §4.6 step 2): the endpoint rejected the requested period size and
// reports the frame count it would accept instead.
type bufferSizeNotAlignedError struct {
	alignedFrames uint32
}

func (e *bufferSizeNotAlignedError) Error() string {
	return fmt.Sprintf("buffer size not aligned, endpoint wants %d frames", e.alignedFrames)
}

// negotiateFormat tries each candidate in the documented 32/32 -> 32/24 ->
// 16-bit order (spec §4.6 step 1), attempting real device activation for
// every one and falling back to the next candidate on rejection, mirroring
// createIAudioClient.cpp's FindStreamFormat. FormatUnsupported is returned
// to the caller only once every candidate has been tried and rejected.
func negotiateFormat(ctx *malgo.AllocatedContext, cfg Config, onData malgo.DataProc) (waveFormat, *malgo.Device, int, error) {
	if len(candidateFormats) == 0 {
		return waveFormat{}, nil, 0, fmt.Errorf("sink: no candidate wave format for endpoint %s", cfg.EndpointID)
	}

	var lastErr error
	for _, format := range candidateFormats {
		device, outputSize, err := initDevice(ctx, cfg, format, onData)
		if err == nil {
			return format, device, outputSize, nil
		}
		lastErr = err
		dlog.For("sink").Debug("candidate format rejected by endpoint", "endpoint", cfg.EndpointID,
			"container_bits", format.containerBits, "valid_bits", format.validBits, "error", err)
	}
	return waveFormat{}, nil, 0, fmt.Errorf("sink: no candidate wave format accepted by endpoint %s: %w", cfg.EndpointID, lastErr)
}

// initDevice activates one candidate format, retrying once with the
// endpoint-reported aligned frame count if the first attempt reports
// misalignment (spec §4.6 step 2), mirroring createIAudioClient.cpp's
// AUDCLNT_E_BUFFER_SIZE_NOT_ALIGNED handling.
func initDevice(ctx *malgo.AllocatedContext, cfg Config, format waveFormat, onData malgo.DataProc) (*malgo.Device, int, error) {
	periodFrames := uint32(0)
	if cfg.BufferDuration > 0 {
		periodFrames = uint32(cfg.BufferDuration * float64(cfg.CoreSampleRate))
	}

	device, err := activate(ctx, cfg, format, periodFrames, onData)

	var alignErr *bufferSizeNotAlignedError
	if errors.As(err, &alignErr) {
		periodFrames = alignErr.alignedFrames
		device, err = activate(ctx, cfg, format, periodFrames, onData)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("initializing playback device: %w", err)
	}

	outputSize := int(periodFrames)
	if outputSize == 0 {
		outputSize = cfg.InputBufferSize
	}
	return device, outputSize, nil
}

func activate(ctx *malgo.AllocatedContext, cfg Config, format waveFormat, periodFrames uint32, onData malgo.DataProc) (*malgo.Device, error) {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = format.malgoFormat
	deviceConfig.Playback.Channels = uint32(cfg.ChannelCount)
	deviceConfig.SampleRate = uint32(cfg.CoreSampleRate)
	if cfg.Mode == Exclusive {
		deviceConfig.Playback.ShareMode = malgo.Exclusive
	} else {
		deviceConfig.Playback.ShareMode = malgo.Shared
	}
	if periodFrames > 0 {
		deviceConfig.PeriodSizeInFrames = periodFrames
	}
	// Endpoint selection by name/id is resolved by the caller via
	// device enumeration before reaching this constructor; a concrete
	// deviceConfig.Playback.DeviceID would be threaded in there.

	callbacks := malgo.DeviceCallbacks{Data: onData}
	return openDevice(ctx, deviceConfig, callbacks)
}

// PushSamples validates shape and pushes one block's worth of frames
// into every channel ring in lockstep; if any channel would overflow,
// the whole push is aborted and logged (spec §4.6).
func (s *Sink) PushSamples(planar [][]int32) bool {
	if len(planar) != s.channels {
		dlog.For("sink").Error("pushSamples channel count mismatch", "endpoint", s.endpointID, "got", len(planar), "want", s.channels)
		return false
	}
	for ch, data := range planar {
		if len(data) != s.inputSize {
			dlog.For("sink").Error("pushSamples frame count mismatch", "endpoint", s.endpointID, "channel", ch, "got", len(data), "want", s.inputSize)
			return false
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for ch, data := range planar {
		if !s.rings[ch].Push(data) {
			if s.metrics != nil {
				s.metrics.RecordSinkOverflow(s.endpointID)
			}
			dlog.For("sink").Warn("ring overflow, dropping block", "endpoint", s.endpointID, "channel", ch)
			return false
		}
	}
	return true
}

// onData is malgo's per-invocation render callback. framecount is
// already padding-aware in shared mode (miniaudio queries and
// subtracts padding internally), collapsing the manual
// wait-on-event/query-padding sequence the spec describes for a native
// WASAPI implementation into this single callback invocation.
func (s *Sink) onData(output, _ []byte, framecount uint32) {
	writeSize := int(framecount)

	s.mu.Lock()
	defer s.mu.Unlock()

	scratch := make([][]int32, s.channels)
	underflow := false
	for ch := range scratch {
		scratch[ch] = make([]int32, writeSize)
		if !s.rings[ch].Get(scratch[ch], writeSize) {
			underflow = true
		}
	}
	if underflow {
		if s.metrics != nil {
			s.metrics.RecordSinkUnderflow(s.endpointID)
		}
		dlog.For("sink").Warn("underflow, emitting silence", "endpoint", s.endpointID, "write_size", writeSize)
		for i := range output {
			output[i] = 0
		}
		return
	}

	interleave(output, scratch, s.format.containerBits)
}

func interleave(output []byte, planar [][]int32, containerBits int) {
	channels := len(planar)
	frames := 0
	if channels > 0 {
		frames = len(planar[0])
	}
	bytesPerSample := containerBits / 8

	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			sample := planar[ch][i]
			var raw uint32
			if containerBits == 16 {
				raw = uint32(uint16(sample >> 16))
			} else {
				raw = uint32(sample)
			}
			off := (i*channels + ch) * bytesPerSample
			for b := 0; b < bytesPerSample; b++ {
				output[off+b] = byte(raw >> (8 * b))
			}
		}
	}
}

// Close signals the render thread to stop and releases the endpoint.
func (s *Sink) Close() error {
	if s.device != nil {
		if err := s.device.Stop(); err != nil {
			dlog.For("sink").Warn("error stopping device", "endpoint", s.endpointID, "error", err)
		}
		s.device.Uninit()
	}
	if s.ctx != nil {
		s.ctx.Uninit()
		s.ctx.Free()
	}
	return nil
}

// EndpointID returns the identifier this sink was constructed with.
func (s *Sink) EndpointID() string { return s.endpointID }

// OutputBufferSize returns the negotiated output buffer size in frames.
func (s *Sink) OutputBufferSize() int { return s.outputSize }
