// Package loopback implements LoopbackSource (spec §4.5): a capture
// endpoint running in loopback mode, fed through a fetch thread that
// resamples native packets per-channel into ring buffers the real-time
// poll loop drains, plus an optional volume-sync thread that mirrors
// the original default output's volume while the loopback source
// pretends to be the new default.
package loopback

import (
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/smallnest/ringbuffer"

	"github.com/trgk-audio/asio-wasapi-bridge/internal/dlog"
	"github.com/trgk-audio/asio-wasapi-bridge/internal/metrics"
	"github.com/trgk-audio/asio-wasapi-bridge/internal/resample"
	ringpkg "github.com/trgk-audio/asio-wasapi-bridge/internal/ring"
)

// VolumeController abstracts the System Audio API's per-endpoint
// master-volume surface (get/set volume, get/set mute, get/set default
// output). No Go ecosystem package in this driver's dependency set
// exposes the Windows IAudioEndpointVolume/IPolicyConfig COM surface,
// so the default implementation is a logging no-op; a real deployment
// plugs in a COM-backed implementation behind this same interface.
type VolumeController interface {
	DefaultOutputID() (string, error)
	SetDefaultOutput(endpointID string) error
	Volume(endpointID string) (float64, error)
	SetVolume(endpointID string, level float64) error
	SetMuted(endpointID string, muted bool) error
}

// NopVolumeController logs every call and reports a stable fake state;
// it never touches the operating system.
type NopVolumeController struct{}

func (NopVolumeController) DefaultOutputID() (string, error) { return "(default device)", nil }
func (NopVolumeController) SetDefaultOutput(endpointID string) error {
	dlog.For("loopback").Info("SetDefaultOutput (nop)", "endpoint", endpointID)
	return nil
}
func (NopVolumeController) Volume(endpointID string) (float64, error) { return 1.0, nil }
func (NopVolumeController) SetVolume(endpointID string, level float64) error {
	dlog.For("loopback").Info("SetVolume (nop)", "endpoint", endpointID, "level", level)
	return nil
}
func (NopVolumeController) SetMuted(endpointID string, muted bool) error {
	dlog.For("loopback").Info("SetMuted (nop)", "endpoint", endpointID, "muted", muted)
	return nil
}

// Config bundles LoopbackSource construction parameters.
type Config struct {
	EndpointID       string
	ChannelCount     int
	CoreSampleRate   int
	EndpointBufSize  int
	Intercept        bool
	VolumeController VolumeController
	Metrics          *metrics.DriverMetrics
}

// Source captures another endpoint via loopback and exposes resampled,
// per-channel ring-buffered audio for the poll loop to drain.
type Source struct {
	cfg        Config
	rings      []*ringpkg.Buffer[float64]
	resamplers []*resample.Resampler
	rawPackets *ringbuffer.RingBuffer

	ctx    *malgo.AllocatedContext
	device *malgo.Device

	previousDefault string
	previousVolume  float64

	stop chan struct{}
	wg   sync.WaitGroup

	mu sync.Mutex
}

// New constructs and starts a LoopbackSource. If cfg.Intercept is set,
// it records the current default output, installs itself as default,
// and mutes the source endpoint with its volume shadowed from the
// original default's volume.
func New(cfg Config) (*Source, error) {
	log := dlog.For("loopback").With("endpoint", cfg.EndpointID)
	if cfg.VolumeController == nil {
		cfg.VolumeController = NopVolumeController{}
	}

	s := &Source{
		cfg:        cfg,
		rings:      make([]*ringpkg.Buffer[float64], cfg.ChannelCount),
		resamplers: make([]*resample.Resampler, cfg.ChannelCount),
		rawPackets: ringbuffer.New(cfg.EndpointBufSize * cfg.ChannelCount * 4 * 8),
		stop:       make(chan struct{}),
	}
	ringCapacity := 2 * cfg.EndpointBufSize
	for ch := range s.rings {
		s.rings[ch] = ringpkg.New[float64](ringCapacity)
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		log.Debug("malgo", "message", message)
	})
	if err != nil {
		return nil, err
	}
	s.ctx = ctx

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Loopback)
	deviceConfig.Capture.Format = malgo.FormatS32
	deviceConfig.Capture.Channels = uint32(cfg.ChannelCount)
	deviceConfig.PeriodSizeInFrames = uint32(cfg.EndpointBufSize)

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: s.onCapture,
	})
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return nil, err
	}
	s.device = device

	for ch := range s.resamplers {
		rs, err := resample.New(int(device.SampleRate()), cfg.CoreSampleRate)
		if err != nil {
			device.Uninit()
			ctx.Uninit()
			ctx.Free()
			return nil, err
		}
		s.resamplers[ch] = rs
	}

	if cfg.Intercept {
		prevID, err := cfg.VolumeController.DefaultOutputID()
		if err != nil {
			log.Warn("could not read previous default output; skipping intercept", "error", err)
		} else {
			s.previousDefault = prevID
			s.previousVolume, _ = cfg.VolumeController.Volume(prevID)
			_ = cfg.VolumeController.SetDefaultOutput(cfg.EndpointID)
			_ = cfg.VolumeController.SetMuted(cfg.EndpointID, true)
			_ = cfg.VolumeController.SetVolume(cfg.EndpointID, s.previousVolume)
		}
		s.wg.Add(1)
		go s.volumeSyncLoop()
	}

	s.wg.Add(1)
	go s.fetchLoop()

	if err := device.Start(); err != nil {
		device.Uninit()
		ctx.Uninit()
		ctx.Free()
		return nil, err
	}

	return s, nil
}

// onCapture is malgo's per-invocation capture callback. It must be fast
// and non-blocking, so it only stages the raw interleaved packet into a
// byte ring buffer; the fetch thread (fetchLoop) does the conversion,
// resample and per-channel push. A full staging buffer drops the
// packet and logs, same as a full per-channel ring would.
func (s *Source) onCapture(_, input []byte, framecount uint32) {
	n, _ := s.rawPackets.Write(input)
	if n < len(input) {
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.RecordLoopbackDrop()
		}
		dlog.For("loopback").Warn("raw packet staging buffer full, dropping packet", "endpoint", s.cfg.EndpointID)
	}
}

// fetchLoop pulls staged native packets from rawPackets, converts them
// to normalized doubles, resamples each channel to the core sample
// rate, and pushes into the per-channel rings. On a per-channel ring
// overflow it drops the packet and logs (spec §4.5).
func (s *Source) fetchLoop() {
	defer s.wg.Done()

	channels := s.cfg.ChannelCount
	frameBytes := channels * 4
	chunkFrames := s.cfg.EndpointBufSize
	raw := make([]byte, chunkFrames*frameBytes)

	for {
		select {
		case <-s.stop:
			return
		default:
		}

		n, _ := s.rawPackets.Read(raw)
		if n < frameBytes {
			time.Sleep(time.Millisecond)
			continue
		}
		frames := n / frameBytes

		doubles := make([][]float64, channels)
		for ch := range doubles {
			doubles[ch] = make([]float64, frames)
		}
		for i := 0; i < frames; i++ {
			for ch := 0; ch < channels; ch++ {
				off := (i*channels + ch) * 4
				sample := int32(binary.LittleEndian.Uint32(raw[off : off+4]))
				doubles[ch][i] = float64(sample) / float64(1<<31)
			}
		}

		s.mu.Lock()
		for ch := 0; ch < channels; ch++ {
			resampled := s.resamplers[ch].Process(doubles[ch])
			if len(resampled) == 0 {
				continue
			}
			if !s.rings[ch].Push(resampled) {
				if s.cfg.Metrics != nil {
					s.cfg.Metrics.RecordLoopbackDrop()
				}
				dlog.For("loopback").Warn("ring overflow, dropping packet", "endpoint", s.cfg.EndpointID, "channel", ch)
			}
		}
		s.mu.Unlock()
	}
}

// volumeSyncLoop mirrors the original default endpoint's volume onto
// the loopback source endpoint roughly every 10ms, keeping the source
// itself muted so no duplicate audible output occurs.
func (s *Source) volumeSyncLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if s.previousDefault == "" {
				continue
			}
			vol, err := s.cfg.VolumeController.Volume(s.previousDefault)
			if err != nil {
				continue
			}
			if math.Abs(vol-s.previousVolume) > 1e-6 {
				s.previousVolume = vol
				_ = s.cfg.VolumeController.SetVolume(s.cfg.EndpointID, vol)
			}
		}
	}
}

// Render drains up to len(mix[ch]) resampled samples per channel and
// additively mixes them in as round(sample * 2^23). Underfilled
// channels are zero-filled with a logged warning (spec §4.5).
func (s *Source) Render(currentFrame int64, mix [][]int32) {
	for ch := range mix {
		if ch >= len(s.rings) {
			return
		}
		want := len(mix[ch])
		samples := make([]float64, want)
		if !s.rings[ch].Get(samples, want) {
			dlog.For("loopback").Warn("underrun, filling silence", "endpoint", s.cfg.EndpointID, "channel", ch, "frame", currentFrame)
			continue
		}
		for i, v := range samples {
			mix[ch][i] += int32(math.Round(v * (1 << 23)))
		}
	}
}

// Close stops capture and, if intercepting, restores the previous
// default output and its volume/mute state.
func (s *Source) Close() error {
	close(s.stop)
	s.wg.Wait()

	if s.device != nil {
		s.device.Stop()
		s.device.Uninit()
	}
	if s.ctx != nil {
		s.ctx.Uninit()
		s.ctx.Free()
	}

	if s.cfg.Intercept && s.previousDefault != "" {
		_ = s.cfg.VolumeController.SetDefaultOutput(s.previousDefault)
		_ = s.cfg.VolumeController.SetMuted(s.cfg.EndpointID, false)
		_ = s.cfg.VolumeController.SetVolume(s.previousDefault, s.previousVolume)
	}
	return nil
}
