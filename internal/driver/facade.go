package driver

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/trgk-audio/asio-wasapi-bridge/internal/config"
	"github.com/trgk-audio/asio-wasapi-bridge/internal/dlog"
	"github.com/trgk-audio/asio-wasapi-bridge/internal/hostapi"
	"github.com/trgk-audio/asio-wasapi-bridge/internal/metrics"
	"github.com/trgk-audio/asio-wasapi-bridge/internal/rterrors"
	"github.com/trgk-audio/asio-wasapi-bridge/internal/sink"
)

// lifecycleState is the driver facade's state machine (spec §3):
// Loaded -> Initialized -> Prepared -> Running.
type lifecycleState int

const (
	stateLoaded lifecycleState = iota
	stateInitialized
	statePrepared
	stateRunning
)

// Driver is the host-facing state machine described in spec §4.9. A
// Driver is constructed once per process and walks forward/backward
// through Loaded/Initialized/Prepared/Running as the host calls its
// lifecycle operations.
type Driver struct {
	mu sync.Mutex

	instanceID uuid.UUID

	state     lifecycleState
	settings  *config.Settings
	metrics   *metrics.DriverMetrics
	clapBlobs [][]byte
	lastErr   string

	sampleRate int
	blockSize  int

	prepared  *PreparedState
	callbacks hostapi.Callbacks
}

// New constructs an unattached Driver in the Loaded state. Call Init to
// move to Initialized.
func New() *Driver {
	return &Driver{instanceID: uuid.New(), state: stateLoaded, sampleRate: 48000, blockSize: 64}
}

// Init loads settings from configPath and constructs the metrics
// registry; may be called once per process lifetime. Returns true if
// already initialized. Returns false (and records the message returned
// by GetErrorMessage) on any construction failure (spec §4.9).
func (d *Driver) Init(configPath string, clapBlobs [][]byte) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != stateLoaded {
		return true
	}

	settings, err := config.Load(configPath)
	if err != nil {
		d.lastErr = err.Error()
		dlog.For("facade").Error("config load failed", "error", err)
		return false
	}
	if err := config.Validate(settings); err != nil {
		d.lastErr = err.Error()
		dlog.For("facade").Error("config validation failed", "error", err)
		return false
	}

	m, err := metrics.NewDriverMetrics(prometheus.NewRegistry())
	if err != nil {
		d.lastErr = err.Error()
		dlog.For("facade").Error("metrics registration failed", "error", err)
		return false
	}

	dlog.For("facade").Info("initialized", "instance", d.instanceID, "channel_count", settings.ChannelCount, "throttle", settings.Throttle)

	d.settings = settings
	d.metrics = m
	d.clapBlobs = clapBlobs
	d.sampleRate = 48000
	d.blockSize = 64
	d.state = stateInitialized
	return true
}

// GetDriverName returns the fixed driver identity (spec §6).
func (d *Driver) GetDriverName() string { return hostapi.DriverName }

// GetDriverVersion returns the fixed driver version (spec §6).
func (d *Driver) GetDriverVersion() int { return hostapi.DriverVersion }

// GetErrorMessage returns the most recent failure message surfaced by
// a state-transition operation (spec §7), or "" if none.
func (d *Driver) GetErrorMessage() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}

// GetChannels reports input/output channel counts (spec §4.9): this
// driver has no input channels.
func (d *Driver) GetChannels() (numIn, numOut int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.settings == nil {
		return 0, 0
	}
	return 0, d.settings.ChannelCount
}

// GetLatencies reports input/output latency in frames (spec §4.9).
func (d *Driver) GetLatencies() (inLatency, outLatency int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.blockSize, 2 * d.blockSize
}

// GetBufferSize reports the fixed buffer-size negotiation range
// (spec §4.9): granularity -1 means "powers of two only".
func (d *Driver) GetBufferSize() (min, max, preferred, granularity int) {
	return 64, 1024, 64, -1
}

// CanSampleRate reports whether every configured endpoint accepts
// format negotiation at rate r, by constructing and immediately
// tearing down a probe sink per endpoint (spec §4.6.1).
func (d *Driver) CanSampleRate(r int) hostapi.Code {
	d.mu.Lock()
	settings := d.settings
	d.mu.Unlock()

	if settings == nil {
		return hostapi.NotPresent
	}
	if r <= 0 {
		return hostapi.InvalidParameter
	}

	for _, endpointID := range settings.DeviceID {
		probe, err := sink.New(sink.Config{
			EndpointID:      endpointID,
			ChannelCount:    settings.ChannelCount,
			CoreSampleRate:  r,
			InputBufferSize: d.blockSize,
			Mode:            sink.Exclusive,
			Multiplier:      2,
		})
		if err != nil {
			dlog.For("facade").Warn("rate not negotiable", "endpoint", endpointID, "rate", r, "error", err)
			return hostapi.NoClock
		}
		probe.Close()
	}
	return hostapi.OK
}

// GetSampleRate returns the current rate.
func (d *Driver) GetSampleRate() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sampleRate
}

// SetSampleRate updates the current rate. If a RunningState exists and
// callbacks are registered, the driver issues a ResetRequest instead of
// attempting a live rate change (spec §4.9).
func (d *Driver) SetSampleRate(r int) hostapi.Code {
	if r <= 0 {
		return hostapi.InvalidParameter
	}

	d.mu.Lock()
	d.sampleRate = r
	prepared := d.prepared
	running := prepared != nil && prepared.IsRunning()
	d.mu.Unlock()

	if running {
		prepared.RequestReset()
	}
	return hostapi.OK
}

// GetClockSources reports the single fixed clock source (spec §6).
func (d *Driver) GetClockSources() []string {
	return []string{hostapi.ClockSourceName}
}

// SetClockSource validates the selector against the single available
// clock source.
func (d *Driver) SetClockSource(index int) hostapi.Code {
	if index != 0 {
		return hostapi.InvalidParameter
	}
	return hostapi.OK
}

// GetSamplePosition delegates to the Prepared state, failing with
// NotPresent if buffers have not been created.
func (d *Driver) GetSamplePosition() (hostapi.SamplePosition, hostapi.Code) {
	d.mu.Lock()
	prepared := d.prepared
	d.mu.Unlock()

	if prepared == nil {
		return hostapi.SamplePosition{}, hostapi.NotPresent
	}
	return prepared.GetSamplePosition(), hostapi.OK
}

// GetChannelInfo fills in a ChannelInfo for an output channel index
// (spec §6). isActive reflects whether Prepared buffers currently
// exist.
func (d *Driver) GetChannelInfo(channel int) (hostapi.ChannelInfo, hostapi.Code) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.settings == nil {
		return hostapi.ChannelInfo{}, hostapi.NotPresent
	}
	if channel < 0 || channel >= d.settings.ChannelCount {
		return hostapi.ChannelInfo{}, hostapi.InvalidParameter
	}

	return hostapi.ChannelInfo{
		Channel:      channel,
		IsInput:      false,
		Type:         hostapi.SampleFormat,
		ChannelGroup: 0,
		IsActive:     d.prepared != nil,
		Name:         hostapi.ChannelName(channel),
	}, hostapi.OK
}

// CreateBuffers validates the requested shape, tears down any existing
// Prepared state, and constructs a fresh PreparedState, writing buffer
// pointers back into infos (spec §4.9).
func (d *Driver) CreateBuffers(infos []hostapi.BufferInfo, numChannels, blockSize int, callbacks hostapi.Callbacks) hostapi.Code {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == stateLoaded {
		return hostapi.NotPresent
	}
	if numChannels <= 0 || numChannels > d.settings.ChannelCount || blockSize <= 0 {
		return hostapi.InvalidParameter
	}
	for _, info := range infos {
		if info.IsInput {
			return hostapi.InvalidMode
		}
		if info.Channel < 0 || info.Channel >= numChannels {
			return hostapi.InvalidParameter
		}
	}

	if d.prepared != nil {
		d.prepared.Stop()
		d.prepared = nil
	}

	d.blockSize = blockSize
	d.callbacks = callbacks

	settings := d.settings
	metricsReg := d.metrics
	sampleRate := d.sampleRate
	clapBlobs := d.clapBlobs

	newRunner := func(handle PreparedHandle) (*RunningState, error) {
		endpoints := make([]EndpointTarget, len(settings.DeviceID))
		for i, id := range settings.DeviceID {
			duration, _ := settings.DurationOverrideFor(id)
			endpoints[i] = EndpointTarget{ID: id, BufferDuration: duration}
		}
		return NewRunningState(handle, RunningConfig{
			ChannelCount: numChannels,
			BlockSize:    blockSize,
			SampleRate:   sampleRate,
			Settings:     settings,
			ClapBlobs:    clapBlobs,
			Endpoints:    endpoints,
			Metrics:      metricsReg,
		})
	}

	prepared := NewPreparedState(numChannels, blockSize, sampleRate, callbacks, newRunner)
	d.prepared = prepared
	d.state = statePrepared

	for i := range infos {
		ch := infos[i].Channel
		infos[i].Buffers[0] = prepared.Buffer(0).Channels[ch]
		infos[i].Buffers[1] = prepared.Buffer(1).Channels[ch]
	}

	return hostapi.OK
}

// DisposeBuffers stops and drops the Prepared state, returning to
// Initialized.
func (d *Driver) DisposeBuffers() hostapi.Code {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.prepared == nil {
		return hostapi.NotPresent
	}
	d.prepared.Stop()
	d.prepared = nil
	d.state = stateInitialized
	return hostapi.OK
}

// Start constructs the RunningState (delegating to Prepared.Start) and
// advances to Running on success.
func (d *Driver) Start() hostapi.Code {
	d.mu.Lock()
	prepared := d.prepared
	d.mu.Unlock()

	if prepared == nil {
		return hostapi.NotPresent
	}

	ok, err := prepared.Start()
	if !ok {
		d.mu.Lock()
		if err != nil {
			d.lastErr = err.Error()
		}
		d.mu.Unlock()
		return rterrors.CodeOf(err)
	}

	d.mu.Lock()
	d.state = stateRunning
	d.mu.Unlock()
	return hostapi.OK
}

// Stop drops the RunningState and returns to Prepared.
func (d *Driver) Stop() hostapi.Code {
	d.mu.Lock()
	prepared := d.prepared
	d.mu.Unlock()

	if prepared == nil {
		return hostapi.NotPresent
	}
	prepared.Stop()

	d.mu.Lock()
	if d.state == stateRunning {
		d.state = statePrepared
	}
	d.mu.Unlock()
	return hostapi.OK
}

// OutputReady delegates to Prepared's outputReady signal.
func (d *Driver) OutputReady() hostapi.Code {
	d.mu.Lock()
	prepared := d.prepared
	d.mu.Unlock()

	if prepared == nil {
		return hostapi.NotPresent
	}
	prepared.OutputReady()
	return hostapi.OK
}

// ControlPanel reports OK; the actual configuration UI is external to
// this core (spec §1 Non-goals).
func (d *Driver) ControlPanel() hostapi.Code { return hostapi.OK }

// Future is the reserved extension point; always unimplemented.
func (d *Driver) Future(selector int) hostapi.Code { return hostapi.NotPresent }

// Destroy tears down any Prepared/Running state and returns to Loaded
// from any state (spec §3).
func (d *Driver) Destroy() {
	d.mu.Lock()
	prepared := d.prepared
	d.prepared = nil
	d.state = stateLoaded
	d.mu.Unlock()

	if prepared != nil {
		prepared.Stop()
	}
}

func (d *Driver) String() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fmt.Sprintf("Driver{state=%d, sampleRate=%d, blockSize=%d}", d.state, d.sampleRate, d.blockSize)
}
