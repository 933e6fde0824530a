package driver

import (
	"sync"
	"time"

	"github.com/trgk-audio/asio-wasapi-bridge/internal/hostapi"
)

// PreparedHandle is the narrow, non-owning view of PreparedState that a
// RunningState needs: the two host-visible buffers and the callback
// table. Accepting this interface instead of a *PreparedState avoids
// the PreparedState<->RunningState back-reference cycle (spec §9).
type PreparedHandle interface {
	Buffer(index int) hostapi.AudioBlock
	CurrentBufferIndex() int
	BufferSwitch(newIndex int, directProcess bool)
}

// PreparedState owns the double-buffered host-visible audio buffers and
// the child RunningState that drives them (spec §4.7).
type PreparedState struct {
	mu sync.Mutex

	channelCount int
	blockSize    int
	sampleRate   int

	buffers     [2]hostapi.AudioBlock
	bufferIndex int

	samplePosition int64
	timestampNanos int64

	callbacks hostapi.Callbacks
	running   *RunningState
	newRunner func(handle PreparedHandle) (*RunningState, error)
}

// NewPreparedState allocates the two zeroed AudioBlocks and wires the
// host's callback table. newRunner is invoked by Start to construct a
// fresh RunningState bound to this PreparedState's narrow handle.
func NewPreparedState(channelCount, blockSize, sampleRate int, callbacks hostapi.Callbacks, newRunner func(handle PreparedHandle) (*RunningState, error)) *PreparedState {
	return &PreparedState{
		channelCount: channelCount,
		blockSize:    blockSize,
		sampleRate:   sampleRate,
		buffers:      [2]hostapi.AudioBlock{hostapi.NewAudioBlock(channelCount, blockSize), hostapi.NewAudioBlock(channelCount, blockSize)},
		callbacks:    callbacks,
		newRunner:    newRunner,
	}
}

// Buffer returns the AudioBlock at double-buffer slot index (0 or 1).
func (p *PreparedState) Buffer(index int) hostapi.AudioBlock {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffers[index]
}

// CurrentBufferIndex returns the slot the host should currently be
// writing into.
func (p *PreparedState) CurrentBufferIndex() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bufferIndex
}

// BufferSwitch captures the current system time, advances the sample
// position by one block, records the new buffer index, and invokes the
// host's bufferSwitch callback (spec §4.7, §4.8 ordering guarantees).
func (p *PreparedState) BufferSwitch(newIndex int, directProcess bool) {
	p.mu.Lock()
	p.bufferIndex = newIndex
	p.samplePosition += int64(p.blockSize)
	p.timestampNanos = time.Now().UnixNano()
	callbacks := p.callbacks
	p.mu.Unlock()

	if callbacks != nil {
		callbacks.BufferSwitch(newIndex, directProcess)
	}
}

// Start constructs a RunningState if one does not already exist.
// Returns true unless construction fails, in which case the failure is
// logged by the caller via the returned error and the state is left
// without a RunningState.
func (p *PreparedState) Start() (bool, error) {
	p.mu.Lock()
	if p.running != nil {
		p.mu.Unlock()
		return true, nil
	}
	p.bufferIndex = 0
	p.samplePosition = 0
	p.timestampNanos = 0
	p.mu.Unlock()

	running, err := p.newRunner(p)
	if err != nil {
		return false, err
	}

	p.mu.Lock()
	p.running = running
	p.mu.Unlock()
	return true, nil
}

// Stop drops the RunningState, joining its poll thread and every sink
// render thread before returning.
func (p *PreparedState) Stop() bool {
	p.mu.Lock()
	running := p.running
	p.running = nil
	p.mu.Unlock()

	if running != nil {
		running.Close()
	}
	return true
}

// GetSamplePosition returns the frame counter and timestamp captured at
// the most recent bufferSwitch.
func (p *PreparedState) GetSamplePosition() hostapi.SamplePosition {
	p.mu.Lock()
	defer p.mu.Unlock()
	return hostapi.SamplePosition{Samples: p.samplePosition, TimestampNanos: p.timestampNanos}
}

// OutputReady signals the RunningState's "output ready" condition,
// indicating the host has finished writing into the current buffer.
func (p *PreparedState) OutputReady() {
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()
	if running != nil {
		running.SignalOutputReady()
	}
}

// RequestReset delivers a ResetRequest message through the callback
// table, used when the sample rate changes while running.
func (p *PreparedState) RequestReset() {
	p.mu.Lock()
	callbacks := p.callbacks
	p.mu.Unlock()
	if callbacks != nil {
		callbacks.ResetRequest()
	}
}

// IsRunning reports whether a RunningState currently exists.
func (p *PreparedState) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running != nil
}
