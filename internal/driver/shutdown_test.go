package driver

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/trgk-audio/asio-wasapi-bridge/internal/config"
	"github.com/trgk-audio/asio-wasapi-bridge/internal/hostapi"
)

// stubHandle is a minimal PreparedHandle for exercising the poll thread
// without a real PreparedState or host.
type stubHandle struct {
	block       hostapi.AudioBlock
	bufferIndex int
	switches    int
}

func (h *stubHandle) Buffer(index int) hostapi.AudioBlock { return h.block }
func (h *stubHandle) CurrentBufferIndex() int             { return h.bufferIndex }
func (h *stubHandle) BufferSwitch(newIndex int, directProcess bool) {
	h.bufferIndex = newIndex
	h.switches++
}

// newTestRunningState builds a RunningState with no sinks, clap
// renderer, or key/loopback sources — exercising only the poll thread's
// own goroutine lifecycle, without touching real audio hardware or an
// OS keyboard hook.
func newTestRunningState(handle PreparedHandle, settings *config.Settings) *RunningState {
	r := &RunningState{handle: handle, cfg: RunningConfig{
		ChannelCount: 1,
		BlockSize:    8,
		SampleRate:   48000,
		Settings:     settings,
	}}
	r.cond = sync.NewCond(&r.mu)
	r.wg.Add(1)
	go r.pollLoop()
	return r
}

// TestCloseJoinsPollThread verifies that Close does not return until the
// poll thread goroutine it owns has fully exited (spec §5 ordering
// guarantee c), using goleak to catch any straggler.
func TestCloseJoinsPollThread(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	handle := &stubHandle{block: hostapi.NewAudioBlock(1, 8)}
	r := newTestRunningState(handle, &config.Settings{Throttle: true})

	time.Sleep(5 * time.Millisecond)
	handle.BufferSwitch(0, false)
	r.SignalOutputReady()
	time.Sleep(5 * time.Millisecond)

	r.Close()
}

// TestCloseIsSafeWithoutOutputReady verifies the poll thread exits
// promptly even if it is blocked in the condvar wait when stop is
// requested.
func TestCloseIsSafeWithoutOutputReady(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	handle := &stubHandle{block: hostapi.NewAudioBlock(1, 8)}
	r := newTestRunningState(handle, &config.Settings{Throttle: false})

	time.Sleep(5 * time.Millisecond)
	r.Close()

	assert.True(t, r.stopRequested)
}
