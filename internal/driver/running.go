package driver

import (
	"runtime"
	"sync"
	"time"

	"github.com/trgk-audio/asio-wasapi-bridge/internal/clap"
	"github.com/trgk-audio/asio-wasapi-bridge/internal/config"
	"github.com/trgk-audio/asio-wasapi-bridge/internal/dlog"
	"github.com/trgk-audio/asio-wasapi-bridge/internal/keyevent"
	"github.com/trgk-audio/asio-wasapi-bridge/internal/loopback"
	"github.com/trgk-audio/asio-wasapi-bridge/internal/metrics"
	"github.com/trgk-audio/asio-wasapi-bridge/internal/rtsched"
	"github.com/trgk-audio/asio-wasapi-bridge/internal/rterrors"
	"github.com/trgk-audio/asio-wasapi-bridge/internal/sink"
)

// EndpointTarget names one configured output endpoint and the buffer
// duration override (if any) to apply to it.
type EndpointTarget struct {
	ID             string
	BufferDuration time.Duration
}

// RunningConfig bundles everything a RunningState needs to build its
// OutputSinks and auxiliary sources (spec §4.8 step 1).
type RunningConfig struct {
	ChannelCount int
	BlockSize    int
	SampleRate   int
	Settings     *config.Settings
	ClapBlobs    [][]byte
	Endpoints    []EndpointTarget
	Metrics      *metrics.DriverMetrics
}

// RunningState is the real-time poll loop: it drives block delivery
// timing, mixes in auxiliary sources, soft-clips, and fans the result
// out to every OutputSink (spec §4.8).
type RunningState struct {
	handle PreparedHandle
	cfg    RunningConfig

	sinks          []*sink.Sink
	clapRenderer   *clap.Renderer
	keySource      *keyevent.Source
	loopbackSource *loopback.Source

	mu            sync.Mutex
	cond          *sync.Cond
	outputReady   bool
	stopRequested bool

	wg sync.WaitGroup

	currentFrame int64
}

// NewRunningState builds one OutputSink per target endpoint (the first
// Exclusive, the rest Shared), the clap renderer, the key event source,
// and an optional loopback source, then spawns the poll thread. Per-sink
// construction failure tears down any sinks already built and reports
// HWMalfunction (spec §9).
func NewRunningState(handle PreparedHandle, cfg RunningConfig) (*RunningState, error) {
	r := &RunningState{handle: handle, cfg: cfg}
	r.cond = sync.NewCond(&r.mu)

	multiplier := 2
	if cfg.Settings != nil && cfg.Settings.Throttle {
		multiplier = 4
	}

	for i, ep := range cfg.Endpoints {
		mode := sink.Shared
		if i == 0 {
			mode = sink.Exclusive
		}
		bufDuration := 0.0
		if ep.BufferDuration > 0 {
			bufDuration = ep.BufferDuration.Seconds()
		}

		s, err := sink.New(sink.Config{
			EndpointID:      ep.ID,
			ChannelCount:    cfg.ChannelCount,
			CoreSampleRate:  cfg.SampleRate,
			InputBufferSize: cfg.BlockSize,
			Mode:            mode,
			Multiplier:      multiplier,
			BufferDuration:  bufDuration,
			Metrics:         cfg.Metrics,
		})
		if err != nil {
			for _, built := range r.sinks {
				built.Close()
			}
			return nil, rterrors.New(err).Component("running-state").WithCode(rterrors.HWMalfunction).
				Context("endpoint", ep.ID).Build()
		}
		r.sinks = append(r.sinks, s)
	}

	r.clapRenderer = clap.New(cfg.ClapBlobs, cfg.SampleRate)
	r.keySource = keyevent.Start()

	if cfg.Settings != nil && cfg.Settings.LoopbackInputDevice != "" {
		ls, err := loopback.New(loopback.Config{
			EndpointID:      cfg.Settings.LoopbackInputDevice,
			ChannelCount:    cfg.ChannelCount,
			CoreSampleRate:  cfg.SampleRate,
			EndpointBufSize: cfg.BlockSize,
			Intercept:       cfg.Settings.AutoChangeOutputToLoopback,
			Metrics:         cfg.Metrics,
		})
		if err != nil {
			dlog.For("running-state").Warn("loopback source unavailable, continuing without it", "error", err)
		} else {
			r.loopbackSource = ls
		}
	}

	r.wg.Add(1)
	go r.pollLoop()

	return r, nil
}

// SignalOutputReady marks the current buffer as ready for the poll
// thread to consume.
func (r *RunningState) SignalOutputReady() {
	r.mu.Lock()
	r.outputReady = true
	r.mu.Unlock()
	r.cond.Broadcast()
}

// Close signals the poll thread to stop and joins it, then releases
// every sink and auxiliary source. Does not return until every thread
// owned by this RunningState has exited (spec §5 ordering guarantee c).
func (r *RunningState) Close() {
	r.mu.Lock()
	r.stopRequested = true
	r.mu.Unlock()
	r.cond.Broadcast()
	r.wg.Wait()

	for _, s := range r.sinks {
		s.Close()
	}
	if r.loopbackSource != nil {
		r.loopbackSource.Close()
	}
	if r.keySource != nil {
		r.keySource.Stop()
	}
}

func (r *RunningState) pollLoop() {
	defer r.wg.Done()

	// rtsched.Boost elevates the calling OS thread's scheduling class; it
	// only means anything if this goroutine never migrates off that
	// thread, so pin it for the poll thread's entire lifetime.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	release, err := rtsched.Boost()
	if err != nil {
		dlog.For("running-state").Warn("could not elevate poll thread scheduling", "error", err)
	}
	defer release()

	pollInterval := time.Duration(float64(r.cfg.BlockSize) / float64(r.cfg.SampleRate) * float64(time.Second))
	const minPeriod = time.Millisecond
	lastPollTime := time.Now()
	shouldPoll := true
	queue := newClapQueue()

	for {
		currentTime := time.Now()

		down, up := uint64(0), uint64(0)
		if r.keySource != nil {
			down, up = r.keySource.PollKeyEventCount()
		}
		queue.Update(r.currentFrame, down, up)

		maxLen := 0.0
		if r.clapRenderer != nil {
			maxLen = r.clapRenderer.GetMaxClapSoundLength()
		}
		cutoffFrame := r.currentFrame - int64(maxLen*float64(r.cfg.SampleRate))
		queue.GC(cutoffFrame)

		if r.cfg.Metrics != nil {
			r.cfg.Metrics.SetClapQueueDepth(queue.ActiveDepth())
		}

		r.mu.Lock()
		if r.stopRequested {
			r.mu.Unlock()
			return
		}
		if shouldPoll {
			if !r.outputReady {
				for !r.outputReady && !r.stopRequested {
					r.cond.Wait()
				}
			}
			if r.stopRequested {
				r.mu.Unlock()
				return
			}
			r.outputReady = false
			shouldPoll = false
			r.mu.Unlock()

			start := time.Now()
			r.processOneBlock(queue)
			if r.cfg.Metrics != nil {
				r.cfg.Metrics.ObserveBlockProcessTime(time.Since(start).Seconds())
			}
			continue
		}
		r.mu.Unlock()

		target := lastPollTime.Add(pollInterval)
		if !currentTime.Before(target) {
			lastPollTime = target
			shouldPoll = true
			continue
		}

		remaining := target.Sub(currentTime)
		if remaining > 0 {
			sleepFor := (remaining / minPeriod) * minPeriod
			if sleepFor > 0 {
				time.Sleep(sleepFor)
			}
		}
		for time.Now().Before(target) {
			if r.throttled() {
				time.Sleep(time.Millisecond)
			}
		}
	}
}

func (r *RunningState) throttled() bool {
	return r.cfg.Settings == nil || r.cfg.Settings.Throttle
}

// processOneBlock implements the fixed sequence from spec §4.8: copy
// host data into a 24-bit-headroom mix, swap buffers and invoke
// bufferSwitch, mix in clap and loopback sources, soft-clip, and push
// to every sink.
func (r *RunningState) processOneBlock(queue *clapQueue) {
	currentIndex := r.handle.CurrentBufferIndex()
	current := r.handle.Buffer(currentIndex)

	mix := make([][]int32, r.cfg.ChannelCount)
	for ch := 0; ch < r.cfg.ChannelCount; ch++ {
		mix[ch] = make([]int32, r.cfg.BlockSize)
		src := current.Channels[ch]
		for i, sample := range src {
			sample >>= 8
			sample -= sample >> 4
			mix[ch][i] = sample
		}
	}

	newIndex := 1 - currentIndex
	r.handle.BufferSwitch(newIndex, true)

	if r.clapRenderer != nil {
		gain := 0.0
		if r.cfg.Settings != nil {
			gain = r.cfg.Settings.ClapGain
		}
		queue.Render(mix, r.currentFrame, gain, r.clapRenderer.Render)
	}

	if r.loopbackSource != nil {
		r.loopbackSource.Render(r.currentFrame, mix)
	}

	compressBlock(mix)

	for _, s := range r.sinks {
		s.PushSamples(mix)
	}

	r.currentFrame += int64(r.cfg.BlockSize)
}
