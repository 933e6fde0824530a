// Package keyevent implements KeyEventSource (spec §4.4) on top of a
// global keyboard hook from github.com/robotn/gohook. It exposes a
// single poll operation safe to call from the real-time thread with no
// additional synchronization, backed by atomic counters fed from a
// background hook-event goroutine.
package keyevent

import (
	"sync/atomic"

	hook "github.com/robotn/gohook"

	"github.com/trgk-audio/asio-wasapi-bridge/internal/dlog"
)

// Source polls a global keyboard hook and accumulates key-down/key-up
// counts between polls.
type Source struct {
	keyDown atomic.Uint64
	keyUp   atomic.Uint64
	events  chan hook.Event
	done    chan struct{}
}

// Start installs the global keyboard hook and begins accumulating
// events in the background. Call Stop to uninstall it.
func Start() *Source {
	s := &Source{
		events: hook.Start(),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Source) run() {
	log := dlog.For("keyevent")
	for ev := range hook.Process(s.events) {
		switch ev.Kind {
		case hook.KeyDown:
			s.keyDown.Add(1)
		case hook.KeyUp:
			s.keyUp.Add(1)
		default:
			continue
		}
		select {
		case <-s.done:
			log.Debug("key event hook draining after stop")
		default:
		}
	}
}

// Stop uninstalls the global keyboard hook and stops accumulation.
func (s *Source) Stop() {
	close(s.done)
	hook.End()
}

// PollKeyEventCount returns (keyDownSinceLastPoll, keyUpSinceLastPoll)
// and resets both counters to zero. Safe to call from the real-time
// poll thread.
func (s *Source) PollKeyEventCount() (keyDown, keyUp uint64) {
	return s.keyDown.Swap(0), s.keyUp.Swap(0)
}
