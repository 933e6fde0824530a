//go:build windows

// Package rtsched boosts the poll thread's OS scheduling so the
// real-time audio loop is less likely to be preempted (spec §4.8:
// "Elevates its thread to 'pro audio' scheduling. Requests the OS
// highest-available timer resolution.").
package rtsched

import (
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/trgk-audio/asio-wasapi-bridge/internal/dlog"
)

var (
	avrt   = windows.NewLazySystemDLL("avrt.dll")
	winmm  = windows.NewLazySystemDLL("winmm.dll")
	avSet  = avrt.NewProc("AvSetMmThreadCharacteristicsW")
	avRevt = avrt.NewProc("AvRevertMmThreadCharacteristics")
	tgdc   = winmm.NewProc("timeGetDevCaps")
	tbp    = winmm.NewProc("timeBeginPeriod")
	tep    = winmm.NewProc("timeEndPeriod")
)

type timeCaps struct {
	wPeriodMin uint32
	wPeriodMax uint32
}

// Boost elevates the calling goroutine's underlying OS thread to the
// "Pro Audio" MMCSS task category and requests the system's minimum
// supported timer period. The caller must be locked to its OS thread
// (runtime.LockOSThread) for the elevation to mean anything, and must
// call the returned release function from the same goroutine before it
// unlocks or exits.
func Boost() (release func(), err error) {
	log := dlog.For("rtsched")

	namePtr, err := windows.UTF16PtrFromString("Pro Audio")
	if err != nil {
		return func() {}, err
	}
	var taskIndex uint32
	handle, _, callErr := avSet.Call(uintptr(unsafe.Pointer(namePtr)), uintptr(unsafe.Pointer(&taskIndex)))
	if handle == 0 {
		log.Warn("AvSetMmThreadCharacteristics failed; continuing at default priority", "error", callErr)
		handle = 0
	}

	var caps timeCaps
	periodMin := uint32(1)
	if ret, _, _ := tgdc.Call(uintptr(unsafe.Pointer(&caps)), unsafe.Sizeof(caps)); ret == 0 {
		periodMin = caps.wPeriodMin
	}
	tbp.Call(uintptr(periodMin))
	log.Debug("timeBeginPeriod", "period_ms", periodMin)

	return func() {
		tep.Call(uintptr(periodMin))
		if handle != 0 {
			avRevt.Call(handle)
		}
	}, nil
}
