package driver

const (
	clapQueueSize         = 256
	maxConcurrentKeyCount = 16

	// indexKeyDown and indexKeyUp are the two clap-effect indices
	// ClapRenderer understands; -1 terminates a slot's event list.
	indexKeyDown = 0
	indexKeyUp   = 1
)

// clapSlot holds the frame at which a batch of key events was observed
// and up to maxConcurrentKeyCount event ids, terminated by -1.
type clapSlot struct {
	startFrame int64
	active     bool
	eventIDs   [maxConcurrentKeyCount]int
}

// clapQueue is the fixed-size looping queue of recent key-event bursts
// that still have audible clap tails in flight. It intentionally
// overflows at clapQueueSize: that caps concurrent in-flight clap
// effects by design (spec §4.8).
type clapQueue struct {
	slots [clapQueueSize]clapSlot
	next  int
}

func newClapQueue() *clapQueue {
	q := &clapQueue{}
	for i := range q.slots {
		q.slots[i].eventIDs[0] = -1
	}
	return q
}

// Update records a burst of keyDown/keyUp counts observed at
// currentFrame into the next slot. Excess events beyond
// maxConcurrentKeyCount are truncated key-down-first: downs fill the
// slot before ups get a chance, per the documented open-question
// decision (spec §9).
func (q *clapQueue) Update(currentFrame int64, keyDown, keyUp uint64) {
	if keyDown == 0 && keyUp == 0 {
		return
	}

	slot := &q.slots[q.next]
	slot.startFrame = currentFrame
	slot.active = true

	j := 0
	for i := uint64(0); i < keyDown && j < maxConcurrentKeyCount; i++ {
		slot.eventIDs[j] = indexKeyDown
		j++
	}
	for i := uint64(0); i < keyUp && j < maxConcurrentKeyCount; i++ {
		slot.eventIDs[j] = indexKeyUp
		j++
	}
	if j < maxConcurrentKeyCount {
		slot.eventIDs[j] = -1
	}

	q.next = (q.next + 1) % clapQueueSize
}

// GC marks slots whose start frame predates cutoffFrame as inactive.
func (q *clapQueue) GC(cutoffFrame int64) {
	for i := range q.slots {
		if q.slots[i].active && q.slots[i].startFrame < cutoffFrame {
			q.slots[i].active = false
		}
	}
}

// ActiveDepth returns the number of slots currently holding a live
// event-id list, for metrics reporting.
func (q *clapQueue) ActiveDepth() int {
	n := 0
	for i := range q.slots {
		if q.slots[i].active {
			n++
		}
	}
	return n
}

// Render invokes render for every event id in every active slot, on
// every channel of mix, with the correct frame offset relative to
// currentFrame.
func (q *clapQueue) Render(mix [][]int32, currentFrame int64, gain float64, render func(mix []int32, startFrameOffset int, index int, gain float64)) {
	for i := range q.slots {
		slot := &q.slots[i]
		if !slot.active {
			continue
		}
		offset := int(currentFrame - slot.startFrame)
		for _, id := range slot.eventIDs {
			if id < 0 {
				break
			}
			for ch := range mix {
				render(mix[ch], offset, id, gain)
			}
		}
	}
}
