package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateTruncatesKeyDownFirst(t *testing.T) {
	q := newClapQueue()
	q.Update(100, 20, 20) // 20 downs + 20 ups, cap is 16 total

	slot := &q.slots[0]
	require.True(t, slot.active)

	downs, ups, terminated := 0, 0, false
	for _, id := range slot.eventIDs {
		switch id {
		case indexKeyDown:
			downs++
		case indexKeyUp:
			ups++
		case -1:
			terminated = true
		}
	}
	assert.Equal(t, maxConcurrentKeyCount, downs, "downs should fill the whole slot before any ups are admitted")
	assert.Equal(t, 0, ups)
	assert.False(t, terminated, "a fully-packed slot has no -1 terminator to write")
}

func TestUpdateMixedDownsThenUps(t *testing.T) {
	q := newClapQueue()
	q.Update(0, 3, 2)

	slot := &q.slots[0]
	// Update writes a single -1 terminator; entries after it are left as
	// they were (zero in a fresh queue) and are never read by Render.
	assert.Equal(t, [maxConcurrentKeyCount]int{
		indexKeyDown, indexKeyDown, indexKeyDown, indexKeyUp, indexKeyUp,
		-1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}, slot.eventIDs)
}

func TestUpdateWithNoEventsLeavesQueueUntouched(t *testing.T) {
	q := newClapQueue()
	q.Update(0, 0, 0)
	assert.Equal(t, 0, q.next)
	assert.False(t, q.slots[0].active)
}

func TestGCDeactivatesOldSlots(t *testing.T) {
	q := newClapQueue()
	q.Update(100, 1, 0)
	q.Update(200, 1, 0)

	q.GC(150)

	assert.False(t, q.slots[0].active, "slot started at frame 100 predates cutoff 150")
	assert.True(t, q.slots[1].active, "slot started at frame 200 is after cutoff 150")
}

func TestActiveDepthCountsOnlyActiveSlots(t *testing.T) {
	q := newClapQueue()
	assert.Equal(t, 0, q.ActiveDepth())
	q.Update(0, 1, 0)
	assert.Equal(t, 1, q.ActiveDepth())
	q.Update(1, 1, 0)
	assert.Equal(t, 2, q.ActiveDepth())
}

func TestQueueWrapsAroundAfter256Bursts(t *testing.T) {
	q := newClapQueue()
	for i := 0; i < clapQueueSize+1; i++ {
		q.Update(int64(i), 1, 0)
	}
	assert.Equal(t, 1, q.next, "by design the 257th burst overwrites slot 0, capping concurrent in-flight effects")
}

func TestRenderInvokesCallbackForEveryActiveEventAndChannel(t *testing.T) {
	q := newClapQueue()
	q.Update(10, 2, 0)

	mix := [][]int32{make([]int32, 4), make([]int32, 4)}
	var calls []struct {
		ch     int
		offset int
		index  int
	}
	render := func(channelMix []int32, startFrameOffset int, index int, gain float64) {
		for ch := range mix {
			if &mix[ch][0] == &channelMix[0] {
				calls = append(calls, struct {
					ch     int
					offset int
					index  int
				}{ch, startFrameOffset, index})
			}
		}
	}

	q.Render(mix, 10, 0.5, render)
	assert.Len(t, calls, 4) // 2 channels x 2 key-down events
	for _, c := range calls {
		assert.Equal(t, 0, c.offset)
		assert.Equal(t, indexKeyDown, c.index)
	}
}
