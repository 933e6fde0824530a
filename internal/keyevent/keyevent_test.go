package keyevent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPollKeyEventCountResetsOnRead(t *testing.T) {
	s := &Source{}
	s.keyDown.Store(3)
	s.keyUp.Store(1)

	down, up := s.PollKeyEventCount()
	assert.Equal(t, uint64(3), down)
	assert.Equal(t, uint64(1), up)

	down, up = s.PollKeyEventCount()
	assert.Zero(t, down)
	assert.Zero(t, up)
}

func TestPollKeyEventCountAccumulatesBetweenPolls(t *testing.T) {
	s := &Source{}
	s.keyDown.Add(1)
	s.keyDown.Add(1)
	s.keyUp.Add(1)

	down, up := s.PollKeyEventCount()
	assert.Equal(t, uint64(2), down)
	assert.Equal(t, uint64(1), up)
}
