package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileAppliesDefaults(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.NoError(t, err)

	assert.Equal(t, 2, s.ChannelCount)
	assert.Equal(t, 0.0, s.ClapGain)
	assert.True(t, s.Throttle)
	assert.Equal(t, "info", s.LogLevel)
	assert.Equal(t, []string{DefaultDeviceID}, s.DeviceID)
	assert.Empty(t, s.DurationOverride)
	assert.Equal(t, "", s.LoopbackInputDevice)
	assert.False(t, s.AutoChangeOutputToLoopback)
}

func TestLoadOverridesFromJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
		"channelCount": 6,
		"clapGain": 0.5,
		"throttle": false,
		"logLevel": "trace",
		"deviceId": ["Speakers (Realtek)", "Headphones"],
		"durationOverride": {"Speakers (Realtek)": 100000},
		"loopbackInputDevice": "Stereo Mix",
		"autoChangeOutputToLoopback": true
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 6, s.ChannelCount)
	assert.Equal(t, 0.5, s.ClapGain)
	assert.False(t, s.Throttle)
	assert.Equal(t, "trace", s.LogLevel)
	assert.Equal(t, []string{"Speakers (Realtek)", "Headphones"}, s.DeviceID)
	assert.Equal(t, "Stereo Mix", s.LoopbackInputDevice)
	assert.True(t, s.AutoChangeOutputToLoopback)

	d, ok := s.DurationOverrideFor("Speakers (Realtek)")
	require.True(t, ok)
	assert.Equal(t, 10*time.Millisecond, d)
}

func TestValidateRejectsOutOfRangeChannelCount(t *testing.T) {
	s := &Settings{ChannelCount: 0, ClapGain: 0, LogLevel: "info", DeviceID: []string{DefaultDeviceID}}
	assert.Error(t, Validate(s))

	s.ChannelCount = 33
	assert.Error(t, Validate(s))

	s.ChannelCount = 32
	assert.NoError(t, Validate(s))
}

func TestValidateRejectsOutOfRangeClapGain(t *testing.T) {
	s := &Settings{ChannelCount: 2, ClapGain: 1.5, LogLevel: "info", DeviceID: []string{DefaultDeviceID}}
	assert.Error(t, Validate(s))
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	s := &Settings{ChannelCount: 2, ClapGain: 0, LogLevel: "verbose", DeviceID: []string{DefaultDeviceID}}
	assert.Error(t, Validate(s))
}
