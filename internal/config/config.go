// Package config loads the driver's JSON-configurable settings (spec §6)
// using viper, in the style of the teacher's internal/conf package but
// trimmed to a single flat document instead of a nested YAML tree.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings holds the subset of DriverSettings (spec §3) that is
// configurable from the JSON document loaded at init. SampleRate and
// BlockSize are negotiated later via the host API surface and are not
// part of this document.
type Settings struct {
	ChannelCount               int
	ClapGain                   float64
	Throttle                   bool
	LogLevel                   string
	DeviceID                   []string
	DurationOverride           map[string]time.Duration
	LoopbackInputDevice        string
	AutoChangeOutputToLoopback bool
}

// DefaultDeviceID is the reserved identifier meaning "the current system
// default output endpoint at initialization time".
const DefaultDeviceID = "(default device)"

func setDefaults(v *viper.Viper) {
	v.SetDefault("channelCount", 2)
	v.SetDefault("clapGain", 0.0)
	v.SetDefault("throttle", true)
	v.SetDefault("logLevel", "info")
	v.SetDefault("deviceId", []string{DefaultDeviceID})
	v.SetDefault("durationOverride", map[string]any{})
	v.SetDefault("loopbackInputDevice", "")
	v.SetDefault("autoChangeOutputToLoopback", false)
}

// Load reads settings from configPath (a JSON document). A missing file
// is not an error: defaults from the spec §6 table apply. Durations in
// durationOverride are expressed in 100ns units on disk, matching the
// System Audio API's native buffer-duration unit.
func Load(configPath string) (*Settings, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
		}
	}

	raw := v.GetStringMap("durationOverride")
	overrides := make(map[string]time.Duration, len(raw))
	for endpoint, val := range raw {
		units, ok := toInt64(val)
		if !ok {
			return nil, fmt.Errorf("durationOverride[%q]: expected an integer 100ns-unit count, got %T", endpoint, val)
		}
		overrides[endpoint] = time.Duration(units) * 100 * time.Nanosecond
	}

	s := &Settings{
		ChannelCount:               v.GetInt("channelCount"),
		ClapGain:                   v.GetFloat64("clapGain"),
		Throttle:                   v.GetBool("throttle"),
		LogLevel:                   v.GetString("logLevel"),
		DeviceID:                   v.GetStringSlice("deviceId"),
		DurationOverride:           overrides,
		LoopbackInputDevice:        v.GetString("loopbackInputDevice"),
		AutoChangeOutputToLoopback: v.GetBool("autoChangeOutputToLoopback"),
	}

	if err := Validate(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the structural invariants from spec §3/§6 that do not
// depend on host-negotiated state (channel count range, gain range).
func Validate(s *Settings) error {
	if s.ChannelCount < 1 || s.ChannelCount > 32 {
		return fmt.Errorf("channelCount must be in [1,32], got %d", s.ChannelCount)
	}
	if s.ClapGain < 0.0 || s.ClapGain > 1.0 {
		return fmt.Errorf("clapGain must be in [0,1], got %f", s.ClapGain)
	}
	switch s.LogLevel {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logLevel must be one of trace/debug/info/warn/error, got %q", s.LogLevel)
	}
	if len(s.DeviceID) == 0 {
		return fmt.Errorf("deviceId must name at least one endpoint")
	}
	return nil
}

// DurationOverrideFor returns the configured buffer-duration override for
// an endpoint identifier, and whether one was configured. Keys loaded by
// Load are lowercased by viper, so an identifier with no exact match is
// looked up again in lowercase.
func (s *Settings) DurationOverrideFor(endpointID string) (time.Duration, bool) {
	if d, ok := s.DurationOverride[endpointID]; ok {
		return d, true
	}
	d, ok := s.DurationOverride[strings.ToLower(endpointID)]
	return d, ok
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
