// Package config loads, validates, and hot-reloads the YAML configuration
// file describing groups and the client allow-list.
package config

import "github.com/boww-net/boww-server/internal/router"

const (
	DefaultSampleRate           = 16000
	DefaultChannels             = 1
	DefaultArbitrationTimeoutMs = 200
	DefaultVadNoVoiceMs         = 1000
)

// File is the root YAML document shape.
type File struct {
	Groups  []GroupConfig  `yaml:"groups"`
	Clients []ClientConfig `yaml:"clients"`
}

// GroupConfig describes one logical arbitration group.
type GroupConfig struct {
	Name                 string `yaml:"name"`
	SampleRate           int    `yaml:"sample_rate"`
	Channels             int    `yaml:"channels"`
	ArbitrationTimeoutMs int    `yaml:"arbitration_timeout_ms"`
	VadNoVoiceMs         int    `yaml:"vad_no_voice_ms"`
	Output               string `yaml:"output"`
	Device               string `yaml:"device"`
	FallbackToFileOnBusy *bool  `yaml:"fallback_to_file_on_busy"`
}

// ClientConfig describes one allow-listed client identity. OnboardTempID,
// when present, pairs a previously-issued temp ID with the GUID/group it
// should adopt.
type ClientConfig struct {
	GUID          string `yaml:"guid"`
	Group         string `yaml:"group"`
	OnboardTempID string `yaml:"onboard_temp_id"`
}

// normalized applies the defaults original_source hardcodes into
// GroupConfig's field initializers, and resolves the output kind.
func (g GroupConfig) normalized() GroupConfig {
	if g.SampleRate == 0 {
		g.SampleRate = DefaultSampleRate
	}
	if g.Channels == 0 {
		g.Channels = DefaultChannels
	}
	if g.ArbitrationTimeoutMs == 0 {
		g.ArbitrationTimeoutMs = DefaultArbitrationTimeoutMs
	}
	if g.VadNoVoiceMs == 0 {
		g.VadNoVoiceMs = DefaultVadNoVoiceMs
	}
	if g.Output == "" {
		g.Output = "file"
	}
	if g.FallbackToFileOnBusy == nil {
		def := true
		g.FallbackToFileOnBusy = &def
	}
	return g
}

// OutputKind maps the YAML "file"/"alsa" string to a router.Kind.
func (g GroupConfig) OutputKind() router.Kind {
	if g.Output == "alsa" {
		return router.KindDevice
	}
	return router.KindFile
}

// Fallback reports whether device-open failures should fall back to file.
func (g GroupConfig) Fallback() bool {
	if g.FallbackToFileOnBusy == nil {
		return true
	}
	return *g.FallbackToFileOnBusy
}
