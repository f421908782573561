// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"audioscope/internal/analysis"
	"audioscope/internal/log"
	"audioscope/internal/ring"
	"audioscope/internal/synth"
	"audioscope/pkg/bitint"
)

var logger = log.With("Config")

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`     // Enable debug mode (forces debug logging).
	LogLevel  string          `yaml:"log_level"` // Logging level (e.g., "debug", "info", "warn", "error").
	Audio     AudioConfig     `yaml:"audio"`     // Source mode and device settings.
	Analysis  AnalysisConfig  `yaml:"analysis"`  // Spectrum analysis and layers.
	Recording RecordingConfig `yaml:"recording"` // Recording of the source output.
	Transport TransportConfig `yaml:"transport"` // Frame transports.
	Export    ExportConfig    `yaml:"export"`    // Offline export defaults.
}

// AudioConfig holds settings related to the audio source.
type AudioConfig struct {
	Mode            string     `yaml:"mode"`                // One of idle, file, capture, tone, osc.
	File            string     `yaml:"file"`                // File played in file mode.
	CaptureDevice   string     `yaml:"capture_device_name"` // Capture device name ("" for default).
	PlaybackDevice  string     `yaml:"playback_device"`     // Playback device name ("" for default).
	FramesPerBuffer int        `yaml:"frames_per_buffer"`   // Frames per callback block.
	LowLatency      bool       `yaml:"low_latency"`         // Request the device's low latency.
	CaptureRate     float64    `yaml:"capture_sample_rate"` // Capture stream rate in Hz.
	CaptureChannels int        `yaml:"capture_channels"`    // Capture channel count.
	ToneRate        float64    `yaml:"tone_sample_rate"`    // Tone and osc playback rate in Hz.
	Tone            ToneConfig `yaml:"tone"`
	Osc             OscConfig  `yaml:"osc"`
	Gate            GateConfig `yaml:"gate"`
}

// ToneConfig describes the test tone used in tone mode.
type ToneConfig struct {
	Waveform       string  `yaml:"waveform"`        // sine, square, sawtooth, triangle, noise.
	Frequency      float64 `yaml:"frequency"`       // Left (or mono) frequency in Hz.
	RightFrequency float64 `yaml:"right_frequency"` // Right frequency when stereo.
	Volume         float64 `yaml:"volume"`          // 0..1
	Stereo         bool    `yaml:"stereo"`
}

// OscConfig describes the oscilloscope music generated in osc mode.
type OscConfig struct {
	Preset        string  `yaml:"preset"` // Preset name; ignored when x and y are set.
	X             string  `yaml:"x"`
	Y             string  `yaml:"y"`
	BaseFrequency float64 `yaml:"base_frequency"`
	Duration      float64 `yaml:"duration_seconds"`
}

// GateConfig configures the analysis noise gate.
type GateConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Threshold float64 `yaml:"threshold"` // Linear peak in 0..1.
}

// AnalysisConfig holds the spectrum analyzer settings.
type AnalysisConfig struct {
	FFTSize         int           `yaml:"fft_size"`         // Power of two.
	Window          string        `yaml:"fft_window"`       // Window function name (e.g., "Hann", "Hamming").
	BeatSensitivity float64       `yaml:"beat_sensitivity"` // Multiple of the running bass average.
	FrameRate       float64       `yaml:"frame_rate"`       // Analysis frames per second.
	Bands           bool          `yaml:"bands"`            // Publish named band energies.
	Layers          []LayerConfig `yaml:"layers"`
}

// LayerConfig is the YAML form of analysis.LayerConfig.
type LayerConfig struct {
	Name          string  `yaml:"name"`
	Gain          float64 `yaml:"gain"`
	Falloff       float64 `yaml:"falloff"`
	Attack        float64 `yaml:"attack"`
	MinFreq       float64 `yaml:"min_freq"`
	MaxFreq       float64 `yaml:"max_freq"`
	NumBars       int     `yaml:"num_bars"`
	Smoothing     int     `yaml:"smoothing"`
	SpectrumPower float64 `yaml:"spectrum_power"`
	Channel       string  `yaml:"channel"` // mixed, left, right.
}

// RecordingConfig holds settings related to recording the source output.
type RecordingConfig struct {
	Enabled   bool   `yaml:"enabled"`    // Record to a WAV file while running.
	OutputDir string `yaml:"output_dir"` // Directory to save recordings.
}

// TransportConfig holds settings related to sending frames over the network.
type TransportConfig struct {
	WSEnabled        bool          `yaml:"ws_enabled"`         // Broadcast frames over WebSocket.
	WSAddress        string        `yaml:"ws_address"`         // Listen address (e.g., ":8080").
	WSPath           string        `yaml:"ws_path"`            // Upgrade path (e.g., "/ws").
	WSQueueSize      int           `yaml:"ws_queue_size"`      // Frames queued before dropping.
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Enable sending frames over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // Target address and port (e.g., "127.0.0.1:9090").
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`  // Interval between UDP packets.
	LogEvery         int           `yaml:"log_every"`          // Log every Nth frame at debug level, 0 disables.
}

// ExportConfig holds defaults for the export command.
type ExportConfig struct {
	FPS       float64 `yaml:"fps"`
	OutputDir string  `yaml:"output_dir"`
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults. After loading defaults or from file, it applies environment variable
// overrides and validates the final configuration. Keys missing from the file keep
// their defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		candidates := []string{"config.yaml", "config.yml"}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		if path == "" {
			return nil, fmt.Errorf("invalid default configuration: %w", err)
		}
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks every section and joins all problems into one error.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if _, ok := log.ParseLevel(c.LogLevel); !ok {
		add("log_level %q is not a level", c.LogLevel)
	}

	// Audio
	a := c.Audio
	switch a.Mode {
	case ModeIdle, ModeCapture, ModeTone, ModeOsc:
	case ModeFile:
		if a.File == "" {
			add("audio.file must be set in file mode")
		}
	default:
		add("audio.mode %q must be one of idle, file, capture, tone, osc", a.Mode)
	}
	if a.FramesPerBuffer <= 0 || a.FramesPerBuffer > MaxBufferFrames {
		add("audio.frames_per_buffer %d outside 1..%d", a.FramesPerBuffer, MaxBufferFrames)
	}
	if !validRate(a.CaptureRate) {
		add("audio.capture_sample_rate %g outside %d..%d", a.CaptureRate, MinSampleRate, MaxSampleRate)
	}
	if !validRate(a.ToneRate) {
		add("audio.tone_sample_rate %g outside %d..%d", a.ToneRate, MinSampleRate, MaxSampleRate)
	}
	if a.CaptureChannels < 1 || a.CaptureChannels > 2 {
		add("audio.capture_channels must be 1 or 2, got %d", a.CaptureChannels)
	}
	if _, err := synth.ParseWaveform(a.Tone.Waveform); err != nil {
		add("audio.tone.waveform: %w", err)
	}
	if a.Tone.Frequency <= 0 || a.Tone.Frequency >= a.ToneRate/2 {
		add("audio.tone.frequency %g must be in (0, %g)", a.Tone.Frequency, a.ToneRate/2)
	}
	if a.Tone.Stereo && (a.Tone.RightFrequency <= 0 || a.Tone.RightFrequency >= a.ToneRate/2) {
		add("audio.tone.right_frequency %g must be in (0, %g)", a.Tone.RightFrequency, a.ToneRate/2)
	}
	if a.Tone.Volume < 0 || a.Tone.Volume > 1 {
		add("audio.tone.volume must be in [0, 1], got %g", a.Tone.Volume)
	}
	if a.Osc.X == "" && a.Osc.Y == "" {
		if _, ok := synth.PresetByName(a.Osc.Preset); !ok {
			add("audio.osc.preset %q is not a known preset", a.Osc.Preset)
		}
	} else if a.Osc.X == "" || a.Osc.Y == "" {
		add("audio.osc.x and audio.osc.y must be set together")
	}
	if a.Osc.BaseFrequency <= 0 {
		add("audio.osc.base_frequency must be positive, got %g", a.Osc.BaseFrequency)
	}
	if a.Osc.Duration <= 0 {
		add("audio.osc.duration_seconds must be positive, got %g", a.Osc.Duration)
	}
	if a.Gate.Threshold < 0 || a.Gate.Threshold > 1 {
		add("audio.gate.threshold must be in [0, 1], got %g", a.Gate.Threshold)
	}

	// Analysis
	an := c.Analysis
	if !bitint.IsPowerOfTwo(an.FFTSize) || an.FFTSize < MinFFTSize || an.FFTSize > MaxFFTSize {
		add("analysis.fft_size %d must be a power of two in %d..%d", an.FFTSize, MinFFTSize, MaxFFTSize)
	}
	if _, err := analysis.ParseWindowFunc(an.Window); err != nil {
		add("analysis.fft_window: %w", err)
	}
	if an.BeatSensitivity <= 0 {
		add("analysis.beat_sensitivity must be positive, got %g", an.BeatSensitivity)
	}
	if an.FrameRate <= 0 || an.FrameRate > MaxFrameRate {
		add("analysis.frame_rate %g outside (0, %g]", an.FrameRate, MaxFrameRate)
	}
	if len(an.Layers) > MaxLayers {
		add("analysis.layers: at most %d layers, got %d", MaxLayers, len(an.Layers))
	}
	if _, err := c.AnalysisLayers(); err != nil {
		errs = append(errs, err)
	}

	// Transport
	t := c.Transport
	if t.WSEnabled && t.WSAddress == "" {
		add("transport.ws_address must be set when WebSocket is enabled")
	}
	if t.WSEnabled && !strings.HasPrefix(t.WSPath, "/") {
		add("transport.ws_path %q must start with /", t.WSPath)
	}
	if t.UDPEnabled {
		if t.UDPTargetAddress == "" {
			add("transport.udp_target_address must be set when UDP is enabled")
		} else if !strings.Contains(t.UDPTargetAddress, ":") {
			add("transport.udp_target_address '%s' appears invalid (missing port?)", t.UDPTargetAddress)
		}
	}
	if t.LogEvery < 0 {
		add("transport.log_every must not be negative, got %d", t.LogEvery)
	}

	if c.Export.FPS <= 0 || c.Export.FPS > MaxFrameRate {
		add("export.fps %g outside (0, %g]", c.Export.FPS, MaxFrameRate)
	}

	return errors.Join(errs...)
}

func validRate(rate float64) bool {
	return rate >= MinSampleRate && rate <= MaxSampleRate
}

// applyEnvOverrides applies ENV_ variables over the loaded values. Values
// that fail to parse are ignored.
func (cfg *Config) applyEnvOverrides() {
	// ENV_{...}
	// These are general overrides.

	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Debug = bVal
			logger.Debugf("overriding debug from env: %v", bVal)
		}
	}
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		if _, valid := log.ParseLevel(val); valid {
			cfg.LogLevel = val
			logger.Debugf("overriding log_level from env: %s", val)
		}
	}
	// ENV_AUDIO_MODE
	if val, ok := os.LookupEnv("ENV_AUDIO_MODE"); ok {
		cfg.Audio.Mode = strings.ToLower(strings.TrimSpace(val))
		logger.Debugf("overriding audio.mode from env: %s", cfg.Audio.Mode)
	}

	// ENV_WS_{...} and ENV_UDP_{...}
	// These are specific to the transport layer.

	// ENV_WS_ENABLED
	if val, ok := os.LookupEnv("ENV_WS_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Transport.WSEnabled = bVal
			logger.Debugf("overriding transport.ws_enabled from env: %v", bVal)
		}
	}
	// ENV_UDP_ENABLED
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Transport.UDPEnabled = bVal
			logger.Debugf("overriding transport.udp_enabled from env: %v", bVal)
		}
	}
	// ENV_UDP_TARGET_ADDRESS
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		cfg.Transport.UDPTargetAddress = val
		logger.Debugf("overriding transport.udp_target_address from env: %s", val)
	}
	// ENV_UDP_SEND_INTERVAL
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			cfg.Transport.UDPSendInterval = dur
			logger.Debugf("overriding transport.udp_send_interval from env: %s", dur)
		}
	}
}

// ringChannel parses a layer channel name.
func ringChannel(name string) (ring.Channel, error) {
	ch, ok := ring.ParseChannel(strings.ToLower(strings.TrimSpace(name)))
	if !ok {
		return ring.Mixed, fmt.Errorf("unknown channel %q", name)
	}
	return ch, nil
}

// UnmarshalYAML decodes a layer on top of the default layer.
func (l *LayerConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain LayerConfig
	p := plain(defaultLayer())
	if err := value.Decode(&p); err != nil {
		return err
	}
	*l = LayerConfig(p)
	return nil
}
