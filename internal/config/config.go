package config

import (
	"time"

	"audioscope/internal/analysis"
	"audioscope/internal/transport"
	"audioscope/internal/transport/udp"
)

// Boundaries and defaults for the pipeline configuration.
const (
	DefaultLogLevel        = "info"
	DefaultMode            = ModeIdle
	DefaultFramesPerBuffer = 512   // Balanced latency/performance
	DefaultCaptureRate     = 48000 // Capture streams
	DefaultCaptureChannels = 2
	DefaultToneRate        = 44100 // Tone generator and osc music
	DefaultFrameRate       = 60.0  // Analysis frames per second
	DefaultOscDuration     = 2.0   // Seconds of generated osc music
	DefaultGateThreshold   = 0.01  // linear peak

	// Hardware and processing limits
	MinSampleRate   = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate   = 192000 // Maximum supported sample rate (Hz)
	MaxBufferFrames = 8192   // Maximum frames per buffer (power of 2)
	MinFFTSize      = 256
	MaxFFTSize      = 65536
	MaxFrameRate    = 240.0
	MaxLayers       = 255 // one byte in the UDP packet header
)

// Modes accepted by audio.mode.
const (
	ModeIdle    = "idle"
	ModeFile    = "file"
	ModeCapture = "capture"
	ModeTone    = "tone"
	ModeOsc     = "osc"
)

// Default returns the built-in configuration used when no file is found.
func Default() Config {
	return Config{
		Debug:    false,
		LogLevel: DefaultLogLevel,
		Audio: AudioConfig{
			Mode:            DefaultMode,
			FramesPerBuffer: DefaultFramesPerBuffer,
			LowLatency:      false,
			CaptureRate:     DefaultCaptureRate,
			CaptureChannels: DefaultCaptureChannels,
			ToneRate:        DefaultToneRate,
			Tone: ToneConfig{
				Waveform:       "sine",
				Frequency:      440,
				RightFrequency: 660,
				Volume:         0.5,
			},
			Osc: OscConfig{
				Preset:        "Circle",
				BaseFrequency: 440,
				Duration:      DefaultOscDuration,
			},
			Gate: GateConfig{
				Enabled:   false,
				Threshold: DefaultGateThreshold,
			},
		},
		Analysis: AnalysisConfig{
			FFTSize:         analysis.DefaultFFTSize,
			Window:          analysis.Hann.String(),
			BeatSensitivity: analysis.DefaultBeatSensitivity,
			FrameRate:       DefaultFrameRate,
			Bands:           true,
			Layers:          []LayerConfig{defaultLayer()},
		},
		Recording: RecordingConfig{
			Enabled:   false,
			OutputDir: "./recordings",
		},
		Transport: TransportConfig{
			WSEnabled:        true,
			WSAddress:        transport.DefaultWebSocketAddr,
			WSPath:           transport.DefaultWebSocketPath,
			WSQueueSize:      64,
			UDPEnabled:       false,
			UDPTargetAddress: "127.0.0.1:9090",
			UDPSendInterval:  udp.DefaultInterval,
			LogEvery:         0,
		},
		Export: ExportConfig{
			FPS:       DefaultFrameRate,
			OutputDir: ".",
		},
	}
}

// defaultLayer is the YAML form of analysis.DefaultLayerConfig. Layer
// entries in a file start from it, so omitted keys keep these values.
func defaultLayer() LayerConfig {
	l := analysis.DefaultLayerConfig()
	return LayerConfig{
		Name:          l.Name,
		Gain:          l.Gain,
		Falloff:       l.Falloff,
		Attack:        l.Attack,
		MinFreq:       l.MinFreq,
		MaxFreq:       l.MaxFreq,
		NumBars:       l.NumBars,
		Smoothing:     l.Smoothing,
		SpectrumPower: l.SpectrumPower,
		Channel:       l.Channel.String(),
	}
}

// durationOrDefault treats a non-positive duration as unset.
func durationOrDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
