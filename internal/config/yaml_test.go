// SPDX-License-Identifier: MIT
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"audioscope/internal/analysis"
	"audioscope/internal/log"
	"audioscope/internal/ring"
	"audioscope/internal/synth"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if cfg == nil {
		t.Fatal("expected default config, got nil")
	}
	if cfg.Analysis.FFTSize != analysis.DefaultFFTSize {
		t.Errorf("FFTSize = %d, want %d", cfg.Analysis.FFTSize, analysis.DefaultFFTSize)
	}
	if cfg.Audio.Mode != ModeIdle {
		t.Errorf("Mode = %q, want %q", cfg.Audio.Mode, ModeIdle)
	}
}

func TestLoadConfig_SearchesWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("analysis:\n  fft_size: 1024\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Analysis.FFTSize != 1024 {
		t.Errorf("FFTSize = %d, want 1024", cfg.Analysis.FFTSize)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("nonexistent.yaml")
	if err == nil {
		t.Errorf("expected error for missing file, got nil")
	}
	if cfg != nil {
		t.Errorf("expected nil config on error, got %+v", cfg)
	}
}

func TestLoadConfig_UnmarshalError(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, ":\n:bad")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Error("expected unmarshal error, got nil or wrong error")
	}
}

func TestLoadConfig_PartialFileKeepsDefaults(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `
audio:
  mode: tone
  tone:
    frequency: 1000
transport:
  udp_send_interval: 33ms
analysis:
  layers:
    - name: bass
      max_freq: 250
      num_bars: 32
      channel: left
    - name: full
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Audio.Tone.Frequency != 1000 {
		t.Errorf("tone frequency = %g, want 1000", cfg.Audio.Tone.Frequency)
	}
	if cfg.Audio.Tone.Volume != 0.5 {
		t.Errorf("tone volume = %g, want default 0.5", cfg.Audio.Tone.Volume)
	}
	if cfg.Audio.FramesPerBuffer != DefaultFramesPerBuffer {
		t.Errorf("frames per buffer = %d, want %d", cfg.Audio.FramesPerBuffer, DefaultFramesPerBuffer)
	}
	if cfg.UDPInterval() != 33*time.Millisecond {
		t.Errorf("udp interval = %s, want 33ms", cfg.UDPInterval())
	}

	layers, err := cfg.AnalysisLayers()
	if err != nil {
		t.Fatalf("AnalysisLayers: %v", err)
	}
	if len(layers) != 2 {
		t.Fatalf("got %d layers, want 2", len(layers))
	}
	def := analysis.DefaultLayerConfig()
	bass := layers[0]
	if bass.Name != "bass" || bass.NumBars != 32 || bass.MaxFreq != 250 || bass.Channel != ring.Left {
		t.Errorf("bass layer = %+v", bass)
	}
	if bass.MinFreq != def.MinFreq || bass.Falloff != def.Falloff || bass.Attack != def.Attack {
		t.Errorf("bass layer lost defaults: %+v", bass)
	}
	if full := layers[1]; full.NumBars != def.NumBars || full.Channel != ring.Mixed {
		t.Errorf("full layer = %+v", full)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"unknown mode", func(c *Config) { c.Audio.Mode = "radio" }, "audio.mode"},
		{"file mode without file", func(c *Config) { c.Audio.Mode = ModeFile }, "audio.file"},
		{"capture rate low", func(c *Config) { c.Audio.CaptureRate = 4000 }, "capture_sample_rate"},
		{"tone rate high", func(c *Config) { c.Audio.ToneRate = 384000 }, "tone_sample_rate"},
		{"buffer too large", func(c *Config) { c.Audio.FramesPerBuffer = MaxBufferFrames * 2 }, "frames_per_buffer"},
		{"capture channels", func(c *Config) { c.Audio.CaptureChannels = 6 }, "capture_channels"},
		{"waveform", func(c *Config) { c.Audio.Tone.Waveform = "organ" }, "waveform"},
		{"tone above nyquist", func(c *Config) { c.Audio.Tone.Frequency = 30000 }, "tone.frequency"},
		{"volume", func(c *Config) { c.Audio.Tone.Volume = 1.5 }, "volume"},
		{"unknown preset", func(c *Config) { c.Audio.Osc.Preset = "Nope" }, "osc.preset"},
		{"half expression", func(c *Config) { c.Audio.Osc.X = "sin(t)" }, "set together"},
		{"gate threshold", func(c *Config) { c.Audio.Gate.Threshold = 2 }, "gate.threshold"},
		{"fft not power of two", func(c *Config) { c.Analysis.FFTSize = 1000 }, "fft_size"},
		{"fft too small", func(c *Config) { c.Analysis.FFTSize = 128 }, "fft_size"},
		{"fft too large", func(c *Config) { c.Analysis.FFTSize = 1 << 17 }, "fft_size"},
		{"window", func(c *Config) { c.Analysis.Window = "kaiser" }, "fft_window"},
		{"frame rate", func(c *Config) { c.Analysis.FrameRate = 0 }, "frame_rate"},
		{"layer bars", func(c *Config) { c.Analysis.Layers[0].NumBars = 0 }, "bar count"},
		{"layer falloff", func(c *Config) { c.Analysis.Layers[0].Falloff = 1.1 }, "falloff"},
		{"layer channel", func(c *Config) { c.Analysis.Layers[0].Channel = "center" }, "unknown channel"},
		{"duplicate layer", func(c *Config) {
			c.Analysis.Layers = append(c.Analysis.Layers, c.Analysis.Layers[0])
		}, "duplicate layer"},
		{"udp without port", func(c *Config) {
			c.Transport.UDPEnabled = true
			c.Transport.UDPTargetAddress = "localhost"
		}, "missing port"},
		{"ws path", func(c *Config) { c.Transport.WSPath = "ws" }, "ws_path"},
		{"export fps", func(c *Config) { c.Export.FPS = -1 }, "export.fps"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.want == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestValidate_JoinsErrors(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Analysis.FFTSize = 3
	cfg.Audio.CaptureRate = 1
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"fft_size", "capture_sample_rate"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ENV_DEBUG", "true")
	t.Setenv("ENV_LOG_LEVEL", "warn")
	t.Setenv("ENV_AUDIO_MODE", " Capture ")
	t.Setenv("ENV_WS_ENABLED", "false")
	t.Setenv("ENV_UDP_ENABLED", "1")
	t.Setenv("ENV_UDP_TARGET_ADDRESS", "10.0.0.2:7000")
	t.Setenv("ENV_UDP_SEND_INTERVAL", "not-a-duration")

	path := writeTempConfig(t, "log_level: error\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !cfg.Debug || cfg.Level() != log.LevelDebug {
		t.Errorf("debug override not applied: debug=%v level=%v", cfg.Debug, cfg.Level())
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
	if cfg.Audio.Mode != ModeCapture {
		t.Errorf("Mode = %q, want capture", cfg.Audio.Mode)
	}
	if cfg.Transport.WSEnabled {
		t.Error("WSEnabled should be overridden to false")
	}
	if !cfg.Transport.UDPEnabled || cfg.Transport.UDPTargetAddress != "10.0.0.2:7000" {
		t.Errorf("udp override = %v %q", cfg.Transport.UDPEnabled, cfg.Transport.UDPTargetAddress)
	}
	if cfg.UDPInterval() != Default().Transport.UDPSendInterval {
		t.Errorf("invalid interval override should be ignored, got %s", cfg.UDPInterval())
	}
}

func TestEnvOverrides_InvalidModeFailsValidation(t *testing.T) {
	t.Setenv("ENV_AUDIO_MODE", "radio")
	_, err := LoadConfig(writeTempConfig(t, ""))
	if err == nil || !strings.Contains(err.Error(), "audio.mode") {
		t.Fatalf("expected audio.mode error, got %v", err)
	}
}

func TestConversions(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Audio.Tone.Waveform = "square"
	cfg.Audio.Tone.Stereo = true
	cfg.Analysis.Window = "hamming"

	tone, err := cfg.Tone()
	if err != nil {
		t.Fatalf("Tone: %v", err)
	}
	if tone.Waveform != synth.Square || !tone.Stereo || tone.RightFrequency != 660 {
		t.Errorf("tone = %+v", tone)
	}

	opts, err := cfg.AnalyzerOptions()
	if err != nil {
		t.Fatalf("AnalyzerOptions: %v", err)
	}
	if opts.Window != analysis.Hamming || opts.FFTSize != analysis.DefaultFFTSize {
		t.Errorf("analyzer options = %+v", opts)
	}
	if _, err := analysis.New(opts); err != nil {
		t.Errorf("analysis.New: %v", err)
	}

	layers, err := cfg.Layers()
	if err != nil || len(layers) != 1 || len(layers[0].Bars()) != analysis.DefaultLayerConfig().NumBars {
		t.Errorf("Layers() = %v, %v", layers, err)
	}

	if got := len(cfg.Bands()); got != len(analysis.DefaultBands()) {
		t.Errorf("Bands() has %d entries", got)
	}
	cfg.Analysis.Bands = false
	if cfg.Bands() != nil {
		t.Error("Bands() should be nil when disabled")
	}

	src := cfg.SourceOptions(nil)
	if src.CaptureRate != DefaultCaptureRate || src.MonoCapacity != cfg.Analysis.FFTSize {
		t.Errorf("source options = %+v", src)
	}

	ws := cfg.WebSocketConfig()
	if ws.Addr != cfg.Transport.WSAddress || ws.Path != cfg.Transport.WSPath {
		t.Errorf("websocket config = %+v", ws)
	}
}

func TestOscMusic(t *testing.T) {
	t.Parallel()
	cfg := Default()
	m, err := cfg.OscMusic()
	if err != nil {
		t.Fatalf("OscMusic: %v", err)
	}
	p, _ := synth.PresetByName("Circle")
	if x, y := m.Expressions(); x != p.X || y != p.Y {
		t.Errorf("expressions = %q, %q", x, y)
	}

	cfg.Audio.Osc.X = "sin(t"
	cfg.Audio.Osc.Y = "cos(t)"
	if _, err := cfg.OscMusic(); err == nil {
		t.Error("expected a syntax error")
	}
}
