package config

import (
	"fmt"
	"time"

	"audioscope/internal/analysis"
	"audioscope/internal/audio"
	"audioscope/internal/log"
	"audioscope/internal/synth"
	"audioscope/internal/transport"
	"audioscope/internal/transport/udp"
)

// Level returns the effective log level. Debug forces LevelDebug.
func (c *Config) Level() log.LogLevel {
	if c.Debug {
		return log.LevelDebug
	}
	level, _ := log.ParseLevel(c.LogLevel)
	return level
}

// AnalysisLayers converts the configured layers. An empty list yields the
// default layer.
func (c *Config) AnalysisLayers() ([]analysis.LayerConfig, error) {
	layers := c.Analysis.Layers
	if len(layers) == 0 {
		layers = []LayerConfig{defaultLayer()}
	}
	out := make([]analysis.LayerConfig, 0, len(layers))
	seen := make(map[string]bool, len(layers))
	for i, l := range layers {
		ch, err := ringChannel(l.Channel)
		if err != nil {
			return nil, fmt.Errorf("analysis.layers[%d]: %w", i, err)
		}
		lc := analysis.LayerConfig{
			Name:          l.Name,
			Gain:          l.Gain,
			Falloff:       l.Falloff,
			Attack:        l.Attack,
			MinFreq:       l.MinFreq,
			MaxFreq:       l.MaxFreq,
			NumBars:       l.NumBars,
			Smoothing:     l.Smoothing,
			SpectrumPower: l.SpectrumPower,
			Channel:       ch,
		}
		if lc.Name == "" {
			lc.Name = fmt.Sprintf("layer%d", i)
		}
		if seen[lc.Name] {
			return nil, fmt.Errorf("analysis.layers[%d]: duplicate layer name %q", i, lc.Name)
		}
		seen[lc.Name] = true
		if err := lc.Validate(); err != nil {
			return nil, fmt.Errorf("analysis.layers[%d]: %w", i, err)
		}
		out = append(out, lc)
	}
	return out, nil
}

// Layers builds fresh analysis layers from the configuration.
func (c *Config) Layers() ([]*analysis.Layer, error) {
	configs, err := c.AnalysisLayers()
	if err != nil {
		return nil, err
	}
	layers := make([]*analysis.Layer, len(configs))
	for i, lc := range configs {
		layers[i] = analysis.NewLayer(lc)
	}
	return layers, nil
}

// Bands returns the band list to publish, nil when bands are disabled.
func (c *Config) Bands() []analysis.Band {
	if !c.Analysis.Bands {
		return nil
	}
	return analysis.DefaultBands()
}

// AnalyzerOptions returns the analyzer settings. The sample rate is left to
// the source.
func (c *Config) AnalyzerOptions() (analysis.Options, error) {
	w, err := analysis.ParseWindowFunc(c.Analysis.Window)
	if err != nil {
		return analysis.Options{}, err
	}
	return analysis.Options{
		FFTSize:         c.Analysis.FFTSize,
		Window:          w,
		BeatSensitivity: c.Analysis.BeatSensitivity,
	}, nil
}

// SourceOptions returns the audio source settings for backend b.
func (c *Config) SourceOptions(b audio.Backend) audio.Options {
	return audio.Options{
		Backend:         b,
		PlaybackDevice:  c.Audio.PlaybackDevice,
		FramesPerBuffer: c.Audio.FramesPerBuffer,
		LowLatency:      c.Audio.LowLatency,
		CaptureRate:     c.Audio.CaptureRate,
		CaptureChannels: c.Audio.CaptureChannels,
		ToneRate:        c.Audio.ToneRate,
		MonoCapacity:    c.Analysis.FFTSize,
		StereoCapacity:  c.Analysis.FFTSize * 2,
	}
}

// Tone returns the configured test tone.
func (c *Config) Tone() (synth.Tone, error) {
	w, err := synth.ParseWaveform(c.Audio.Tone.Waveform)
	if err != nil {
		return synth.Tone{}, err
	}
	return synth.Tone{
		Waveform:       w,
		Frequency:      c.Audio.Tone.Frequency,
		RightFrequency: c.Audio.Tone.RightFrequency,
		Volume:         c.Audio.Tone.Volume,
		Stereo:         c.Audio.Tone.Stereo,
	}, nil
}

// OscMusic returns a validated generator for the configured expressions,
// or the configured preset when no expressions are set.
func (c *Config) OscMusic() (*synth.OscMusic, error) {
	o := c.Audio.Osc
	x, y := o.X, o.Y
	if x == "" && y == "" {
		p, ok := synth.PresetByName(o.Preset)
		if !ok {
			return nil, fmt.Errorf("unknown osc preset %q", o.Preset)
		}
		x, y = p.X, p.Y
	}
	m := synth.NewOscMusic()
	if err := m.SetBaseFrequency(o.BaseFrequency); err != nil {
		return nil, err
	}
	if err := m.SetExpressions(x, y); err != nil {
		return nil, err
	}
	return m, nil
}

// WebSocketConfig returns the WebSocket transport settings.
func (c *Config) WebSocketConfig() transport.WebSocketConfig {
	return transport.WebSocketConfig{
		Addr:      c.Transport.WSAddress,
		Path:      c.Transport.WSPath,
		QueueSize: c.Transport.WSQueueSize,
	}
}

// UDPInterval is the UDP publish interval, defaulting when unset.
func (c *Config) UDPInterval() time.Duration {
	return durationOrDefault(c.Transport.UDPSendInterval, udp.DefaultInterval)
}
