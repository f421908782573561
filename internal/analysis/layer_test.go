package analysis

import (
	"testing"

	"audioscope/internal/ring"
)

func TestLayerConfigValidate(t *testing.T) {
	if err := DefaultLayerConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	tests := []struct {
		name   string
		modify func(*LayerConfig)
	}{
		{"zero bars", func(c *LayerConfig) { c.NumBars = 0 }},
		{"zero min freq", func(c *LayerConfig) { c.MinFreq = 0 }},
		{"inverted range", func(c *LayerConfig) { c.MaxFreq = c.MinFreq }},
		{"falloff above one", func(c *LayerConfig) { c.Falloff = 1.5 }},
		{"negative attack", func(c *LayerConfig) { c.Attack = -0.1 }},
		{"negative smoothing", func(c *LayerConfig) { c.Smoothing = -1 }},
		{"zero power", func(c *LayerConfig) { c.SpectrumPower = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultLayerConfig()
			tt.modify(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected an error for %+v", cfg)
			}
		})
	}
}

func TestNewLayerAllocatesHistory(t *testing.T) {
	cfg := DefaultLayerConfig()
	cfg.NumBars = 12
	cfg.Channel = ring.Left
	l := NewLayer(cfg)
	if len(l.History()) != 12 || len(l.Bars()) != 12 {
		t.Fatalf("expected 12 slots, got %d/%d", len(l.History()), len(l.Bars()))
	}
	if l.Config.Channel != ring.Left {
		t.Errorf("expected left channel, got %v", l.Config.Channel)
	}

	cfg.NumBars = -3
	if l := NewLayer(cfg); len(l.History()) != 0 {
		t.Errorf("expected no history for a negative bar count, got %d", len(l.History()))
	}
}
