// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"

	"audioscope/internal/ring"
)

// LayerConfig is one visual layer's view of the spectrum.
type LayerConfig struct {
	Name          string
	Gain          float64
	Falloff       float64 // decay multiplier applied when the new value is lower
	Attack        float64 // blend toward a higher value, 1 is instant
	MinFreq       float64
	MaxFreq       float64
	NumBars       int
	Smoothing     int // spatial smoothing radius in bars, 0 disables it
	SpectrumPower float64
	Channel       ring.Channel
}

// DefaultLayerConfig mirrors the values a fresh layer starts with.
func DefaultLayerConfig() LayerConfig {
	return LayerConfig{
		Name:          "default",
		Gain:          1.0,
		Falloff:       0.9,
		Attack:        0.8,
		MinFreq:       20,
		MaxFreq:       20000,
		NumBars:       256,
		Smoothing:     1,
		SpectrumPower: 1.0,
		Channel:       ring.Mixed,
	}
}

// Validate reports configurations that cannot produce bars.
func (c LayerConfig) Validate() error {
	switch {
	case c.NumBars <= 0:
		return fmt.Errorf("layer %q: bar count must be positive, got %d", c.Name, c.NumBars)
	case c.MinFreq <= 0:
		return fmt.Errorf("layer %q: min frequency must be positive, got %g", c.Name, c.MinFreq)
	case c.MaxFreq <= c.MinFreq:
		return fmt.Errorf("layer %q: max frequency %g must exceed min frequency %g", c.Name, c.MaxFreq, c.MinFreq)
	case c.Falloff < 0 || c.Falloff > 1:
		return fmt.Errorf("layer %q: falloff must be in [0, 1], got %g", c.Name, c.Falloff)
	case c.Attack < 0 || c.Attack > 1:
		return fmt.Errorf("layer %q: attack must be in [0, 1], got %g", c.Name, c.Attack)
	case c.Smoothing < 0:
		return fmt.Errorf("layer %q: smoothing must not be negative, got %d", c.Name, c.Smoothing)
	case c.SpectrumPower <= 0:
		return fmt.Errorf("layer %q: spectrum power must be positive, got %g", c.Name, c.SpectrumPower)
	}
	return nil
}

// Layer pairs a LayerConfig with the per-bar history used for temporal
// smoothing. The history always has Config.NumBars entries after a compute;
// a bar count change discards it.
type Layer struct {
	Config LayerConfig

	prev []float64 // temporally smoothed values, carried between computes
	out  []float64 // spatially smoothed output
}

// NewLayer returns a layer with zeroed history.
func NewLayer(cfg LayerConfig) *Layer {
	l := &Layer{Config: cfg}
	l.ensure()
	return l
}

// Bars returns the output of the most recent compute. The slice is reused.
func (l *Layer) Bars() []float64 {
	return l.out
}

// History returns the temporally smoothed values kept between computes.
func (l *Layer) History() []float64 {
	return l.prev
}

// Reset zeroes the history.
func (l *Layer) Reset() {
	clear(l.prev)
	clear(l.out)
}

// ensure reallocates the buffers when the bar count changed since the last
// compute.
func (l *Layer) ensure() {
	n := max(l.Config.NumBars, 0)
	if len(l.prev) == n {
		return
	}
	l.prev = make([]float64, n)
	l.out = make([]float64, n)
}
