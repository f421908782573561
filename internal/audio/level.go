// SPDX-License-Identifier: MIT
package audio

import "math"

// peakOf returns the largest absolute sample in the block.
func peakOf(samples []float32) float32 {
	var peak float32
	for _, v := range samples {
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return peak
}

func (s *Source) storePeak(samples []float32) {
	s.peak.Store(math.Float32bits(peakOf(samples)))
}

// PeakLevel is the absolute peak of the most recent callback block, 0..1
// for in-range audio.
func (s *Source) PeakLevel() float32 {
	return math.Float32frombits(s.peak.Load())
}

// LevelDB converts a linear peak to dBFS. Silence is -Inf.
func LevelDB(peak float32) float64 {
	if peak <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(float64(peak))
}

func (s *Source) EnableGate() {
	s.gateEnabled.Store(true)
}

func (s *Source) DisableGate() {
	s.gateEnabled.Store(false)
}

// SetGateThreshold sets the noise gate level in 0..1, where 0 is always
// open and 1 always closed.
func (s *Source) SetGateThreshold(threshold float64) {
	if threshold < 0.0 {
		threshold = 0.0
	}
	if threshold > 1.0 {
		threshold = 1.0
	}
	s.gateThreshold.Store(math.Float32bits(float32(threshold)))
}

// GateThreshold returns the noise gate level in 0..1.
func (s *Source) GateThreshold() float64 {
	return float64(math.Float32frombits(s.gateThreshold.Load()))
}

// GateOpen reports whether the last block was loud enough to analyse. A
// disabled gate is always open.
func (s *Source) GateOpen() bool {
	if !s.gateEnabled.Load() {
		return true
	}
	threshold := math.Float32frombits(s.gateThreshold.Load())
	return threshold <= 0 || s.PeakLevel() > threshold
}
