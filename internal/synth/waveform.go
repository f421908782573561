// Package synth generates the synthetic signals the audio source can play:
// basic periodic waveforms driven by a phase accumulator, white noise, and
// expression-defined XY curves for oscilloscope music.
package synth

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
)

const twoPi = 2 * math.Pi

// Waveform selects the shape produced by an Oscillator.
type Waveform int

const (
	Sine Waveform = iota
	Square
	Sawtooth
	Triangle
	Noise
)

var waveformNames = [...]string{"sine", "square", "sawtooth", "triangle", "noise"}

func (w Waveform) String() string {
	if w < 0 || int(w) >= len(waveformNames) {
		return fmt.Sprintf("waveform(%d)", int(w))
	}
	return waveformNames[w]
}

// ParseWaveform accepts the waveform names, case-insensitive, plus "saw"
// and "tri".
func ParseWaveform(s string) (Waveform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sine", "sin":
		return Sine, nil
	case "square":
		return Square, nil
	case "sawtooth", "saw":
		return Sawtooth, nil
	case "triangle", "tri":
		return Triangle, nil
	case "noise", "white":
		return Noise, nil
	}
	return Sine, fmt.Errorf("unknown waveform %q", s)
}

// SineAt returns sin(phase).
func SineAt(phase float64) float32 {
	return float32(math.Sin(phase))
}

// SquareAt is +1 for the first half of the cycle and -1 for the second.
func SquareAt(phase float64) float32 {
	if wrap(phase) < math.Pi {
		return 1
	}
	return -1
}

// SawtoothAt ramps from -1 to +1 over one cycle.
func SawtoothAt(phase float64) float32 {
	return float32(wrap(phase)/math.Pi - 1)
}

// TriangleAt starts at zero and rises, in phase with SineAt.
func TriangleAt(phase float64) float32 {
	p := wrap(phase) / twoPi
	switch {
	case p < 0.25:
		return float32(4 * p)
	case p < 0.75:
		return float32(2 - 4*p)
	default:
		return float32(4*p - 4)
	}
}

// WhiteNoise returns a uniform sample in [-1, 1).
func WhiteNoise(rng *rand.Rand) float32 {
	return float32(rng.Float64()*2 - 1)
}

// At evaluates w at phase. Noise draws from rng.
func (w Waveform) At(phase float64, rng *rand.Rand) float32 {
	switch w {
	case Square:
		return SquareAt(phase)
	case Sawtooth:
		return SawtoothAt(phase)
	case Triangle:
		return TriangleAt(phase)
	case Noise:
		return WhiteNoise(rng)
	default:
		return SineAt(phase)
	}
}

// wrap folds phase into [0, 2π).
func wrap(phase float64) float64 {
	if phase >= 0 && phase < twoPi {
		return phase
	}
	phase = math.Mod(phase, twoPi)
	if phase < 0 {
		phase += twoPi
	}
	return phase
}
