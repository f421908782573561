package synth

import (
	"math/rand/v2"
)

// Tone describes a test tone. RightFrequency is only read when Stereo is
// set; it drives an independent right-channel phase so the pair traces a
// Lissajous figure.
type Tone struct {
	Waveform       Waveform
	Frequency      float64
	RightFrequency float64
	Volume         float64
	Stereo         bool
}

// DefaultTone is a 440 Hz sine at half volume.
func DefaultTone() Tone {
	return Tone{Waveform: Sine, Frequency: 440, RightFrequency: 660, Volume: 0.5}
}

// Oscillator holds the phase accumulators for a Tone. It is owned by a
// single goroutine (the audio callback) and does not allocate while
// rendering.
type Oscillator struct {
	tone       Tone
	sampleRate float64
	phaseL     float64
	phaseR     float64
	stepL      float64
	stepR      float64
	rng        *rand.Rand
}

// NewOscillator prepares an oscillator for the given tone and sample rate.
func NewOscillator(tone Tone, sampleRate float64) *Oscillator {
	o := &Oscillator{
		sampleRate: sampleRate,
		rng:        rand.New(rand.NewPCG(0x5eed, 0xa0d10)),
	}
	o.SetTone(tone)
	return o
}

// SetTone swaps the tone parameters while keeping the current phases, so
// a frequency change does not click.
func (o *Oscillator) SetTone(tone Tone) {
	o.tone = tone
	o.stepL = twoPi * tone.Frequency / o.sampleRate
	o.stepR = twoPi * tone.RightFrequency / o.sampleRate
}

// Tone returns the current parameters.
func (o *Oscillator) Tone() Tone { return o.tone }

// Phase returns the left and right accumulators, each in [0, 2π).
func (o *Oscillator) Phase() (left, right float64) { return o.phaseL, o.phaseR }

// Next renders one frame and advances the phases.
func (o *Oscillator) Next() (left, right float32) {
	vol := float32(o.tone.Volume)
	left = o.tone.Waveform.At(o.phaseL, o.rng) * vol
	if o.tone.Stereo {
		right = o.tone.Waveform.At(o.phaseR, o.rng) * vol
	} else {
		right = left
	}

	o.phaseL = advance(o.phaseL, o.stepL)
	o.phaseR = advance(o.phaseR, o.stepR)
	return left, right
}

// Fill renders len(out)/channels interleaved frames. Mono output gets the
// left signal; channels past the second are silent.
func (o *Oscillator) Fill(out []float32, channels int) {
	if channels < 1 {
		return
	}
	frames := len(out) / channels
	for i := 0; i < frames; i++ {
		l, r := o.Next()
		base := i * channels
		out[base] = l
		if channels > 1 {
			out[base+1] = r
		}
		for c := 2; c < channels; c++ {
			out[base+c] = 0
		}
	}
}

func advance(phase, step float64) float64 {
	phase += step
	if phase >= twoPi {
		phase -= twoPi
		if phase >= twoPi {
			phase = wrap(phase)
		}
	}
	if phase < 0 {
		phase = wrap(phase)
	}
	return phase
}
