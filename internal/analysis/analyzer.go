// SPDX-License-Identifier: MIT

// Package analysis turns sample blocks into a magnitude spectrum, log-spaced
// display bars and beat events. An Analyzer is owned by a single consumer
// goroutine and is not safe for concurrent use.
package analysis

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"audioscope/internal/log"
	"audioscope/pkg/bitint"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	DefaultFFTSize    = 8192
	DefaultSampleRate = 44100.0
)

var logger = log.With("Analysis")

var (
	ErrFFTSize    = errors.New("fft size must be a power of 2 and at least 4")
	ErrSampleRate = errors.New("sample rate must be positive")
)

// Options configures a new Analyzer. Zero values pick the defaults.
type Options struct {
	FFTSize         int
	SampleRate      float64
	Window          WindowFunc
	BeatSensitivity float64
}

// Pre-allocated buffers for FFT calculations.
type fftWorkspace struct {
	input     []float64    // windowed, zero-padded input
	fftOutput []complex128 // F/2+1 coefficients of the real transform
	magnitude []float64    // first F/2 magnitudes
	window    []float64    // window coefficients
}

// Analyzer computes a windowed FFT of the latest block and maps it onto the
// bars of any number of layers.
type Analyzer struct {
	fft        *fourier.FFT
	fftSize    int
	sampleRate float64
	windowType WindowFunc
	workspace  fftWorkspace
	beat       *BeatDetector
}

// New returns an Analyzer with all buffers allocated up front.
func New(opts Options) (*Analyzer, error) {
	if opts.FFTSize == 0 {
		opts.FFTSize = DefaultFFTSize
	}
	if opts.SampleRate == 0 {
		opts.SampleRate = DefaultSampleRate
	}
	if opts.BeatSensitivity == 0 {
		opts.BeatSensitivity = DefaultBeatSensitivity
	}
	if !bitint.IsPowerOfTwo(opts.FFTSize) || opts.FFTSize < 4 {
		return nil, fmt.Errorf("%w, got %d", ErrFFTSize, opts.FFTSize)
	}
	if opts.SampleRate < 0 || math.IsNaN(opts.SampleRate) || math.IsInf(opts.SampleRate, 0) {
		return nil, fmt.Errorf("%w, got %f", ErrSampleRate, opts.SampleRate)
	}

	n := opts.FFTSize
	logger.Infof("initializing analyzer (size: %d, sample rate: %.1f Hz, window: %v)", n, opts.SampleRate, opts.Window)

	return &Analyzer{
		fft:        fourier.NewFFT(n),
		fftSize:    n,
		sampleRate: opts.SampleRate,
		windowType: opts.Window,
		workspace: fftWorkspace{
			input:     make([]float64, n),
			fftOutput: make([]complex128, n/2+1),
			magnitude: make([]float64, n/2),
			window:    windowCoefficients(n, opts.Window),
		},
		beat: NewBeatDetector(n, opts.SampleRate, opts.BeatSensitivity),
	}, nil
}

func (a *Analyzer) FFTSize() int {
	return a.fftSize
}

func (a *Analyzer) SampleRate() float64 {
	return a.sampleRate
}

func (a *Analyzer) Window() WindowFunc {
	return a.windowType
}

// Beat exposes the detector, mainly to tune Sensitivity at runtime.
func (a *Analyzer) Beat() *BeatDetector {
	return a.beat
}

// SetSampleRate follows a source change. The bar mapping and the beat bin
// range depend on it; the FFT size does not.
func (a *Analyzer) SetSampleRate(rate float64) error {
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return fmt.Errorf("%w, got %f", ErrSampleRate, rate)
	}
	if rate == a.sampleRate {
		return nil
	}
	logger.Debugf("sample rate %.1f -> %.1f Hz", a.sampleRate, rate)
	a.sampleRate = rate
	a.beat.configure(a.fftSize, rate)
	return nil
}

// ComputeFFT windows up to FFTSize samples, zero-padding a shorter block,
// and refreshes the magnitude spectrum. An empty block leaves the previous
// spectrum untouched.
func (a *Analyzer) ComputeFFT(samples []float32) {
	if len(samples) == 0 {
		return
	}
	ws := &a.workspace

	// --- 1. Window & zero-pad ---
	n := min(len(samples), a.fftSize)
	for i := range n {
		ws.input[i] = float64(samples[i]) * ws.window[i]
	}
	clear(ws.input[n:])

	// --- 2. Transform ---
	a.fft.Coefficients(ws.fftOutput, ws.input)

	// --- 3. Magnitudes ---
	for i := range ws.magnitude {
		ws.magnitude[i] = cmplx.Abs(ws.fftOutput[i])
	}
}

// Magnitudes returns the analyzer's magnitude buffer (FFTSize/2 values). It
// is overwritten by the next ComputeFFT; copy it with MagnitudesInto to keep
// it.
func (a *Analyzer) Magnitudes() []float64 {
	return a.workspace.magnitude
}

// MagnitudesInto copies the magnitudes into dst, which must have exactly
// FFTSize/2 elements.
func (a *Analyzer) MagnitudesInto(dst []float64) error {
	if len(dst) != len(a.workspace.magnitude) {
		return fmt.Errorf("destination slice length %d does not match required length %d", len(dst), len(a.workspace.magnitude))
	}
	copy(dst, a.workspace.magnitude)
	return nil
}

// BinFrequency returns the centre frequency (Hz) of a magnitude bin, 0 for
// out of range bins.
func (a *Analyzer) BinFrequency(bin int) float64 {
	if bin < 0 || bin >= len(a.workspace.magnitude) {
		return 0
	}
	return a.fft.Freq(bin) * a.sampleRate
}

// clampBin limits a bin index to the magnitude buffer.
func (a *Analyzer) clampBin(bin int) int {
	return min(max(bin, 0), a.fftSize/2-1)
}

// EnergyInRange returns the largest magnitude among the bins covering
// [minHz, maxHz].
func (a *Analyzer) EnergyInRange(minHz, maxHz float64) float64 {
	scale := float64(a.fftSize) / a.sampleRate
	lo := a.clampBin(int(minHz * scale))
	hi := a.clampBin(int(maxHz * scale))

	var energy float64
	for _, m := range a.workspace.magnitude[lo : max(hi, lo-1)+1] {
		energy = max(energy, m)
	}
	return energy
}

// ComputeLayer maps the current spectrum onto the layer's bars and returns
// them. The returned slice belongs to the layer and is reused on the next
// call.
func (a *Analyzer) ComputeLayer(l *Layer) []float64 {
	l.ensure()
	cfg := &l.Config
	mags := a.workspace.magnitude
	n := len(l.prev)
	if n == 0 {
		return l.out
	}

	ratio := cfg.MaxFreq / cfg.MinFreq
	scale := float64(a.fftSize) / a.sampleRate

	for i := range n {
		// --- 1. Log-spaced bar frequency & interpolated magnitude ---
		f := cfg.MinFreq * math.Pow(ratio, float64(i)/float64(n))
		binIdx := f * scale
		b0 := int(binIdx)
		frac := binIdx - float64(b0)
		b1 := a.clampBin(b0 + 1)
		b0 = a.clampBin(b0)
		mag := mags[b0]*(1-frac) + mags[b1]*frac

		// --- 2. Gamma & gain ---
		if cfg.SpectrumPower != 1 {
			mag = math.Pow(mag, cfg.SpectrumPower)
		}
		mag *= cfg.Gain

		// --- 3. Attack / falloff against the previous value ---
		prev := l.prev[i]
		if mag > prev {
			mag = prev*(1-cfg.Attack) + mag*cfg.Attack
		} else {
			mag = prev * cfg.Falloff
		}
		l.prev[i] = mag
	}

	// --- 4. Spatial smoothing ---
	r := cfg.Smoothing
	if r <= 0 {
		copy(l.out, l.prev)
		return l.out
	}
	for i := range n {
		lo := max(i-r, 0)
		hi := min(i+r, n-1)
		var sum float64
		for _, v := range l.prev[lo : hi+1] {
			sum += v
		}
		l.out[i] = sum / float64(hi-lo+1)
	}
	return l.out
}

// Process runs ComputeFFT on the block and then ComputeLayer for each layer.
func (a *Analyzer) Process(samples []float32, layers ...*Layer) {
	a.ComputeFFT(samples)
	for _, l := range layers {
		a.ComputeLayer(l)
	}
}

// DetectBeat runs the beat detector on the current spectrum. It must be
// called once per frame with that frame's elapsed seconds.
func (a *Analyzer) DetectBeat(dt float64) bool {
	return a.beat.Detect(a.workspace.magnitude, dt)
}
