// SPDX-License-Identifier: MIT
package analysis

const (
	DefaultBeatSensitivity = 1.3

	beatCooldown   = 0.1  // seconds between detections
	beatNoiseFloor = 0.01 // bass energy below this never fires
	beatDecay      = 0.95 // moving average weight of the previous value
	bassLowHz      = 20.0
	bassHighHz     = 150.0
)

// BeatDetector fires when the bass energy of a frame rises above its
// moving average by Sensitivity. It is stateful: call Detect exactly once
// per frame, replaying a block advances the average and the cooldown again.
type BeatDetector struct {
	Sensitivity float64

	average float64
	timer   float64
	minBin  int
	maxBin  int
}

// NewBeatDetector derives the bass bin range from the FFT size and sample
// rate, 8192 points at 44.1kHz gives bins 3..27.
func NewBeatDetector(fftSize int, sampleRate, sensitivity float64) *BeatDetector {
	d := &BeatDetector{Sensitivity: sensitivity}
	d.configure(fftSize, sampleRate)
	return d
}

func (d *BeatDetector) configure(fftSize int, sampleRate float64) {
	last := fftSize/2 - 1
	d.minBin = min(max(int(bassLowHz*float64(fftSize)/sampleRate), 0), last)
	d.maxBin = min(max(int(bassHighHz*float64(fftSize)/sampleRate), d.minBin), last)
}

// Bins returns the inclusive magnitude bin range averaged for bass energy.
func (d *BeatDetector) Bins() (lo, hi int) {
	return d.minBin, d.maxBin
}

// Average is the current moving average of bass energy.
func (d *BeatDetector) Average() float64 {
	return d.average
}

// Reset clears the moving average and cooldown.
func (d *BeatDetector) Reset() {
	d.average = 0
	d.timer = 0
}

// BassEnergy is the mean magnitude over the bass bins.
func (d *BeatDetector) BassEnergy(magnitudes []float64) float64 {
	hi := min(d.maxBin, len(magnitudes)-1)
	if hi < d.minBin {
		return 0
	}
	var sum float64
	for _, m := range magnitudes[d.minBin : hi+1] {
		sum += m
	}
	return sum / float64(hi-d.minBin+1)
}

// Detect advances the detector by dt seconds and reports a beat.
func (d *BeatDetector) Detect(magnitudes []float64, dt float64) bool {
	if len(magnitudes) == 0 {
		return false
	}
	energy := d.BassEnergy(magnitudes)
	d.average = d.average*beatDecay + energy*(1-beatDecay)

	d.timer -= dt
	if d.timer <= 0 && energy > d.average*d.Sensitivity && energy > beatNoiseFloor {
		d.timer = beatCooldown
		return true
	}
	return false
}
