package analysis

import "testing"

func bassSpectrum(size int, level float64) []float64 {
	mags := make([]float64, size/2)
	for i := 3; i <= 27; i++ {
		mags[i] = level
	}
	return mags
}

func TestBeatCooldown(t *testing.T) {
	d := NewBeatDetector(8192, 44100, DefaultBeatSensitivity)
	spike := bassSpectrum(8192, 1)

	if !d.Detect(spike, 1.0/60) {
		t.Fatal("expected the first spike to fire")
	}
	// 50ms later, inside the 100ms cooldown.
	if d.Detect(spike, 0.05) {
		t.Fatal("expected the second spike to be suppressed by the cooldown")
	}
	// Cooldown elapsed.
	if !d.Detect(spike, 0.06) {
		t.Fatal("expected the third spike to fire after the cooldown")
	}
}

func TestBeatNoiseFloor(t *testing.T) {
	d := NewBeatDetector(8192, 44100, DefaultBeatSensitivity)
	quiet := bassSpectrum(8192, 0.005)
	for i := range 10 {
		if d.Detect(quiet, 0.2) {
			t.Fatalf("call %d: fired below the noise floor", i)
		}
	}
	if d.Detect(nil, 0.2) {
		t.Fatal("fired on an empty spectrum")
	}
}

func TestBeatSteadyEnergyStopsFiring(t *testing.T) {
	d := NewBeatDetector(8192, 44100, DefaultBeatSensitivity)
	steady := bassSpectrum(8192, 1)

	fired := 0
	for i := range 200 {
		if d.Detect(steady, 0.2) {
			if i >= 100 {
				t.Fatalf("call %d: steady energy still firing", i)
			}
			fired++
		}
	}
	// The average converges on the steady level, after which E > avg*1.3
	// no longer holds.
	if fired == 0 {
		t.Error("expected early detections while the average catches up")
	}
	if d.Average() < 0.99 {
		t.Errorf("expected the average to converge near 1, got %f", d.Average())
	}

	d.Reset()
	if d.Average() != 0 {
		t.Errorf("expected zero average after reset, got %f", d.Average())
	}
	if !d.Detect(steady, 0.2) {
		t.Error("expected a detection after reset")
	}
}

func TestBassEnergyIsMean(t *testing.T) {
	d := NewBeatDetector(8192, 44100, DefaultBeatSensitivity)
	mags := make([]float64, 4096)
	mags[3] = 25
	mags[27] = 25
	mags[28] = 1000 // outside the range
	if got := d.BassEnergy(mags); got != 2 {
		t.Errorf("expected mean 2, got %f", got)
	}
	if got := d.BassEnergy(mags[:2]); got != 0 {
		t.Errorf("expected 0 for a spectrum shorter than the range, got %f", got)
	}
}

func TestBeatDetectorSmallFFT(t *testing.T) {
	d := NewBeatDetector(16, 44100, DefaultBeatSensitivity)
	lo, hi := d.Bins()
	if lo != 0 || hi != 0 {
		t.Errorf("expected bins 0..0, got %d..%d", lo, hi)
	}
}

func TestAnalyzerDetectBeat(t *testing.T) {
	a, err := New(Options{FFTSize: 8192, SampleRate: 44100})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if a.DetectBeat(1.0 / 60) {
		t.Fatal("fired on silence")
	}
	copy(a.Magnitudes(), bassSpectrum(8192, 1))
	if !a.DetectBeat(1.0 / 60) {
		t.Fatal("expected a beat on a bass spike")
	}
	// Replaying the same spectrum advances the cooldown, so it does not fire.
	if a.DetectBeat(1.0 / 60) {
		t.Fatal("expected the replayed block to be suppressed")
	}
}
