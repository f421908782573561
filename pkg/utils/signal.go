// Package utils holds small signal helpers shared by tests and the offline
// export path: test tone generators, interleaving and peak search.
package utils

import "math"

// SineWave returns frames of a mono sine at the given frequency and amplitude.
func SineWave(frames int, sampleRate, frequency, amplitude float64) []float32 {
	buffer := make([]float32, frames)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = float32(amplitude * math.Sin(2*math.Pi*frequency*t))
	}
	return buffer
}

// ComplexWave returns a 440 Hz fundamental with two harmonics, peaking
// just under full scale.
func ComplexWave(frames int, sampleRate float64) []float32 {
	buffer := make([]float32, frames)
	for i := range buffer {
		t := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*t)*0.5 +
			math.Sin(2*math.Pi*880*t)*0.3 +
			math.Sin(2*math.Pi*1320*t)*0.2
		buffer[i] = float32(signal * 0.9)
	}
	return buffer
}

// Interleave zips two mono channels into L,R,L,R... The shorter channel
// determines the frame count.
func Interleave(left, right []float32) []float32 {
	n := min(len(left), len(right))
	out := make([]float32, n*2)
	for i := 0; i < n; i++ {
		out[i*2] = left[i]
		out[i*2+1] = right[i]
	}
	return out
}

// Replicate builds an interleaved buffer with the same mono signal on every
// channel.
func Replicate(mono []float32, channels int) []float32 {
	if channels < 1 {
		channels = 1
	}
	out := make([]float32, len(mono)*channels)
	for i, v := range mono {
		for c := 0; c < channels; c++ {
			out[i*channels+c] = v
		}
	}
	return out
}

// FindPeakBin returns the index of the largest value in [startBin, endBin],
// clamping the range to the slice.
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}
	if startBin < 0 {
		startBin = 0
	}
	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}
	if startBin > endBin {
		return startBin
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]
	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}
	return peakBin
}

// BinFrequency converts an FFT bin index to its centre frequency in Hz.
func BinFrequency(bin, fftSize int, sampleRate float64) float64 {
	if fftSize <= 0 {
		return 0
	}
	return float64(bin) * sampleRate / float64(fftSize)
}
