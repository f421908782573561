package audio

import (
	"fmt"

	"audioscope/internal/synth"
)

// Mode is the active source of samples. Exactly one is active at a time:
// Idle, FilePlayback, LiveCapture, ToneGenerator or PrecomputedBuffer.
type Mode interface {
	fmt.Stringer
	mode()
}

// Idle means no device or decoder is open.
type Idle struct{}

// FilePlayback streams a decoded file to the playback device, looping.
type FilePlayback struct {
	Path string
}

// LiveCapture copies an input device into the rings. An empty Device is the
// system default.
type LiveCapture struct {
	Device string
}

// ToneGenerator plays a synthesized test tone.
type ToneGenerator struct {
	Tone synth.Tone
}

// PrecomputedBuffer loops an interleaved stereo buffer.
type PrecomputedBuffer struct {
	Frames     int
	SampleRate int
}

func (Idle) mode()              {}
func (FilePlayback) mode()      {}
func (LiveCapture) mode()       {}
func (ToneGenerator) mode()     {}
func (PrecomputedBuffer) mode() {}

func (Idle) String() string { return "idle" }

func (m FilePlayback) String() string { return "file:" + m.Path }

func (m LiveCapture) String() string {
	if m.Device == "" {
		return "capture:default"
	}
	return "capture:" + m.Device
}

func (m ToneGenerator) String() string {
	if m.Tone.Stereo {
		return fmt.Sprintf("tone:%s %.1f/%.1fHz", m.Tone.Waveform, m.Tone.Frequency, m.Tone.RightFrequency)
	}
	return fmt.Sprintf("tone:%s %.1fHz", m.Tone.Waveform, m.Tone.Frequency)
}

func (m PrecomputedBuffer) String() string {
	return fmt.Sprintf("buffer:%d frames @ %dHz", m.Frames, m.SampleRate)
}
