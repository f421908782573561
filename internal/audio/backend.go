package audio

import "time"

// Device describes one host audio device.
type Device struct {
	ID                int
	Name              string
	HostAPI           string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
	LowLatency        time.Duration
	HighLatency       time.Duration
	DefaultInput      bool
	DefaultOutput     bool
}

// Kind describes the device direction.
func (d Device) Kind() string {
	switch {
	case d.MaxInputChannels > 0 && d.MaxOutputChannels > 0:
		return "Input/Output"
	case d.MaxInputChannels > 0:
		return "Input"
	case d.MaxOutputChannels > 0:
		return "Output"
	default:
		return "None"
	}
}

// StreamConfig describes a stream to open. An empty Device selects the
// system default for the stream's direction.
type StreamConfig struct {
	Device          string
	Channels        int
	SampleRate      float64
	FramesPerBuffer int
	LowLatency      bool
}

// Stream is an open device stream. Stop blocks until the callback has
// returned for the last time.
type Stream interface {
	Start() error
	Stop() error
	Close() error
}

// Backend opens device streams. Callbacks receive interleaved float32
// buffers and run on the host's audio thread.
type Backend interface {
	Devices() ([]Device, error)
	OpenPlayback(cfg StreamConfig, fill func(out []float32)) (Stream, error)
	OpenCapture(cfg StreamConfig, consume func(in []float32)) (Stream, error)
}
