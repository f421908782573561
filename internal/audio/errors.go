package audio

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceNotFound means no device matched the requested name or
	// direction.
	ErrDeviceNotFound = errors.New("audio device not found")
	// ErrNoDecoder is returned by decoder queries when no file is loaded.
	ErrNoDecoder = errors.New("no decoder loaded")
	// ErrInvalidBuffer rejects empty or odd-length precomputed buffers.
	ErrInvalidBuffer = errors.New("precomputed buffer must hold interleaved stereo frames")
	// ErrNotRunning is returned by operations that need an open stream.
	ErrNotRunning = errors.New("no audio stream running")
)

// DeviceError reports a failure to open or start a device.
type DeviceError struct {
	Op     string
	Device string
	Err    error
}

func (e *DeviceError) Error() string {
	name := e.Device
	if name == "" {
		name = "default"
	}
	return fmt.Sprintf("audio: %s device %q: %v", e.Op, name, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// DecodeError reports a file that could not be opened for playback.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("audio: decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
