package decode

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// ReadFramesAt seeks dec to offset and reads count frames, zero-padding
// past the end of the stream. The decoder is left after the last frame
// read.
func ReadFramesAt(dec Decoder, offset int64, count int) ([]float32, error) {
	if count <= 0 {
		return []float32{}, nil
	}
	if offset < 0 {
		return nil, fmt.Errorf("negative frame offset %d", offset)
	}
	out := make([]float32, count*dec.Channels())
	if length := dec.Length(); length >= 0 && offset >= length {
		return out, nil
	}
	if err := dec.SeekFrame(offset); err != nil {
		return nil, fmt.Errorf("seek to frame %d: %w", offset, err)
	}
	if _, err := dec.ReadFrames(out); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read at frame %d: %w", offset, err)
	}
	return out, nil
}

// Reader is random access over a decoder with no playback attached, for
// offline analysis of a file.
type Reader struct {
	mu  sync.Mutex
	dec Decoder
}

// OpenReader opens path with the default registry.
func OpenReader(path string) (*Reader, error) {
	dec, err := Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{dec: dec}, nil
}

// NewReader wraps an open decoder. The reader takes ownership of it.
func NewReader(dec Decoder) *Reader {
	return &Reader{dec: dec}
}

func (r *Reader) DecoderFormat() (channels, sampleRate int, err error) {
	return r.dec.Channels(), r.dec.SampleRate(), nil
}

// Duration is the stream length in seconds, 0 when unknown.
func (r *Reader) Duration() float64 {
	if r.dec.SampleRate() <= 0 || r.dec.Length() < 0 {
		return 0
	}
	return float64(r.dec.Length()) / float64(r.dec.SampleRate())
}

func (r *Reader) ReadFramesAt(offset int64, count int) ([]float32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ReadFramesAt(r.dec, offset, count)
}

func (r *Reader) Close() error {
	return r.dec.Close()
}
