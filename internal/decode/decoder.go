// Package decode opens audio files as seekable streams of interleaved
// float32 frames. Every format streams from the file; nothing is decoded
// ahead of the read cursor.
package decode

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	// ErrUnsupportedFormat is returned when no decoder accepts a file.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	// ErrShortBuffer is returned when a destination cannot hold one frame.
	ErrShortBuffer = errors.New("destination shorter than one frame")
)

// Decoder is a seekable source of interleaved float32 PCM frames.
type Decoder interface {
	SampleRate() int
	Channels() int
	// ReadFrames fills dst (a multiple of Channels) and returns the number
	// of frames read. A short read is only returned together with io.EOF.
	ReadFrames(dst []float32) (int, error)
	// SeekFrame moves the cursor to an absolute frame.
	SeekFrame(frame int64) error
	// Position is the cursor in frames.
	Position() int64
	// Length is the total frame count, or -1 when unknown.
	Length() int64
	Close() error
}

// Opener builds a decoder from an open file. The decoder owns the file and
// closes it; an Opener that fails leaves closing to the caller.
type Opener func(f *os.File) (Decoder, error)

// Registry maps format names (file extensions without the dot) to openers.
type Registry struct {
	mu      sync.Mutex
	openers map[string]Opener
}

func NewRegistry() *Registry {
	return &Registry{openers: make(map[string]Opener)}
}

// Register adds or replaces the opener for a format.
func (r *Registry) Register(format string, o Opener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.openers[strings.ToLower(format)] = o
}

// Lookup returns the opener for a format.
func (r *Registry) Lookup(format string) (Opener, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.openers[strings.ToLower(format)]
	return o, ok
}

// Formats lists the registered format names.
func (r *Registry) Formats() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.openers))
	for k := range r.openers {
		out = append(out, k)
	}
	return out
}

// Open decodes the file at path. The format comes from the file's magic
// bytes, falling back to the extension.
func (r *Registry) Open(path string) (Decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	format, err := sniff(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	if format == "" {
		format = strings.TrimPrefix(filepath.Ext(path), ".")
	}

	open, ok := r.Lookup(format)
	if !ok {
		f.Close()
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	dec, err := open(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", format, err)
	}
	return dec, nil
}

// sniff reads the first bytes of f, rewinds, and names the container.
func sniff(f io.ReadSeeker) (string, error) {
	var head [12]byte
	n, err := io.ReadFull(f, head[:])
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	h := head[:n]

	switch {
	case len(h) >= 12 && bytes.Equal(h[:4], []byte("RIFF")) && bytes.Equal(h[8:12], []byte("WAVE")):
		return "wav", nil
	case len(h) >= 12 && bytes.Equal(h[:4], []byte("FORM")) &&
		(bytes.Equal(h[8:12], []byte("AIFF")) || bytes.Equal(h[8:12], []byte("AIFC"))):
		return "aiff", nil
	case bytes.HasPrefix(h, []byte("OggS")):
		return "ogg", nil
	case bytes.HasPrefix(h, []byte("ID3")):
		return "mp3", nil
	case len(h) >= 2 && h[0] == 0xFF && h[1]&0xE0 == 0xE0:
		return "mp3", nil
	}
	return "", nil
}

var defaultRegistry = newDefaultRegistry()

func newDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("wav", openWAV)
	r.Register("wave", openWAV)
	r.Register("aif", openAIFF)
	r.Register("aiff", openAIFF)
	r.Register("mp3", openMP3)
	r.Register("ogg", openVorbis)
	r.Register("oga", openVorbis)
	return r
}

// Default returns the registry with every built-in format.
func Default() *Registry { return defaultRegistry }

// Open decodes path with the default registry.
func Open(path string) (Decoder, error) {
	return defaultRegistry.Open(path)
}
