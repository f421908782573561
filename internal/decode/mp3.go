package decode

import (
	"errors"
	"fmt"
	"io"
	"os"

	gomp3 "github.com/hajimehoshi/go-mp3"
)

// go-mp3 always produces 16-bit little-endian stereo.
const (
	mp3Channels      = 2
	mp3BytesPerFrame = 4
)

type mp3Decoder struct {
	file *os.File
	dec  *gomp3.Decoder
	buf  []byte
	pos  int64
}

func openMP3(f *os.File) (Decoder, error) {
	dec, err := gomp3.NewDecoder(f)
	if err != nil {
		return nil, err
	}
	return &mp3Decoder{file: f, dec: dec, buf: make([]byte, 4096*mp3BytesPerFrame)}, nil
}

func (d *mp3Decoder) SampleRate() int { return d.dec.SampleRate() }
func (d *mp3Decoder) Channels() int   { return mp3Channels }
func (d *mp3Decoder) Position() int64 { return d.pos }

func (d *mp3Decoder) Length() int64 {
	n := d.dec.Length()
	if n < 0 {
		return -1
	}
	return n / mp3BytesPerFrame
}

func (d *mp3Decoder) ReadFrames(dst []float32) (int, error) {
	want := len(dst) / mp3Channels
	if want == 0 {
		return 0, ErrShortBuffer
	}
	need := want * mp3BytesPerFrame
	if cap(d.buf) < need {
		d.buf = make([]byte, need)
	}
	b := d.buf[:need]

	n, err := io.ReadFull(d.dec, b)
	frames := n / mp3BytesPerFrame
	for i := 0; i < frames*mp3Channels; i++ {
		v := int16(uint16(b[2*i]) | uint16(b[2*i+1])<<8)
		dst[i] = float32(v) / 32768
	}
	d.pos += int64(frames)

	switch {
	case err == nil:
		return frames, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return frames, io.EOF
	default:
		return frames, err
	}
}

func (d *mp3Decoder) SeekFrame(frame int64) error {
	if frame < 0 {
		return fmt.Errorf("seek to negative frame %d", frame)
	}
	if _, err := d.dec.Seek(frame*mp3BytesPerFrame, io.SeekStart); err != nil {
		return err
	}
	d.pos = frame
	return nil
}

func (d *mp3Decoder) Close() error {
	return d.file.Close()
}
