package decode

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jfreymuth/oggvorbis"
)

type vorbisDecoder struct {
	file *os.File
	dec  *oggvorbis.Reader
}

func openVorbis(f *os.File) (Decoder, error) {
	dec, err := oggvorbis.NewReader(f)
	if err != nil {
		return nil, err
	}
	return &vorbisDecoder{file: f, dec: dec}, nil
}

func (d *vorbisDecoder) SampleRate() int { return d.dec.SampleRate() }
func (d *vorbisDecoder) Channels() int   { return d.dec.Channels() }
func (d *vorbisDecoder) Position() int64 { return d.dec.Position() }

// Length is -1 when the reader could not scan to the last page.
func (d *vorbisDecoder) Length() int64 {
	if n := d.dec.Length(); n > 0 {
		return n
	}
	return -1
}

// ReadFrames loops because the reader hands out at most one Vorbis packet
// per call.
func (d *vorbisDecoder) ReadFrames(dst []float32) (int, error) {
	ch := d.dec.Channels()
	want := len(dst) / ch
	if want == 0 {
		return 0, ErrShortBuffer
	}
	dst = dst[:want*ch]

	total := 0
	for total < len(dst) {
		n, err := d.dec.Read(dst[total:])
		total += n
		if err != nil {
			if errors.Is(err, io.EOF) {
				return total / ch, io.EOF
			}
			return total / ch, err
		}
		if n == 0 {
			return total / ch, io.EOF
		}
	}
	return total / ch, nil
}

func (d *vorbisDecoder) SeekFrame(frame int64) error {
	if frame < 0 {
		return fmt.Errorf("seek to negative frame %d", frame)
	}
	return d.dec.SetPosition(frame)
}

func (d *vorbisDecoder) Close() error {
	return d.file.Close()
}
