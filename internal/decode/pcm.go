package decode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/aiff"
	"github.com/go-audio/wav"
)

var (
	ErrNotWAV  = errors.New("not a WAV file")
	ErrNotAIFF = errors.New("not an AIFF file")
)

// WAVE format tags.
const (
	wavFormatPCM        = 0x0001
	wavFormatFloat      = 0x0003
	wavFormatExtensible = 0xFFFE
)

// sampleEncoding describes one interleaved sample in the data chunk.
type sampleEncoding struct {
	order  binary.ByteOrder
	bytes  int
	float  bool
	signed bool // false only for 8-bit WAV
}

// pcmDecoder streams uncompressed frames straight from the data chunk.
// Reads go through ReadAt so seeking is an offset change.
type pcmDecoder struct {
	file       *os.File
	enc        sampleEncoding
	channels   int
	sampleRate int
	blockAlign int
	dataStart  int64
	frames     int64
	pos        int64
	buf        []byte
}

func newPCMDecoder(f *os.File, enc sampleEncoding, channels, sampleRate int, frames int64) (*pcmDecoder, error) {
	dataStart, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	d := &pcmDecoder{
		file:       f,
		enc:        enc,
		channels:   channels,
		sampleRate: sampleRate,
		blockAlign: enc.bytes * channels,
		dataStart:  dataStart,
		frames:     frames,
		buf:        make([]byte, 4096*enc.bytes*channels),
	}
	// Headers may claim more data than the file holds. A negative frame
	// count means the header did not say.
	if info, err := f.Stat(); err == nil {
		avail := (info.Size() - dataStart) / int64(d.blockAlign)
		if avail < d.frames || d.frames < 0 {
			d.frames = max(avail, 0)
		}
	}
	return d, nil
}

func (d *pcmDecoder) SampleRate() int { return d.sampleRate }
func (d *pcmDecoder) Channels() int   { return d.channels }
func (d *pcmDecoder) Position() int64 { return d.pos }
func (d *pcmDecoder) Length() int64   { return d.frames }

func (d *pcmDecoder) ReadFrames(dst []float32) (int, error) {
	want := len(dst) / d.channels
	if want == 0 {
		return 0, ErrShortBuffer
	}
	if d.pos >= d.frames {
		return 0, io.EOF
	}

	n := int(min(int64(want), d.frames-d.pos))
	need := n * d.blockAlign
	if cap(d.buf) < need {
		d.buf = make([]byte, need)
	}
	b := d.buf[:need]

	m, err := d.file.ReadAt(b, d.dataStart+d.pos*int64(d.blockAlign))
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, err
	}
	n = m / d.blockAlign
	d.convert(dst[:n*d.channels], b)
	d.pos += int64(n)

	if n < want {
		return n, io.EOF
	}
	return n, nil
}

// convert scales len(dst) samples from src into [-1, 1).
func (d *pcmDecoder) convert(dst []float32, src []byte) {
	order := d.enc.order
	switch {
	case d.enc.bytes == 1 && !d.enc.signed:
		for i := range dst {
			dst[i] = float32(int(src[i])-128) / 128
		}
	case d.enc.bytes == 1:
		for i := range dst {
			dst[i] = float32(int8(src[i])) / 128
		}
	case d.enc.bytes == 2:
		for i := range dst {
			dst[i] = float32(int16(order.Uint16(src[2*i:]))) / 32768
		}
	case d.enc.bytes == 3:
		for i := range dst {
			s := src[3*i : 3*i+3]
			var v int32
			if order == binary.LittleEndian {
				v = int32(s[0]) | int32(s[1])<<8 | int32(s[2])<<16
			} else {
				v = int32(s[2]) | int32(s[1])<<8 | int32(s[0])<<16
			}
			v = v << 8 >> 8
			dst[i] = float32(v) / (1 << 23)
		}
	case d.enc.bytes == 4 && d.enc.float:
		for i := range dst {
			dst[i] = math.Float32frombits(order.Uint32(src[4*i:]))
		}
	case d.enc.bytes == 4:
		for i := range dst {
			dst[i] = float32(float64(int32(order.Uint32(src[4*i:]))) / (1 << 31))
		}
	case d.enc.bytes == 8:
		for i := range dst {
			dst[i] = float32(math.Float64frombits(order.Uint64(src[8*i:])))
		}
	}
}

// SeekFrame moves the cursor to frame, which may equal Length.
func (d *pcmDecoder) SeekFrame(frame int64) error {
	if frame < 0 || frame > d.frames {
		return fmt.Errorf("seek to frame %d outside [0,%d]", frame, d.frames)
	}
	d.pos = frame
	return nil
}

func (d *pcmDecoder) Close() error {
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}

// wavEncoding maps a format tag and bit depth to a sample encoding.
// Extensible files carry the real tag in the first two bytes of their
// sub-format GUID.
func wavEncoding(f io.ReaderAt, tag uint16, bitDepth int) (sampleEncoding, error) {
	if tag == wavFormatExtensible {
		sub, err := wavSubFormat(f)
		if err != nil {
			return sampleEncoding{}, err
		}
		tag = sub
	}
	enc := sampleEncoding{order: binary.LittleEndian, bytes: bitDepth / 8, signed: bitDepth > 8}
	switch {
	case tag == wavFormatPCM && bitDepth%8 == 0 && bitDepth >= 8 && bitDepth <= 32:
		return enc, nil
	case tag == wavFormatFloat && (bitDepth == 32 || bitDepth == 64):
		enc.float = true
		return enc, nil
	}
	return sampleEncoding{}, fmt.Errorf("%w: wav format 0x%04x at %d bits", ErrUnsupportedFormat, tag, bitDepth)
}

// wavSubFormat walks the RIFF chunks for the fmt chunk of an extensible
// file and returns its sub-format tag.
func wavSubFormat(f io.ReaderAt) (uint16, error) {
	var hdr [8]byte
	off := int64(12)
	for {
		if _, err := f.ReadAt(hdr[:], off); err != nil {
			return 0, fmt.Errorf("%w: fmt chunk not found", ErrNotWAV)
		}
		size := int64(binary.LittleEndian.Uint32(hdr[4:]))
		if string(hdr[:4]) == "fmt " {
			if size < 26 {
				return 0, fmt.Errorf("%w: extensible fmt chunk of %d bytes", ErrNotWAV, size)
			}
			var sub [2]byte
			if _, err := f.ReadAt(sub[:], off+8+24); err != nil {
				return 0, err
			}
			return binary.LittleEndian.Uint16(sub[:]), nil
		}
		off += 8 + size + size%2
	}
}

func openWAV(f *os.File) (Decoder, error) {
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, ErrNotWAV
	}
	channels := int(dec.NumChans)
	enc, err := wavEncoding(f, dec.WavAudioFormat, int(dec.BitDepth))
	if err != nil {
		return nil, err
	}

	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotWAV, err)
	}
	if dec.PCMChunk == nil {
		return nil, fmt.Errorf("%w: missing data chunk", ErrNotWAV)
	}
	frames := int64(-1)
	if size := wavDataSize(f, dec.PCMLen()); size >= 0 {
		frames = size / int64(enc.bytes*channels)
	}
	return newPCMDecoder(f, enc, channels, int(dec.SampleRate), frames)
}

// wavDataSize reads the unpadded size of the data chunk whose payload
// starts at the current offset of f. PCMLen counts the pad byte of odd
// sized chunks.
func wavDataSize(f *os.File, pcmLen int64) int64 {
	start, err := f.Seek(0, io.SeekCurrent)
	if err != nil || start < 4 {
		return pcmLen
	}
	var size [4]byte
	if _, err := f.ReadAt(size[:], start-4); err != nil {
		return pcmLen
	}
	n := int64(binary.LittleEndian.Uint32(size[:]))
	if n == 0 {
		// Streaming writers leave the size unset; use the rest of the file.
		return -1
	}
	return n
}

func openAIFF(f *os.File) (Decoder, error) {
	dec := aiff.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, ErrNotAIFF
	}
	channels := int(dec.NumChans)
	bitDepth := int(dec.BitDepth)
	if bitDepth%8 != 0 || bitDepth > 32 {
		return nil, fmt.Errorf("%w: aiff at %d bits", ErrUnsupportedFormat, bitDepth)
	}
	// AIFF stores signed samples at every depth; AIFC sowt is little endian.
	enc := sampleEncoding{order: binary.BigEndian, bytes: bitDepth / 8, signed: true}
	if dec.Encoding == [4]byte{'s', 'o', 'w', 't'} {
		enc.order = binary.LittleEndian
	}

	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAIFF, err)
	}
	if dec.PCMChunk == nil {
		return nil, fmt.Errorf("%w: missing SSND chunk", ErrNotAIFF)
	}
	return newPCMDecoder(f, enc, channels, dec.SampleRate, int64(dec.NumSampleFrames))
}
