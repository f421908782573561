// SPDX-License-Identifier: MIT

// Package export writes interleaved float32 buffers to audio files. WAV
// output is 16-bit PCM; MP3 output is encoded in one pass as stereo.
package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	mp3encoder "github.com/braheezy/shine-mp3/pkg/mp3"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"audioscope/internal/log"
)

const bitDepth = 16

var logger = log.With("Export")

// ErrUnsupportedFormat is returned for output paths whose extension has
// no writer.
var ErrUnsupportedFormat = errors.New("unsupported output format")

// Format is an output container.
type Format int

const (
	WAV Format = iota
	MP3
)

func (f Format) String() string {
	switch f {
	case WAV:
		return "wav"
	case MP3:
		return "mp3"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// FormatForPath picks the format from the file extension.
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		return WAV, nil
	case ".mp3":
		return MP3, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

func checkArgs(samples []float32, channels, sampleRate int) error {
	if channels <= 0 {
		return fmt.Errorf("invalid channel count %d", channels)
	}
	if sampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	if len(samples)%channels != 0 {
		return fmt.Errorf("%d samples is not a whole number of %d-channel frames", len(samples), channels)
	}
	return nil
}

// WriteWAV encodes samples as 16-bit PCM.
func WriteWAV(w io.WriteSeeker, samples []float32, channels, sampleRate int) error {
	if err := checkArgs(samples, channels, sampleRate); err != nil {
		return err
	}
	enc := wav.NewEncoder(w, sampleRate, bitDepth, channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           make([]int, len(samples)),
		SourceBitDepth: bitDepth,
	}
	for i, v := range samples {
		buf.Data[i] = PCM16(v)
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav: %w", err)
	}
	return nil
}

// WriteMP3 encodes samples as MP3. Mono input is duplicated to both
// channels since the encoder mishandles single-channel input.
func WriteMP3(w io.Writer, samples []float32, channels, sampleRate int) error {
	if err := checkArgs(samples, channels, sampleRate); err != nil {
		return err
	}
	if channels > 2 {
		return fmt.Errorf("mp3 supports at most 2 channels, got %d", channels)
	}

	frames := len(samples) / channels
	pcm := make([]int16, frames*2)
	for i := range frames {
		l := samples[i*channels]
		r := l
		if channels == 2 {
			r = samples[i*channels+1]
		}
		pcm[i*2] = int16(PCM16(l))
		pcm[i*2+1] = int16(PCM16(r))
	}

	if err := mp3encoder.NewEncoder(sampleRate, 2).Write(w, pcm); err != nil {
		return fmt.Errorf("encode mp3: %w", err)
	}
	return nil
}

// WriteFile creates path and writes samples in the format its extension
// names.
func WriteFile(path string, samples []float32, channels, sampleRate int) (err error) {
	format, err := FormatForPath(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	switch format {
	case MP3:
		err = WriteMP3(f, samples, channels, sampleRate)
	default:
		err = WriteWAV(f, samples, channels, sampleRate)
	}
	if err != nil {
		return err
	}
	logger.Infof("wrote %s (%d frames, %d channels @ %d Hz)", path, len(samples)/channels, channels, sampleRate)
	return nil
}

// PCM16 converts a sample to a 16-bit integer, clipping at full scale.
func PCM16(v float32) int {
	switch {
	case v >= 1:
		return 32767
	case v <= -1:
		return -32768
	}
	return int(v * 32767)
}
