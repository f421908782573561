package audio

import (
	"fmt"

	"audioscope/internal/decode"
)

// Position is the decoder cursor in seconds, 0 without a decoder. It
// reads the cursor the callback last published and never blocks it.
func (s *Source) Position() float64 {
	rate := s.decRate.Load()
	if rate <= 0 {
		return 0
	}
	return float64(s.decCursor.Load()) / float64(rate)
}

// Duration is the decoded file length in seconds, 0 without a decoder or
// when the length is unknown.
func (s *Source) Duration() float64 {
	rate, length := s.decRate.Load(), s.decLength.Load()
	if rate <= 0 || length < 0 {
		return 0
	}
	return float64(length) / float64(rate)
}

// SeekTo moves file playback to seconds from the start.
func (s *Source) SeekTo(seconds float64) error {
	s.decMu.Lock()
	defer s.decMu.Unlock()
	if s.dec == nil {
		return ErrNoDecoder
	}
	if seconds < 0 {
		seconds = 0
	}
	err := s.dec.SeekFrame(int64(seconds * float64(s.dec.SampleRate())))
	s.publishCursorLocked()
	return err
}

// DecoderFormat returns the loaded file's channel count and sample rate.
func (s *Source) DecoderFormat() (channels, sampleRate int, err error) {
	s.decMu.Lock()
	defer s.decMu.Unlock()
	if s.dec == nil {
		return 0, 0, ErrNoDecoder
	}
	return s.dec.Channels(), s.dec.SampleRate(), nil
}

// ReadFramesAt reads count interleaved frames starting at offset for
// offline use, zero-padding past the end of the file. The playback cursor
// is restored afterwards. It shares the decoder lock with the callback, so
// live output drops to silence for any block that overlaps the read.
func (s *Source) ReadFramesAt(offset int64, count int) ([]float32, error) {
	if count <= 0 {
		return []float32{}, nil
	}
	if offset < 0 {
		return nil, fmt.Errorf("audio: negative frame offset %d", offset)
	}

	s.decMu.Lock()
	defer s.decMu.Unlock()
	if s.dec == nil {
		return nil, ErrNoDecoder
	}

	saved := s.dec.Position()
	defer func() {
		if err := s.dec.SeekFrame(saved); err != nil {
			s.log.Warnf("restore decoder position: %v", err)
		}
	}()

	out, err := decode.ReadFramesAt(s.dec, offset, count)
	if err != nil {
		return nil, fmt.Errorf("audio: %w", err)
	}
	return out, nil
}
