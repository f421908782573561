// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"audioscope/internal/export"
	"audioscope/internal/ring"
)

const (
	recordBitDepth      = 16
	recordChannels      = 2
	recordDrainInterval = 50 * time.Millisecond
)

// Recorder drains an interleaved stereo ring into a 16-bit WAV file on its
// own goroutine, so the audio callback never touches the disk.
type Recorder struct {
	ring     *ring.Ring
	file     *os.File
	enc      *wav.Encoder
	buf      *audio.IntBuffer
	scratch  []float32
	cursor   uint64
	interval time.Duration

	frames  atomic.Uint64
	dropped atomic.Uint64

	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	err      error
}

// NewRecorder creates path and prepares to record from the ring's current
// cursor onwards.
func NewRecorder(r *ring.Ring, path string, sampleRate int) (*Recorder, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	chunk := r.Capacity()
	chunk -= chunk % recordChannels
	return &Recorder{
		ring: r,
		file: file,
		enc:  wav.NewEncoder(file, sampleRate, recordBitDepth, recordChannels, 1),
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: recordChannels, SampleRate: sampleRate},
			Data:           make([]int, chunk),
			SourceBitDepth: recordBitDepth,
		},
		scratch:  make([]float32, chunk),
		cursor:   r.Cursor(),
		interval: recordDrainInterval,
		doneChan: make(chan struct{}),
	}, nil
}

// Start launches the drain goroutine.
func (r *Recorder) Start() {
	r.wg.Add(1)
	go r.run()
}

func (r *Recorder) run() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.drain(); err != nil {
				r.err = err
				return
			}
		case <-r.doneChan:
			r.err = r.drain()
			return
		}
	}
}

// drain writes everything the ring holds past the cursor.
func (r *Recorder) drain() error {
	for {
		n, next, dropped := r.ring.ReadFrom(r.cursor, r.scratch)
		r.cursor = next
		if dropped > 0 {
			r.dropped.Add(dropped / recordChannels)
		}
		if n == 0 {
			return nil
		}
		data := r.buf.Data[:n]
		for i, v := range r.scratch[:n] {
			data[i] = export.PCM16(v)
		}
		r.buf.Data = data
		if err := r.enc.Write(r.buf); err != nil {
			return fmt.Errorf("write wav: %w", err)
		}
		r.buf.Data = r.buf.Data[:cap(r.buf.Data)]
		r.frames.Add(uint64(n / recordChannels))
	}
}

// Frames is the number of frames written so far.
func (r *Recorder) Frames() uint64 { return r.frames.Load() }

// Dropped is the number of frames lost because the drain fell more than a
// ring behind.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Stop drains what is left, finalizes the WAV header and closes the file.
func (r *Recorder) Stop() error {
	var err error
	r.stopOnce.Do(func() {
		close(r.doneChan)
		r.wg.Wait()
		err = errors.Join(r.err, r.enc.Close(), r.file.Close())
	})
	return err
}

// StartRecording records the stereo output of the active mode to path.
func (s *Source) StartRecording(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recorder != nil {
		return errors.New("already recording")
	}
	if s.stream == nil {
		return ErrNotRunning
	}
	rec, err := NewRecorder(s.stereo, path, int(s.streamRate))
	if err != nil {
		return err
	}
	rec.Start()
	s.recorder = rec
	s.log.Infof("recording to %s", path)
	return nil
}

// StopRecording finalizes the current recording. It is a no-op when not
// recording.
func (s *Source) StopRecording() error {
	s.mu.Lock()
	rec := s.recorder
	s.recorder = nil
	s.mu.Unlock()

	if rec == nil {
		return nil
	}
	err := rec.Stop()
	s.log.Infof("recording stopped: %d frames, %d dropped", rec.Frames(), rec.Dropped())
	return err
}

// IsRecording reports whether a recording is in progress.
func (s *Source) IsRecording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recorder != nil
}
