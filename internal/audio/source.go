// SPDX-License-Identifier: MIT
/*
Package audio is the producer side of the pipeline: it owns the device
stream and, depending on the active Mode, decodes a file, captures an input
device, synthesizes a tone or loops a precomputed buffer. Every callback
block is written to two rings, a mono downmix and an interleaved stereo
copy, which the analysis loop snapshots.

Thread Safety:
  - Mode transitions serialize on a mutex and stop the stream (which waits
    for the callback to return) before touching decoder or mode state.
  - The callback never blocks: it takes the decoder lock with TryLock and
    outputs silence for the block when a seek from ReadFramesAt holds it.
  - Counters, peak level and tone parameters are atomics.
  - A panic inside the callback is recovered; the block becomes silence.
*/
package audio

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"audioscope/internal/decode"
	"audioscope/internal/log"
	"audioscope/internal/ring"
	"audioscope/internal/synth"
)

const (
	DefaultCaptureRate     = 48000
	DefaultCaptureChannels = 2
	DefaultToneRate        = 44100
	DefaultMonoCapacity    = 8192
	DefaultStereoCapacity  = 16384
	DefaultFramesPerBuffer = 512
)

// Options configures a Source. Zero fields take the defaults above.
type Options struct {
	Backend         Backend
	Decoders        *decode.Registry
	PlaybackDevice  string
	FramesPerBuffer int
	LowLatency      bool
	CaptureRate     float64
	CaptureChannels int
	ToneRate        float64
	MonoCapacity    int
	StereoCapacity  int
}

func (o *Options) applyDefaults() {
	if o.Decoders == nil {
		o.Decoders = decode.Default()
	}
	if o.FramesPerBuffer <= 0 {
		o.FramesPerBuffer = DefaultFramesPerBuffer
	}
	if o.CaptureRate <= 0 {
		o.CaptureRate = DefaultCaptureRate
	}
	if o.CaptureChannels <= 0 {
		o.CaptureChannels = DefaultCaptureChannels
	}
	if o.ToneRate <= 0 {
		o.ToneRate = DefaultToneRate
	}
	if o.MonoCapacity < DefaultMonoCapacity {
		o.MonoCapacity = DefaultMonoCapacity
	}
	if o.StereoCapacity < DefaultStereoCapacity {
		o.StereoCapacity = DefaultStereoCapacity
	}
	// Stereo frames must never straddle the wrap point.
	o.StereoCapacity += o.StereoCapacity % 2
}

// Stats are the callback counters. They only grow.
type Stats struct {
	Callbacks    uint64
	DecodeErrors uint64
	Panics       uint64
	Contended    uint64
}

// Source is the audio producer. Create it with NewSource; it starts Idle.
type Source struct {
	opts    Options
	backend Backend
	log     *log.Logger

	// mu serializes mode transitions and guards the fields below it.
	mu             sync.Mutex
	mode           Mode
	stream         Stream
	streamRate     float64
	streamChannels int
	playbackDevice string
	recorder       *Recorder

	// decMu guards dec. The callback only ever TryLocks it.
	decMu sync.Mutex
	dec   decode.Decoder

	// Decoder cursor, length and rate, published after every decoder
	// move so readers never touch decMu. Rate is 0 without a decoder.
	decCursor atomic.Int64
	decLength atomic.Int64
	decRate   atomic.Int64

	// Callback-owned state, replaced only while the stream is stopped.
	osc       *synth.Oscillator
	lastTone  *synth.Tone
	pre       []float32
	preCursor int

	tone    atomic.Pointer[synth.Tone]
	playing atomic.Bool

	mono   *ring.Ring
	stereo *ring.Ring

	peak          atomic.Uint32
	gateEnabled   atomic.Bool
	gateThreshold atomic.Uint32

	callbacks    atomic.Uint64
	decodeErrors atomic.Uint64
	panics       atomic.Uint64
	contended    atomic.Uint64
}

// NewSource creates an idle source. Backend is required.
func NewSource(opts Options) (*Source, error) {
	if opts.Backend == nil {
		return nil, errors.New("audio: nil backend")
	}
	opts.applyDefaults()
	return &Source{
		opts:           opts,
		backend:        opts.Backend,
		log:            log.With("Audio"),
		mode:           Idle{},
		playbackDevice: opts.PlaybackDevice,
		mono:           ring.New(opts.MonoCapacity),
		stereo:         ring.New(opts.StereoCapacity),
	}, nil
}

// MonoRing holds the channel-averaged signal.
func (s *Source) MonoRing() *ring.Ring { return s.mono }

// StereoRing holds interleaved L/R frames.
func (s *Source) StereoRing() *ring.Ring { return s.stereo }

// Mode returns the active mode.
func (s *Source) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// IsCaptureMode reports whether a capture device is the active source.
func (s *Source) IsCaptureMode() bool {
	_, ok := s.Mode().(LiveCapture)
	return ok
}

// IsPlaying reports whether the active mode is producing sound. Only file
// playback can be paused.
func (s *Source) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.mode.(type) {
	case Idle:
		return false
	case FilePlayback:
		return s.playing.Load()
	default:
		return true
	}
}

// SampleRate is the rate of the open stream, or 0 when idle.
func (s *Source) SampleRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamRate
}

// Stats returns a snapshot of the callback counters.
func (s *Source) Stats() Stats {
	return Stats{
		Callbacks:    s.callbacks.Load(),
		DecodeErrors: s.decodeErrors.Load(),
		Panics:       s.panics.Load(),
		Contended:    s.contended.Load(),
	}
}

// SetPlaybackDevice selects the output device by name for the next
// playback transition. Empty selects the system default.
func (s *Source) SetPlaybackDevice(name string) {
	s.mu.Lock()
	s.playbackDevice = name
	s.mu.Unlock()
}

// AvailableDevices lists devices usable for capture or playback. It never
// fails; enumeration errors yield an empty list.
func (s *Source) AvailableDevices(capture bool) []Device {
	devices, err := s.backend.Devices()
	if err != nil {
		s.log.Warnf("device enumeration failed: %v", err)
		return []Device{}
	}
	out := make([]Device, 0, len(devices))
	for _, d := range devices {
		if (capture && d.MaxInputChannels > 0) || (!capture && d.MaxOutputChannels > 0) {
			out = append(out, d)
		}
	}
	return out
}

// LoadFile switches to FilePlayback. On failure the source is Idle.
func (s *Source) LoadFile(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()

	dec, err := s.opts.Decoders.Open(path)
	if err != nil {
		return &DecodeError{Path: path, Err: err}
	}
	channels, rate := dec.Channels(), dec.SampleRate()
	if channels < 1 || rate <= 0 {
		dec.Close()
		return &DecodeError{Path: path, Err: fmt.Errorf("invalid format: %d channels @ %d Hz", channels, rate)}
	}

	s.decMu.Lock()
	s.dec = dec
	s.publishCursorLocked()
	s.decMu.Unlock()
	s.playing.Store(true)

	cfg := StreamConfig{
		Device:          s.playbackDevice,
		Channels:        channels,
		SampleRate:      float64(rate),
		FramesPerBuffer: s.opts.FramesPerBuffer,
		LowLatency:      s.opts.LowLatency,
	}
	if err := s.openPlaybackLocked(cfg, func(out []float32) { s.renderFile(out, channels) }); err != nil {
		s.teardownLocked()
		return err
	}

	s.mode = FilePlayback{Path: path}
	s.log.Infof("playing %s (%d ch @ %d Hz, %.1fs)", path, channels, rate, s.Duration())
	return nil
}

// StartCapture switches to LiveCapture on the named input device, or the
// system default when device is empty.
func (s *Source) StartCapture(device string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()

	channels := s.opts.CaptureChannels
	cfg := StreamConfig{
		Device:          device,
		Channels:        channels,
		SampleRate:      s.opts.CaptureRate,
		FramesPerBuffer: s.opts.FramesPerBuffer,
		LowLatency:      s.opts.LowLatency,
	}
	stream, err := s.backend.OpenCapture(cfg, func(in []float32) { s.consumeCapture(in, channels) })
	if err != nil {
		return &DeviceError{Op: "open capture", Device: device, Err: err}
	}
	if err := s.startLocked(stream, cfg, device); err != nil {
		return err
	}

	s.mode = LiveCapture{Device: device}
	s.log.Infof("capturing from %s (%d ch @ %.0f Hz)", LiveCapture{Device: device}, channels, cfg.SampleRate)
	return nil
}

// StartTone switches to ToneGenerator. When a tone is already playing the
// new parameters are swapped into the running oscillator without
// reopening the device.
func (s *Source) StartTone(tone synth.Tone) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.mode.(ToneGenerator); ok {
		t := tone
		s.tone.Store(&t)
		s.mode = ToneGenerator{Tone: tone}
		s.log.Debugf("tone updated: %s", s.mode)
		return nil
	}

	s.teardownLocked()
	s.osc = synth.NewOscillator(tone, s.opts.ToneRate)
	t := tone
	s.tone.Store(&t)
	s.lastTone = &t

	cfg := StreamConfig{
		Device:          s.playbackDevice,
		Channels:        2,
		SampleRate:      s.opts.ToneRate,
		FramesPerBuffer: s.opts.FramesPerBuffer,
		LowLatency:      s.opts.LowLatency,
	}
	if err := s.openPlaybackLocked(cfg, func(out []float32) { s.renderTone(out, 2) }); err != nil {
		s.teardownLocked()
		return err
	}

	s.mode = ToneGenerator{Tone: tone}
	s.log.Infof("tone started: %s", s.mode)
	return nil
}

// PlayBuffer loops an interleaved stereo buffer at sampleRate. The buffer
// is copied.
func (s *Source) PlayBuffer(samples []float32, sampleRate int) error {
	if len(samples) == 0 || len(samples)%2 != 0 {
		return ErrInvalidBuffer
	}
	if sampleRate <= 0 {
		return fmt.Errorf("audio: invalid sample rate %d", sampleRate)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()

	s.pre = append([]float32(nil), samples...)
	s.preCursor = 0

	cfg := StreamConfig{
		Device:          s.playbackDevice,
		Channels:        2,
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: s.opts.FramesPerBuffer,
		LowLatency:      s.opts.LowLatency,
	}
	if err := s.openPlaybackLocked(cfg, func(out []float32) { s.renderBuffer(out, 2) }); err != nil {
		s.teardownLocked()
		return err
	}

	s.mode = PrecomputedBuffer{Frames: len(samples) / 2, SampleRate: sampleRate}
	s.log.Infof("looping %s", s.mode)
	return nil
}

// StartOscMusic generates duration seconds from m and loops it.
func (s *Source) StartOscMusic(m *synth.OscMusic, duration float64, sampleRate int) error {
	buf, err := m.GenerateStereoBuffer(duration, sampleRate)
	if err != nil {
		return err
	}
	return s.PlayBuffer(buf, sampleRate)
}

// Stop tears down the active mode and returns to Idle.
func (s *Source) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
}

// Close is Stop for use with defer.
func (s *Source) Close() error {
	s.Stop()
	return nil
}

// Pause silences file playback without closing the device.
func (s *Source) Pause() {
	s.playing.Store(false)
}

// Play resumes paused file playback.
func (s *Source) Play() {
	s.playing.Store(true)
}

// Rewind pauses file playback and returns to the start.
func (s *Source) Rewind() error {
	s.playing.Store(false)
	return s.SeekTo(0)
}

func (s *Source) openPlaybackLocked(cfg StreamConfig, fill func([]float32)) error {
	stream, err := s.backend.OpenPlayback(cfg, fill)
	if err != nil {
		return &DeviceError{Op: "open playback", Device: cfg.Device, Err: err}
	}
	return s.startLocked(stream, cfg, cfg.Device)
}

func (s *Source) startLocked(stream Stream, cfg StreamConfig, device string) error {
	s.mono.Reset()
	s.stereo.Reset()
	s.stream = stream
	s.streamRate = cfg.SampleRate
	s.streamChannels = cfg.Channels
	if err := stream.Start(); err != nil {
		s.teardownLocked()
		return &DeviceError{Op: "start", Device: device, Err: err}
	}
	return nil
}

// teardownLocked stops the stream, which waits for the callback to
// quiesce, then releases the decoder. The source is Idle afterwards.
func (s *Source) teardownLocked() {
	if s.recorder != nil {
		if err := s.recorder.Stop(); err != nil {
			s.log.Warnf("recording stop: %v", err)
		}
		s.recorder = nil
	}

	if s.stream != nil {
		if err := s.stream.Stop(); err != nil {
			s.log.Warnf("stream stop: %v", err)
		}
		if err := s.stream.Close(); err != nil {
			s.log.Warnf("stream close: %v", err)
		}
		s.stream = nil
	}

	s.decMu.Lock()
	if s.dec != nil {
		if err := s.dec.Close(); err != nil {
			s.log.Warnf("decoder close: %v", err)
		}
		s.dec = nil
	}
	s.publishCursorLocked()
	s.decMu.Unlock()

	s.osc = nil
	s.lastTone = nil
	s.pre = nil
	s.preCursor = 0
	s.playing.Store(false)
	s.streamRate = 0
	s.streamChannels = 0
	s.peak.Store(0)
	s.mode = Idle{}
}

// recoverCallback turns a panic on the audio thread into a silent block.
func (s *Source) recoverCallback(out []float32) {
	if r := recover(); r != nil {
		clear(out)
		s.panics.Add(1)
	}
}

func (s *Source) publish(block []float32, channels int) {
	s.mono.WriteMixed(block, channels)
	s.stereo.WriteStereo(block, channels)
}

func (s *Source) renderFile(out []float32, channels int) {
	defer s.recoverCallback(out)
	s.callbacks.Add(1)

	if !s.playing.Load() {
		clear(out)
		s.peak.Store(0)
		return
	}
	if !s.decMu.TryLock() {
		clear(out)
		s.contended.Add(1)
		return
	}
	n := s.readDecoderLocked(out, channels)

	if n > 0 {
		s.publish(out[:n*channels], channels)
	}
	s.storePeak(out)
}

// readDecoderLocked is entered with decMu held and releases it.
func (s *Source) readDecoderLocked(out []float32, channels int) int {
	defer s.decMu.Unlock()
	if s.dec == nil {
		clear(out)
		return 0
	}

	n, err := s.dec.ReadFrames(out)
	if err != nil && !errors.Is(err, io.EOF) {
		s.decodeErrors.Add(1)
	}
	if n < len(out)/channels {
		clear(out[n*channels:])
		if err := s.dec.SeekFrame(0); err != nil {
			s.decodeErrors.Add(1)
		}
	}
	s.publishCursorLocked()
	return n
}

// publishCursorLocked is called with decMu held after the decoder moves.
func (s *Source) publishCursorLocked() {
	if s.dec == nil {
		s.decRate.Store(0)
		s.decLength.Store(0)
		s.decCursor.Store(0)
		return
	}
	s.decCursor.Store(s.dec.Position())
	s.decLength.Store(s.dec.Length())
	s.decRate.Store(int64(s.dec.SampleRate()))
}

func (s *Source) consumeCapture(in []float32, channels int) {
	defer s.recoverCallback(nil)
	s.callbacks.Add(1)
	s.publish(in, channels)
	s.storePeak(in)
}

func (s *Source) renderTone(out []float32, channels int) {
	defer s.recoverCallback(out)
	s.callbacks.Add(1)

	if t := s.tone.Load(); t != s.lastTone && t != nil {
		s.osc.SetTone(*t)
		s.lastTone = t
	}
	s.osc.Fill(out, channels)
	s.publish(out, channels)
	s.storePeak(out)
}

func (s *Source) renderBuffer(out []float32, channels int) {
	defer s.recoverCallback(out)
	s.callbacks.Add(1)

	if len(s.pre) == 0 {
		clear(out)
		return
	}
	frames := len(out) / channels
	for i := 0; i < frames; i++ {
		l, r := s.pre[s.preCursor], s.pre[s.preCursor+1]
		s.preCursor += 2
		if s.preCursor >= len(s.pre) {
			s.preCursor = 0
		}
		base := i * channels
		out[base] = l
		if channels > 1 {
			out[base+1] = r
		}
		for c := 2; c < channels; c++ {
			out[base+c] = 0
		}
	}
	s.publish(out, channels)
	s.storePeak(out)
}
