package audio

import (
	"errors"
	"sync"
)

// fakeStream runs callbacks synchronously when the test pulls or pushes.
type fakeStream struct {
	cfg     StreamConfig
	fill    func([]float32)
	consume func([]float32)

	mu       sync.Mutex
	started  bool
	stopped  bool
	closed   bool
	startErr error
}

func (s *fakeStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.started = true
	return nil
}

func (s *fakeStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeStream) active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && !s.stopped && !s.closed
}

// Pull asks a playback stream for frames and returns the rendered block.
func (s *fakeStream) Pull(frames int) []float32 {
	out := make([]float32, frames*s.cfg.Channels)
	s.Render(out)
	return out
}

// Render fills out in place without allocating.
func (s *fakeStream) Render(out []float32) {
	if !s.active() {
		panic("render on inactive stream")
	}
	s.fill(out)
}

// Push delivers captured input to a capture stream.
func (s *fakeStream) Push(in []float32) {
	if !s.active() {
		panic("push on inactive stream")
	}
	s.consume(in)
}

type fakeBackend struct {
	mu       sync.Mutex
	devices  []Device
	devErr   error
	openErr  error
	startErr error
	streams  []*fakeStream
}

func (b *fakeBackend) Devices() ([]Device, error) {
	if b.devErr != nil {
		return nil, b.devErr
	}
	return b.devices, nil
}

func (b *fakeBackend) open(cfg StreamConfig) (*fakeStream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openErr != nil {
		return nil, b.openErr
	}
	s := &fakeStream{cfg: cfg, startErr: b.startErr}
	b.streams = append(b.streams, s)
	return s, nil
}

func (b *fakeBackend) OpenPlayback(cfg StreamConfig, fill func([]float32)) (Stream, error) {
	s, err := b.open(cfg)
	if err != nil {
		return nil, err
	}
	s.fill = fill
	return s, nil
}

func (b *fakeBackend) OpenCapture(cfg StreamConfig, consume func([]float32)) (Stream, error) {
	s, err := b.open(cfg)
	if err != nil {
		return nil, err
	}
	s.consume = consume
	return s, nil
}

// last returns the most recently opened stream.
func (b *fakeBackend) last() *fakeStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.streams) == 0 {
		return nil
	}
	return b.streams[len(b.streams)-1]
}

func (b *fakeBackend) activeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, s := range b.streams {
		if s.active() {
			n++
		}
	}
	return n
}

var errFakeDevice = errors.New("device busy")
