// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"audioscope/internal/decode"
	"audioscope/internal/ring"
	"audioscope/internal/synth"
)

const (
	testSampleRate = 22050
	testFrames     = 100
)

func newTestSource(t *testing.T) (*Source, *fakeBackend) {
	t.Helper()
	b := &fakeBackend{}
	s, err := NewSource(Options{Backend: b, FramesPerBuffer: 64})
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	t.Cleanup(s.Stop)
	return s, b
}

// writeTestWAV writes testFrames stereo frames; left is i/1000, right is
// -i/1000 (quantized to 16 bits).
func writeTestWAV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ramp.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(f, testSampleRate, 16, 2, 1)
	data := make([]int, testFrames*2)
	for i := 0; i < testFrames; i++ {
		data[i*2] = int(float64(i) / 1000 * 32768)
		data[i*2+1] = -int(float64(i) / 1000 * 32768)
	}
	buf := &goaudio.IntBuffer{Format: &goaudio.Format{NumChannels: 2, SampleRate: testSampleRate}, Data: data}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func near(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-3
}

func TestNewSourceRequiresBackend(t *testing.T) {
	if _, err := NewSource(Options{}); err == nil {
		t.Fatal("expected error for nil backend")
	}
}

func TestNewSourceDefaults(t *testing.T) {
	s, _ := newTestSource(t)
	if _, ok := s.Mode().(Idle); !ok {
		t.Errorf("initial mode = %v, want idle", s.Mode())
	}
	if s.MonoRing().Capacity() < 8192 {
		t.Errorf("mono capacity = %d, want >= 8192", s.MonoRing().Capacity())
	}
	if s.StereoRing().Capacity() < 16384 {
		t.Errorf("stereo capacity = %d, want >= 16384", s.StereoRing().Capacity())
	}
	if s.IsPlaying() || s.SampleRate() != 0 || s.Duration() != 0 {
		t.Error("idle source should not be playing")
	}
}

func TestToneGeneratorWritesOutputAndRings(t *testing.T) {
	s, b := newTestSource(t)

	tone := synth.Tone{Waveform: synth.Sine, Frequency: 441, Volume: 0.5}
	if err := s.StartTone(tone); err != nil {
		t.Fatalf("StartTone: %v", err)
	}
	st := b.last()
	if st.cfg.SampleRate != DefaultToneRate || st.cfg.Channels != 2 {
		t.Fatalf("tone stream config = %+v", st.cfg)
	}

	out := st.Pull(64)
	mono := s.MonoRing().Snapshot(64)
	left := s.StereoRing().ChannelSnapshot(64, ring.Left)
	for i := 0; i < 64; i++ {
		if out[i*2] != mono[i] || out[i*2] != left[i] {
			t.Fatalf("frame %d: out=%f mono=%f left=%f", i, out[i*2], mono[i], left[i])
		}
	}
	if p := s.PeakLevel(); p <= 0 || p > 0.5 {
		t.Errorf("PeakLevel = %f, want (0, 0.5]", p)
	}
	if !s.IsPlaying() {
		t.Error("tone should report playing")
	}
}

func TestStartToneHotSwapsRunningTone(t *testing.T) {
	s, b := newTestSource(t)

	if err := s.StartTone(synth.Tone{Waveform: synth.Square, Frequency: 100, Volume: 0.8}); err != nil {
		t.Fatal(err)
	}
	first := b.last()
	first.Pull(32)

	if err := s.StartTone(synth.Tone{Waveform: synth.Square, Frequency: 100, Volume: 0}); err != nil {
		t.Fatal(err)
	}
	if len(b.streams) != 1 {
		t.Fatalf("hot swap reopened the device: %d streams", len(b.streams))
	}
	for i, v := range first.Pull(32) {
		if v != 0 {
			t.Fatalf("sample %d = %f after volume 0", i, v)
		}
	}
	if m, ok := s.Mode().(ToneGenerator); !ok || m.Tone.Volume != 0 {
		t.Errorf("mode = %v", s.Mode())
	}
}

func TestFilePlaybackLoopsAtEnd(t *testing.T) {
	s, b := newTestSource(t)
	path := writeTestWAV(t)

	if err := s.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	st := b.last()
	if st.cfg.SampleRate != testSampleRate || st.cfg.Channels != 2 {
		t.Fatalf("playback config = %+v", st.cfg)
	}
	if got, want := s.Duration(), float64(testFrames)/testSampleRate; math.Abs(got-want) > 1e-9 {
		t.Errorf("Duration = %f, want %f", got, want)
	}

	out := st.Pull(64)
	if !near(out[2], 0.001) || !near(out[3], -0.001) {
		t.Errorf("frame 1 = (%f, %f)", out[2], out[3])
	}

	out = st.Pull(64)
	// 36 frames remain, the rest is silence and the decoder rewinds.
	if !near(out[0], 0.064) {
		t.Errorf("frame 64 = %f, want 0.064", out[0])
	}
	for i := 36 * 2; i < len(out); i++ {
		if out[i] != 0 {
			t.Fatalf("sample %d = %f, want zero fill", i, out[i])
		}
	}
	if s.Position() != 0 {
		t.Errorf("Position = %f after loop, want 0", s.Position())
	}

	mono := s.MonoRing().Snapshot(1)
	if !near(mono[0], 0) {
		t.Errorf("last mono sample = %f, want mean of 0.099 and -0.099", mono[0])
	}

	out = st.Pull(1)
	if out[0] != 0 {
		t.Errorf("after loop first frame = %f, want 0", out[0])
	}
}

func TestLoadFileFailuresLeaveIdle(t *testing.T) {
	s, b := newTestSource(t)

	err := s.LoadFile(filepath.Join(t.TempDir(), "missing.wav"))
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("DecodeError should wrap ErrNotExist: %v", err)
	}
	if len(b.streams) != 0 {
		t.Error("no device should be opened for a missing file")
	}

	text := filepath.Join(t.TempDir(), "notes.txt")
	os.WriteFile(text, []byte("not audio"), 0o644)
	if err := s.LoadFile(text); !errors.Is(err, decode.ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}

	b.openErr = errFakeDevice
	err = s.LoadFile(writeTestWAV(t))
	var dev *DeviceError
	if !errors.As(err, &dev) || !errors.Is(err, errFakeDevice) {
		t.Fatalf("expected DeviceError wrapping device busy, got %v", err)
	}
	if _, ok := s.Mode().(Idle); !ok {
		t.Errorf("mode = %v after failure, want idle", s.Mode())
	}
	if s.Duration() != 0 {
		t.Error("decoder left open after device failure")
	}
}

func TestStartFailureClosesStream(t *testing.T) {
	s, b := newTestSource(t)
	b.startErr = errFakeDevice

	err := s.StartCapture("")
	var dev *DeviceError
	if !errors.As(err, &dev) || dev.Op != "start" {
		t.Fatalf("expected start DeviceError, got %v", err)
	}
	st := b.last()
	if !st.closed {
		t.Error("stream should be closed after failed start")
	}
	if s.IsCaptureMode() {
		t.Error("failed capture should leave source idle")
	}
}

func TestStartCaptureFromFilePlayback(t *testing.T) {
	s, b := newTestSource(t)
	if err := s.LoadFile(writeTestWAV(t)); err != nil {
		t.Fatal(err)
	}
	playback := b.last()

	if err := s.StartCapture("USB Mic"); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}
	if !playback.stopped || !playback.closed {
		t.Error("playback stream not torn down")
	}
	if n := b.activeCount(); n != 1 {
		t.Errorf("active streams = %d, want 1", n)
	}
	if !s.IsCaptureMode() {
		t.Error("IsCaptureMode should be true")
	}
	if s.Duration() != 0 {
		t.Errorf("Duration = %f in capture mode, want 0", s.Duration())
	}
	if _, err := s.ReadFramesAt(0, 16); !errors.Is(err, ErrNoDecoder) {
		t.Errorf("ReadFramesAt in capture mode: %v", err)
	}

	capture := b.last()
	if capture.cfg.Device != "USB Mic" || capture.cfg.SampleRate != DefaultCaptureRate || capture.cfg.Channels != 2 {
		t.Errorf("capture config = %+v", capture.cfg)
	}
}

func TestCaptureWritesRings(t *testing.T) {
	s, b := newTestSource(t)
	if err := s.StartCapture(""); err != nil {
		t.Fatal(err)
	}
	b.last().Push([]float32{0.5, 0.1, -0.2, -0.4, 0.8, 0})

	mono := s.MonoRing().Snapshot(3)
	want := []float32{0.3, -0.3, 0.4}
	for i := range want {
		if !near(mono[i], want[i]) {
			t.Errorf("mono[%d] = %f, want %f", i, mono[i], want[i])
		}
	}
	right := s.StereoRing().ChannelSnapshot(3, ring.Right)
	if right[0] != 0.1 || right[1] != -0.4 || right[2] != 0 {
		t.Errorf("right = %v", right)
	}
	if s.PeakLevel() != 0.8 {
		t.Errorf("PeakLevel = %f, want 0.8", s.PeakLevel())
	}
}

func TestPrecomputedBufferLoops(t *testing.T) {
	s, b := newTestSource(t)
	if err := s.PlayBuffer([]float32{1, -1, 2, -2, 3, -3}, 48000); err != nil {
		t.Fatal(err)
	}
	out := b.last().Pull(4)
	want := []float32{1, -1, 2, -2, 3, -3, 1, -1}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("out = %v, want %v", out, want)
		}
	}
	if m, ok := s.Mode().(PrecomputedBuffer); !ok || m.Frames != 3 || m.SampleRate != 48000 {
		t.Errorf("mode = %v", s.Mode())
	}

	if err := s.PlayBuffer([]float32{1, 2, 3}, 48000); !errors.Is(err, ErrInvalidBuffer) {
		t.Errorf("odd buffer: %v", err)
	}
	if err := s.PlayBuffer(nil, 48000); !errors.Is(err, ErrInvalidBuffer) {
		t.Errorf("empty buffer: %v", err)
	}
}

func TestStartOscMusic(t *testing.T) {
	s, b := newTestSource(t)
	m := synth.NewOscMusic()
	if err := m.SetExpressions("sin(f*t)", "cos(f*t)"); err != nil {
		t.Fatal(err)
	}
	if err := s.StartOscMusic(m, 0.5, 8000); err != nil {
		t.Fatalf("StartOscMusic: %v", err)
	}
	if b.last().cfg.SampleRate != 8000 {
		t.Errorf("rate = %f", b.last().cfg.SampleRate)
	}
	out := b.last().Pull(1)
	if out[0] != 0 || out[1] != 1 {
		t.Errorf("first frame = %v, want (0, 1)", out)
	}

	m.SetExpressions("1/0", "0")
	if err := s.StartOscMusic(m, 0.5, 8000); err == nil {
		t.Error("invalid expressions should not start")
	}
}

func TestPauseAndPlay(t *testing.T) {
	s, b := newTestSource(t)
	if err := s.LoadFile(writeTestWAV(t)); err != nil {
		t.Fatal(err)
	}
	st := b.last()
	st.Pull(10)

	s.Pause()
	if s.IsPlaying() {
		t.Error("paused source reports playing")
	}
	for _, v := range st.Pull(10) {
		if v != 0 {
			t.Fatal("paused output should be silent")
		}
	}
	if got := s.Position(); math.Abs(got-10.0/testSampleRate) > 1e-9 {
		t.Errorf("pause advanced decoder: %f", got)
	}

	s.Play()
	out := st.Pull(1)
	if !near(out[0], 0.010) {
		t.Errorf("resumed frame = %f, want 0.010", out[0])
	}

	if err := s.Rewind(); err != nil {
		t.Fatal(err)
	}
	if s.Position() != 0 || s.IsPlaying() {
		t.Error("Rewind should pause at the start")
	}
}

func TestReadFramesAt(t *testing.T) {
	s, b := newTestSource(t)
	if err := s.LoadFile(writeTestWAV(t)); err != nil {
		t.Fatal(err)
	}
	b.last().Pull(10)

	frames, err := s.ReadFramesAt(50, 4)
	if err != nil {
		t.Fatalf("ReadFramesAt: %v", err)
	}
	if len(frames) != 8 || !near(frames[0], 0.050) || !near(frames[7], -0.053) {
		t.Errorf("frames = %v", frames)
	}
	if got := s.Position(); math.Abs(got-10.0/testSampleRate) > 1e-9 {
		t.Errorf("cursor not restored: %f", got)
	}

	tail, err := s.ReadFramesAt(98, 4)
	if err != nil {
		t.Fatal(err)
	}
	if !near(tail[0], 0.098) || tail[4] != 0 || tail[7] != 0 {
		t.Errorf("short read not zero padded: %v", tail)
	}

	past, err := s.ReadFramesAt(1000, 2)
	if err != nil || len(past) != 4 || past[0] != 0 {
		t.Errorf("read past end = %v, %v", past, err)
	}

	if _, err := s.ReadFramesAt(-1, 2); err == nil {
		t.Error("negative offset should fail")
	}
}

func TestCallbackYieldsToReadFramesAt(t *testing.T) {
	s, b := newTestSource(t)
	if err := s.LoadFile(writeTestWAV(t)); err != nil {
		t.Fatal(err)
	}

	s.decMu.Lock()
	out := b.last().Pull(8)
	s.decMu.Unlock()

	for _, v := range out {
		if v != 0 {
			t.Fatal("contended block should be silent")
		}
	}
	if s.Stats().Contended != 1 {
		t.Errorf("Contended = %d, want 1", s.Stats().Contended)
	}
	if s.Position() != 0 {
		t.Error("contended block should not advance the decoder")
	}
}

func TestPositionDoesNotContendWithCallback(t *testing.T) {
	s, b := newTestSource(t)
	if err := s.LoadFile(writeTestWAV(t)); err != nil {
		t.Fatal(err)
	}
	st := b.last()
	st.Pull(10)

	// Polling the cursor while the decoder lock is held must not block,
	// and polling it between callbacks must not silence the next block.
	s.decMu.Lock()
	done := make(chan [2]float64, 1)
	go func() { done <- [2]float64{s.Position(), s.Duration()} }()
	select {
	case got := <-done:
		if math.Abs(got[0]-10.0/testSampleRate) > 1e-9 {
			t.Errorf("Position = %f, want %f", got[0], 10.0/testSampleRate)
		}
		if math.Abs(got[1]-float64(testFrames)/testSampleRate) > 1e-9 {
			t.Errorf("Duration = %f", got[1])
		}
	case <-time.After(time.Second):
		t.Fatal("Position blocked on the decoder lock")
	}
	s.decMu.Unlock()

	for i := 0; i < 5; i++ {
		_ = s.Position()
		out := st.Pull(4)
		if !near(out[0], float32(10+4*i)/1000) {
			t.Fatalf("block %d starts at %f", i, out[0])
		}
	}
	if s.Stats().Contended != 0 {
		t.Errorf("Contended = %d, want 0", s.Stats().Contended)
	}
	if got := s.Position(); math.Abs(got-30.0/testSampleRate) > 1e-9 {
		t.Errorf("Position = %f after 30 frames", got)
	}

	s.Stop()
	if s.Position() != 0 || s.Duration() != 0 {
		t.Error("idle source should report no position")
	}
}

func TestCallbackPanicIsRecovered(t *testing.T) {
	s, b := newTestSource(t)
	if err := s.PlayBuffer([]float32{0.5, 0.5}, 8000); err != nil {
		t.Fatal(err)
	}
	// Corrupt callback state: an odd buffer indexes past its end.
	s.pre = []float32{0.5}

	out := b.last().Pull(4)
	for _, v := range out {
		if v != 0 {
			t.Fatal("panicking block should be silent")
		}
	}
	st := s.Stats()
	if st.Panics != 1 || st.Callbacks != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestCallbackHotPathDoesNotAllocate(t *testing.T) {
	s, b := newTestSource(t)
	if err := s.StartTone(synth.DefaultTone()); err != nil {
		t.Fatal(err)
	}
	st := b.last()
	out := make([]float32, 512*2)

	allocs := testing.AllocsPerRun(100, func() {
		st.Render(out)
	})
	if allocs > 0 {
		t.Errorf("tone callback allocated %.1f times", allocs)
	}

	if err := s.LoadFile(writeTestWAV(t)); err != nil {
		t.Fatal(err)
	}
	st = b.last()
	allocs = testing.AllocsPerRun(100, func() {
		st.Render(out)
	})
	if allocs > 0 {
		t.Errorf("file callback allocated %.1f times", allocs)
	}
}

func TestAvailableDevices(t *testing.T) {
	s, b := newTestSource(t)
	b.devices = []Device{
		{ID: 0, Name: "Mic", MaxInputChannels: 1},
		{ID: 1, Name: "Speakers", MaxOutputChannels: 2},
		{ID: 2, Name: "Interface", MaxInputChannels: 2, MaxOutputChannels: 2},
	}

	if got := s.AvailableDevices(true); len(got) != 2 || got[0].Name != "Mic" || got[1].Name != "Interface" {
		t.Errorf("capture devices = %+v", got)
	}
	if got := s.AvailableDevices(false); len(got) != 2 || got[0].Name != "Speakers" {
		t.Errorf("playback devices = %+v", got)
	}

	b.devErr = errors.New("host error")
	if got := s.AvailableDevices(true); got == nil || len(got) != 0 {
		t.Errorf("enumeration failure should give an empty list, got %v", got)
	}
}

func TestPlaybackDeviceSelection(t *testing.T) {
	s, b := newTestSource(t)
	s.SetPlaybackDevice("Headphones")
	if err := s.StartTone(synth.DefaultTone()); err != nil {
		t.Fatal(err)
	}
	if b.last().cfg.Device != "Headphones" {
		t.Errorf("device = %q", b.last().cfg.Device)
	}
}

func TestStopReturnsToIdle(t *testing.T) {
	s, b := newTestSource(t)
	if err := s.StartTone(synth.DefaultTone()); err != nil {
		t.Fatal(err)
	}
	s.Stop()
	if _, ok := s.Mode().(Idle); !ok {
		t.Errorf("mode = %v", s.Mode())
	}
	if b.activeCount() != 0 {
		t.Error("stream still active after Stop")
	}
	if s.IsPlaying() {
		t.Error("idle source reports playing")
	}
}

func TestModeStrings(t *testing.T) {
	tests := []struct {
		mode Mode
		want string
	}{
		{Idle{}, "idle"},
		{FilePlayback{Path: "a.mp3"}, "file:a.mp3"},
		{LiveCapture{}, "capture:default"},
		{LiveCapture{Device: "Mic"}, "capture:Mic"},
		{ToneGenerator{Tone: synth.Tone{Waveform: synth.Sine, Frequency: 440}}, "tone:sine 440.0Hz"},
		{PrecomputedBuffer{Frames: 10, SampleRate: 8000}, "buffer:10 frames @ 8000Hz"},
	}
	for _, tt := range tests {
		if got := tt.mode.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
