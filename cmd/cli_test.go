package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"audioscope/internal/audio"
	"audioscope/internal/config"
	"audioscope/internal/decode"
	"audioscope/internal/export"
	"audioscope/internal/transport"
	"audioscope/pkg/utils"
)

type fakeBackend struct {
	devices []audio.Device
}

func (f fakeBackend) Devices() ([]audio.Device, error) { return f.devices, nil }

func (fakeBackend) OpenPlayback(audio.StreamConfig, func([]float32)) (audio.Stream, error) {
	return nil, errors.New("no playback in tests")
}

func (fakeBackend) OpenCapture(audio.StreamConfig, func([]float32)) (audio.Stream, error) {
	return nil, errors.New("no capture in tests")
}

const testConfig = `
log_level: warn
analysis:
  fft_size: 1024
  layers:
    - name: bars
      num_bars: 16
      min_freq: 50
      max_freq: 3500
transport:
  ws_enabled: false
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o644))
	return path
}

// execute runs the root command against a fake backend and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	o := &options{withBackend: func(fn func(audio.Backend) error) error {
		return fn(fakeBackend{devices: []audio.Device{
			{ID: 0, Name: "Mic", MaxInputChannels: 1, DefaultSampleRate: 48000},
			{ID: 1, Name: "Speakers", MaxOutputChannels: 2, DefaultSampleRate: 44100},
		}})
	}}
	root := newRootCmd(o)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	require.Contains(t, out, "audioscope")
}

func TestListFiltersDevices(t *testing.T) {
	cfg := writeConfig(t)

	out, err := execute(t, "-c", cfg, "list")
	require.NoError(t, err)
	require.Contains(t, out, "Mic")
	require.Contains(t, out, "Speakers")

	out, err = execute(t, "-c", cfg, "list", "--capture")
	require.NoError(t, err)
	require.Contains(t, out, "Mic")
	require.NotContains(t, out, "Speakers")

	_, err = execute(t, "-c", cfg, "list", "--capture", "--playback")
	require.Error(t, err)
}

func TestExportCommand(t *testing.T) {
	dir := t.TempDir()
	wav := filepath.Join(dir, "tone.wav")
	require.NoError(t, export.WriteFile(wav, utils.SineWave(8000, 8000, 440, 0.5), 1, 8000))
	out := filepath.Join(dir, "frames.jsonl")

	stdout, err := execute(t, "-c", writeConfig(t), "export", wav, "--fps", "10", "--out", out)
	require.NoError(t, err)
	require.Contains(t, stdout, "exported 10 frames")

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()

	var frames []transport.Frame
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 1<<20), 1<<20)
	for sc.Scan() {
		var fr transport.Frame
		require.NoError(t, json.Unmarshal(sc.Bytes(), &fr))
		frames = append(frames, fr)
	}
	require.NoError(t, sc.Err())
	require.Len(t, frames, 10)
	require.Equal(t, uint64(1), frames[0].Seq)
	require.InDelta(t, 0.9, frames[9].Time, 1e-9)
	require.Len(t, frames[0].Layer("bars"), 16)
	require.NotEmpty(t, frames[0].Bands)
}

func TestExportCommandStdoutAndDuration(t *testing.T) {
	dir := t.TempDir()
	wav := filepath.Join(dir, "tone.wav")
	require.NoError(t, export.WriteFile(wav, utils.SineWave(8000, 8000, 440, 0.5), 1, 8000))

	stdout, err := execute(t, "-c", writeConfig(t), "export", wav, "--fps", "20", "--duration", "0.25", "--out", "-")
	require.NoError(t, err)
	require.Len(t, strings.Split(strings.TrimSpace(stdout), "\n"), 5)
}

func TestExportCommandErrors(t *testing.T) {
	cfg := writeConfig(t)
	_, err := execute(t, "-c", cfg, "export")
	require.Error(t, err, "missing file argument")

	_, err = execute(t, "-c", cfg, "export", filepath.Join(t.TempDir(), "missing.wav"))
	require.Error(t, err)
}

func TestOscWritesFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "circle.wav")
	stdout, err := execute(t, "-c", writeConfig(t), "osc", "--preset", "Circle", "--duration", "0.5", "--rate", "8000", "--out", out)
	require.NoError(t, err)
	require.Contains(t, stdout, "wrote")

	dec, err := decode.Open(out)
	require.NoError(t, err)
	defer dec.Close()
	require.Equal(t, 2, dec.Channels())
	require.Equal(t, 8000, dec.SampleRate())
	require.Equal(t, int64(4000), dec.Length())
}

func TestOscRejectsBadInput(t *testing.T) {
	cfg := writeConfig(t)
	dir := t.TempDir()

	_, err := execute(t, "-c", cfg, "osc", "--x", "sin(t", "--y", "cos(t)", "--out", filepath.Join(dir, "bad.wav"))
	require.Error(t, err)

	_, err = execute(t, "-c", cfg, "osc", "--x", "sin(t)", "--out", filepath.Join(dir, "half.wav"))
	require.Error(t, err, "x requires y")

	_, err = execute(t, "-c", cfg, "osc", "--preset", "Circle", "--out", filepath.Join(dir, "out.ogg"))
	require.ErrorIs(t, err, export.ErrUnsupportedFormat)

	_, err = execute(t, "-c", cfg, "osc", "--preset", "Nope", "--out", filepath.Join(dir, "x.wav"))
	require.Error(t, err)
}

func TestOscListPresets(t *testing.T) {
	out, err := execute(t, "osc", "--list")
	require.NoError(t, err)
	require.Contains(t, out, "Circle")
	require.Contains(t, out, "Heart")
}

func TestRunPipelineIdleStopsOnCancel(t *testing.T) {
	cfg, err := config.LoadConfig(writeConfig(t))
	require.NoError(t, err)
	cfg.Recording.Enabled = true
	cfg.Recording.OutputDir = t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runPipeline(ctx, cfg, fakeBackend{}) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runPipeline did not return after cancel")
	}

	entries, err := os.ReadDir(cfg.Recording.OutputDir)
	require.NoError(t, err)
	require.Empty(t, entries, "idle runs do not record")
}

func TestRunPipelineDeviceError(t *testing.T) {
	cfg, err := config.LoadConfig(writeConfig(t))
	require.NoError(t, err)
	cfg.Audio.Mode = config.ModeTone

	err = runPipeline(context.Background(), cfg, fakeBackend{})
	var devErr *audio.DeviceError
	require.ErrorAs(t, err, &devErr)
}

func TestNewTransport(t *testing.T) {
	cfg := config.Default()
	cfg.Transport.WSEnabled = false
	cfg.Transport.UDPEnabled = true
	cfg.Transport.UDPTargetAddress = "127.0.0.1:9"
	cfg.Transport.LogEvery = 60

	m, err := newTransport(&cfg)
	require.NoError(t, err)
	require.Len(t, m, 2)
	require.NoError(t, m.Send(&transport.Frame{Seq: 1}))
	require.NoError(t, m.Close())

	cfg.Transport.UDPTargetAddress = "not an address"
	_, err = newTransport(&cfg)
	require.Error(t, err)
}

func TestPaths(t *testing.T) {
	require.Equal(t, filepath.Join("out", "song.jsonl"), defaultExportPath("out", "/music/song.mp3"))
	require.Equal(t, "song.jsonl", defaultExportPath("", "song.wav"))

	dir := filepath.Join(t.TempDir(), "rec")
	path, err := recordingPath(dir, time.Date(2024, 3, 9, 14, 5, 6, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "recording-09-03-2024-140506.wav"), path)
	_, err = os.Stat(dir)
	require.NoError(t, err)
}
