package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"audioscope/internal/analysis"
	"audioscope/internal/audio"
	"audioscope/internal/config"
	"audioscope/internal/pipeline"
	"audioscope/internal/transport"
	"audioscope/internal/transport/udp"
)

// runFlags override the configuration for a single run.
type runFlags struct {
	mode   string
	device string
	record bool
}

func newRunCmd(o *options) *cobra.Command {
	var rf runFlags
	cmd := &cobra.Command{
		Use:   "run [file]",
		Short: "Analyse the configured source and stream frames until interrupted",
		Long: "Starts the source selected by audio.mode (or plays [file]) and publishes\n" +
			"one analysis frame per tick to the enabled transports. This is the default command.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd.Context(), rf, args)
		},
	}
	cmd.Flags().StringVarP(&rf.mode, "mode", "m", "", "Source mode: idle, file, capture, tone, osc")
	cmd.Flags().StringVarP(&rf.device, "device", "d", "", "Capture device name")
	cmd.Flags().BoolVarP(&rf.record, "record", "r", false, "Record the source output to WAV")
	return cmd
}

func (o *options) run(ctx context.Context, rf runFlags, args []string) error {
	cfg, err := o.load()
	if err != nil {
		return err
	}
	if len(args) == 1 {
		cfg.Audio.Mode = config.ModeFile
		cfg.Audio.File = args[0]
	}
	if rf.mode != "" {
		cfg.Audio.Mode = rf.mode
	}
	if rf.device != "" {
		cfg.Audio.CaptureDevice = rf.device
	}
	if rf.record {
		cfg.Recording.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return o.withBackend(func(b audio.Backend) error {
		return runPipeline(ctx, cfg, b)
	})
}

// runPipeline wires source, engine and transports, then blocks until ctx
// is done.
func runPipeline(ctx context.Context, cfg *config.Config, b audio.Backend) error {
	// --- 1. Build ---
	src, err := audio.NewSource(cfg.SourceOptions(b))
	if err != nil {
		return err
	}
	if cfg.Audio.Gate.Enabled {
		src.SetGateThreshold(cfg.Audio.Gate.Threshold)
		src.EnableGate()
	}

	engine, err := newEngine(cfg)
	if err != nil {
		return err
	}

	t, err := newTransport(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := t.Close(); err != nil {
			logger.Warnf("close transports: %v", err)
		}
	}()

	// --- 2. Start ---
	if err := startMode(src, cfg); err != nil {
		src.Close()
		return err
	}
	defer src.Close()

	_, idle := src.Mode().(audio.Idle)
	if cfg.Recording.Enabled && idle {
		logger.Warnf("recording skipped: no source is running")
	}
	if cfg.Recording.Enabled && !idle {
		path, err := recordingPath(cfg.Recording.OutputDir, time.Now())
		if err != nil {
			return err
		}
		if err := src.StartRecording(path); err != nil {
			return err
		}
		defer func() {
			if err := src.StopRecording(); err != nil {
				logger.Errorf("Error stopping recording: %v", err)
			}
		}()
	}

	runner := pipeline.NewRunner(src, engine, t, cfg.Analysis.FrameRate)
	runner.Start()
	logger.Infof("running %s, press Ctrl+C to stop", src.Mode())

	// --- 3. Shutdown ---
	<-ctx.Done()
	runner.Stop()
	return nil
}

// newEngine builds the analyzer, layers and bands from the configuration.
func newEngine(cfg *config.Config) (*pipeline.Engine, error) {
	opts, err := cfg.AnalyzerOptions()
	if err != nil {
		return nil, err
	}
	a, err := analysis.New(opts)
	if err != nil {
		return nil, err
	}
	layers, err := cfg.Layers()
	if err != nil {
		return nil, err
	}
	return pipeline.NewEngine(a, layers, cfg.Bands()), nil
}

// newTransport starts every enabled transport. On error the ones already
// started are closed.
func newTransport(cfg *config.Config) (transport.Multi, error) {
	var m transport.Multi
	tc := cfg.Transport

	if tc.WSEnabled {
		ws := transport.NewWebSocket(cfg.WebSocketConfig())
		ws.Start()
		m = append(m, ws)
	}
	if tc.UDPEnabled {
		sender, err := udp.NewSender(tc.UDPTargetAddress)
		if err != nil {
			m.Close()
			return nil, err
		}
		p := udp.NewPublisher(cfg.UDPInterval(), sender)
		p.Start()
		m = append(m, p)
	}
	if tc.LogEvery > 0 {
		m = append(m, transport.NewLoggingTransport(tc.LogEvery))
	}
	return m, nil
}

// startMode switches the source into the configured mode.
func startMode(src *audio.Source, cfg *config.Config) error {
	switch cfg.Audio.Mode {
	case config.ModeFile:
		return src.LoadFile(cfg.Audio.File)
	case config.ModeCapture:
		return src.StartCapture(cfg.Audio.CaptureDevice)
	case config.ModeTone:
		tone, err := cfg.Tone()
		if err != nil {
			return err
		}
		return src.StartTone(tone)
	case config.ModeOsc:
		m, err := cfg.OscMusic()
		if err != nil {
			return err
		}
		return src.StartOscMusic(m, cfg.Audio.Osc.Duration, int(cfg.Audio.ToneRate))
	case config.ModeIdle:
		return nil
	default:
		return fmt.Errorf("unknown mode %q", cfg.Audio.Mode)
	}
}

// recordingPath creates dir and returns a timestamped file name in it.
func recordingPath(dir string, now time.Time) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create recording directory: %w", err)
	}
	name := "recording-" + now.UTC().Format("02-01-2006-150405") + ".wav"
	return filepath.Join(dir, name), nil
}
