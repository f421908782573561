package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"audioscope/internal/audio"
	"audioscope/internal/export"
	"audioscope/internal/synth"
)

type oscFlags struct {
	preset   string
	x, y     string
	freq     float64
	duration float64
	rate     int
	out      string
	list     bool
}

func newOscCmd(o *options) *cobra.Command {
	var f oscFlags
	cmd := &cobra.Command{
		Use:   "osc",
		Short: "Generate oscilloscope music from XY expressions",
		Long: "Evaluates x(t, f) and y(t, f) into a stereo buffer (left = x, right = y).\n" +
			"With --out the buffer is written to a .wav or .mp3 file, otherwise it loops\n" +
			"on the playback device until interrupted.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.osc(cmd, f)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&f.preset, "preset", "p", "", "Preset name (see --list)")
	flags.StringVar(&f.x, "x", "", "Expression for the left channel")
	flags.StringVar(&f.y, "y", "", "Expression for the right channel")
	flags.Float64VarP(&f.freq, "freq", "f", 0, "Base frequency bound to f (default from config)")
	flags.Float64VarP(&f.duration, "duration", "t", 0, "Seconds to generate (default from config)")
	flags.IntVarP(&f.rate, "rate", "s", 0, "Sample rate in Hz (default from config)")
	flags.StringVarP(&f.out, "out", "o", "", "Write to this .wav or .mp3 file instead of playing")
	flags.BoolVar(&f.list, "list", false, "List presets and exit")
	cmd.MarkFlagsRequiredTogether("x", "y")
	cmd.MarkFlagsMutuallyExclusive("preset", "x")
	return cmd
}

func (o *options) osc(cmd *cobra.Command, f oscFlags) error {
	w := cmd.OutOrStdout()
	if f.list {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tX\tY")
		for _, p := range synth.Presets() {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Name, p.X, p.Y)
		}
		return tw.Flush()
	}

	cfg, err := o.load()
	if err != nil {
		return err
	}
	osc := &cfg.Audio.Osc
	if f.preset != "" {
		osc.Preset, osc.X, osc.Y = f.preset, "", ""
	}
	if f.x != "" {
		osc.X, osc.Y = f.x, f.y
	}
	if f.freq > 0 {
		osc.BaseFrequency = f.freq
	}
	if f.duration > 0 {
		osc.Duration = f.duration
	}
	if f.rate > 0 {
		cfg.Audio.ToneRate = float64(f.rate)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	m, err := cfg.OscMusic()
	if err != nil {
		return err
	}
	rate := int(cfg.Audio.ToneRate)

	if f.out != "" {
		if _, err := export.FormatForPath(f.out); err != nil {
			return err
		}
		buf, err := m.GenerateStereoBuffer(osc.Duration, rate)
		if err != nil {
			return err
		}
		if err := export.WriteFile(f.out, buf, 2, rate); err != nil {
			return err
		}
		fmt.Fprintf(w, "wrote %.2fs of %s to %s\n", osc.Duration, describe(m), f.out)
		return nil
	}

	ctx, stop := signal.NotifyContext(contextOf(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return o.withBackend(func(b audio.Backend) error {
		src, err := audio.NewSource(cfg.SourceOptions(b))
		if err != nil {
			return err
		}
		defer src.Close()
		if err := src.StartOscMusic(m, osc.Duration, rate); err != nil {
			return err
		}
		fmt.Fprintf(w, "playing %s, press Ctrl+C to stop\n", describe(m))
		<-ctx.Done()
		return nil
	})
}

func describe(m *synth.OscMusic) string {
	x, y := m.Expressions()
	return fmt.Sprintf("x=%q y=%q (f=%g)", x, y, m.BaseFrequency())
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
