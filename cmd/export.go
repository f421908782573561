package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"audioscope/internal/decode"
	"audioscope/internal/pipeline"
)

type exportFlags struct {
	fps      float64
	duration float64
	out      string
}

func newExportCmd(o *options) *cobra.Command {
	var f exportFlags
	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Analyse a file offline and write one JSON frame per line",
		Long: "Reads the file at --fps frames per second without opening an audio device\n" +
			"and writes the frames the live loop would publish. Use --out - for stdout.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.export(cmd, args[0], f)
		},
	}
	cmd.Flags().Float64Var(&f.fps, "fps", 0, "Frames per second (default from config)")
	cmd.Flags().Float64Var(&f.duration, "duration", 0, "Seconds to export, 0 for the whole file")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "Output path (default <export.output_dir>/<file>.jsonl)")
	return cmd
}

func (o *options) export(cmd *cobra.Command, input string, f exportFlags) (err error) {
	cfg, err := o.load()
	if err != nil {
		return err
	}
	if f.fps > 0 {
		cfg.Export.FPS = f.fps
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	engine, err := newEngine(cfg)
	if err != nil {
		return err
	}

	r, err := decode.OpenReader(input)
	if err != nil {
		return fmt.Errorf("open %s: %w", input, err)
	}
	defer r.Close()

	var w io.Writer
	out := f.out
	switch out {
	case "-":
		w = cmd.OutOrStdout()
	default:
		if out == "" {
			out = defaultExportPath(cfg.Export.OutputDir, input)
		}
		file, cerr := os.Create(out)
		if cerr != nil {
			return cerr
		}
		defer func() {
			if cerr := file.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		w = file
	}

	bw := bufio.NewWriter(w)
	last := -1
	n, err := pipeline.Export(contextOf(cmd), r, engine, bw, pipeline.ExportOptions{
		FPS:      cfg.Export.FPS,
		Duration: f.duration,
		Progress: func(frame, total int) {
			if pct := frame * 10 / total; pct != last {
				last = pct
				logger.Infof("export %d%% (%d/%d frames)", pct*10, frame, total)
			}
		},
	})
	if ferr := bw.Flush(); err == nil {
		err = ferr
	}
	if err != nil {
		return err
	}
	if out != "-" {
		fmt.Fprintf(cmd.OutOrStdout(), "exported %d frames to %s\n", n, out)
	}
	return nil
}

// defaultExportPath places <name>.jsonl for input in dir.
func defaultExportPath(dir, input string) string {
	base := filepath.Base(input)
	base = strings.TrimSuffix(base, filepath.Ext(base)) + ".jsonl"
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, base)
}
