package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// FrameReader is the random-access view of a loaded file. *audio.Source
// implements it.
type FrameReader interface {
	ReadFramesAt(offset int64, count int) ([]float32, error)
	DecoderFormat() (channels, sampleRate int, err error)
	Duration() float64
}

// ExportOptions configures an offline export.
type ExportOptions struct {
	FPS      float64
	Duration float64                // seconds to export, 0 for the whole file
	Progress func(frame, total int) // called after every frame when set
}

// Export analyses the file behind r at FPS frames per second and writes one
// JSON frame per line to w. Frame f reads BlockSize frames starting at
// f/FPS seconds and is analysed with dt = 1/FPS, the same steps the live
// loop takes. It returns the number of frames written.
func Export(ctx context.Context, r FrameReader, e *Engine, w io.Writer, opts ExportOptions) (int, error) {
	if opts.FPS <= 0 {
		opts.FPS = DefaultFrameRate
	}
	channels, rate, err := r.DecoderFormat()
	if err != nil {
		return 0, err
	}
	if channels <= 0 || rate <= 0 {
		return 0, fmt.Errorf("pipeline: invalid source format (%d channels @ %d Hz)", channels, rate)
	}
	if err := e.Analyzer().SetSampleRate(float64(rate)); err != nil {
		return 0, err
	}

	duration := r.Duration()
	if opts.Duration > 0 && (duration <= 0 || opts.Duration < duration) {
		duration = opts.Duration
	}
	total := int(duration * opts.FPS)
	if total <= 0 {
		return 0, errors.New("pipeline: nothing to export, source duration is unknown or zero")
	}

	dt := 1.0 / opts.FPS
	n := e.BlockSize()
	mono := make([]float32, n)
	left := make([]float32, n)
	right := make([]float32, n)
	enc := json.NewEncoder(w)

	e.Reset()
	logger.Infof("exporting %d frames at %.2f fps (%d channels @ %d Hz)", total, opts.FPS, channels, rate)

	for f := range total {
		if err := ctx.Err(); err != nil {
			return f, err
		}
		offset := int64(float64(f) * dt * float64(rate))
		buf, err := r.ReadFramesAt(offset, n)
		if err != nil {
			return f, fmt.Errorf("pipeline: frame %d: %w", f, err)
		}
		split(buf, channels, mono, left, right)

		frame := e.Analyze(Blocks{Mono: mono, Left: left, Right: right}, dt)
		frame.Time = float64(f) * dt
		frame.Position = frame.Time
		frame.Peak = peak(mono)
		if err := enc.Encode(frame); err != nil {
			return f, fmt.Errorf("pipeline: write frame %d: %w", f, err)
		}
		if opts.Progress != nil {
			opts.Progress(f+1, total)
		}
	}
	return total, nil
}

// split de-interleaves buf into a channel average and the first two
// channels, the same downmix the source applies to its rings. Mono input is
// copied to all three.
func split(buf []float32, channels int, mono, left, right []float32) {
	frames := min(len(buf)/channels, len(mono))
	inv := 1 / float32(channels)
	for i := range frames {
		frame := buf[i*channels : (i+1)*channels]
		l := frame[0]
		r := l
		if channels > 1 {
			r = frame[1]
		}
		var sum float32
		for _, v := range frame {
			sum += v
		}
		mono[i] = sum * inv
		left[i] = l
		right[i] = r
	}
	clear(mono[frames:])
	clear(left[frames:])
	clear(right[frames:])
}

func peak(samples []float32) float32 {
	var p float32
	for _, v := range samples {
		p = max(p, v, -v)
	}
	return p
}
