package pipeline

import (
	"sync"
	"time"

	"audioscope/internal/audio"
	"audioscope/internal/log"
	"audioscope/internal/ring"
	"audioscope/internal/transport"
)

const DefaultFrameRate = 60.0

// Source is the producer state the live loop reads. *audio.Source
// implements it.
type Source interface {
	MonoRing() *ring.Ring
	StereoRing() *ring.Ring
	SampleRate() float64
	Position() float64
	PeakLevel() float32
	GateOpen() bool
	Stats() audio.Stats
}

// Runner drives an Engine from a ticker at a fixed frame rate.
type Runner struct {
	src       Source
	engine    *Engine
	transport transport.Transport
	interval  time.Duration

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // protects ticker and doneChan during Start/Stop

	// Consumer-owned scratch, touched only by Step.
	mono, left, right []float32
	lastStats         audio.Stats
	statsEvery        *log.Sampler
	sendErrors        *log.Sampler
}

// NewRunner creates a runner ticking at fps frames per second. A nil
// transport discards frames.
func NewRunner(src Source, engine *Engine, t transport.Transport, fps float64) *Runner {
	if fps <= 0 {
		fps = DefaultFrameRate
	}
	n := engine.BlockSize()
	r := &Runner{
		src:        src,
		engine:     engine,
		transport:  t,
		interval:   time.Duration(float64(time.Second) / fps),
		mono:       make([]float32, n),
		left:       make([]float32, n),
		right:      make([]float32, n),
		statsEvery: log.Every(int(fps) * 5),
		sendErrors: log.Every(int(fps) * 5),
	}
	return r
}

// Interval is the time between frames.
func (r *Runner) Interval() time.Duration {
	return r.interval
}

// Step runs a single frame with dt seconds since the previous one.
func (r *Runner) Step(dt float64) *transport.Frame {
	if rate := r.src.SampleRate(); rate > 0 {
		if err := r.engine.Analyzer().SetSampleRate(rate); err != nil {
			logger.Warnf("sample rate: %v", err)
		}
	}

	// --- 1. Snapshot ---
	var blocks Blocks
	n := r.src.MonoRing().SnapshotInto(r.mono)
	blocks.Mono = r.mono[:n]
	if r.engine.Needs(ring.Left) {
		n = r.src.StereoRing().ChannelSnapshotInto(r.left, ring.Left)
		blocks.Left = r.left[:n]
	}
	if r.engine.Needs(ring.Right) {
		n = r.src.StereoRing().ChannelSnapshotInto(r.right, ring.Right)
		blocks.Right = r.right[:n]
	}

	// A closed gate analyses silence, so the bars fall off instead of
	// freezing.
	if !r.src.GateOpen() {
		clear(blocks.Mono)
		clear(blocks.Left)
		clear(blocks.Right)
	}

	// --- 2. Analyze ---
	f := r.engine.Analyze(blocks, dt)
	f.Position = r.src.Position()
	f.Peak = r.src.PeakLevel()

	// --- 3. Publish ---
	if r.transport != nil {
		if err := r.transport.Send(f); err != nil && r.sendErrors.Allow() {
			logger.Warnf("send frame %d: %v", f.Seq, err)
		}
	}

	if r.statsEvery.Allow() {
		r.reportStats()
	}
	return f
}

// reportStats logs callback counters that moved since the last report.
func (r *Runner) reportStats() {
	s := r.src.Stats()
	prev := r.lastStats
	r.lastStats = s
	if s.DecodeErrors > prev.DecodeErrors || s.Panics > prev.Panics || s.Contended > prev.Contended {
		logger.Warnf("callback trouble: %d decode errors, %d recovered panics, %d contended blocks (%d callbacks)",
			s.DecodeErrors-prev.DecodeErrors, s.Panics-prev.Panics, s.Contended-prev.Contended, s.Callbacks)
		return
	}
	logger.Debugf("%d callbacks", s.Callbacks)
}

// Start launches the frame loop. Calling Start while running is a no-op.
func (r *Runner) Start() {
	r.mu.Lock()
	if r.ticker != nil {
		r.mu.Unlock()
		logger.Warnf("Start called but already running")
		return
	}
	r.ticker = time.NewTicker(r.interval)
	r.doneChan = make(chan struct{})
	r.stopOnce = sync.Once{}
	ticker := r.ticker
	doneChan := r.doneChan
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		logger.Infof("frame loop started (interval: %s)", r.interval)
		last := time.Now()
		for {
			select {
			case now := <-ticker.C:
				r.Step(now.Sub(last).Seconds())
				last = now
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop ends the frame loop and waits for the current frame to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.ticker == nil {
		r.mu.Unlock()
		return
	}
	r.stopOnce.Do(func() {
		close(r.doneChan)
		r.ticker.Stop()
		r.ticker = nil
	})
	r.mu.Unlock()
	r.wg.Wait()
	logger.Infof("frame loop stopped")
}
