// SPDX-License-Identifier: MIT

// Package pipeline is the consumer side: once per frame it snapshots the
// source rings, runs the analyzer over every layer and hands the resulting
// frame to a transport. The offline export loop reuses the same Engine so a
// file analysed offline produces the frames the live loop would.
package pipeline

import (
	"audioscope/internal/analysis"
	"audioscope/internal/log"
	"audioscope/internal/ring"
	"audioscope/internal/transport"
)

var logger = log.With("Pipeline")

// Blocks holds one analysis window per channel. Left and Right fall back to
// Mono when empty.
type Blocks struct {
	Mono  []float32
	Left  []float32
	Right []float32
}

// Engine couples an Analyzer with its layers and a reusable Frame.
// It is not safe for concurrent use.
type Engine struct {
	analyzer *analysis.Analyzer
	layers   []*analysis.Layer
	bands    []analysis.Band
	energies []float64
	frame    transport.Frame
	seq      uint64
	elapsed  float64
}

// NewEngine builds an engine. The band list may be empty.
func NewEngine(a *analysis.Analyzer, layers []*analysis.Layer, bands []analysis.Band) *Engine {
	e := &Engine{analyzer: a}
	e.SetBands(bands)
	e.SetLayers(layers)
	return e
}

func (e *Engine) Analyzer() *analysis.Analyzer {
	return e.analyzer
}

func (e *Engine) Layers() []*analysis.Layer {
	return e.layers
}

// SetLayers replaces the layer set. Existing layers keep their history.
func (e *Engine) SetLayers(layers []*analysis.Layer) {
	e.layers = layers
	e.frame.Layers = make([]transport.LayerFrame, len(layers))
}

// SetBands replaces the band list.
func (e *Engine) SetBands(bands []analysis.Band) {
	e.bands = bands
	e.energies = make([]float64, len(bands))
	e.frame.Bands = make([]transport.BandValue, len(bands))
	for i, b := range bands {
		e.frame.Bands[i].Name = b.Name
	}
	if len(bands) == 0 {
		e.frame.Bands = nil
	}
}

// BlockSize is the number of frames each analysis window should hold.
func (e *Engine) BlockSize() int {
	return e.analyzer.FFTSize()
}

// Needs reports whether any layer reads the given channel.
func (e *Engine) Needs(ch ring.Channel) bool {
	for _, l := range e.layers {
		if l.Config.Channel == ch {
			return true
		}
	}
	return false
}

// Reset clears layer history, the beat detector and the frame counters.
func (e *Engine) Reset() {
	for _, l := range e.layers {
		l.Reset()
	}
	e.analyzer.Beat().Reset()
	e.seq = 0
	e.elapsed = 0
}

// Analyze runs one frame of analysis. Per-channel layers are computed first
// so the analyzer ends on the mixed spectrum, which drives the beat detector
// and the bands. The returned frame is reused by the next call.
func (e *Engine) Analyze(b Blocks, dt float64) *transport.Frame {
	for _, ch := range [...]ring.Channel{ring.Left, ring.Right} {
		if !e.Needs(ch) {
			continue
		}
		block := b.Left
		if ch == ring.Right {
			block = b.Right
		}
		if len(block) == 0 {
			block = b.Mono
		}
		e.analyzer.ComputeFFT(block)
		e.computeChannel(ch)
	}
	e.analyzer.ComputeFFT(b.Mono)
	e.computeChannel(ring.Mixed)

	beat := e.analyzer.DetectBeat(dt)
	e.analyzer.BandEnergies(e.bands, e.energies)

	e.seq++
	e.elapsed += dt
	f := &e.frame
	f.Seq = e.seq
	f.Time = e.elapsed
	f.Beat = beat
	for i, v := range e.energies {
		f.Bands[i].Value = v
	}
	for i, l := range e.layers {
		f.Layers[i].Name = l.Config.Name
		f.Layers[i].Bars = l.Bars()
	}
	return f
}

func (e *Engine) computeChannel(ch ring.Channel) {
	for _, l := range e.layers {
		if l.Config.Channel == ch {
			e.analyzer.ComputeLayer(l)
		}
	}
}
