// SPDX-License-Identifier: MIT

// Package udp publishes analysed frames as compact binary datagrams.
package udp

import (
	"bytes"
	"sync"
	"time"

	"audioscope/internal/log"
	"audioscope/internal/transport"
)

var logger = log.With("UDP")

const DefaultInterval = 16 * time.Millisecond

// Publisher keeps the most recent frame and sends it at a fixed interval,
// independent of how fast frames arrive. Frames that were superseded before
// a tick are never sent.
type Publisher struct {
	sender   *Sender
	interval time.Duration

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // protects ticker and doneChan during Start/Stop

	frameMu     sync.Mutex
	pending     *bytes.Buffer // encoded latest frame
	fresh       bool          // pending has not been sent yet
	sequenceNum uint32

	out *bytes.Buffer // copy of pending handed to the sender
}

// NewPublisher creates a publisher. An interval <= 0 defaults to 16ms.
func NewPublisher(interval time.Duration, sender *Sender) *Publisher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger.Infof("publisher initializing (interval: %s)", interval)
	return &Publisher{
		sender:   sender,
		interval: interval,
		pending:  new(bytes.Buffer),
		out:      new(bytes.Buffer),
	}
}

// Start launches the send loop. Calling Start while running is a no-op.
func (p *Publisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		logger.Warnf("publisher Start called but already running")
		return
	}
	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}
	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ticker.C:
				p.flush()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop ends the send loop and waits for it. Safe to call repeatedly.
func (p *Publisher) Stop() {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()
	p.wg.Wait()
}

// Send encodes the frame as the next packet to publish.
func (p *Publisher) Send(f *transport.Frame) error {
	p.frameMu.Lock()
	defer p.frameMu.Unlock()
	p.sequenceNum++
	p.pending.Reset()
	if err := EncodeFrame(p.pending, p.sequenceNum, time.Now().UnixNano(), f); err != nil {
		p.fresh = false
		return err
	}
	p.fresh = true
	return nil
}

// flush sends the pending packet if it has not been sent yet.
func (p *Publisher) flush() {
	p.frameMu.Lock()
	if !p.fresh {
		p.frameMu.Unlock()
		return
	}
	p.out.Reset()
	p.out.Write(p.pending.Bytes())
	seq := p.sequenceNum
	p.fresh = false
	p.frameMu.Unlock()

	if err := p.sender.Send(p.out.Bytes()); err != nil {
		logger.Warnf("send packet %d: %v", seq, err)
		return
	}
	logger.Debugf("sent packet %d (%d bytes)", seq, p.out.Len())
}

// Close stops the loop and closes the sender.
func (p *Publisher) Close() error {
	p.Stop()
	return p.sender.Close()
}

var _ transport.Transport = (*Publisher)(nil)
