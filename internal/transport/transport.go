// SPDX-License-Identifier: MIT

// Package transport delivers analysed frames to consumers outside the
// process.
package transport

import (
	"errors"

	"audioscope/internal/log"
)

var logger = log.With("Transport")

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport closed")

// Transport sends frames to a consumer. Send must not retain the frame or
// any of its slices after returning, the caller reuses them for the next
// frame. Implementations must be safe for concurrent use.
type Transport interface {
	Send(f *Frame) error
	Close() error
}

// Multi fans a frame out to every transport in order.
type Multi []Transport

// Send delivers to all transports and joins their errors.
func (m Multi) Send(f *Frame) error {
	var errs []error
	for _, t := range m {
		if err := t.Send(f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes all transports and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, t := range m {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Transport = Multi(nil)
