// SPDX-License-Identifier: MIT
//
// Package ring implements the sample rings shared between the audio callback
// and the analysis loop. One goroutine writes, any number read. Every read
// copies out under the same short critical section the writer uses, so a
// reader never observes a partially written block.
package ring

import "sync"

// Channel selects which component a ChannelSnapshot extracts from an
// interleaved stereo ring.
type Channel int

const (
	Mixed Channel = iota
	Left
	Right
)

func (c Channel) String() string {
	switch c {
	case Mixed:
		return "mixed"
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return "unknown"
	}
}

// ParseChannel maps "mixed", "left" and "right" to a Channel. Anything else
// yields Mixed and false.
func ParseChannel(s string) (Channel, bool) {
	switch s {
	case "mixed", "":
		return Mixed, true
	case "left", "l":
		return Left, true
	case "right", "r":
		return Right, true
	default:
		return Mixed, false
	}
}

// Ring is a fixed-capacity circular store of float32 samples.
type Ring struct {
	mu      sync.Mutex
	buf     []float32
	head    int    // next write index
	written uint64 // samples written since the last Resize
}

// New allocates a ring holding capacity samples. A capacity below one is
// raised to one.
func New(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]float32, capacity)}
}

// Capacity returns the number of samples the ring retains.
func (r *Ring) Capacity() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf)
}

// Resize reallocates the backing store and clears the ring. It is called
// when a stream is reconfigured, never from the audio callback.
func (r *Ring) Resize(capacity int) {
	if capacity < 1 {
		capacity = 1
	}
	r.mu.Lock()
	r.buf = make([]float32, capacity)
	r.head = 0
	r.written = 0
	r.mu.Unlock()
}

// Grow resizes the ring only if it is smaller than capacity.
func (r *Ring) Grow(capacity int) {
	if r.Capacity() < capacity {
		r.Resize(capacity)
	}
}

// Reset zeroes the contents without reallocating.
func (r *Ring) Reset() {
	r.mu.Lock()
	clear(r.buf)
	r.head = 0
	r.written = 0
	r.mu.Unlock()
}

// Cursor returns the absolute number of samples written since the last
// Resize or Reset. Drain consumers pass it back to ReadFrom.
func (r *Ring) Cursor() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}

// put stores one sample. Callers hold mu.
func (r *Ring) put(v float32) {
	r.buf[r.head] = v
	r.head++
	if r.head == len(r.buf) {
		r.head = 0
	}
	r.written++
}

// Write appends samples, overwriting the oldest. When more samples than the
// capacity are given only the newest capacity samples survive.
func (r *Ring) Write(samples []float32) {
	if len(samples) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	capacity := len(r.buf)
	if skip := len(samples) - capacity; skip > 0 {
		r.written += uint64(skip)
		r.head = (r.head + skip) % capacity
		samples = samples[skip:]
	}

	n := copy(r.buf[r.head:], samples)
	if n < len(samples) {
		copy(r.buf, samples[n:])
	}
	r.head = (r.head + len(samples)) % capacity
	r.written += uint64(len(samples))
}

// WriteMixed downmixes interleaved frames with the given channel count to
// mono by channel average and appends the result.
func (r *Ring) WriteMixed(frames []float32, channels int) {
	if channels <= 1 {
		r.Write(frames)
		return
	}
	count := len(frames) / channels
	if count == 0 {
		return
	}
	inv := 1 / float32(channels)

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 0; i < count; i++ {
		var sum float32
		base := i * channels
		for c := 0; c < channels; c++ {
			sum += frames[base+c]
		}
		r.put(sum * inv)
	}
}

// WriteStereo appends interleaved frames as L/R pairs. Mono input is
// replicated to both sides; input with more than two channels keeps the
// first two.
func (r *Ring) WriteStereo(frames []float32, channels int) {
	if channels == 2 {
		r.Write(frames)
		return
	}
	if channels < 1 {
		return
	}
	count := len(frames) / channels

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 0; i < count; i++ {
		base := i * channels
		if channels == 1 {
			r.put(frames[base])
			r.put(frames[base])
			continue
		}
		r.put(frames[base])
		r.put(frames[base+1])
	}
}

// Snapshot returns the most recent count samples, oldest first. count is
// clamped to the capacity; zero or negative returns an empty slice. Slots
// that were never written read as zero.
func (r *Ring) Snapshot(count int) []float32 {
	if count <= 0 {
		return []float32{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	count = min(count, len(r.buf))
	out := make([]float32, count)
	r.copyRecent(out)
	return out
}

// SnapshotInto fills dst with the most recent samples, oldest first, and
// returns how many were copied (len(dst) clamped to the capacity). It does
// not allocate.
func (r *Ring) SnapshotInto(dst []float32) int {
	if len(dst) == 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	n := min(len(dst), len(r.buf))
	r.copyRecent(dst[:n])
	return n
}

// copyRecent copies the newest len(dst) samples. Callers hold mu and
// guarantee len(dst) <= capacity.
func (r *Ring) copyRecent(dst []float32) {
	capacity := len(r.buf)
	start := r.head - len(dst)
	if start < 0 {
		start += capacity
	}
	n := copy(dst, r.buf[start:])
	if n < len(dst) {
		copy(dst[n:], r.buf)
	}
}

// ChannelSnapshot extracts the most recent frames from an interleaved stereo
// ring as a single channel. frames is clamped to capacity/2.
func (r *Ring) ChannelSnapshot(frames int, ch Channel) []float32 {
	if frames <= 0 {
		return []float32{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	frames = min(frames, len(r.buf)/2)
	out := make([]float32, frames)
	r.copyChannel(out, ch)
	return out
}

// ChannelSnapshotInto is the allocation-free form of ChannelSnapshot.
func (r *Ring) ChannelSnapshotInto(dst []float32, ch Channel) int {
	if len(dst) == 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	n := min(len(dst), len(r.buf)/2)
	r.copyChannel(dst[:n], ch)
	return n
}

func (r *Ring) copyChannel(dst []float32, ch Channel) {
	capacity := len(r.buf)
	idx := r.head - 2*len(dst)
	if idx < 0 {
		idx += capacity
	}
	for i := range dst {
		left := r.buf[idx]
		right := r.buf[(idx+1)%capacity]
		switch ch {
		case Left:
			dst[i] = left
		case Right:
			dst[i] = right
		default:
			dst[i] = (left + right) * 0.5
		}
		idx += 2
		if idx >= capacity {
			idx -= capacity
		}
	}
}

// ReadFrom copies samples written at or after the absolute cursor into dst.
// It returns the number copied, the cursor to pass on the next call and the
// number of samples lost because the writer lapped the reader.
func (r *Ring) ReadFrom(cursor uint64, dst []float32) (n int, next uint64, dropped uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	capacity := uint64(len(r.buf))
	if cursor > r.written {
		// The ring was reset under the reader; start over.
		cursor = 0
	}
	if r.written-cursor > capacity {
		dropped = r.written - capacity - cursor
		cursor = r.written - capacity
	}

	avail := int(r.written - cursor)
	n = min(avail, len(dst))
	if n == 0 {
		return 0, cursor, dropped
	}

	// Position of cursor inside the backing store.
	behind := avail
	start := r.head - behind
	if start < 0 {
		start += len(r.buf)
	}
	c := copy(dst[:n], r.buf[start:])
	if c < n {
		copy(dst[c:n], r.buf)
	}
	return n, cursor + uint64(n), dropped
}
