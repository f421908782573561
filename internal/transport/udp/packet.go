package udp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"audioscope/internal/transport"
)

/*
Packet layout, big endian:

+-----------------+---------+-----------------------------------------+
| Field           | Type    | Notes                                   |
|-----------------|---------|-----------------------------------------|
| Sequence Number | uint32  | increments per encoded frame            |
| Timestamp       | int64   | nanoseconds since epoch                 |
| Flags           | uint8   | bit 0: beat                             |
| Peak            | float32 | linear peak of the last callback block  |
| Position        | float32 | playback position in seconds            |
| Layer Count     | uint8   | L                                       |
| Bar Count       | uint16  | N, repeated per layer                   |
| Bars            | float32 | N * 4 bytes, repeated per layer         |
+-----------------+---------+-----------------------------------------+
*/

const (
	flagBeat = 1 << 0

	headerSize = 4 + 8 + 1 + 4 + 4 + 1
)

var errTooLarge = errors.New("frame does not fit a packet")

// Packet is a decoded datagram.
type Packet struct {
	Seq       uint32
	Timestamp int64
	Beat      bool
	Peak      float32
	Position  float32
	Layers    [][]float32
}

type header struct {
	Seq       uint32
	Timestamp int64
	Flags     uint8
	Peak      float32
	Position  float32
	Layers    uint8
}

// EncodeFrame appends the packet for f to buf.
func EncodeFrame(buf *bytes.Buffer, seq uint32, timestamp int64, f *transport.Frame) error {
	if len(f.Layers) > math.MaxUint8 {
		return fmt.Errorf("%w: %d layers", errTooLarge, len(f.Layers))
	}
	h := header{
		Seq:       seq,
		Timestamp: timestamp,
		Peak:      f.Peak,
		Position:  float32(f.Position),
		Layers:    uint8(len(f.Layers)),
	}
	if f.Beat {
		h.Flags |= flagBeat
	}
	if err := binary.Write(buf, binary.BigEndian, &h); err != nil {
		return err
	}

	var scratch [4]byte
	for _, l := range f.Layers {
		if len(l.Bars) > math.MaxUint16 {
			return fmt.Errorf("%w: layer %q has %d bars", errTooLarge, l.Name, len(l.Bars))
		}
		binary.BigEndian.PutUint16(scratch[:2], uint16(len(l.Bars)))
		buf.Write(scratch[:2])
		for _, v := range l.Bars {
			binary.BigEndian.PutUint32(scratch[:], math.Float32bits(float32(v)))
			buf.Write(scratch[:])
		}
	}
	return nil
}

// DecodePacket parses a datagram produced by EncodeFrame.
func DecodePacket(data []byte) (Packet, error) {
	var h header
	r := bytes.NewReader(data)
	if err := binary.Read(r, binary.BigEndian, &h); err != nil {
		return Packet{}, fmt.Errorf("read header: %w", err)
	}
	p := Packet{
		Seq:       h.Seq,
		Timestamp: h.Timestamp,
		Beat:      h.Flags&flagBeat != 0,
		Peak:      h.Peak,
		Position:  h.Position,
		Layers:    make([][]float32, h.Layers),
	}
	for i := range p.Layers {
		var n uint16
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return Packet{}, fmt.Errorf("read layer %d size: %w", i, err)
		}
		bars := make([]float32, n)
		if err := binary.Read(r, binary.BigEndian, bars); err != nil {
			return Packet{}, fmt.Errorf("read layer %d bars: %w", i, err)
		}
		p.Layers[i] = bars
	}
	if r.Len() != 0 {
		return Packet{}, fmt.Errorf("%d trailing bytes", r.Len())
	}
	return p, nil
}
