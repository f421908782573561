package udp

import (
	"bytes"
	"net"
	"testing"
	"time"

	"audioscope/internal/transport"

	"github.com/stretchr/testify/require"
)

func testFrame() *transport.Frame {
	return &transport.Frame{
		Seq:      3,
		Position: 1.5,
		Beat:     true,
		Peak:     0.75,
		Layers: []transport.LayerFrame{
			{Name: "a", Bars: []float64{0.5, 1, 2}},
			{Name: "b", Bars: nil},
			{Name: "c", Bars: []float64{-1}},
		},
	}
}

func TestEncodeDecodeFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeFrame(&buf, 42, 1234567890, testFrame()))
	require.Equal(t, headerSize+(2+3*4)+2+(2+4), buf.Len())

	p, err := DecodePacket(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, uint32(42), p.Seq)
	require.Equal(t, int64(1234567890), p.Timestamp)
	require.True(t, p.Beat)
	require.Equal(t, float32(0.75), p.Peak)
	require.Equal(t, float32(1.5), p.Position)
	require.Equal(t, [][]float32{{0.5, 1, 2}, {}, {-1}}, p.Layers)
}

func TestDecodePacketErrors(t *testing.T) {
	_, err := DecodePacket([]byte{1, 2, 3})
	require.Error(t, err)

	var buf bytes.Buffer
	require.NoError(t, EncodeFrame(&buf, 1, 0, testFrame()))
	data := buf.Bytes()

	_, err = DecodePacket(data[:len(data)-2])
	require.Error(t, err, "truncated bars")

	_, err = DecodePacket(append(data, 0))
	require.Error(t, err, "trailing bytes")
}

func TestEncodeRejectsOversizedFrames(t *testing.T) {
	var buf bytes.Buffer
	f := &transport.Frame{Layers: make([]transport.LayerFrame, 256)}
	require.ErrorIs(t, EncodeFrame(&buf, 1, 0, f), errTooLarge)

	buf.Reset()
	f = &transport.Frame{Layers: []transport.LayerFrame{{Name: "big", Bars: make([]float64, 70000)}}}
	require.ErrorIs(t, EncodeFrame(&buf, 1, 0, f), errTooLarge)
}

func listen(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestPublisherSendsLatestFrame(t *testing.T) {
	conn := listen(t)
	sender, err := NewSender(conn.LocalAddr().String())
	require.NoError(t, err)

	p := NewPublisher(5*time.Millisecond, sender)
	t.Cleanup(func() { p.Close() })

	// Only the last of a burst is published.
	f := testFrame()
	require.NoError(t, p.Send(f))
	f.Beat = false
	require.NoError(t, p.Send(f))
	p.Start()
	p.Start()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 2048)
	n, err := conn.Read(buf)
	require.NoError(t, err)

	pkt, err := DecodePacket(buf[:n])
	require.NoError(t, err)
	require.Equal(t, uint32(2), pkt.Seq)
	require.False(t, pkt.Beat)

	// Nothing new is pending, so nothing else arrives.
	conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	_, err = conn.Read(buf)
	require.Error(t, err)

	p.Stop()
	p.Stop()
}

func TestSenderClosed(t *testing.T) {
	conn := listen(t)
	sender, err := NewSender(conn.LocalAddr().String())
	require.NoError(t, err)
	require.Equal(t, conn.LocalAddr().String(), sender.Target().String())

	require.NoError(t, sender.Close())
	require.NoError(t, sender.Close())
	require.ErrorIs(t, sender.Send([]byte{1}), errSenderClosed)
}

func TestNewSenderBadAddress(t *testing.T) {
	_, err := NewSender("not-an-address")
	require.Error(t, err)
}
