package exec

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEncodeLayout(t *testing.T) {
	r := Request{Agent: -1, Kind: Replace, Side: Sell, Liid: 7, Qty: 300, Price: -5, ClOrdID: 1 << 40, Ts: 99}
	var b [WireSize]byte
	Encode(b[:], &r)
	require.Equal(t, []byte{0xff, 0xff, 0xff, 0xff, byte(Replace), byte(Sell), 0, 0}, b[:8])

	var got Request
	require.NoError(t, Decode(b[:], &got))
	require.Equal(t, r, got)
	require.ErrorIs(t, Decode(b[:WireSize-1], &got), ErrShortRequest)
}

func TestUDPSenderDeliversThroughLink(t *testing.T) {
	venue, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer venue.Close()

	out, err := NewUDPSender(venue.LocalAddr().String())
	require.NoError(t, err)
	defer out.Close()

	l, err := New(1, 4, out)
	require.NoError(t, err)
	c, err := l.Connect()
	require.NoError(t, err)
	require.True(t, submit(c, 42))
	require.Equal(t, 1, l.Step())
	require.EqualValues(t, 1, l.Stats().Sent.Load())

	require.NoError(t, venue.SetReadDeadline(time.Now().Add(5*time.Second)))
	buf := make([]byte, 128)
	n, _, err := venue.ReadFrom(buf)
	require.NoError(t, err)
	require.Equal(t, WireSize, n)

	var got Request
	require.NoError(t, Decode(buf[:n], &got))
	require.Equal(t, uint64(42), got.ClOrdID)
	require.Equal(t, c.ID, got.Agent)
	require.Equal(t, Submit, got.Kind)
}

func TestUDPSenderRejectsBadAddress(t *testing.T) {
	_, err := NewUDPSender("no-port")
	require.Error(t, err)
}
