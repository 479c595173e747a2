package exec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
)

// WireSize is the encoded length of a Request.
const WireSize = 40

// ErrShortRequest is returned by Decode for a truncated datagram.
var ErrShortRequest = errors.New("exec: short request")

// Encode writes r into b, which must hold WireSize bytes. All fields are
// little-endian in declaration order.
func Encode(b []byte, r *Request) {
	_ = b[WireSize-1]
	binary.LittleEndian.PutUint32(b[0:], uint32(r.Agent))
	b[4] = byte(r.Kind)
	b[5] = byte(r.Side)
	b[6], b[7] = 0, 0
	binary.LittleEndian.PutUint32(b[8:], uint32(r.Liid))
	binary.LittleEndian.PutUint32(b[12:], uint32(r.Qty))
	binary.LittleEndian.PutUint64(b[16:], uint64(r.Price))
	binary.LittleEndian.PutUint64(b[24:], r.ClOrdID)
	binary.LittleEndian.PutUint64(b[32:], uint64(r.Ts))
}

// Decode is the inverse of Encode.
func Decode(b []byte, r *Request) error {
	if len(b) < WireSize {
		return ErrShortRequest
	}
	*r = Request{
		Agent:   int32(binary.LittleEndian.Uint32(b[0:])),
		Kind:    Kind(b[4]),
		Side:    Side(b[5]),
		Liid:    int32(binary.LittleEndian.Uint32(b[8:])),
		Qty:     int32(binary.LittleEndian.Uint32(b[12:])),
		Price:   int64(binary.LittleEndian.Uint64(b[16:])),
		ClOrdID: binary.LittleEndian.Uint64(b[24:]),
		Ts:      int64(binary.LittleEndian.Uint64(b[32:])),
	}
	return nil
}

// UDPSender writes one datagram per request to a fixed venue address.
// It is owned by the link goroutine.
type UDPSender struct {
	conn *net.UDPConn
	buf  [WireSize]byte
}

// NewUDPSender connects to addr ("host:port").
func NewUDPSender(addr string) (*UDPSender, error) {
	ua, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("exec: venue %q: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, ua)
	if err != nil {
		return nil, fmt.Errorf("exec: dial %q: %w", addr, err)
	}
	return &UDPSender{conn: conn}, nil
}

func (s *UDPSender) Send(r *Request) error {
	Encode(s.buf[:], r)
	_, err := s.conn.Write(s.buf[:])
	return err
}

func (s *UDPSender) Close() error { return s.conn.Close() }
