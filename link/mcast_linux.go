//go:build linux

package link

import (
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"

	"tradecore/constants"
	"tradecore/debug"
	"tradecore/utils"
)

// maxBatch bounds the datagrams read by one poll.
const maxBatch = 64

// Mcast receives UDP multicast datagrams on a non-blocking socket.
type Mcast struct {
	fd      int
	buf     *RecvBuffer
	scratch []byte
	ts      int64
	groups  []string

	tap       Tap
	partition int
}

// NewMcast joins groups on interface ifc and binds port. capacity sizes the
// receive buffer.
func NewMcast(ifc string, groups []string, port int, capacity int) (*Mcast, error) {
	if capacity < constants.MaxDatagram {
		return nil, fmt.Errorf("link: capacity %d below one datagram", capacity)
	}
	local, err := interfaceAddr(ifc)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_UDP)
	if err != nil {
		return nil, fmt.Errorf("link: socket: %w", err)
	}
	m := &Mcast{
		fd:      fd,
		buf:     NewRecvBuffer(capacity),
		scratch: make([]byte, constants.MaxDatagram),
		groups:  groups,
	}
	if err := m.setup(local, groups, port); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	return m, nil
}

func (m *Mcast) setup(local [4]byte, groups []string, port int) error {
	if err := unix.SetsockoptInt(m.fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("link: SO_REUSEADDR: %w", err)
	}
	if err := unix.SetsockoptInt(m.fd, unix.SOL_SOCKET, unix.SO_RCVBUF, constants.SocketRecvBuffer); err != nil {
		debug.DropError("mcast SO_RCVBUF", err)
	}
	if err := unix.Bind(m.fd, &unix.SockaddrInet4{Port: port}); err != nil {
		return fmt.Errorf("link: bind :%d: %w", port, err)
	}
	for _, g := range groups {
		ip := net.ParseIP(g).To4()
		if ip == nil || !ip.IsMulticast() {
			return fmt.Errorf("link: %q is not an IPv4 multicast group", g)
		}
		mreq := &unix.IPMreq{Interface: local}
		copy(mreq.Multiaddr[:], ip)
		if err := unix.SetsockoptIPMreq(m.fd, unix.IPPROTO_IP, unix.IP_ADD_MEMBERSHIP, mreq); err != nil {
			return fmt.Errorf("link: join %s: %w", g, err)
		}
	}
	return nil
}

// interfaceAddr resolves the first IPv4 address of ifc. An empty name means
// INADDR_ANY.
func interfaceAddr(ifc string) ([4]byte, error) {
	var out [4]byte
	if ifc == "" {
		return out, nil
	}
	it, err := net.InterfaceByName(ifc)
	if err != nil {
		return out, fmt.Errorf("link: interface %q: %w", ifc, err)
	}
	addrs, err := it.Addrs()
	if err != nil {
		return out, fmt.Errorf("link: interface %q addrs: %w", ifc, err)
	}
	for _, a := range addrs {
		if n, ok := a.(*net.IPNet); ok {
			if ip4 := n.IP.To4(); ip4 != nil {
				copy(out[:], ip4)
				return out, nil
			}
		}
	}
	return out, fmt.Errorf("link: interface %q has no IPv4 address", ifc)
}

// RecvPoll drains up to maxBatch pending datagrams into the buffer.
func (m *Mcast) RecvPoll() ([]byte, int) {
	for i := 0; i < maxBatch; i++ {
		tail := m.buf.Tail(constants.MaxDatagram)
		if tail == nil {
			// No room: read into scratch so the socket does not back up.
			if _, _, err := unix.Recvfrom(m.fd, m.scratch, unix.MSG_DONTWAIT); err != nil {
				break
			}
			m.buf.Drop()
			continue
		}
		n, _, err := unix.Recvfrom(m.fd, tail, unix.MSG_DONTWAIT)
		if err != nil {
			if err != unix.EAGAIN && err != unix.EINTR {
				debug.DropError("mcast recv", err)
			}
			break
		}
		m.buf.Commit(n)
		m.ts = time.Now().UnixNano()
		if m.tap != nil {
			m.tap.Tap(m.partition, m.ts, tail[:n])
		}
	}
	return m.buf.Window(), m.buf.Size()
}

// SetTap hands every accepted datagram to t under the given partition.
func (m *Mcast) SetTap(partition int, t Tap) {
	m.partition, m.tap = partition, t
}

func (m *Mcast) RecvFlush(n int) { m.buf.Flush(n) }

func (m *Mcast) TsLastRecv() int64 { return m.ts }

// Buffer exposes the receive buffer for statistics.
func (m *Mcast) Buffer() *RecvBuffer { return m.buf }

func (m *Mcast) Close() error {
	if m.fd < 0 {
		return ErrClosed
	}
	if d := m.buf.Dropped(); d > 0 {
		debug.DropMessage("mcast", "dropped "+utils.Utoa(d)+" datagrams on "+utils.Itoa(len(m.groups))+" groups")
	}
	err := unix.Close(m.fd)
	m.fd = -1
	return err
}
