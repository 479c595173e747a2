//go:build linux

package mock

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// UDPSender sends partition i to groups[i] on one non-blocking socket.
type UDPSender struct {
	fd    int
	addrs []unix.SockaddrInet4
}

// NewUDPSender opens a multicast sender bound to the interface address of
// ifc (empty for the default route).
func NewUDPSender(ifc string, groups []string, port int, ttl int) (*UDPSender, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_UDP)
	if err != nil {
		return nil, fmt.Errorf("mock: socket: %w", err)
	}
	s := &UDPSender{fd: fd}
	if err := s.setup(ifc, groups, port, ttl); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return s, nil
}

func (s *UDPSender) setup(ifc string, groups []string, port int, ttl int) error {
	if err := unix.SetsockoptInt(s.fd, unix.IPPROTO_IP, unix.IP_MULTICAST_TTL, ttl); err != nil {
		return fmt.Errorf("mock: IP_MULTICAST_TTL: %w", err)
	}
	if err := unix.SetsockoptInt(s.fd, unix.IPPROTO_IP, unix.IP_MULTICAST_LOOP, 1); err != nil {
		return fmt.Errorf("mock: IP_MULTICAST_LOOP: %w", err)
	}
	if ifc != "" {
		it, err := net.InterfaceByName(ifc)
		if err != nil {
			return fmt.Errorf("mock: interface %q: %w", ifc, err)
		}
		mreqn := &unix.IPMreqn{Ifindex: int32(it.Index)}
		if err := unix.SetsockoptIPMreqn(s.fd, unix.IPPROTO_IP, unix.IP_MULTICAST_IF, mreqn); err != nil {
			return fmt.Errorf("mock: IP_MULTICAST_IF: %w", err)
		}
	}
	for _, g := range groups {
		ip := net.ParseIP(g).To4()
		if ip == nil {
			return fmt.Errorf("mock: %q is not an IPv4 group", g)
		}
		sa := unix.SockaddrInet4{Port: port}
		copy(sa.Addr[:], ip)
		s.addrs = append(s.addrs, sa)
	}
	return nil
}

func (s *UDPSender) Send(partition int, payload []byte) error {
	if partition < 0 || partition >= len(s.addrs) {
		return fmt.Errorf("mock: no group for partition %d", partition)
	}
	return unix.Sendto(s.fd, payload, unix.MSG_DONTWAIT, &s.addrs[partition])
}

func (s *UDPSender) Close() error { return unix.Close(s.fd) }
