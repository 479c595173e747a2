//go:build !linux

package mock

import "errors"

// UDPSender is only available on linux.
type UDPSender struct{}

func NewUDPSender(ifc string, groups []string, port int, ttl int) (*UDPSender, error) {
	return nil, errors.New("mock: udp sender unsupported on this platform")
}

func (s *UDPSender) Send(int, []byte) error { return errors.New("mock: unsupported") }

func (s *UDPSender) Close() error { return nil }
