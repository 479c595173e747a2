//go:build !linux

package link

// Mcast is only available on linux.
type Mcast struct{}

func NewMcast(ifc string, groups []string, port int, capacity int) (*Mcast, error) {
	return nil, ErrUnsupported
}

func (m *Mcast) RecvPoll() ([]byte, int) { return nil, 0 }

func (m *Mcast) SetTap(int, Tap) {}

func (m *Mcast) RecvFlush(int) {}

func (m *Mcast) TsLastRecv() int64 { return 0 }

func (m *Mcast) Buffer() *RecvBuffer { return nil }

func (m *Mcast) Close() error { return ErrUnsupported }
