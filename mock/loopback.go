package mock

import (
	"fmt"
	"time"

	"tradecore/link"
)

// Loopback delivers sends straight into in-memory replay links, one per
// partition, stamped with the server clock.
type Loopback struct {
	links []*link.Replay
	clock func() int64
}

// NewLoopback wires partitions to links. clock stamps TsLocal and defaults
// to the wall clock.
func NewLoopback(clock func() int64, links ...*link.Replay) *Loopback {
	if clock == nil {
		clock = func() int64 { return time.Now().UnixNano() }
	}
	return &Loopback{links: links, clock: clock}
}

func (l *Loopback) Send(partition int, payload []byte) error {
	if partition < 0 || partition >= len(l.links) {
		return fmt.Errorf("mock: no link for partition %d", partition)
	}
	p := make([]byte, len(payload))
	copy(p, payload)
	l.links[partition].Push(link.Datagram{TsLocal: l.clock(), Payload: p})
	return nil
}
