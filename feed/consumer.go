package feed

import (
	"sync/atomic"

	"tradecore/rcu"
)

// Handler consumes bytes from the front of data and returns how many it
// took. It must take at least one byte when len(data) >= the consumer's
// minimum frame.
type Handler func(partition int, data []byte, tsLocal int64) int

// ConsumerStats are reader-side counters, safe to read from any goroutine.
type ConsumerStats struct {
	Bytes   atomic.Uint64
	Frames  atomic.Uint64
	Overrun atomic.Uint64
	Polls   atomic.Uint64
}

// Consumer is an RCU reader draining every partition of a feed. One
// goroutine per consumer.
type Consumer struct {
	feed     *Feed
	reader   *rcu.Reader
	handler  Handler
	minFrame int

	local  []int64
	lastTs []int64

	stopped bool
	stats   ConsumerStats
}

// NewConsumer registers a reader on d for f. minFrame is the smallest chunk
// the handler accepts.
func NewConsumer(f *Feed, d *rcu.Domain, minFrame int, h Handler) *Consumer {
	if minFrame < 1 {
		panic("feed: min frame must be >= 1")
	}
	if h == nil {
		panic("feed: nil handler")
	}
	return &Consumer{
		feed:     f,
		reader:   d.Register(),
		handler:  h,
		minFrame: minFrame,
		local:    make([]int64, f.Width()),
		lastTs:   make([]int64, f.Width()),
	}
}

// Stats exposes the reader counters.
func (c *Consumer) Stats() *ConsumerStats { return &c.stats }

// Position is how far partition i has been consumed.
func (c *Consumer) Position(i int) int64 { return c.local[i] }

func (c *Consumer) Start() error { return nil }

// Stop leaves grace-period accounting for good.
func (c *Consumer) Stop() error {
	if c.stopped {
		return nil
	}
	c.stopped = true
	c.reader.Unregister()
	return nil
}

// Step takes one snapshot and drains everything it makes available.
func (c *Consumer) Step() {
	c.reader.Lock()
	snap := c.feed.Poll()
	for i := range snap.Positions {
		c.drain(i, &snap.Positions[i])
	}
	c.reader.Unlock()
	c.reader.Quiescent()
	c.stats.Polls.Add(1)
}

func (c *Consumer) drain(i int, p *RecvPosition) {
	if p.Pos < c.local[i] {
		panic("feed: published position went backwards")
	}
	if p.TsLocal < c.lastTs[i] {
		panic("feed: published timestamp went backwards")
	}
	c.lastTs[i] = p.TsLocal
	if p.Pos == c.local[i] {
		return
	}

	data, lost := p.Bytes(c.local[i])
	if lost > 0 {
		c.stats.Overrun.Add(uint64(lost))
		c.local[i] += lost
	}

	available := len(data)
	for available >= c.minFrame {
		n := c.handler(i, data[len(data)-available:], p.TsLocal)
		if n <= 0 || n > available {
			panic("feed: handler consumed an invalid byte count")
		}
		available -= n
		c.local[i] += int64(n)
		c.stats.Frames.Add(1)
	}
	if available != 0 {
		panic("feed: reader left a residual inside its critical section")
	}
	c.stats.Bytes.Add(uint64(len(data)))
}
