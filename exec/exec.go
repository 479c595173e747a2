// ════════════════════════════════════════════════════════════════════════════════════════════════
// Execution Link Request Queues
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Project: Low-Latency Trading Runtime
// Component: Agent → Link Order Request Fan-In
//
// Description:
//   Each trading agent connects once and gets its own SPSC request ring. The link goroutine
//   polls every connected ring once per step, in connect order, and hands at most one request
//   per agent to the Sender. Login requests are a barrier: the link emits a single login once
//   every connected agent has asked for one.
//
// Threads:
//   Connect may be called concurrently from agent goroutines. Step runs on the link goroutine.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package exec

import (
	"errors"
	"sync/atomic"

	"tradecore/constants"
	"tradecore/debug"
	"tradecore/spsc"
	"tradecore/utils"
)

// Kind of order request.
type Kind uint8

const (
	Submit Kind = iota + 1
	Replace
	Cancel
	Login
)

func (k Kind) String() string {
	switch k {
	case Submit:
		return "submit"
	case Replace:
		return "replace"
	case Cancel:
		return "cancel"
	case Login:
		return "login"
	default:
		return "kind(" + utils.Itoa(int(k)) + ")"
	}
}

// Side of an order.
type Side uint8

const (
	Buy Side = iota + 1
	Sell
)

// Request is one order instruction. It lives in a ring slot, so it stays
// pointer-free and within a cache line.
type Request struct {
	Agent   int32
	Kind    Kind
	Side    Side
	_       [2]byte
	Liid    int32 // instrument
	Qty     int32
	Price   int64
	ClOrdID uint64
	Ts      int64
}

// Sender emits translated requests to the venue.
type Sender interface {
	Send(r *Request) error
}

var (
	// ErrTooManyConnects is returned once every configured queue is taken.
	ErrTooManyConnects = errors.New("exec: too many connect attempts")
	// ErrNoAgents is returned when a link is built for zero agents.
	ErrNoAgents = errors.New("exec: no agents")
	// ErrTooManyAgents is returned when more agents are asked for than a link serves.
	ErrTooManyAgents = errors.New("exec: too many agents")
)

// Connection is what an agent receives from Connect.
type Connection struct {
	ID     int32
	Prefix uint32 // order token prefix, unique per connection
	Queue  *spsc.Ring[Request]
}

// Stats are link counters, safe to read from any goroutine.
type Stats struct {
	Requests atomic.Uint64
	Sent     atomic.Uint64
	Failed   atomic.Uint64
	Logins   atomic.Uint64
}

// Link fans agent requests into one Sender.
type Link struct {
	queues    []*spsc.Ring[Request]
	connected atomic.Int32
	logins    int32
	out       Sender
	stats     Stats
}

// New builds a link for up to agents connections, each with a ring of
// capacity requests. A zero capacity picks the default.
func New(agents, capacity int, out Sender) (*Link, error) {
	if agents <= 0 {
		return nil, ErrNoAgents
	}
	if agents > constants.MaxAgents {
		return nil, ErrTooManyAgents
	}
	if capacity == 0 {
		capacity = constants.RequestQueueCapacity
	}
	if out == nil {
		panic("exec: nil sender")
	}
	l := &Link{queues: make([]*spsc.Ring[Request], agents), out: out}
	for i := range l.queues {
		l.queues[i] = spsc.New[Request](capacity)
	}
	return l, nil
}

// Connect hands out the next free request queue.
func (l *Link) Connect() (Connection, error) {
	for {
		n := l.connected.Load()
		if int(n) >= len(l.queues) {
			return Connection{}, ErrTooManyConnects
		}
		if l.connected.CompareAndSwap(n, n+1) {
			return Connection{ID: n, Prefix: 0xA + uint32(n), Queue: l.queues[n]}, nil
		}
	}
}

// Connected is the number of agents that have connected so far.
func (l *Link) Connected() int { return int(l.connected.Load()) }

// Stats exposes the link counters.
func (l *Link) Stats() *Stats { return &l.stats }

func (l *Link) Start() error { return nil }

func (l *Link) Stop() error {
	debug.DropMessage("exec", "requests "+utils.Utoa(l.stats.Requests.Load())+
		", sent "+utils.Utoa(l.stats.Sent.Load())+", failed "+utils.Utoa(l.stats.Failed.Load()))
	return nil
}

// Step polls each connected queue once and returns how many requests it
// took.
func (l *Link) Step() int {
	n := int(l.connected.Load())
	took := 0
	for i := 0; i < n; i++ {
		d := l.queues[i].TryDequeue()
		if !d.Ok() {
			continue
		}
		req := *d.Value()
		d.Release()
		took++
		l.stats.Requests.Add(1)

		if req.Kind == Login {
			l.logins++
			if l.logins != int32(n) {
				continue
			}
			l.stats.Logins.Add(1)
			req.Agent = -1
		}
		if err := l.out.Send(&req); err != nil {
			l.stats.Failed.Add(1)
			debug.DropError("exec "+req.Kind.String(), err)
			continue
		}
		l.stats.Sent.Add(1)
	}
	return took
}
