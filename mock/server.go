// ════════════════════════════════════════════════════════════════════════════════════════════════
// Mock Multicast Server
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Project: Low-Latency Trading Runtime
// Component: Capture Replay At Original Pacing
//
// Description:
//   Reads captured datagrams in batches and schedules each one at the capture's inter-arrival
//   gap after its predecessor, starting from the wall clock at the first datagram. Non-positive
//   gaps (packets captured out of order across partitions) become one nanosecond. Every step sends the
//   datagrams that have come due, optionally capped by a token bucket.
//
// States:
//   running → draining (source exhausted) → done (queue empty)
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package mock

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"tradecore/capture"
	"tradecore/constants"
	"tradecore/debug"
	"tradecore/treapq"
)

// Sender emits one datagram on a partition.
type Sender interface {
	Send(partition int, payload []byte) error
}

// Source yields captured records after a sequence number.
type Source interface {
	Scan(after int64, limit int) ([]capture.Record, error)
}

// State of the replay.
type State int32

const (
	Running State = iota
	Draining
	Done
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Draining:
		return "draining"
	default:
		return "done"
	}
}

// Options tune a server. Zero values pick defaults.
type Options struct {
	// Begin skips datagrams with seq <= Begin.
	Begin int64
	// Limit stops after this many datagrams; zero means all.
	Limit int64
	// Batch is the number of records read per refill.
	Batch int
	// Rate caps sends per second; zero means unpaced beyond the capture.
	Rate float64
	// Clock returns nanoseconds; defaults to the wall clock.
	Clock func() int64
}

type event struct {
	partition int
	payload   []byte
}

// Server replays a capture through a Sender. Single goroutine.
type Server struct {
	src     Source
	out     Sender
	opts    Options
	limiter *rate.Limiter
	queue   *treapq.TimerQueue[event]

	state    State
	primed   bool
	lastSeq  int64
	prevTs   int64
	mockTs   int64
	enqueued int64
	sent     int64
	failed   int64
}

// NewServer creates a server replaying src into out.
func NewServer(src Source, out Sender, opts Options) *Server {
	if opts.Batch <= 0 {
		opts.Batch = 256
	}
	if opts.Clock == nil {
		opts.Clock = func() int64 { return time.Now().UnixNano() }
	}
	s := &Server{
		src:     src,
		out:     out,
		opts:    opts,
		queue:   treapq.NewTimerQueue[event](constants.TimerQueueCapacity, 0),
		lastSeq: opts.Begin,
	}
	if opts.Rate > 0 {
		burst := int(opts.Rate / 100)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.Rate), burst)
	}
	return s
}

func (s *Server) Start() error {
	debug.DropMessage("mock", fmt.Sprintf("replaying from seq %d, limit %d", s.opts.Begin, s.opts.Limit))
	return nil
}

func (s *Server) Stop() error {
	debug.DropMessage("mock", fmt.Sprintf("enqueued %d, sent %d, failed %d", s.enqueued, s.sent, s.failed))
	return nil
}

// State reports the replay state.
func (s *Server) State() State { return s.state }

// Sent is the number of datagrams handed to the sender.
func (s *Server) Sent() int64 { return s.sent }

// Step refills the schedule when it runs low and sends what is due.
func (s *Server) Step() {
	if s.state == Running && s.queue.Len() < s.opts.Batch {
		s.refill()
	}

	now := s.opts.Clock()
	for s.queue.Due(now) {
		if s.limiter != nil && !s.limiter.AllowN(time.Unix(0, now), 1) {
			break
		}
		_, ev, _ := s.queue.Pop()
		if err := s.out.Send(ev.partition, ev.payload); err != nil {
			s.failed++
			debug.DropError("mock send", err)
			continue
		}
		s.sent++
	}

	if s.state == Draining && s.queue.Empty() {
		s.state = Done
	}
}

func (s *Server) refill() {
	limit := s.opts.Batch
	if s.opts.Limit > 0 {
		if left := s.opts.Limit - s.enqueued; left < int64(limit) {
			limit = int(left)
		}
		if limit <= 0 {
			s.state = Draining
			return
		}
	}
	recs, err := s.src.Scan(s.lastSeq, limit)
	if err != nil {
		debug.DropError("mock source", err)
		s.state = Draining
		return
	}
	if len(recs) == 0 {
		s.state = Draining
		return
	}
	for i := range recs {
		r := &recs[i]
		if !s.primed {
			s.mockTs = s.opts.Clock()
			s.primed = true
		} else if gap := r.TsLocal - s.prevTs; gap > 0 {
			s.mockTs += gap
		} else {
			// Equal keys leave the queue in arbitrary order; keep capture
			// order by spacing them one nanosecond apart.
			s.mockTs++
		}
		s.prevTs = r.TsLocal
		s.queue.Schedule(s.mockTs, event{partition: r.Partition, payload: r.Payload})
		s.lastSeq = r.Seq
		s.enqueued++
	}
}
