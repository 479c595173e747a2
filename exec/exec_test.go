package exec

import (
	"errors"
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

type capture struct {
	got  []Request
	fail bool
}

func (c *capture) Send(r *Request) error {
	if c.fail {
		return errors.New("link down")
	}
	c.got = append(c.got, *r)
	return nil
}

func submit(c Connection, id uint64) bool {
	return c.Queue.Produce(func(r *Request) bool {
		*r = Request{Agent: c.ID, Kind: Submit, Side: Buy, Qty: 1, ClOrdID: id}
		return true
	})
}

func TestRequestFitsALine(t *testing.T) {
	require.LessOrEqual(t, unsafe.Sizeof(Request{}), uintptr(64))
}

func TestConnectCap(t *testing.T) {
	_, err := New(0, 8, &capture{})
	require.ErrorIs(t, err, ErrNoAgents)

	_, err = New(17, 8, &capture{})
	require.ErrorIs(t, err, ErrTooManyAgents)

	l, err := New(3, 0, &capture{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	ids := make(chan int32, 8)
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := l.Connect()
			if err != nil {
				errs <- err
				return
			}
			ids <- c.ID
		}()
	}
	wg.Wait()
	close(ids)
	close(errs)

	seen := map[int32]bool{}
	for id := range ids {
		require.False(t, seen[id])
		seen[id] = true
	}
	require.Len(t, seen, 3)
	require.Equal(t, 5, len(errs))
	for err := range errs {
		require.ErrorIs(t, err, ErrTooManyConnects)
	}
	require.Equal(t, 3, l.Connected())
}

func TestStepOnePerAgentRoundRobin(t *testing.T) {
	out := &capture{}
	l, err := New(2, 8, out)
	require.NoError(t, err)
	a, _ := l.Connect()
	b, _ := l.Connect()
	require.NotEqual(t, a.Prefix, b.Prefix)

	for i := uint64(0); i < 3; i++ {
		require.True(t, submit(a, 100+i))
	}
	require.True(t, submit(b, 200))

	require.Equal(t, 2, l.Step())
	require.Equal(t, 1, l.Step())
	require.Equal(t, 1, l.Step())
	require.Equal(t, 0, l.Step())

	order := make([]uint64, 0, len(out.got))
	for _, r := range out.got {
		order = append(order, r.ClOrdID)
	}
	require.Equal(t, []uint64{100, 200, 101, 102}, order)
	require.EqualValues(t, 4, l.Stats().Sent.Load())
}

func TestLoginWaitsForEveryAgent(t *testing.T) {
	out := &capture{}
	l, err := New(3, 4, out)
	require.NoError(t, err)
	conns := make([]Connection, 3)
	for i := range conns {
		conns[i], err = l.Connect()
		require.NoError(t, err)
	}

	login := func(c Connection) {
		require.True(t, c.Queue.Produce(func(r *Request) bool {
			*r = Request{Agent: c.ID, Kind: Login}
			return true
		}))
	}
	login(conns[0])
	login(conns[2])
	l.Step()
	require.Empty(t, out.got)

	login(conns[1])
	l.Step()
	require.Len(t, out.got, 1)
	require.Equal(t, Login, out.got[0].Kind)
	require.EqualValues(t, -1, out.got[0].Agent)
	require.EqualValues(t, 1, l.Stats().Logins.Load())
}

func TestSendFailureIsCounted(t *testing.T) {
	out := &capture{fail: true}
	l, err := New(1, 4, out)
	require.NoError(t, err)
	c, _ := l.Connect()
	require.True(t, submit(c, 1))
	require.Equal(t, 1, l.Step())
	require.EqualValues(t, 1, l.Stats().Failed.Load())
	require.EqualValues(t, 0, l.Stats().Sent.Load())
	require.Equal(t, 0, c.Queue.Size())
}

func TestAgentsOnOwnGoroutines(t *testing.T) {
	const agents, per = 4, 5000
	out := &capture{}
	l, err := New(agents, 16, out)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < agents; i++ {
		c, err := l.Connect()
		require.NoError(t, err)
		wg.Add(1)
		go func(c Connection) {
			defer wg.Done()
			for k := uint64(0); k < per; {
				if submit(c, k) {
					k++
				}
			}
		}(c)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	total := 0
	for total < agents*per {
		total += l.Step()
	}
	<-done

	next := make([]uint64, agents)
	for _, r := range out.got {
		require.Equal(t, next[r.Agent], r.ClOrdID)
		next[r.Agent]++
	}
}
