package mock

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"tradecore/capture"
	"tradecore/link"
)

type sent struct {
	at        int64
	partition int
	payload   string
}

type recordingSender struct {
	now  *int64
	log  []sent
	fail bool
}

func (r *recordingSender) Send(partition int, payload []byte) error {
	if r.fail {
		return errors.New("down")
	}
	r.log = append(r.log, sent{at: *r.now, partition: partition, payload: string(payload)})
	return nil
}

func openCapture(t *testing.T, recs []capture.Record) *capture.Store {
	t.Helper()
	s, err := capture.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	for _, r := range recs {
		_, err := s.Record(r.Partition, r.TsLocal, r.Payload)
		require.NoError(t, err)
	}
	return s
}

func rec(part int, ts int64, payload string) capture.Record {
	return capture.Record{Partition: part, Datagram: link.Datagram{TsLocal: ts, Payload: []byte(payload)}}
}

func TestReplayKeepsGaps(t *testing.T) {
	store := openCapture(t, []capture.Record{
		rec(0, 1_000, "a"),
		rec(1, 1_500, "b"),
		rec(0, 1_400, "c"), // out of order across partitions
		rec(0, 3_000, "d"),
	})
	now := int64(50_000)
	out := &recordingSender{now: &now}
	s := NewServer(store, out, Options{Batch: 2, Clock: func() int64 { return now }})
	require.NoError(t, s.Start())

	s.Step()
	require.Equal(t, []sent{{50_000, 0, "a"}}, out.log)
	require.Equal(t, Running, s.State())

	now += 499
	s.Step()
	require.Len(t, out.log, 1)

	now++
	s.Step()
	require.Len(t, out.log, 2)

	now++
	s.Step()
	require.Len(t, out.log, 3, "negative gap sends right behind its predecessor")
	require.Equal(t, "c", out.log[2].payload)

	now = 50_501 + 1_600
	s.Step()
	require.Len(t, out.log, 4)
	require.Equal(t, "d", out.log[3].payload)

	s.Step()
	require.Equal(t, Done, s.State())
	require.Equal(t, int64(4), s.Sent())
	require.NoError(t, s.Stop())
}

func TestBeginAndLimit(t *testing.T) {
	var recs []capture.Record
	for i := 0; i < 10; i++ {
		recs = append(recs, rec(0, int64(i+1), string(rune('a'+i))))
	}
	store := openCapture(t, recs)
	now := int64(0)
	out := &recordingSender{now: &now}
	s := NewServer(store, out, Options{Begin: 3, Limit: 4, Batch: 3, Clock: func() int64 { return now }})

	for i := 0; i < 20 && s.State() != Done; i++ {
		now += 10
		s.Step()
	}
	require.Equal(t, Done, s.State())
	var got string
	for _, e := range out.log {
		got += e.payload
	}
	require.Equal(t, "defg", got)
}

func TestRateLimit(t *testing.T) {
	var recs []capture.Record
	for i := 0; i < 10; i++ {
		recs = append(recs, rec(0, 1, "x"))
	}
	store := openCapture(t, recs)
	now := int64(1_000_000_000)
	out := &recordingSender{now: &now}
	s := NewServer(store, out, Options{Rate: 2, Clock: func() int64 { return now }})

	now += 1_000_000
	s.Step()
	require.Len(t, out.log, 1, "burst of one")

	now += 500_000_000
	s.Step()
	require.Len(t, out.log, 2)
}

func TestSendFailuresAreCounted(t *testing.T) {
	store := openCapture(t, []capture.Record{rec(0, 1, "a")})
	now := int64(0)
	out := &recordingSender{now: &now, fail: true}
	s := NewServer(store, out, Options{Clock: func() int64 { return now }})
	s.Step()
	s.Step()
	require.Equal(t, Done, s.State())
	require.Zero(t, s.Sent())
	require.Equal(t, int64(1), s.failed)
}

func TestLoopbackFeedsReplayLinks(t *testing.T) {
	a := link.NewReplay(64, nil)
	b := link.NewReplay(64, nil)
	lb := NewLoopback(func() int64 { return 42 }, a, b)

	require.NoError(t, lb.Send(1, []byte("hi")))
	require.Error(t, lb.Send(2, nil))

	w, n := b.RecvPoll()
	require.Equal(t, 2, n)
	require.Equal(t, "hi", string(w))
	require.Equal(t, int64(42), b.TsLastRecv())
	_, n = a.RecvPoll()
	require.Zero(t, n)
}
