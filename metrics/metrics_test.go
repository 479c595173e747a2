package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"tradecore/exec"
	"tradecore/feed"
	"tradecore/link"
	"tradecore/rcu"
)

type nopSender struct{}

func (nopSender) Send(*exec.Request) error { return nil }

func TestCollectorReadsCounters(t *testing.T) {
	d := rcu.NewDomain()
	replay := link.NewReplay(1024, []link.Datagram{
		{TsLocal: 10, Payload: []byte("abc")},
		{TsLocal: 20, Payload: []byte("defg")},
	})
	f, err := feed.New("md", d, []link.Link{replay}, 8)
	require.NoError(t, err)
	cs := feed.NewConsumer(f, d, 1, func(_ int, data []byte, _ int64) int { return len(data) })

	xl, err := exec.New(1, 4, nopSender{})
	require.NoError(t, err)
	conn, err := xl.Connect()
	require.NoError(t, err)
	require.True(t, conn.Queue.Produce(func(r *exec.Request) bool {
		*r = exec.Request{Kind: exec.Submit, Qty: 1}
		return true
	}))
	xl.Step()

	f.Step()
	f.Step()
	cs.Step()

	c := NewCollector("tc")
	c.AddFeed(f)
	c.AddConsumer(f.Name(), 0, cs)
	c.AddBuffer(f.Name(), 0, replay.Buffer())
	c.AddDomain("md", d)
	c.AddLink("xl", xl)

	require.Equal(t, 19, testutil.CollectAndCount(c))

	expected := `
# HELP tc_feed_published_total Descriptors published.
# TYPE tc_feed_published_total counter
tc_feed_published_total{feed="md"} 2
# HELP tc_consumer_bytes_total Bytes handed to the handler.
# TYPE tc_consumer_bytes_total counter
tc_consumer_bytes_total{consumer="0",feed="md"} 7
# HELP tc_link_window_bytes Unflushed bytes in the receive window.
# TYPE tc_link_window_bytes gauge
tc_link_window_bytes{feed="md",partition="0"} 7
# HELP tc_exec_sent_total Requests handed to the sender.
# TYPE tc_exec_sent_total counter
tc_exec_sent_total{link="xl"} 1
# HELP tc_rcu_readers Registered readers.
# TYPE tc_rcu_readers gauge
tc_rcu_readers{domain="md"} 1
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"tc_feed_published_total", "tc_consumer_bytes_total", "tc_link_window_bytes",
		"tc_exec_sent_total", "tc_rcu_readers"))
}

func TestCollectorIsLintClean(t *testing.T) {
	problems, err := testutil.CollectAndLint(NewCollector("tc"))
	require.NoError(t, err)
	require.Empty(t, problems)
}

func TestServeWithoutAddress(t *testing.T) {
	s, err := Serve("", NewCollector("tc"))
	require.NoError(t, err)
	require.NoError(t, s.Start())
	require.NoError(t, s.Stop())
}
