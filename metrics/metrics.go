// ════════════════════════════════════════════════════════════════════════════════════════════════
// Runtime Metrics
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Project: Low-Latency Trading Runtime
// Component: Prometheus Collector Over Hot-Path Counters
//
// Description:
//   The hot path only bumps atomics it already owns. This collector reads them when Prometheus
//   scrapes, so nothing on a pinned goroutine ever touches a metric type or a lock. Labels are
//   bounded: feed name, partition index and consumer index.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package metrics

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradecore/debug"
	"tradecore/exec"
	"tradecore/feed"
	"tradecore/link"
	"tradecore/rcu"
	"tradecore/utils"
)

type consumerSource struct {
	feed  string
	index string
	c     *feed.Consumer
}

type bufferSource struct {
	feed      string
	partition string
	b         *link.RecvBuffer
}

// Collector implements prometheus.Collector.
type Collector struct {
	mu        sync.Mutex
	feeds     []*feed.Feed
	consumers []consumerSource
	buffers   []bufferSource
	domains   map[string]*rcu.Domain
	links     map[string]*exec.Link

	published, reclaimed, flushedBytes, poolInUse, poolHigh *prometheus.Desc
	consumedBytes, frames, overrun, polls                   *prometheus.Desc
	recvSize, recvDropped, recvMoves                        *prometheus.Desc
	epoch, readers, pending, fired                          *prometheus.Desc
	requests, sent, failed                                  *prometheus.Desc
}

// NewCollector builds an empty collector whose metric names start with
// namespace.
func NewCollector(namespace string) *Collector {
	d := func(sub, name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, sub, name), help, labels, nil)
	}
	return &Collector{
		domains: make(map[string]*rcu.Domain),
		links:   make(map[string]*exec.Link),

		published:    d("feed", "published_total", "Descriptors published.", "feed"),
		reclaimed:    d("feed", "reclaimed_total", "Descriptors reclaimed after a grace period.", "feed"),
		flushedBytes: d("feed", "flushed_bytes_total", "Bytes flushed from partition links.", "feed"),
		poolInUse:    d("feed", "descriptors_in_use", "Descriptors currently allocated.", "feed"),
		poolHigh:     d("feed", "descriptors_high_water", "Most descriptors ever allocated at once.", "feed"),

		consumedBytes: d("consumer", "bytes_total", "Bytes handed to the handler.", "feed", "consumer"),
		frames:        d("consumer", "frames_total", "Handler invocations.", "feed", "consumer"),
		overrun:       d("consumer", "overrun_total", "Bytes lost because the reader lagged a flush.", "feed", "consumer"),
		polls:         d("consumer", "polls_total", "Reader steps taken.", "feed", "consumer"),

		recvSize:    d("link", "window_bytes", "Unflushed bytes in the receive window.", "feed", "partition"),
		recvDropped: d("link", "dropped_total", "Datagrams dropped on a full receive buffer.", "feed", "partition"),
		recvMoves:   d("link", "moves_total", "Times the receive window was moved to a fresh buffer.", "feed", "partition"),

		epoch:   d("rcu", "epoch", "Current grace-period epoch.", "domain"),
		readers: d("rcu", "readers", "Registered readers.", "domain"),
		pending: d("rcu", "pending_callbacks", "Retirements waiting for a grace period.", "domain"),
		fired:   d("rcu", "fired_total", "Reclaim callbacks fired.", "domain"),

		requests: d("exec", "requests_total", "Requests dequeued from agents.", "link"),
		sent:     d("exec", "sent_total", "Requests handed to the sender.", "link"),
		failed:   d("exec", "failed_total", "Requests the sender rejected.", "link"),
	}
}

// AddFeed exposes the writer counters of f.
func (c *Collector) AddFeed(f *feed.Feed) {
	c.mu.Lock()
	c.feeds = append(c.feeds, f)
	c.mu.Unlock()
}

// AddConsumer exposes one reader of the named feed.
func (c *Collector) AddConsumer(feedName string, index int, cs *feed.Consumer) {
	c.mu.Lock()
	c.consumers = append(c.consumers, consumerSource{feedName, utils.Itoa(index), cs})
	c.mu.Unlock()
}

// AddBuffer exposes the receive buffer behind one partition.
func (c *Collector) AddBuffer(feedName string, partition int, b *link.RecvBuffer) {
	if b == nil {
		return
	}
	c.mu.Lock()
	c.buffers = append(c.buffers, bufferSource{feedName, utils.Itoa(partition), b})
	c.mu.Unlock()
}

// AddDomain exposes an rcu domain.
func (c *Collector) AddDomain(name string, d *rcu.Domain) {
	c.mu.Lock()
	c.domains[name] = d
	c.mu.Unlock()
}

// AddLink exposes an execution link.
func (c *Collector) AddLink(name string, l *exec.Link) {
	c.mu.Lock()
	c.links[name] = l
	c.mu.Unlock()
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.published, c.reclaimed, c.flushedBytes, c.poolInUse, c.poolHigh,
		c.consumedBytes, c.frames, c.overrun, c.polls,
		c.recvSize, c.recvDropped, c.recvMoves,
		c.epoch, c.readers, c.pending, c.fired,
		c.requests, c.sent, c.failed,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}

	for _, f := range c.feeds {
		s := f.Stats()
		counter(c.published, s.Published.Load(), f.Name())
		counter(c.reclaimed, s.Reclaimed.Load(), f.Name())
		counter(c.flushedBytes, s.FlushedBytes.Load(), f.Name())
		gauge(c.poolInUse, float64(s.PoolInUse.Load()), f.Name())
		gauge(c.poolHigh, float64(s.PoolHigh.Load()), f.Name())
	}
	for _, cs := range c.consumers {
		s := cs.c.Stats()
		counter(c.consumedBytes, s.Bytes.Load(), cs.feed, cs.index)
		counter(c.frames, s.Frames.Load(), cs.feed, cs.index)
		counter(c.overrun, s.Overrun.Load(), cs.feed, cs.index)
		counter(c.polls, s.Polls.Load(), cs.feed, cs.index)
	}
	for _, bs := range c.buffers {
		gauge(c.recvSize, float64(bs.b.Unflushed()), bs.feed, bs.partition)
		counter(c.recvDropped, bs.b.Dropped(), bs.feed, bs.partition)
		counter(c.recvMoves, bs.b.Moves(), bs.feed, bs.partition)
	}
	for name, d := range c.domains {
		gauge(c.epoch, float64(d.Epoch()), name)
		gauge(c.readers, float64(d.Readers()), name)
		gauge(c.pending, float64(d.Pending()), name)
		counter(c.fired, d.Fired(), name)
	}
	for name, l := range c.links {
		s := l.Stats()
		counter(c.requests, s.Requests.Load(), name)
		counter(c.sent, s.Sent.Load(), name)
		counter(c.failed, s.Failed.Load(), name)
	}
}

// Server exposes a registry on /metrics.
type Server struct {
	srv *http.Server
}

// Serve registers c on a fresh registry and starts listening on addr in
// the background. An empty addr disables the endpoint.
func Serve(addr string, c *Collector) (*Server, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	if addr == "" {
		return &Server{}, nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	s := &Server{srv: &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}}
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			debug.DropError("metrics "+addr, err)
		}
	}()
	debug.DropMessage("metrics", "serving on "+addr)
	return s, nil
}

func (s *Server) Start() error { return nil }

// Stop closes the listener.
func (s *Server) Stop() error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Close()
}
