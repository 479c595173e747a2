// ════════════════════════════════════════════════════════════════════════════════════════════════
// Trading Runtime - Main Entry Point
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Project: Low-Latency Trading Runtime
// Component: Composition & Lifecycle
//
// Description:
//   Builds the market data path from a JSON configuration and drives every component on its own
//   pinned goroutine until SIGINT/SIGTERM.
//
// Modes:
//   - live:   multicast partitions → feed → consumers
//   - record: live, plus every received datagram is taped to a capture store off the feed path
//   - sim:    capture store → mock server → in-memory partitions → feed → consumers
//   - mock:   capture store → mock server → multicast on the wire
//
// Threads:
//   One pinned loop per feed writer, per consumer and for the rcu callback side. In sim mode the
//   mock server shares the writer's loop because replay links are single-threaded. In record
//   mode the tape drains on its own loop so the store never runs inside a read-side section.
//   An /exec scope adds the execution link and its loop.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"tradecore/capture"
	"tradecore/config"
	"tradecore/constants"
	"tradecore/control"
	"tradecore/debug"
	"tradecore/exec"
	"tradecore/feed"
	"tradecore/link"
	"tradecore/metrics"
	"tradecore/mock"
	"tradecore/pinned"
	"tradecore/rcu"
	"tradecore/utils"
)

// closer adapts a resource that only needs closing to control.Startable.
type closer func() error

func (c closer) Start() error { return nil }
func (c closer) Stop() error  { return c() }

// loops adapts a pinned group to control.Startable. Loops are launched on
// Start so that every other component is up first.
type loops struct {
	group  pinned.Group
	launch []func()
}

func (l *loops) add(core int, step control.Steppable, activity *control.Activity) {
	l.launch = append(l.launch, func() { l.group.Go(core, step, activity) })
}

func (l *loops) Start() error {
	for _, f := range l.launch {
		f()
	}
	return nil
}

func (l *loops) Stop() error {
	l.group.Stop()
	return nil
}

// core returns the i-th configured core, or -1 for an unpinned loop.
func core(cores []string, i int) int {
	if i >= len(cores) {
		return -1
	}
	c, err := strconv.Atoi(cores[i])
	if err != nil {
		return -1
	}
	return c
}

// system holds everything build assembles.
type system struct {
	life      control.Lifecycle
	loops     *loops
	collector *metrics.Collector
	feed      *feed.Feed
	consumers []*feed.Consumer
	exec      *exec.Link
}

func build(cfg *config.Settings) (*system, error) {
	rt := &system{loops: &loops{}}
	top := cfg.Scope("/runtime")
	rt.collector = metrics.NewCollector(top.String("namespace", "tradecore"))

	srv, err := metrics.Serve(top.String("metrics", ""), rt.collector)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	rt.life.Add("metrics", srv)

	cores := top.Strings("cores")
	next := 0
	nextCore := func() int { c := core(cores, next); next++; return c }

	activity := control.NewActivity(time.Duration(constants.HotWindowNs))
	domain := rcu.NewDomain()
	rt.collector.AddDomain("md", domain)

	mode := cfg.String("mode", "live")
	fc := cfg.Scope("/feed")
	capacity := fc.Int("capacity", constants.RecvCapacity)

	var (
		links  []link.Link
		writer control.StepFunc
		store  *capture.Store
	)
	if mode == "sim" || mode == "mock" || mode == "record" {
		store, err = capture.Open(cfg.Scope("/capture").MustString("path"))
		if err != nil {
			return nil, err
		}
		rt.life.Add("capture", closer(store.Close))
	}

	if cfg.Has("exec") {
		ec := cfg.Scope("/exec")
		out, err := exec.NewUDPSender(ec.MustString("venue"))
		if err != nil {
			return nil, err
		}
		rt.life.Add("venue", closer(out.Close))
		xl, err := exec.New(ec.Int("agents", 1), ec.Int("capacity", 0), out)
		if err != nil {
			return nil, err
		}
		rt.exec = xl
		rt.life.Add("exec", xl)
		rt.collector.AddLink("exec", xl)
		rt.loops.add(nextCore(), control.StepFunc(func() { xl.Step() }), activity)
	}

	switch mode {
	case "live", "record":
		groups := fc.Strings("groups")
		if len(groups) == 0 {
			return nil, errors.New("feed: no multicast groups configured")
		}
		var tape *capture.Tape
		if mode == "record" {
			tape = capture.NewTape(store, cfg.Scope("/capture").Int("tape", constants.TapeCapacity), constants.MaxDatagram)
			rt.life.Add("tape", tape)
			rt.loops.add(nextCore(), control.StepFunc(func() { tape.Step() }), activity)
		}
		for i, g := range groups {
			m, err := link.NewMcast(fc.String("ifc", ""), []string{g}, fc.MustInt("port"), capacity)
			if err != nil {
				return nil, fmt.Errorf("feed: partition %d: %w", i, err)
			}
			if tape != nil {
				m.SetTap(i, tape)
			}
			links = append(links, m)
			rt.collector.AddBuffer(fc.String("name", "md"), i, m.Buffer())
		}

	case "sim":
		parts, err := store.Partitions()
		if err != nil {
			return nil, err
		}
		if len(parts) == 0 {
			return nil, errors.New("sim: empty capture")
		}
		replays := make([]*link.Replay, parts[len(parts)-1]+1)
		for i := range replays {
			replays[i] = link.NewReplay(capacity, nil)
			links = append(links, replays[i])
			rt.collector.AddBuffer(fc.String("name", "md"), i, replays[i].Buffer())
		}
		server := mock.NewServer(store, mock.NewLoopback(nil, replays...), mockOptions(cfg.Scope("/mock")))
		rt.life.Add("mock", server)
		writer = func() { server.Step() }

	case "mock":
		mc := cfg.Scope("/mock")
		out, err := mock.NewUDPSender(mc.String("ifc", ""), mc.Strings("groups"), mc.MustInt("port"), mc.Int("ttl", 1))
		if err != nil {
			return nil, err
		}
		server := mock.NewServer(store, out, mockOptions(mc))
		rt.life.Add("udp", closer(out.Close))
		rt.life.Add("mock", server)
		rt.loops.add(nextCore(), server, activity)
		rt.life.Add("loops", rt.loops)
		return rt, nil

	default:
		return nil, fmt.Errorf("unknown mode %q", mode)
	}

	f, err := feed.New(fc.String("name", "md"), domain, links, fc.Int("pool", constants.DescriptorPoolCapacity))
	if err != nil {
		return nil, err
	}
	rt.feed = f
	rt.life.Add("feed", f)
	rt.collector.AddFeed(f)

	stats := f.Stats()
	var seen uint64
	rt.loops.add(nextCore(), control.StepFunc(func() {
		if writer != nil {
			writer()
		}
		f.Step()
		if p := stats.Published.Load(); p != seen {
			seen = p
			activity.Signal()
		}
	}), activity)

	consumers := fc.Int("consumers", 1)
	for i := 0; i < consumers; i++ {
		c := feed.NewConsumer(f, domain, fc.Int("min_frame", constants.MinFrameSize), countingHandler)
		rt.consumers = append(rt.consumers, c)
		rt.life.Add("consumer "+utils.Itoa(i), c)
		rt.collector.AddConsumer(f.Name(), i, c)
		rt.loops.add(nextCore(), c, activity)
	}

	rt.loops.add(nextCore(), control.StepFunc(func() { domain.Step() }), activity)
	rt.life.Add("loops", rt.loops)
	return rt, nil
}

func mockOptions(s *config.Settings) mock.Options {
	return mock.Options{
		Begin: int64(s.Int("begin", 0)),
		Limit: int64(s.Int("limit", 0)),
		Batch: s.Int("batch", 0),
		Rate:  float64(s.Int("rate", 0)),
	}
}

// countingHandler takes everything it is given; message decoding lives in
// venue-specific handlers.
func countingHandler(_ int, data []byte, _ int64) int { return len(data) }

// setupSignalHandling closes done on the first SIGINT or SIGTERM.
func setupSignalHandling() <-chan struct{} {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		<-sigChan
		debug.DropMessage("SIGNAL", "Received interrupt, shutting down...")
		close(done)
	}()
	return done
}

func main() {
	path := flag.String("config", "tradecore.json", "configuration file")
	flag.Parse()

	debug.DropMessage("INIT", "Loading "+*path)
	cfg, err := config.Load(*path)
	if err != nil {
		debug.DropError("CONFIG", err)
		os.Exit(1)
	}

	rt, err := build(cfg)
	if err != nil {
		debug.DropError("BUILD", err)
		os.Exit(1)
	}

	done := setupSignalHandling()
	if err := rt.life.Start(); err != nil {
		debug.DropError("START", err)
		os.Exit(1)
	}
	debug.DropMessage("READY", "mode "+cfg.String("mode", "live"))

	<-done
	if err := rt.life.Stop(); err != nil {
		debug.DropError("STOP", err)
		os.Exit(1)
	}
	debug.DropMessage("SIGNAL", "All subsystems shutdown complete")
}
