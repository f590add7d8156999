// Package node runs an audit.State on a wall clock: one goroutine owns the
// state, steps it every interval, persists each step and publishes the
// events it emitted.
package node

import (
	"context"
	"errors"
	"fmt"
	"time"

	natssrv "github.com/nats-io/nats-server/v2/server"
	"golang.org/x/sync/errgroup"

	"github.com/eigerco/auditor/internal/audit"
	"github.com/eigerco/auditor/internal/config"
	"github.com/eigerco/auditor/internal/events"
	"github.com/eigerco/auditor/internal/forest"
	"github.com/eigerco/auditor/internal/invariant"
	"github.com/eigerco/auditor/internal/store"
	"github.com/eigerco/auditor/internal/weight"
	"github.com/eigerco/auditor/pkg/db/pebble"
	"github.com/eigerco/auditor/pkg/log"
	"github.com/eigerco/auditor/pkg/natsbus"
)

var ErrStopped = errors.New("node stopped")

type request struct {
	ctx  context.Context
	fn   func(s *audit.State, meter *weight.Meter) (any, error)
	done chan result
}

type result struct {
	value any
	err   error
}

type Node struct {
	cfg      *config.Config
	state    *audit.State
	store    *store.State
	recorder *events.Recorder
	stats    *statsSink
	meter    *weight.Meter

	server    *natssrv.Server
	bus       *natsbus.Bus
	publisher *publisher

	requests chan request
	stopped  chan struct{}
}

// New opens the store, restores the last snapshot when there is one and
// connects to the bus when publishing is enabled.
func New(cfg *config.Config) (_ *Node, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []pebble.Option{pebble.WithCacheSize(cfg.Store.CacheSize)}
	if cfg.Store.Path != "" {
		opts = append(opts, pebble.WithPath(cfg.Store.Path))
	}
	kv, err := pebble.NewKVStore(opts...)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	n := &Node{
		cfg:      cfg,
		store:    store.NewState(kv),
		recorder: &events.Recorder{},
		stats:    &statsSink{},
		meter:    weight.NewMeter(cfg.Params.StepWeightLimit),
		requests: make(chan request, cfg.Node.RequestBuffer),
		stopped:  make(chan struct{}),
	}
	defer func() {
		if err != nil {
			n.Close() //nolint:errcheck
		}
	}()

	verifier := forest.NewVerifier(cfg.Forest.Depth, cfg.Forest.ChunkChallenges)
	n.state, err = audit.New(cfg.Params,
		audit.WithVerifiers(verifier.Verifiers()),
		audit.WithSink(events.Fanout{n.recorder, n.stats, events.LogSink{}}),
	)
	if err != nil {
		return nil, err
	}

	snap, err := n.store.Load(cfg.Params)
	switch {
	case errors.Is(err, store.ErrNoSnapshot):
		log.Root.Info().Msg("no snapshot found, starting at tick 0")
	case err != nil:
		return nil, fmt.Errorf("load snapshot: %w", err)
	default:
		if err := n.state.Restore(snap); err != nil {
			return nil, fmt.Errorf("restore snapshot: %w", err)
		}
		log.Root.Info().Uint32("tick", uint32(n.state.CurrentTick())).Msg("snapshot restored")
	}

	if cfg.Bus.Enabled {
		if err := n.connectBus(); err != nil {
			return nil, err
		}
	}
	return n, nil
}

func (n *Node) connectBus() error {
	url := n.cfg.Bus.URL
	if e := n.cfg.Bus.Embedded; e.Enabled {
		ns, err := natsbus.StartServer(natsbus.ServerOptions{
			Host:      e.Host,
			Port:      e.Port,
			StoreDir:  e.StoreDir,
			JetStream: n.cfg.Bus.Stream != "",
		})
		if err != nil {
			return err
		}
		n.server = ns
		url = ns.ClientURL()
	}

	bus, err := natsbus.Connect(natsbus.Options{
		URL:           url,
		Name:          "auditor",
		SubjectPrefix: n.cfg.Bus.SubjectPrefix,
		Stream:        n.cfg.Bus.Stream,
	})
	if err != nil {
		return err
	}
	n.bus = bus
	n.publisher = newPublisher(bus, 4*n.cfg.Node.RequestBuffer+64)
	log.Root.Info().Str("url", url).Msg("publishing events")
	return nil
}

// BusURL returns the URL of the NATS server events go to, empty when
// publishing is disabled.
func (n *Node) BusURL() string {
	switch {
	case n.server != nil:
		return n.server.ClientURL()
	case n.bus != nil:
		return n.cfg.Bus.URL
	}
	return ""
}

// Run steps the state every interval until ctx is cancelled or a step
// fails. It can be called once.
func (n *Node) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	if n.publisher != nil {
		// the publisher outlives the loop so the final flush is published
		g.Go(func() error { return n.publisher.run(n.stopped) })
	}
	g.Go(func() error { return n.loop(ctx) })
	return g.Wait()
}

func (n *Node) loop(ctx context.Context) (err error) {
	defer close(n.stopped)
	defer invariant.Recover(&err)

	t := time.NewTicker(n.cfg.Node.StepInterval)
	defer t.Stop()

	log.Root.Info().
		Uint32("tick", uint32(n.state.CurrentTick())).
		Dur("interval", n.cfg.Node.StepInterval).
		Msg("node started")
	for {
		select {
		case <-ctx.Done():
			// persist what requests changed since the last step
			if err := n.flush(); err != nil {
				return err
			}
			log.Root.Info().Uint32("tick", uint32(n.state.CurrentTick())).Msg("node stopped")
			return nil
		case r := <-n.requests:
			n.serve(r)
		case <-t.C:
			if err := n.step(); err != nil {
				return err
			}
		}
	}
}

// step runs one state step against the weight requests consumed since the
// previous one.
func (n *Node) step() error {
	remaining := n.state.Step(n.meter)
	log.Scheduler.Debug().
		Uint32("tick", uint32(n.state.CurrentTick())).
		Uint64("consumed", uint64(n.meter.Consumed())).
		Uint64("remaining", uint64(remaining)).
		Msg("step")
	n.meter = weight.NewMeter(n.cfg.Params.StepWeightLimit)
	return n.flush()
}

// flush saves the state with the events emitted since the last save, then
// hands them to the publisher.
func (n *Node) flush() error {
	evs := n.recorder.Events
	if err := n.store.Save(n.cfg.Params, n.state.Snapshot(), evs); err != nil {
		return fmt.Errorf("save step: %w", err)
	}
	n.recorder.Reset()

	tick := n.state.CurrentTick()
	if keep := n.cfg.Node.JournalRetention; keep > 0 && tick > keep {
		if err := n.store.PruneEvents(tick - keep); err != nil {
			return fmt.Errorf("prune journal: %w", err)
		}
	}

	if n.publisher != nil {
		for _, e := range evs {
			n.publisher.enqueue(e)
		}
	}
	return nil
}

// serve runs r unless its caller gave up while it was queued.
func (n *Node) serve(r request) {
	if err := r.ctx.Err(); err != nil {
		r.done <- result{err: err}
		return
	}
	v, err := r.fn(n.state, n.meter)
	r.done <- result{value: v, err: err}
}

// call runs fn on the loop goroutine and returns its result. Once queued,
// a request either runs to completion or is rejected with its context
// error, so the caller always learns whether fn took effect.
func call[T any](ctx context.Context, n *Node, fn func(s *audit.State, meter *weight.Meter) (T, error)) (T, error) {
	var zero T
	r := request{
		ctx:  ctx,
		fn:   func(s *audit.State, meter *weight.Meter) (any, error) { return fn(s, meter) },
		done: make(chan result, 1),
	}
	select {
	case n.requests <- r:
	case <-n.stopped:
		return zero, ErrStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	var res result
	select {
	case res = <-r.done:
	case <-n.stopped:
		select {
		case res = <-r.done:
		default:
			return zero, ErrStopped
		}
	}
	if res.err != nil {
		return zero, res.err
	}
	return res.value.(T), nil
}

// do is call for requests without a result.
func (n *Node) do(ctx context.Context, fn func(s *audit.State, meter *weight.Meter) error) error {
	_, err := call(ctx, n, func(s *audit.State, meter *weight.Meter) (struct{}, error) {
		return struct{}{}, fn(s, meter)
	})
	return err
}

func (n *Node) Stats() Stats { return n.stats.snapshot() }

// Close releases the store and the bus. It must not be called while Run is
// running.
func (n *Node) Close() error {
	var errs []error
	if n.bus != nil {
		errs = append(errs, n.bus.Close())
	}
	if n.server != nil {
		n.server.Shutdown()
	}
	errs = append(errs, n.store.Close())
	return errors.Join(errs...)
}
