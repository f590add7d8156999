// Package audit ties the scheduler components into one State driven one
// step at a time. State is not safe for concurrent use.
package audit

import (
	"errors"
	"fmt"

	"github.com/eigerco/auditor/internal/challenge"
	"github.com/eigerco/auditor/internal/crypto"
	"github.com/eigerco/auditor/internal/events"
	"github.com/eigerco/auditor/internal/invariant"
	"github.com/eigerco/auditor/internal/params"
	"github.com/eigerco/auditor/internal/proof"
	"github.com/eigerco/auditor/internal/provider"
	"github.com/eigerco/auditor/internal/seed"
	"github.com/eigerco/auditor/internal/slashing"
	"github.com/eigerco/auditor/internal/ticker"
	"github.com/eigerco/auditor/internal/ticktime"
	"github.com/eigerco/auditor/internal/weight"
	"github.com/eigerco/auditor/pkg/log"
)

const component = "audit"

var ErrMissingVerifiers = errors.New("proof verifiers not configured")

type Option func(*options)

type options struct {
	directory *provider.Directory
	verifiers proof.Verifiers
	generator challenge.Generator
	sink      events.Sink
}

// WithDirectory sets the providers registry. A new empty one is used
// otherwise.
func WithDirectory(d *provider.Directory) Option {
	return func(o *options) { o.directory = d }
}

func WithVerifiers(v proof.Verifiers) Option {
	return func(o *options) { o.verifiers = v }
}

func WithGenerator(g challenge.Generator) Option {
	return func(o *options) { o.generator = g }
}

func WithSink(s events.Sink) Option {
	return func(o *options) { o.sink = s }
}

type State struct {
	params    params.Params
	directory *provider.Directory
	ticker    *ticker.Controller
	seeds     *seed.History
	queue     *challenge.Queue
	scheduler *provider.Scheduler
	ledger    *proof.Ledger
	proofs    *proof.Processor
	sweeper   *slashing.Sweeper
	sink      events.Sink
}

func New(p params.Params, opts ...Option) (*State, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	o := options{generator: challenge.HashGenerator{}, sink: events.Discard}
	for _, opt := range opts {
		opt(&o)
	}
	if o.verifiers.Forest == nil || o.verifiers.Key == nil || o.verifiers.Mutations == nil {
		return nil, ErrMissingVerifiers
	}
	if o.directory == nil {
		o.directory = provider.NewDirectory()
	}

	tc, err := ticker.New(p)
	if err != nil {
		return nil, err
	}
	s := &State{
		params:    p,
		directory: o.directory,
		ticker:    tc,
		seeds:     seed.NewHistory(p.ChallengeHistoryLength),
		queue:     challenge.NewQueue(p.ChallengesQueueLength, p.PriorityChallengesQueueLength, p.CheckpointRetention()),
		ledger:    proof.NewLedger(p.MaxSubmittersPerTick),
		sink:      o.sink,
	}
	s.scheduler = provider.NewScheduler(p, s.directory)
	s.proofs = proof.NewProcessor(proof.Deps{
		Params:    p,
		Registry:  s.directory,
		Scheduler: s.scheduler,
		Seeds:     s.seeds,
		Queue:     s.queue,
		Ledger:    s.ledger,
		Generator: o.generator,
		Verifiers: o.verifiers,
		Sink:      s.sink,
	})
	s.sweeper = slashing.NewSweeper(slashing.Deps{
		Params:    p,
		Scheduler: s.scheduler,
		Queue:     s.queue,
		Ledger:    s.ledger,
		Sink:      s.sink,
	})
	return s, nil
}

func (s *State) Params() params.Params { return s.params }

// Directory is the providers registry the state schedules against.
func (s *State) Directory() *provider.Directory { return s.directory }

// Step runs one scheduling step against meter, whose consumption so far is
// the load of the step: fullness and the tick decision first, then the seed
// and checkpoint of a new tick, then the budgeted sweeps. It returns the
// weight left in meter.
func (s *State) Step(meter *weight.Meter) weight.Weight {
	wasPaused := s.ticker.Paused()
	switch s.ticker.Observe(meter.Consumed(), meter.Limit()) {
	case ticker.CongestionPaused, ticker.CongestionResumed:
		if paused := s.ticker.Paused(); paused != wasPaused {
			s.sink.Emit(events.ChallengesTickerSet{Paused: paused, Congestion: true})
		}
	}

	if tick, ok := s.ticker.Advance(); ok {
		s.onNewTick(tick)
	}

	s.sweeper.Run(s.ticker.Tick(), meter)
	return meter.Remaining()
}

func (s *State) onNewTick(tick ticktime.Tick) {
	sd, err := s.seeds.Advance(s.ticker.Ticker(), tick)
	if err != nil {
		invariant.Panicf(component, "advance seed history: %v", err)
	}
	s.sink.Emit(events.NewChallengeSeed{Tick: tick, Seed: sd})

	if tick.IsMultipleOf(s.params.CheckpointChallengePeriod) {
		set := s.queue.DrainRound(int(s.params.MaxCustomChallengesPerTick), tick)
		s.sink.Emit(events.NewCheckpointChallenge{Tick: tick, Challenges: set})
	}
}

// SubmitProof verifies and applies a proof. The submission is charged to
// meter whether or not it is accepted.
func (s *State) SubmitProof(meter *weight.Meter, caller provider.AccountID, hint *provider.ID, p proof.Proof) error {
	meter.Consume(s.params.Costs.SubmitProof)
	_, err := s.proofs.Submit(s.ticker.Tick(), caller, hint, p)
	return err
}

// Challenge queues key as a normal challenge.
func (s *State) Challenge(key crypto.Hash) error {
	return s.push(challenge.CustomChallenge{Key: key}, false)
}

// ChallengeWithPriority queues key ahead of normal challenges, optionally
// asking providers that prove it to remove it.
func (s *State) ChallengeWithPriority(key crypto.Hash, shouldRemoveKey bool) error {
	return s.push(challenge.CustomChallenge{Key: key, ShouldRemoveKey: shouldRemoveKey}, true)
}

func (s *State) push(c challenge.CustomChallenge, priority bool) error {
	if err := s.queue.Push(c, priority); err != nil {
		return err
	}
	s.sink.Emit(events.NewChallenge{Key: c.Key, Priority: priority, ShouldRemoveKey: c.ShouldRemoveKey})
	return nil
}

// ForceInitialiseCycle (re)starts the challenge cycle of a registered
// provider at the current tick and returns its first deadline.
func (s *State) ForceInitialiseCycle(id provider.ID) (ticktime.Tick, error) {
	if !s.directory.IsProvider(id) {
		return 0, fmt.Errorf("%w: %s", proof.ErrNotProvider, id)
	}
	return s.scheduler.Initialise(id, s.ticker.Tick())
}

// StopCycle ends the challenge cycle of id and reports whether it had one.
func (s *State) StopCycle(id provider.ID) bool {
	return s.scheduler.Stop(id)
}

// SetPaused sets the operator hold on the ticker.
func (s *State) SetPaused(paused bool) {
	wasPaused := s.ticker.Paused()
	if !s.ticker.SetPaused(paused) {
		return
	}
	log.Scheduler.Info().Bool("paused", paused).Msg("challenge ticker hold changed")
	if s.ticker.Paused() != wasPaused {
		s.sink.Emit(events.ChallengesTickerSet{Paused: s.ticker.Paused()})
	}
}

func (s *State) Paused() bool { return s.ticker.Paused() }

func (s *State) CurrentTick() ticktime.Tick { return s.ticker.Tick() }

func (s *State) Stake(id provider.ID) (uint64, bool) { return s.directory.Stake(id) }

func (s *State) ChallengePeriod(id provider.ID) (ticktime.Tick, error) {
	return s.scheduler.ChallengePeriod(id)
}

// ChallengesFor returns what id must prove at the current tick.
func (s *State) ChallengesFor(id provider.ID) (proof.Challenges, error) {
	return s.proofs.ChallengesFor(id, s.ticker.Tick())
}

func (s *State) Record(id provider.ID) (provider.Record, bool) { return s.scheduler.Record(id) }

func (s *State) Deadline(id provider.ID) (ticktime.Tick, bool) { return s.scheduler.Deadline(id) }

func (s *State) Slashable(id provider.ID) uint32 { return s.sweeper.Slashable(id) }

// ClearSlashable resets the counter of id after it was slashed and returns
// the cleared value.
func (s *State) ClearSlashable(id provider.ID) uint32 { return s.sweeper.ClearSlashable(id) }

// Seed returns the seed of tick while it is retained.
func (s *State) Seed(tick ticktime.Tick) (crypto.Hash, bool) { return s.seeds.Get(tick) }

// Checkpoint returns the checkpoint set of tick while it is retained.
func (s *State) Checkpoint(tick ticktime.Tick) (challenge.CheckpointSet, bool) {
	return s.queue.Checkpoint(tick)
}

// QueueLen returns the number of queued normal and priority challenges.
func (s *State) QueueLen() (normal, priority int) { return s.queue.Len() }

// ValidSubmitters returns the providers that proved at tick.
func (s *State) ValidSubmitters(tick ticktime.Tick) []provider.ID { return s.ledger.Submitters(tick) }

// UsageQuantile reports the q-quantile of step usage.
func (s *State) UsageQuantile(q float64) (float64, error) { return s.ticker.UsageQuantile(q) }

// CheckInvariants verifies the cross component invariants.
func (s *State) CheckInvariants() error {
	if err := s.scheduler.CheckIndexes(); err != nil {
		return err
	}
	tick := s.ticker.Tick()
	if uint64(s.sweeper.CheckTick()) > uint64(tick)+1 {
		return fmt.Errorf("deadline cursor %d ahead of tick %d", s.sweeper.CheckTick(), tick)
	}
	if current, ok := s.seeds.Current(); ok && current != tick {
		return fmt.Errorf("seed history at %d, tick at %d", current, tick)
	}
	return nil
}
