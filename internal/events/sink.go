package events

import (
	"github.com/eigerco/auditor/internal/challenge"
	"github.com/eigerco/auditor/pkg/log"
)

// Sink receives emitted events in order.
type Sink interface {
	Emit(e Event)
}

type SinkFunc func(e Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Fanout emits to every sink in order.
type Fanout []Sink

func (f Fanout) Emit(e Event) {
	for _, s := range f {
		s.Emit(e)
	}
}

// Recorder keeps every event in memory.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Emit(e Event) {
	r.Events = append(r.Events, e)
}

func (r *Recorder) Reset() {
	r.Events = nil
}

// Filter returns the events of type T, in emission order.
func Filter[T Event](events []Event) []T {
	var out []T
	for _, e := range events {
		if t, ok := e.(T); ok {
			out = append(out, t)
		}
	}
	return out
}

// LogSink writes every event to the events logger.
type LogSink struct{}

func (LogSink) Emit(e Event) {
	e.Accept(logVisitor{})
}

type logVisitor struct{}

func (logVisitor) NewChallenge(e NewChallenge) {
	log.Events.Info().
		Str("key", e.Key.Short()).
		Bool("priority", e.Priority).
		Bool("should_remove_key", e.ShouldRemoveKey).
		Msg("new challenge")
}

func (logVisitor) NewChallengeSeed(e NewChallengeSeed) {
	log.Events.Debug().
		Uint32("tick", uint32(e.Tick)).
		Str("seed", e.Seed.Short()).
		Msg("new challenge seed")
}

func (logVisitor) NewCheckpointChallenge(e NewCheckpointChallenge) {
	log.Events.Info().
		Uint32("tick", uint32(e.Tick)).
		Int("challenges", len(e.Challenges)).
		Int("removals", countRemovals(e.Challenges)).
		Msg("new checkpoint challenge")
}

func (logVisitor) ProofAccepted(e ProofAccepted) {
	log.Events.Info().
		Str("provider", e.Provider.Short()).
		Uint32("last_tick_proven", uint32(e.LastTickProven)).
		Uint32("deadline", uint32(e.NextDeadline)).
		Msg("proof accepted")
}

func (logVisitor) SlashableProvider(e SlashableProvider) {
	log.Events.Warn().
		Str("provider", e.Provider.Short()).
		Uint32("deadline", uint32(e.NextDeadline)).
		Uint32("slashable", e.Slashable).
		Msg("slashable provider")
}

func (logVisitor) MutationsApplied(e MutationsApplied) {
	log.Events.Info().
		Str("provider", e.Provider.Short()).
		Int("mutations", len(e.Mutations)).
		Str("old_root", e.OldRoot.Short()).
		Str("new_root", e.NewRoot.Short()).
		Msg("mutations applied")
}

func (logVisitor) ChallengesTickerSet(e ChallengesTickerSet) {
	log.Events.Info().
		Bool("paused", e.Paused).
		Bool("congestion", e.Congestion).
		Msg("challenges ticker set")
}

func countRemovals(cs []challenge.CustomChallenge) int {
	n := 0
	for _, c := range cs {
		if c.ShouldRemoveKey {
			n++
		}
	}
	return n
}
