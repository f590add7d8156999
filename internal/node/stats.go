package node

import (
	"sync"

	"github.com/eigerco/auditor/internal/events"
)

// Stats counts what the node observed since it started.
type Stats struct {
	Challenges     uint64
	ProofsAccepted uint64
	SlashableMarks uint64
	KeysRemoved    uint64
	Pauses         uint64
	Resumes        uint64
}

// statsSink is safe to read while the loop emits into it.
type statsSink struct {
	mu    sync.Mutex
	stats Stats
}

func (s *statsSink) Emit(e events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.Accept(statsVisitor{&s.stats})
}

func (s *statsSink) snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

type statsVisitor struct {
	s *Stats
}

func (v statsVisitor) NewChallenge(events.NewChallenge) { v.s.Challenges++ }

func (v statsVisitor) NewChallengeSeed(events.NewChallengeSeed) {}

func (v statsVisitor) NewCheckpointChallenge(events.NewCheckpointChallenge) {}

func (v statsVisitor) ProofAccepted(events.ProofAccepted) { v.s.ProofsAccepted++ }

func (v statsVisitor) SlashableProvider(events.SlashableProvider) { v.s.SlashableMarks++ }

func (v statsVisitor) MutationsApplied(e events.MutationsApplied) {
	v.s.KeysRemoved += uint64(len(e.Mutations))
}

func (v statsVisitor) ChallengesTickerSet(e events.ChallengesTickerSet) {
	if e.Paused {
		v.s.Pauses++
	} else {
		v.s.Resumes++
	}
}
