// Package slashing runs the budgeted cleanup of each step: the deadline
// sweep that marks providers who missed their proof as slashable, and the
// pruning of old valid submitter sets.
package slashing

import (
	"github.com/eigerco/auditor/internal/challenge"
	"github.com/eigerco/auditor/internal/events"
	"github.com/eigerco/auditor/internal/invariant"
	"github.com/eigerco/auditor/internal/params"
	"github.com/eigerco/auditor/internal/proof"
	"github.com/eigerco/auditor/internal/provider"
	"github.com/eigerco/auditor/internal/safemath"
	"github.com/eigerco/auditor/internal/ticktime"
	"github.com/eigerco/auditor/internal/weight"
	"github.com/eigerco/auditor/pkg/log"
)

const component = "slashing"

type Deps struct {
	Params    params.Params
	Scheduler *provider.Scheduler
	Queue     *challenge.Queue
	Ledger    *proof.Ledger
	Sink      events.Sink
}

// Sweeper keeps two cursors. checkTick is the next deadline tick to sweep
// and never exceeds the current tick plus one. lastDeletedTick is the
// newest tick whose submitters set was pruned.
type Sweeper struct {
	Deps

	checkTick       ticktime.Tick
	lastDeletedTick ticktime.Tick
	slashable       map[provider.ID]uint32
}

func NewSweeper(deps Deps) *Sweeper {
	if deps.Sink == nil {
		deps.Sink = events.Discard
	}
	return &Sweeper{
		Deps:      deps,
		slashable: make(map[provider.ID]uint32),
	}
}

// Run performs the deadline sweep and then the pruning, both bounded by
// meter.
func (s *Sweeper) Run(now ticktime.Tick, meter *weight.Meter) {
	s.SweepDeadlines(now, meter)
	s.PruneSubmitters(now, meter)
}

// SweepDeadlines handles the providers whose deadline is at or before now.
// Each tick is left once all of its providers are handled; a tick with more
// than MaxSlashableProvidersPerTick providers, or a meter that runs dry,
// leaves the cursor in place for the next step.
func (s *Sweeper) SweepDeadlines(now ticktime.Tick, meter *weight.Meter) {
	limit := int(s.Params.MaxSlashableProvidersPerTick)
	for s.checkTick <= now {
		for _, id := range s.Scheduler.DueAt(s.checkTick, limit) {
			if !meter.TryConsume(s.Params.Costs.SlashProvider) {
				return
			}
			s.markSlashable(id)
		}
		if len(s.Scheduler.DueAt(s.checkTick, 1)) > 0 {
			return
		}
		if !meter.TryConsume(s.Params.Costs.AdvanceCheckTick) {
			return
		}
		if s.checkTick == ticktime.MaxTick {
			return
		}
		s.checkTick++
	}
}

func (s *Sweeper) markSlashable(id provider.ID) {
	record, ok := s.Scheduler.Record(id)
	if !ok {
		invariant.Panicf(component, "provider %s has a deadline but no record", id)
	}

	increment := s.Params.RandomChallengesPerTick + s.owedCheckpointChallenges(id, record)
	count := safemath.SaturatingAdd32(s.slashable[id], increment)
	s.slashable[id] = count

	deadline, err := s.Scheduler.RescheduleAfterMiss(id)
	if err != nil {
		// without a valid stake the provider cannot be rescheduled, so its
		// cycle ends here
		log.Scheduler.Warn().
			Err(err).
			Str("provider", id.Short()).
			Msg("unable to reschedule provider after missed proof, stopping its cycle")
		s.Scheduler.Stop(id)
		deadline = 0
	}

	log.Scheduler.Info().
		Str("provider", id.Short()).
		Uint32("tick", uint32(s.checkTick)).
		Uint32("deadline", uint32(deadline)).
		Uint32("slashable", count).
		Msg("provider missed its proof")
	s.Sink.Emit(events.SlashableProvider{Provider: id, NextDeadline: deadline, Slashable: count})
}

// owedCheckpointChallenges counts the checkpoint challenges the missed
// proof would have had to answer: the set of the last checkpoint round at
// or before the challenge tick, when it came after the last proof. The
// round is derived from the challenge tick so a lagging sweep that runs
// after later rounds still charges the set that was owed.
func (s *Sweeper) owedCheckpointChallenges(id provider.ID, record provider.Record) uint32 {
	next := record.NextTickToSubmitProofFor
	round := next - next%s.Params.CheckpointChallengePeriod
	if round == 0 || round <= record.LastTickProven {
		return 0
	}
	set, ok := s.Queue.Checkpoint(round)
	if !ok {
		// evicted while the sweep lagged more than the checkpoint retention
		log.Scheduler.Warn().
			Str("provider", id.Short()).
			Uint32("checkpoint", uint32(round)).
			Msg("owed checkpoint set no longer retained")
		return 0
	}
	return uint32(len(set))
}

// PruneSubmitters deletes whole submitter sets once they are older than
// TargetTicksStorageOfSubmitters, oldest first.
func (s *Sweeper) PruneSubmitters(now ticktime.Tick, meter *weight.Meter) {
	retention := uint64(s.Params.TargetTicksStorageOfSubmitters)
	for {
		target := s.lastDeletedTick + 1
		if target == 0 || uint64(target)+retention >= uint64(now) {
			return
		}
		if !meter.TryConsume(s.Params.Costs.PruneSubmitters) {
			return
		}
		s.Ledger.DeleteSet(target)
		s.lastDeletedTick = target
	}
}

// Slashable returns the accrued missed challenges of id.
func (s *Sweeper) Slashable(id provider.ID) uint32 {
	return s.slashable[id]
}

// ClearSlashable resets the counter of id after a slashing action.
func (s *Sweeper) ClearSlashable(id provider.ID) uint32 {
	count := s.slashable[id]
	delete(s.slashable, id)
	return count
}

func (s *Sweeper) CheckTick() ticktime.Tick { return s.checkTick }

func (s *Sweeper) LastDeletedTick() ticktime.Tick { return s.lastDeletedTick }

// Snapshot is the persisted form of a Sweeper.
type Snapshot struct {
	CheckTick       ticktime.Tick
	LastDeletedTick ticktime.Tick
	Slashable       map[provider.ID]uint32
}

func (s *Sweeper) Snapshot() Snapshot {
	slashable := make(map[provider.ID]uint32, len(s.slashable))
	for id, c := range s.slashable {
		slashable[id] = c
	}
	return Snapshot{CheckTick: s.checkTick, LastDeletedTick: s.lastDeletedTick, Slashable: slashable}
}

func (s *Sweeper) Restore(snap Snapshot) {
	s.checkTick = snap.CheckTick
	s.lastDeletedTick = snap.LastDeletedTick
	s.slashable = make(map[provider.ID]uint32, len(snap.Slashable))
	for id, c := range snap.Slashable {
		s.slashable[id] = c
	}
}
