package provider

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/eigerco/auditor/internal/params"
	"github.com/eigerco/auditor/internal/ticktime"
	"github.com/eigerco/auditor/pkg/log"
)

// StakeSource supplies the current stake of a provider.
type StakeSource interface {
	Stake(id ID) (uint64, bool)
}

// Scheduler owns the proof submission records and the deadline index. Each
// provider with a record has exactly one deadline.
type Scheduler struct {
	stakes        StakeSource
	minPeriod     ticktime.Tick
	stakeConstant uint64
	tolerance     ticktime.Tick

	records    map[ID]Record
	deadlines  map[ticktime.Tick]map[ID]struct{}
	deadlineOf map[ID]ticktime.Tick
}

func NewScheduler(p params.Params, stakes StakeSource) *Scheduler {
	return &Scheduler{
		stakes:        stakes,
		minPeriod:     p.MinChallengePeriod,
		stakeConstant: p.StakeToChallengePeriod,
		tolerance:     p.ChallengeTicksTolerance,
		records:       make(map[ID]Record),
		deadlines:     make(map[ticktime.Tick]map[ID]struct{}),
		deadlineOf:    make(map[ID]ticktime.Tick),
	}
}

// StakeToPeriod returns max(MinChallengePeriod, StakeToChallengePeriod/stake).
func (s *Scheduler) StakeToPeriod(stake uint64) (ticktime.Tick, error) {
	if stake == 0 {
		return 0, ErrZeroStake
	}
	q := s.stakeConstant / stake
	if q > uint64(ticktime.MaxTick) {
		return ticktime.MaxTick, nil
	}
	return max(s.minPeriod, ticktime.Tick(q)), nil
}

// ChallengePeriod derives the period of id from its current stake.
func (s *Scheduler) ChallengePeriod(id ID) (ticktime.Tick, error) {
	stake, ok := s.stakes.Stake(id)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrProviderNotFound, id)
	}
	return s.StakeToPeriod(stake)
}

// Initialise starts a challenge cycle at now. The first challenge tick is
// now+period and the deadline adds the tolerance. An existing cycle is
// replaced.
func (s *Scheduler) Initialise(id ID, now ticktime.Tick) (ticktime.Tick, error) {
	period, err := s.ChallengePeriod(id)
	if err != nil {
		return 0, err
	}
	next, deadline, err := s.schedule(now, period)
	if err != nil {
		return 0, err
	}

	s.commit(id, Record{LastTickProven: now, NextTickToSubmitProofFor: next}, deadline)
	log.Scheduler.Debug().
		Str("provider", id.Short()).
		Uint32("tick", uint32(now)).
		Uint32("deadline", uint32(deadline)).
		Msg("challenge cycle initialised")
	return deadline, nil
}

// Stop removes the record and the deadline of id. It reports whether a
// cycle existed.
func (s *Scheduler) Stop(id ID) bool {
	_, ok := s.records[id]
	s.removeDeadline(id)
	delete(s.records, id)
	return ok
}

// RescheduleAfterProof records a proof for provenFor and moves the next
// challenge tick one period past it.
func (s *Scheduler) RescheduleAfterProof(id ID, provenFor ticktime.Tick) (ticktime.Tick, error) {
	next, deadline, err := s.PlanAfterProof(id, provenFor)
	if err != nil {
		return 0, err
	}
	s.commit(id, Record{LastTickProven: provenFor, NextTickToSubmitProofFor: next}, deadline)
	return deadline, nil
}

// PlanAfterProof computes the next challenge tick and deadline a proof for
// provenFor would produce, without changing anything.
func (s *Scheduler) PlanAfterProof(id ID, provenFor ticktime.Tick) (next, deadline ticktime.Tick, err error) {
	if _, ok := s.records[id]; !ok {
		return 0, 0, fmt.Errorf("%w: %s", ErrNoSubmissionRecord, id)
	}
	period, err := s.ChallengePeriod(id)
	if err != nil {
		return 0, 0, err
	}
	return s.schedule(provenFor, period)
}

// RescheduleAfterMiss moves the next challenge tick forward by one period.
// LastTickProven is left untouched so owed challenges keep accruing.
func (s *Scheduler) RescheduleAfterMiss(id ID) (ticktime.Tick, error) {
	record, ok := s.records[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoSubmissionRecord, id)
	}
	period, err := s.ChallengePeriod(id)
	if err != nil {
		return 0, err
	}
	next, deadline, err := s.schedule(record.NextTickToSubmitProofFor, period)
	if err != nil {
		return 0, err
	}
	record.NextTickToSubmitProofFor = next
	s.commit(id, record, deadline)
	return deadline, nil
}

func (s *Scheduler) schedule(from, period ticktime.Tick) (next, deadline ticktime.Tick, err error) {
	next, err = from.Add(period)
	if err != nil {
		return 0, 0, err
	}
	deadline, err = next.Add(s.tolerance)
	if err != nil {
		return 0, 0, err
	}
	return next, deadline, nil
}

func (s *Scheduler) commit(id ID, record Record, deadline ticktime.Tick) {
	s.removeDeadline(id)
	s.records[id] = record
	bucket, ok := s.deadlines[deadline]
	if !ok {
		bucket = make(map[ID]struct{})
		s.deadlines[deadline] = bucket
	}
	bucket[id] = struct{}{}
	s.deadlineOf[id] = deadline
}

func (s *Scheduler) removeDeadline(id ID) {
	old, ok := s.deadlineOf[id]
	if !ok {
		return
	}
	delete(s.deadlineOf, id)
	bucket := s.deadlines[old]
	delete(bucket, id)
	if len(bucket) == 0 {
		delete(s.deadlines, old)
	}
}

// Record returns the submission record of id.
func (s *Scheduler) Record(id ID) (Record, bool) {
	r, ok := s.records[id]
	return r, ok
}

// Deadline returns the tick at which id is next checked for a missed proof.
func (s *Scheduler) Deadline(id ID) (ticktime.Tick, bool) {
	d, ok := s.deadlineOf[id]
	return d, ok
}

// DueAt returns up to limit providers whose deadline is tick, in ascending
// id order. The entries stay in the index until the provider is rescheduled
// or stopped.
func (s *Scheduler) DueAt(tick ticktime.Tick, limit int) []ID {
	bucket := s.deadlines[tick]
	if len(bucket) == 0 || limit <= 0 {
		return nil
	}
	ids := make([]ID, 0, len(bucket))
	for id := range bucket {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b ID) int { return bytes.Compare(a[:], b[:]) })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids
}

// Active returns the number of providers with a challenge cycle.
func (s *Scheduler) Active() int {
	return len(s.records)
}

// CheckIndexes verifies that the forward and reverse deadline indexes agree
// and that every record has exactly one deadline.
func (s *Scheduler) CheckIndexes() error {
	seen := 0
	for tick, bucket := range s.deadlines {
		if len(bucket) == 0 {
			return fmt.Errorf("%w: empty bucket at %d", ErrInconsistentIndexes, tick)
		}
		for id := range bucket {
			if d, ok := s.deadlineOf[id]; !ok || d != tick {
				return fmt.Errorf("%w: %s in bucket %d", ErrInconsistentIndexes, id, tick)
			}
			if _, ok := s.records[id]; !ok {
				return fmt.Errorf("%w: %s has a deadline but no record", ErrInconsistentIndexes, id)
			}
			seen++
		}
	}
	if seen != len(s.deadlineOf) || seen != len(s.records) {
		return fmt.Errorf("%w: %d deadlines for %d records", ErrInconsistentIndexes, seen, len(s.records))
	}
	return nil
}

// SchedulerSnapshot is the persisted form of a Scheduler. The bucket index
// is rebuilt from Deadlines on restore.
type SchedulerSnapshot struct {
	Records   map[ID]Record
	Deadlines map[ID]ticktime.Tick
}

func (s *Scheduler) Snapshot() SchedulerSnapshot {
	snap := SchedulerSnapshot{
		Records:   make(map[ID]Record, len(s.records)),
		Deadlines: make(map[ID]ticktime.Tick, len(s.deadlineOf)),
	}
	for id, r := range s.records {
		snap.Records[id] = r
	}
	for id, d := range s.deadlineOf {
		snap.Deadlines[id] = d
	}
	return snap
}

func (s *Scheduler) Restore(snap SchedulerSnapshot) error {
	s.records = make(map[ID]Record, len(snap.Records))
	s.deadlines = make(map[ticktime.Tick]map[ID]struct{})
	s.deadlineOf = make(map[ID]ticktime.Tick, len(snap.Deadlines))
	for id, r := range snap.Records {
		d, ok := snap.Deadlines[id]
		if !ok {
			return fmt.Errorf("%w: %s has no deadline", ErrInconsistentIndexes, id)
		}
		s.commit(id, r, d)
	}
	return s.CheckIndexes()
}
