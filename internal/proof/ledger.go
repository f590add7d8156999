package proof

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/eigerco/auditor/internal/provider"
	"github.com/eigerco/auditor/internal/ticktime"
)

// Ledger records which providers submitted a valid proof at each tick.
// Each tick's set is bounded.
type Ledger struct {
	capacity int
	sets     map[ticktime.Tick]map[provider.ID]struct{}
}

func NewLedger(capacity uint32) *Ledger {
	return &Ledger{
		capacity: int(capacity),
		sets:     make(map[ticktime.Tick]map[provider.ID]struct{}),
	}
}

// CanRecord reports whether id can be recorded at tick: either it is already
// in the set or the set has room for it.
func (l *Ledger) CanRecord(tick ticktime.Tick, id provider.ID) bool {
	return l.Has(tick, id) || len(l.sets[tick]) < l.capacity
}

// Record inserts id into the set of tick. Recording a submitter twice is a
// no-op.
func (l *Ledger) Record(tick ticktime.Tick, id provider.ID) error {
	if !l.CanRecord(tick, id) {
		return fmt.Errorf("%w: %d", ErrTooManyValidProofSubmitters, tick)
	}
	set, ok := l.sets[tick]
	if !ok {
		set = make(map[provider.ID]struct{})
		l.sets[tick] = set
	}
	set[id] = struct{}{}
	return nil
}

func (l *Ledger) Has(tick ticktime.Tick, id provider.ID) bool {
	_, ok := l.sets[tick][id]
	return ok
}

// Submitters returns the providers recorded at tick in ascending order.
func (l *Ledger) Submitters(tick ticktime.Tick) []provider.ID {
	set := l.sets[tick]
	if len(set) == 0 {
		return nil
	}
	ids := make([]provider.ID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b provider.ID) int { return bytes.Compare(a[:], b[:]) })
	return ids
}

// DeleteSet removes the whole set of tick and reports whether one existed.
func (l *Ledger) DeleteSet(tick ticktime.Tick) bool {
	_, ok := l.sets[tick]
	delete(l.sets, tick)
	return ok
}

// Ticks returns the number of ticks with a recorded set.
func (l *Ledger) Ticks() int {
	return len(l.sets)
}

// LedgerSnapshot is the persisted form of a Ledger.
type LedgerSnapshot struct {
	Sets map[ticktime.Tick]map[provider.ID]struct{}
}

func (l *Ledger) Snapshot() LedgerSnapshot {
	return LedgerSnapshot{Sets: copySets(l.sets)}
}

func (l *Ledger) Restore(s LedgerSnapshot) {
	l.sets = copySets(s.Sets)
}

func copySets(in map[ticktime.Tick]map[provider.ID]struct{}) map[ticktime.Tick]map[provider.ID]struct{} {
	out := make(map[ticktime.Tick]map[provider.ID]struct{}, len(in))
	for tick, set := range in {
		cp := make(map[provider.ID]struct{}, len(set))
		for id := range set {
			cp[id] = struct{}{}
		}
		out[tick] = cp
	}
	return out
}
