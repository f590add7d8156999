// Package challenge holds custom challenges until a checkpoint round drains
// them, and expands seeds into random challenge keys.
package challenge

import (
	"github.com/eigerco/auditor/internal/crypto"
	"github.com/eigerco/auditor/internal/ticktime"
)

// CustomChallenge is a key pushed by another subsystem. When ShouldRemoveKey
// is set, providers that prove the key also remove it from their forest.
type CustomChallenge struct {
	Key             crypto.Hash `json:"key"`
	ShouldRemoveKey bool        `json:"should_remove_key"`
}

// CheckpointSet is the ordered output of one checkpoint round.
type CheckpointSet []CustomChallenge

// Keys returns the challenged keys in round order.
func (s CheckpointSet) Keys() []crypto.Hash {
	keys := make([]crypto.Hash, len(s))
	for i, c := range s {
		keys[i] = c.Key
	}
	return keys
}

// Queue is a pair of bounded FIFOs (priority and normal) plus the retained
// checkpoint sets.
type Queue struct {
	normal      []CustomChallenge
	priority    []CustomChallenge
	normalCap   int
	priorityCap int

	checkpoints    map[ticktime.Tick]CheckpointSet
	lastCheckpoint ticktime.Tick
	retention      ticktime.Tick
}

// NewQueue creates a queue. Checkpoint sets older than retention ticks are
// evicted on every round.
func NewQueue(normalCap, priorityCap uint32, retention ticktime.Tick) *Queue {
	return &Queue{
		normalCap:   int(normalCap),
		priorityCap: int(priorityCap),
		checkpoints: make(map[ticktime.Tick]CheckpointSet),
		retention:   retention,
	}
}

// Push appends c to the selected queue.
func (q *Queue) Push(c CustomChallenge, priority bool) error {
	if priority {
		if len(q.priority) >= q.priorityCap {
			return ErrPriorityChallengesQueueOverflow
		}
		q.priority = append(q.priority, c)
		return nil
	}
	if len(q.normal) >= q.normalCap {
		return ErrChallengesQueueOverflow
	}
	q.normal = append(q.normal, c)
	return nil
}

// DrainRound pops up to maxPerRound challenges, priority queue first, and
// stores them as the checkpoint set of tick. Undrained entries stay queued.
func (q *Queue) DrainRound(maxPerRound int, tick ticktime.Tick) CheckpointSet {
	set := make(CheckpointSet, 0, min(maxPerRound, len(q.priority)+len(q.normal)))

	n := min(maxPerRound, len(q.priority))
	set = append(set, q.priority[:n]...)
	q.priority = popFront(q.priority, n)

	n = min(maxPerRound-len(set), len(q.normal))
	set = append(set, q.normal[:n]...)
	q.normal = popFront(q.normal, n)

	q.checkpoints[tick] = set
	q.lastCheckpoint = tick
	q.evict(tick)
	return set
}

func (q *Queue) evict(now ticktime.Tick) {
	for t := range q.checkpoints {
		if now-t > q.retention {
			delete(q.checkpoints, t)
		}
	}
}

// Checkpoint returns the set drained at tick if it is still retained.
func (q *Queue) Checkpoint(tick ticktime.Tick) (CheckpointSet, bool) {
	set, ok := q.checkpoints[tick]
	return set, ok
}

// LastCheckpointTick is the tick of the most recent round, zero before the
// first one.
func (q *Queue) LastCheckpointTick() ticktime.Tick {
	return q.lastCheckpoint
}

// Len returns the number of queued challenges in the normal and priority
// queues.
func (q *Queue) Len() (normal, priority int) {
	return len(q.normal), len(q.priority)
}

func popFront(s []CustomChallenge, n int) []CustomChallenge {
	if n == len(s) {
		return nil
	}
	return append([]CustomChallenge(nil), s[n:]...)
}

// Snapshot is the persisted form of a Queue.
type Snapshot struct {
	Normal             []CustomChallenge
	Priority           []CustomChallenge
	Checkpoints        map[ticktime.Tick]CheckpointSet
	LastCheckpointTick ticktime.Tick
}

func (q *Queue) Snapshot() Snapshot {
	cps := make(map[ticktime.Tick]CheckpointSet, len(q.checkpoints))
	for t, set := range q.checkpoints {
		cps[t] = append(CheckpointSet{}, set...)
	}
	return Snapshot{
		Normal:             append([]CustomChallenge(nil), q.normal...),
		Priority:           append([]CustomChallenge(nil), q.priority...),
		Checkpoints:        cps,
		LastCheckpointTick: q.lastCheckpoint,
	}
}

func (q *Queue) Restore(s Snapshot) {
	q.normal = append([]CustomChallenge(nil), s.Normal...)
	q.priority = append([]CustomChallenge(nil), s.Priority...)
	q.checkpoints = make(map[ticktime.Tick]CheckpointSet, len(s.Checkpoints))
	for t, set := range s.Checkpoints {
		q.checkpoints[t] = append(CheckpointSet{}, set...)
	}
	q.lastCheckpoint = s.LastCheckpointTick
}
