// Package seed keeps the bounded history of per tick challenge seeds.
package seed

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/eigerco/auditor/internal/crypto"
	"github.com/eigerco/auditor/internal/ticktime"
)

var ErrOutOfOrderTick = errors.New("seed advanced out of tick order")

// Derive computes the seed of tick from the running ticker value.
func Derive(ticker uint64, tick ticktime.Tick) crypto.Hash {
	var buf [12]byte
	binary.LittleEndian.PutUint64(buf[:8], ticker)
	binary.LittleEndian.PutUint32(buf[8:], uint32(tick))
	return crypto.HashData(buf[:])
}

// History is a ring buffer holding the seeds of the last Length ticks. The
// seed of tick t lives at t mod Length.
type History struct {
	seeds   []crypto.Hash
	first   ticktime.Tick
	current ticktime.Tick
	started bool
}

func NewHistory(length ticktime.Tick) *History {
	return &History{seeds: make([]crypto.Hash, length)}
}

func (h *History) Len() ticktime.Tick {
	return ticktime.Tick(len(h.seeds))
}

// Advance stores the seed for tick, overwriting the seed that is exactly
// Len ticks older. After the first call ticks must be consecutive.
func (h *History) Advance(ticker uint64, tick ticktime.Tick) (crypto.Hash, error) {
	if h.started && tick != h.current+1 {
		return crypto.Hash{}, fmt.Errorf("%w: got %d after %d", ErrOutOfOrderTick, tick, h.current)
	}
	s := Derive(ticker, tick)
	h.seeds[h.index(tick)] = s
	if !h.started {
		h.first = tick
		h.started = true
	}
	h.current = tick
	return s, nil
}

// Get returns the seed of tick if it is still retained.
func (h *History) Get(tick ticktime.Tick) (crypto.Hash, bool) {
	if !h.Retains(tick) {
		return crypto.Hash{}, false
	}
	return h.seeds[h.index(tick)], true
}

// Retains reports whether tick is in [max(first, current-Len+1), current].
func (h *History) Retains(tick ticktime.Tick) bool {
	if !h.started || tick > h.current || tick < h.first {
		return false
	}
	return h.current-tick < h.Len()
}

// Current returns the most recent tick with a seed.
func (h *History) Current() (ticktime.Tick, bool) {
	return h.current, h.started
}

func (h *History) index(tick ticktime.Tick) int {
	return int(tick % h.Len())
}

// Snapshot is the persisted form of a History.
type Snapshot struct {
	Seeds   []crypto.Hash
	First   ticktime.Tick
	Current ticktime.Tick
	Started bool
}

func (h *History) Snapshot() Snapshot {
	return Snapshot{
		Seeds:   append([]crypto.Hash(nil), h.seeds...),
		First:   h.first,
		Current: h.current,
		Started: h.started,
	}
}

// Restore replaces the history with s. The ring length must match.
func (h *History) Restore(s Snapshot) error {
	if len(s.Seeds) != len(h.seeds) {
		return fmt.Errorf("restore seed history: length %d, expected %d", len(s.Seeds), len(h.seeds))
	}
	copy(h.seeds, s.Seeds)
	h.first, h.current, h.started = s.First, s.Current, s.Started
	return nil
}
