package ticktime

import (
	"math"
	"math/bits"
	"strconv"
)

// Tick is one unit of the challenge clock. Unlike block height it only
// advances while the clock is not paused.
type Tick uint32

const MaxTick Tick = math.MaxUint32

// Add returns t+n, or ErrMaxTickReached if the result does not fit.
func (t Tick) Add(n Tick) (Tick, error) {
	sum, carry := bits.Add32(uint32(t), uint32(n), 0)
	if carry != 0 {
		return t, ErrMaxTickReached
	}
	return Tick(sum), nil
}

// Sub returns t-n, or ErrMinTickReached if n is larger than t.
func (t Tick) Sub(n Tick) (Tick, error) {
	diff, borrow := bits.Sub32(uint32(t), uint32(n), 0)
	if borrow != 0 {
		return t, ErrMinTickReached
	}
	return Tick(diff), nil
}

// SaturatingSub returns t-n clamped at zero.
func (t Tick) SaturatingSub(n Tick) Tick {
	if n > t {
		return 0
	}
	return t - n
}

// NextTick returns the next tick
func (t Tick) NextTick() Tick {
	if t == MaxTick {
		return t
	}
	return t + 1
}

// PreviousTick returns the previous tick
func (t Tick) PreviousTick() Tick {
	if t == 0 {
		return t
	}
	return t - 1
}

// IsMultipleOf reports whether t falls on a boundary of period. A zero
// period never matches.
func (t Tick) IsMultipleOf(period Tick) bool {
	return period != 0 && t%period == 0
}

// InWindow reports whether t is in [start, start+length).
func (t Tick) InWindow(start, length Tick) bool {
	if t < start {
		return false
	}
	return uint64(t) < uint64(start)+uint64(length)
}

func (t Tick) String() string {
	return strconv.FormatUint(uint64(t), 10)
}
