// Package weight models the per step compute budget. Every budgeted unit of
// work checks the meter before it runs and stops once the meter cannot pay.
package weight

import (
	"strconv"

	"github.com/eigerco/auditor/internal/safemath"
)

// Weight is an abstract amount of compute.
type Weight uint64

func (w Weight) String() string {
	return strconv.FormatUint(uint64(w), 10)
}

// Mul scales the weight, saturating at the maximum value.
func (w Weight) Mul(n uint64) Weight {
	v, ok := safemath.Mul64(uint64(w), n)
	if !ok {
		return Weight(^uint64(0))
	}
	return Weight(v)
}

// Meter tracks consumption against a fixed limit.
type Meter struct {
	limit    Weight
	consumed Weight
}

func NewMeter(limit Weight) *Meter {
	return &Meter{limit: limit}
}

func (m *Meter) Limit() Weight { return m.limit }

func (m *Meter) Consumed() Weight { return m.consumed }

// Remaining returns how much can still be consumed.
func (m *Meter) Remaining() Weight {
	return Weight(safemath.SaturatingSub64(uint64(m.limit), uint64(m.consumed)))
}

// CanConsume reports whether w fits in the remaining budget.
func (m *Meter) CanConsume(w Weight) bool {
	total, ok := safemath.Add64(uint64(m.consumed), uint64(w))
	return ok && Weight(total) <= m.limit
}

// TryConsume consumes w if it fits and reports whether it did.
func (m *Meter) TryConsume(w Weight) bool {
	if !m.CanConsume(w) {
		return false
	}
	m.consumed += w
	return true
}

// Consume records w unconditionally. It is used for work that already
// happened, such as an accepted submission, and may push consumption past
// the limit.
func (m *Meter) Consume(w Weight) {
	m.consumed = Weight(safemath.SaturatingAdd64(uint64(m.consumed), uint64(w)))
}
