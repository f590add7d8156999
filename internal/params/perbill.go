package params

import (
	"fmt"

	"github.com/eigerco/auditor/internal/safemath"
)

// Perbill is a ratio expressed in parts per billion.
type Perbill uint32

const PerbillOne Perbill = 1_000_000_000

// PerbillFromPercent returns pct/100 as a Perbill.
func PerbillFromPercent(pct uint32) Perbill {
	return Perbill(pct) * 10_000_000
}

// MulFloor returns floor(p * x).
func (p Perbill) MulFloor(x uint64) uint64 {
	v, err := safemath.MulDiv64(x, uint64(p), uint64(PerbillOne))
	if err != nil {
		// only reachable for ratios above one
		return x
	}
	return v
}

func (p Perbill) Valid() bool {
	return p <= PerbillOne
}

func (p Perbill) String() string {
	return fmt.Sprintf("%d.%07d%%", p/10_000_000, p%10_000_000)
}
