// Package ticker drives the challenge clock. The tick stalls while the
// trailing window of steps is congested or while an operator holds it.
package ticker

import (
	"fmt"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/eigerco/auditor/internal/params"
	"github.com/eigerco/auditor/internal/ticktime"
	"github.com/eigerco/auditor/internal/weight"
	"github.com/eigerco/auditor/pkg/log"
)

type State uint8

const (
	Running State = iota
	Paused
)

func (s State) String() string {
	if s == Paused {
		return "paused"
	}
	return "running"
}

// Transition is the congestion state change caused by an evaluation.
type Transition uint8

const (
	NoTransition Transition = iota
	CongestionPaused
	CongestionResumed
)

// usageAccuracy is the relative accuracy of the usage sketch.
const usageAccuracy = 0.01

type Controller struct {
	period    uint32
	threshold uint32
	headroom  params.Perbill

	tick   ticktime.Tick
	ticker uint64

	// notFull[i] is true when the step recorded at slot i was not full
	notFull  []bool
	next     uint32
	observed uint32
	notFulls uint32

	pausedAt *ticktime.Tick
	manual   bool

	usage *ddsketch.DDSketch
}

// New creates a running controller at tick zero.
func New(p params.Params) (*Controller, error) {
	usage, err := ddsketch.NewDefaultDDSketch(usageAccuracy)
	if err != nil {
		return nil, fmt.Errorf("create usage sketch: %w", err)
	}
	return &Controller{
		period:    p.BlockFullnessPeriod,
		threshold: p.NotFullThreshold(),
		headroom:  p.BlockFullnessHeadroom,
		notFull:   make([]bool, p.BlockFullnessPeriod),
		usage:     usage,
	}, nil
}

// Observe records the work of a step and re-evaluates congestion.
func (c *Controller) Observe(consumed, capacity weight.Weight) Transition {
	c.Record(consumed, capacity)
	return c.Evaluate()
}

// Record stores whether a step that consumed the given weight was full. A
// step is full when it used more than capacity minus the headroom.
func (c *Controller) Record(consumed, capacity weight.Weight) {
	c.ticker++

	reserve := weight.Weight(c.headroom.MulFloor(uint64(capacity)))
	full := consumed > capacity-reserve

	if c.observed == c.period {
		if c.notFull[c.next] {
			c.notFulls--
		}
	} else {
		c.observed++
	}
	c.notFull[c.next] = !full
	if !full {
		c.notFulls++
	}
	c.next = (c.next + 1) % c.period

	if capacity > 0 {
		if err := c.usage.Add(float64(consumed) / float64(capacity)); err != nil {
			log.Scheduler.Debug().Err(err).Msg("unable to record step usage")
		}
	}
}

// Evaluate applies the pause and resume conditions to the current window.
// Nothing happens until a full window has been observed.
func (c *Controller) Evaluate() Transition {
	if c.observed < c.period {
		return NoTransition
	}
	congested := c.notFulls <= c.threshold
	switch {
	case congested && c.pausedAt == nil:
		at := c.tick
		c.pausedAt = &at
		log.Scheduler.Warn().
			Uint32("tick", uint32(c.tick)).
			Uint32("not_full", c.notFulls).
			Uint32("threshold", c.threshold).
			Msg("congestion detected, pausing challenge ticker")
		return CongestionPaused
	case !congested && c.pausedAt != nil:
		log.Scheduler.Info().
			Uint32("tick", uint32(c.tick)).
			Uint32("paused_at", uint32(*c.pausedAt)).
			Msg("congestion cleared, resuming challenge ticker")
		c.pausedAt = nil
		return CongestionResumed
	}
	return NoTransition
}

// Advance moves the clock forward by one tick unless paused.
func (c *Controller) Advance() (ticktime.Tick, bool) {
	if c.Paused() {
		return c.tick, false
	}
	next, err := c.tick.Add(1)
	if err != nil {
		log.Scheduler.Error().Err(err).Msg("challenge ticker exhausted")
		return c.tick, false
	}
	c.tick = next
	return c.tick, true
}

// SetPaused sets the manual override and reports whether it changed.
func (c *Controller) SetPaused(paused bool) bool {
	if c.manual == paused {
		return false
	}
	c.manual = paused
	return true
}

// Paused reports whether the tick is currently held, for either reason.
func (c *Controller) Paused() bool {
	return c.manual || c.pausedAt != nil
}

func (c *Controller) State() State {
	if c.Paused() {
		return Paused
	}
	return Running
}

// ManuallyPaused reports the operator override alone.
func (c *Controller) ManuallyPaused() bool {
	return c.manual
}

// CongestedSince returns the tick at which congestion stalled the clock.
func (c *Controller) CongestedSince() (ticktime.Tick, bool) {
	if c.pausedAt == nil {
		return 0, false
	}
	return *c.pausedAt, true
}

func (c *Controller) Tick() ticktime.Tick { return c.tick }

// Ticker is the number of steps observed so far, paused or not.
func (c *Controller) Ticker() uint64 { return c.ticker }

// NotFullCount returns the not full steps in the window and how many steps
// the window currently holds.
func (c *Controller) NotFullCount() (notFull, observed uint32) {
	return c.notFulls, c.observed
}

// UsageQuantile returns the q-quantile of consumed/capacity over all
// observed steps.
func (c *Controller) UsageQuantile(q float64) (float64, error) {
	if c.usage.IsEmpty() {
		return 0, fmt.Errorf("usage quantile %v: no steps observed", q)
	}
	return c.usage.GetValueAtQuantile(q)
}

// Snapshot is the persisted form of a Controller. Usage statistics are
// diagnostics and start over after a restore.
type Snapshot struct {
	Tick     ticktime.Tick
	Ticker   uint64
	NotFull  []bool
	Next     uint32
	Observed uint32
	PausedAt *ticktime.Tick
	Manual   bool
}

func (c *Controller) Snapshot() Snapshot {
	s := Snapshot{
		Tick:     c.tick,
		Ticker:   c.ticker,
		NotFull:  append([]bool(nil), c.notFull...),
		Next:     c.next,
		Observed: c.observed,
		Manual:   c.manual,
	}
	if c.pausedAt != nil {
		at := *c.pausedAt
		s.PausedAt = &at
	}
	return s
}

func (c *Controller) Restore(s Snapshot) error {
	if len(s.NotFull) != len(c.notFull) || s.Next >= c.period || s.Observed > c.period {
		return fmt.Errorf("restore ticker: window of %d slots does not match period %d", len(s.NotFull), c.period)
	}
	copy(c.notFull, s.NotFull)
	c.tick, c.ticker, c.next, c.observed, c.manual = s.Tick, s.Ticker, s.Next, s.Observed, s.Manual
	c.notFulls = 0
	for _, nf := range c.notFull {
		// slots not yet written are false
		if nf {
			c.notFulls++
		}
	}
	c.pausedAt = nil
	if s.PausedAt != nil {
		at := *s.PausedAt
		c.pausedAt = &at
	}
	return nil
}
