package slashing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/auditor/internal/challenge"
	"github.com/eigerco/auditor/internal/crypto"
	"github.com/eigerco/auditor/internal/events"
	"github.com/eigerco/auditor/internal/params"
	"github.com/eigerco/auditor/internal/proof"
	"github.com/eigerco/auditor/internal/provider"
	"github.com/eigerco/auditor/internal/ticktime"
	"github.com/eigerco/auditor/internal/weight"
)

type harness struct {
	params    params.Params
	dir       *provider.Directory
	scheduler *provider.Scheduler
	queue     *challenge.Queue
	ledger    *proof.Ledger
	recorder  *events.Recorder
	sweeper   *Sweeper
}

func newHarness(t *testing.T, p params.Params) *harness {
	t.Helper()
	h := &harness{
		params:   p,
		dir:      provider.NewDirectory(),
		queue:    challenge.NewQueue(p.ChallengesQueueLength, p.PriorityChallengesQueueLength, p.CheckpointRetention()),
		ledger:   proof.NewLedger(p.MaxSubmittersPerTick),
		recorder: &events.Recorder{},
	}
	h.scheduler = provider.NewScheduler(p, h.dir)
	h.sweeper = NewSweeper(Deps{
		Params:    p,
		Scheduler: h.scheduler,
		Queue:     h.queue,
		Ledger:    h.ledger,
		Sink:      h.recorder,
	})
	return h
}

func (h *harness) register(t *testing.T, id provider.ID, stake uint64, at ticktime.Tick) {
	t.Helper()
	require.NoError(t, h.dir.Register(id, provider.Info{Account: provider.AccountID(id), Stake: stake}))
	_, err := h.scheduler.Initialise(id, at)
	require.NoError(t, err)
}

func unlimited() *weight.Meter {
	return weight.NewMeter(math.MaxUint64)
}

// The provider has stake equal to StakeToChallengePeriod, so its period is
// MinChallengePeriod (5), and ChallengeTicksTolerance is 3.
func TestSweepDeadlines_MissedProof(t *testing.T) {
	h := newHarness(t, params.Tiny())
	id := provider.ID{1}
	h.register(t, id, h.params.StakeToChallengePeriod, 10)

	h.sweeper.SweepDeadlines(17, unlimited())
	assert.Zero(t, h.sweeper.Slashable(id))
	assert.Equal(t, ticktime.Tick(18), h.sweeper.CheckTick())

	h.sweeper.SweepDeadlines(18, unlimited())
	assert.Equal(t, h.params.RandomChallengesPerTick, h.sweeper.Slashable(id))
	record, _ := h.scheduler.Record(id)
	assert.Equal(t, provider.Record{LastTickProven: 10, NextTickToSubmitProofFor: 20}, record)
	deadline, _ := h.scheduler.Deadline(id)
	assert.Equal(t, ticktime.Tick(23), deadline)
	assert.Equal(t, []events.Event{
		events.SlashableProvider{Provider: id, NextDeadline: 23, Slashable: h.params.RandomChallengesPerTick},
	}, h.recorder.Events)
	assert.Equal(t, ticktime.Tick(19), h.sweeper.CheckTick())
}

func TestSweepDeadlines_AccruesOncePerMiss(t *testing.T) {
	h := newHarness(t, params.Tiny())
	id := provider.ID{1}
	h.register(t, id, h.params.StakeToChallengePeriod, 10)

	var (
		counts    []uint32
		deadlines []ticktime.Tick
	)
	for now := ticktime.Tick(0); now <= 40; now++ {
		// sweeping twice in one tick must not count twice
		h.sweeper.SweepDeadlines(now, unlimited())
		h.sweeper.SweepDeadlines(now, unlimited())
	}
	for _, e := range events.Filter[events.SlashableProvider](h.recorder.Events) {
		counts = append(counts, e.Slashable)
		deadlines = append(deadlines, e.NextDeadline)
	}

	assert.Equal(t, []uint32{2, 4, 6, 8, 10}, counts)
	assert.Equal(t, []ticktime.Tick{23, 28, 33, 38, 43}, deadlines)
	require.NoError(t, h.scheduler.CheckIndexes())
}

func TestSweepDeadlines_CountsOwedCheckpoint(t *testing.T) {
	h := newHarness(t, params.Tiny())
	id := provider.ID{1}
	h.register(t, id, h.params.StakeToChallengePeriod, 10)

	require.NoError(t, h.queue.Push(challenge.CustomChallenge{Key: crypto.Hash{1}}, false))
	require.NoError(t, h.queue.Push(challenge.CustomChallenge{Key: crypto.Hash{2}}, true))
	h.queue.DrainRound(int(h.params.MaxCustomChallengesPerTick), 12)

	h.sweeper.SweepDeadlines(18, unlimited())
	assert.Equal(t, h.params.RandomChallengesPerTick+2, h.sweeper.Slashable(id))
}

// A sweep that reaches the deadline only after later checkpoint rounds still
// charges the set that was current at the challenge tick.
func TestSweepDeadlines_LaggingSweepCountsOwedCheckpoint(t *testing.T) {
	h := newHarness(t, params.Tiny())
	id := provider.ID{1}
	h.register(t, id, h.params.StakeToChallengePeriod, 10)

	require.NoError(t, h.queue.Push(challenge.CustomChallenge{Key: crypto.Hash{1}}, false))
	require.NoError(t, h.queue.Push(challenge.CustomChallenge{Key: crypto.Hash{2}}, false))
	h.queue.DrainRound(int(h.params.MaxCustomChallengesPerTick), 12)
	h.queue.DrainRound(int(h.params.MaxCustomChallengesPerTick), 16)
	h.queue.DrainRound(int(h.params.MaxCustomChallengesPerTick), 20)
	require.Equal(t, ticktime.Tick(20), h.queue.LastCheckpointTick())

	h.sweeper.SweepDeadlines(20, unlimited())
	assert.Equal(t, h.params.RandomChallengesPerTick+2, h.sweeper.Slashable(id))
	assert.Equal(t, ticktime.Tick(21), h.sweeper.CheckTick())
}

func TestSweepDeadlines_Budget(t *testing.T) {
	h := newHarness(t, params.Tiny())
	for b := byte(1); b <= 3; b++ {
		h.register(t, provider.ID{b}, h.params.StakeToChallengePeriod, 0)
	}
	h.sweeper.SweepDeadlines(7, unlimited())
	require.Equal(t, ticktime.Tick(8), h.sweeper.CheckTick())

	costs := h.params.Costs
	meter := weight.NewMeter(2*costs.SlashProvider + costs.SlashProvider/2)
	h.sweeper.SweepDeadlines(8, meter)

	assert.Len(t, h.recorder.Events, 2)
	assert.Equal(t, ticktime.Tick(8), h.sweeper.CheckTick(), "tick not finished")
	assert.LessOrEqual(t, meter.Consumed(), meter.Limit())
	for b := byte(1); b <= 2; b++ {
		deadline, _ := h.scheduler.Deadline(provider.ID{b})
		assert.Equal(t, ticktime.Tick(13), deadline, "handled providers are fully rescheduled")
	}
	deadline, _ := h.scheduler.Deadline(provider.ID{3})
	assert.Equal(t, ticktime.Tick(8), deadline)

	h.sweeper.SweepDeadlines(8, weight.NewMeter(0))
	assert.Len(t, h.recorder.Events, 2, "no budget, no work")

	h.sweeper.SweepDeadlines(8, unlimited())
	assert.Len(t, h.recorder.Events, 3)
	assert.Equal(t, ticktime.Tick(9), h.sweeper.CheckTick())
}

func TestSweepDeadlines_PerTickLimit(t *testing.T) {
	h := newHarness(t, params.Tiny())
	for b := byte(1); b <= 6; b++ {
		h.register(t, provider.ID{b}, h.params.StakeToChallengePeriod, 0)
	}

	h.sweeper.SweepDeadlines(8, unlimited())
	assert.Len(t, h.recorder.Events, int(h.params.MaxSlashableProvidersPerTick))
	assert.Equal(t, ticktime.Tick(8), h.sweeper.CheckTick())

	h.sweeper.SweepDeadlines(8, unlimited())
	assert.Len(t, h.recorder.Events, 6)
	assert.Equal(t, ticktime.Tick(9), h.sweeper.CheckTick())
}

func TestSweepDeadlines_CatchesUpSeveralTicks(t *testing.T) {
	h := newHarness(t, params.Tiny())
	h.register(t, provider.ID{1}, h.params.StakeToChallengePeriod, 0)
	h.register(t, provider.ID{2}, h.params.StakeToChallengePeriod, 2)

	h.sweeper.SweepDeadlines(12, unlimited())
	assert.Len(t, h.recorder.Events, 2)
	assert.Equal(t, ticktime.Tick(13), h.sweeper.CheckTick())
}

func TestSweepDeadlines_StopsCycleWithoutStake(t *testing.T) {
	h := newHarness(t, params.Tiny())
	id := provider.ID{1}
	h.register(t, id, h.params.StakeToChallengePeriod, 0)
	require.NoError(t, h.dir.SetStake(id, 0))

	h.sweeper.SweepDeadlines(8, unlimited())
	assert.Equal(t, h.params.RandomChallengesPerTick, h.sweeper.Slashable(id))
	_, ok := h.scheduler.Record(id)
	assert.False(t, ok)
	assert.Equal(t, ticktime.Tick(9), h.sweeper.CheckTick())
	assert.Equal(t, []events.Event{
		events.SlashableProvider{Provider: id, Slashable: h.params.RandomChallengesPerTick},
	}, h.recorder.Events)
}

func TestPruneSubmitters(t *testing.T) {
	h := newHarness(t, params.Tiny())
	for tick := ticktime.Tick(1); tick <= 10; tick++ {
		require.NoError(t, h.ledger.Record(tick, provider.ID{1}))
	}

	// retention is four ticks: at tick 10 everything up to tick 5 goes
	meter := weight.NewMeter(2 * h.params.Costs.PruneSubmitters)
	h.sweeper.PruneSubmitters(10, meter)
	assert.Equal(t, ticktime.Tick(2), h.sweeper.LastDeletedTick())
	assert.False(t, h.ledger.Has(2, provider.ID{1}))
	assert.True(t, h.ledger.Has(3, provider.ID{1}))

	h.sweeper.PruneSubmitters(10, unlimited())
	assert.Equal(t, ticktime.Tick(5), h.sweeper.LastDeletedTick())
	assert.True(t, h.ledger.Has(6, provider.ID{1}))
	assert.Equal(t, 5, h.ledger.Ticks())

	h.sweeper.PruneSubmitters(10, unlimited())
	assert.Equal(t, ticktime.Tick(5), h.sweeper.LastDeletedTick(), "nothing else is old enough")
}

func TestRunSharesMeter(t *testing.T) {
	h := newHarness(t, params.Tiny())
	h.register(t, provider.ID{1}, h.params.StakeToChallengePeriod, 0)
	require.NoError(t, h.ledger.Record(1, provider.ID{1}))

	meter := weight.NewMeter(h.params.StepWeightLimit)
	h.sweeper.Run(8, meter)
	assert.Equal(t, h.params.RandomChallengesPerTick, h.sweeper.Slashable(provider.ID{1}))
	assert.Equal(t, ticktime.Tick(3), h.sweeper.LastDeletedTick())
	assert.LessOrEqual(t, meter.Consumed(), meter.Limit())
}

func TestClearSlashableAndSnapshot(t *testing.T) {
	h := newHarness(t, params.Tiny())
	id := provider.ID{1}
	h.register(t, id, h.params.StakeToChallengePeriod, 0)
	h.sweeper.Run(8, unlimited())

	restored := newHarness(t, params.Tiny())
	restored.sweeper.Restore(h.sweeper.Snapshot())
	assert.Equal(t, h.sweeper.Snapshot(), restored.sweeper.Snapshot())

	assert.Equal(t, h.params.RandomChallengesPerTick, h.sweeper.ClearSlashable(id))
	assert.Zero(t, h.sweeper.Slashable(id))
	assert.Equal(t, h.params.RandomChallengesPerTick, restored.sweeper.Slashable(id))
}
