package audit

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/auditor/internal/challenge"
	"github.com/eigerco/auditor/internal/crypto"
	"github.com/eigerco/auditor/internal/events"
	"github.com/eigerco/auditor/internal/forest"
	"github.com/eigerco/auditor/internal/params"
	"github.com/eigerco/auditor/internal/proof"
	"github.com/eigerco/auditor/internal/provider"
	"github.com/eigerco/auditor/internal/testutils"
	"github.com/eigerco/auditor/internal/ticktime"
	"github.com/eigerco/auditor/internal/weight"
	"github.com/eigerco/auditor/pkg/codec"
)

const (
	testDepth       = 8
	chunkChallenges = 2
)

var (
	testProvider = provider.ID{1}
	testAccount  = provider.AccountID{0xa1}
)

type harness struct {
	params   params.Params
	state    *State
	prover   *forest.Prover
	recorder *events.Recorder
	files    []crypto.Hash
}

// newHarness registers one provider holding three files and starts its
// cycle at tick zero: first challenge tick 5, deadline 8.
func newHarness(t *testing.T, p params.Params) *harness {
	t.Helper()
	recorder := &events.Recorder{}
	state, err := New(p,
		WithVerifiers(forest.NewVerifier(testDepth, chunkChallenges).Verifiers()),
		WithSink(recorder),
	)
	require.NoError(t, err)

	prover, err := forest.NewProver(testDepth, chunkChallenges)
	require.NoError(t, err)
	h := &harness{params: p, state: state, prover: prover, recorder: recorder}
	for i := 0; i < 3; i++ {
		data := []byte(fmt.Sprintf("contents of file %d", i))
		f, err := forest.NewFile(crypto.Hash(testAccount), fmt.Sprintf("/data/%d", i), data, 8)
		require.NoError(t, err)
		require.NoError(t, prover.Store(f))
		h.files = append(h.files, f.Key())
	}

	require.NoError(t, state.Directory().Register(testProvider, provider.Info{
		Account: testAccount,
		Stake:   1000,
		Root:    prover.Root(),
	}))
	deadline, err := state.ForceInitialiseCycle(testProvider)
	require.NoError(t, err)
	require.Equal(t, ticktime.Tick(8), deadline)
	return h
}

func (h *harness) step(t *testing.T) {
	t.Helper()
	h.state.Step(weight.NewMeter(h.params.StepWeightLimit))
	require.NoError(t, h.state.CheckInvariants())
}

func (h *harness) stepTo(t *testing.T, tick ticktime.Tick) {
	t.Helper()
	for h.state.CurrentTick() < tick {
		h.step(t)
	}
}

func (h *harness) submit(t *testing.T) error {
	t.Helper()
	challenges, err := h.state.ChallengesFor(testProvider)
	require.NoError(t, err)
	p, err := h.prover.Answer(challenges.Keys, challenges.Seed)
	require.NoError(t, err)
	return h.state.SubmitProof(weight.NewMeter(h.params.StepWeightLimit), testAccount, nil, p)
}

func TestState_RequiresVerifiers(t *testing.T) {
	_, err := New(params.Tiny())
	assert.ErrorIs(t, err, ErrMissingVerifiers)

	bad := params.Tiny()
	bad.ChallengeTicksTolerance = 0
	_, err = New(bad, WithVerifiers(forest.NewVerifier(testDepth, 1).Verifiers()))
	assert.ErrorIs(t, err, params.ErrInvalidParams)
}

func TestState_StepEmitsSeeds(t *testing.T) {
	h := newHarness(t, params.Tiny())
	h.stepTo(t, 4)

	seeds := events.Filter[events.NewChallengeSeed](h.recorder.Events)
	require.Len(t, seeds, 4)
	for i, e := range seeds {
		assert.Equal(t, ticktime.Tick(i+1), e.Tick)
		s, ok := h.state.Seed(e.Tick)
		require.True(t, ok)
		assert.Equal(t, s, e.Seed)
	}

	checkpoints := events.Filter[events.NewCheckpointChallenge](h.recorder.Events)
	require.Len(t, checkpoints, 1)
	assert.Equal(t, ticktime.Tick(4), checkpoints[0].Tick)
	assert.Empty(t, checkpoints[0].Challenges)
}

func TestState_ProofRoundTrip(t *testing.T) {
	h := newHarness(t, params.Tiny())
	h.stepTo(t, 5)

	require.NoError(t, h.submit(t))

	record, ok := h.state.Record(testProvider)
	require.True(t, ok)
	assert.Equal(t, provider.Record{LastTickProven: 5, NextTickToSubmitProofFor: 10}, record)
	deadline, ok := h.state.Deadline(testProvider)
	require.True(t, ok)
	assert.Equal(t, ticktime.Tick(13), deadline)
	assert.Equal(t, []provider.ID{testProvider}, h.state.ValidSubmitters(5))

	accepted := events.Filter[events.ProofAccepted](h.recorder.Events)
	require.Len(t, accepted, 1)
	assert.Equal(t, events.ProofAccepted{Provider: testProvider, LastTickProven: 5, NextDeadline: 13}, accepted[0])

	// a second proof for the same tick is too early for the next one
	err := h.state.SubmitProof(weight.NewMeter(h.params.StepWeightLimit), testAccount, nil, proof.Proof{})
	assert.ErrorIs(t, err, proof.ErrChallengesTickNotReached)

	// the proven deadline never fires
	h.stepTo(t, 9)
	assert.Zero(t, h.state.Slashable(testProvider))
}

func TestState_MissedProofMarksSlashable(t *testing.T) {
	h := newHarness(t, params.Tiny())
	h.stepTo(t, 7)
	assert.Zero(t, h.state.Slashable(testProvider))

	h.step(t)
	assert.Equal(t, h.params.RandomChallengesPerTick, h.state.Slashable(testProvider))

	record, ok := h.state.Record(testProvider)
	require.True(t, ok)
	assert.Equal(t, provider.Record{LastTickProven: 0, NextTickToSubmitProofFor: 10}, record)
	deadline, ok := h.state.Deadline(testProvider)
	require.True(t, ok)
	assert.Equal(t, ticktime.Tick(13), deadline)

	slashable := events.Filter[events.SlashableProvider](h.recorder.Events)
	require.Len(t, slashable, 1)
	assert.Equal(t, events.SlashableProvider{
		Provider:     testProvider,
		NextDeadline: 13,
		Slashable:    h.params.RandomChallengesPerTick,
	}, slashable[0])

	// the provider catches up on the rescheduled tick
	h.stepTo(t, 10)
	require.NoError(t, h.submit(t))
	assert.Equal(t, h.params.RandomChallengesPerTick, h.state.ClearSlashable(testProvider))
	assert.Zero(t, h.state.Slashable(testProvider))
}

func TestState_CheckpointRemoval(t *testing.T) {
	h := newHarness(t, params.Tiny())
	target := h.files[1]
	require.NoError(t, h.state.ChallengeWithPriority(target, true))
	require.NoError(t, h.state.Challenge(crypto.Hash{0xee}))

	normal, priority := h.state.QueueLen()
	assert.Equal(t, 1, normal)
	assert.Equal(t, 1, priority)

	h.stepTo(t, 5)
	set, ok := h.state.Checkpoint(4)
	require.True(t, ok)
	require.Len(t, set, 2)
	assert.Equal(t, target, set[0].Key, "priority challenges drain first")
	assert.True(t, set[0].ShouldRemoveKey)

	challenges, err := h.state.ChallengesFor(testProvider)
	require.NoError(t, err)
	assert.Contains(t, challenges.Keys, target)

	oldRoot := h.prover.Root()
	require.NoError(t, h.submit(t))

	applied := events.Filter[events.MutationsApplied](h.recorder.Events)
	require.Len(t, applied, 1)
	require.Len(t, applied[0].Mutations, 1)
	assert.Equal(t, target, applied[0].Mutations[0].Key)
	assert.Equal(t, oldRoot, applied[0].OldRoot)

	require.NoError(t, h.prover.Apply(applied[0].Mutations))
	root, ok := h.state.Directory().Root(testProvider)
	require.True(t, ok)
	assert.Equal(t, h.prover.Root(), root)
	assert.Equal(t, applied[0].NewRoot, root)
	assert.False(t, h.prover.Contains(target))
}

func TestState_Congestion(t *testing.T) {
	p := params.Tiny()
	h := newHarness(t, p)

	full := func() {
		meter := weight.NewMeter(p.StepWeightLimit)
		meter.Consume(950)
		h.state.Step(meter)
	}
	for i := 0; i < int(p.BlockFullnessPeriod); i++ {
		full()
	}
	assert.True(t, h.state.Paused())
	assert.Equal(t, ticktime.Tick(3), h.state.CurrentTick(), "the step that pauses does not advance")

	h.step(t)
	h.step(t)
	assert.Equal(t, ticktime.Tick(3), h.state.CurrentTick())
	h.step(t)
	assert.False(t, h.state.Paused())
	assert.Equal(t, ticktime.Tick(4), h.state.CurrentTick())

	set := events.Filter[events.ChallengesTickerSet](h.recorder.Events)
	assert.Equal(t, []events.ChallengesTickerSet{
		{Paused: true, Congestion: true},
		{Paused: false, Congestion: true},
	}, set)
}

func TestState_ManualPause(t *testing.T) {
	h := newHarness(t, params.Tiny())
	h.step(t)

	h.state.SetPaused(true)
	h.state.SetPaused(true)
	h.step(t)
	h.step(t)
	assert.Equal(t, ticktime.Tick(1), h.state.CurrentTick())

	h.state.SetPaused(false)
	h.step(t)
	assert.Equal(t, ticktime.Tick(2), h.state.CurrentTick())

	set := events.Filter[events.ChallengesTickerSet](h.recorder.Events)
	assert.Equal(t, []events.ChallengesTickerSet{{Paused: true}, {Paused: false}}, set)
}

func TestState_CycleManagement(t *testing.T) {
	h := newHarness(t, params.Tiny())

	period, err := h.state.ChallengePeriod(testProvider)
	require.NoError(t, err)
	assert.Equal(t, h.params.MinChallengePeriod, period)
	stake, ok := h.state.Stake(testProvider)
	require.True(t, ok)
	assert.Equal(t, uint64(1000), stake)

	_, err = h.state.ForceInitialiseCycle(provider.ID{9})
	assert.ErrorIs(t, err, proof.ErrNotProvider)

	assert.True(t, h.state.StopCycle(testProvider))
	assert.False(t, h.state.StopCycle(testProvider))
	h.stepTo(t, 10)
	assert.Zero(t, h.state.Slashable(testProvider))
}

func TestState_SnapshotRestore(t *testing.T) {
	h := newHarness(t, params.Tiny())
	require.NoError(t, h.state.ChallengeWithPriority(h.files[0], false))
	h.stepTo(t, 5)
	require.NoError(t, h.submit(t))
	h.stepTo(t, 9)

	b, err := codec.Marshal(h.state.Snapshot())
	require.NoError(t, err)

	var snap Snapshot
	require.NoError(t, codec.Unmarshal(b, &snap))

	restored, err := New(h.params, WithVerifiers(forest.NewVerifier(testDepth, chunkChallenges).Verifiers()))
	require.NoError(t, err)
	require.NoError(t, restored.Restore(snap))

	again, err := codec.Marshal(restored.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, b, again)

	// both continue identically
	for i := 0; i < 6; i++ {
		h.step(t)
		restored.Step(weight.NewMeter(h.params.StepWeightLimit))
	}
	want, err := codec.Marshal(h.state.Snapshot())
	require.NoError(t, err)
	got, err := codec.Marshal(restored.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestState_ChallengeQueueOverflow(t *testing.T) {
	h := newHarness(t, params.Tiny())
	for _, key := range testutils.RandomHashes(t, int(h.params.ChallengesQueueLength)) {
		require.NoError(t, h.state.Challenge(key))
	}
	assert.ErrorIs(t, h.state.Challenge(testutils.RandomHash(t)), challenge.ErrChallengesQueueOverflow)

	for _, key := range testutils.RandomHashes(t, int(h.params.PriorityChallengesQueueLength)) {
		require.NoError(t, h.state.ChallengeWithPriority(key, true))
	}
	assert.ErrorIs(t, h.state.ChallengeWithPriority(testutils.RandomHash(t), false), challenge.ErrPriorityChallengesQueueOverflow)

	queued := events.Filter[events.NewChallenge](h.recorder.Events)
	assert.Len(t, queued, int(h.params.ChallengesQueueLength+h.params.PriorityChallengesQueueLength))

	// each checkpoint round drains at most MaxCustomChallengesPerTick
	h.stepTo(t, h.params.CheckpointChallengePeriod)
	normal, priority := h.state.QueueLen()
	assert.Equal(t, int(h.params.ChallengesQueueLength+h.params.PriorityChallengesQueueLength-h.params.MaxCustomChallengesPerTick), normal+priority)
}
