// Package params holds the tunables of the audit scheduler.
package params

import (
	"errors"
	"fmt"

	"github.com/eigerco/auditor/internal/ticktime"
	"github.com/eigerco/auditor/internal/weight"
)

var ErrInvalidParams = errors.New("invalid params")

// Costs are the weights charged for each unit of metered work.
type Costs struct {
	// SubmitProof is charged for every submission, accepted or not.
	SubmitProof weight.Weight `yaml:"submit_proof"`
	// SlashProvider is charged per provider handled by the deadline sweep.
	SlashProvider weight.Weight `yaml:"slash_provider"`
	// AdvanceCheckTick is charged each time the deadline sweep moves to the
	// next tick.
	AdvanceCheckTick weight.Weight `yaml:"advance_check_tick"`
	// PruneSubmitters is charged per submitters set deleted.
	PruneSubmitters weight.Weight `yaml:"prune_submitters"`
}

type Params struct {
	// (H) Number of ticks a seed stays retrievable.
	ChallengeHistoryLength ticktime.Tick `yaml:"challenge_history_length"`
	// Capacity of the normal custom challenge queue.
	ChallengesQueueLength uint32 `yaml:"challenges_queue_length"`
	// Capacity of the priority custom challenge queue.
	PriorityChallengesQueueLength uint32 `yaml:"priority_challenges_queue_length"`
	// Ticks between checkpoint rounds.
	CheckpointChallengePeriod ticktime.Tick `yaml:"checkpoint_challenge_period"`
	// Maximum number of custom challenges drained per checkpoint round.
	MaxCustomChallengesPerTick uint32 `yaml:"max_custom_challenges_per_tick"`
	// Number of random keys each provider must answer per proof.
	RandomChallengesPerTick uint32 `yaml:"random_challenges_per_tick"`
	// Stake that earns the minimum challenge period.
	StakeToChallengePeriod uint64        `yaml:"stake_to_challenge_period"`
	MinChallengePeriod     ticktime.Tick `yaml:"min_challenge_period"`
	// Grace window in ticks after a challenge tick.
	ChallengeTicksTolerance ticktime.Tick `yaml:"challenge_ticks_tolerance"`
	// Number of trailing steps considered by the congestion check.
	BlockFullnessPeriod uint32 `yaml:"block_fullness_period"`
	// Share of the step budget kept in reserve when deciding fullness.
	BlockFullnessHeadroom Perbill `yaml:"block_fullness_headroom"`
	// Minimum share of not full steps that keeps the clock running.
	MinNotFullBlocksRatio Perbill `yaml:"min_not_full_blocks_ratio"`
	// Providers handled per deadline sweep pass over a single tick.
	MaxSlashableProvidersPerTick uint32 `yaml:"max_slashable_providers_per_tick"`
	// Capacity of a tick's valid submitters set.
	MaxSubmittersPerTick uint32 `yaml:"max_submitters_per_tick"`
	// Ticks a valid submitters set is retained.
	TargetTicksStorageOfSubmitters ticktime.Tick `yaml:"target_ticks_storage_of_submitters"`
	// Budget of a single step.
	StepWeightLimit weight.Weight `yaml:"step_weight_limit"`
	Costs           Costs         `yaml:"costs"`
}

// Default returns the production parameter set.
func Default() Params {
	return Params{
		ChallengeHistoryLength:         100,
		ChallengesQueueLength:          100,
		PriorityChallengesQueueLength:  100,
		CheckpointChallengePeriod:      30,
		MaxCustomChallengesPerTick:     10,
		RandomChallengesPerTick:        10,
		StakeToChallengePeriod:         10_000_000,
		MinChallengePeriod:             30,
		ChallengeTicksTolerance:        20,
		BlockFullnessPeriod:            10,
		BlockFullnessHeadroom:          PerbillFromPercent(10),
		MinNotFullBlocksRatio:          PerbillFromPercent(50),
		MaxSlashableProvidersPerTick:   1000,
		MaxSubmittersPerTick:           1000,
		TargetTicksStorageOfSubmitters: 3,
		StepWeightLimit:                2_000_000,
		Costs: Costs{
			SubmitProof:      10_000,
			SlashProvider:    1_000,
			AdvanceCheckTick: 100,
			PruneSubmitters:  500,
		},
	}
}

// Tiny returns a small parameter set for tests and local runs.
func Tiny() Params {
	return Params{
		ChallengeHistoryLength:         16,
		ChallengesQueueLength:          3,
		PriorityChallengesQueueLength:  3,
		CheckpointChallengePeriod:      4,
		MaxCustomChallengesPerTick:     2,
		RandomChallengesPerTick:        2,
		StakeToChallengePeriod:         1000,
		MinChallengePeriod:             5,
		ChallengeTicksTolerance:        3,
		BlockFullnessPeriod:            4,
		BlockFullnessHeadroom:          PerbillFromPercent(10),
		MinNotFullBlocksRatio:          PerbillFromPercent(50),
		MaxSlashableProvidersPerTick:   4,
		MaxSubmittersPerTick:           4,
		TargetTicksStorageOfSubmitters: 4,
		StepWeightLimit:                1000,
		Costs: Costs{
			SubmitProof:      100,
			SlashProvider:    10,
			AdvanceCheckTick: 1,
			PruneSubmitters:  5,
		},
	}
}

// Preset returns a named parameter set.
func Preset(name string) (Params, error) {
	switch name {
	case "", "default":
		return Default(), nil
	case "tiny":
		return Tiny(), nil
	}
	return Params{}, fmt.Errorf("%w: unknown preset %q", ErrInvalidParams, name)
}

// CheckpointRetention is the age after which a checkpoint set is evicted.
func (p Params) CheckpointRetention() ticktime.Tick {
	return 2 * p.CheckpointChallengePeriod
}

// NotFullThreshold is the number of not full steps at or below which the
// clock pauses.
func (p Params) NotFullThreshold() uint32 {
	return uint32(p.MinNotFullBlocksRatio.MulFloor(uint64(p.BlockFullnessPeriod)))
}

func (p Params) Validate() error {
	switch {
	case p.ChallengeTicksTolerance == 0:
		return fmt.Errorf("%w: challenge ticks tolerance must be positive", ErrInvalidParams)
	case p.ChallengeHistoryLength <= p.ChallengeTicksTolerance:
		return fmt.Errorf("%w: challenge history length %d must exceed tolerance %d",
			ErrInvalidParams, p.ChallengeHistoryLength, p.ChallengeTicksTolerance)
	case p.CheckpointChallengePeriod <= p.ChallengeTicksTolerance:
		return fmt.Errorf("%w: checkpoint challenge period %d must exceed tolerance %d",
			ErrInvalidParams, p.CheckpointChallengePeriod, p.ChallengeTicksTolerance)
	case p.MinChallengePeriod == 0:
		return fmt.Errorf("%w: min challenge period must be positive", ErrInvalidParams)
	case p.StakeToChallengePeriod == 0:
		return fmt.Errorf("%w: stake to challenge period must be positive", ErrInvalidParams)
	case p.ChallengesQueueLength == 0 || p.PriorityChallengesQueueLength == 0:
		return fmt.Errorf("%w: challenge queues must have capacity", ErrInvalidParams)
	case p.MaxCustomChallengesPerTick == 0:
		return fmt.Errorf("%w: max custom challenges per tick must be positive", ErrInvalidParams)
	case p.RandomChallengesPerTick == 0:
		return fmt.Errorf("%w: random challenges per tick must be positive", ErrInvalidParams)
	case p.BlockFullnessPeriod == 0:
		return fmt.Errorf("%w: block fullness period must be positive", ErrInvalidParams)
	case !p.BlockFullnessHeadroom.Valid() || !p.MinNotFullBlocksRatio.Valid():
		return fmt.Errorf("%w: ratios must not exceed one", ErrInvalidParams)
	case p.MaxSlashableProvidersPerTick == 0:
		return fmt.Errorf("%w: max slashable providers per tick must be positive", ErrInvalidParams)
	case p.MaxSubmittersPerTick == 0:
		return fmt.Errorf("%w: max submitters per tick must be positive", ErrInvalidParams)
	case p.TargetTicksStorageOfSubmitters == 0:
		return fmt.Errorf("%w: submitters retention must be positive", ErrInvalidParams)
	case p.StepWeightLimit == 0:
		return fmt.Errorf("%w: step weight limit must be positive", ErrInvalidParams)
	}
	return nil
}
