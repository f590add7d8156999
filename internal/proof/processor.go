// Package proof verifies proof submissions and applies accepted ones.
package proof

import (
	"fmt"

	"github.com/eigerco/auditor/internal/challenge"
	"github.com/eigerco/auditor/internal/crypto"
	"github.com/eigerco/auditor/internal/events"
	"github.com/eigerco/auditor/internal/invariant"
	"github.com/eigerco/auditor/internal/params"
	"github.com/eigerco/auditor/internal/provider"
	"github.com/eigerco/auditor/internal/seed"
	"github.com/eigerco/auditor/internal/ticktime"
	"github.com/eigerco/auditor/pkg/log"
)

const component = "proof"

// Deps are the collaborators of a Processor.
type Deps struct {
	Params    params.Params
	Registry  provider.Registry
	Scheduler *provider.Scheduler
	Seeds     *seed.History
	Queue     *challenge.Queue
	Ledger    *Ledger
	Generator challenge.Generator
	Verifiers Verifiers
	Sink      events.Sink
}

type Processor struct {
	Deps
}

func NewProcessor(deps Deps) *Processor {
	if deps.Generator == nil {
		deps.Generator = challenge.HashGenerator{}
	}
	if deps.Sink == nil {
		deps.Sink = events.Discard
	}
	return &Processor{Deps: deps}
}

// Challenges is what a provider must answer for one challenge tick.
type Challenges struct {
	Tick ticktime.Tick
	Seed crypto.Hash
	// Keys holds the random challenges followed by the checkpoint ones.
	Keys []crypto.Hash
	// Checkpoint is the owed checkpoint set, nil when none is owed.
	Checkpoint challenge.CheckpointSet
}

// Outcome describes an accepted submission.
type Outcome struct {
	Provider     provider.ID
	ProvenFor    ticktime.Tick
	NextDeadline ticktime.Tick
	ProvenKeys   []crypto.Hash
	Mutations    []challenge.Mutation
	OldRoot      crypto.Hash
	NewRoot      crypto.Hash
}

// Resolve returns the provider a submission is for: the hint when given,
// otherwise the provider controlled by the caller.
func (p *Processor) Resolve(caller provider.AccountID, hint *provider.ID) (provider.ID, error) {
	if hint != nil {
		if !p.Registry.IsProvider(*hint) {
			return provider.ID{}, fmt.Errorf("%w: %s", ErrNotProvider, *hint)
		}
		return *hint, nil
	}
	id, ok := p.Registry.ProviderByAccount(caller)
	if !ok {
		return provider.ID{}, fmt.Errorf("%w: account %s", ErrNotProvider, caller)
	}
	return id, nil
}

// ChallengesFor returns the challenges id must answer at now. It fails with
// ErrChallengesTickNotReached outside the submission window.
func (p *Processor) ChallengesFor(id provider.ID, now ticktime.Tick) (Challenges, error) {
	record, ok := p.Scheduler.Record(id)
	if !ok {
		return Challenges{}, fmt.Errorf("%w: %s", ErrNoRecordOfLastSubmittedProof, id)
	}

	challengeTick := record.NextTickToSubmitProofFor
	if now < challengeTick {
		return Challenges{}, fmt.Errorf("%w: challenge tick %d, current tick %d",
			ErrChallengesTickNotReached, challengeTick, now)
	}
	if uint64(now) >= uint64(challengeTick)+uint64(p.Params.ChallengeTicksTolerance) {
		// only reachable while the deadline sweep is behind
		log.Scheduler.Error().
			Str("provider", id.Short()).
			Uint32("tick", uint32(now)).
			Uint32("challenge_tick", uint32(challengeTick)).
			Msg("submission after the tolerance window, provider should have been marked slashable")
		return Challenges{}, fmt.Errorf("%w: window for challenge tick %d closed",
			ErrChallengesTickNotReached, challengeTick)
	}

	if now-challengeTick >= p.Params.ChallengeHistoryLength {
		invariant.Panicf(component, "challenge tick %d older than retained history at %d", challengeTick, now)
	}
	s, ok := p.Seeds.Get(challengeTick)
	if !ok {
		invariant.Panicf(component, "seed for challenge tick %d missing at %d", challengeTick, now)
	}

	out := Challenges{
		Tick: challengeTick,
		Seed: s,
		Keys: p.Generator.Generate(s, crypto.Hash(id), p.Params.RandomChallengesPerTick),
	}

	last := p.Queue.LastCheckpointTick()
	if last > record.LastTickProven && last <= challengeTick {
		set, ok := p.Queue.Checkpoint(last)
		if !ok {
			invariant.Panicf(component, "checkpoint set for tick %d missing", last)
		}
		out.Checkpoint = set
		out.Keys = append(out.Keys, set.Keys()...)
	}
	return out, nil
}

// Submit verifies proof and, when it is valid, reschedules the provider,
// applies owed removals and records the submitter. Nothing is changed when
// an error is returned.
func (p *Processor) Submit(now ticktime.Tick, caller provider.AccountID, hint *provider.ID, proof Proof) (Outcome, error) {
	id, err := p.Resolve(caller, hint)
	if err != nil {
		return Outcome{}, err
	}

	challenges, err := p.ChallengesFor(id, now)
	if err != nil {
		return Outcome{}, err
	}

	root, ok := p.Registry.Root(id)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s has no root", ErrNotProvider, id)
	}

	provenKeys, err := p.Verifiers.Forest.VerifyForestProof(root, challenges.Keys, proof.ForestProof)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrForestProofVerificationFailed, err)
	}
	provenKeys, proven := dedupe(provenKeys)

	if err := checkKeyProofs(provenKeys, proof.KeyProofs); err != nil {
		return Outcome{}, err
	}
	for _, key := range provenKeys {
		if err := p.Verifiers.Key.VerifyKeyProof(key, challenges.Seed, proof.KeyProofs[key]); err != nil {
			return Outcome{}, fmt.Errorf("%w: key %s: %w", ErrKeyProofVerificationFailed, key.Short(), err)
		}
	}

	newRoot := root
	mutations := challenge.RemovalsFor(challenges.Checkpoint, proven)
	if len(mutations) > 0 {
		newRoot, err = p.Verifiers.Mutations.ApplyDelta(root, mutations, proof.ForestProof)
		if err != nil {
			return Outcome{}, fmt.Errorf("%w: %w", ErrFailedToApplyDelta, err)
		}
	}

	if !p.Ledger.CanRecord(now, id) {
		return Outcome{}, fmt.Errorf("%w: %d", ErrTooManyValidProofSubmitters, now)
	}
	if _, _, err := p.Scheduler.PlanAfterProof(id, challenges.Tick); err != nil {
		return Outcome{}, err
	}

	// every check passed, commit
	if newRoot != root {
		if err := p.Registry.SetRoot(id, newRoot); err != nil {
			invariant.Panicf(component, "set root of verified provider %s: %v", id, err)
		}
	}
	deadline, err := p.Scheduler.RescheduleAfterProof(id, challenges.Tick)
	if err != nil {
		invariant.Panicf(component, "reschedule after planned proof of %s: %v", id, err)
	}
	if err := p.Ledger.Record(now, id); err != nil {
		invariant.Panicf(component, "record submitter %s: %v", id, err)
	}

	out := Outcome{
		Provider:     id,
		ProvenFor:    challenges.Tick,
		NextDeadline: deadline,
		ProvenKeys:   provenKeys,
		Mutations:    mutations,
		OldRoot:      root,
		NewRoot:      newRoot,
	}
	if len(mutations) > 0 {
		p.Sink.Emit(events.MutationsApplied{
			Provider:  id,
			Mutations: mutations,
			OldRoot:   root,
			NewRoot:   newRoot,
		})
	}
	p.Sink.Emit(events.ProofAccepted{Provider: id, LastTickProven: challenges.Tick, NextDeadline: deadline})

	log.Scheduler.Debug().
		Str("provider", id.Short()).
		Uint32("tick", uint32(now)).
		Uint32("proven_for", uint32(challenges.Tick)).
		Uint32("deadline", uint32(deadline)).
		Int("keys", len(provenKeys)).
		Msg("proof accepted")
	return out, nil
}

// checkKeyProofs requires exactly one key proof per proven key.
func checkKeyProofs(provenKeys []crypto.Hash, keyProofs map[crypto.Hash][]byte) error {
	if len(provenKeys) > 0 && len(keyProofs) == 0 {
		return ErrEmptyKeyProofs
	}
	if len(keyProofs) != len(provenKeys) {
		return fmt.Errorf("%w: got %d, expected %d", ErrIncorrectNumberOfKeyProofs, len(keyProofs), len(provenKeys))
	}
	for _, key := range provenKeys {
		if _, ok := keyProofs[key]; !ok {
			return fmt.Errorf("%w: %s", ErrKeyProofNotFound, key.Short())
		}
	}
	return nil
}

func dedupe(keys []crypto.Hash) ([]crypto.Hash, map[crypto.Hash]struct{}) {
	set := make(map[crypto.Hash]struct{}, len(keys))
	out := make([]crypto.Hash, 0, len(keys))
	for _, k := range keys {
		if _, ok := set[k]; ok {
			continue
		}
		set[k] = struct{}{}
		out = append(out, k)
	}
	return out, set
}
