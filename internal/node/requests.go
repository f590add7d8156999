package node

import (
	"context"

	"github.com/eigerco/auditor/internal/audit"
	"github.com/eigerco/auditor/internal/crypto"
	"github.com/eigerco/auditor/internal/proof"
	"github.com/eigerco/auditor/internal/provider"
	"github.com/eigerco/auditor/internal/ticktime"
	"github.com/eigerco/auditor/internal/weight"
)

// SubmitProof submits a proof in the current step. Its cost counts towards
// the step's fullness.
func (n *Node) SubmitProof(ctx context.Context, caller provider.AccountID, hint *provider.ID, p proof.Proof) error {
	return n.do(ctx, func(s *audit.State, meter *weight.Meter) error {
		return s.SubmitProof(meter, caller, hint, p)
	})
}

func (n *Node) Challenge(ctx context.Context, key crypto.Hash) error {
	return n.do(ctx, func(s *audit.State, _ *weight.Meter) error {
		return s.Challenge(key)
	})
}

func (n *Node) ChallengeWithPriority(ctx context.Context, key crypto.Hash, shouldRemoveKey bool) error {
	return n.do(ctx, func(s *audit.State, _ *weight.Meter) error {
		return s.ChallengeWithPriority(key, shouldRemoveKey)
	})
}

// RegisterProvider adds a provider and starts its challenge cycle. It
// returns the first deadline.
func (n *Node) RegisterProvider(ctx context.Context, id provider.ID, info provider.Info) (ticktime.Tick, error) {
	return call(ctx, n, func(s *audit.State, _ *weight.Meter) (ticktime.Tick, error) {
		if err := s.Directory().Register(id, info); err != nil {
			return 0, err
		}
		deadline, err := s.ForceInitialiseCycle(id)
		if err != nil {
			s.Directory().Deregister(id)
		}
		return deadline, err
	})
}

// DeregisterProvider stops the cycle of id and removes it.
func (n *Node) DeregisterProvider(ctx context.Context, id provider.ID) error {
	return n.do(ctx, func(s *audit.State, _ *weight.Meter) error {
		if !s.Directory().IsProvider(id) {
			return provider.ErrProviderNotFound
		}
		s.StopCycle(id)
		s.Directory().Deregister(id)
		return nil
	})
}

func (n *Node) SetStake(ctx context.Context, id provider.ID, stake uint64) error {
	return n.do(ctx, func(s *audit.State, _ *weight.Meter) error {
		return s.Directory().SetStake(id, stake)
	})
}

func (n *Node) ForceInitialiseCycle(ctx context.Context, id provider.ID) (ticktime.Tick, error) {
	return call(ctx, n, func(s *audit.State, _ *weight.Meter) (ticktime.Tick, error) {
		return s.ForceInitialiseCycle(id)
	})
}

func (n *Node) StopCycle(ctx context.Context, id provider.ID) (bool, error) {
	return call(ctx, n, func(s *audit.State, _ *weight.Meter) (bool, error) {
		return s.StopCycle(id), nil
	})
}

func (n *Node) SetPaused(ctx context.Context, paused bool) error {
	return n.do(ctx, func(s *audit.State, _ *weight.Meter) error {
		s.SetPaused(paused)
		return nil
	})
}

// ClearSlashable resets the slashable counter of id once it was slashed
// and returns the cleared value.
func (n *Node) ClearSlashable(ctx context.Context, id provider.ID) (uint32, error) {
	return call(ctx, n, func(s *audit.State, _ *weight.Meter) (uint32, error) {
		return s.ClearSlashable(id), nil
	})
}

// Status is a point in time view of one provider.
type Status struct {
	Tick      ticktime.Tick
	Record    provider.Record
	Deadline  ticktime.Tick
	Active    bool
	Slashable uint32
}

func (n *Node) ProviderStatus(ctx context.Context, id provider.ID) (Status, error) {
	return call(ctx, n, func(s *audit.State, _ *weight.Meter) (Status, error) {
		if !s.Directory().IsProvider(id) {
			return Status{}, provider.ErrProviderNotFound
		}
		st := Status{Tick: s.CurrentTick(), Slashable: s.Slashable(id)}
		st.Record, st.Active = s.Record(id)
		st.Deadline, _ = s.Deadline(id)
		return st, nil
	})
}

// Challenges returns what id must prove at the current tick.
func (n *Node) Challenges(ctx context.Context, id provider.ID) (proof.Challenges, error) {
	return call(ctx, n, func(s *audit.State, _ *weight.Meter) (proof.Challenges, error) {
		return s.ChallengesFor(id)
	})
}

func (n *Node) CurrentTick(ctx context.Context) (ticktime.Tick, error) {
	return call(ctx, n, func(s *audit.State, _ *weight.Meter) (ticktime.Tick, error) {
		return s.CurrentTick(), nil
	})
}
