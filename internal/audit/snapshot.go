package audit

import (
	"fmt"

	"github.com/eigerco/auditor/internal/challenge"
	"github.com/eigerco/auditor/internal/proof"
	"github.com/eigerco/auditor/internal/provider"
	"github.com/eigerco/auditor/internal/seed"
	"github.com/eigerco/auditor/internal/slashing"
	"github.com/eigerco/auditor/internal/ticker"
)

// Snapshot is the persisted form of a State, one part per component.
type Snapshot struct {
	Ticker    ticker.Snapshot
	Seeds     seed.Snapshot
	Queue     challenge.Snapshot
	Providers provider.DirectorySnapshot
	Scheduler provider.SchedulerSnapshot
	Ledger    proof.LedgerSnapshot
	Sweeper   slashing.Snapshot
}

func (s *State) Snapshot() Snapshot {
	return Snapshot{
		Ticker:    s.ticker.Snapshot(),
		Seeds:     s.seeds.Snapshot(),
		Queue:     s.queue.Snapshot(),
		Providers: s.directory.Snapshot(),
		Scheduler: s.scheduler.Snapshot(),
		Ledger:    s.ledger.Snapshot(),
		Sweeper:   s.sweeper.Snapshot(),
	}
}

// Restore replaces every component with its part of snap and checks the
// result is consistent.
func (s *State) Restore(snap Snapshot) error {
	if err := s.ticker.Restore(snap.Ticker); err != nil {
		return fmt.Errorf("restore ticker: %w", err)
	}
	if err := s.seeds.Restore(snap.Seeds); err != nil {
		return err
	}
	s.queue.Restore(snap.Queue)
	s.directory.Restore(snap.Providers)
	if err := s.scheduler.Restore(snap.Scheduler); err != nil {
		return fmt.Errorf("restore scheduler: %w", err)
	}
	s.ledger.Restore(snap.Ledger)
	s.sweeper.Restore(snap.Sweeper)
	return s.CheckInvariants()
}
