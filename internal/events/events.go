// Package events defines the notifications the scheduler emits. Event is a
// closed set: every Visitor has one method per variant, so a new variant
// does not compile until each consumer decides how to handle it.
package events

import (
	"github.com/eigerco/auditor/internal/challenge"
	"github.com/eigerco/auditor/internal/crypto"
	"github.com/eigerco/auditor/internal/provider"
	"github.com/eigerco/auditor/internal/ticktime"
)

type Kind uint8

const (
	KindNewChallenge Kind = iota + 1
	KindNewChallengeSeed
	KindNewCheckpointChallenge
	KindProofAccepted
	KindSlashableProvider
	KindMutationsApplied
	KindChallengesTickerSet
)

var kindNames = map[Kind]string{
	KindNewChallenge:           "new_challenge",
	KindNewChallengeSeed:       "new_challenge_seed",
	KindNewCheckpointChallenge: "new_checkpoint_challenge",
	KindProofAccepted:          "proof_accepted",
	KindSlashableProvider:      "slashable_provider",
	KindMutationsApplied:       "mutations_applied",
	KindChallengesTickerSet:    "challenges_ticker_set",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

type Event interface {
	Kind() Kind
	Accept(v Visitor)
	sealed()
}

type Visitor interface {
	NewChallenge(e NewChallenge)
	NewChallengeSeed(e NewChallengeSeed)
	NewCheckpointChallenge(e NewCheckpointChallenge)
	ProofAccepted(e ProofAccepted)
	SlashableProvider(e SlashableProvider)
	MutationsApplied(e MutationsApplied)
	ChallengesTickerSet(e ChallengesTickerSet)
}

// NewChallenge is emitted when a custom challenge is queued.
type NewChallenge struct {
	Key             crypto.Hash `json:"key"`
	Priority        bool        `json:"priority"`
	ShouldRemoveKey bool        `json:"should_remove_key"`
}

// NewChallengeSeed is emitted on every tick with the tick's seed.
type NewChallengeSeed struct {
	Tick ticktime.Tick `json:"tick"`
	Seed crypto.Hash   `json:"seed"`
}

// NewCheckpointChallenge is emitted on every checkpoint round, including
// empty ones.
type NewCheckpointChallenge struct {
	Tick       ticktime.Tick               `json:"tick"`
	Challenges []challenge.CustomChallenge `json:"challenges"`
}

// ProofAccepted is emitted when a submission passes verification.
type ProofAccepted struct {
	Provider       provider.ID   `json:"provider"`
	LastTickProven ticktime.Tick `json:"last_tick_proven"`
	NextDeadline   ticktime.Tick `json:"next_deadline"`
}

// SlashableProvider is emitted when a provider misses its deadline.
type SlashableProvider struct {
	Provider     provider.ID   `json:"provider"`
	NextDeadline ticktime.Tick `json:"next_deadline"`
	Slashable    uint32        `json:"slashable"`
}

// MutationsApplied is emitted when an accepted proof removed keys from the
// provider's forest.
type MutationsApplied struct {
	Provider  provider.ID          `json:"provider"`
	Mutations []challenge.Mutation `json:"mutations"`
	OldRoot   crypto.Hash          `json:"old_root"`
	NewRoot   crypto.Hash          `json:"new_root"`
}

// ChallengesTickerSet is emitted when the ticker pauses or resumes.
type ChallengesTickerSet struct {
	Paused bool `json:"paused"`
	// Congestion is set when the change came from the fullness window
	// rather than an operator.
	Congestion bool `json:"congestion"`
}

func (NewChallenge) Kind() Kind           { return KindNewChallenge }
func (NewChallengeSeed) Kind() Kind       { return KindNewChallengeSeed }
func (NewCheckpointChallenge) Kind() Kind { return KindNewCheckpointChallenge }
func (ProofAccepted) Kind() Kind          { return KindProofAccepted }
func (SlashableProvider) Kind() Kind      { return KindSlashableProvider }
func (MutationsApplied) Kind() Kind       { return KindMutationsApplied }
func (ChallengesTickerSet) Kind() Kind    { return KindChallengesTickerSet }

func (e NewChallenge) Accept(v Visitor)           { v.NewChallenge(e) }
func (e NewChallengeSeed) Accept(v Visitor)       { v.NewChallengeSeed(e) }
func (e NewCheckpointChallenge) Accept(v Visitor) { v.NewCheckpointChallenge(e) }
func (e ProofAccepted) Accept(v Visitor)          { v.ProofAccepted(e) }
func (e SlashableProvider) Accept(v Visitor)      { v.SlashableProvider(e) }
func (e MutationsApplied) Accept(v Visitor)       { v.MutationsApplied(e) }
func (e ChallengesTickerSet) Accept(v Visitor)    { v.ChallengesTickerSet(e) }

func (NewChallenge) sealed()           {}
func (NewChallengeSeed) sealed()       {}
func (NewCheckpointChallenge) sealed() {}
func (ProofAccepted) sealed()          {}
func (SlashableProvider) sealed()      {}
func (MutationsApplied) sealed()       {}
func (ChallengesTickerSet) sealed()    {}
