// Package provider schedules storage providers: it derives each provider's
// challenge period from its stake and keeps the deadline index the slashing
// sweep walks.
package provider

import (
	"github.com/eigerco/auditor/internal/crypto"
	"github.com/eigerco/auditor/internal/ticktime"
)

// ID identifies a storage provider.
type ID crypto.Hash

func (id ID) String() string { return crypto.Hash(id).String() }

func (id ID) Short() string { return crypto.Hash(id).Short() }

func (id ID) MarshalText() ([]byte, error) { return crypto.Hash(id).MarshalText() }

func (id *ID) UnmarshalText(text []byte) error { return (*crypto.Hash)(id).UnmarshalText(text) }

// AccountID identifies the account that controls a provider.
type AccountID crypto.Hash

func (a AccountID) String() string { return crypto.Hash(a).String() }

func (a AccountID) MarshalText() ([]byte, error) { return crypto.Hash(a).MarshalText() }

func (a *AccountID) UnmarshalText(text []byte) error {
	return (*crypto.Hash)(a).UnmarshalText(text)
}

// Record is a provider's proof submission record.
type Record struct {
	LastTickProven           ticktime.Tick
	NextTickToSubmitProofFor ticktime.Tick
}

// Registry is the view of the providers registry the scheduler relies on.
type Registry interface {
	// ProviderByAccount resolves the provider controlled by an account.
	ProviderByAccount(account AccountID) (ID, bool)
	IsProvider(id ID) bool
	Stake(id ID) (uint64, bool)
	Root(id ID) (crypto.Hash, bool)
	SetRoot(id ID, root crypto.Hash) error
}
