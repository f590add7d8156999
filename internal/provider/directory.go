package provider

import (
	"fmt"

	"github.com/eigerco/auditor/internal/crypto"
)

// Info is what the directory knows about a registered provider.
type Info struct {
	Account AccountID
	Stake   uint64
	Root    crypto.Hash
}

// Directory is an in-memory Registry.
type Directory struct {
	providers map[ID]Info
	accounts  map[AccountID]ID
}

func NewDirectory() *Directory {
	return &Directory{
		providers: make(map[ID]Info),
		accounts:  make(map[AccountID]ID),
	}
}

// Register adds a provider controlled by account.
func (d *Directory) Register(id ID, info Info) error {
	if _, ok := d.providers[id]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, id)
	}
	if _, ok := d.accounts[info.Account]; ok {
		return fmt.Errorf("%w: %s", ErrAccountInUse, info.Account)
	}
	d.providers[id] = info
	d.accounts[info.Account] = id
	return nil
}

// Deregister removes a provider. Removing an unknown provider is a no-op.
func (d *Directory) Deregister(id ID) {
	info, ok := d.providers[id]
	if !ok {
		return
	}
	delete(d.accounts, info.Account)
	delete(d.providers, id)
}

// SetStake updates a provider's stake. The challenge period follows on the
// next scheduling decision.
func (d *Directory) SetStake(id ID, stake uint64) error {
	info, ok := d.providers[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProviderNotFound, id)
	}
	info.Stake = stake
	d.providers[id] = info
	return nil
}

func (d *Directory) Info(id ID) (Info, bool) {
	info, ok := d.providers[id]
	return info, ok
}

func (d *Directory) ProviderByAccount(account AccountID) (ID, bool) {
	id, ok := d.accounts[account]
	return id, ok
}

func (d *Directory) IsProvider(id ID) bool {
	_, ok := d.providers[id]
	return ok
}

func (d *Directory) Stake(id ID) (uint64, bool) {
	info, ok := d.providers[id]
	return info.Stake, ok
}

func (d *Directory) Root(id ID) (crypto.Hash, bool) {
	info, ok := d.providers[id]
	return info.Root, ok
}

func (d *Directory) SetRoot(id ID, root crypto.Hash) error {
	info, ok := d.providers[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProviderNotFound, id)
	}
	info.Root = root
	d.providers[id] = info
	return nil
}

// DirectorySnapshot is the persisted form of a Directory.
type DirectorySnapshot struct {
	Providers map[ID]Info
}

func (d *Directory) Snapshot() DirectorySnapshot {
	providers := make(map[ID]Info, len(d.providers))
	for id, info := range d.providers {
		providers[id] = info
	}
	return DirectorySnapshot{Providers: providers}
}

func (d *Directory) Restore(s DirectorySnapshot) {
	d.providers = make(map[ID]Info, len(s.Providers))
	d.accounts = make(map[AccountID]ID, len(s.Providers))
	for id, info := range s.Providers {
		d.providers[id] = info
		d.accounts[info.Account] = id
	}
}
