package challenge

import (
	"fmt"

	"github.com/eigerco/auditor/internal/crypto"
)

type MutationKind uint8

const (
	// RemoveKey deletes the key from the provider's forest.
	RemoveKey MutationKind = iota + 1
)

func (k MutationKind) String() string {
	if k == RemoveKey {
		return "remove"
	}
	return "unknown"
}

func (k MutationKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *MutationKind) UnmarshalText(text []byte) error {
	if string(text) != "remove" {
		return fmt.Errorf("unknown mutation kind %q", text)
	}
	*k = RemoveKey
	return nil
}

// Mutation is a change applied to a provider's forest as a consequence of
// a checkpoint challenge.
type Mutation struct {
	Key  crypto.Hash  `json:"key"`
	Kind MutationKind `json:"kind"`
}

// RemovalsFor returns a RemoveKey mutation for every challenge in set that
// asks for removal and whose key is in proven, in set order.
func RemovalsFor(set CheckpointSet, proven map[crypto.Hash]struct{}) []Mutation {
	var out []Mutation
	for _, c := range set {
		if !c.ShouldRemoveKey {
			continue
		}
		if _, ok := proven[c.Key]; ok {
			out = append(out, Mutation{Key: c.Key, Kind: RemoveKey})
		}
	}
	return out
}
