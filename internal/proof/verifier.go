package proof

import (
	"github.com/eigerco/auditor/internal/challenge"
	"github.com/eigerco/auditor/internal/crypto"
)

// Proof is a provider's answer to its challenges: one forest proof covering
// every challenged key and one proof per key the forest proof resolved to.
type Proof struct {
	ForestProof []byte
	KeyProofs   map[crypto.Hash][]byte
}

// ForestVerifier checks a forest proof against a root. It returns the keys
// the proof resolves the challenges to: the key itself when present, or the
// existing neighbours that bracket it.
type ForestVerifier interface {
	VerifyForestProof(root crypto.Hash, challenges []crypto.Hash, proof []byte) ([]crypto.Hash, error)
}

// KeyVerifier checks that the provider holds the data behind key. Chunk
// challenges are derived from seed.
type KeyVerifier interface {
	VerifyKeyProof(key, seed crypto.Hash, proof []byte) error
}

// MutationApplier applies mutations to a root using the partial forest
// carried by a verified forest proof and returns the new root.
type MutationApplier interface {
	ApplyDelta(root crypto.Hash, mutations []challenge.Mutation, proof []byte) (crypto.Hash, error)
}

// Verifiers bundles the cryptographic capabilities used by the processor.
type Verifiers struct {
	Forest    ForestVerifier
	Key       KeyVerifier
	Mutations MutationApplier
}
