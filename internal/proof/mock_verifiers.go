package proof

import (
	"github.com/stretchr/testify/mock"

	"github.com/eigerco/auditor/internal/challenge"
	"github.com/eigerco/auditor/internal/crypto"
)

func NewVerifiersMock() *VerifiersMock {
	return &VerifiersMock{}
}

// VerifiersMock implements all verifier capabilities.
type VerifiersMock struct {
	mock.Mock
}

func (v *VerifiersMock) Verifiers() Verifiers {
	return Verifiers{Forest: v, Key: v, Mutations: v}
}

func (v *VerifiersMock) VerifyForestProof(root crypto.Hash, challenges []crypto.Hash, proof []byte) ([]crypto.Hash, error) {
	args := v.MethodCalled("VerifyForestProof", root, challenges, proof)
	keys, _ := args.Get(0).([]crypto.Hash)
	return keys, args.Error(1)
}

func (v *VerifiersMock) VerifyKeyProof(key, seed crypto.Hash, proof []byte) error {
	args := v.MethodCalled("VerifyKeyProof", key, seed, proof)
	return args.Error(0)
}

func (v *VerifiersMock) ApplyDelta(root crypto.Hash, mutations []challenge.Mutation, proof []byte) (crypto.Hash, error) {
	args := v.MethodCalled("ApplyDelta", root, mutations, proof)
	return args.Get(0).(crypto.Hash), args.Error(1)
}
