package forest

import (
	"fmt"

	"github.com/eigerco/auditor/internal/challenge"
	"github.com/eigerco/auditor/internal/crypto"
	"github.com/eigerco/auditor/internal/proof"
)

// Verifier implements the proof capabilities for forests built by this
// package.
type Verifier struct {
	Depth           int
	ChunkChallenges uint32
	Generator       challenge.Generator
}

func NewVerifier(depth int, chunkChallenges uint32) *Verifier {
	return &Verifier{Depth: depth, ChunkChallenges: chunkChallenges, Generator: challenge.HashGenerator{}}
}

// Verifiers returns v as the full capability set.
func (v *Verifier) Verifiers() proof.Verifiers {
	return proof.Verifiers{Forest: v, Key: v, Mutations: v}
}

func (v *Verifier) VerifyForestProof(root crypto.Hash, challenges []crypto.Hash, b []byte) ([]crypto.Hash, error) {
	p, err := DecodeProof(b)
	if err != nil {
		return nil, err
	}
	if err := p.verify(root, v.Depth); err != nil {
		return nil, err
	}
	return p.resolve(challenges)
}

func (v *Verifier) VerifyKeyProof(key, seed crypto.Hash, b []byte) error {
	return verifyKeyProof(v.Generator, key, seed, v.ChunkChallenges, b)
}

func (v *Verifier) ApplyDelta(root crypto.Hash, mutations []challenge.Mutation, b []byte) (crypto.Hash, error) {
	p, err := DecodeProof(b)
	if err != nil {
		return crypto.Hash{}, err
	}
	if err := p.verify(root, v.Depth); err != nil {
		return crypto.Hash{}, fmt.Errorf("apply delta: %w", err)
	}
	return p.apply(mutations, v.Depth)
}

// Prover is the provider side: a forest and the files behind its keys.
type Prover struct {
	forest          *Forest
	files           map[crypto.Hash]*File
	generator       challenge.Generator
	chunkChallenges uint32
}

func NewProver(depth int, chunkChallenges uint32) (*Prover, error) {
	f, err := New(depth)
	if err != nil {
		return nil, err
	}
	return &Prover{
		forest:          f,
		files:           make(map[crypto.Hash]*File),
		generator:       challenge.HashGenerator{},
		chunkChallenges: chunkChallenges,
	}, nil
}

// Store adds a file to the forest.
func (p *Prover) Store(f *File) error {
	if err := p.forest.Insert(f.Key()); err != nil {
		return err
	}
	p.files[f.Key()] = f
	return nil
}

func (p *Prover) Root() crypto.Hash { return p.forest.Root() }

func (p *Prover) Contains(key crypto.Hash) bool { return p.forest.Contains(key) }

// Answer builds a submission for challenges under seed.
func (p *Prover) Answer(challenges []crypto.Hash, seed crypto.Hash) (proof.Proof, error) {
	forestProof, proven, err := p.forest.Prove(challenges)
	if err != nil {
		return proof.Proof{}, err
	}
	out := proof.Proof{ForestProof: forestProof, KeyProofs: make(map[crypto.Hash][]byte)}
	for _, key := range proven {
		if _, ok := out.KeyProofs[key]; ok {
			continue
		}
		f, ok := p.files[key]
		if !ok {
			return proof.Proof{}, fmt.Errorf("%w: no file for %s", ErrKeyNotFound, key.Short())
		}
		kp, err := f.Prove(p.generator, seed, p.chunkChallenges)
		if err != nil {
			return proof.Proof{}, err
		}
		out.KeyProofs[key] = kp
	}
	return out, nil
}

// Apply tombstones the keys removed by an accepted proof.
func (p *Prover) Apply(mutations []challenge.Mutation) error {
	for _, m := range mutations {
		if err := p.forest.Remove(m.Key); err != nil {
			return err
		}
		delete(p.files, m.Key)
	}
	return nil
}
