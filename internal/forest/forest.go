// Package forest is a reference implementation of the proof capabilities:
// a constant depth merkle forest of file keys, and chunk proofs for the
// files behind those keys.
//
// Leaves are file keys in ascending order. Removing a key replaces its leaf
// with a tombstone in place, so a removal only changes the path of that
// leaf and can be applied from a proof without the rest of the forest.
package forest

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/eigerco/auditor/internal/crypto"
	"github.com/eigerco/auditor/pkg/codec"
)

const DefaultDepth = 16

var (
	ErrForestFull    = errors.New("forest is full")
	ErrKeyExists     = errors.New("key already in forest")
	ErrKeyNotFound   = errors.New("key not in forest")
	ErrInvalidDepth  = errors.New("invalid forest depth")
	ErrInvalidProof  = errors.New("invalid forest proof")
	ErrRootMismatch  = errors.New("forest proof does not match root")
	ErrNoResponse    = errors.New("challenge has no response in forest proof")
	ErrCannotMutate  = errors.New("mutation target not proven live")
	ErrUnsupportedOp = errors.New("unsupported mutation")
)

type leaf struct {
	key  crypto.Hash
	live bool
}

// Forest is the prover side: it holds every leaf.
type Forest struct {
	depth  int
	leaves []leaf
}

func New(depth int) (*Forest, error) {
	if depth < 1 || depth > 63 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDepth, depth)
	}
	return &Forest{depth: depth}, nil
}

func (f *Forest) Depth() int { return f.depth }

// Size is the number of leaf slots in use, tombstones included.
func (f *Forest) Size() int { return len(f.leaves) }

// Insert adds key in sorted position. A tombstoned key cannot come back.
func (f *Forest) Insert(key crypto.Hash) error {
	if uint64(len(f.leaves)) >= uint64(1)<<f.depth {
		return ErrForestFull
	}
	i := f.search(key)
	if i < len(f.leaves) && f.leaves[i].key == key {
		return fmt.Errorf("%w: %s", ErrKeyExists, key.Short())
	}
	f.leaves = append(f.leaves, leaf{})
	copy(f.leaves[i+1:], f.leaves[i:])
	f.leaves[i] = leaf{key: key, live: true}
	return nil
}

// Remove tombstones key.
func (f *Forest) Remove(key crypto.Hash) error {
	i := f.search(key)
	if i == len(f.leaves) || f.leaves[i].key != key || !f.leaves[i].live {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, key.Short())
	}
	f.leaves[i].live = false
	return nil
}

// Contains reports whether key is a live leaf.
func (f *Forest) Contains(key crypto.Hash) bool {
	i := f.search(key)
	return i < len(f.leaves) && f.leaves[i].key == key && f.leaves[i].live
}

// Root commits to the size and the merkle root of the leaves.
func (f *Forest) Root() crypto.Hash {
	levels := merkleLevels(f.leafHashes(), f.depth)
	return commit(uint64(len(f.leaves)), levels[f.depth][0])
}

func (f *Forest) search(key crypto.Hash) int {
	return sort.Search(len(f.leaves), func(i int) bool {
		return bytes.Compare(f.leaves[i].key[:], key[:]) >= 0
	})
}

func (f *Forest) leafHashes() []crypto.Hash {
	hashes := make([]crypto.Hash, len(f.leaves))
	for i, l := range f.leaves {
		hashes[i] = leafHash(l.key, l.live)
	}
	return hashes
}

// Prove answers challenges. Each challenge is answered by the leaf holding
// it or by the adjacent leaves that bracket it. It returns the encoded
// proof and the live keys it proves.
func (f *Forest) Prove(challenges []crypto.Hash) ([]byte, []crypto.Hash, error) {
	levels := merkleLevels(f.leafHashes(), f.depth)

	indices := map[uint64]struct{}{}
	for _, c := range challenges {
		for _, i := range f.responseIndices(c) {
			indices[i] = struct{}{}
		}
	}
	sorted := make([]uint64, 0, len(indices))
	for i := range indices {
		sorted = append(sorted, i)
	}
	sort.Slice(sorted, func(a, b int) bool { return sorted[a] < sorted[b] })

	p := Proof{Size: uint64(len(f.leaves)), Leaves: make([]LeafProof, 0, len(sorted))}
	for _, i := range sorted {
		l := f.leaves[i]
		p.Leaves = append(p.Leaves, LeafProof{
			Index: i,
			Key:   l.key,
			Live:  l.live,
			Path:  authPath(levels, i),
		})
	}

	b, err := codec.Marshal(p)
	if err != nil {
		return nil, nil, fmt.Errorf("encode forest proof: %w", err)
	}
	proven, err := p.resolve(challenges)
	if err != nil {
		return nil, nil, err
	}
	return b, proven, nil
}

func (f *Forest) responseIndices(c crypto.Hash) []uint64 {
	n := len(f.leaves)
	if n == 0 {
		return nil
	}
	i := f.search(c)
	switch {
	case i < n && f.leaves[i].key == c:
		return []uint64{uint64(i)}
	case i == 0:
		return []uint64{0}
	case i == n:
		return []uint64{uint64(n - 1)}
	default:
		return []uint64{uint64(i - 1), uint64(i)}
	}
}
