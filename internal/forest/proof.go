package forest

import (
	"bytes"
	"fmt"

	"github.com/eigerco/auditor/internal/challenge"
	"github.com/eigerco/auditor/internal/crypto"
	"github.com/eigerco/auditor/pkg/codec"
)

// LeafProof is one leaf and its authentication path.
type LeafProof struct {
	Index uint64
	Key   crypto.Hash
	Live  bool
	Path  []crypto.Hash
}

// Proof is a partial forest: the leaves answering a set of challenges,
// ordered by index.
type Proof struct {
	Size   uint64
	Leaves []LeafProof
}

func DecodeProof(b []byte) (Proof, error) {
	var p Proof
	if err := codec.Unmarshal(b, &p); err != nil {
		return Proof{}, fmt.Errorf("%w: %w", ErrInvalidProof, err)
	}
	return p, nil
}

// verify checks every leaf path against root and that leaves are strictly
// ordered by both index and key, which makes adjacent indices a proof that
// no key lies between them.
func (p Proof) verify(root crypto.Hash, depth int) error {
	if depth < 1 || depth > 63 {
		return fmt.Errorf("%w: %d", ErrInvalidDepth, depth)
	}
	if p.Size > uint64(1)<<depth {
		return fmt.Errorf("%w: size %d exceeds depth %d", ErrInvalidProof, p.Size, depth)
	}
	if len(p.Leaves) == 0 {
		if p.Size != 0 || commit(0, zeroHashes(depth)[depth]) != root {
			return ErrRootMismatch
		}
		return nil
	}

	var merkleRoot crypto.Hash
	for i, l := range p.Leaves {
		if l.Index >= p.Size {
			return fmt.Errorf("%w: leaf index %d outside size %d", ErrInvalidProof, l.Index, p.Size)
		}
		if len(l.Path) != depth {
			return fmt.Errorf("%w: path length %d, expected %d", ErrInvalidProof, len(l.Path), depth)
		}
		if i > 0 {
			prev := p.Leaves[i-1]
			if l.Index <= prev.Index || bytes.Compare(l.Key[:], prev.Key[:]) <= 0 {
				return fmt.Errorf("%w: leaves out of order", ErrInvalidProof)
			}
		}
		r := rootFromPath(leafHash(l.Key, l.Live), l.Index, l.Path)
		if i > 0 && r != merkleRoot {
			return ErrRootMismatch
		}
		merkleRoot = r
	}
	if commit(p.Size, merkleRoot) != root {
		return ErrRootMismatch
	}
	return nil
}

// resolve maps every challenge to the live keys answering it.
func (p Proof) resolve(challenges []crypto.Hash) ([]crypto.Hash, error) {
	if p.Size == 0 {
		return nil, nil
	}
	var proven []crypto.Hash
	for _, c := range challenges {
		lower, upper, exact := p.bracket(c)
		if exact != nil {
			if exact.Live {
				proven = append(proven, exact.Key)
			}
			continue
		}
		switch {
		case lower != nil && upper != nil && upper.Index == lower.Index+1:
		case lower == nil && upper != nil && upper.Index == 0:
		case upper == nil && lower != nil && lower.Index == p.Size-1:
		default:
			return nil, fmt.Errorf("%w: %s", ErrNoResponse, c.Short())
		}
		for _, l := range []*LeafProof{lower, upper} {
			if l != nil && l.Live {
				proven = append(proven, l.Key)
			}
		}
	}
	return proven, nil
}

// bracket finds the leaf holding c, or the closest proven leaves below and
// above it.
func (p Proof) bracket(c crypto.Hash) (lower, upper, exact *LeafProof) {
	for i := range p.Leaves {
		l := &p.Leaves[i]
		switch cmp := bytes.Compare(l.Key[:], c[:]); {
		case cmp == 0:
			return nil, nil, l
		case cmp < 0:
			lower = l
		default:
			if upper == nil {
				upper = l
			}
		}
	}
	return lower, upper, nil
}

type nodeKey struct {
	height int
	index  uint64
}

// apply tombstones the keys named by mutations and returns the new root.
// Every target must be a live leaf of the proof.
func (p Proof) apply(mutations []challenge.Mutation, depth int) (crypto.Hash, error) {
	nodes := make(map[nodeKey]crypto.Hash)
	for _, l := range p.Leaves {
		h, idx := leafHash(l.Key, l.Live), l.Index
		nodes[nodeKey{0, idx}] = h
		for d, sib := range l.Path {
			if _, ok := nodes[nodeKey{d, idx ^ 1}]; !ok {
				nodes[nodeKey{d, idx ^ 1}] = sib
			}
			if idx&1 == 0 {
				h = nodeHash(h, sib)
			} else {
				h = nodeHash(sib, h)
			}
			idx >>= 1
			nodes[nodeKey{d + 1, idx}] = h
		}
	}

	leaves := make(map[crypto.Hash]*LeafProof, len(p.Leaves))
	for i := range p.Leaves {
		leaves[p.Leaves[i].Key] = &p.Leaves[i]
	}
	for _, m := range mutations {
		if m.Kind != challenge.RemoveKey {
			return crypto.Hash{}, fmt.Errorf("%w: %s", ErrUnsupportedOp, m.Kind)
		}
		l, ok := leaves[m.Key]
		if !ok || !l.Live {
			return crypto.Hash{}, fmt.Errorf("%w: %s", ErrCannotMutate, m.Key.Short())
		}
		l.Live = false

		h, idx := leafHash(l.Key, false), l.Index
		nodes[nodeKey{0, idx}] = h
		for d := 0; d < depth; d++ {
			sib := nodes[nodeKey{d, idx ^ 1}]
			if idx&1 == 0 {
				h = nodeHash(h, sib)
			} else {
				h = nodeHash(sib, h)
			}
			idx >>= 1
			nodes[nodeKey{d + 1, idx}] = h
		}
	}
	return commit(p.Size, nodes[nodeKey{depth, 0}]), nil
}
