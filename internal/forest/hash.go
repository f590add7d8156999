package forest

import (
	"encoding/binary"

	"github.com/eigerco/auditor/internal/crypto"
)

const (
	leafPrefix byte = 0x00
	nodePrefix byte = 0x01

	statusRemoved byte = 0x00
	statusLive    byte = 0x01
)

func leafHash(key crypto.Hash, live bool) crypto.Hash {
	status := statusRemoved
	if live {
		status = statusLive
	}
	return crypto.HashConcat([]byte{leafPrefix}, key[:], []byte{status})
}

func nodeHash(left, right crypto.Hash) crypto.Hash {
	return crypto.HashConcat([]byte{nodePrefix}, left[:], right[:])
}

// zeroHashes returns the root of an empty subtree at every height up to
// depth. An empty leaf is the zero hash.
func zeroHashes(depth int) []crypto.Hash {
	zeros := make([]crypto.Hash, depth+1)
	for d := 1; d <= depth; d++ {
		zeros[d] = nodeHash(zeros[d-1], zeros[d-1])
	}
	return zeros
}

// commit binds the number of leaf slots in use to the merkle root.
func commit(size uint64, merkleRoot crypto.Hash) crypto.Hash {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], size)
	return crypto.HashConcat(buf[:], merkleRoot[:])
}

// merkleLevels hashes leaves up to a tree of the given depth, padding with
// empty subtrees. levels[0] are the leaves and levels[depth] the root.
func merkleLevels(leaves []crypto.Hash, depth int) [][]crypto.Hash {
	zeros := zeroHashes(depth)
	levels := make([][]crypto.Hash, depth+1)
	levels[0] = leaves
	for d := 0; d < depth; d++ {
		cur := levels[d]
		next := make([]crypto.Hash, (len(cur)+1)/2)
		for i := range next {
			left := cur[2*i]
			right := zeros[d]
			if 2*i+1 < len(cur) {
				right = cur[2*i+1]
			}
			next[i] = nodeHash(left, right)
		}
		if len(next) == 0 {
			next = []crypto.Hash{zeros[d+1]}
		}
		levels[d+1] = next
	}
	return levels
}

// authPath returns the siblings of leaf index from the bottom up.
func authPath(levels [][]crypto.Hash, index uint64) []crypto.Hash {
	depth := len(levels) - 1
	zeros := zeroHashes(depth)
	path := make([]crypto.Hash, depth)
	for d := 0; d < depth; d++ {
		sib := index ^ 1
		if sib < uint64(len(levels[d])) {
			path[d] = levels[d][sib]
		} else {
			path[d] = zeros[d]
		}
		index >>= 1
	}
	return path
}

// rootFromPath recomputes the merkle root from a leaf and its siblings.
func rootFromPath(leaf crypto.Hash, index uint64, path []crypto.Hash) crypto.Hash {
	h := leaf
	for _, sib := range path {
		if index&1 == 0 {
			h = nodeHash(h, sib)
		} else {
			h = nodeHash(sib, h)
		}
		index >>= 1
	}
	return h
}
