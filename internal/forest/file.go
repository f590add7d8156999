package forest

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
	"sort"

	"github.com/eigerco/auditor/internal/challenge"
	"github.com/eigerco/auditor/internal/crypto"
	"github.com/eigerco/auditor/pkg/codec"
)

const DefaultChunkSize = 1024

var (
	ErrEmptyFile       = errors.New("file is empty")
	ErrInvalidKeyProof = errors.New("invalid key proof")
	ErrKeyMismatch     = errors.New("metadata does not hash to key")
	ErrMissingChunk    = errors.New("challenged chunk not in proof")
	ErrChunkMismatch   = errors.New("chunk does not match fingerprint")
)

// Metadata describes a stored file. Its hash is the file key.
type Metadata struct {
	Owner       crypto.Hash
	Location    string
	Size        uint64
	ChunkSize   uint32
	Fingerprint crypto.Hash
}

func (m Metadata) Key() (crypto.Hash, error) {
	b, err := codec.Marshal(m)
	if err != nil {
		return crypto.Hash{}, fmt.Errorf("encode metadata: %w", err)
	}
	return crypto.HashData(b), nil
}

// Chunks is the number of chunks the file is split into.
func (m Metadata) Chunks() uint64 {
	if m.ChunkSize == 0 {
		return 0
	}
	return (m.Size + uint64(m.ChunkSize) - 1) / uint64(m.ChunkSize)
}

func (m Metadata) chunkLen(index uint64) uint64 {
	if index == m.Chunks()-1 && m.Size%uint64(m.ChunkSize) != 0 {
		return m.Size % uint64(m.ChunkSize)
	}
	return uint64(m.ChunkSize)
}

func (m Metadata) treeDepth() int {
	return bits.Len64(m.Chunks() - 1)
}

func chunkHash(data []byte) crypto.Hash {
	return crypto.HashConcat([]byte{leafPrefix}, data)
}

// ChunkIndices derives the chunks challenged for key under seed.
func ChunkIndices(gen challenge.Generator, seed, key crypto.Hash, chunks uint64, count uint32) []uint64 {
	if chunks == 0 {
		return nil
	}
	seen := map[uint64]struct{}{}
	var out []uint64
	for _, h := range gen.Generate(seed, key, count) {
		i := binary.LittleEndian.Uint64(h[:8]) % chunks
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		out = append(out, i)
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

// File is the prover side of a stored file.
type File struct {
	Metadata
	key    crypto.Hash
	data   []byte
	levels [][]crypto.Hash
}

func NewFile(owner crypto.Hash, location string, data []byte, chunkSize uint32) (*File, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	f := &File{
		Metadata: Metadata{Owner: owner, Location: location, Size: uint64(len(data)), ChunkSize: chunkSize},
		data:     append([]byte(nil), data...),
	}
	leaves := make([]crypto.Hash, f.Chunks())
	for i := range leaves {
		leaves[i] = chunkHash(f.chunk(uint64(i)))
	}
	depth := f.treeDepth()
	f.levels = merkleLevels(leaves, depth)
	f.Fingerprint = f.levels[depth][0]

	key, err := f.Metadata.Key()
	if err != nil {
		return nil, err
	}
	f.key = key
	return f, nil
}

func (f *File) Key() crypto.Hash { return f.key }

func (f *File) chunk(i uint64) []byte {
	start := i * uint64(f.ChunkSize)
	return f.data[start : start+f.chunkLen(i)]
}

// ChunkProof is one chunk and its path to the fingerprint.
type ChunkProof struct {
	Index uint64
	Data  []byte
	Path  []crypto.Hash
}

// KeyProof proves possession of the chunks of a file challenged by a seed.
type KeyProof struct {
	Metadata Metadata
	Chunks   []ChunkProof
}

// Prove answers the chunk challenges derived from seed.
func (f *File) Prove(gen challenge.Generator, seed crypto.Hash, count uint32) ([]byte, error) {
	p := KeyProof{Metadata: f.Metadata}
	for _, i := range ChunkIndices(gen, seed, f.key, f.Chunks(), count) {
		p.Chunks = append(p.Chunks, ChunkProof{Index: i, Data: f.chunk(i), Path: authPath(f.levels, i)})
	}
	b, err := codec.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode key proof: %w", err)
	}
	return b, nil
}

func verifyKeyProof(gen challenge.Generator, key, seed crypto.Hash, count uint32, b []byte) error {
	var p KeyProof
	if err := codec.Unmarshal(b, &p); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidKeyProof, err)
	}
	m := p.Metadata
	if m.Size == 0 || m.ChunkSize == 0 {
		return fmt.Errorf("%w: empty file", ErrInvalidKeyProof)
	}
	got, err := m.Key()
	if err != nil {
		return err
	}
	if got != key {
		return ErrKeyMismatch
	}

	chunks := make(map[uint64]ChunkProof, len(p.Chunks))
	for _, c := range p.Chunks {
		chunks[c.Index] = c
	}
	depth := m.treeDepth()
	for _, i := range ChunkIndices(gen, seed, key, m.Chunks(), count) {
		c, ok := chunks[i]
		if !ok {
			return fmt.Errorf("%w: %d", ErrMissingChunk, i)
		}
		if uint64(len(c.Data)) != m.chunkLen(i) || len(c.Path) != depth {
			return fmt.Errorf("%w: chunk %d malformed", ErrInvalidKeyProof, i)
		}
		if rootFromPath(chunkHash(c.Data), i, c.Path) != m.Fingerprint {
			return fmt.Errorf("%w: %d", ErrChunkMismatch, i)
		}
	}
	return nil
}
