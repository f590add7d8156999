package forest

import (
	"bytes"
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/auditor/internal/challenge"
	"github.com/eigerco/auditor/internal/crypto"
	"github.com/eigerco/auditor/pkg/codec"
)

const testDepth = 8

func newForest(t *testing.T, n int) (*Forest, []crypto.Hash) {
	t.Helper()
	f, err := New(testDepth)
	require.NoError(t, err)
	keys := make([]crypto.Hash, n)
	for i := range keys {
		keys[i] = crypto.HashData([]byte(fmt.Sprintf("file-%d", i)))
		require.NoError(t, f.Insert(keys[i]))
	}
	sort.Slice(keys, func(a, b int) bool { return bytes.Compare(keys[a][:], keys[b][:]) < 0 })
	return f, keys
}

func randomHashes(rng *rand.Rand, n int) []crypto.Hash {
	out := make([]crypto.Hash, n)
	for i := range out {
		rng.Read(out[i][:])
	}
	return out
}

func TestForest_InsertRemove(t *testing.T) {
	f, keys := newForest(t, 5)
	root := f.Root()

	assert.ErrorIs(t, f.Insert(keys[0]), ErrKeyExists)
	assert.True(t, f.Contains(keys[2]))

	require.NoError(t, f.Remove(keys[2]))
	assert.False(t, f.Contains(keys[2]))
	assert.NotEqual(t, root, f.Root())
	assert.Equal(t, 5, f.Size(), "tombstones keep their slot")
	assert.ErrorIs(t, f.Remove(keys[2]), ErrKeyNotFound)

	_, err := New(0)
	assert.ErrorIs(t, err, ErrInvalidDepth)
}

func TestForest_Full(t *testing.T) {
	f, err := New(1)
	require.NoError(t, err)
	require.NoError(t, f.Insert(crypto.Hash{1}))
	require.NoError(t, f.Insert(crypto.Hash{2}))
	assert.ErrorIs(t, f.Insert(crypto.Hash{3}), ErrForestFull)
}

func TestForest_ProveAndVerify(t *testing.T) {
	f, keys := newForest(t, 20)
	v := NewVerifier(testDepth, 2)
	rng := rand.New(rand.NewSource(3))

	for i := 0; i < 50; i++ {
		challenges := randomHashes(rng, 4)
		b, proven, err := f.Prove(challenges)
		require.NoError(t, err)

		got, err := v.VerifyForestProof(f.Root(), challenges, b)
		require.NoError(t, err)
		assert.Equal(t, proven, got)
		assert.NotEmpty(t, got)
	}

	t.Run("exact key", func(t *testing.T) {
		b, _, err := f.Prove([]crypto.Hash{keys[7]})
		require.NoError(t, err)
		got, err := v.VerifyForestProof(f.Root(), []crypto.Hash{keys[7]}, b)
		require.NoError(t, err)
		assert.Equal(t, []crypto.Hash{keys[7]}, got)
	})

	t.Run("below first and above last", func(t *testing.T) {
		low, high := crypto.Hash{}, crypto.Hash{}
		for i := range high {
			high[i] = 0xff
		}
		b, _, err := f.Prove([]crypto.Hash{low, high})
		require.NoError(t, err)
		got, err := v.VerifyForestProof(f.Root(), []crypto.Hash{low, high}, b)
		require.NoError(t, err)
		assert.Equal(t, []crypto.Hash{keys[0], keys[len(keys)-1]}, got)
	})
}

func TestForest_VerifyRejectsTampering(t *testing.T) {
	f, _ := newForest(t, 20)
	v := NewVerifier(testDepth, 2)
	challenges := randomHashes(rand.New(rand.NewSource(5)), 3)
	b, _, err := f.Prove(challenges)
	require.NoError(t, err)
	p, err := DecodeProof(b)
	require.NoError(t, err)

	encode := func(p Proof) []byte {
		out, err := codec.Marshal(p)
		require.NoError(t, err)
		return out
	}

	tests := []struct {
		name    string
		root    crypto.Hash
		proof   []byte
		wantErr error
	}{
		{"wrong root", crypto.HashData([]byte("other")), b, ErrRootMismatch},
		{"garbage", f.Root(), []byte{1, 2, 3}, ErrInvalidProof},
		{"missing neighbour", f.Root(), encode(Proof{Size: p.Size, Leaves: p.Leaves[1:]}), ErrNoResponse},
		{"forged liveness", f.Root(), encode(func() Proof {
			c := Proof{Size: p.Size, Leaves: append([]LeafProof(nil), p.Leaves...)}
			c.Leaves[0].Live = !c.Leaves[0].Live
			return c
		}()), ErrRootMismatch},
		{"forged size", f.Root(), encode(Proof{Size: p.Size + 1, Leaves: p.Leaves}), ErrRootMismatch},
		{"short path", f.Root(), encode(func() Proof {
			c := Proof{Size: p.Size, Leaves: append([]LeafProof(nil), p.Leaves...)}
			c.Leaves[0].Path = c.Leaves[0].Path[1:]
			return c
		}()), ErrInvalidProof},
		{"empty proof for non empty forest", f.Root(), encode(Proof{}), ErrRootMismatch},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.VerifyForestProof(tc.root, challenges, tc.proof)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestForest_Empty(t *testing.T) {
	f, err := New(testDepth)
	require.NoError(t, err)
	v := NewVerifier(testDepth, 2)

	challenges := []crypto.Hash{{1}, {2}}
	b, proven, err := f.Prove(challenges)
	require.NoError(t, err)
	assert.Empty(t, proven)

	got, err := v.VerifyForestProof(f.Root(), challenges, b)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestForest_ApplyDeltaMatchesProver(t *testing.T) {
	f, keys := newForest(t, 20)
	v := NewVerifier(testDepth, 2)

	// adjacent keys share most of their path
	targets := []crypto.Hash{keys[4], keys[5], keys[13]}
	b, _, err := f.Prove(targets)
	require.NoError(t, err)

	mutations := make([]challenge.Mutation, len(targets))
	for i, k := range targets {
		mutations[i] = challenge.Mutation{Key: k, Kind: challenge.RemoveKey}
	}
	oldRoot := f.Root()
	newRoot, err := v.ApplyDelta(oldRoot, mutations, b)
	require.NoError(t, err)

	for _, k := range targets {
		require.NoError(t, f.Remove(k))
	}
	assert.Equal(t, f.Root(), newRoot)

	t.Run("target not in proof", func(t *testing.T) {
		_, err := v.ApplyDelta(oldRoot, []challenge.Mutation{{Key: keys[0], Kind: challenge.RemoveKey}}, b)
		assert.ErrorIs(t, err, ErrCannotMutate)
	})

	t.Run("removed keys are no longer proven", func(t *testing.T) {
		b, _, err := f.Prove([]crypto.Hash{keys[4]})
		require.NoError(t, err)
		got, err := v.VerifyForestProof(f.Root(), []crypto.Hash{keys[4]}, b)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestKeyProof(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	data := make([]byte, 5000)
	rng.Read(data)

	f, err := NewFile(crypto.Hash{0xaa}, "/data/blob", data, 1024)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), f.Chunks())

	v := NewVerifier(testDepth, 3)
	seed := crypto.HashData([]byte("seed"))

	b, err := f.Prove(v.Generator, seed, 3)
	require.NoError(t, err)
	require.NoError(t, v.VerifyKeyProof(f.Key(), seed, b))

	assert.ErrorIs(t, v.VerifyKeyProof(crypto.Hash{1}, seed, b), ErrKeyMismatch)
	assert.ErrorIs(t, v.VerifyKeyProof(f.Key(), seed, []byte{9}), ErrInvalidKeyProof)

	var p KeyProof
	require.NoError(t, codec.Unmarshal(b, &p))
	require.NotEmpty(t, p.Chunks)

	tampered := p
	tampered.Chunks = append([]ChunkProof(nil), p.Chunks...)
	tampered.Chunks[0].Data = append([]byte(nil), p.Chunks[0].Data...)
	tampered.Chunks[0].Data[0] ^= 0xff
	tb, err := codec.Marshal(tampered)
	require.NoError(t, err)
	assert.ErrorIs(t, v.VerifyKeyProof(f.Key(), seed, tb), ErrChunkMismatch)

	dropped := p
	dropped.Chunks = p.Chunks[1:]
	db, err := codec.Marshal(dropped)
	require.NoError(t, err)
	assert.ErrorIs(t, v.VerifyKeyProof(f.Key(), seed, db), ErrMissingChunk)

	_, err = NewFile(crypto.Hash{}, "", nil, 0)
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestKeyProof_SingleChunk(t *testing.T) {
	f, err := NewFile(crypto.Hash{0xaa}, "small", []byte("tiny file"), 0)
	require.NoError(t, err)
	v := NewVerifier(testDepth, 2)
	b, err := f.Prove(v.Generator, crypto.Hash{3}, 2)
	require.NoError(t, err)
	assert.NoError(t, v.VerifyKeyProof(f.Key(), crypto.Hash{3}, b))
}

func TestProver_AnswerVerifies(t *testing.T) {
	p, err := NewProver(testDepth, 2)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(13))
	for i := 0; i < 10; i++ {
		data := make([]byte, 100+rng.Intn(3000))
		rng.Read(data)
		f, err := NewFile(crypto.Hash{0xbb}, fmt.Sprintf("file-%d", i), data, 512)
		require.NoError(t, err)
		require.NoError(t, p.Store(f))
	}

	v := NewVerifier(testDepth, 2)
	seed := crypto.HashData([]byte("tick seed"))
	challenges := randomHashes(rng, 3)

	submission, err := p.Answer(challenges, seed)
	require.NoError(t, err)
	proven, err := v.VerifyForestProof(p.Root(), challenges, submission.ForestProof)
	require.NoError(t, err)
	for _, key := range proven {
		require.Contains(t, submission.KeyProofs, key)
		require.NoError(t, v.VerifyKeyProof(key, seed, submission.KeyProofs[key]))
	}

	mutation := challenge.Mutation{Key: proven[0], Kind: challenge.RemoveKey}
	newRoot, err := v.ApplyDelta(p.Root(), []challenge.Mutation{mutation}, submission.ForestProof)
	require.NoError(t, err)
	require.NoError(t, p.Apply([]challenge.Mutation{mutation}))
	assert.Equal(t, p.Root(), newRoot)
	assert.False(t, p.Contains(proven[0]))
}
