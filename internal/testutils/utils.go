package testutils

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eigerco/auditor/internal/crypto"
	"github.com/eigerco/auditor/internal/provider"
)

func RandomHash(t *testing.T) crypto.Hash {
	hash := make([]byte, crypto.HashSize)
	_, err := rand.Read(hash)
	require.NoError(t, err)
	return crypto.Hash(hash)
}

func RandomHashes(t *testing.T, n int) []crypto.Hash {
	out := make([]crypto.Hash, n)
	for i := range out {
		out[i] = RandomHash(t)
	}
	return out
}

func RandomProviderID(t *testing.T) provider.ID {
	return provider.ID(RandomHash(t))
}

func RandomAccountID(t *testing.T) provider.AccountID {
	return provider.AccountID(RandomHash(t))
}

func RandomBytes(t *testing.T, n int) []byte {
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}
