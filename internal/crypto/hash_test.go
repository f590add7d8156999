package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashConcatMatchesHashData(t *testing.T) {
	a, b := []byte("seed"), []byte("provider")
	assert.Equal(t, HashData(append(append([]byte{}, a...), b...)), HashConcat(a, b))
	assert.NotEqual(t, HashConcat(a, b), HashConcat(b, a))
}

func TestHashHexRoundTrip(t *testing.T) {
	h := HashData([]byte("root"))

	parsed, err := HashFromHex(h.String())
	require.NoError(t, err)
	assert.Equal(t, h, parsed)

	parsed, err = HashFromHex(h.String()[2:])
	require.NoError(t, err)
	assert.Equal(t, h, parsed)

	_, err = HashFromHex("0x1234")
	assert.Error(t, err)
	_, err = HashFromHex("zz")
	assert.Error(t, err)
}

func TestHashText(t *testing.T) {
	h := HashData([]byte("key"))
	text, err := h.MarshalText()
	require.NoError(t, err)

	var out Hash
	require.NoError(t, out.UnmarshalText(text))
	assert.Equal(t, h, out)
	assert.False(t, out.IsZero())
	assert.True(t, Hash{}.IsZero())
	assert.Len(t, h.Short(), 8)
}
