package challenge

import (
	"encoding/binary"

	"github.com/eigerco/auditor/internal/crypto"
)

// Generator expands a seed into count challenge keys. The salt binds the
// keys to a provider or to a file key.
type Generator interface {
	Generate(seed, salt crypto.Hash, count uint32) []crypto.Hash
}

// HashGenerator derives key i as blake2b(seed || salt || le32(i)).
type HashGenerator struct{}

func (HashGenerator) Generate(seed, salt crypto.Hash, count uint32) []crypto.Hash {
	keys := make([]crypto.Hash, count)
	var idx [4]byte
	for i := range count {
		binary.LittleEndian.PutUint32(idx[:], i)
		keys[i] = crypto.HashConcat(seed[:], salt[:], idx[:])
	}
	return keys
}
