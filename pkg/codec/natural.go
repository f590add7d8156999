package codec

import (
	"encoding/binary"
	"math"
	"math/bits"
)

// AppendNatural appends the variable length encoding of x: one prefix octet
// whose leading ones give the number of little-endian octets that follow.
// Values up to 2^7 take one octet, values of 2^56 and above take nine.
func AppendNatural(dst []byte, x uint64) []byte {
	var l uint8
	for l = 0; l < 8; l++ {
		if x < 1<<(7*(l+1)) {
			break
		}
	}
	if l == 8 {
		dst = append(dst, math.MaxUint8)
		return binary.LittleEndian.AppendUint64(dst, x)
	}

	base := uint64(256) - uint64(1)<<(8-l)
	dst = append(dst, uint8(base+(x>>(8*l))&math.MaxUint8))
	for i := uint8(0); i < l; i++ {
		dst = append(dst, uint8(x>>(8*i)))
	}
	return dst
}

// ReadNatural decodes a value written by AppendNatural and returns it with
// the number of octets consumed.
func ReadNatural(src []byte) (uint64, int, error) {
	if len(src) == 0 {
		return 0, 0, ErrUnexpectedEOF
	}
	prefix := src[0]
	l := bits.LeadingZeros8(^prefix)
	if len(src) < l+1 {
		return 0, 0, ErrUnexpectedEOF
	}
	if l == 8 {
		return binary.LittleEndian.Uint64(src[1:9]), 9, nil
	}

	var x uint64
	for i := 0; i < l; i++ {
		x |= uint64(src[i+1]) << (8 * i)
	}
	x |= uint64(prefix&(math.MaxUint8>>l)) << (8 * l)
	return x, l + 1, nil
}
