package safemath

import (
	"errors"
	"math"
	"math/bits"
)

var (
	ErrOverflow       = errors.New("number overflow")
	ErrDivisionByZero = errors.New("division by zero")
)

func Add32(a, b uint32) (uint32, bool) {
	v, carry := bits.Add32(a, b, 0)
	return v, carry == 0
}

func Add64(a, b uint64) (uint64, bool) {
	v, carry := bits.Add64(a, b, 0)
	return v, carry == 0
}

func Sub32(a, b uint32) (uint32, bool) {
	v, carry := bits.Sub32(a, b, 0)
	return v, carry == 0
}

func Sub64(a, b uint64) (uint64, bool) {
	v, carry := bits.Sub64(a, b, 0)
	return v, carry == 0
}

func Mul64(a, b uint64) (uint64, bool) {
	hi, lo := bits.Mul64(a, b)
	return lo, hi == 0
}

func SaturatingAdd64(a, b uint64) uint64 {
	if v, ok := Add64(a, b); ok {
		return v
	}
	return math.MaxUint64
}

func SaturatingSub64(a, b uint64) uint64 {
	if v, ok := Sub64(a, b); ok {
		return v
	}
	return 0
}

func SaturatingAdd32(a, b uint32) uint32 {
	if v, ok := Add32(a, b); ok {
		return v
	}
	return math.MaxUint32
}

// MulDiv64 computes floor(a*b/c) with a 128 bit intermediate product.
func MulDiv64(a, b, c uint64) (uint64, error) {
	if c == 0 {
		return 0, ErrDivisionByZero
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= c {
		return 0, ErrOverflow
	}
	q, _ := bits.Div64(hi, lo, c)
	return q, nil
}
