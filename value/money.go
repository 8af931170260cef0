package value

import (
	"fmt"
	"math/bits"
)

// Money is an extended-precision decimal: a 96-bit unsigned mantissa,
// a base-10 exponent, and a sign. It is a plain value type so that it
// fits a cell payload without heap allocation. Arithmetic beyond
// negation and comparison belongs to the type-behavior layer, not
// here.
type Money struct {
	m0, m1, m2 uint32
	exp        int8
	neg        bool
}

// MoneyFromInt64 builds a Money with exponent zero.
func MoneyFromInt64(v int64) Money {
	var m Money
	u := uint64(v)
	if v < 0 {
		m.neg = true
		u = uint64(-v)
	}
	m.m0 = uint32(u)
	m.m1 = uint32(u >> 32)
	return m.normalize()
}

// MoneyFromParts builds a Money directly from its mantissa words,
// exponent, and sign.
func MoneyFromParts(m0, m1, m2 uint32, exp int8, neg bool) Money {
	return Money{m0: m0, m1: m1, m2: m2, exp: exp, neg: neg}.normalize()
}

// normalize canonicalizes zero so that Equal can compare field-wise.
func (m Money) normalize() Money {
	if m.m0 == 0 && m.m1 == 0 && m.m2 == 0 {
		return Money{}
	}
	return m
}

// IsZero reports whether the mantissa is zero.
func (m Money) IsZero() bool {
	return m.m0 == 0 && m.m1 == 0 && m.m2 == 0
}

// Negative reports the sign. Zero is never negative.
func (m Money) Negative() bool { return m.neg }

// Neg returns the negation.
func (m Money) Neg() Money {
	if m.IsZero() {
		return m
	}
	m.neg = !m.neg
	return m
}

// Equal compares canonical representations. Values that differ only
// in exponent scaling are not considered equal here; scaling-aware
// comparison is a type-behavior concern.
func (m Money) Equal(o Money) bool {
	return m == o
}

// Int64 converts back to an integer when the value has exponent zero
// and fits; ok is false otherwise.
func (m Money) Int64() (v int64, ok bool) {
	if m.exp != 0 || m.m2 != 0 {
		return 0, false
	}
	u := uint64(m.m1)<<32 | uint64(m.m0)
	if m.neg {
		if u > 1<<63 {
			return 0, false
		}
		return -int64(u), true
	}
	if u >= 1<<63 {
		return 0, false
	}
	return int64(u), true
}

// String renders the mantissa and exponent without scaling, for
// diagnostics.
func (m Money) String() string {
	sign := ""
	if m.neg {
		sign = "-"
	}
	hi, lo := mant96(m.m0, m.m1, m.m2)
	if m.exp == 0 {
		return fmt.Sprintf("$%s%s", sign, dec128(hi, lo))
	}
	return fmt.Sprintf("$%s%se%d", sign, dec128(hi, lo), m.exp)
}

func mant96(m0, m1, m2 uint32) (hi, lo uint64) {
	return uint64(m2), uint64(m1)<<32 | uint64(m0)
}

// dec128 formats a 96-bit value held in a 128-bit hi/lo pair.
func dec128(hi, lo uint64) string {
	if hi == 0 {
		return fmt.Sprintf("%d", lo)
	}
	var digits []byte
	for hi != 0 || lo != 0 {
		var rem uint64
		hi, rem = hi/10, hi%10
		lo, rem = bits.Div64(rem, lo, 10)
		digits = append(digits, byte('0'+rem))
	}
	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}
	return string(digits)
}
