// Package number implements the float-to-integer truncation semantics WASM
// requires: range checking before truncation and the specific trap codes
// raised when a value is unrepresentable in the destination type.
package number

import "math"

// Type tags a numeric kind used only by the truncation helpers below; it is
// deliberately narrower than wasm.ValueType since unsigned destinations
// (U32/U64) have no standalone WASM value type of their own.
type Type int

const (
	I32 Type = iota
	I64
	U32
	U64
	F32
	F64
)

// TrapCode reports why a truncation could not produce a value.
type TrapCode int

const (
	// NoTrap means the conversion succeeded.
	NoTrap TrapCode = iota
	// NanTrap means the source float was NaN.
	NanTrap
	// ConvertTrap means the source float was out of the destination's range.
	ConvertTrap
)

// Min returns the minimum representable value of t, bit-cast to uint64.
func Min(t Type) uint64 {
	switch t {
	case I32:
		min := int32(math.MinInt32)
		return uint64(uint32(min))
	case I64:
		min := int64(math.MinInt64)
		return uint64(min)
	case U32, U64:
		return 0
	}
	panic("number: Min of non-integer type")
}

// Max returns the maximum representable value of t, bit-cast to uint64.
func Max(t Type) uint64 {
	switch t {
	case I32:
		return uint64(math.MaxInt32)
	case I64:
		return uint64(math.MaxInt64)
	case U32:
		return uint64(math.MaxUint32)
	case U64:
		return math.MaxUint64
	}
	panic("number: Max of non-integer type")
}

// canTruncate reports whether value (already known finite) fits within to's
// range once truncated toward zero.
func canTruncate(to Type, value float64) bool {
	switch to {
	case I32:
		return value >= math.MinInt32 && value < -float64(math.MinInt32)
	case U32:
		return value > -1 && value < math.MaxUint32+1
	case I64:
		// math.MaxInt64 (2^63-1) is not exactly representable as float64,
		// but 2^63 is; comparing against -2^63 and 2^63 keeps the check precise.
		return value >= -9223372036854775808.0 && value < 9223372036854775808.0
	case U64:
		return value > -1 && value < 18446744073709551616.0
	}
	panic("number: canTruncate of non-integer destination")
}

// FloatTruncate truncates the float bit pattern floatBits (interpreted as
// `from`) toward zero into `to`. When the value is out of range it returns
// the integer range bound it crossed with ConvertTrap; for NaN it returns 0
// with NanTrap.
func FloatTruncate(from Type, to Type, floatBits uint64) (uint64, TrapCode) {
	var f float64
	switch from {
	case F32:
		v := math.Float32frombits(uint32(floatBits))
		if math.IsNaN(float64(v)) {
			return 0, NanTrap
		}
		f = float64(v)
	case F64:
		v := math.Float64frombits(floatBits)
		if math.IsNaN(v) {
			return 0, NanTrap
		}
		f = v
	default:
		panic("number: FloatTruncate from non-float source")
	}

	if !canTruncate(to, f) {
		if math.Signbit(f) {
			return Min(to), ConvertTrap
		}
		return Max(to), ConvertTrap
	}

	switch to {
	case I32:
		return uint64(uint32(int32(f))), NoTrap
	case U32:
		return uint64(uint32(f)), NoTrap
	case I64:
		return uint64(int64(f)), NoTrap
	case U64:
		return uint64(f), NoTrap
	}
	panic("number: FloatTruncate to non-integer destination")
}
