// Package leb128 decodes the variable-length integer encoding used
// throughout the WASM binary format: https://webassembly.github.io/spec/core/binary/values.html#integers
package leb128

import (
	"errors"

	"github.com/vertexvm/vertexvm/util"
)

// ErrOverflow is returned when an encoding uses more bits than its target
// width allows (an overlong encoding per the binary spec).
var ErrOverflow = errors.New("leb128: overflow")

// Read decodes a LEB128 integer of at most n bits from br. hasSign selects
// the signed variant, which sign-extends based on bit 6 of the final byte.
// It returns the decoded value and the number of bytes consumed.
func Read(br *util.ByteReader, n uint32, hasSign bool) (int64, uint32, error) {
	var (
		shift   uint32
		bytecnt uint32
		result  int64
		last    byte
	)
	for {
		b, err := br.ReadOne()
		if err != nil {
			return 0, bytecnt, err
		}
		last = b
		if shift >= 64 {
			return 0, bytecnt, ErrOverflow
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		bytecnt++
		if b&0x80 == 0 {
			break
		}
		if bytecnt >= (n+6)/7 {
			return 0, bytecnt, ErrOverflow
		}
	}
	if hasSign && shift < 64 && last&0x40 != 0 {
		result |= -1 << shift
	}
	return result, bytecnt, nil
}

// ReadUint32 reads an unsigned 32-bit LEB128 integer.
func ReadUint32(br *util.ByteReader) (uint32, error) {
	v, _, err := Read(br, 32, false)
	return uint32(v), err
}

// ReadInt32 reads a signed 32-bit LEB128 integer.
func ReadInt32(br *util.ByteReader) (int32, error) {
	v, _, err := Read(br, 32, true)
	return int32(v), err
}

// ReadUint64 reads an unsigned 64-bit LEB128 integer.
func ReadUint64(br *util.ByteReader) (uint64, error) {
	v, _, err := Read(br, 64, false)
	return uint64(v), err
}

// ReadInt64 reads a signed 64-bit LEB128 integer.
func ReadInt64(br *util.ByteReader) (int64, error) {
	v, _, err := Read(br, 64, true)
	return v, err
}

// ReadS33 reads the signed 33-bit LEB128 used to encode WASM block types,
// which need one more bit of range than a plain s32 to keep type indices
// and the negative valtype/empty sentinels unambiguous.
func ReadS33(br *util.ByteReader) (int64, error) {
	v, _, err := Read(br, 33, true)
	return v, err
}

// DecodeAt decodes a LEB128 integer out of a raw byte slice at offset ip by
// wrapping a ByteReader around b[ip:], returning the value and the number
// of bytes it occupies.
func DecodeAt(b []byte, ip int, n uint32, hasSign bool) (int64, int, error) {
	br := util.NewByteReader(b[ip:])
	v, cnt, err := Read(br, n, hasSign)
	return v, int(cnt), err
}

// ScanLen reports how many bytes the LEB128 integer starting at b[ip:]
// occupies, without fully decoding it. Used by the structural skip-scanner
// (module decoder and interpreter control-flow skip) that only needs to
// advance a cursor past an immediate it does not otherwise care about.
func ScanLen(b []byte, ip int) int {
	n := 0
	for ip+n < len(b) {
		c := b[ip+n]
		n++
		if c&0x80 == 0 {
			break
		}
	}
	return n
}
