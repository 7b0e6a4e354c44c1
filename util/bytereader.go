// Package util provides the cursor primitive the decoder and interpreter
// share: a position-tracking view over an immutable byte slice that never
// copies the underlying bytes.
package util

import (
	"encoding/binary"
	"io"
)

// ByteReader is a cursor over a borrowed byte slice. Unlike an io.Reader,
// callers can save and restore its position with Pos and Seek.
type ByteReader struct {
	b      []byte
	curPos uint32
}

// NewByteReader wraps b for reading. b is not copied.
func NewByteReader(b []byte) *ByteReader {
	return &ByteReader{b: b}
}

// Pos returns the current cursor offset.
func (r *ByteReader) Pos() uint32 { return r.curPos }

// Seek moves the cursor to an absolute offset.
func (r *ByteReader) Seek(pos uint32) { r.curPos = pos }

// Len returns the number of unread bytes remaining.
func (r *ByteReader) Len() uint32 {
	if r.curPos >= uint32(len(r.b)) {
		return 0
	}
	return uint32(len(r.b)) - r.curPos
}

// Read returns the next n bytes as a slice of the underlying array (no
// copy) and advances the cursor. Returns io.EOF if fewer than n remain.
func (r *ByteReader) Read(n uint32) ([]byte, error) {
	if n > r.Len() {
		return nil, io.EOF
	}
	b := r.b[r.curPos : r.curPos+n]
	r.curPos += n
	return b, nil
}

// ReadOne reads a single byte and advances the cursor.
func (r *ByteReader) ReadOne() (byte, error) {
	if r.curPos >= uint32(len(r.b)) {
		return 0, io.EOF
	}
	b := r.b[r.curPos]
	r.curPos++
	return b, nil
}

// ReadU32 reads a fixed-width little-endian uint32.
func (r *ByteReader) ReadU32() (uint32, error) {
	b, err := r.Read(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadU64 reads a fixed-width little-endian uint64.
func (r *ByteReader) ReadU64() (uint64, error) {
	b, err := r.Read(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// Rest returns every remaining unread byte without advancing the cursor.
func (r *ByteReader) Rest() []byte {
	return r.b[r.curPos:]
}
