package wasi

import (
	"crypto/rand"
	"time"

	"github.com/vertexvm/vertexvm/vm"
)

const (
	clockRealtime  = 0
	clockMonotonic = 1
)

// clockTimeGet implements clock_time_get(id, precision, result.timestamp).
// Monotonic time is measured from Preview1 construction since Go exposes no
// public epoch-free monotonic reading API.
func (w *Preview1) clockTimeGet(v *vm.VM, args ...uint64) uint64 {
	id := uint32(args[0])
	resultTimestamp := uint32(args[2])

	var nanos uint64
	switch id {
	case clockRealtime:
		nanos = uint64(time.Now().UnixNano())
	case clockMonotonic:
		nanos = uint64(time.Since(w.start).Nanoseconds())
	default:
		return uint64(ErrnoNosys)
	}
	if !writeU64(v, resultTimestamp, nanos) {
		return uint64(ErrnoFault)
	}
	return uint64(ErrnoSuccess)
}

// randomGet implements random_get(buf, buf_len), filling memory with
// cryptographically random bytes.
func (w *Preview1) randomGet(v *vm.VM, args ...uint64) uint64 {
	ptr := uint32(args[0])
	size := uint32(args[1])
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return uint64(ErrnoIo)
	}
	if _, err := v.MemWrite(buf, int(ptr)); err != nil {
		return uint64(ErrnoFault)
	}
	return uint64(ErrnoSuccess)
}
