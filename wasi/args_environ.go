package wasi

import "github.com/vertexvm/vertexvm/vm"

func sizesOf(values []string) (count uint32, bufSize uint32) {
	count = uint32(len(values))
	for _, s := range values {
		bufSize += uint32(len(s)) + 1 // + null terminator
	}
	return
}

// writeVec writes values as a C-style argv/envp: an array of uint32 offsets
// at ptrOut, each pointing into a block of null-terminated strings at
// bufOut.
func writeVec(v *vm.VM, values []string, ptrOut, bufOut uint32) bool {
	offset := bufOut
	for i, s := range values {
		if !writeU32(v, ptrOut+uint32(i*4), offset) {
			return false
		}
		b := append([]byte(s), 0)
		if _, err := v.MemWrite(b, int(offset)); err != nil {
			return false
		}
		offset += uint32(len(b))
	}
	return true
}

func (w *Preview1) argsSizesGet(v *vm.VM, args ...uint64) uint64 {
	count, size := sizesOf(w.Args)
	if !writeU32(v, uint32(args[0]), count) || !writeU32(v, uint32(args[1]), size) {
		return uint64(ErrnoFault)
	}
	return uint64(ErrnoSuccess)
}

func (w *Preview1) argsGet(v *vm.VM, args ...uint64) uint64 {
	if !writeVec(v, w.Args, uint32(args[0]), uint32(args[1])) {
		return uint64(ErrnoFault)
	}
	return uint64(ErrnoSuccess)
}

func (w *Preview1) environSizesGet(v *vm.VM, args ...uint64) uint64 {
	count, size := sizesOf(w.Env)
	if !writeU32(v, uint32(args[0]), count) || !writeU32(v, uint32(args[1]), size) {
		return uint64(ErrnoFault)
	}
	return uint64(ErrnoSuccess)
}

func (w *Preview1) environGet(v *vm.VM, args ...uint64) uint64 {
	if !writeVec(v, w.Env, uint32(args[0]), uint32(args[1])) {
		return uint64(ErrnoFault)
	}
	return uint64(ErrnoSuccess)
}
