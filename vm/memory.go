package vm

import (
	"encoding/binary"
	"io"

	"github.com/vertexvm/vertexvm/wasm"
)

// MemSize returns the current linear memory size in bytes.
func (vm *VM) MemSize() int {
	return len(vm.memory)
}

// MemRead copies memory starting at offset into buf, returning the number
// of bytes copied. If buf is larger than what remains, it is truncated and
// io.ErrShortBuffer is returned alongside the partial read.
func (vm *VM) MemRead(buf []byte, offset int) (int, error) {
	if offset < 0 || offset > len(vm.memory) {
		return 0, io.ErrUnexpectedEOF
	}
	n := copy(buf, vm.memory[offset:])
	if n < len(buf) {
		return n, io.ErrShortBuffer
	}
	return n, nil
}

// MemWrite copies buf into memory starting at offset, returning the number
// of bytes copied. If buf does not fully fit, it is truncated and
// io.ErrShortWrite is returned alongside the partial write.
func (vm *VM) MemWrite(buf []byte, offset int) (int, error) {
	if offset < 0 || offset > len(vm.memory) {
		return 0, io.ErrUnexpectedEOF
	}
	n := copy(vm.memory[offset:], buf)
	if n < len(buf) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

// growMemory implements memory.grow: on success it returns the previous
// page count, on failure -1, and never mutates memory on failure.
func (vm *VM) growMemory(deltaPages uint32) int32 {
	prevPages := int32(len(vm.memory) / wasm.PageSize)
	newPages := uint64(prevPages) + uint64(deltaPages)
	if newPages > wasm.MaxPages {
		return -1
	}
	if vm.memoryMax.HasMax && newPages > uint64(vm.memoryMax.Max) {
		return -1
	}
	cost := vm.gasPolicy.GetCostForMalloc(int(deltaPages))
	if !vm.chargeGas(cost) {
		panic(ErrOutOfGas)
	}
	grown := make([]byte, newPages*wasm.PageSize)
	copy(grown, vm.memory)
	vm.memory = grown
	return prevPages
}

func (vm *VM) checkBounds(offset uint32, size uint32) {
	if uint64(offset)+uint64(size) > uint64(len(vm.memory)) {
		panic(ErrOutOfBoundMemoryAccess)
	}
}

func (vm *VM) loadU8(offset uint32) uint64 {
	vm.checkBounds(offset, 1)
	return uint64(vm.memory[offset])
}

func (vm *VM) loadU16(offset uint32) uint64 {
	vm.checkBounds(offset, 2)
	return uint64(binary.LittleEndian.Uint16(vm.memory[offset:]))
}

func (vm *VM) loadU32(offset uint32) uint64 {
	vm.checkBounds(offset, 4)
	return uint64(binary.LittleEndian.Uint32(vm.memory[offset:]))
}

func (vm *VM) loadU64(offset uint32) uint64 {
	vm.checkBounds(offset, 8)
	return binary.LittleEndian.Uint64(vm.memory[offset:])
}

func (vm *VM) storeU8(offset uint32, v uint8) {
	vm.checkBounds(offset, 1)
	vm.memory[offset] = v
}

func (vm *VM) storeU16(offset uint32, v uint16) {
	vm.checkBounds(offset, 2)
	binary.LittleEndian.PutUint16(vm.memory[offset:], v)
}

func (vm *VM) storeU32(offset uint32, v uint32) {
	vm.checkBounds(offset, 4)
	binary.LittleEndian.PutUint32(vm.memory[offset:], v)
}

func (vm *VM) storeU64(offset uint32, v uint64) {
	vm.checkBounds(offset, 8)
	binary.LittleEndian.PutUint64(vm.memory[offset:], v)
}

// effectiveAddr computes a load/store's byte offset from the popped
// dynamic index and the instruction's static offset immediate, wrapping
// modulo 2^32 the way the spec's effective-address calculation does. The
// bounds check against actual memory size happens separately, in
// checkBounds.
func effectiveAddr(dynamic uint32, staticOffset uint32) uint32 {
	return dynamic + staticOffset
}
