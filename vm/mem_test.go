package vm

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vertexvm/vertexvm/opcode"
)

func memOnlyModule(min uint32) []byte {
	b := &moduleBuilder{}
	b.setMemory(min)
	return b.build()
}

// memoryGrowModule: grow() -> i32 { return memory.grow(delta) } for a memory
// starting at 1 page, capped at max.
func memoryGrowModule(delta uint32, max uint32) []byte {
	b := &moduleBuilder{}
	b.setMemory(1)
	b.memMax = max
	b.hasMemMax = true
	t0 := b.addType(nil, i32)
	body := i32Const(int32(delta))
	body = append(body, byte(opcode.MemoryGrow), 0x00)
	body = append(body, byte(opcode.End))
	fn := b.addFunc(t0, nil, body)
	b.addExportFunc("grow", fn)
	return b.build()
}

func TestMemSize(t *testing.T) {
	v, err := NewVM(memOnlyModule(1), nil, nil, nil)
	if err != nil {
		t.Fatalf("NewVM: %v", err)
	}
	if len(v.memory) != v.MemSize() {
		t.Errorf("expected MemSize %d, got %d", len(v.memory), v.MemSize())
	}
}

func TestMemRead(t *testing.T) {
	v, err := NewVM(memOnlyModule(1), nil, nil, nil)
	require.NoError(t, err)
	sample := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	offset := v.MemSize() - len(sample)
	copy(v.memory[offset:offset+len(sample)], sample)

	readBuffer := make([]byte, 10)
	n, err := v.MemRead(readBuffer, offset)
	require.NoError(t, err)
	require.Equal(t, len(sample), n)
	require.Equal(t, sample, readBuffer)

	readBuffer = make([]byte, 15)
	n, err = v.MemRead(readBuffer, offset)
	require.ErrorIs(t, err, io.ErrShortBuffer)
	require.Equal(t, len(sample), n)
}

func TestMemWrite(t *testing.T) {
	v, err := NewVM(memOnlyModule(1), nil, nil, nil)
	require.NoError(t, err)
	sample := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	offset := v.MemSize() - len(sample)
	n, err := v.MemWrite(sample, offset)
	require.NoError(t, err)
	require.Equal(t, len(sample), n)
	require.Equal(t, sample, v.memory[offset:offset+len(sample)])

	bigger := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	n, err = v.MemWrite(bigger, offset)
	require.ErrorIs(t, err, io.ErrShortWrite)
	require.Equal(t, v.MemSize()-offset, n)
}

func TestMemGrow(t *testing.T) {
	v, err := NewVM(memoryGrowModule(2, 4), &SimpleGasPolicy{}, &Gas{Limit: 1024 * 3}, nil)
	if err != nil {
		t.Fatalf("NewVM: %v", err)
	}
	if _, err := v.Invoke(mustFnID(t, v, "grow")); err != nil {
		t.Errorf("expected growth to succeed, got %v", err)
	}
}

func TestMemGrowOutOfGas(t *testing.T) {
	v, err := NewVM(memoryGrowModule(2, 4), &SimpleGasPolicy{}, &Gas{Limit: 1024 * 2}, nil)
	if err != nil {
		t.Fatalf("NewVM: %v", err)
	}
	if _, err := v.Invoke(mustFnID(t, v, "grow")); err != ErrOutOfGas {
		t.Errorf("expected ErrOutOfGas, got %v", err)
	}
}

func mustFnID(t *testing.T, v *VM, name string) int64 {
	t.Helper()
	id, ok := v.GetFunctionIndex(name)
	if !ok {
		t.Fatalf("export %q not found", name)
	}
	return id
}
