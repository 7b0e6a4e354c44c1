package vm

import (
	"testing"

	"github.com/vertexvm/vertexvm/opcode"
)

type vmTest struct {
	name     string
	entry    string
	params   []uint64
	expected uint64
}

func mustInvoke(t *testing.T, v *VM, entry string, params ...uint64) uint64 {
	t.Helper()
	fnID, ok := v.GetFunctionIndex(entry)
	if !ok {
		t.Fatalf("export %q not found", entry)
	}
	ret, err := v.Invoke(fnID, params...)
	if err != nil {
		t.Fatalf("Invoke(%s): unexpected error: %v", entry, err)
	}
	return ret
}

// addModule: calc(a, b i32) -> i32 { return a + b }
func addModule() []byte {
	b := &moduleBuilder{}
	t0 := b.addType(append(append([]byte{}, i32...), i32...), i32)
	fn := b.addFunc(t0, nil, []byte{0x20, 0x00, 0x20, 0x01, byte(opcode.I32Add), byte(opcode.End)})
	b.addExportFunc("calc", fn)
	return b.build()
}

// constModule: calc() -> i32 { return -1 }
func constModule() []byte {
	b := &moduleBuilder{}
	t0 := b.addType(nil, i32)
	fn := b.addFunc(t0, nil, append(i32Const(-1), byte(opcode.End)))
	b.addExportFunc("calc", fn)
	return b.build()
}

// localModule: calc(x i32) -> i32 { y := x + 1; return y }
func localModule() []byte {
	b := &moduleBuilder{}
	t0 := b.addType(i32, i32)
	body := []byte{
		0x20, 0x00, // local.get 0
		0x41, 0x01, // i32.const 1
		byte(opcode.I32Add),
		0x21, 0x01, // local.set 1
		0x20, 0x01, // local.get 1
		byte(opcode.End),
	}
	fn := b.addFunc(t0, []localRun{{count: 1, vt: 0x7F}}, body)
	b.addExportFunc("calc", fn)
	return b.build()
}

// callModule: calc() -> i32 { return callee() } where callee() -> i32 { return 16 }
func callModule() []byte {
	b := &moduleBuilder{}
	t0 := b.addType(nil, i32)
	callee := b.addFunc(t0, nil, append(i32Const(16), byte(opcode.End)))
	caller := b.addFunc(t0, nil, []byte{byte(opcode.Call), byte(callee), byte(opcode.End)})
	b.addExportFunc("calc", caller)
	return b.build()
}

// blockModule: calc(x i32) -> i32 (teacher's classic block/br_if shape)
func blockModule() []byte {
	b := &moduleBuilder{}
	t0 := b.addType(i32, i32)
	body := []byte{
		0x02, 0x7F, // block (result i32)
		0x41, 0x08, // i32.const 8
		0x20, 0x00, // local.get 0
		0x41, 0x20, // i32.const 32
		byte(opcode.I32LtS),
		0x0D, 0x00, // br_if 0
		byte(opcode.Drop),
		0x41, 0x10, // i32.const 16
		byte(opcode.End), // end block
		byte(opcode.End), // end func
	}
	fn := b.addFunc(t0, nil, body)
	b.addExportFunc("calc", fn)
	return b.build()
}

// loopModule: calc() -> i32 { sum 1..5 via a loop; expect 15 }
func loopModule() []byte {
	b := &moduleBuilder{}
	t0 := b.addType(nil, i32)
	body := []byte{
		0x03, 0x40, // loop (empty)
		0x20, 0x00, 0x41, 0x01, byte(opcode.I32Add), 0x21, 0x00, // i := i+1
		0x20, 0x01, 0x20, 0x00, byte(opcode.I32Add), 0x21, 0x01, // sum += i
		0x20, 0x00, 0x41, 0x05, byte(opcode.I32LtS), 0x0D, 0x00, // br_if loop while i<5
		byte(opcode.End), // end loop
		0x20, 0x01,       // local.get sum
		byte(opcode.End), // end func
	}
	fn := b.addFunc(t0, []localRun{{count: 2, vt: 0x7F}}, body)
	b.addExportFunc("calc", fn)
	return b.build()
}

// brTableModule: calc(x i32) -> i32 { switch(x) { 0: return 8; default: return 16 } }
func brTableModule() []byte {
	b := &moduleBuilder{}
	t0 := b.addType(i32, i32)
	body := []byte{
		0x02, 0x7F, // block $exit (i32)
		0x02, 0x40, //   block $caseDefault (void)
		0x02, 0x40, //     block $case0 (void)
		0x20, 0x00, //       local.get 0
		0x0E, 0x01, 0x00, 0x01, //       br_table [0] default=1
		byte(opcode.End), //     end case0
		0x41, 0x08,       //     i32.const 8
		0x0C, 0x01,       //     br 1 (exit)
		byte(opcode.End), //   end caseDefault
		0x41, 0x10,       //   i32.const 16
		byte(opcode.End), // end exit
		byte(opcode.End), // end func
	}
	fn := b.addFunc(t0, nil, body)
	b.addExportFunc("calc", fn)
	return b.build()
}

// callIndirectModule: table[0] -> target() -> i32 { return 16 }; calc() calls it indirectly.
func callIndirectModule() []byte {
	b := &moduleBuilder{}
	t0 := b.addType(nil, i32)
	target := b.addFunc(t0, nil, append(i32Const(16), byte(opcode.End)))
	b.setTable(1)
	b.addElem(0, append(i32Const(0), byte(opcode.End)), []uint32{target})
	calc := b.addFunc(t0, nil, []byte{0x41, 0x00, byte(opcode.CallIndirect), byte(t0), 0x00, byte(opcode.End)})
	b.addExportFunc("calc", calc)
	return b.build()
}

// globalModule: a mutable global starting at 10, with get/inc exports.
func globalModule() []byte {
	b := &moduleBuilder{}
	t0 := b.addType(nil, i32)
	g := b.addGlobal(0x7F, 1, append(i32Const(10), byte(opcode.End)))
	get := b.addFunc(t0, nil, []byte{0x23, byte(g), byte(opcode.End)})
	inc := b.addFunc(t0, nil, []byte{
		0x23, byte(g), 0x41, 0x01, byte(opcode.I32Add), 0x24, byte(g), 0x23, byte(g), byte(opcode.End),
	})
	b.addExportFunc("get", get)
	b.addExportFunc("inc", inc)
	return b.build()
}

func TestVMArithmeticAndControlFlow(t *testing.T) {
	tests := []struct {
		name   string
		module []byte
		vmTest
	}{
		{"add", addModule(), vmTest{entry: "calc", params: []uint64{uint64(uint32(2)), uint64(uint32(3))}, expected: 5}},
		{"neg-const", constModule(), vmTest{entry: "calc", expected: 0xFFFFFFFF}},
		{"local", localModule(), vmTest{entry: "calc", params: []uint64{2}, expected: 3}},
		{"call", callModule(), vmTest{entry: "calc", expected: 16}},
		{"block-low", blockModule(), vmTest{entry: "calc", params: []uint64{30}, expected: 8}},
		{"block-high", blockModule(), vmTest{entry: "calc", params: []uint64{40}, expected: 16}},
		{"loop-sum", loopModule(), vmTest{entry: "calc", expected: 15}},
		{"br_table-case0", brTableModule(), vmTest{entry: "calc", params: []uint64{0}, expected: 8}},
		{"br_table-default", brTableModule(), vmTest{entry: "calc", params: []uint64{1}, expected: 16}},
		{"br_table-oob", brTableModule(), vmTest{entry: "calc", params: []uint64{100}, expected: 16}},
		{"call_indirect", callIndirectModule(), vmTest{entry: "calc", expected: 16}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			v, err := NewVM(test.module, nil, nil, nil)
			if err != nil {
				t.Fatalf("NewVM: %v", err)
			}
			got := mustInvoke(t, v, test.entry, test.params...)
			if got != test.expected {
				t.Errorf("%s: expected %d, got %d", test.name, test.expected, got)
			}
		})
	}
}

func TestVMGlobals(t *testing.T) {
	v, err := NewVM(globalModule(), nil, nil, nil)
	if err != nil {
		t.Fatalf("NewVM: %v", err)
	}
	if got := mustInvoke(t, v, "get"); got != 10 {
		t.Errorf("get: expected 10, got %d", got)
	}
	if got := mustInvoke(t, v, "inc"); got != 11 {
		t.Errorf("inc: expected 11, got %d", got)
	}
	if got := mustInvoke(t, v, "inc"); got != 12 {
		t.Errorf("inc: expected 12, got %d", got)
	}
}

func unreachableModule() []byte {
	b := &moduleBuilder{}
	t0 := b.addType(nil, nil)
	fn := b.addFunc(t0, nil, []byte{byte(opcode.Unreachable), byte(opcode.End)})
	b.addExportFunc("run", fn)
	return b.build()
}

func divModule() []byte {
	b := &moduleBuilder{}
	t0 := b.addType(append(append([]byte{}, i32...), i32...), i32)
	fn := b.addFunc(t0, nil, []byte{0x20, 0x00, 0x20, 0x01, byte(opcode.I32DivS), byte(opcode.End)})
	b.addExportFunc("div", fn)
	return b.build()
}

func TestVMTraps(t *testing.T) {
	v, err := NewVM(unreachableModule(), nil, nil, nil)
	if err != nil {
		t.Fatalf("NewVM: %v", err)
	}
	fnID, _ := v.GetFunctionIndex("run")
	if _, err := v.Invoke(fnID); err != ErrUnreachable {
		t.Errorf("expected ErrUnreachable, got %v", err)
	}

	v, err = NewVM(divModule(), nil, nil, nil)
	if err != nil {
		t.Fatalf("NewVM: %v", err)
	}
	fnID, _ = v.GetFunctionIndex("div")
	if _, err := v.Invoke(fnID, 10, 0); err != ErrIntegerDivisionByZero {
		t.Errorf("expected ErrIntegerDivisionByZero, got %v", err)
	}
	minInt := uint64(uint32(0x80000000))
	negOne := uint64(uint32(0xFFFFFFFF))
	if _, err := v.Invoke(fnID, minInt, negOne); err != ErrIntegerOverflow {
		t.Errorf("expected ErrIntegerOverflow, got %v", err)
	}
}

func TestVMOutOfGas(t *testing.T) {
	v, err := NewVM(loopModule(), &SimpleGasPolicy{}, &Gas{Limit: 3}, nil)
	if err != nil {
		t.Fatalf("NewVM: %v", err)
	}
	fnID, _ := v.GetFunctionIndex("calc")
	if _, err := v.Invoke(fnID); err != ErrOutOfGas {
		t.Errorf("expected ErrOutOfGas, got %v", err)
	}
}

func TestVMUnknownFunction(t *testing.T) {
	v, err := NewVM(addModule(), nil, nil, nil)
	if err != nil {
		t.Fatalf("NewVM: %v", err)
	}
	if _, ok := v.GetFunctionIndex("nope"); ok {
		t.Errorf("expected export lookup to fail")
	}
}

// memarg encodes a load/store instruction's {align, offset} immediate pair.
func memarg(align, offset uint32) []byte {
	return append(encodeULEB(uint64(align)), encodeULEB(uint64(offset))...)
}

// storeLoadModule: run() -> i32 { store 0x11223344 as i32 at address 0;
// return i32.load of that same address }
func storeLoadModule() []byte {
	b := &moduleBuilder{}
	b.setMemory(1)
	t0 := b.addType(nil, i32)
	body := i32Const(0)
	body = append(body, i32Const(0x11223344)...)
	body = append(body, byte(opcode.I32Store))
	body = append(body, memarg(2, 0)...)
	body = append(body, i32Const(0)...)
	body = append(body, byte(opcode.I32Load))
	body = append(body, memarg(2, 0)...)
	body = append(body, byte(opcode.End))
	fn := b.addFunc(t0, nil, body)
	b.addExportFunc("run", fn)
	return b.build()
}

// storeByteOrderModule: run() -> i32 { store 0x11223344 as i32 at address
// 0; return i32.load8_u of address 0 } — the low byte 0x44 confirms the
// store wrote little-endian, matching spec.md's exact-byte-layout case.
func storeByteOrderModule() []byte {
	b := &moduleBuilder{}
	b.setMemory(1)
	t0 := b.addType(nil, i32)
	body := i32Const(0)
	body = append(body, i32Const(0x11223344)...)
	body = append(body, byte(opcode.I32Store))
	body = append(body, memarg(2, 0)...)
	body = append(body, i32Const(0)...)
	body = append(body, byte(opcode.I32Load8U))
	body = append(body, memarg(0, 0)...)
	body = append(body, byte(opcode.End))
	fn := b.addFunc(t0, nil, body)
	b.addExportFunc("run", fn)
	return b.build()
}

// storeNarrowSignExtendModule: run() -> i32 { store8 0xFF at address 0;
// return i32.load8_s of address 0 } — the narrow store truncates to one
// byte and the signed narrow load sign-extends it back to -1.
func storeNarrowSignExtendModule() []byte {
	b := &moduleBuilder{}
	b.setMemory(1)
	t0 := b.addType(nil, i32)
	body := i32Const(0)
	body = append(body, i32Const(0xFF)...)
	body = append(body, byte(opcode.I32Store8))
	body = append(body, memarg(0, 0)...)
	body = append(body, i32Const(0)...)
	body = append(body, byte(opcode.I32Load8S))
	body = append(body, memarg(0, 0)...)
	body = append(body, byte(opcode.End))
	fn := b.addFunc(t0, nil, body)
	b.addExportFunc("run", fn)
	return b.build()
}

func TestVMMemoryStoreLoad(t *testing.T) {
	v, err := NewVM(storeLoadModule(), nil, nil, nil)
	if err != nil {
		t.Fatalf("NewVM: %v", err)
	}
	if got := mustInvoke(t, v, "run"); got != 0x11223344 {
		t.Errorf("expected 0x11223344, got 0x%x", got)
	}

	v, err = NewVM(storeByteOrderModule(), nil, nil, nil)
	if err != nil {
		t.Fatalf("NewVM: %v", err)
	}
	if got := mustInvoke(t, v, "run"); got != 0x44 {
		t.Errorf("expected low byte 0x44, got 0x%x", got)
	}

	v, err = NewVM(storeNarrowSignExtendModule(), nil, nil, nil)
	if err != nil {
		t.Fatalf("NewVM: %v", err)
	}
	if got := mustInvoke(t, v, "run"); got != uint64(uint32(0xFFFFFFFF)) {
		t.Errorf("expected sign-extended -1, got 0x%x", got)
	}
}

// memGrowSizeModule exports grow() -> i32 (memory.grow(delta)) and
// size() -> i32 (memory.size), for a memory starting at min pages and
// capped at max.
func memGrowSizeModule(min, delta, max uint32) []byte {
	b := &moduleBuilder{}
	b.setMemory(min)
	b.memMax = max
	b.hasMemMax = true
	t0 := b.addType(nil, i32)
	growBody := i32Const(int32(delta))
	growBody = append(growBody, byte(opcode.MemoryGrow), 0x00, byte(opcode.End))
	growFn := b.addFunc(t0, nil, growBody)
	sizeFn := b.addFunc(t0, nil, []byte{byte(opcode.MemorySize), 0x00, byte(opcode.End)})
	b.addExportFunc("grow", growFn)
	b.addExportFunc("size", sizeFn)
	return b.build()
}

func TestVMMemoryGrowSize(t *testing.T) {
	v, err := NewVM(memGrowSizeModule(1, 2, 4), nil, nil, nil)
	if err != nil {
		t.Fatalf("NewVM: %v", err)
	}
	if got := mustInvoke(t, v, "size"); got != 1 {
		t.Errorf("expected initial size 1, got %d", got)
	}
	if got := mustInvoke(t, v, "grow"); got != 1 {
		t.Errorf("expected memory.grow to return the previous page count 1, got %d", got)
	}
	if got := mustInvoke(t, v, "size"); got != 3 {
		t.Errorf("expected size 3 after growing by 2, got %d", got)
	}

	v, err = NewVM(memGrowSizeModule(1, 10, 4), nil, nil, nil)
	if err != nil {
		t.Fatalf("NewVM: %v", err)
	}
	if got := mustInvoke(t, v, "grow"); got != uint64(uint32(0xFFFFFFFF)) {
		t.Errorf("expected memory.grow past max to return -1, got %d", got)
	}
	if got := mustInvoke(t, v, "size"); got != 1 {
		t.Errorf("expected size to stay at 1 after a failed grow, got %d", got)
	}
}
