package vm

import (
	"math"
	"math/bits"

	math32 "github.com/chewxy/math32"
	"github.com/vertexvm/vertexvm/leb128"
	"github.com/vertexvm/vertexvm/number"
	"github.com/vertexvm/vertexvm/opcode"
	"github.com/vertexvm/vertexvm/wasm"
)

// step dispatches one instruction. code is the current frame's full
// instruction stream, ip the index of op's own opcode byte. Most opcodes
// only need to advance frame.ip past their immediate; control-flow opcodes
// may redirect it elsewhere entirely.
func (vm *VM) step(op opcode.Opcode, code []byte, ip int, frame *Frame) {
	switch op {
	case opcode.Unreachable:
		panic(ErrUnreachable)
	case opcode.Nop:
		return

	case opcode.Block:
		vm.opBlock(code, ip, frame)
		return
	case opcode.Loop:
		vm.opLoop(code, ip, frame)
		return
	case opcode.If:
		vm.opIf(code, ip, frame)
		return
	case opcode.Else:
		lbl := vm.labels[vm.labelsIndex-1]
		frame.ip = lbl.target - 1
		return
	case opcode.End:
		vm.opEnd()
		return
	case opcode.Br:
		depth, n := readU32(code, ip+1)
		frame.ip = ip + n
		vm.branch(int(depth))
		return
	case opcode.BrIf:
		depth, n := readU32(code, ip+1)
		frame.ip = ip + n
		if vm.pop() != 0 {
			vm.branch(int(depth))
		}
		return
	case opcode.BrTable:
		vm.opBrTable(code, ip, frame)
		return
	case opcode.Return:
		vm.branch(vm.labelsIndex - 1 - frame.baseLabelIndex)
		return
	case opcode.Call:
		idx, n := readU32(code, ip+1)
		frame.ip = ip + n
		vm.invokeFunction(int(idx))
		return
	case opcode.CallIndirect:
		vm.opCallIndirect(code, ip, frame)
		return

	case opcode.Drop:
		vm.pop()
		return
	case opcode.Select:
		c := vm.pop()
		b := vm.pop()
		a := vm.pop()
		if c != 0 {
			vm.push(a)
		} else {
			vm.push(b)
		}
		return

	case opcode.LocalGet:
		idx, n := readU32(code, ip+1)
		frame.ip = ip + n
		vm.push(vm.stack[frame.basePointer+int(idx)])
		return
	case opcode.LocalSet:
		idx, n := readU32(code, ip+1)
		frame.ip = ip + n
		vm.stack[frame.basePointer+int(idx)] = vm.pop()
		return
	case opcode.LocalTee:
		idx, n := readU32(code, ip+1)
		frame.ip = ip + n
		vm.stack[frame.basePointer+int(idx)] = vm.peek()
		return
	case opcode.GlobalGet:
		idx, n := readU32(code, ip+1)
		frame.ip = ip + n
		vm.push(vm.globals[idx].Value)
		return
	case opcode.GlobalSet:
		idx, n := readU32(code, ip+1)
		frame.ip = ip + n
		if vm.globals[idx].Type.Mut != wasm.Mutable {
			panic(ErrGlobalNotMutable)
		}
		vm.globals[idx].Value = vm.pop()
		return
	}

	if op >= opcode.I32Load && op <= opcode.I64Store32 {
		vm.opMemAccess(op, code, ip, frame)
		return
	}
	if op == opcode.MemorySize {
		frame.ip = ip + 1
		vm.push(uint64(uint32(len(vm.memory) / wasm.PageSize)))
		return
	}
	if op == opcode.MemoryGrow {
		frame.ip = ip + 1
		delta := uint32(vm.pop())
		vm.push(uint64(uint32(vm.growMemory(delta))))
		return
	}

	switch op {
	case opcode.I32Const:
		v, n := readS32(code, ip+1)
		frame.ip = ip + n
		vm.push(uint64(uint32(v)))
		return
	case opcode.I64Const:
		v, n := readS64(code, ip+1)
		frame.ip = ip + n
		vm.push(uint64(v))
		return
	case opcode.F32Const:
		v := uint32(code[ip+1]) | uint32(code[ip+2])<<8 | uint32(code[ip+3])<<16 | uint32(code[ip+4])<<24
		frame.ip = ip + 4
		vm.push(uint64(v))
		return
	case opcode.F64Const:
		var v uint64
		for i := 0; i < 8; i++ {
			v |= uint64(code[ip+1+i]) << (8 * i)
		}
		frame.ip = ip + 8
		vm.push(v)
		return
	}

	if op >= opcode.I32Eqz && op <= opcode.I32GeU {
		vm.opI32Compare(op)
		return
	}
	if op >= opcode.I64Eqz && op <= opcode.I64GeU {
		vm.opI64Compare(op)
		return
	}
	if op >= opcode.F32Eq && op <= opcode.F32Ge {
		vm.opF32Compare(op)
		return
	}
	if op >= opcode.F64Eq && op <= opcode.F64Ge {
		vm.opF64Compare(op)
		return
	}
	if op >= opcode.I32Clz && op <= opcode.I32Rotr {
		vm.opI32Arith(op)
		return
	}
	if op >= opcode.I64Clz && op <= opcode.I64Rotr {
		vm.opI64Arith(op)
		return
	}
	if op >= opcode.F32Abs && op <= opcode.F32Copysign {
		vm.opF32Arith(op)
		return
	}
	if op >= opcode.F64Abs && op <= opcode.F64Copysign {
		vm.opF64Arith(op)
		return
	}
	if op >= opcode.I32WrapI64 && op <= opcode.F64ReinterpretI64 {
		vm.opConvert(op)
		return
	}
	if op >= opcode.I32Extend8S && op <= opcode.I64Extend32S {
		vm.opExtend(op)
		return
	}

	switch op {
	case opcode.RefNull:
		frame.ip = ip + 1
		vm.push(refNull)
		return
	case opcode.RefIsNull:
		if vm.pop() == refNull {
			vm.push(1)
		} else {
			vm.push(0)
		}
		return
	case opcode.RefFunc:
		idx, n := readU32(code, ip+1)
		frame.ip = ip + n
		vm.push(uint64(idx))
		return
	}

	panic(ErrUnknownOpcode)
}

// refNull is the sentinel null-reference value RefNull produces.
const refNull = ^uint64(0)

func readU32(code []byte, ip int) (uint32, int) {
	v, n, err := leb128.DecodeAt(code, ip, 32, false)
	if err != nil {
		panic(ErrUnknownOpcode)
	}
	return uint32(v), n
}

func readS32(code []byte, ip int) (int32, int) {
	v, n, err := leb128.DecodeAt(code, ip, 32, true)
	if err != nil {
		panic(ErrUnknownOpcode)
	}
	return int32(v), n
}

func readS64(code []byte, ip int) (int64, int) {
	v, n, err := leb128.DecodeAt(code, ip, 64, true)
	if err != nil {
		panic(ErrUnknownOpcode)
	}
	return v, n
}

func (vm *VM) opBlock(code []byte, ip int, frame *Frame) {
	bt, n := readBlockType(code, ip+1)
	bodyStart := ip + 1 + n
	endPos := scanMatchingEnd(code, bodyStart)
	vm.pushLabel(label{kind: labelBlock, stackHeight: vm.sp, arity: vm.blockArity(bt), target: endPos})
	frame.ip = bodyStart - 1
}

func (vm *VM) opLoop(code []byte, ip int, frame *Frame) {
	bt, n := readBlockType(code, ip+1)
	bodyStart := ip + 1 + n
	vm.pushLabel(label{kind: labelLoop, stackHeight: vm.sp, arity: 0, target: bodyStart})
	frame.ip = bodyStart - 1
}

func (vm *VM) opIf(code []byte, ip int, frame *Frame) {
	bt, n := readBlockType(code, ip+1)
	bodyStart := ip + 1 + n
	elsePos, endPos := scanIfTargets(code, bodyStart)
	arity := vm.blockArity(bt)
	cond := vm.pop()
	vm.pushLabel(label{kind: labelBlock, stackHeight: vm.sp, arity: arity, target: endPos})
	switch {
	case cond != 0:
		frame.ip = bodyStart - 1
	case elsePos >= 0:
		frame.ip = elsePos
	default:
		frame.ip = endPos - 1
	}
}

func (vm *VM) opEnd() {
	lbl := vm.labels[vm.labelsIndex-1]
	if lbl.kind == labelFunction {
		vm.branch(0)
		return
	}
	vm.popLabel()
}

func (vm *VM) opBrTable(code []byte, ip int, frame *Frame) {
	pos := ip + 1
	count, n := readU32(code, pos)
	pos += n
	targets := make([]uint32, count)
	for i := uint32(0); i < count; i++ {
		v, ln := opcode.ReadULEBValue(code, pos)
		targets[i] = uint32(v)
		pos += ln
	}
	def, ln := readU32(code, pos)
	pos += ln
	frame.ip = pos - 1

	idx := uint32(vm.pop())
	if idx < uint32(len(targets)) {
		vm.branch(int(targets[idx]))
		return
	}
	vm.branch(int(def))
}

func (vm *VM) opCallIndirect(code []byte, ip int, frame *Frame) {
	typeIdx, n1 := readU32(code, ip+1)
	_, n2, err := leb128.DecodeAt(code, ip+1+n1, 32, false) // reserved table index, always 0 in MVP
	if err != nil {
		panic(ErrUnknownOpcode)
	}
	frame.ip = ip + n1 + n2

	elemIdx := uint32(vm.pop())
	if len(vm.Module.TableIndexSpace) == 0 || int(elemIdx) >= len(vm.Module.TableIndexSpace[0]) {
		panic(ErrOutOfBoundTableAccess)
	}
	funcIdx := vm.Module.TableIndexSpace[0][elemIdx]
	if funcIdx == wasm.ElemSentinelUnset {
		panic(ErrUninitializedElement)
	}
	fn := vm.Module.GetFunction(int(funcIdx))
	if fn == nil {
		panic(ErrUndefinedElement)
	}
	if vm.Module.TypeSec == nil || int(typeIdx) >= len(vm.Module.TypeSec.FuncTypes) {
		panic(ErrInvalidBlockType)
	}
	if !fn.Type.Equal(vm.Module.TypeSec.FuncTypes[typeIdx]) {
		panic(ErrMismatchedFuncSig)
	}
	vm.invokeFunction(int(funcIdx))
}

func (vm *VM) opMemAccess(op opcode.Opcode, code []byte, ip int, frame *Frame) {
	_, n1 := readU32(code, ip+1) // align hint, unused
	offset, n2 := readU32(code, ip+1+n1)
	frame.ip = ip + n1 + n2

	switch op {
	case opcode.I32Store, opcode.I64Store, opcode.F32Store, opcode.F64Store,
		opcode.I32Store8, opcode.I32Store16, opcode.I64Store8, opcode.I64Store16, opcode.I64Store32:
		value := vm.pop()
		addr := effectiveAddr(uint32(vm.pop()), offset)
		switch op {
		case opcode.I32Store, opcode.F32Store:
			vm.storeU32(addr, uint32(value))
		case opcode.I64Store, opcode.F64Store:
			vm.storeU64(addr, value)
		case opcode.I32Store8, opcode.I64Store8:
			vm.storeU8(addr, uint8(value))
		case opcode.I32Store16, opcode.I64Store16:
			vm.storeU16(addr, uint16(value))
		case opcode.I64Store32:
			vm.storeU32(addr, uint32(value))
		}
		return
	default:
		addr := effectiveAddr(uint32(vm.pop()), offset)
		switch op {
		case opcode.I32Load, opcode.F32Load:
			vm.push(vm.loadU32(addr))
		case opcode.I64Load, opcode.F64Load:
			vm.push(vm.loadU64(addr))
		case opcode.I32Load8S:
			vm.push(uint64(uint32(int32(int8(vm.loadU8(addr))))))
		case opcode.I32Load8U:
			vm.push(vm.loadU8(addr))
		case opcode.I32Load16S:
			vm.push(uint64(uint32(int32(int16(vm.loadU16(addr))))))
		case opcode.I32Load16U:
			vm.push(vm.loadU16(addr))
		case opcode.I64Load8S:
			vm.push(uint64(int64(int8(vm.loadU8(addr)))))
		case opcode.I64Load8U:
			vm.push(vm.loadU8(addr))
		case opcode.I64Load16S:
			vm.push(uint64(int64(int16(vm.loadU16(addr)))))
		case opcode.I64Load16U:
			vm.push(vm.loadU16(addr))
		case opcode.I64Load32S:
			vm.push(uint64(int64(int32(vm.loadU32(addr)))))
		case opcode.I64Load32U:
			vm.push(vm.loadU32(addr))
		}
	}
}

func (vm *VM) opI32Compare(op opcode.Opcode) {
	if op == opcode.I32Eqz {
		a := int32(vm.pop())
		vm.pushBool(a == 0)
		return
	}
	b := int32(vm.pop())
	a := int32(vm.pop())
	switch op {
	case opcode.I32Eq:
		vm.pushBool(a == b)
	case opcode.I32Ne:
		vm.pushBool(a != b)
	case opcode.I32LtS:
		vm.pushBool(a < b)
	case opcode.I32LtU:
		vm.pushBool(uint32(a) < uint32(b))
	case opcode.I32GtS:
		vm.pushBool(a > b)
	case opcode.I32GtU:
		vm.pushBool(uint32(a) > uint32(b))
	case opcode.I32LeS:
		vm.pushBool(a <= b)
	case opcode.I32LeU:
		vm.pushBool(uint32(a) <= uint32(b))
	case opcode.I32GeS:
		vm.pushBool(a >= b)
	case opcode.I32GeU:
		vm.pushBool(uint32(a) >= uint32(b))
	}
}

func (vm *VM) opI64Compare(op opcode.Opcode) {
	if op == opcode.I64Eqz {
		a := int64(vm.pop())
		vm.pushBool(a == 0)
		return
	}
	b := int64(vm.pop())
	a := int64(vm.pop())
	switch op {
	case opcode.I64Eq:
		vm.pushBool(a == b)
	case opcode.I64Ne:
		vm.pushBool(a != b)
	case opcode.I64LtS:
		vm.pushBool(a < b)
	case opcode.I64LtU:
		vm.pushBool(uint64(a) < uint64(b))
	case opcode.I64GtS:
		vm.pushBool(a > b)
	case opcode.I64GtU:
		vm.pushBool(uint64(a) > uint64(b))
	case opcode.I64LeS:
		vm.pushBool(a <= b)
	case opcode.I64LeU:
		vm.pushBool(uint64(a) <= uint64(b))
	case opcode.I64GeS:
		vm.pushBool(a >= b)
	case opcode.I64GeU:
		vm.pushBool(uint64(a) >= uint64(b))
	}
}

func (vm *VM) pushBool(v bool) {
	if v {
		vm.push(1)
	} else {
		vm.push(0)
	}
}

func f32Of(v uint64) float32 { return math.Float32frombits(uint32(v)) }
func f64Of(v uint64) float64 { return math.Float64frombits(v) }
func bitsOf32(v float32) uint64 { return uint64(math.Float32bits(v)) }
func bitsOf64(v float64) uint64 { return math.Float64bits(v) }

func (vm *VM) opF32Compare(op opcode.Opcode) {
	b := f32Of(vm.pop())
	a := f32Of(vm.pop())
	switch op {
	case opcode.F32Eq:
		vm.pushBool(a == b)
	case opcode.F32Ne:
		vm.pushBool(a != b)
	case opcode.F32Lt:
		vm.pushBool(a < b)
	case opcode.F32Gt:
		vm.pushBool(a > b)
	case opcode.F32Le:
		vm.pushBool(a <= b)
	case opcode.F32Ge:
		vm.pushBool(a >= b)
	}
}

func (vm *VM) opF64Compare(op opcode.Opcode) {
	b := f64Of(vm.pop())
	a := f64Of(vm.pop())
	switch op {
	case opcode.F64Eq:
		vm.pushBool(a == b)
	case opcode.F64Ne:
		vm.pushBool(a != b)
	case opcode.F64Lt:
		vm.pushBool(a < b)
	case opcode.F64Gt:
		vm.pushBool(a > b)
	case opcode.F64Le:
		vm.pushBool(a <= b)
	case opcode.F64Ge:
		vm.pushBool(a >= b)
	}
}

func (vm *VM) opI32Arith(op opcode.Opcode) {
	if op == opcode.I32Clz || op == opcode.I32Ctz || op == opcode.I32Popcnt {
		a := uint32(vm.pop())
		switch op {
		case opcode.I32Clz:
			vm.push(uint64(bits.LeadingZeros32(a)))
		case opcode.I32Ctz:
			vm.push(uint64(bits.TrailingZeros32(a)))
		case opcode.I32Popcnt:
			vm.push(uint64(bits.OnesCount32(a)))
		}
		return
	}
	b := int32(vm.pop())
	a := int32(vm.pop())
	var c int32
	switch op {
	case opcode.I32Add:
		c = a + b
	case opcode.I32Sub:
		c = a - b
	case opcode.I32Mul:
		c = a * b
	case opcode.I32DivS:
		if b == 0 {
			panic(ErrIntegerDivisionByZero)
		}
		if a == math.MinInt32 && b == -1 {
			panic(ErrIntegerOverflow)
		}
		c = a / b
	case opcode.I32DivU:
		if b == 0 {
			panic(ErrIntegerDivisionByZero)
		}
		c = int32(uint32(a) / uint32(b))
	case opcode.I32RemS:
		if b == 0 {
			panic(ErrIntegerDivisionByZero)
		}
		c = a % b
	case opcode.I32RemU:
		if b == 0 {
			panic(ErrIntegerDivisionByZero)
		}
		c = int32(uint32(a) % uint32(b))
	case opcode.I32And:
		c = a & b
	case opcode.I32Or:
		c = a | b
	case opcode.I32Xor:
		c = a ^ b
	case opcode.I32Shl:
		c = a << (uint32(b) % 32)
	case opcode.I32ShrS:
		c = a >> (uint32(b) % 32)
	case opcode.I32ShrU:
		c = int32(uint32(a) >> (uint32(b) % 32))
	case opcode.I32Rotl:
		c = int32(bits.RotateLeft32(uint32(a), int(b)))
	case opcode.I32Rotr:
		c = int32(bits.RotateLeft32(uint32(a), -int(b)))
	}
	vm.push(uint64(uint32(c)))
}

func (vm *VM) opI64Arith(op opcode.Opcode) {
	if op == opcode.I64Clz || op == opcode.I64Ctz || op == opcode.I64Popcnt {
		a := uint64(vm.pop())
		switch op {
		case opcode.I64Clz:
			vm.push(uint64(bits.LeadingZeros64(a)))
		case opcode.I64Ctz:
			vm.push(uint64(bits.TrailingZeros64(a)))
		case opcode.I64Popcnt:
			vm.push(uint64(bits.OnesCount64(a)))
		}
		return
	}
	b := int64(vm.pop())
	a := int64(vm.pop())
	var c int64
	switch op {
	case opcode.I64Add:
		c = a + b
	case opcode.I64Sub:
		c = a - b
	case opcode.I64Mul:
		c = a * b
	case opcode.I64DivS:
		if b == 0 {
			panic(ErrIntegerDivisionByZero)
		}
		if a == math.MinInt64 && b == -1 {
			panic(ErrIntegerOverflow)
		}
		c = a / b
	case opcode.I64DivU:
		if b == 0 {
			panic(ErrIntegerDivisionByZero)
		}
		c = int64(uint64(a) / uint64(b))
	case opcode.I64RemS:
		if b == 0 {
			panic(ErrIntegerDivisionByZero)
		}
		c = a % b
	case opcode.I64RemU:
		if b == 0 {
			panic(ErrIntegerDivisionByZero)
		}
		c = int64(uint64(a) % uint64(b))
	case opcode.I64And:
		c = a & b
	case opcode.I64Or:
		c = a | b
	case opcode.I64Xor:
		c = a ^ b
	case opcode.I64Shl:
		c = a << (uint64(b) % 64)
	case opcode.I64ShrS:
		c = a >> (uint64(b) % 64)
	case opcode.I64ShrU:
		c = int64(uint64(a) >> (uint64(b) % 64))
	case opcode.I64Rotl:
		c = int64(bits.RotateLeft64(uint64(a), int(b)))
	case opcode.I64Rotr:
		c = int64(bits.RotateLeft64(uint64(a), -int(b)))
	}
	vm.push(uint64(c))
}

func (vm *VM) opF32Arith(op opcode.Opcode) {
	if op >= opcode.F32Abs && op <= opcode.F32Sqrt {
		a := f32Of(vm.pop())
		var c float32
		switch op {
		case opcode.F32Abs:
			c = math32.Abs(a)
		case opcode.F32Neg:
			c = -a
		case opcode.F32Ceil:
			c = math32.Ceil(a)
		case opcode.F32Floor:
			c = math32.Floor(a)
		case opcode.F32Trunc:
			c = math32.Trunc(a)
		case opcode.F32Nearest:
			c = float32(math.RoundToEven(float64(a)))
		case opcode.F32Sqrt:
			c = math32.Sqrt(a)
		}
		vm.push(bitsOf32(c))
		return
	}
	b := f32Of(vm.pop())
	a := f32Of(vm.pop())
	var c float32
	switch op {
	case opcode.F32Add:
		c = a + b
	case opcode.F32Sub:
		c = a - b
	case opcode.F32Mul:
		c = a * b
	case opcode.F32Div:
		c = a / b
	case opcode.F32Min:
		c = f32Min(a, b)
	case opcode.F32Max:
		c = f32Max(a, b)
	case opcode.F32Copysign:
		c = f32Copysign(a, b)
	}
	vm.push(bitsOf32(c))
}

func (vm *VM) opF64Arith(op opcode.Opcode) {
	if op >= opcode.F64Abs && op <= opcode.F64Sqrt {
		a := f64Of(vm.pop())
		var c float64
		switch op {
		case opcode.F64Abs:
			c = math.Abs(a)
		case opcode.F64Neg:
			c = -a
		case opcode.F64Ceil:
			c = math.Ceil(a)
		case opcode.F64Floor:
			c = math.Floor(a)
		case opcode.F64Trunc:
			c = math.Trunc(a)
		case opcode.F64Nearest:
			c = math.RoundToEven(a)
		case opcode.F64Sqrt:
			c = math.Sqrt(a)
		}
		vm.push(bitsOf64(c))
		return
	}
	b := f64Of(vm.pop())
	a := f64Of(vm.pop())
	var c float64
	switch op {
	case opcode.F64Add:
		c = a + b
	case opcode.F64Sub:
		c = a - b
	case opcode.F64Mul:
		c = a * b
	case opcode.F64Div:
		c = a / b
	case opcode.F64Min:
		c = f64Min(a, b)
	case opcode.F64Max:
		c = f64Max(a, b)
	case opcode.F64Copysign:
		c = math.Copysign(a, b)
	}
	vm.push(bitsOf64(c))
}

func f32Min(a, b float32) float32 {
	if math32.IsNaN(a) {
		return a
	}
	if math32.IsNaN(b) {
		return b
	}
	if a == 0 && b == 0 {
		if math.Signbit(float64(a)) {
			return a
		}
		return b
	}
	if a < b {
		return a
	}
	return b
}

func f32Max(a, b float32) float32 {
	if math32.IsNaN(a) {
		return a
	}
	if math32.IsNaN(b) {
		return b
	}
	if a == 0 && b == 0 {
		if !math.Signbit(float64(a)) {
			return a
		}
		return b
	}
	if a > b {
		return a
	}
	return b
}

func f32Copysign(a, b float32) float32 {
	const sign = uint32(1) << 31
	ab := math.Float32bits(a)
	bb := math.Float32bits(b)
	return math.Float32frombits((ab &^ sign) | (bb & sign))
}

func f64Min(a, b float64) float64 {
	if math.IsNaN(a) {
		return a
	}
	if math.IsNaN(b) {
		return b
	}
	if a == 0 && b == 0 {
		if math.Signbit(a) {
			return a
		}
		return b
	}
	if a < b {
		return a
	}
	return b
}

func f64Max(a, b float64) float64 {
	if math.IsNaN(a) {
		return a
	}
	if math.IsNaN(b) {
		return b
	}
	if a == 0 && b == 0 {
		if !math.Signbit(a) {
			return a
		}
		return b
	}
	if a > b {
		return a
	}
	return b
}

func (vm *VM) opConvert(op opcode.Opcode) {
	switch op {
	case opcode.I32WrapI64:
		vm.push(uint64(uint32(vm.pop())))
	case opcode.I32TruncF32S:
		vm.pushTrunc(number.F32, number.I32)
	case opcode.I32TruncF32U:
		vm.pushTrunc(number.F32, number.U32)
	case opcode.I32TruncF64S:
		vm.pushTrunc(number.F64, number.I32)
	case opcode.I32TruncF64U:
		vm.pushTrunc(number.F64, number.U32)
	case opcode.I64ExtendI32S:
		vm.push(uint64(int64(int32(vm.pop()))))
	case opcode.I64ExtendI32U:
		vm.push(uint64(uint32(vm.pop())))
	case opcode.I64TruncF32S:
		vm.pushTrunc(number.F32, number.I64)
	case opcode.I64TruncF32U:
		vm.pushTrunc(number.F32, number.U64)
	case opcode.I64TruncF64S:
		vm.pushTrunc(number.F64, number.I64)
	case opcode.I64TruncF64U:
		vm.pushTrunc(number.F64, number.U64)
	case opcode.F32ConvertI32S:
		vm.push(bitsOf32(float32(int32(vm.pop()))))
	case opcode.F32ConvertI32U:
		vm.push(bitsOf32(float32(uint32(vm.pop()))))
	case opcode.F32ConvertI64S:
		vm.push(bitsOf32(float32(int64(vm.pop()))))
	case opcode.F32ConvertI64U:
		vm.push(bitsOf32(float32(vm.pop())))
	case opcode.F32DemoteF64:
		vm.push(bitsOf32(float32(f64Of(vm.pop()))))
	case opcode.F64ConvertI32S:
		vm.push(bitsOf64(float64(int32(vm.pop()))))
	case opcode.F64ConvertI32U:
		vm.push(bitsOf64(float64(uint32(vm.pop()))))
	case opcode.F64ConvertI64S:
		vm.push(bitsOf64(float64(int64(vm.pop()))))
	case opcode.F64ConvertI64U:
		vm.push(bitsOf64(float64(vm.pop())))
	case opcode.F64PromoteF32:
		vm.push(bitsOf64(float64(f32Of(vm.pop()))))
	case opcode.I32ReinterpretF32, opcode.I64ReinterpretF64, opcode.F32ReinterpretI32, opcode.F64ReinterpretI64:
		// Raw bit patterns are already the stack's native representation.
		return
	}
}

func (vm *VM) pushTrunc(from, to number.Type) {
	v, trap := number.FloatTruncate(from, to, vm.pop())
	switch trap {
	case number.NanTrap:
		panic(ErrInvalidIntConversion)
	case number.ConvertTrap:
		panic(ErrIntegerOverflow)
	}
	vm.push(v)
}

func (vm *VM) opExtend(op opcode.Opcode) {
	switch op {
	case opcode.I32Extend8S:
		vm.push(uint64(uint32(int32(int8(vm.pop())))))
	case opcode.I32Extend16S:
		vm.push(uint64(uint32(int32(int16(vm.pop())))))
	case opcode.I64Extend8S:
		vm.push(uint64(int64(int8(vm.pop()))))
	case opcode.I64Extend16S:
		vm.push(uint64(int64(int16(vm.pop()))))
	case opcode.I64Extend32S:
		vm.push(uint64(int64(int32(vm.pop()))))
	}
}
