package vm

import (
	"github.com/vertexvm/vertexvm/leb128"
	"github.com/vertexvm/vertexvm/opcode"
)

// blockArity reports how many result values a block/loop/if's blocktype
// produces. Per spec scope, a type-index blocktype is assumed to carry no
// block parameters (WASM 1.0 toolchains never emit one that does; that
// needs the multi-value proposal this VM does not implement).
func (vm *VM) blockArity(bt int64) int {
	switch {
	case bt == -0x40:
		return 0
	case bt < 0:
		return 1
	default:
		if vm.Module.TypeSec == nil || int(bt) >= len(vm.Module.TypeSec.FuncTypes) {
			panic(ErrInvalidBlockType)
		}
		return len(vm.Module.TypeSec.FuncTypes[bt].ReturnTypes)
	}
}

func readBlockType(code []byte, ip int) (int64, int) {
	v, n, err := leb128.DecodeAt(code, ip, 33, true)
	if err != nil {
		panic(ErrInvalidBlockType)
	}
	return v, n
}

// scanMatchingEnd returns the absolute index of the `end` opcode that
// closes the block/loop/if whose body starts at ip, tracking nested
// block/loop/if depth the same way the decoder's body-capture scan does.
func scanMatchingEnd(code []byte, ip int) int {
	depth := 0
	for ip < len(code) {
		op := opcode.Opcode(code[ip])
		pos := ip
		ip++
		switch op {
		case opcode.Block, opcode.Loop, opcode.If:
			depth++
		case opcode.End:
			if depth == 0 {
				return pos
			}
			depth--
		}
		ip += opcode.ImmediateLen(op, code, ip)
	}
	panic(ErrUnknownOpcode)
}

// scanIfTargets is scanMatchingEnd's `if` variant: it also reports the
// position of a same-depth `else`, or -1 if the if has none.
func scanIfTargets(code []byte, ip int) (elsePos int, endPos int) {
	depth := 0
	elsePos = -1
	for ip < len(code) {
		op := opcode.Opcode(code[ip])
		pos := ip
		ip++
		switch op {
		case opcode.Block, opcode.Loop, opcode.If:
			depth++
		case opcode.Else:
			if depth == 0 {
				elsePos = pos
			}
		case opcode.End:
			if depth == 0 {
				return elsePos, pos
			}
			depth--
		}
		ip += opcode.ImmediateLen(op, code, ip)
	}
	panic(ErrUnknownOpcode)
}

// branch implements `br`/`br_if`/`br_table`'s common target resolution:
// depth counts outward from the innermost currently open label. Branching
// to a loop label re-enters its body; branching to anything else (a
// block/if label, or the frame's own implicit function label) exits it,
// retaining the label's arity-many result values.
func (vm *VM) branch(depth int) {
	targetIdx := vm.labelsIndex - 1 - depth
	if targetIdx < 0 {
		panic(ErrInvalidBreakDepth)
	}
	lbl := vm.labels[targetIdx]
	frame := vm.currentFrame()

	if lbl.kind == labelLoop {
		vm.labelsIndex = targetIdx + 1
		vm.sp = lbl.stackHeight
		frame.ip = lbl.target - 1
		return
	}

	var saved [1]uint64
	if lbl.arity > 0 {
		saved[0] = vm.stack[vm.sp-1]
	}
	vm.sp = lbl.stackHeight
	vm.labelsIndex = targetIdx
	if lbl.arity > 0 {
		vm.push(saved[0])
	}

	if lbl.kind == labelFunction {
		vm.returnFromFrame()
		return
	}
	frame.ip = lbl.target
}
