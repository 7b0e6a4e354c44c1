// Package vm implements a stack-based interpreter for WASM 1.0 (MVP)
// modules: structured control via a label stack, linear memory with a
// trapping bounds model, and a host-import bridge via Resolver.
package vm

import (
	"fmt"

	"github.com/vertexvm/vertexvm/opcode"
	"github.com/vertexvm/vertexvm/wasm"
)

// StackSize is the operand stack depth, shared by locals and expression
// evaluation within a call.
const StackSize = 1024 * 8

// MaxFrames bounds call depth; exceeding it traps as call stack exhaustion.
const MaxFrames = 1024

// MaxLabels bounds the number of concurrently open block/loop/if scopes
// across the whole call stack.
const MaxLabels = 4096

// VM is one instantiated WASM module plus its execution state.
type VM struct {
	Module *wasm.Module

	stack []uint64
	sp    int

	frames      []*Frame
	framesIndex int

	labels      []label
	labelsIndex int

	globals []wasm.GlobalInstance

	memory    []byte
	memoryMax wasm.Limits

	hostFuncs []HostFunction
	resolver  Resolver

	gasPolicy GasPolicy
	gas       *Gas
}

// NewVM decodes code and instantiates it: resolves globals, sets up linear
// memory and tables, binds imports through resolver, and (per spec) runs
// the start function if the module declares one.
func NewVM(code []byte, gasPolicy GasPolicy, gas *Gas, resolver Resolver) (*VM, error) {
	m, err := wasm.Decode(code)
	if err != nil {
		return nil, err
	}
	if gasPolicy == nil {
		gasPolicy = &FreeGasPolicy{}
	}
	if gas == nil {
		gas = &Gas{}
	}

	globals, err := m.ResolveGlobals()
	if err != nil {
		return nil, err
	}

	vm := &VM{
		Module:    m,
		stack:     make([]uint64, StackSize),
		frames:    make([]*Frame, MaxFrames),
		labels:    make([]label, MaxLabels),
		globals:   globals,
		gasPolicy: gasPolicy,
		gas:       gas,
		resolver:  resolver,
	}

	if len(m.LinearMemoryIndexSpace) > 0 {
		vm.memory = m.LinearMemoryIndexSpace[0]
		vm.memoryMax = m.MemoryMax[0]
	}

	if m.ImportFuncCount > 0 {
		vm.hostFuncs = make([]HostFunction, m.ImportFuncCount)
		for i := 0; i < m.ImportFuncCount; i++ {
			fn := m.FunctionIndexSpace[i]
			if resolver == nil {
				return nil, fmt.Errorf("%w: %s.%s", ErrImportNotResolved, fn.ImportModule, fn.ImportField)
			}
			host := resolver.GetFunction(fn.ImportModule, fn.ImportField)
			if host == nil {
				return nil, fmt.Errorf("%w: %s.%s", ErrImportNotResolved, fn.ImportModule, fn.ImportField)
			}
			vm.hostFuncs[i] = host
		}
	}

	if m.StartSec != nil {
		if _, err := vm.Invoke(int64(m.StartSec.FuncIdx)); err != nil {
			return nil, err
		}
	}

	return vm, nil
}

// GetFunctionIndex resolves an exported function's index-space index.
func (vm *VM) GetFunctionIndex(name string) (int64, bool) {
	if vm.Module.ExportSec == nil {
		return 0, false
	}
	exp, ok := vm.Module.ExportSec.ExportMap[name]
	if !ok || exp.Desc.Kind != wasm.ExternalFunction {
		return 0, false
	}
	return int64(exp.Desc.Idx), true
}

// Invoke calls the function at fnIdx with args, running it to completion.
// Any trap raised during execution is recovered here and returned as err.
func (vm *VM) Invoke(fnIdx int64, args ...uint64) (ret uint64, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
			} else {
				err = fmt.Errorf("vm: %v", r)
			}
			ret = 0
		}
	}()

	fn := vm.Module.GetFunction(int(fnIdx))
	if fn == nil {
		return 0, ErrFuncNotFound
	}
	if len(args) != len(fn.Type.ParamTypes) {
		return 0, ErrWrongNumberOfArgs
	}

	vm.sp = 0
	vm.framesIndex = 0
	vm.labelsIndex = 0
	for _, a := range args {
		vm.push(a)
	}

	vm.invokeFunction(int(fnIdx))
	if vm.framesIndex > 0 {
		ret = vm.run()
	} else if vm.sp > 0 {
		ret = vm.stack[vm.sp-1]
	}
	return ret, nil
}

// run drives the dispatch loop across every nested call frame until the
// outermost Invoke call returns, i.e. until the implicit function label
// pushed for fnIdx itself is branched to.
func (vm *VM) run() uint64 {
	for vm.framesIndex > 0 {
		frame := vm.currentFrame()
		frame.ip++
		ip := frame.ip
		code := frame.instructions()
		op := opcode.Opcode(code[ip])

		if !vm.chargeGas(vm.gasPolicy.GetCostForOp(op)) {
			panic(ErrOutOfGas)
		}
		vm.step(op, code, ip, frame)
	}
	if vm.sp == 0 {
		return 0
	}
	return vm.stack[vm.sp-1]
}

func (vm *VM) chargeGas(cost uint64) bool {
	if vm.gas.Used+cost > vm.gas.Limit {
		return false
	}
	vm.gas.Used += cost
	return true
}

// invokeFunction calls the function at idx: a host import runs immediately
// against the current operand stack, a local function gets a new Frame and
// continues in the shared dispatch loop.
func (vm *VM) invokeFunction(idx int) {
	fn := vm.Module.GetFunction(idx)
	if fn == nil {
		panic(ErrFuncNotFound)
	}
	if fn.IsImport {
		host := vm.hostFuncs[idx]
		if host == nil {
			panic(ErrImportNotResolved)
		}
		n := len(fn.Type.ParamTypes)
		args := make([]uint64, n)
		copy(args, vm.stack[vm.sp-n:vm.sp])
		vm.sp -= n
		ret := host(vm, args...)
		if len(fn.Type.ReturnTypes) > 0 {
			vm.push(ret)
		}
		return
	}
	vm.setupFrame(fn, idx)
}

func (vm *VM) setupFrame(fn *wasm.Function, idx int) {
	basePointer := vm.sp - len(fn.Type.ParamTypes)
	totalLocals := len(fn.Type.ParamTypes)
	for _, le := range fn.Code.Locals {
		totalLocals += int(le.Count)
	}
	for i := len(fn.Type.ParamTypes); i < totalLocals; i++ {
		vm.push(0)
	}

	baseLabelIndex := vm.labelsIndex
	vm.pushLabel(label{kind: labelFunction, stackHeight: basePointer, arity: len(fn.Type.ReturnTypes)})
	vm.pushFrame(newFrame(fn, basePointer, baseLabelIndex))
}

func (vm *VM) returnFromFrame() {
	if vm.framesIndex == 0 {
		panic(ErrStackUnderflow)
	}
	vm.framesIndex--
	vm.frames[vm.framesIndex] = nil
}

func (vm *VM) currentFrame() *Frame {
	return vm.frames[vm.framesIndex-1]
}

func (vm *VM) pushFrame(f *Frame) {
	if vm.framesIndex >= MaxFrames {
		panic(ErrCallStackExhaustion)
	}
	vm.frames[vm.framesIndex] = f
	vm.framesIndex++
}

func (vm *VM) pushLabel(l label) {
	if vm.labelsIndex >= MaxLabels {
		panic(ErrLabelOverflow)
	}
	vm.labels[vm.labelsIndex] = l
	vm.labelsIndex++
}

func (vm *VM) popLabel() label {
	if vm.labelsIndex == 0 {
		panic(ErrStackUnderflow)
	}
	vm.labelsIndex--
	return vm.labels[vm.labelsIndex]
}

func (vm *VM) push(v uint64) {
	if vm.sp >= len(vm.stack) {
		panic(ErrStackOverflow)
	}
	vm.stack[vm.sp] = v
	vm.sp++
}

func (vm *VM) pop() uint64 {
	if vm.sp == 0 {
		panic(ErrStackUnderflow)
	}
	vm.sp--
	return vm.stack[vm.sp]
}

func (vm *VM) peek() uint64 {
	if vm.sp == 0 {
		panic(ErrStackUnderflow)
	}
	return vm.stack[vm.sp-1]
}
