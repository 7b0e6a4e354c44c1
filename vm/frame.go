package vm

import "github.com/vertexvm/vertexvm/wasm"

// Frame is a call frame: the executing function, its instruction pointer,
// and the operand/label stack heights it was entered with.
type Frame struct {
	fn          *wasm.Function
	ip          int
	basePointer int
	// baseLabelIndex is the index of this frame's implicit function label,
	// pushed at frame setup. Branching to it (via `return`, falling off the
	// function's outermost `end`, or a `br`/`br_if`/`br_table` whose depth
	// reaches past every open block) is the single path that pops the frame.
	baseLabelIndex int
}

func newFrame(fn *wasm.Function, basePointer int, baseLabelIndex int) *Frame {
	return &Frame{fn: fn, ip: -1, basePointer: basePointer, baseLabelIndex: baseLabelIndex}
}

func (f *Frame) instructions() []byte {
	return f.fn.Code.Code
}

// labelKind distinguishes the one runtime behavior difference among
// structured control labels: branching to a loop label re-enters the loop
// body, branching to anything else (block/if/the implicit function label)
// exits it.
type labelKind int

const (
	labelBlock labelKind = iota
	labelLoop
	labelFunction
)

// label is one entry of the VM's shared label stack, representing a single
// open structured-control scope (block/loop/if) or, for labelFunction, the
// frame's own implicit outermost scope.
type label struct {
	kind        labelKind
	stackHeight int // operand stack height for the continuation to restore
	arity       int // number of result values the block/loop/function produces
	target      int // ip to resume at: loop body start, or block/if end
}
