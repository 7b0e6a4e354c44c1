package wasi

import "github.com/vertexvm/vertexvm/vm"

// procExit implements proc_exit(rval). Per spec it never returns to the
// caller; it unwinds the VM's dispatch loop the same way a trap does,
// except Invoke's recover sees a plain *ExitError rather than an
// *vm.ExecError.
func (w *Preview1) procExit(v *vm.VM, args ...uint64) uint64 {
	panic(&ExitError{Code: uint32(args[0])})
}
