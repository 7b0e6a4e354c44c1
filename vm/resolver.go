package vm

// HostFunction is a host-implemented function bridged into the module's
// function index space. args arrive in WASM's raw uint64 bit-pattern form,
// the same representation the operand stack uses internally.
type HostFunction func(vm *VM, args ...uint64) uint64

// Resolver bridges a module's imports to host functions. GetFunction
// returns nil for an import it cannot satisfy, which NewVM turns into an
// error rather than deferring the failure to first call.
type Resolver interface {
	GetFunction(module, field string) HostFunction
}
