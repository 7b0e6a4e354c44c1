package wasi

import "fmt"

// ExitError unwinds VM execution for proc_exit. It is a normal Go error, not
// an *vm.ExecError: a module calling proc_exit is not trapping, it is
// terminating on purpose, possibly with a non-zero status the host caller
// still wants to observe.
type ExitError struct {
	Code uint32
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("wasi: exited with code %d", e.Code)
}
