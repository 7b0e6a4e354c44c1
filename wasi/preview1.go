package wasi

import (
	"io"
	"time"

	"github.com/vertexvm/vertexvm/vm"
)

// moduleName is the import module name every wasi_snapshot_preview1 host
// function is declared under.
const moduleName = "wasi_snapshot_preview1"

// Preview1 is a minimal wasi_snapshot_preview1 environment: stdio,
// command-line arguments, environment variables, clocks, and randomness.
// It does not model a filesystem; any fd outside 0/1/2 is ErrnoBadf, and
// fd_prestat_get always reports no preopened directories.
type Preview1 struct {
	Args   []string
	Env    []string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	start time.Time
}

// New builds a Preview1 environment. stdin/stdout/stderr may be nil, which
// disables the corresponding fd (reads/writes against it become ErrnoBadf).
func New(args, env []string, stdin io.Reader, stdout, stderr io.Writer) *Preview1 {
	return &Preview1{
		Args:   args,
		Env:    env,
		Stdin:  stdin,
		Stdout: stdout,
		Stderr: stderr,
		start:  time.Now(),
	}
}

// GetFunction implements vm.Resolver.
func (w *Preview1) GetFunction(module, field string) vm.HostFunction {
	if module != moduleName {
		return nil
	}
	switch field {
	case "args_sizes_get":
		return w.argsSizesGet
	case "args_get":
		return w.argsGet
	case "environ_sizes_get":
		return w.environSizesGet
	case "environ_get":
		return w.environGet
	case "fd_write":
		return w.fdWrite
	case "fd_read":
		return w.fdRead
	case "fd_close":
		return w.fdClose
	case "fd_seek":
		return w.fdSeek
	case "fd_fdstat_get":
		return w.fdFdstatGet
	case "fd_prestat_get":
		return w.fdPrestatGet
	case "fd_prestat_dir_name":
		return w.fdPrestatDirName
	case "proc_exit":
		return w.procExit
	case "clock_time_get":
		return w.clockTimeGet
	case "random_get":
		return w.randomGet
	default:
		return nil
	}
}
