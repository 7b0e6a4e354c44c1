// Command vertexvm runs a WASM 1.0 module with a partial WASI preview1
// environment: stdio passthrough, argv/envp, clock, and randomness.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/vertexvm/vertexvm/vm"
	"github.com/vertexvm/vertexvm/wasi"
)

func main() {
	logger := log.New(os.Stderr, "", 0)

	if len(os.Args) < 2 || os.Args[1] != "run" {
		logger.Fatalf("usage: vertexvm run <module.wasm> [--invoke name] [--gas N] [-- args...]")
	}

	fs := flag.NewFlagSet("run", flag.ExitOnError)
	invoke := fs.String("invoke", "_start", "exported function to call")
	gasLimit := fs.Uint64("gas", 0, "gas limit; 0 means unmetered")

	rest := os.Args[2:]
	split := len(rest)
	for i, a := range rest {
		if a == "--" {
			split = i
			break
		}
	}
	if err := fs.Parse(rest[:split]); err != nil {
		logger.Fatalf("vertexvm: %v", err)
	}
	modArgs := []string{}
	if split < len(rest) {
		modArgs = rest[split+1:]
	}

	if fs.NArg() < 1 {
		logger.Fatalf("usage: vertexvm run <module.wasm> [--invoke name] [--gas N] [-- args...]")
	}
	path := fs.Arg(0)
	// Flags may also follow the module path.
	if err := fs.Parse(fs.Args()[1:]); err != nil {
		logger.Fatalf("vertexvm: %v", err)
	}

	code, err := os.ReadFile(path)
	if err != nil {
		logger.Fatalf("vertexvm: %v", err)
	}

	var gasPolicy vm.GasPolicy = &vm.FreeGasPolicy{}
	gas := &vm.Gas{}
	if *gasLimit > 0 {
		gasPolicy = &vm.SimpleGasPolicy{}
		gas.Limit = *gasLimit
	}

	argv := append([]string{path}, modArgs...)
	resolver := wasi.New(argv, os.Environ(), os.Stdin, os.Stdout, os.Stderr)

	machine, err := vm.NewVM(code, gasPolicy, gas, resolver)
	if err != nil {
		if exitErr, ok := err.(*wasi.ExitError); ok {
			os.Exit(int(exitErr.Code))
		}
		logger.Fatalf("vertexvm: instantiate: %v", err)
	}

	fnIdx, ok := machine.GetFunctionIndex(*invoke)
	if !ok {
		logger.Fatalf("vertexvm: no exported function %q", *invoke)
	}

	ret, err := machine.Invoke(fnIdx)
	if err != nil {
		if exitErr, ok := err.(*wasi.ExitError); ok {
			os.Exit(int(exitErr.Code))
		}
		logger.Fatalf("vertexvm: trap: %v", err)
	}

	fmt.Printf("%d\n", ret)
}
