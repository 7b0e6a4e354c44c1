package vm

import (
	"bytes"
	"testing"

	wagonExec "github.com/go-interpreter/wagon/exec"
	wagon "github.com/go-interpreter/wagon/wasm"
)

// Cross-checks this package's own interpreter against wagon, an independent
// WASM implementation, the same way the original vm_test.go cross-validated
// against it with a real .wasm fixture.
func crossValidate(t *testing.T, module []byte, entry string, params ...uint64) {
	t.Helper()

	v, err := NewVM(module, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewVM: %v", err)
	}
	got := mustInvoke(t, v, entry, params...)

	m, err := wagon.ReadModule(bytes.NewReader(module), nil)
	if err != nil {
		t.Fatalf("wagon.ReadModule: %v", err)
	}
	findex, ok := m.Export.Entries[entry]
	if !ok {
		t.Fatalf("wagon: export %q not found", entry)
	}
	wv, err := wagonExec.NewVM(m)
	if err != nil {
		t.Fatalf("wagonExec.NewVM: %v", err)
	}
	ret, err := wv.ExecCode(int64(findex.Index), params...)
	if err != nil {
		t.Fatalf("wagon ExecCode: %v", err)
	}
	want := uint64(ret.(uint32))

	if got != want {
		t.Errorf("%s: this VM returned %d, wagon returned %d", entry, got, want)
	}
}

func TestCrossValidateAgainstWagon(t *testing.T) {
	crossValidate(t, addModule(), "calc", uint64(uint32(2)), uint64(uint32(3)))
	crossValidate(t, localModule(), "calc", 2)
	crossValidate(t, callModule(), "calc")
	crossValidate(t, blockModule(), "calc", 30)
	crossValidate(t, blockModule(), "calc", 40)
	crossValidate(t, loopModule(), "calc")
	crossValidate(t, brTableModule(), "calc", 0)
	crossValidate(t, brTableModule(), "calc", 100)
}
