// Package wasm decodes the WASM 1.0 binary module format and builds the
// in-memory module/instance description the interpreter executes against.
// https://webassembly.github.io/spec/core/binary/modules.html
package wasm

// Magic is the 4-byte "\0asm" module header.
const Magic uint32 = 0x6d736100

// Version is the only binary format version this decoder accepts.
const Version uint32 = 0x1

// ValueType is one of the fixed WASM value-type encodings.
type ValueType int8

const (
	ValueTypeI32       ValueType = 0x7F
	ValueTypeI64       ValueType = 0x7E
	ValueTypeF32       ValueType = 0x7D
	ValueTypeF64       ValueType = 0x7C
	ValueTypeFuncRef   ValueType = 0x70
	ValueTypeExternRef ValueType = 0x6F
)

func (vt ValueType) String() string {
	switch vt {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	case ValueTypeFuncRef:
		return "funcref"
	case ValueTypeExternRef:
		return "externref"
	}
	return "unknown"
}

// FuncTypeForm is the leading byte of every type-section entry.
const FuncTypeForm byte = 0x60

// ElemTypeFuncRef is the only table element type WASM 1.0 allows.
const ElemTypeFuncRef byte = 0x70

// ElemSentinelUnset marks a table slot no element segment has populated,
// distinct from a valid function index 0.
const ElemSentinelUnset uint32 = 0xFFFFFFFF

// Mut is a global's mutability flag.
type Mut uint8

const (
	Immutable Mut = 0
	Mutable   Mut = 1
)

// External tags the kind of an import or export.
type External byte

const (
	ExternalFunction External = 0x00
	ExternalTable    External = 0x01
	ExternalMemory   External = 0x02
	ExternalGlobal   External = 0x03
)

// FuncType is a function signature: ordered params, ordered results.
// Equality is structural (Go struct/slice comparison after flattening).
type FuncType struct {
	ParamTypes  []ValueType
	ReturnTypes []ValueType
}

// Equal reports whether ft and other describe the same signature.
func (ft FuncType) Equal(other FuncType) bool {
	if len(ft.ParamTypes) != len(other.ParamTypes) || len(ft.ReturnTypes) != len(other.ReturnTypes) {
		return false
	}
	for i := range ft.ParamTypes {
		if ft.ParamTypes[i] != other.ParamTypes[i] {
			return false
		}
	}
	for i := range ft.ReturnTypes {
		if ft.ReturnTypes[i] != other.ReturnTypes[i] {
			return false
		}
	}
	return true
}

// Limits bounds a table or memory's size in its own units (pages for
// memory, elements for a table). Max is only meaningful when HasMax.
type Limits struct {
	Min    uint32
	Max    uint32
	HasMax bool
}

// Mem is a memory type: just a page-count limit.
type Mem struct {
	Limits Limits
}

// Table is a table type: an element kind plus a size limit.
type Table struct {
	ElemType byte
	Limits   Limits
}

// GlobalType describes a global's value type and mutability.
type GlobalType struct {
	ValueType ValueType
	Mut       Mut
}

// GlobalDecl is a module-level global: its type plus a raw constant
// initializer-expression byte range (terminated by `end`, not decoded
// until instantiation). Init is nil for an imported global.
type GlobalDecl struct {
	Type GlobalType
	Init []byte
}

// ImportDesc is the kind-specific payload of an import entry.
type ImportDesc struct {
	Kind       External
	TypeIdx    uint32
	Table      *Table
	Mem        *Mem
	GlobalType *GlobalType
}

// Import is one entry of the import section.
type Import struct {
	ModuleName string
	FieldName  string
	Desc       ImportDesc
}

// ExportDesc names the kind and index an export resolves to.
type ExportDesc struct {
	Kind External
	Idx  uint32
}

// Export is one entry of the export section.
type Export struct {
	Name string
	Desc ExportDesc
}

// Element is a decoded element-segment: a table index, a constant offset
// expression, and the function indices to place there.
type Element struct {
	TableIdx uint32
	Offset   []byte
	FuncIdxs []uint32
}

// LocalEntry groups a run of locals sharing one value type.
type LocalEntry struct {
	Count     uint32
	ValueType ValueType
}

// Func is a decoded function body: its locals and its instruction stream,
// including the terminating `end` opcode.
type Func struct {
	Locals []LocalEntry
	Code   []byte
}

// Data is a decoded data-segment: a memory index, a constant offset
// expression (active mode) and the bytes to copy there, or nil Offset for
// a passive segment.
type Data struct {
	MemIdx uint32
	Offset []byte // nil for a passive segment
	Init   []byte
}

// CustomSection is a retained, unparsed custom section.
type CustomSection struct {
	Name string
	Data []byte
}

// TypeSec is the type section: the module's catalog of function signatures.
type TypeSec struct{ FuncTypes []FuncType }

// ImportSec is the import section.
type ImportSec struct{ Imports []Import }

// FuncSec is the function section: one type index per later code entry.
type FuncSec struct{ TypeIndexes []uint32 }

// TableSec is the table section.
type TableSec struct{ Tables []Table }

// MemSec is the memory section.
type MemSec struct{ Mems []Mem }

// GlobalSec is the global section.
type GlobalSec struct{ Globals []GlobalDecl }

// ExportSec is the export section. Per spec.md, first-match wins on a
// duplicate name: ExportMap keeps the first export under each name and
// later duplicates are not inserted (Exports still lists every entry).
// This core does not enforce uniqueness.
type ExportSec struct {
	Exports   []Export
	ExportMap map[string]Export
}

// StartSec is the start section.
type StartSec struct{ FuncIdx uint32 }

// ElementSec is the element section.
type ElementSec struct{ Elements []Element }

// Code is one code-section entry.
type Code struct{ Func Func }

// CodeSec is the code section.
type CodeSec struct{ Codes []Code }

// DataSec is the data section.
type DataSec struct{ DataEntries []Data }

// Function is a resolved function-index-space entry: either an imported
// function (Code is unset, ImportModule/ImportField name the host
// function) or a local one backed by a decoded Code entry.
type Function struct {
	Type         FuncType
	Code         Func
	IsImport     bool
	ImportModule string
	ImportField  string
}
