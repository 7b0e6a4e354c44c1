package wasm

import (
	"errors"
	"fmt"

	"github.com/vertexvm/vertexvm/leb128"
	"github.com/vertexvm/vertexvm/opcode"
	"github.com/vertexvm/vertexvm/util"
)

// PageSize is the fixed linear-memory page granularity WASM 1.0 uses for
// both declared limits and memory.grow.
const PageSize = 65536

// MaxPages is the hard cap on memory size: a 32-bit address space in pages.
const MaxPages = 65536

var (
	ErrEmptyInitExpr     = errors.New("wasm: empty initializer expression")
	ErrInvalidInitExprOp = errors.New("wasm: invalid initializer expression opcode")
	ErrInvalidGlobalIdx  = errors.New("wasm: invalid global index")
	ErrInvalidFuncIdx    = errors.New("wasm: invalid function index")
	ErrInvalidTypeIdx    = errors.New("wasm: invalid type index")
	ErrInvalidTableIdx   = errors.New("wasm: invalid table index")
	ErrInvalidMemIdx     = errors.New("wasm: invalid memory index")
)

// GlobalInstance is a resolved global: its declared type and current value,
// bit-cast into a uint64 the same way the operand stack stores values.
type GlobalInstance struct {
	Type  GlobalType
	Value uint64
}

// buildIndexSpaces links imports and local declarations of every index
// space (function, global, table, memory) into the single contiguous
// numbering spec.md §3 requires: imports first, then locals.
func (m *Module) buildIndexSpaces() error {
	if m.ImportSec != nil {
		for _, imp := range m.ImportSec.Imports {
			switch imp.Desc.Kind {
			case ExternalFunction:
				m.ImportFuncCount++
			case ExternalTable:
				m.ImportTableCount++
			case ExternalMemory:
				m.ImportMemCount++
			case ExternalGlobal:
				m.ImportGlobalCount++
			}
		}
	}

	if err := m.populateFunctions(); err != nil {
		return err
	}
	if err := m.populateGlobals(); err != nil {
		return err
	}
	if err := m.populateTables(); err != nil {
		return err
	}
	if err := m.populateLinearMemory(); err != nil {
		return err
	}
	return nil
}

func (m *Module) populateFunctions() error {
	if m.ImportSec != nil {
		for _, imp := range m.ImportSec.Imports {
			if imp.Desc.Kind != ExternalFunction {
				continue
			}
			if m.TypeSec == nil || int(imp.Desc.TypeIdx) >= len(m.TypeSec.FuncTypes) {
				return ErrInvalidTypeIdx
			}
			m.FunctionIndexSpace = append(m.FunctionIndexSpace, Function{
				Type:         m.TypeSec.FuncTypes[imp.Desc.TypeIdx],
				IsImport:     true,
				ImportModule: imp.ModuleName,
				ImportField:  imp.FieldName,
			})
		}
	}

	if m.FuncSec == nil {
		return nil
	}
	if m.CodeSec == nil || len(m.CodeSec.Codes) != len(m.FuncSec.TypeIndexes) {
		return errors.New("wasm: function and code section length mismatch")
	}
	for i, typeIdx := range m.FuncSec.TypeIndexes {
		if m.TypeSec == nil || int(typeIdx) >= len(m.TypeSec.FuncTypes) {
			return ErrInvalidTypeIdx
		}
		m.FunctionIndexSpace = append(m.FunctionIndexSpace, Function{
			Type: m.TypeSec.FuncTypes[typeIdx],
			Code: m.CodeSec.Codes[i].Func,
		})
	}
	return nil
}

// GetFunction returns the function-index-space entry at i, or nil if out
// of range.
func (m *Module) GetFunction(i int) *Function {
	if i < 0 || i >= len(m.FunctionIndexSpace) {
		return nil
	}
	return &m.FunctionIndexSpace[i]
}

func (m *Module) populateGlobals() error {
	if m.ImportSec != nil {
		for _, imp := range m.ImportSec.Imports {
			if imp.Desc.Kind != ExternalGlobal {
				continue
			}
			// Host-supplied global values are not part of this VM's import
			// bridge (Resolver only brokers functions); imported globals
			// start at their zero value.
			m.GlobalIndexSpace = append(m.GlobalIndexSpace, GlobalDecl{Type: *imp.Desc.GlobalType})
		}
	}
	if m.GlobalSec == nil {
		return nil
	}
	for _, g := range m.GlobalSec.Globals {
		m.GlobalIndexSpace = append(m.GlobalIndexSpace, g)
	}
	return nil
}

// ResolveGlobals evaluates every global's initializer expression in order,
// producing the globals' runtime values. Must run after populateGlobals;
// populateTables and populateLinearMemory call it themselves, since element
// and data offsets may reference a global by index.
func (m *Module) ResolveGlobals() ([]GlobalInstance, error) {
	out := make([]GlobalInstance, len(m.GlobalIndexSpace))
	for i, g := range m.GlobalIndexSpace {
		if g.Init == nil {
			out[i] = GlobalInstance{Type: g.Type}
			continue
		}
		v, err := m.execInitExpr(g.Init, out[:i])
		if err != nil {
			return nil, err
		}
		out[i] = GlobalInstance{Type: g.Type, Value: v}
	}
	return out, nil
}

// GetGlobal returns the global-index-space declaration at i, or nil if out
// of range. Use ResolveGlobals for runtime values.
func (m *Module) GetGlobal(i int) *GlobalDecl {
	if i < 0 || i >= len(m.GlobalIndexSpace) {
		return nil
	}
	return &m.GlobalIndexSpace[i]
}

func (m *Module) populateTables() error {
	if m.TableSec == nil {
		return nil
	}
	for _, t := range m.TableSec.Tables {
		table := make([]uint32, t.Limits.Min)
		for i := range table {
			table[i] = ElemSentinelUnset
		}
		m.TableIndexSpace = append(m.TableIndexSpace, table)
	}
	if m.ElementSec == nil {
		return nil
	}
	globals, err := m.ResolveGlobals()
	if err != nil {
		return err
	}
	for _, elem := range m.ElementSec.Elements {
		if int(elem.TableIdx) >= len(m.TableIndexSpace) {
			return ErrInvalidTableIdx
		}
		offVal, err := m.execInitExpr(elem.Offset, globals)
		if err != nil {
			return err
		}
		offset := uint32(int32(offVal))

		table := m.TableIndexSpace[elem.TableIdx]
		need := uint64(offset) + uint64(len(elem.FuncIdxs))
		if need > uint64(len(table)) {
			grown := make([]uint32, need)
			for i := range grown {
				grown[i] = ElemSentinelUnset
			}
			copy(grown, table)
			table = grown
			m.TableIndexSpace[elem.TableIdx] = table
		}
		copy(table[offset:], elem.FuncIdxs)
	}
	return nil
}

// GetTableElement returns the function index stored in table 0 at index,
// per spec.md's MVP single-table scope.
func (m *Module) GetTableElement(index int) (uint32, error) {
	if len(m.TableIndexSpace) == 0 || index < 0 || index >= len(m.TableIndexSpace[0]) {
		return 0, ErrInvalidTableIdx
	}
	return m.TableIndexSpace[0][index], nil
}

func (m *Module) populateLinearMemory() error {
	if m.MemSec == nil {
		return nil
	}
	for _, mm := range m.MemSec.Mems {
		m.LinearMemoryIndexSpace = append(m.LinearMemoryIndexSpace, make([]byte, uint64(mm.Limits.Min)*PageSize))
		m.MemoryMax = append(m.MemoryMax, mm.Limits)
	}
	if m.DataSec == nil {
		return nil
	}
	globals, err := m.ResolveGlobals()
	if err != nil {
		return err
	}
	for _, entry := range m.DataSec.DataEntries {
		if entry.Offset == nil {
			continue // passive segment: left for memory.init (not in MVP scope)
		}
		if int(entry.MemIdx) >= len(m.LinearMemoryIndexSpace) {
			return ErrInvalidMemIdx
		}
		offVal, err := m.execInitExpr(entry.Offset, globals)
		if err != nil {
			return err
		}
		offset := uint32(int32(offVal))

		memory := m.LinearMemoryIndexSpace[entry.MemIdx]
		need := uint64(offset) + uint64(len(entry.Init))
		if need > uint64(len(memory)) {
			return fmt.Errorf("wasm: data segment at offset %d exceeds declared memory size", offset)
		}
		copy(memory[offset:], entry.Init)
	}
	return nil
}

// GetLinearMemoryData returns the byte stored in memory 0 at index.
func (m *Module) GetLinearMemoryData(index int) (byte, error) {
	if len(m.LinearMemoryIndexSpace) == 0 || index < 0 || index >= len(m.LinearMemoryIndexSpace[0]) {
		return 0, ErrInvalidMemIdx
	}
	return m.LinearMemoryIndexSpace[0][index], nil
}

// execInitExpr evaluates a constant expression (module-level global,
// element, or data offset initializer) and returns its value as a raw
// uint64 bit pattern. priorGlobals supplies the already-resolved globals a
// global.get may reference; per the WASM spec only imported globals may be
// referenced this way.
func (m *Module) execInitExpr(expr []byte, priorGlobals []GlobalInstance) (uint64, error) {
	if len(expr) == 0 {
		return 0, ErrEmptyInitExpr
	}
	r := util.NewByteReader(expr)
	var result uint64
	var have bool

	for {
		b, err := r.ReadOne()
		if err != nil {
			break
		}
		switch opcode.Opcode(b) {
		case opcode.I32Const:
			v, err := leb128.ReadInt32(r)
			if err != nil {
				return 0, err
			}
			result, have = uint64(uint32(v)), true
		case opcode.I64Const:
			v, err := leb128.ReadInt64(r)
			if err != nil {
				return 0, err
			}
			result, have = uint64(v), true
		case opcode.F32Const:
			v, err := r.ReadU32()
			if err != nil {
				return 0, err
			}
			result, have = uint64(v), true
		case opcode.F64Const:
			v, err := r.ReadU64()
			if err != nil {
				return 0, err
			}
			result, have = v, true
		case opcode.GlobalGet:
			idx, err := leb128.ReadUint32(r)
			if err != nil {
				return 0, err
			}
			if int(idx) >= len(priorGlobals) || int(idx) >= m.ImportGlobalCount {
				return 0, ErrInvalidGlobalIdx
			}
			result, have = priorGlobals[idx].Value, true
		case opcode.RefNull:
			if _, err := r.ReadOne(); err != nil {
				return 0, err
			}
			result, have = 0, true
		case opcode.RefFunc:
			idx, err := leb128.ReadUint32(r)
			if err != nil {
				return 0, err
			}
			result, have = uint64(idx), true
		case opcode.End:
			if !have {
				return 0, nil
			}
			return result, nil
		default:
			return 0, ErrInvalidInitExprOp
		}
	}
	return 0, ErrUnexpectedEof
}
