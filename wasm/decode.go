package wasm

import (
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/vertexvm/vertexvm/leb128"
	"github.com/vertexvm/vertexvm/opcode"
	"github.com/vertexvm/vertexvm/util"
)

// Decode errors, per spec.md §4.1/§4.2/§7.
var (
	ErrUnexpectedEof  = errors.New("wasm: unexpected end of input")
	ErrInvalidMagic   = errors.New("wasm: invalid magic number")
	ErrInvalidVersion = errors.New("wasm: invalid version number")
	ErrInvalidValType = errors.New("wasm: invalid value type")
	ErrInvalidSection = errors.New("wasm: invalid section")
)

// Module is the fully decoded, instantiation-ready description of a WASM
// binary: every section plus the derived index spaces (functions, globals,
// tables, memories) that give imports and local declarations one uniform
// numbering, per spec.md §3.
type Module struct {
	Version uint32

	TypeSec    *TypeSec
	ImportSec  *ImportSec
	FuncSec    *FuncSec
	TableSec   *TableSec
	MemSec     *MemSec
	GlobalSec  *GlobalSec
	ExportSec  *ExportSec
	StartSec   *StartSec
	ElementSec *ElementSec
	CodeSec    *CodeSec
	DataSec    *DataSec
	Customs    []CustomSection

	ImportFuncCount   int
	ImportTableCount  int
	ImportMemCount    int
	ImportGlobalCount int

	FunctionIndexSpace []Function
	GlobalIndexSpace   []GlobalDecl

	TableIndexSpace        [][]uint32
	LinearMemoryIndexSpace [][]byte
	MemoryMax              []Limits
}

// Decode parses a complete WASM binary module from b.
func Decode(b []byte) (*Module, error) {
	r := util.NewByteReader(b)

	magic, err := r.ReadU32()
	if err != nil {
		return nil, ErrUnexpectedEof
	}
	if magic != Magic {
		return nil, ErrInvalidMagic
	}
	version, err := r.ReadU32()
	if err != nil {
		return nil, ErrUnexpectedEof
	}
	if version != Version {
		return nil, ErrInvalidVersion
	}

	m := &Module{Version: version}
	var lastID byte
	for r.Len() > 0 {
		id, err := r.ReadOne()
		if err != nil {
			return nil, ErrUnexpectedEof
		}
		if id != 0 && lastID >= id {
			return nil, fmt.Errorf("%w: sections must occur at most once and in order", ErrInvalidSection)
		}

		size, err := leb128.ReadUint32(r)
		if err != nil {
			return nil, err
		}
		body, err := r.Read(size)
		if err != nil {
			return nil, ErrUnexpectedEof
		}
		sr := util.NewByteReader(body)

		if err := decodeSection(m, id, sr); err != nil {
			return nil, err
		}
		if id != 0 {
			lastID = id
		}
	}

	if err := m.buildIndexSpaces(); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeSection(m *Module, id byte, r *util.ByteReader) error {
	switch id {
	case 0:
		name, err := readName(r)
		if err != nil {
			return err
		}
		m.Customs = append(m.Customs, CustomSection{Name: name, Data: r.Rest()})
		return nil
	case 1:
		return decodeTypeSec(m, r)
	case 2:
		return decodeImportSec(m, r)
	case 3:
		return decodeFuncSec(m, r)
	case 4:
		return decodeTableSec(m, r)
	case 5:
		return decodeMemSec(m, r)
	case 6:
		return decodeGlobalSec(m, r)
	case 7:
		return decodeExportSec(m, r)
	case 8:
		return decodeStartSec(m, r)
	case 9:
		return decodeElementSec(m, r)
	case 10:
		return decodeCodeSec(m, r)
	case 11:
		return decodeDataSec(m, r)
	default:
		// Unknown section ids are skipped rather than rejected, so a module
		// carrying a section from a later proposal this decoder doesn't know
		// about still loads. The caller already sliced r to this section's
		// exact length, so there's nothing left to consume.
		return nil
	}
}

func decodeTypeSec(m *Module, r *util.ByteReader) error {
	count, err := leb128.ReadUint32(r)
	if err != nil {
		return err
	}
	m.TypeSec = &TypeSec{FuncTypes: make([]FuncType, count)}
	for i := uint32(0); i < count; i++ {
		form, err := r.ReadOne()
		if err != nil {
			return err
		}
		if form != FuncTypeForm {
			return fmt.Errorf("wasm: invalid functype form byte 0x%x", form)
		}
		params, err := readValueTypeVec(r)
		if err != nil {
			return err
		}
		results, err := readValueTypeVec(r)
		if err != nil {
			return err
		}
		m.TypeSec.FuncTypes[i] = FuncType{ParamTypes: params, ReturnTypes: results}
	}
	return nil
}

func readValueTypeVec(r *util.ByteReader) ([]ValueType, error) {
	n, err := leb128.ReadUint32(r)
	if err != nil {
		return nil, err
	}
	out := make([]ValueType, n)
	for i := uint32(0); i < n; i++ {
		out[i], err = readValueType(r)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func decodeImportSec(m *Module, r *util.ByteReader) error {
	count, err := leb128.ReadUint32(r)
	if err != nil {
		return err
	}
	m.ImportSec = &ImportSec{Imports: make([]Import, count)}
	for i := uint32(0); i < count; i++ {
		modName, err := readName(r)
		if err != nil {
			return err
		}
		fieldName, err := readName(r)
		if err != nil {
			return err
		}
		kindByte, err := r.ReadOne()
		if err != nil {
			return err
		}
		kind := External(kindByte)
		var desc ImportDesc
		desc.Kind = kind
		switch kind {
		case ExternalFunction:
			desc.TypeIdx, err = leb128.ReadUint32(r)
		case ExternalTable:
			t := &Table{}
			t.ElemType, err = readElemType(r)
			if err == nil {
				t.Limits, err = readLimits(r)
			}
			desc.Table = t
		case ExternalMemory:
			mm := &Mem{}
			mm.Limits, err = readLimits(r)
			desc.Mem = mm
		case ExternalGlobal:
			gt, gerr := readGlobalType(r)
			err = gerr
			desc.GlobalType = &gt
		default:
			return fmt.Errorf("wasm: invalid import kind 0x%x", kindByte)
		}
		if err != nil {
			return err
		}
		m.ImportSec.Imports[i] = Import{ModuleName: modName, FieldName: fieldName, Desc: desc}
	}
	return nil
}

func decodeFuncSec(m *Module, r *util.ByteReader) error {
	count, err := leb128.ReadUint32(r)
	if err != nil {
		return err
	}
	m.FuncSec = &FuncSec{TypeIndexes: make([]uint32, count)}
	for i := uint32(0); i < count; i++ {
		m.FuncSec.TypeIndexes[i], err = leb128.ReadUint32(r)
		if err != nil {
			return err
		}
	}
	return nil
}

func decodeTableSec(m *Module, r *util.ByteReader) error {
	count, err := leb128.ReadUint32(r)
	if err != nil {
		return err
	}
	m.TableSec = &TableSec{Tables: make([]Table, count)}
	for i := uint32(0); i < count; i++ {
		m.TableSec.Tables[i].ElemType, err = readElemType(r)
		if err != nil {
			return err
		}
		m.TableSec.Tables[i].Limits, err = readLimits(r)
		if err != nil {
			return err
		}
	}
	return nil
}

func decodeMemSec(m *Module, r *util.ByteReader) error {
	count, err := leb128.ReadUint32(r)
	if err != nil {
		return err
	}
	m.MemSec = &MemSec{Mems: make([]Mem, count)}
	for i := uint32(0); i < count; i++ {
		m.MemSec.Mems[i].Limits, err = readLimits(r)
		if err != nil {
			return err
		}
	}
	return nil
}

func decodeGlobalSec(m *Module, r *util.ByteReader) error {
	count, err := leb128.ReadUint32(r)
	if err != nil {
		return err
	}
	m.GlobalSec = &GlobalSec{Globals: make([]GlobalDecl, count)}
	for i := uint32(0); i < count; i++ {
		m.GlobalSec.Globals[i].Type, err = readGlobalType(r)
		if err != nil {
			return err
		}
		m.GlobalSec.Globals[i].Init, err = readConstExpr(r)
		if err != nil {
			return err
		}
	}
	return nil
}

func decodeExportSec(m *Module, r *util.ByteReader) error {
	count, err := leb128.ReadUint32(r)
	if err != nil {
		return err
	}
	m.ExportSec = &ExportSec{Exports: make([]Export, 0, count), ExportMap: make(map[string]Export, count)}
	for i := uint32(0); i < count; i++ {
		name, err := readName(r)
		if err != nil {
			return err
		}
		kindByte, err := r.ReadOne()
		if err != nil {
			return err
		}
		if kindByte > 0x03 {
			return fmt.Errorf("wasm: invalid export desc kind 0x%x", kindByte)
		}
		idx, err := leb128.ReadUint32(r)
		if err != nil {
			return err
		}
		exp := Export{Name: name, Desc: ExportDesc{Kind: External(kindByte), Idx: idx}}
		m.ExportSec.Exports = append(m.ExportSec.Exports, exp)
		if _, exists := m.ExportSec.ExportMap[name]; !exists {
			m.ExportSec.ExportMap[name] = exp
		}
	}
	return nil
}

func decodeStartSec(m *Module, r *util.ByteReader) error {
	idx, err := leb128.ReadUint32(r)
	if err != nil {
		return err
	}
	m.StartSec = &StartSec{FuncIdx: idx}
	return nil
}

func decodeElementSec(m *Module, r *util.ByteReader) error {
	count, err := leb128.ReadUint32(r)
	if err != nil {
		return err
	}
	m.ElementSec = &ElementSec{Elements: make([]Element, count)}
	for i := uint32(0); i < count; i++ {
		tableIdx, err := leb128.ReadUint32(r)
		if err != nil {
			return err
		}
		offset, err := readConstExpr(r)
		if err != nil {
			return err
		}
		n, err := leb128.ReadUint32(r)
		if err != nil {
			return err
		}
		idxs := make([]uint32, n)
		for j := uint32(0); j < n; j++ {
			idxs[j], err = leb128.ReadUint32(r)
			if err != nil {
				return err
			}
		}
		m.ElementSec.Elements[i] = Element{TableIdx: tableIdx, Offset: offset, FuncIdxs: idxs}
	}
	return nil
}

// decodeCodeSec reads each function body and records its raw instruction
// byte range inclusive of the terminating `end`, per spec.md §4.2: this
// single scan is authoritative for every opcode's immediate-operand shape.
func decodeCodeSec(m *Module, r *util.ByteReader) error {
	count, err := leb128.ReadUint32(r)
	if err != nil {
		return err
	}
	m.CodeSec = &CodeSec{Codes: make([]Code, count)}
	for i := uint32(0); i < count; i++ {
		size, err := leb128.ReadUint32(r)
		if err != nil {
			return err
		}
		body, err := r.Read(size)
		if err != nil {
			return ErrUnexpectedEof
		}
		br := util.NewByteReader(body)
		locals, err := readLocals(br)
		if err != nil {
			return err
		}
		code, err := scanFunctionBody(br.Rest())
		if err != nil {
			return err
		}
		m.CodeSec.Codes[i] = Code{Func: Func{Locals: locals, Code: code}}
	}
	return nil
}

// scanFunctionBody walks body tracking block/loop/if nesting depth and
// returns the prefix up to and including the function's outermost `end`.
func scanFunctionBody(body []byte) ([]byte, error) {
	depth := 0
	ip := 0
	for ip < len(body) {
		op := opcode.Opcode(body[ip])
		ip++
		switch op {
		case opcode.Block, opcode.Loop, opcode.If:
			depth++
		case opcode.End:
			if depth == 0 {
				return body[:ip], nil
			}
			depth--
		}
		ip += opcode.ImmediateLen(op, body, ip)
	}
	return nil, ErrUnexpectedEof
}

func decodeDataSec(m *Module, r *util.ByteReader) error {
	count, err := leb128.ReadUint32(r)
	if err != nil {
		return err
	}
	m.DataSec = &DataSec{DataEntries: make([]Data, count)}
	for i := uint32(0); i < count; i++ {
		// flag 0: active in memory 0; 1: passive; 2: active, explicit memory index.
		flag, err := leb128.ReadUint32(r)
		if err != nil {
			return err
		}
		var memIdx uint32
		if flag == 2 {
			if memIdx, err = leb128.ReadUint32(r); err != nil {
				return err
			}
		} else if flag > 2 {
			return fmt.Errorf("wasm: invalid data segment flag %d", flag)
		}
		var offset []byte
		if flag != 1 {
			if offset, err = readConstExpr(r); err != nil {
				return err
			}
		}
		n, err := leb128.ReadUint32(r)
		if err != nil {
			return err
		}
		init, err := r.Read(n)
		if err != nil {
			return ErrUnexpectedEof
		}
		m.DataSec.DataEntries[i] = Data{MemIdx: memIdx, Offset: offset, Init: append([]byte(nil), init...)}
	}
	return nil
}

func readElemType(r *util.ByteReader) (byte, error) {
	b, err := r.ReadOne()
	if err != nil {
		return 0, err
	}
	if b != ElemTypeFuncRef {
		return 0, errors.New("wasm: invalid table element type")
	}
	return b, nil
}

func readLimits(r *util.ByteReader) (Limits, error) {
	var l Limits
	flag, err := r.ReadOne()
	if err != nil {
		return l, err
	}
	switch flag {
	case 0x00:
		l.Min, err = leb128.ReadUint32(r)
	case 0x01:
		l.HasMax = true
		l.Min, err = leb128.ReadUint32(r)
		if err == nil {
			l.Max, err = leb128.ReadUint32(r)
		}
	default:
		return l, errors.New("wasm: invalid limits flag")
	}
	if err == nil && l.HasMax && l.Min > l.Max {
		return l, errors.New("wasm: limits min > max")
	}
	return l, err
}

func readGlobalType(r *util.ByteReader) (GlobalType, error) {
	var gt GlobalType
	vt, err := readValueType(r)
	if err != nil {
		return gt, err
	}
	b, err := r.ReadOne()
	if err != nil {
		return gt, err
	}
	if b != 0x00 && b != 0x01 {
		return gt, errors.New("wasm: invalid mutability flag")
	}
	gt.ValueType = vt
	gt.Mut = Mut(b)
	return gt, nil
}

func readValueType(r *util.ByteReader) (ValueType, error) {
	b, err := r.ReadOne()
	if err != nil {
		return 0, err
	}
	switch ValueType(b) {
	case ValueTypeI32, ValueTypeI64, ValueTypeF32, ValueTypeF64, ValueTypeFuncRef, ValueTypeExternRef:
		return ValueType(b), nil
	}
	return 0, ErrInvalidValType
}

func readName(r *util.ByteReader) (string, error) {
	n, err := leb128.ReadUint32(r)
	if err != nil {
		return "", err
	}
	b, err := r.Read(n)
	if err != nil {
		return "", ErrUnexpectedEof
	}
	if !utf8.Valid(b) {
		return "", errors.New("wasm: invalid utf-8 name")
	}
	return string(b), nil
}

func readLocals(r *util.ByteReader) ([]LocalEntry, error) {
	n, err := leb128.ReadUint32(r)
	if err != nil {
		return nil, err
	}
	out := make([]LocalEntry, n)
	for i := uint32(0); i < n; i++ {
		out[i].Count, err = leb128.ReadUint32(r)
		if err != nil {
			return nil, err
		}
		out[i].ValueType, err = readValueType(r)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// readConstExpr reads a raw initializer-expression byte range, terminated
// by `end`, without evaluating it — evaluation happens at instantiation
// time against a live Module (globals may reference earlier globals).
func readConstExpr(r *util.ByteReader) ([]byte, error) {
	var out []byte
	for {
		b, err := r.ReadOne()
		if err != nil {
			if err == io.EOF {
				return nil, ErrUnexpectedEof
			}
			return nil, err
		}
		out = append(out, b)
		if b == byte(opcode.End) {
			return out, nil
		}
		n := opcode.ImmediateLen(opcode.Opcode(b), r.Rest(), 0)
		if n > 0 {
			imm, err := r.Read(uint32(n))
			if err != nil {
				return nil, ErrUnexpectedEof
			}
			out = append(out, imm...)
		}
	}
}
