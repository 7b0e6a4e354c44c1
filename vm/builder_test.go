package vm

// A small literal-byte module builder used across this package's tests, in
// lieu of shelling out to wat2wasm/wast2json. Mirrors the section layout
// spec.md's own S1-S7 scenarios describe by hand.

func encodeULEB(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			break
		}
	}
	return out
}

func encodeSLEB(v int64) []byte {
	var out []byte
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			more = false
		} else {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}

func encodeName(s string) []byte {
	return append(encodeULEB(uint64(len(s))), []byte(s)...)
}

func vecOf(items ...[]byte) []byte {
	out := encodeULEB(uint64(len(items)))
	for _, it := range items {
		out = append(out, it...)
	}
	return out
}

func sectionBytes(id byte, payload []byte) []byte {
	out := []byte{id}
	out = append(out, encodeULEB(uint64(len(payload)))...)
	return append(out, payload...)
}

func funcTypeBytes(params, results []byte) []byte {
	out := []byte{0x60}
	out = append(out, encodeULEB(uint64(len(params)))...)
	out = append(out, params...)
	out = append(out, encodeULEB(uint64(len(results)))...)
	return append(out, results...)
}

type localRun struct {
	count uint32
	vt    byte
}

func codeEntryBytes(locals []localRun, body []byte) []byte {
	localsBytes := encodeULEB(uint64(len(locals)))
	for _, l := range locals {
		localsBytes = append(localsBytes, encodeULEB(uint64(l.count))...)
		localsBytes = append(localsBytes, l.vt)
	}
	payload := append(localsBytes, body...)
	return append(encodeULEB(uint64(len(payload))), payload...)
}

type moduleBuilder struct {
	types        [][]byte
	imports      [][]byte
	nImportFuncs uint32
	funcTypeIdx  []uint32
	codes        [][]byte
	exports      [][]byte
	hasTable     bool
	tableMin     uint32
	hasMemory    bool
	memMin       uint32
	memMax       uint32
	hasMemMax    bool
	globals      [][]byte
	elements     [][]byte
	hasStart     bool
	startIdx     uint32
}

func (b *moduleBuilder) addType(params, results []byte) uint32 {
	idx := uint32(len(b.types))
	b.types = append(b.types, funcTypeBytes(params, results))
	return idx
}

func (b *moduleBuilder) addImportFunc(module, field string, typeIdx uint32) uint32 {
	entry := append(encodeName(module), encodeName(field)...)
	entry = append(entry, 0x00)
	entry = append(entry, encodeULEB(uint64(typeIdx))...)
	b.imports = append(b.imports, entry)
	idx := b.nImportFuncs
	b.nImportFuncs++
	return idx
}

func (b *moduleBuilder) addFunc(typeIdx uint32, locals []localRun, body []byte) uint32 {
	b.funcTypeIdx = append(b.funcTypeIdx, typeIdx)
	b.codes = append(b.codes, codeEntryBytes(locals, body))
	return b.nImportFuncs + uint32(len(b.funcTypeIdx)) - 1
}

func (b *moduleBuilder) addExportFunc(name string, idx uint32) {
	e := append(encodeName(name), 0x00)
	e = append(e, encodeULEB(uint64(idx))...)
	b.exports = append(b.exports, e)
}

func (b *moduleBuilder) addExportGlobal(name string, idx uint32) {
	e := append(encodeName(name), 0x03)
	e = append(e, encodeULEB(uint64(idx))...)
	b.exports = append(b.exports, e)
}

func (b *moduleBuilder) addGlobal(vt byte, mut byte, init []byte) uint32 {
	idx := uint32(len(b.globals))
	g := append([]byte{vt, mut}, init...)
	b.globals = append(b.globals, g)
	return idx
}

func (b *moduleBuilder) setTable(min uint32) {
	b.hasTable = true
	b.tableMin = min
}

func (b *moduleBuilder) setMemory(min uint32) {
	b.hasMemory = true
	b.memMin = min
}

func (b *moduleBuilder) addElem(tableIdx uint32, offsetExpr []byte, funcIdxs []uint32) {
	e := encodeULEB(uint64(tableIdx))
	e = append(e, offsetExpr...)
	e = append(e, encodeULEB(uint64(len(funcIdxs)))...)
	for _, fi := range funcIdxs {
		e = append(e, encodeULEB(uint64(fi))...)
	}
	b.elements = append(b.elements, e)
}

func (b *moduleBuilder) setStart(idx uint32) {
	b.hasStart = true
	b.startIdx = idx
}

func (b *moduleBuilder) build() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	if len(b.types) > 0 {
		out = append(out, sectionBytes(1, vecOf(b.types...))...)
	}
	if len(b.imports) > 0 {
		out = append(out, sectionBytes(2, vecOf(b.imports...))...)
	}
	if len(b.funcTypeIdx) > 0 {
		items := make([][]byte, len(b.funcTypeIdx))
		for i, t := range b.funcTypeIdx {
			items[i] = encodeULEB(uint64(t))
		}
		out = append(out, sectionBytes(3, vecOf(items...))...)
	}
	if b.hasTable {
		limits := []byte{0x00}
		limits = append(limits, encodeULEB(uint64(b.tableMin))...)
		tbl := append([]byte{0x70}, limits...)
		out = append(out, sectionBytes(4, vecOf(tbl))...)
	}
	if b.hasMemory {
		var limits []byte
		if b.hasMemMax {
			limits = append([]byte{0x01}, encodeULEB(uint64(b.memMin))...)
			limits = append(limits, encodeULEB(uint64(b.memMax))...)
		} else {
			limits = append([]byte{0x00}, encodeULEB(uint64(b.memMin))...)
		}
		out = append(out, sectionBytes(5, vecOf(limits))...)
	}
	if len(b.globals) > 0 {
		out = append(out, sectionBytes(6, vecOf(b.globals...))...)
	}
	if len(b.exports) > 0 {
		out = append(out, sectionBytes(7, vecOf(b.exports...))...)
	}
	if b.hasStart {
		out = append(out, sectionBytes(8, encodeULEB(uint64(b.startIdx)))...)
	}
	if len(b.elements) > 0 {
		out = append(out, sectionBytes(9, vecOf(b.elements...))...)
	}
	if len(b.codes) > 0 {
		out = append(out, sectionBytes(10, vecOf(b.codes...))...)
	}
	return out
}

var (
	i32 = []byte{0x7F}
	i64 = []byte{0x7E}
	f32 = []byte{0x7D}
	f64 = []byte{0x7C}
)

func i32Const(v int32) []byte { return append([]byte{0x41}, encodeSLEB(int64(v))...) }
func i64Const(v int64) []byte { return append([]byte{0x42}, encodeSLEB(v)...) }
