package wasm

// Module represents a parsed WebAssembly module. It is the mutable program
// graph the binding pipeline edits in place: transforms append functions,
// rewrite bodies, and retype imports, then Encode produces the final binary.
type Module struct {
	Types    []FuncType
	Imports  []Import
	Funcs    []uint32 // Type indices for declared functions
	Tables   []TableType
	Memories []MemoryType
	Globals  []Global
	Exports  []Export
	Start    *uint32
	Elements []Element
	Code     []FuncBody
	Data     []DataSegment

	// DataCount holds the count from the DataCount section (ID 12).
	// Required when data indices appear in code (bulk memory operations).
	DataCount *uint32

	CustomSections []CustomSection
}

// FuncType represents a WebAssembly function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// ValType represents a WebAssembly value type.
// See constants.go for ValI32, ValI64, ValF32, ValF64, ValFuncRef, ValExtern.
type ValType byte

func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	case ValFuncRef:
		return "funcref"
	case ValExtern:
		return "externref"
	default:
		return "unknown"
	}
}

// Import represents an imported function, table, memory, or global.
type Import struct {
	Desc   ImportDesc
	Module string
	Name   string
}

// ImportDesc describes an imported item.
// Kind uses KindFunc, KindTable, KindMemory, or KindGlobal constants.
type ImportDesc struct {
	Table   *TableType
	Memory  *MemoryType
	Global  *GlobalType
	TypeIdx uint32
	Kind    byte
}

// TableType describes a table with element type and size limits.
type TableType struct {
	Limits   Limits
	ElemType ValType
}

// MemoryType describes a linear memory with size limits.
type MemoryType struct {
	Limits Limits
}

// Limits describes size constraints for tables and memories.
type Limits struct {
	Max    *uint32
	Min    uint32
	Shared bool
}

// GlobalType describes a global variable's type and mutability.
type GlobalType struct {
	ValType ValType
	Mutable bool
}

// Global represents a global variable with type and initialization.
type Global struct {
	Type GlobalType
	Init []byte // Raw init expression bytes
}

// Export describes an exported item.
// Kind uses KindFunc, KindTable, KindMemory, or KindGlobal constants.
type Export struct {
	Name string
	Kind byte
	Idx  uint32
}

// Element represents an element segment.
// Flags determine the format:
//   - 0: active, tableIdx=0, offset expr, vec(funcidx)
//   - 1: passive, elemkind, vec(funcidx)
//   - 2: active, tableIdx, offset expr, elemkind, vec(funcidx)
//   - 3: declarative, elemkind, vec(funcidx)
//   - 4: active, tableIdx=0, offset expr, vec(expr)
//   - 5: passive, reftype, vec(expr)
//   - 6: active, tableIdx, offset expr, reftype, vec(expr)
//   - 7: declarative, reftype, vec(expr)
type Element struct {
	Offset   []byte
	FuncIdxs []uint32
	Exprs    [][]byte
	Flags    uint32
	TableIdx uint32
	ElemKind byte
	Type     ValType
}

// FuncBody represents a function's local declarations and bytecode.
type FuncBody struct {
	Locals []LocalEntry
	Code   []byte // Raw code bytes including end opcode
}

// LocalEntry represents a group of local variables with the same type.
type LocalEntry struct {
	Count   uint32
	ValType ValType
}

// DataSegment represents a data segment.
// Flags determine the format:
//   - 0: active, memIdx=0, offset expr, vec(byte)
//   - 1: passive, vec(byte)
//   - 2: active, memIdx, offset expr, vec(byte)
type DataSegment struct {
	Offset []byte
	Init   []byte
	Flags  uint32
	MemIdx uint32
}

// CustomSection holds a named custom section's data.
type CustomSection struct {
	Name string
	Data []byte
}

// NumImportedFuncs returns the number of imported functions.
func (m *Module) NumImportedFuncs() int {
	count := 0
	for _, imp := range m.Imports {
		if imp.Desc.Kind == KindFunc {
			count++
		}
	}
	return count
}

// NumImportedGlobals returns the number of imported globals.
func (m *Module) NumImportedGlobals() int {
	count := 0
	for _, imp := range m.Imports {
		if imp.Desc.Kind == KindGlobal {
			count++
		}
	}
	return count
}

// NumImportedTables returns the number of imported tables.
func (m *Module) NumImportedTables() int {
	count := 0
	for _, imp := range m.Imports {
		if imp.Desc.Kind == KindTable {
			count++
		}
	}
	return count
}

// NumImportedMemories returns the number of imported memories.
func (m *Module) NumImportedMemories() int {
	count := 0
	for _, imp := range m.Imports {
		if imp.Desc.Kind == KindMemory {
			count++
		}
	}
	return count
}

// NumFuncs returns the total function count (imported plus defined).
func (m *Module) NumFuncs() int {
	return m.NumImportedFuncs() + len(m.Funcs)
}

// FuncImport returns the import entry backing funcIdx, or nil when funcIdx
// refers to a defined function.
func (m *Module) FuncImport(funcIdx uint32) *Import {
	n := uint32(0)
	for i := range m.Imports {
		if m.Imports[i].Desc.Kind != KindFunc {
			continue
		}
		if n == funcIdx {
			return &m.Imports[i]
		}
		n++
	}
	return nil
}

// GetFuncType returns the type of a function by its index, counting imported
// functions first, or nil when the index is out of range.
func (m *Module) GetFuncType(funcIdx uint32) *FuncType {
	if imp := m.FuncImport(funcIdx); imp != nil {
		return m.TypeAt(imp.Desc.TypeIdx)
	}
	localIdx := funcIdx - uint32(m.NumImportedFuncs())
	if int(localIdx) >= len(m.Funcs) {
		return nil
	}
	return m.TypeAt(m.Funcs[localIdx])
}

// TypeAt returns the function type at the given type index, or nil.
func (m *Module) TypeAt(typeIdx uint32) *FuncType {
	if int(typeIdx) >= len(m.Types) {
		return nil
	}
	return &m.Types[typeIdx]
}

// BodyOf returns the body of a defined function by its function index, or
// nil for imports and out-of-range indices.
func (m *Module) BodyOf(funcIdx uint32) *FuncBody {
	numImported := uint32(m.NumImportedFuncs())
	if funcIdx < numImported {
		return nil
	}
	localIdx := funcIdx - numImported
	if int(localIdx) >= len(m.Code) {
		return nil
	}
	return &m.Code[localIdx]
}

// AddType adds a function type and returns its index, reusing an existing
// equal type when present.
func (m *Module) AddType(ft FuncType) uint32 {
	for i, t := range m.Types {
		if typesEqual(t, ft) {
			return uint32(i)
		}
	}
	idx := uint32(len(m.Types))
	m.Types = append(m.Types, ft)
	return idx
}

// AddFunc appends a defined function with the given type and body and
// returns its function index.
func (m *Module) AddFunc(typeIdx uint32, body FuncBody) uint32 {
	m.Funcs = append(m.Funcs, typeIdx)
	m.Code = append(m.Code, body)
	return uint32(m.NumImportedFuncs() + len(m.Funcs) - 1)
}

// FindExport returns the export with the given name and kind, or nil.
func (m *Module) FindExport(name string, kind byte) *Export {
	for i := range m.Exports {
		if m.Exports[i].Name == name && m.Exports[i].Kind == kind {
			return &m.Exports[i]
		}
	}
	return nil
}

// CustomSectionData returns the data of the first custom section with the
// given name.
func (m *Module) CustomSectionData(name string) ([]byte, bool) {
	for i := range m.CustomSections {
		if m.CustomSections[i].Name == name {
			return m.CustomSections[i].Data, true
		}
	}
	return nil, false
}

// RemoveCustomSection drops every custom section with the given name and
// reports whether any was removed.
func (m *Module) RemoveCustomSection(name string) bool {
	kept := m.CustomSections[:0]
	removed := false
	for _, cs := range m.CustomSections {
		if cs.Name == name {
			removed = true
			continue
		}
		kept = append(kept, cs)
	}
	m.CustomSections = kept
	return removed
}

func typesEqual(a, b FuncType) bool {
	if len(a.Params) != len(b.Params) || len(a.Results) != len(b.Results) {
		return false
	}
	for i := range a.Params {
		if a.Params[i] != b.Params[i] {
			return false
		}
	}
	for i := range a.Results {
		if a.Results[i] != b.Results[i] {
			return false
		}
	}
	return true
}
