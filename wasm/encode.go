package wasm

import (
	"fmt"

	"github.com/wippyai/wasm-bindgen/wasm/internal/binary"
)

// MustEncode serializes the module and panics on malformed input. Useful
// in tests and for modules built programmatically from valid parts.
func (m *Module) MustEncode() []byte {
	data, err := Encode(m)
	if err != nil {
		panic(err)
	}
	return data
}

// Encode serializes the module into WebAssembly binary format.
func Encode(m *Module) ([]byte, error) {
	w := binary.NewWriter()

	w.WriteU32LE(Magic)
	w.WriteU32LE(Version)

	if err := encodeTypeSection(w, m); err != nil {
		return nil, fmt.Errorf("type section: %w", err)
	}
	if err := encodeImportSection(w, m); err != nil {
		return nil, fmt.Errorf("import section: %w", err)
	}
	encodeFunctionSection(w, m)
	encodeTableSection(w, m)
	encodeMemorySection(w, m)
	encodeGlobalSection(w, m)
	encodeExportSection(w, m)
	encodeStartSection(w, m)
	encodeElementSection(w, m)
	encodeDataCountSection(w, m)
	encodeCodeSection(w, m)
	encodeDataSection(w, m)
	encodeCustomSections(w, m)

	return w.Bytes(), nil
}

// writeSection writes a section header and payload.
func writeSection(w *binary.Writer, id byte, payload []byte) {
	w.Byte(id)
	w.WriteU32(uint32(len(payload)))
	w.WriteBytes(payload)
}

func encodeTypeSection(w *binary.Writer, m *Module) error {
	if len(m.Types) == 0 {
		return nil
	}
	sw := binary.NewWriter()
	sw.WriteU32(uint32(len(m.Types)))
	for _, ft := range m.Types {
		sw.Byte(FuncTypeByte)
		writeValTypes(sw, ft.Params)
		writeValTypes(sw, ft.Results)
	}
	writeSection(w, SectionType, sw.Bytes())
	return nil
}

func writeValTypes(w *binary.Writer, types []ValType) {
	w.WriteU32(uint32(len(types)))
	for _, t := range types {
		w.Byte(byte(t))
	}
}

func writeLimits(w *binary.Writer, l Limits) {
	flags := byte(0)
	if l.Max != nil {
		flags |= LimitsHasMax
	}
	if l.Shared {
		flags |= LimitsShared
	}
	w.Byte(flags)
	w.WriteU32(l.Min)
	if l.Max != nil {
		w.WriteU32(*l.Max)
	}
}

func writeTableType(w *binary.Writer, t TableType) {
	w.Byte(byte(t.ElemType))
	writeLimits(w, t.Limits)
}

func writeGlobalType(w *binary.Writer, g GlobalType) {
	w.Byte(byte(g.ValType))
	if g.Mutable {
		w.Byte(1)
	} else {
		w.Byte(0)
	}
}

func encodeImportSection(w *binary.Writer, m *Module) error {
	if len(m.Imports) == 0 {
		return nil
	}
	sw := binary.NewWriter()
	sw.WriteU32(uint32(len(m.Imports)))
	for _, imp := range m.Imports {
		sw.WriteName(imp.Module)
		sw.WriteName(imp.Name)
		sw.Byte(imp.Desc.Kind)
		switch imp.Desc.Kind {
		case KindFunc:
			sw.WriteU32(imp.Desc.TypeIdx)
		case KindTable:
			writeTableType(sw, *imp.Desc.Table)
		case KindMemory:
			writeLimits(sw, imp.Desc.Memory.Limits)
		case KindGlobal:
			writeGlobalType(sw, *imp.Desc.Global)
		default:
			return fmt.Errorf("unknown import kind: %d", imp.Desc.Kind)
		}
	}
	writeSection(w, SectionImport, sw.Bytes())
	return nil
}

func encodeFunctionSection(w *binary.Writer, m *Module) {
	if len(m.Funcs) == 0 {
		return
	}
	sw := binary.NewWriter()
	sw.WriteU32(uint32(len(m.Funcs)))
	for _, typeIdx := range m.Funcs {
		sw.WriteU32(typeIdx)
	}
	writeSection(w, SectionFunction, sw.Bytes())
}

func encodeTableSection(w *binary.Writer, m *Module) {
	if len(m.Tables) == 0 {
		return
	}
	sw := binary.NewWriter()
	sw.WriteU32(uint32(len(m.Tables)))
	for _, t := range m.Tables {
		writeTableType(sw, t)
	}
	writeSection(w, SectionTable, sw.Bytes())
}

func encodeMemorySection(w *binary.Writer, m *Module) {
	if len(m.Memories) == 0 {
		return
	}
	sw := binary.NewWriter()
	sw.WriteU32(uint32(len(m.Memories)))
	for _, mem := range m.Memories {
		writeLimits(sw, mem.Limits)
	}
	writeSection(w, SectionMemory, sw.Bytes())
}

func encodeGlobalSection(w *binary.Writer, m *Module) {
	if len(m.Globals) == 0 {
		return
	}
	sw := binary.NewWriter()
	sw.WriteU32(uint32(len(m.Globals)))
	for _, g := range m.Globals {
		writeGlobalType(sw, g.Type)
		sw.WriteBytes(g.Init)
	}
	writeSection(w, SectionGlobal, sw.Bytes())
}

func encodeExportSection(w *binary.Writer, m *Module) {
	if len(m.Exports) == 0 {
		return
	}
	sw := binary.NewWriter()
	sw.WriteU32(uint32(len(m.Exports)))
	for _, e := range m.Exports {
		sw.WriteName(e.Name)
		sw.Byte(e.Kind)
		sw.WriteU32(e.Idx)
	}
	writeSection(w, SectionExport, sw.Bytes())
}

func encodeStartSection(w *binary.Writer, m *Module) {
	if m.Start == nil {
		return
	}
	sw := binary.NewWriter()
	sw.WriteU32(*m.Start)
	writeSection(w, SectionStart, sw.Bytes())
}

func encodeElementSection(w *binary.Writer, m *Module) {
	if len(m.Elements) == 0 {
		return
	}
	sw := binary.NewWriter()
	sw.WriteU32(uint32(len(m.Elements)))
	for _, elem := range m.Elements {
		sw.WriteU32(elem.Flags)

		hasTableIdx := elem.Flags&0x02 != 0 && elem.Flags&0x01 == 0
		hasOffset := elem.Flags&0x01 == 0
		usesExprs := elem.Flags&0x04 != 0

		if hasTableIdx {
			sw.WriteU32(elem.TableIdx)
		}
		if hasOffset {
			sw.WriteBytes(elem.Offset)
		}
		if elem.Flags&0x03 != 0 {
			if usesExprs {
				sw.Byte(byte(elem.Type))
			} else {
				sw.Byte(elem.ElemKind)
			}
		}

		if usesExprs {
			sw.WriteU32(uint32(len(elem.Exprs)))
			for _, expr := range elem.Exprs {
				sw.WriteBytes(expr)
			}
		} else {
			sw.WriteU32(uint32(len(elem.FuncIdxs)))
			for _, idx := range elem.FuncIdxs {
				sw.WriteU32(idx)
			}
		}
	}
	writeSection(w, SectionElement, sw.Bytes())
}

func encodeDataCountSection(w *binary.Writer, m *Module) {
	if m.DataCount == nil {
		return
	}
	sw := binary.NewWriter()
	sw.WriteU32(*m.DataCount)
	writeSection(w, SectionDataCount, sw.Bytes())
}

func encodeCodeSection(w *binary.Writer, m *Module) {
	if len(m.Code) == 0 {
		return
	}
	sw := binary.NewWriter()
	sw.WriteU32(uint32(len(m.Code)))
	for _, body := range m.Code {
		bw := binary.NewWriter()
		bw.WriteU32(uint32(len(body.Locals)))
		for _, local := range body.Locals {
			bw.WriteU32(local.Count)
			bw.Byte(byte(local.ValType))
		}
		bw.WriteBytes(body.Code)

		sw.WriteU32(uint32(bw.Len()))
		sw.WriteBytes(bw.Bytes())
	}
	writeSection(w, SectionCode, sw.Bytes())
}

func encodeDataSection(w *binary.Writer, m *Module) {
	if len(m.Data) == 0 {
		return
	}
	sw := binary.NewWriter()
	sw.WriteU32(uint32(len(m.Data)))
	for _, seg := range m.Data {
		sw.WriteU32(seg.Flags)
		if seg.Flags == 2 {
			sw.WriteU32(seg.MemIdx)
		}
		if seg.Flags != 1 {
			sw.WriteBytes(seg.Offset)
		}
		sw.WriteU32(uint32(len(seg.Init)))
		sw.WriteBytes(seg.Init)
	}
	writeSection(w, SectionData, sw.Bytes())
}

func encodeCustomSections(w *binary.Writer, m *Module) {
	for _, cs := range m.CustomSections {
		sw := binary.NewWriter()
		sw.WriteName(cs.Name)
		sw.WriteBytes(cs.Data)
		writeSection(w, SectionCustom, sw.Bytes())
	}
}
