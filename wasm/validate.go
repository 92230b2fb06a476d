package wasm

import (
	"errors"
	"fmt"
)

// Validate performs structural checks on a module: index ranges, section
// count consistency, and import/export shape. It does not type-check
// function bodies.
func Validate(m *Module) error {
	if len(m.Funcs) != len(m.Code) {
		return fmt.Errorf("function section has %d entries but code section has %d", len(m.Funcs), len(m.Code))
	}

	for i, typeIdx := range m.Funcs {
		if int(typeIdx) >= len(m.Types) {
			return fmt.Errorf("function %d references type %d, module has %d types", i, typeIdx, len(m.Types))
		}
	}

	for i, imp := range m.Imports {
		switch imp.Desc.Kind {
		case KindFunc:
			if int(imp.Desc.TypeIdx) >= len(m.Types) {
				return fmt.Errorf("import %d (%s.%s) references type %d, module has %d types",
					i, imp.Module, imp.Name, imp.Desc.TypeIdx, len(m.Types))
			}
		case KindTable:
			if imp.Desc.Table == nil {
				return fmt.Errorf("table import %d (%s.%s) missing table type", i, imp.Module, imp.Name)
			}
		case KindMemory:
			if imp.Desc.Memory == nil {
				return fmt.Errorf("memory import %d (%s.%s) missing memory type", i, imp.Module, imp.Name)
			}
		case KindGlobal:
			if imp.Desc.Global == nil {
				return fmt.Errorf("global import %d (%s.%s) missing global type", i, imp.Module, imp.Name)
			}
		default:
			return fmt.Errorf("import %d (%s.%s) has unknown kind %d", i, imp.Module, imp.Name, imp.Desc.Kind)
		}
	}

	numFuncs := uint32(m.NumFuncs())
	numTables := uint32(m.NumImportedTables() + len(m.Tables))
	numMemories := uint32(m.NumImportedMemories() + len(m.Memories))
	numGlobals := uint32(m.NumImportedGlobals() + len(m.Globals))

	if numMemories > 1 {
		return errors.New("multiple memories are not supported")
	}

	for i, e := range m.Exports {
		var limit uint32
		var what string
		switch e.Kind {
		case KindFunc:
			limit, what = numFuncs, "function"
		case KindTable:
			limit, what = numTables, "table"
		case KindMemory:
			limit, what = numMemories, "memory"
		case KindGlobal:
			limit, what = numGlobals, "global"
		default:
			return fmt.Errorf("export %d (%q) has unknown kind %d", i, e.Name, e.Kind)
		}
		if e.Idx >= limit {
			return fmt.Errorf("export %d (%q) references %s %d, module has %d", i, e.Name, what, e.Idx, limit)
		}
	}

	seen := make(map[string]bool, len(m.Exports))
	for _, e := range m.Exports {
		if seen[e.Name] {
			return fmt.Errorf("duplicate export name %q", e.Name)
		}
		seen[e.Name] = true
	}

	if m.Start != nil {
		if *m.Start >= numFuncs {
			return fmt.Errorf("start function %d out of range, module has %d functions", *m.Start, numFuncs)
		}
		ft := m.GetFuncType(*m.Start)
		if ft == nil || len(ft.Params) != 0 || len(ft.Results) != 0 {
			return fmt.Errorf("start function %d must have type [] -> []", *m.Start)
		}
	}

	for i, elem := range m.Elements {
		for _, idx := range elem.FuncIdxs {
			if idx >= numFuncs {
				return fmt.Errorf("element segment %d references function %d, module has %d", i, idx, numFuncs)
			}
		}
	}

	if m.DataCount != nil && int(*m.DataCount) != len(m.Data) {
		return fmt.Errorf("data count section declares %d segments, data section has %d", *m.DataCount, len(m.Data))
	}

	return nil
}
