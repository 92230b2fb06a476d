// Package assemble produces the final artifact set: the stripped
// module, the generated glue and declarations, the optional WIT text,
// and any snippet files.
//
// Stripping removes the binding metadata section and every function no
// longer reachable from a retained export, the start function, or an
// element segment. Descriptor functions are only referenced by the
// metadata section, so they fall out here along with the describe
// import.
package assemble

import (
	"fmt"

	"github.com/wippyai/wasm-bindgen/errors"
	"github.com/wippyai/wasm-bindgen/interp"
	"github.com/wippyai/wasm-bindgen/metadata"
	"github.com/wippyai/wasm-bindgen/wasm"
	"go.uber.org/zap"
)

// StripReport summarizes a strip run.
type StripReport struct {
	RemovedFuncs   int
	RemovedImports int
}

// Strip removes the metadata custom section and unreachable functions,
// compacting the function index space. The returned remap sends every
// surviving pre-strip index to its post-strip position.
func Strip(m *wasm.Module) (wasm.Remap, StripReport, error) {
	m.RemoveCustomSection(metadata.SectionName)

	reachable, err := reachableFuncs(m)
	if err != nil {
		return wasm.IdentityRemap(), StripReport{}, err
	}

	return compact(m, reachable)
}

// reachableFuncs walks the call graph from every root the runtime can
// still enter through.
func reachableFuncs(m *wasm.Module) ([]bool, error) {
	total := uint32(m.NumFuncs())
	reachable := make([]bool, total)
	var queue []uint32

	mark := func(idx uint32) {
		if idx < total && !reachable[idx] {
			reachable[idx] = true
			queue = append(queue, idx)
		}
	}

	for _, exp := range m.Exports {
		if exp.Kind == wasm.KindFunc {
			mark(exp.Idx)
		}
	}
	if m.Start != nil {
		mark(*m.Start)
	}
	for _, elem := range m.Elements {
		for _, idx := range elem.FuncIdxs {
			mark(idx)
		}
		for _, expr := range elem.Exprs {
			targets, err := funcRefs(expr)
			if err != nil {
				return nil, err
			}
			for _, idx := range targets {
				mark(idx)
			}
		}
	}
	for _, g := range m.Globals {
		targets, err := funcRefs(g.Init)
		if err != nil {
			return nil, err
		}
		for _, idx := range targets {
			mark(idx)
		}
	}

	imported := uint32(m.NumImportedFuncs())
	edges := make(map[uint32][]uint32)

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur < imported {
			continue
		}
		callees, ok := edges[cur]
		if !ok {
			body := m.BodyOf(cur)
			if body == nil {
				return nil, errors.New(errors.PhaseEmit, errors.KindOutOfBounds).
					Detail("function %d has no body", cur).
					Build()
			}
			var err error
			callees, err = bodyRefs(body.Code)
			if err != nil {
				return nil, errors.Wrap(errors.PhaseEmit, errors.KindInvalidData, err,
					fmt.Sprintf("decode function %d", cur))
			}
			edges[cur] = callees
		}
		for _, callee := range callees {
			mark(callee)
		}
	}

	return reachable, nil
}

func bodyRefs(code []byte) ([]uint32, error) {
	instrs, err := wasm.DecodeInstructions(code)
	if err != nil {
		return nil, err
	}
	var out []uint32
	for _, in := range instrs {
		if target, ok := in.GetCallTarget(); ok {
			out = append(out, target)
		}
		if imm, ok := in.Imm.(wasm.RefFuncImm); ok {
			out = append(out, imm.FuncIdx)
		}
	}
	return out, nil
}

func funcRefs(expr []byte) ([]uint32, error) {
	if len(expr) == 0 {
		return nil, nil
	}
	return bodyRefs(expr)
}

// compact drops unreachable functions and renumbers everything that
// holds a function index.
func compact(m *wasm.Module, reachable []bool) (wasm.Remap, StripReport, error) {
	remap := wasm.IdentityRemap()
	report := StripReport{}
	imported := uint32(m.NumImportedFuncs())

	// Function imports first: dropping one shifts the whole index
	// space, so the remap covers imports and defined functions alike.
	next := uint32(0)
	var keptImports []wasm.Import
	funcImportIdx := uint32(0)
	for _, imp := range m.Imports {
		if imp.Desc.Kind != wasm.KindFunc {
			keptImports = append(keptImports, imp)
			continue
		}
		if reachable[funcImportIdx] {
			remap.Set(funcImportIdx, next)
			next++
			keptImports = append(keptImports, imp)
		} else {
			report.RemovedImports++
		}
		funcImportIdx++
	}

	var keptFuncs []uint32
	var keptCode []wasm.FuncBody
	for i := range m.Funcs {
		old := imported + uint32(i)
		if reachable[old] {
			remap.Set(old, next)
			next++
			keptFuncs = append(keptFuncs, m.Funcs[i])
			keptCode = append(keptCode, m.Code[i])
		} else {
			report.RemovedFuncs++
		}
	}

	if report.RemovedFuncs == 0 && report.RemovedImports == 0 {
		return remap, report, nil
	}

	// The name section maps debug names by function index; those
	// indices are stale once the index space shifts.
	m.RemoveCustomSection("name")

	m.Imports = keptImports
	m.Funcs = keptFuncs
	m.Code = keptCode

	for i := range m.Code {
		rewritten, changed, err := rewriteRefs(m.Code[i].Code, remap)
		if err != nil {
			return remap, report, errors.Wrap(errors.PhaseEmit, errors.KindInvalidData, err,
				fmt.Sprintf("renumber function body %d", i))
		}
		if changed {
			m.Code[i].Code = rewritten
		}
	}
	for i := range m.Exports {
		if m.Exports[i].Kind == wasm.KindFunc {
			m.Exports[i].Idx = remap.Lookup(m.Exports[i].Idx)
		}
	}
	if m.Start != nil {
		idx := remap.Lookup(*m.Start)
		m.Start = &idx
	}
	for i := range m.Elements {
		for j, idx := range m.Elements[i].FuncIdxs {
			m.Elements[i].FuncIdxs[j] = remap.Lookup(idx)
		}
		for j, expr := range m.Elements[i].Exprs {
			rewritten, changed, err := rewriteRefs(expr, remap)
			if err != nil {
				return remap, report, errors.Wrap(errors.PhaseEmit, errors.KindInvalidData, err,
					fmt.Sprintf("renumber element expression %d", i))
			}
			if changed {
				m.Elements[i].Exprs[j] = rewritten
			}
		}
	}
	for i := range m.Globals {
		rewritten, changed, err := rewriteRefs(m.Globals[i].Init, remap)
		if err != nil {
			return remap, report, errors.Wrap(errors.PhaseEmit, errors.KindInvalidData, err,
				fmt.Sprintf("renumber global %d init", i))
		}
		if changed {
			m.Globals[i].Init = rewritten
		}
	}

	Logger().Debug("stripped module",
		zap.Int("removed_funcs", report.RemovedFuncs),
		zap.Int("removed_imports", report.RemovedImports))

	return remap, report, nil
}

func rewriteRefs(code []byte, remap wasm.Remap) ([]byte, bool, error) {
	instrs, err := wasm.DecodeInstructions(code)
	if err != nil {
		return nil, false, err
	}
	changed := false
	for i := range instrs {
		switch imm := instrs[i].Imm.(type) {
		case wasm.CallImm:
			if mapped := remap.Lookup(imm.FuncIdx); mapped != imm.FuncIdx {
				instrs[i].Imm = wasm.CallImm{FuncIdx: mapped}
				changed = true
			}
		case wasm.RefFuncImm:
			if mapped := remap.Lookup(imm.FuncIdx); mapped != imm.FuncIdx {
				instrs[i].Imm = wasm.RefFuncImm{FuncIdx: mapped}
				changed = true
			}
		}
	}
	if !changed {
		return code, false, nil
	}
	return wasm.EncodeInstructions(instrs), true, nil
}

// DescribeImportGone reports whether stripping removed the describe
// intrinsic, which should always be dead once descriptors resolve.
func DescribeImportGone(m *wasm.Module) bool {
	for _, imp := range m.Imports {
		if imp.Module == interp.DescribeModule && imp.Name == interp.DescribeName {
			return false
		}
	}
	return true
}
