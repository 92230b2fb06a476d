// Package metadata models the binding records a compiled module carries
// in its custom section: which functions are exported to JS, which host
// functions the module imports, where each binding's descriptor function
// lives, and any inline JS snippets the module ships.
package metadata

import (
	"github.com/wippyai/wasm-bindgen/descriptor"
)

// SectionName is the custom section holding binding metadata.
const SectionName = "bindgen"

// SchemaVersion is the metadata schema this tool reads and writes.
const SchemaVersion uint32 = 1

// BindingKind distinguishes module exports from host imports.
type BindingKind byte

const (
	KindExport BindingKind = 0 // wasm function surfaced to JS
	KindImport BindingKind = 1 // host function the module calls
)

func (k BindingKind) String() string {
	switch k {
	case KindExport:
		return "export"
	case KindImport:
		return "import"
	}
	return "unknown"
}

// Binding is one metadata record. For exports, Name is the wasm export
// name. For imports, HostModule and HostName identify the import the
// glue must provide.
type Binding struct {
	Name           string
	HostModule     string // imports only
	HostName       string // imports only
	Descriptor     *descriptor.Function
	DescriptorFunc uint32 // function index of the descriptor function
	Kind           BindingKind
}

// Snippet is an inline JS file the module ships alongside its bindings.
type Snippet struct {
	Path   string
	Source string
}

// Metadata is the decoded contents of the bindgen custom section.
type Metadata struct {
	Bindings []Binding
	Snippets []Snippet
}

// Exports returns the export bindings in section order.
func (md *Metadata) Exports() []Binding {
	return md.filter(KindExport)
}

// Imports returns the import bindings in section order.
func (md *Metadata) Imports() []Binding {
	return md.filter(KindImport)
}

func (md *Metadata) filter(kind BindingKind) []Binding {
	var out []Binding
	for _, b := range md.Bindings {
		if b.Kind == kind {
			out = append(out, b)
		}
	}
	return out
}

// DescriptorFuncs returns the set of function indices used as descriptor
// functions. The assembler strips these from the final module.
func (md *Metadata) DescriptorFuncs() map[uint32]bool {
	set := make(map[uint32]bool, len(md.Bindings))
	for _, b := range md.Bindings {
		set[b.DescriptorFunc] = true
	}
	return set
}
