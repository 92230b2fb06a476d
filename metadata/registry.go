package metadata

import (
	"github.com/wippyai/wasm-bindgen/errors"
	"github.com/wippyai/wasm-bindgen/wasm"
)

// Registry holds resolved bindings keyed by the identifier each will
// occupy in the generated glue. Registration order is preserved so every
// later stage sees bindings in a stable order.
type Registry struct {
	index    map[string]int
	items    []Binding
	snippets []Snippet
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// key namespaces exports and imports separately: an exported greet and an
// imported greet can coexist because they live on different sides of the
// generated glue.
func key(b *Binding) string {
	if b.Kind == KindImport {
		return "import:" + b.HostModule + "." + b.HostName
	}
	return "export:" + b.Name
}

// Register adds a binding. Two bindings occupying the same glue
// identifier is an error.
func (r *Registry) Register(b Binding) error {
	k := key(&b)
	if prev, exists := r.index[k]; exists {
		return errors.NameCollision(b.Name, r.items[prev].Name, b.Name)
	}
	r.index[k] = len(r.items)
	r.items = append(r.items, b)
	return nil
}

// All returns bindings in registration order. The slice is shared;
// callers must not append to it.
func (r *Registry) All() []Binding {
	return r.items
}

// Exports returns export bindings in registration order.
func (r *Registry) Exports() []Binding {
	var out []Binding
	for _, b := range r.items {
		if b.Kind == KindExport {
			out = append(out, b)
		}
	}
	return out
}

// Imports returns import bindings in registration order.
func (r *Registry) Imports() []Binding {
	var out []Binding
	for _, b := range r.items {
		if b.Kind == KindImport {
			out = append(out, b)
		}
	}
	return out
}

// LookupExport finds an export binding by name.
func (r *Registry) LookupExport(name string) (*Binding, bool) {
	if i, ok := r.index["export:"+name]; ok {
		return &r.items[i], true
	}
	return nil, false
}

// LookupImport finds an import binding by host module and name.
func (r *Registry) LookupImport(hostModule, hostName string) (*Binding, bool) {
	if i, ok := r.index["import:"+hostModule+"."+hostName]; ok {
		return &r.items[i], true
	}
	return nil, false
}

// Len returns the number of registered bindings.
func (r *Registry) Len() int {
	return len(r.items)
}

// Renumber applies a function index remap to every binding's descriptor
// function reference. Adapter passes call this after changing the
// module's function index space.
func (r *Registry) Renumber(remap wasm.Remap) {
	for i := range r.items {
		r.items[i].DescriptorFunc = remap.Lookup(r.items[i].DescriptorFunc)
	}
}

// Snippets returns the inline source files the bindings reference.
func (r *Registry) Snippets() []Snippet {
	return r.snippets
}

// SetSnippets replaces the registry's snippet list.
func (r *Registry) SetSnippets(snippets []Snippet) {
	r.snippets = snippets
}

// FromMetadata registers every metadata binding, rejecting collisions,
// and carries the snippet list over.
func FromMetadata(md *Metadata) (*Registry, error) {
	r := NewRegistry()
	for _, b := range md.Bindings {
		if err := r.Register(b); err != nil {
			return nil, err
		}
	}
	r.snippets = md.Snippets
	return r, nil
}
