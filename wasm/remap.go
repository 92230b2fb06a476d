package wasm

// Remap records how function indices moved during a module transform.
// Passes that inject or reorder functions return one so later stages can
// translate indices captured before the transform ran.
type Remap struct {
	Funcs map[uint32]uint32
}

// IdentityRemap returns a remap with no entries. Lookup resolves every
// index to itself.
func IdentityRemap() Remap {
	return Remap{Funcs: map[uint32]uint32{}}
}

// Lookup resolves a pre-transform function index to its post-transform
// index. Indices without an entry are unchanged.
func (r Remap) Lookup(funcIdx uint32) uint32 {
	if mapped, ok := r.Funcs[funcIdx]; ok {
		return mapped
	}
	return funcIdx
}

// Set records that old now lives at new. Identity entries are not stored.
func (r Remap) Set(old, new uint32) {
	if old == new {
		delete(r.Funcs, old)
		return
	}
	r.Funcs[old] = new
}

// Compose returns a remap equivalent to applying r first, then next.
func (r Remap) Compose(next Remap) Remap {
	out := IdentityRemap()
	seen := make(map[uint32]bool, len(r.Funcs))
	for old, mid := range r.Funcs {
		out.Set(old, next.Lookup(mid))
		seen[old] = true
	}
	for old, final := range next.Funcs {
		if !seen[old] {
			out.Set(old, final)
		}
	}
	return out
}
