package metadata

import (
	"bytes"
	"unicode/utf8"

	"github.com/wippyai/wasm-bindgen/errors"
	"github.com/wippyai/wasm-bindgen/wasm"
)

// Parse decodes a bindgen custom section payload.
func Parse(data []byte) (*Metadata, error) {
	r := bytes.NewReader(data)

	version, err := wasm.ReadLEB128u(r)
	if err != nil {
		return nil, errors.ParseFailed("metadata version", err)
	}
	if version != SchemaVersion {
		return nil, errors.VersionMismatch(errors.PhaseParse, SchemaVersion, version)
	}

	md := &Metadata{}

	bindingCount, err := wasm.ReadLEB128u(r)
	if err != nil {
		return nil, errors.ParseFailed("binding count", err)
	}
	// Every binding consumes at least one byte, so a count past the
	// remaining input is malformed rather than an allocation request.
	if int(bindingCount) > r.Len() {
		return nil, errors.OutOfBounds(errors.PhaseParse, nil, int(bindingCount), r.Len())
	}
	md.Bindings = make([]Binding, bindingCount)
	for i := range md.Bindings {
		b := &md.Bindings[i]

		kind, err := r.ReadByte()
		if err != nil {
			return nil, errors.ParseFailed("binding kind", err)
		}
		if kind > byte(KindImport) {
			return nil, errors.New(errors.PhaseParse, errors.KindInvalidData).
				Detail("unknown binding kind %d", kind).
				Build()
		}
		b.Kind = BindingKind(kind)

		b.Name, err = readString(r)
		if err != nil {
			return nil, errors.ParseFailed("binding name", err)
		}
		b.DescriptorFunc, err = wasm.ReadLEB128u(r)
		if err != nil {
			return nil, errors.ParseFailed("descriptor function index", err)
		}

		if b.Kind == KindImport {
			b.HostModule, err = readString(r)
			if err != nil {
				return nil, errors.ParseFailed("host module", err)
			}
			b.HostName, err = readString(r)
			if err != nil {
				return nil, errors.ParseFailed("host name", err)
			}
		}
	}

	snippetCount, err := wasm.ReadLEB128u(r)
	if err != nil {
		return nil, errors.ParseFailed("snippet count", err)
	}
	if int(snippetCount) > r.Len() {
		return nil, errors.OutOfBounds(errors.PhaseParse, nil, int(snippetCount), r.Len())
	}
	md.Snippets = make([]Snippet, snippetCount)
	for i := range md.Snippets {
		md.Snippets[i].Path, err = readString(r)
		if err != nil {
			return nil, errors.ParseFailed("snippet path", err)
		}
		md.Snippets[i].Source, err = readString(r)
		if err != nil {
			return nil, errors.ParseFailed("snippet source", err)
		}
	}

	if r.Len() != 0 {
		return nil, errors.InvalidData(errors.PhaseParse, nil, "trailing bytes after metadata")
	}

	return md, nil
}

// Encode serializes metadata into a custom section payload.
func Encode(md *Metadata) []byte {
	var buf bytes.Buffer

	wasm.WriteLEB128u(&buf, SchemaVersion)

	wasm.WriteLEB128u(&buf, uint32(len(md.Bindings)))
	for _, b := range md.Bindings {
		buf.WriteByte(byte(b.Kind))
		writeString(&buf, b.Name)
		wasm.WriteLEB128u(&buf, b.DescriptorFunc)
		if b.Kind == KindImport {
			writeString(&buf, b.HostModule)
			writeString(&buf, b.HostName)
		}
	}

	wasm.WriteLEB128u(&buf, uint32(len(md.Snippets)))
	for _, s := range md.Snippets {
		writeString(&buf, s.Path)
		writeString(&buf, s.Source)
	}

	return buf.Bytes()
}

// FromModule reads and decodes the bindgen section of a parsed module.
func FromModule(m *wasm.Module) (*Metadata, error) {
	data, ok := m.CustomSectionData(SectionName)
	if !ok {
		return nil, errors.NotFound(errors.PhaseParse, "custom section", SectionName)
	}
	return Parse(data)
}

// AttachToModule encodes metadata and replaces the module's bindgen
// section with it.
func AttachToModule(m *wasm.Module, md *Metadata) {
	m.RemoveCustomSection(SectionName)
	m.CustomSections = append(m.CustomSections, wasm.CustomSection{
		Name: SectionName,
		Data: Encode(md),
	})
}

func readString(r *bytes.Reader) (string, error) {
	n, err := wasm.ReadLEB128u(r)
	if err != nil {
		return "", err
	}
	if int(n) > r.Len() {
		return "", errors.OutOfBounds(errors.PhaseParse, nil, int(n), r.Len())
	}
	buf := make([]byte, n)
	if _, err := r.Read(buf); err != nil {
		return "", err
	}
	if !utf8.Valid(buf) {
		return "", errors.InvalidUTF8(errors.PhaseParse, nil, buf)
	}
	return string(buf), nil
}

func writeString(buf *bytes.Buffer, s string) {
	wasm.WriteLEB128u(buf, uint32(len(s)))
	buf.WriteString(s)
}
