package assemble

import (
	"os"
	"path/filepath"

	"github.com/wippyai/wasm-bindgen/errors"
	"github.com/wippyai/wasm-bindgen/metadata"
	"github.com/wippyai/wasm-bindgen/wasm"
	"go.uber.org/zap"
)

// Artifacts is the in-memory output set. Nothing touches disk until
// every artifact exists.
type Artifacts struct {
	Name     string
	Wasm     []byte
	JS       string
	DTS      string
	WIT      string
	Snippets []metadata.Snippet
}

// Finalize strips the module and bundles it with the generated text
// artifacts.
func Finalize(m *wasm.Module, name, js, dts, wit string, snippets []metadata.Snippet) (*Artifacts, error) {
	if _, _, err := Strip(m); err != nil {
		return nil, err
	}
	encoded, err := wasm.Encode(m)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseEmit, errors.KindInvalidData, err, "encode final module")
	}
	return &Artifacts{
		Name:     name,
		Wasm:     encoded,
		JS:       js,
		DTS:      dts,
		WIT:      wit,
		Snippets: snippets,
	}, nil
}

// files lays the artifact set out relative to the output directory.
func (a *Artifacts) files() map[string][]byte {
	out := map[string][]byte{
		a.Name + "_bg.wasm": a.Wasm,
		a.Name + ".js":      []byte(a.JS),
	}
	if a.DTS != "" {
		out[a.Name+".d.ts"] = []byte(a.DTS)
	}
	if a.WIT != "" {
		out[a.Name+".wit"] = []byte(a.WIT)
	}
	for _, s := range a.Snippets {
		out[filepath.Join("snippets", s.Path)] = []byte(s.Source)
	}
	return out
}

// Write materializes the artifact set under dir. Every file is staged
// under a temporary name before any final name is touched, and existing
// artifacts are moved aside before being replaced, so a failure at any
// point restores the previous set instead of leaving a mix.
func (a *Artifacts) Write(dir string) error {
	files := a.files()

	var staged []string
	cleanup := func() {
		for _, tmp := range staged {
			os.Remove(tmp)
		}
	}

	for rel, data := range files {
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			cleanup()
			return errors.Wrap(errors.PhaseEmit, errors.KindInvalidData, err, "create output directory")
		}
		tmp := path + ".tmp"
		if err := os.WriteFile(tmp, data, 0o644); err != nil {
			cleanup()
			return errors.Wrap(errors.PhaseEmit, errors.KindInvalidData, err, "stage "+rel)
		}
		staged = append(staged, tmp)
	}

	// Commit phase: previous artifacts go to backup names first so a
	// rename failure can put them back.
	type backup struct{ bak, path string }
	var moved []backup
	restore := func() {
		for _, m := range moved {
			os.Rename(m.bak, m.path)
		}
	}

	for rel := range files {
		path := filepath.Join(dir, rel)
		bak := path + ".bak"
		if _, err := os.Lstat(path); err == nil {
			if err := os.Rename(path, bak); err != nil {
				cleanup()
				restore()
				return errors.Wrap(errors.PhaseEmit, errors.KindInvalidData, err, "back up "+rel)
			}
			moved = append(moved, backup{bak: bak, path: path})
		}
		if err := os.Rename(path+".tmp", path); err != nil {
			cleanup()
			restore()
			return errors.Wrap(errors.PhaseEmit, errors.KindInvalidData, err, "commit "+rel)
		}
	}
	for _, m := range moved {
		os.Remove(m.bak)
	}

	Logger().Info("wrote artifact set",
		zap.String("dir", dir),
		zap.Int("files", len(files)))
	return nil
}
