package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wasm-bindgen/errors"
	"github.com/wippyai/wasm-bindgen/interp"
	"github.com/wippyai/wasm-bindgen/metadata"
	"github.com/wippyai/wasm-bindgen/pipeline"
	"github.com/wippyai/wasm-bindgen/transform"
	"github.com/wippyai/wasm-bindgen/wasm"
)

func main() {
	var (
		wasmFile    = flag.String("wasm", "", "Path to annotated wasm module")
		outDir      = flag.String("out", ".", "Output directory")
		name        = flag.String("name", "", "Artifact base name (default: derived from input)")
		refTypes    = flag.Bool("reference-types", false, "Target supports externref")
		multiValue  = flag.Bool("multi-value", false, "Target supports multi-value returns")
		threaded    = flag.Bool("threads", false, "Build for shared-memory threading")
		emitWIT     = flag.Bool("wit", false, "Emit a WIT interface document")
		noTypes     = flag.Bool("no-types", false, "Skip the .d.ts declaration file")
		verify      = flag.Bool("verify", false, "Compile the final module under wazero")
		list        = flag.Bool("list", false, "List bindings and exit")
		interactive = flag.Bool("i", false, "Interactive binding inspector")
		verbose     = flag.Bool("v", false, "Verbose logging")
	)
	flag.Parse()

	if *wasmFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: bindgen -wasm <file.wasm> [-out dir] [-name base] [-reference-types] [-multi-value] [-threads] [-wit] [-verify]")
		fmt.Fprintln(os.Stderr, "       bindgen -wasm <file.wasm> -list")
		fmt.Fprintln(os.Stderr, "       bindgen -wasm <file.wasm> -i  (interactive inspector)")
		os.Exit(1)
	}

	if *verbose {
		l, err := zap.NewDevelopment()
		if err == nil {
			pipeline.SetAllLoggers(l)
			defer l.Sync()
		}
	}

	if *interactive {
		if err := runInteractive(*wasmFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *list {
		if err := listBindings(*wasmFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg := pipeline.Config{
		Name: *name,
		Features: transform.Features{
			ReferenceTypes: *refTypes,
			MultiValue:     *multiValue,
			Multithreading: *threaded,
		},
		EmitTypes: !*noTypes,
		EmitWIT:   *emitWIT,
		Verify:    *verify,
	}
	if cfg.Name == "" {
		cfg.Name = baseName(*wasmFile)
	}

	if err := build(*wasmFile, *outDir, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func build(wasmFile, outDir string, cfg pipeline.Config) error {
	data, err := os.ReadFile(wasmFile)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	res, err := pipeline.BuildTo(context.Background(), data, outDir, cfg)
	if err != nil {
		return err
	}

	// Styled summary only when stdout is a real terminal.
	label := func(s string) string { return s }
	if term.IsTerminal(int(os.Stdout.Fd())) {
		style := lipgloss.NewStyle().Bold(true)
		label = func(s string) string { return style.Render(s) }
	}

	fmt.Printf("%s %s\n", label("Module:"), wasmFile)
	fmt.Printf("%s %d\n", label("Bindings:"), res.Bindings)
	if len(res.Passes) > 0 {
		names := make([]string, len(res.Passes))
		for i, p := range res.Passes {
			names[i] = string(p)
		}
		fmt.Printf("%s %s\n", label("Passes:"), strings.Join(names, ", "))
	}
	fmt.Printf("%s %s\n", label("Output:"), outDir)
	return nil
}

// listBindings resolves the module's metadata and prints every binding
// with its descriptor shape, without building anything.
func listBindings(wasmFile string) error {
	reg, err := loadRegistry(wasmFile)
	if err != nil {
		return err
	}

	fmt.Printf("Module: %s\n\nBindings:\n", wasmFile)
	for _, b := range reg.All() {
		switch b.Kind {
		case metadata.KindExport:
			fmt.Printf("  export %s: %s\n", errors.DemangleRust(b.Name), b.Descriptor.String())
		case metadata.KindImport:
			fmt.Printf("  import %s.%s: %s\n", b.HostModule, b.HostName, b.Descriptor.String())
		}
	}
	return nil
}

func loadRegistry(wasmFile string) (*metadata.Registry, error) {
	data, err := os.ReadFile(wasmFile)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	m, err := wasm.ParseModule(data)
	if err != nil {
		return nil, err
	}
	md, err := metadata.FromModule(m)
	if err != nil {
		return nil, err
	}
	reg, err := metadata.FromMetadata(md)
	if err != nil {
		return nil, err
	}
	if err := metadata.Resolve(m, reg, interp.Config{}); err != nil {
		return nil, err
	}
	return reg, nil
}

func baseName(path string) string {
	base := path
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	base = strings.TrimSuffix(base, ".wasm")
	if base == "" {
		return "module"
	}
	return base
}
