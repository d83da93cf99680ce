package wasm

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// Function describes an exported or imported function signature.
type Function struct {
	Module  string   `json:"module,omitempty"`
	Name    string   `json:"name"`
	Params  []string `json:"params"`
	Results []string `json:"results"`
}

func (f Function) String() string {
	name := f.Name
	if f.Module != "" {
		name = f.Module + "." + name
	}
	return fmt.Sprintf("%s(%s) -> (%s)", name, strings.Join(f.Params, ", "), strings.Join(f.Results, ", "))
}

// Report lists what a module exports and imports, and which oracle exports
// it lacks.
type Report struct {
	Exports []Function `json:"exports"`
	Imports []Function `json:"imports"`
	Memory  bool       `json:"memory"`
	Missing []string   `json:"missing"`
}

// Usable reports whether New would accept the module's exports.
func (r *Report) Usable() bool {
	return len(r.Missing) == 0
}

// InspectFile inspects the module at path.
func InspectFile(ctx context.Context, path string) (*Report, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read oracle module: %w", err)
	}
	return Inspect(ctx, code)
}

// Inspect compiles the module without instantiating it.
func Inspect(ctx context.Context, wasmCode []byte) (*Report, error) {
	runtime := wazero.NewRuntime(ctx)
	defer runtime.Close(ctx)

	compiled, err := runtime.CompileModule(ctx, wasmCode)
	if err != nil {
		return nil, fmt.Errorf("failed to compile WebAssembly module: %w", err)
	}

	report := &Report{Missing: []string{}}
	exported := compiled.ExportedFunctions()
	for name, def := range exported {
		fn := describe(def)
		fn.Name = name
		report.Exports = append(report.Exports, fn)
	}
	sort.Slice(report.Exports, func(i, j int) bool { return report.Exports[i].Name < report.Exports[j].Name })

	for _, def := range compiled.ImportedFunctions() {
		fn := describe(def)
		fn.Module, fn.Name, _ = def.Import()
		report.Imports = append(report.Imports, fn)
	}

	for _, name := range []string{fnAllocate, fnVerifyProof, fnVerifySumEquality, fnVerifyRangeBound} {
		if _, ok := exported[name]; !ok {
			report.Missing = append(report.Missing, name)
		}
	}
	_, report.Memory = compiled.ExportedMemories()["memory"]
	if !report.Memory {
		report.Missing = append(report.Missing, "memory")
	}
	return report, nil
}

func describe(def api.FunctionDefinition) Function {
	fn := Function{Params: []string{}, Results: []string{}}
	for _, t := range def.ParamTypes() {
		fn.Params = append(fn.Params, api.ValueTypeName(t))
	}
	for _, t := range def.ResultTypes() {
		fn.Results = append(fn.Results, api.ValueTypeName(t))
	}
	return fn
}
