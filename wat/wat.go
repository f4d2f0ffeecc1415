package wat

import (
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-scripthost/diag"
	"github.com/wippyai/wasm-scripthost/wat/internal/ast"
	"github.com/wippyai/wasm-scripthost/wat/internal/encoder"
	"github.com/wippyai/wasm-scripthost/wat/internal/parser"
	"github.com/wippyai/wasm-scripthost/wat/internal/sexpr"
	"github.com/wippyai/wasm-scripthost/wat/internal/token"
)

// MaxDiagnostics bounds the diagnostics kept for one source unit.
const MaxDiagnostics = 200

// Module is a parsed module. It can be inspected before encoding.
type Module struct {
	mod     *ast.Module
	Name    string
	Imports []Import
	Exports []Export
}

// Import describes one import entry. Params and Results are set for
// function imports.
type Import struct {
	Module  string
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
	Pos     diag.Pos
	Kind    api.ExternType
}

type Export struct {
	Name string
	Kind api.ExternType
}

// Parse parses WAT source. The returned module is nil when the source has
// errors; warnings may be present either way.
func Parse(source string) (*Module, []diag.Diagnostic) {
	bag := diag.NewBag(MaxDiagnostics)
	tokens := token.Tokenize(source, bag)
	nodes := sexpr.Read(tokens, bag)
	mod := parser.New(nodes, bag).Parse()
	bag.Sort()
	if bag.HasErrors() {
		return nil, bag.Items()
	}
	return newModule(mod), bag.Items()
}

func newModule(mod *ast.Module) *Module {
	m := &Module{mod: mod, Name: mod.Name}
	for _, imp := range mod.Imports {
		i := Import{Module: imp.Module, Name: imp.Name, Pos: imp.Pos, Kind: api.ExternType(imp.Kind)}
		if imp.Kind == ast.KindFunc {
			ft := mod.Types[imp.TypeIdx]
			i.Params = valueTypes(ft.Params)
			i.Results = valueTypes(ft.Results)
		}
		m.Imports = append(m.Imports, i)
	}
	for _, e := range mod.Exports {
		m.Exports = append(m.Exports, Export{Name: e.Name, Kind: api.ExternType(e.Kind)})
	}
	return m
}

func valueTypes(ts []ast.ValType) []api.ValueType {
	out := make([]api.ValueType, len(ts))
	for i, t := range ts {
		out[i] = api.ValueType(t)
	}
	return out
}

// Encode returns the binary module.
func (m *Module) Encode() []byte {
	return encoder.Encode(m.mod)
}

// Compile parses and encodes WAT source. The image is nil when any error
// diagnostic was produced.
func Compile(source string) ([]byte, []diag.Diagnostic) {
	m, diags := Parse(source)
	if m == nil {
		return nil, diags
	}
	return m.Encode(), diags
}
