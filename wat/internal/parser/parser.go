package parser

import (
	"fmt"

	"github.com/wippyai/wasm-scripthost/diag"
	"github.com/wippyai/wasm-scripthost/wat/internal/ast"
	"github.com/wippyai/wasm-scripthost/wat/internal/sexpr"
)

// Parser turns the s-expression tree of one module into an ast.Module.
// Each module field is parsed independently: an error inside a field is
// reported and the parser moves on to the next field.
type Parser struct {
	bag     *diag.Bag
	mod     *ast.Module
	types   map[string]uint32
	funcs   map[string]uint32
	globals map[string]uint32
	mems    map[string]uint32
	exports map[string]bool
	decls   map[*sexpr.Node]*funcDecl
	nodes   []*sexpr.Node
	nfuncs  uint32
	nmems   uint32
}

func New(nodes []*sexpr.Node, bag *diag.Bag) *Parser {
	return &Parser{
		bag:     bag,
		nodes:   nodes,
		mod:     &ast.Module{FuncNames: make(map[uint32]string)},
		types:   make(map[string]uint32),
		funcs:   make(map[string]uint32),
		globals: make(map[string]uint32),
		mems:    make(map[string]uint32),
		exports: make(map[string]bool),
		decls:   make(map[*sexpr.Node]*funcDecl),
	}
}

// posError is a parse failure anchored at a source position.
type posError struct {
	msg  string
	code diag.Code
	pos  diag.Pos
}

func (e *posError) Error() string {
	return fmt.Sprintf("%s: %s", e.pos, e.msg)
}

func errorAt(n *sexpr.Node, code diag.Code, format string, args ...any) error {
	e := &posError{code: code, msg: fmt.Sprintf(format, args...)}
	if n != nil {
		e.pos = n.Pos()
	}
	return e
}

func (p *Parser) report(err error) {
	if pe, ok := err.(*posError); ok {
		p.bag.Errorf(pe.pos, pe.code, "%s", pe.msg)
		return
	}
	p.bag.Errorf(diag.Pos{}, diag.CodeSyntax, "%s", err.Error())
}

// Parse returns the module even when errors were reported; callers check
// the diagnostic bag before encoding.
func (p *Parser) Parse() *ast.Module {
	var module *sexpr.Node
	for _, n := range p.nodes {
		switch {
		case module == nil && n.IsList("module"):
			module = n
		case module != nil && n.Kind == sexpr.List && n.Head() != "":
			p.bag.Errorf(n.Pos(), diag.CodeSyntax, "%s outside of module; check for an extra ')'", n)
		default:
			p.bag.Errorf(n.Pos(), diag.CodeSyntax, "unexpected %s at top level", n)
		}
	}
	if module == nil {
		if len(p.nodes) == 0 {
			p.bag.Errorf(diag.Pos{Line: 1, Col: 1}, diag.CodeSyntax, "expected (module ...)")
		}
		return p.mod
	}
	p.parseModule(module)
	return p.mod
}

func (p *Parser) parseModule(n *sexpr.Node) {
	args := n.Args()
	if len(args) > 0 && args[0].IsID() {
		p.mod.Name = args[0].Value[1:]
		args = args[1:]
	}

	var fields []*sexpr.Node
	for _, f := range args {
		if f.Kind != sexpr.List || f.Head() == "" {
			p.bag.Errorf(f.Pos(), diag.CodeSyntax, "expected module field, got %s", f)
			continue
		}
		fields = append(fields, f)
	}

	failed := make(map[*sexpr.Node]bool)
	run := func(f *sexpr.Node, fn func(*sexpr.Node) error) {
		if failed[f] {
			return
		}
		if err := fn(f); err != nil {
			p.report(err)
			failed[f] = true
		}
	}

	// Types first so every type use can refer to them, then imports so they
	// take the low indices of each index space, then definitions.
	for _, f := range fields {
		if f.Head() == "type" {
			run(f, p.parseType)
		}
	}
	for _, f := range fields {
		switch f.Head() {
		case "import":
			run(f, p.parseImport)
		case "func", "memory", "global":
			if inlineImport(f) != nil {
				run(f, p.parseInlineImport)
			}
		}
	}
	for _, f := range fields {
		if inlineImport(f) != nil {
			continue
		}
		switch f.Head() {
		case "func":
			run(f, p.declareFunc)
		case "memory":
			run(f, p.parseMemory)
		case "global":
			run(f, p.parseGlobal)
		}
	}
	for _, f := range fields {
		switch f.Head() {
		case "type", "import", "memory", "global":
		case "func":
			if d := p.decls[f]; d != nil {
				run(f, func(*sexpr.Node) error { return p.parseFuncBody(d) })
			}
		case "export":
			run(f, p.parseExport)
		case "start":
			run(f, p.parseStart)
		case "data":
			run(f, p.parseData)
		case "table", "elem", "tag", "rec":
			run(f, func(f *sexpr.Node) error {
				return errorAt(f, diag.CodeSyntax, "unsupported module field %q", f.Head())
			})
		default:
			run(f, func(f *sexpr.Node) error {
				return errorAt(f, diag.CodeSyntax, "unknown module field %q", f.Head())
			})
		}
	}
}

func (p *Parser) findOrAddType(ft ast.FuncType) uint32 {
	for i, t := range p.mod.Types {
		if t.Equal(ft) {
			return uint32(i)
		}
	}
	idx := uint32(len(p.mod.Types))
	p.mod.Types = append(p.mod.Types, ft)
	return idx
}

func (p *Parser) bindName(names map[string]uint32, id *sexpr.Node, what string, idx uint32) error {
	if id == nil {
		return nil
	}
	if _, dup := names[id.Value]; dup {
		return errorAt(id, diag.CodeDuplicateName, "duplicate %s %s", what, id.Value)
	}
	names[id.Value] = idx
	return nil
}

func (p *Parser) addExport(n *sexpr.Node, name string, kind byte, idx uint32) error {
	if p.exports[name] {
		return errorAt(n, diag.CodeDuplicateName, "duplicate export %q", name)
	}
	p.exports[name] = true
	p.mod.Exports = append(p.mod.Exports, ast.Export{Name: name, Kind: kind, Idx: idx})
	return nil
}

// index resolves a symbolic ($name) or numeric reference.
func index(n *sexpr.Node, names map[string]uint32, what string) (uint32, error) {
	if n == nil || n.Kind != sexpr.Atom {
		return 0, errorAt(n, diag.CodeSyntax, "expected %s index", what)
	}
	if n.IsID() {
		idx, ok := names[n.Value]
		if !ok {
			return 0, errorAt(n, diag.CodeUnknownName, "unknown %s %s", what, n.Value)
		}
		return idx, nil
	}
	v, err := parseU32(n.Value)
	if err != nil {
		return 0, errorAt(n, diag.CodeSyntax, "invalid %s index %q", what, n.Value)
	}
	return v, nil
}
