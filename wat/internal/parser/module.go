package parser

import (
	"unicode/utf8"

	"github.com/wippyai/wasm-scripthost/diag"
	"github.com/wippyai/wasm-scripthost/wat/internal/ast"
	"github.com/wippyai/wasm-scripthost/wat/internal/opcode"
	"github.com/wippyai/wasm-scripthost/wat/internal/sexpr"
)

const pageSize = 65536

// header holds the parts shared by func, memory and global fields:
// an optional $id, inline exports and an optional inline import.
type header struct {
	id      *sexpr.Node
	imp     *sexpr.Node
	exports []*sexpr.Node
	rest    []*sexpr.Node
}

func splitHeader(f *sexpr.Node) header {
	args := f.Args()
	var h header
	if len(args) > 0 && args[0].IsID() {
		h.id = args[0]
		args = args[1:]
	}
	for len(args) > 0 {
		switch {
		case args[0].IsList("export"):
			h.exports = append(h.exports, args[0])
		case args[0].IsList("import") && h.imp == nil:
			h.imp = args[0]
		default:
			h.rest = args
			return h
		}
		args = args[1:]
	}
	return h
}

func inlineImport(f *sexpr.Node) *sexpr.Node {
	return splitHeader(f).imp
}

// text decodes a string node that must hold valid UTF-8, such as an
// import or export name.
func text(n *sexpr.Node) (string, error) {
	if n == nil || n.Kind != sexpr.String {
		return "", errorAt(n, diag.CodeSyntax, "expected string")
	}
	b, err := decodeString(n.Value)
	if err != nil {
		return "", errorAt(n, diag.CodeSyntax, "%v", err)
	}
	if !utf8.Valid(b) {
		return "", errorAt(n, diag.CodeSyntax, "name is not valid UTF-8")
	}
	return string(b), nil
}

func (p *Parser) inlineExports(h header, kind byte, idx uint32) error {
	for _, e := range h.exports {
		args := e.Args()
		if len(args) != 1 {
			return errorAt(e, diag.CodeSyntax, "expected (export \"name\")")
		}
		name, err := text(args[0])
		if err != nil {
			return err
		}
		if err := p.addExport(e, name, kind, idx); err != nil {
			return err
		}
	}
	return nil
}

func (p *Parser) parseType(f *sexpr.Node) error {
	args := f.Args()
	var id *sexpr.Node
	if len(args) > 0 && args[0].IsID() {
		id = args[0]
		args = args[1:]
	}
	if len(args) != 1 || !args[0].IsList("func") {
		return errorAt(f, diag.CodeSyntax, "expected (func ...) in type definition")
	}
	ft, _, rest, err := p.funcSig(args[0].Args(), false)
	if err != nil {
		return err
	}
	if len(rest) > 0 {
		return errorAt(rest[0], diag.CodeSyntax, "unexpected %s in type definition", rest[0])
	}
	idx := uint32(len(p.mod.Types))
	if err := p.bindName(p.types, id, "type", idx); err != nil {
		return err
	}
	p.mod.Types = append(p.mod.Types, ft)
	return nil
}

// funcSig parses leading (param ...) and (result ...) lists. The returned
// ids hold one entry per parameter, nil for unnamed ones.
func (p *Parser) funcSig(nodes []*sexpr.Node, allowNames bool) (ast.FuncType, []*sexpr.Node, []*sexpr.Node, error) {
	var (
		ft  ast.FuncType
		ids []*sexpr.Node
	)
	for len(nodes) > 0 {
		n := nodes[0]
		switch {
		case n.IsList("param"):
			if len(ft.Results) > 0 {
				return ft, nil, nil, errorAt(n, diag.CodeSyntax, "param after result")
			}
			args := n.Args()
			if len(args) > 0 && args[0].IsID() {
				if !allowNames {
					return ft, nil, nil, errorAt(args[0], diag.CodeSyntax, "named parameter not allowed here")
				}
				if len(args) != 2 {
					return ft, nil, nil, errorAt(n, diag.CodeSyntax, "named parameter takes exactly one type")
				}
				vt, err := valType(args[1])
				if err != nil {
					return ft, nil, nil, err
				}
				ft.Params = append(ft.Params, vt)
				ids = append(ids, args[0])
				break
			}
			for _, a := range args {
				vt, err := valType(a)
				if err != nil {
					return ft, nil, nil, err
				}
				ft.Params = append(ft.Params, vt)
				ids = append(ids, nil)
			}
		case n.IsList("result"):
			for _, a := range n.Args() {
				vt, err := valType(a)
				if err != nil {
					return ft, nil, nil, err
				}
				ft.Results = append(ft.Results, vt)
			}
		default:
			return ft, ids, nodes, nil
		}
		nodes = nodes[1:]
	}
	return ft, ids, nil, nil
}

// typeUse parses an optional (type x) followed by an inline signature.
func (p *Parser) typeUse(nodes []*sexpr.Node) (uint32, []*sexpr.Node, []*sexpr.Node, error) {
	var ref *sexpr.Node
	if len(nodes) > 0 && nodes[0].IsList("type") {
		ref = nodes[0]
		nodes = nodes[1:]
	}
	ft, ids, rest, err := p.funcSig(nodes, true)
	if err != nil {
		return 0, nil, nil, err
	}
	if ref == nil {
		return p.findOrAddType(ft), ids, rest, nil
	}

	args := ref.Args()
	if len(args) != 1 {
		return 0, nil, nil, errorAt(ref, diag.CodeSyntax, "expected (type index)")
	}
	idx, err := index(args[0], p.types, "type")
	if err != nil {
		return 0, nil, nil, err
	}
	if int(idx) >= len(p.mod.Types) {
		return 0, nil, nil, errorAt(args[0], diag.CodeUnknownName, "type index %d out of range", idx)
	}
	declared := p.mod.Types[idx]
	if len(ft.Params)+len(ft.Results) > 0 && !declared.Equal(ft) {
		return 0, nil, nil, errorAt(ref, diag.CodeSignature, "inline signature %s does not match type %s", ft, declared)
	}
	if len(ids) == 0 {
		ids = make([]*sexpr.Node, len(declared.Params))
	}
	return idx, ids, rest, nil
}

func (p *Parser) parseImport(f *sexpr.Node) error {
	args := f.Args()
	if len(args) != 3 || args[2].Kind != sexpr.List {
		return errorAt(f, diag.CodeSyntax, "expected (import \"module\" \"name\" (descriptor))")
	}
	module, err := text(args[0])
	if err != nil {
		return err
	}
	name, err := text(args[1])
	if err != nil {
		return err
	}
	desc := args[2]
	h := header{rest: desc.Args()}
	if len(h.rest) > 0 && h.rest[0].IsID() {
		h.id = h.rest[0]
		h.rest = h.rest[1:]
	}
	return p.addImport(f, desc.Head(), module, name, h)
}

func (p *Parser) parseInlineImport(f *sexpr.Node) error {
	h := splitHeader(f)
	args := h.imp.Args()
	if len(args) != 2 {
		return errorAt(h.imp, diag.CodeSyntax, "expected (import \"module\" \"name\")")
	}
	module, err := text(args[0])
	if err != nil {
		return err
	}
	name, err := text(args[1])
	if err != nil {
		return err
	}
	return p.addImport(h.imp, f.Head(), module, name, h)
}

func (p *Parser) addImport(at *sexpr.Node, kind, module, name string, h header) error {
	imp := ast.Import{Module: module, Name: name, Pos: at.Pos()}

	switch kind {
	case "func":
		typeIdx, _, rest, err := p.typeUse(h.rest)
		if err != nil {
			return err
		}
		if len(rest) > 0 {
			return errorAt(rest[0], diag.CodeSyntax, "unexpected %s in imported function", rest[0])
		}
		idx := p.nfuncs
		if err := p.bindName(p.funcs, h.id, "function", idx); err != nil {
			return err
		}
		p.nfuncs++
		if h.id != nil {
			p.mod.FuncNames[idx] = h.id.Value[1:]
		}
		imp.Kind = ast.KindFunc
		imp.TypeIdx = typeIdx
		p.mod.Imports = append(p.mod.Imports, imp)
		return p.inlineExports(h, ast.KindFunc, idx)

	case "memory":
		lim, err := limits(at, h.rest)
		if err != nil {
			return err
		}
		idx := p.nmems
		if err := p.bindName(p.mems, h.id, "memory", idx); err != nil {
			return err
		}
		p.nmems++
		imp.Kind = ast.KindMemory
		imp.Mem = &lim
		p.mod.Imports = append(p.mod.Imports, imp)
		return p.inlineExports(h, ast.KindMemory, idx)
	}
	return errorAt(at, diag.CodeSyntax, "unsupported import kind %q: only functions and memories can be imported", kind)
}

func limits(at *sexpr.Node, nodes []*sexpr.Node) (ast.Limits, error) {
	var lim ast.Limits
	if len(nodes) == 0 || len(nodes) > 2 {
		return lim, errorAt(at, diag.CodeSyntax, "expected memory limits: min [max]")
	}
	for i, n := range nodes {
		if n.Kind != sexpr.Atom {
			return lim, errorAt(n, diag.CodeSyntax, "expected number, got %s", n)
		}
		v, err := parseU32(n.Value)
		if err != nil {
			return lim, errorAt(n, diag.CodeSyntax, "invalid limit %q", n.Value)
		}
		if i == 0 {
			lim.Min = v
		} else {
			if v < lim.Min {
				return lim, errorAt(n, diag.CodeSyntax, "maximum %d is below minimum %d", v, lim.Min)
			}
			lim.Max = &v
		}
	}
	return lim, nil
}

func (p *Parser) parseMemory(f *sexpr.Node) error {
	h := splitHeader(f)
	idx := p.nmems

	var lim ast.Limits
	if len(h.rest) == 1 && h.rest[0].IsList("data") {
		var init []byte
		for _, s := range h.rest[0].Args() {
			if s.Kind != sexpr.String {
				return errorAt(s, diag.CodeSyntax, "expected string in inline data")
			}
			b, err := decodeString(s.Value)
			if err != nil {
				return errorAt(s, diag.CodeSyntax, "%v", err)
			}
			init = append(init, b...)
		}
		if idx != 0 {
			return errorAt(h.rest[0], diag.CodeSyntax, "inline data is only supported for memory 0")
		}
		pages := uint32((len(init) + pageSize - 1) / pageSize)
		lim = ast.Limits{Min: pages, Max: &pages}
		p.mod.Data = append(p.mod.Data, ast.Data{
			Offset: ast.Instr{Opcode: opcode.I32Const, Imm: int32(0)},
			Init:   init,
		})
	} else {
		var err error
		if lim, err = limits(f, h.rest); err != nil {
			return err
		}
	}

	if err := p.bindName(p.mems, h.id, "memory", idx); err != nil {
		return err
	}
	p.nmems++
	p.mod.Memories = append(p.mod.Memories, lim)
	return p.inlineExports(h, ast.KindMemory, idx)
}

func (p *Parser) parseGlobal(f *sexpr.Node) error {
	h := splitHeader(f)
	if len(h.rest) < 2 {
		return errorAt(f, diag.CodeSyntax, "expected global type and initializer")
	}

	var g ast.Global
	t := h.rest[0]
	if t.IsList("mut") {
		args := t.Args()
		if len(args) != 1 {
			return errorAt(t, diag.CodeSyntax, "expected (mut type)")
		}
		vt, err := valType(args[0])
		if err != nil {
			return err
		}
		g.Type, g.Mutable = vt, true
	} else {
		vt, err := valType(t)
		if err != nil {
			return err
		}
		g.Type = vt
	}

	init, err := p.constExpr(f, h.rest[1:])
	if err != nil {
		return err
	}
	g.Init = init

	idx := uint32(len(p.mod.Globals))
	if err := p.bindName(p.globals, h.id, "global", idx); err != nil {
		return err
	}
	p.mod.Globals = append(p.mod.Globals, g)
	return p.inlineExports(h, ast.KindGlobal, idx)
}

func (p *Parser) constExpr(at *sexpr.Node, nodes []*sexpr.Node) (ast.Instr, error) {
	code, err := p.instrs(&funcCtx{}, nodes, nil)
	if err != nil {
		return ast.Instr{}, err
	}
	if len(code) != 1 {
		return ast.Instr{}, errorAt(at, diag.CodeSyntax, "expected a single constant instruction")
	}
	switch code[0].Opcode {
	case opcode.I32Const, opcode.I64Const, opcode.F32Const, opcode.F64Const, opcode.GlobalGet:
		return code[0], nil
	}
	return ast.Instr{}, errorAt(at, diag.CodeSyntax, "constant expression required")
}

func (p *Parser) parseExport(f *sexpr.Node) error {
	args := f.Args()
	if len(args) != 2 || args[1].Kind != sexpr.List {
		return errorAt(f, diag.CodeSyntax, "expected (export \"name\" (kind index))")
	}
	name, err := text(args[0])
	if err != nil {
		return err
	}
	desc := args[1]
	refs := desc.Args()
	if len(refs) != 1 {
		return errorAt(desc, diag.CodeSyntax, "expected exactly one index")
	}

	var (
		kind byte
		idx  uint32
	)
	switch desc.Head() {
	case "func":
		kind = ast.KindFunc
		idx, err = index(refs[0], p.funcs, "function")
	case "memory":
		kind = ast.KindMemory
		idx, err = index(refs[0], p.mems, "memory")
	case "global":
		kind = ast.KindGlobal
		idx, err = index(refs[0], p.globals, "global")
	default:
		return errorAt(desc, diag.CodeSyntax, "unsupported export kind %q", desc.Head())
	}
	if err != nil {
		return err
	}
	return p.addExport(f, name, kind, idx)
}

func (p *Parser) parseStart(f *sexpr.Node) error {
	args := f.Args()
	if len(args) != 1 {
		return errorAt(f, diag.CodeSyntax, "expected (start function)")
	}
	if p.mod.Start != nil {
		return errorAt(f, diag.CodeDuplicateName, "multiple start functions")
	}
	idx, err := index(args[0], p.funcs, "function")
	if err != nil {
		return err
	}
	p.mod.Start = &idx
	return nil
}

func (p *Parser) parseData(f *sexpr.Node) error {
	args := f.Args()
	if len(args) > 0 && args[0].IsID() {
		args = args[1:]
	}
	if len(args) > 0 && args[0].IsList("memory") {
		refs := args[0].Args()
		if len(refs) != 1 {
			return errorAt(args[0], diag.CodeSyntax, "expected (memory index)")
		}
		idx, err := index(refs[0], p.mems, "memory")
		if err != nil {
			return err
		}
		if idx != 0 {
			return errorAt(args[0], diag.CodeSyntax, "data segments are only supported for memory 0")
		}
		args = args[1:]
	}
	if len(args) == 0 || args[0].Kind != sexpr.List {
		return errorAt(f, diag.CodeSyntax, "expected offset expression; passive data segments are not supported")
	}

	var (
		offset ast.Instr
		err    error
	)
	if args[0].IsList("offset") {
		offset, err = p.constExpr(args[0], args[0].Args())
	} else {
		offset, err = p.constExpr(args[0], args[:1])
	}
	if err != nil {
		return err
	}

	var init []byte
	for _, s := range args[1:] {
		if s.Kind != sexpr.String {
			return errorAt(s, diag.CodeSyntax, "expected string, got %s", s)
		}
		b, err := decodeString(s.Value)
		if err != nil {
			return errorAt(s, diag.CodeSyntax, "%v", err)
		}
		init = append(init, b...)
	}
	p.mod.Data = append(p.mod.Data, ast.Data{Offset: offset, Init: init})
	return nil
}
