package parser

import (
	"github.com/wippyai/wasm-scripthost/diag"
	"github.com/wippyai/wasm-scripthost/wat/internal/ast"
	"github.com/wippyai/wasm-scripthost/wat/internal/sexpr"
)

// funcDecl is a defined function whose signature and locals are known and
// whose body is parsed once every module-level name is bound.
type funcDecl struct {
	ctx  *funcCtx
	body []*sexpr.Node
	fi   int
}

func (p *Parser) declareFunc(f *sexpr.Node) error {
	h := splitHeader(f)
	typeIdx, ids, rest, err := p.typeUse(h.rest)
	if err != nil {
		return err
	}

	fc := &funcCtx{locals: make(map[string]uint32), nparams: uint32(len(ids))}
	for i, id := range ids {
		if id == nil {
			continue
		}
		if err := fc.bind(id, uint32(i)); err != nil {
			return err
		}
	}

	var locals []ast.ValType
	for len(rest) > 0 && rest[0].IsList("local") {
		decl := rest[0]
		args := decl.Args()
		if len(args) > 0 && args[0].IsID() {
			if len(args) != 2 {
				return errorAt(decl, diag.CodeSyntax, "named local takes exactly one type")
			}
			vt, err := valType(args[1])
			if err != nil {
				return err
			}
			if err := fc.bind(args[0], fc.count()); err != nil {
				return err
			}
			fc.decls = append(fc.decls, localDecl{name: args[0].Value, at: args[0]})
			locals = append(locals, vt)
		} else {
			for _, a := range args {
				vt, err := valType(a)
				if err != nil {
					return err
				}
				fc.decls = append(fc.decls, localDecl{at: a})
				locals = append(locals, vt)
			}
		}
		rest = rest[1:]
	}
	fc.used = make([]bool, len(fc.decls))

	idx := p.nfuncs
	if err := p.bindName(p.funcs, h.id, "function", idx); err != nil {
		return err
	}
	p.nfuncs++
	if h.id != nil {
		p.mod.FuncNames[idx] = h.id.Value[1:]
	}

	p.decls[f] = &funcDecl{ctx: fc, body: rest, fi: len(p.mod.Funcs)}
	p.mod.Funcs = append(p.mod.Funcs, ast.Func{TypeIdx: typeIdx, Locals: locals})
	return p.inlineExports(h, ast.KindFunc, idx)
}

func (p *Parser) parseFuncBody(d *funcDecl) error {
	fc := d.ctx
	code, err := p.instrs(fc, d.body, nil)
	if err != nil {
		return err
	}
	if n := len(fc.labels); n > 0 {
		open := fc.labels[n-1]
		return errorAt(open.at, diag.CodeSyntax, "%s is missing its end", open.at)
	}
	p.mod.Funcs[d.fi].Code = code

	for i, l := range fc.decls {
		if fc.used[i] {
			continue
		}
		if l.name != "" {
			p.bag.Warnf(l.at.Pos(), diag.CodeUnusedLocal, "local %s is never used", l.name)
		} else {
			p.bag.Warnf(l.at.Pos(), diag.CodeUnusedLocal, "local %d is never used", fc.nparams+uint32(i))
		}
	}
	return nil
}
