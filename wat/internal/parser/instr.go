package parser

import (
	"strings"

	"github.com/wippyai/wasm-scripthost/diag"
	"github.com/wippyai/wasm-scripthost/wat/internal/ast"
	"github.com/wippyai/wasm-scripthost/wat/internal/opcode"
	"github.com/wippyai/wasm-scripthost/wat/internal/sexpr"
)

type label struct {
	at   *sexpr.Node
	name string
	flat bool
}

type localDecl struct {
	at   *sexpr.Node
	name string
}

// funcCtx is the per-function state used while parsing instructions:
// local names, declared locals and their use, and the label stack.
type funcCtx struct {
	locals  map[string]uint32
	decls   []localDecl
	used    []bool
	labels  []label
	nparams uint32
}

func (fc *funcCtx) count() uint32 {
	return fc.nparams + uint32(len(fc.decls))
}

func (fc *funcCtx) bind(id *sexpr.Node, idx uint32) error {
	if _, dup := fc.locals[id.Value]; dup {
		return errorAt(id, diag.CodeDuplicateName, "duplicate local %s", id.Value)
	}
	fc.locals[id.Value] = idx
	return nil
}

func (fc *funcCtx) local(n *sexpr.Node) (uint32, error) {
	var idx uint32
	if n.IsID() {
		v, ok := fc.locals[n.Value]
		if !ok {
			return 0, errorAt(n, diag.CodeUnknownName, "unknown local %s", n.Value)
		}
		idx = v
	} else {
		v, err := parseU32(n.Value)
		if err != nil {
			return 0, errorAt(n, diag.CodeSyntax, "invalid local index %q", n.Value)
		}
		if v >= fc.count() {
			return 0, errorAt(n, diag.CodeUnknownName, "local index %d out of range", v)
		}
		idx = v
	}
	if idx >= fc.nparams {
		fc.used[idx-fc.nparams] = true
	}
	return idx, nil
}

func (fc *funcCtx) push(at *sexpr.Node, name string, flat bool) {
	fc.labels = append(fc.labels, label{at: at, name: name, flat: flat})
}

func (fc *funcCtx) pop() {
	fc.labels = fc.labels[:len(fc.labels)-1]
}

func (fc *funcCtx) depth(n *sexpr.Node) (uint32, error) {
	if n.IsID() {
		for i := len(fc.labels) - 1; i >= 0; i-- {
			if fc.labels[i].name == n.Value {
				return uint32(len(fc.labels) - 1 - i), nil
			}
		}
		return 0, errorAt(n, diag.CodeUnknownName, "unknown label %s", n.Value)
	}
	v, err := parseU32(n.Value)
	if err != nil {
		return 0, errorAt(n, diag.CodeSyntax, "invalid label %q", n.Value)
	}
	return v, nil
}

type cursor struct {
	nodes []*sexpr.Node
	i     int
}

func (c *cursor) done() bool {
	return c.i >= len(c.nodes)
}

func (c *cursor) peek() *sexpr.Node {
	if c.done() {
		return nil
	}
	return c.nodes[c.i]
}

func (c *cursor) next() *sexpr.Node {
	n := c.peek()
	if n != nil {
		c.i++
	}
	return n
}

func (c *cursor) rest() []*sexpr.Node {
	return c.nodes[c.i:]
}

// atom consumes the next node, which must be an atom; op names the
// instruction needing it.
func (c *cursor) atom(op *sexpr.Node, what string) (*sexpr.Node, error) {
	n := c.peek()
	if n == nil || n.Kind != sexpr.Atom {
		return nil, errorAt(op, diag.CodeSyntax, "%s expects %s", op.Value, what)
	}
	c.i++
	return n, nil
}

// optLabel consumes an optional $label.
func (c *cursor) optLabel() string {
	if n := c.peek(); n != nil && n.IsID() {
		c.i++
		return n.Value
	}
	return ""
}

func isIndex(n *sexpr.Node) bool {
	if n == nil || n.Kind != sexpr.Atom {
		return false
	}
	if n.IsID() {
		return true
	}
	return n.Value[0] >= '0' && n.Value[0] <= '9'
}

// instrs parses a sequence mixing folded and flat instructions.
func (p *Parser) instrs(fc *funcCtx, nodes []*sexpr.Node, out []ast.Instr) ([]ast.Instr, error) {
	c := &cursor{nodes: nodes}
	for !c.done() {
		n := c.next()
		var err error
		switch n.Kind {
		case sexpr.List:
			out, err = p.folded(fc, n, out)
		case sexpr.Atom:
			out, err = p.flat(fc, n, c, out)
		default:
			err = errorAt(n, diag.CodeSyntax, "unexpected string %s in instruction sequence", n)
		}
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

func (p *Parser) flat(fc *funcCtx, n *sexpr.Node, c *cursor, out []ast.Instr) ([]ast.Instr, error) {
	switch n.Value {
	case "block", "loop", "if":
		info, _ := opcode.Lookup(n.Value)
		name := c.optLabel()
		bt, err := p.blockType(c)
		if err != nil {
			return out, err
		}
		fc.push(n, name, true)
		return append(out, ast.Instr{Opcode: info.Code, Imm: bt}), nil

	case "else", "end":
		if len(fc.labels) == 0 || !fc.labels[len(fc.labels)-1].flat {
			return out, errorAt(n, diag.CodeSyntax, "unexpected %s", n.Value)
		}
		top := fc.labels[len(fc.labels)-1]
		if id := c.optLabel(); id != "" && id != top.name {
			return out, errorAt(n, diag.CodeSyntax, "mismatched label %s, expected %q", id, top.name)
		}
		if n.Value == "else" {
			if top.at.Value != "if" {
				return out, errorAt(n, diag.CodeSyntax, "else without matching if")
			}
			return append(out, ast.Instr{Opcode: opcode.Else}), nil
		}
		fc.pop()
		return append(out, ast.Instr{Opcode: opcode.End}), nil
	}

	info, ok := opcode.Lookup(n.Value)
	if !ok {
		return out, errorAt(n, diag.CodeUnknownInstr, "unknown instruction %q", n.Value)
	}
	ins, err := p.immediates(fc, n, info, c)
	if err != nil {
		return out, err
	}
	return append(out, ins), nil
}

func (p *Parser) folded(fc *funcCtx, n *sexpr.Node, out []ast.Instr) ([]ast.Instr, error) {
	op := n.Head()
	if op == "" {
		return out, errorAt(n, diag.CodeSyntax, "expected instruction")
	}
	head := n.List[0]
	c := &cursor{nodes: n.Args()}
	var err error

	switch op {
	case "block", "loop":
		info, _ := opcode.Lookup(op)
		name := c.optLabel()
		bt, err := p.blockType(c)
		if err != nil {
			return out, err
		}
		out = append(out, ast.Instr{Opcode: info.Code, Imm: bt})
		fc.push(head, name, false)
		if out, err = p.instrs(fc, c.rest(), out); err != nil {
			return out, err
		}
		fc.pop()
		return append(out, ast.Instr{Opcode: opcode.End}), nil

	case "if":
		name := c.optLabel()
		bt, err := p.blockType(c)
		if err != nil {
			return out, err
		}
		var cond []*sexpr.Node
		for !c.done() && !c.peek().IsList("then") {
			cond = append(cond, c.next())
		}
		if out, err = p.instrs(fc, cond, out); err != nil {
			return out, err
		}
		then := c.next()
		if then == nil {
			return out, errorAt(n, diag.CodeSyntax, "if without (then ...)")
		}
		out = append(out, ast.Instr{Opcode: opcode.If, Imm: bt})
		fc.push(head, name, false)
		if out, err = p.instrs(fc, then.Args(), out); err != nil {
			return out, err
		}
		if els := c.peek(); els != nil && els.IsList("else") {
			c.next()
			out = append(out, ast.Instr{Opcode: opcode.Else})
			if out, err = p.instrs(fc, els.Args(), out); err != nil {
				return out, err
			}
		}
		if extra := c.peek(); extra != nil {
			return out, errorAt(extra, diag.CodeSyntax, "unexpected %s after if branches", extra)
		}
		fc.pop()
		return append(out, ast.Instr{Opcode: opcode.End}), nil

	case "then", "else", "end":
		return out, errorAt(n, diag.CodeSyntax, "unexpected %s", op)
	}

	info, ok := opcode.Lookup(op)
	if !ok {
		return out, errorAt(head, diag.CodeUnknownInstr, "unknown instruction %q", op)
	}
	ins, err := p.immediates(fc, head, info, c)
	if err != nil {
		return out, err
	}
	if out, err = p.instrs(fc, c.rest(), out); err != nil {
		return out, err
	}
	return append(out, ins), nil
}

// blockType parses the optional (type x) (param ...) (result ...) of a
// block, loop or if.
func (p *Parser) blockType(c *cursor) (ast.BlockType, error) {
	var ref *sexpr.Node
	if n := c.peek(); n != nil && n.IsList("type") {
		ref = c.next()
	}
	var nodes []*sexpr.Node
	for n := c.peek(); n != nil && (n.IsList("param") || n.IsList("result")); n = c.peek() {
		nodes = append(nodes, c.next())
	}
	ft, _, _, err := p.funcSig(nodes, false)
	if err != nil {
		return ast.BlockType{}, err
	}

	if ref != nil {
		idx, _, _, err := p.typeUse(append([]*sexpr.Node{ref}, nodes...))
		if err != nil {
			return ast.BlockType{}, err
		}
		return ast.BlockType{TypeIdx: int32(idx)}, nil
	}
	switch {
	case len(ft.Params) == 0 && len(ft.Results) == 0:
		return ast.BlockType{TypeIdx: -1, Simple: ast.BlockEmpty}, nil
	case len(ft.Params) == 0 && len(ft.Results) == 1:
		return ast.BlockType{TypeIdx: -1, Simple: byte(ft.Results[0])}, nil
	}
	return ast.BlockType{TypeIdx: int32(p.findOrAddType(ft))}, nil
}

func (p *Parser) immediates(fc *funcCtx, op *sexpr.Node, info opcode.Info, c *cursor) (ast.Instr, error) {
	ins := ast.Instr{Opcode: info.Code}

	switch info.Imm {
	case opcode.ImmNone:
		if info.Prefix {
			ins.Imm = []uint32{info.Sub}
		}

	case opcode.ImmLabel:
		a, err := c.atom(op, "a label")
		if err != nil {
			return ins, err
		}
		d, err := fc.depth(a)
		if err != nil {
			return ins, err
		}
		ins.Imm = d

	case opcode.ImmLabels:
		var targets []uint32
		for isIndex(c.peek()) {
			d, err := fc.depth(c.next())
			if err != nil {
				return ins, err
			}
			targets = append(targets, d)
		}
		if len(targets) == 0 {
			return ins, errorAt(op, diag.CodeSyntax, "br_table expects at least one label")
		}
		ins.Imm = targets

	case opcode.ImmFunc:
		a, err := c.atom(op, "a function index")
		if err != nil {
			return ins, err
		}
		idx, err := index(a, p.funcs, "function")
		if err != nil {
			return ins, err
		}
		ins.Imm = idx

	case opcode.ImmLocal:
		a, err := c.atom(op, "a local index")
		if err != nil {
			return ins, err
		}
		if fc.locals == nil {
			return ins, errorAt(op, diag.CodeSyntax, "%s is not allowed in a constant expression", op.Value)
		}
		idx, err := fc.local(a)
		if err != nil {
			return ins, err
		}
		ins.Imm = idx

	case opcode.ImmGlobal:
		a, err := c.atom(op, "a global index")
		if err != nil {
			return ins, err
		}
		idx, err := index(a, p.globals, "global")
		if err != nil {
			return ins, err
		}
		ins.Imm = idx

	case opcode.ImmI32, opcode.ImmI64, opcode.ImmF32, opcode.ImmF64:
		a, err := c.atom(op, "a number")
		if err != nil {
			return ins, err
		}
		v, err := constant(info.Imm, a.Value)
		if err != nil {
			return ins, errorAt(a, diag.CodeSyntax, "%s: %v", op.Value, err)
		}
		ins.Imm = v

	case opcode.ImmMemarg:
		ma := ast.Memarg{Align: info.Align}
		for n := c.peek(); n != nil && n.Kind == sexpr.Atom; n = c.peek() {
			key, val, ok := strings.Cut(n.Value, "=")
			if !ok || (key != "offset" && key != "align") {
				break
			}
			c.next()
			v, err := parseU32(val)
			if err != nil {
				return ins, errorAt(n, diag.CodeSyntax, "invalid %s %q", key, val)
			}
			if key == "offset" {
				ma.Offset = v
				continue
			}
			if v == 0 || v&(v-1) != 0 {
				return ins, errorAt(n, diag.CodeSyntax, "alignment %d is not a power of two", v)
			}
			ma.Align = log2(v)
		}
		ins.Imm = ma

	case opcode.ImmMemory:
		idx, err := p.optMemory(c)
		if err != nil {
			return ins, err
		}
		if info.Prefix {
			ins.Imm = []uint32{info.Sub, idx}
		} else {
			ins.Imm = idx
		}

	case opcode.ImmMemory2:
		dst, err := p.optMemory(c)
		if err != nil {
			return ins, err
		}
		src, err := p.optMemory(c)
		if err != nil {
			return ins, err
		}
		ins.Imm = []uint32{info.Sub, dst, src}

	case opcode.ImmSelect:
		if n := c.peek(); n != nil && n.IsList("result") {
			c.next()
			var types []ast.ValType
			for _, a := range n.Args() {
				vt, err := valType(a)
				if err != nil {
					return ins, err
				}
				types = append(types, vt)
			}
			ins.Opcode = opcode.SelectTyped
			ins.Imm = types
		}

	case opcode.ImmBlock:
		return ins, errorAt(op, diag.CodeSyntax, "misplaced %s", op.Value)
	}
	return ins, nil
}

func (p *Parser) optMemory(c *cursor) (uint32, error) {
	if !isIndex(c.peek()) {
		return 0, nil
	}
	return index(c.next(), p.mems, "memory")
}

func log2(v uint32) uint32 {
	var n uint32
	for v > 1 {
		v >>= 1
		n++
	}
	return n
}
