package parser

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/wippyai/wasm-scripthost/diag"
	"github.com/wippyai/wasm-scripthost/wat/internal/ast"
	"github.com/wippyai/wasm-scripthost/wat/internal/opcode"
	"github.com/wippyai/wasm-scripthost/wat/internal/sexpr"
	"github.com/wippyai/wasm-scripthost/wat/internal/token"
)

func parse(t *testing.T, src string) (*ast.Module, *diag.Bag) {
	t.Helper()
	bag := diag.NewBag(0)
	nodes := sexpr.Read(token.Tokenize(src, bag), bag)
	mod := New(nodes, bag).Parse()
	bag.Sort()
	return mod, bag
}

func mustParse(t *testing.T, src string) *ast.Module {
	t.Helper()
	mod, bag := parse(t, src)
	if bag.HasErrors() {
		t.Fatalf("unexpected errors: %v", bag.Items())
	}
	return mod
}

func TestParseModuleName(t *testing.T) {
	mod := mustParse(t, "(module $TestAssembly)")
	if mod.Name != "TestAssembly" {
		t.Errorf("Name = %q", mod.Name)
	}
}

func TestParseFunc(t *testing.T) {
	mod := mustParse(t, `(module
		(func $add (export "add") (param $a i32) (param $b i32) (result i32)
			(i32.add (local.get $a) (local.get $b))))`)

	if len(mod.Funcs) != 1 || len(mod.Types) != 1 {
		t.Fatalf("funcs=%d types=%d", len(mod.Funcs), len(mod.Types))
	}
	want := ast.FuncType{Params: []ast.ValType{ast.I32, ast.I32}, Results: []ast.ValType{ast.I32}}
	if !mod.Types[0].Equal(want) {
		t.Errorf("type = %s", mod.Types[0])
	}
	code := mod.Funcs[0].Code
	if len(code) != 3 || code[0].Imm != uint32(0) || code[1].Imm != uint32(1) || code[2].Opcode != 0x6A {
		t.Errorf("code = %+v", code)
	}
	if len(mod.Exports) != 1 || mod.Exports[0].Name != "add" || mod.Exports[0].Kind != ast.KindFunc {
		t.Errorf("exports = %+v", mod.Exports)
	}
	if mod.FuncNames[0] != "add" {
		t.Errorf("FuncNames = %v", mod.FuncNames)
	}
}

func TestParseImportsTakeLowIndices(t *testing.T) {
	mod := mustParse(t, `(module
		(func $local (call $ext))
		(import "env" "ext" (func $ext))
		(func $inline (import "env" "inl") (param i32)))`)

	if len(mod.Imports) != 2 {
		t.Fatalf("imports = %+v", mod.Imports)
	}
	if mod.Imports[0].Name != "ext" || mod.Imports[1].Name != "inl" {
		t.Errorf("import order = %+v", mod.Imports)
	}
	call := mod.Funcs[0].Code[0]
	if call.Imm != uint32(0) {
		t.Errorf("call target = %v, want 0", call.Imm)
	}
	if mod.FuncNames[2] != "local" {
		t.Errorf("defined function index: %v", mod.FuncNames)
	}
	if mod.Imports[0].Pos.Line != 3 {
		t.Errorf("import position = %v", mod.Imports[0].Pos)
	}
}

func TestParseFlatControl(t *testing.T) {
	mod := mustParse(t, `(module
		(func (param i32) (result i32)
			block $out (result i32)
				local.get 0
				br_if $out
				i32.const 7
			end
			if (result i32)
				i32.const 1
			else
				i32.const 2
			end))`)

	var ops []byte
	for _, ins := range mod.Funcs[0].Code {
		ops = append(ops, ins.Opcode)
	}
	want := []byte{opcode.Block, 0x20, 0x0D, opcode.I32Const, opcode.End, opcode.If, opcode.I32Const, opcode.Else, opcode.I32Const, opcode.End}
	if !bytes.Equal(ops, want) {
		t.Errorf("ops = % x, want % x", ops, want)
	}
	if mod.Funcs[0].Code[2].Imm != uint32(0) {
		t.Errorf("br_if depth = %v", mod.Funcs[0].Code[2].Imm)
	}
}

func TestParseFoldedIf(t *testing.T) {
	mod := mustParse(t, `(module
		(func (param i32) (result i32)
			(if (result i32) (local.get 0)
				(then (i32.const 1))
				(else (i32.const 0)))))`)

	code := mod.Funcs[0].Code
	if code[0].Opcode != 0x20 || code[1].Opcode != opcode.If {
		t.Fatalf("condition must precede if: %+v", code)
	}
	bt := code[1].Imm.(ast.BlockType)
	if bt.TypeIdx != -1 || bt.Simple != byte(ast.I32) {
		t.Errorf("block type = %+v", bt)
	}
}

func TestParseMultiValueBlock(t *testing.T) {
	mod := mustParse(t, `(module
		(func (result i32 i32)
			(block (result i32 i32) (i32.const 1) (i32.const 2))))`)
	bt := mod.Funcs[0].Code[0].Imm.(ast.BlockType)
	if bt.TypeIdx < 0 {
		t.Fatalf("multi-value block should use a type index: %+v", bt)
	}
	if len(mod.Types[bt.TypeIdx].Results) != 2 {
		t.Errorf("block type = %s", mod.Types[bt.TypeIdx])
	}
}

func TestParseMemoryAndData(t *testing.T) {
	mod := mustParse(t, `(module
		(memory $mem (export "memory") 1 4)
		(global $heap (mut i32) (i32.const 1024))
		(data (i32.const 16) "hi\n" "\u{48}")
		(func (result i32)
			(i32.load offset=16 align=2 (i32.const 0))))`)

	if len(mod.Memories) != 1 || mod.Memories[0].Min != 1 || *mod.Memories[0].Max != 4 {
		t.Errorf("memories = %+v", mod.Memories)
	}
	if !mod.Globals[0].Mutable || mod.Globals[0].Init.Imm != int32(1024) {
		t.Errorf("global = %+v", mod.Globals[0])
	}
	if string(mod.Data[0].Init) != "hi\nH" || mod.Data[0].Offset.Imm != int32(16) {
		t.Errorf("data = %+v", mod.Data[0])
	}
	ma := mod.Funcs[0].Code[1].Imm.(ast.Memarg)
	if ma.Offset != 16 || ma.Align != 1 {
		t.Errorf("memarg = %+v", ma)
	}
}

func TestParseInlineMemoryData(t *testing.T) {
	mod := mustParse(t, `(module (memory (data "abc")))`)
	if mod.Memories[0].Min != 1 || *mod.Memories[0].Max != 1 {
		t.Errorf("limits = %+v", mod.Memories[0])
	}
	if string(mod.Data[0].Init) != "abc" {
		t.Errorf("data = %q", mod.Data[0].Init)
	}
}

func TestParseConstants(t *testing.T) {
	mod := mustParse(t, `(module (func
		i32.const -1 drop
		i32.const 0xFFFF_FFFF drop
		i64.const -9223372036854775808 drop
		f32.const 1.5 drop
		f64.const -0x1p-2 drop
		f64.const inf drop
		f32.const nan:0x200000 drop))`)

	code := mod.Funcs[0].Code
	if code[0].Imm != int32(-1) || code[2].Imm != int32(-1) {
		t.Errorf("i32 constants = %v %v", code[0].Imm, code[2].Imm)
	}
	if code[4].Imm != int64(math.MinInt64) {
		t.Errorf("i64 = %v", code[4].Imm)
	}
	if code[6].Imm != float32(1.5) || code[8].Imm != float64(-0.25) {
		t.Errorf("floats = %v %v", code[6].Imm, code[8].Imm)
	}
	if !math.IsInf(code[10].Imm.(float64), 1) {
		t.Errorf("inf = %v", code[10].Imm)
	}
	if bits := math.Float32bits(code[12].Imm.(float32)); bits != 0x7FA00000 {
		t.Errorf("nan bits = %#x", bits)
	}
}

func TestParseErrorsPerField(t *testing.T) {
	_, bag := parse(t, `(module $m
  (func $a (bogus))
  (func $b (result i32) (i32.add (local.get $missing)))
  (func $c (call $nowhere))
  (func $ok (result i32) (i32.const 1)))`)

	errs := diag.Errors(bag.Items())
	if len(errs) != 3 {
		t.Fatalf("errors = %v", errs)
	}
	tests := []struct {
		line int
		code diag.Code
		msg  string
	}{
		{2, diag.CodeUnknownInstr, "bogus"},
		{3, diag.CodeUnknownName, "$missing"},
		{4, diag.CodeUnknownName, "$nowhere"},
	}
	for i, tt := range tests {
		if errs[i].Pos.Line != tt.line || errs[i].Code != tt.code || !strings.Contains(errs[i].Message, tt.msg) {
			t.Errorf("error %d = %v", i, errs[i])
		}
		if errs[i].Pos.Col == 0 {
			t.Errorf("error %d has no column", i)
		}
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name, src, want string
	}{
		{"missing_module", "(func)", "top level"},
		{"empty", "", "expected (module"},
		{"unknown_type", "(module (func (param bogus)))", "unknown value type"},
		{"unknown_label", "(module (func (block (br $x))))", "unknown label"},
		{"missing_end", "(module (func block nop))", "missing its end"},
		{"stray_end", "(module (func end))", "unexpected end"},
		{"global_import", `(module (import "m" "g" (global i32)))`, "only functions and memories"},
		{"table", "(module (table 1 funcref))", "unsupported module field"},
		{"dup_export", `(module (func (export "f")) (func (export "f")))`, "duplicate export"},
		{"dup_func", `(module (func $f) (func $f))`, "duplicate function"},
		{"bad_align", "(module (memory 1) (func (drop (i32.load align=3 (i32.const 0)))))", "power of two"},
		{"outside", "(module)\n(func)", "outside of module"},
		{"type_mismatch", "(module (type $t (func (param i32))) (func (type $t) (param i64)))", "does not match"},
		{"passive_data", `(module (memory 1) (data "x"))`, "passive data"},
		{"i32_range", "(module (func (drop (i32.const 4294967296))))", "invalid i32"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, bag := parse(t, tt.src)
			if !bag.HasErrors() {
				t.Fatal("expected error")
			}
			found := false
			for _, d := range bag.Items() {
				if strings.Contains(d.Message, tt.want) {
					found = true
				}
			}
			if !found {
				t.Errorf("no diagnostic containing %q in %v", tt.want, bag.Items())
			}
		})
	}
}

func TestUnusedLocals(t *testing.T) {
	_, bag := parse(t, `(module
		(func (param $p i32) (local $used i32) (local $idle i64) (local f32)
			(local.set $used (local.get $p))))`)

	if bag.HasErrors() {
		t.Fatalf("errors: %v", bag.Items())
	}
	var msgs []string
	for _, d := range bag.Items() {
		if d.Severity != diag.SevWarning || d.Code != diag.CodeUnusedLocal {
			t.Errorf("unexpected diagnostic %v", d)
		}
		msgs = append(msgs, d.Message)
	}
	if len(msgs) != 2 || !strings.Contains(msgs[0], "$idle") || !strings.Contains(msgs[1], "local 3") {
		t.Errorf("warnings = %v", msgs)
	}
}

func TestDecodeString(t *testing.T) {
	tests := []struct {
		in   string
		want string
		err  bool
	}{
		{`plain`, "plain", false},
		{`a\tb\\c\"`, "a\tb\\c\"", false},
		{`\00\ff`, "\x00\xff", false},
		{`\u{1F600}`, "\U0001F600", false},
		{`\q`, "", true},
		{`\u{110000}`, "", true},
	}
	for _, tt := range tests {
		got, err := decodeString(tt.in)
		if (err != nil) != tt.err {
			t.Errorf("decodeString(%q) err = %v", tt.in, err)
			continue
		}
		if !tt.err && string(got) != tt.want {
			t.Errorf("decodeString(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
