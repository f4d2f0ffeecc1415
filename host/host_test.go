package host

import (
	"context"
	"strings"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-scripthost/diag"
	"github.com/wippyai/wasm-scripthost/wat"
)

type mathHost struct{}

func (mathHost) Namespace() string        { return "math" }
func (mathHost) AddInts(a, b int32) int32 { return a + b }
func (mathHost) GetHTTPPort() int64       { return 80 }

func TestToKebabCase(t *testing.T) {
	tests := map[string]string{
		"Add":         "add",
		"AddInts":     "add-ints",
		"GetHTTPPort": "get-http-port",
		"GetHTTPURL":  "get-httpurl",
		"ParseJSON":   "parse-json",
		"lower":       "lower",
	}
	for in, want := range tests {
		if got := toKebabCase(in); got != want {
			t.Errorf("toKebabCase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRegistry_RegisterHost(t *testing.T) {
	r := NewRegistry()
	if err := r.RegisterHost(mathHost{}); err != nil {
		t.Fatal(err)
	}

	sigs := r.Signatures()["math"]
	add, ok := sigs["add-ints"]
	if !ok {
		t.Fatalf("add-ints not registered: %v", sigs)
	}
	if !add.Equal([]api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}) {
		t.Errorf("add-ints signature = %s", add)
	}
	if _, ok := sigs["get-http-port"]; !ok {
		t.Error("get-http-port not registered")
	}
	if _, ok := sigs["namespace"]; ok {
		t.Error("Namespace registered as a function")
	}
}

func TestRegistry_RegisterFuncErrors(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name string
		ns   string
		fn   string
		h    any
	}{
		{"empty namespace", "", "f", func() {}},
		{"empty name", "env", "", func() {}},
		{"not a function", "env", "f", 42},
		{"unsupported param", "env", "f", func(map[string]int) {}},
		{"unsupported result", "env", "f", func() string { return "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := r.RegisterFunc(tt.ns, tt.fn, tt.h); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRegistry_StringParamSignature(t *testing.T) {
	r := NewRegistry()
	if err := r.RegisterFunc("env", "greet", func(ctx context.Context, s string, n uint32) bool { return true }); err != nil {
		t.Fatal(err)
	}
	sig := r.Signatures()["env"]["greet"]
	want := "(i32, i32, i32) -> (i32)"
	if sig.String() != want {
		t.Errorf("signature = %s, want %s", sig, want)
	}
}

func TestRegistry_Instantiate(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	var got string
	r := NewRegistry()
	if err := r.RegisterHost(mathHost{}); err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterFunc("env", "say", func(s string) { got = s }); err != nil {
		t.Fatal(err)
	}
	if err := r.Instantiate(ctx, rt); err != nil {
		t.Fatal(err)
	}
	// second bind is a no-op
	if err := r.Instantiate(ctx, rt); err != nil {
		t.Fatal(err)
	}

	image, diags := wat.Compile(`(module
		(import "math" "add-ints" (func $add (param i32 i32) (result i32)))
		(import "env" "say" (func $say (param i32 i32)))
		(memory 1)
		(data (i32.const 16) "hi there")
		(func (export "run") (result i32)
			(call $say (i32.const 16) (i32.const 8))
			(call $add (i32.const 40) (i32.const 2))))`)
	if diag.HasErrors(diags) {
		t.Fatal(diags)
	}
	mod, err := rt.Instantiate(ctx, image)
	if err != nil {
		t.Fatal(err)
	}
	res, err := mod.ExportedFunction("run").Call(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if api.DecodeI32(res[0]) != 42 {
		t.Errorf("run = %d, want 42", api.DecodeI32(res[0]))
	}
	if got != "hi there" {
		t.Errorf("say received %q", got)
	}
}

func TestBuiltins_Abort(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	if err := NewBuiltins(nil).Instantiate(ctx, rt); err != nil {
		t.Fatal(err)
	}
	image, diags := wat.Compile(`(module
		(import "host" "abort" (func $abort (param i32)))
		(func (export "fail") (call $abort (i32.const 7))))`)
	if diag.HasErrors(diags) {
		t.Fatal(diags)
	}
	mod, err := rt.Instantiate(ctx, image)
	if err != nil {
		t.Fatal(err)
	}
	_, err = mod.ExportedFunction("fail").Call(ctx)
	if err == nil || !strings.Contains(err.Error(), "code 7") {
		t.Errorf("err = %v", err)
	}
}

func TestRegistry_Merge(t *testing.T) {
	a := NewBuiltins(nil)
	b := NewRegistry()
	if err := b.RegisterFunc(BuiltinNamespace, "log", func(int32) {}); err != nil {
		t.Fatal(err)
	}
	b.Merge(a)
	sig := b.Signatures()[BuiltinNamespace]
	if sig["log"].String() != "(i32) -> ()" {
		t.Errorf("existing entry replaced: %s", sig["log"])
	}
	if _, ok := sig["abort"]; !ok {
		t.Error("abort not merged")
	}
	if got := b.Namespaces(); len(got) != 1 || got[0] != BuiltinNamespace {
		t.Errorf("Namespaces = %v", got)
	}
}
