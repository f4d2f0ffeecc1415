package engine

import (
	"context"
	"testing"

	"github.com/wippyai/wasm-scripthost/diag"
	"github.com/wippyai/wasm-scripthost/wat"
)

func compileWAT(t *testing.T, src string) []byte {
	t.Helper()
	image, diags := wat.Compile(src)
	if diag.HasErrors(diags) {
		t.Fatalf("compile: %v", diags)
	}
	return image
}

func TestNewWithConfig(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		cfg  *Config
		name string
	}{
		{nil, "nil config"},
		{&Config{}, "default config"},
		{&Config{MemoryLimitPages: 256}, "16MB limit"},
		{&Config{Interpreter: true}, "interpreter"},
		{&Config{CloseOnContextDone: true}, "close on context done"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			eng, err := NewWithConfig(ctx, tc.cfg)
			if err != nil {
				t.Fatalf("NewWithConfig failed: %v", err)
			}
			defer eng.Close(ctx)

			if eng.Runtime() == nil {
				t.Error("engine runtime should not be nil")
			}
		})
	}
}

func TestNewWithConfig_InvalidLimit(t *testing.T) {
	if _, err := NewWithConfig(context.Background(), &Config{MemoryLimitPages: 65537}); err == nil {
		t.Fatal("expected error for limit above 4GB")
	}
}

func TestEngine_Close(t *testing.T) {
	ctx := context.Background()

	eng, err := New(ctx)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := eng.Close(ctx); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := eng.Close(ctx); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if !eng.Closed() {
		t.Error("Closed = false")
	}
	if _, err := eng.Compile(ctx, compileWAT(t, "(module)")); err == nil {
		t.Error("Compile after Close should fail")
	}
}

func TestEngine_NamedAndAnonymous(t *testing.T) {
	ctx := context.Background()
	eng, err := New(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer eng.Close(ctx)

	compiled, err := eng.Compile(ctx, compileWAT(t, `(module $lib
		(global (export "g") (mut i32) (i32.const 0)))`))
	if err != nil {
		t.Fatal(err)
	}

	named, err := eng.Instantiate(ctx, compiled, "lib")
	if err != nil {
		t.Fatal(err)
	}
	if eng.Module("lib") != named {
		t.Error("named instance not registered")
	}
	if _, err := eng.Instantiate(ctx, compiled, "lib"); err == nil {
		t.Error("duplicate named instance accepted")
	}

	a, err := eng.Instantiate(ctx, compiled, "")
	if err != nil {
		t.Fatal(err)
	}
	b, err := eng.Instantiate(ctx, compiled, "")
	if err != nil {
		t.Fatal(err)
	}
	a.ExportedGlobal("g").(interface{ Set(uint64) }).Set(7)
	if b.ExportedGlobal("g").Get() != 0 {
		t.Error("anonymous instances share state")
	}
}

func TestEngine_MemoryLimit(t *testing.T) {
	ctx := context.Background()
	eng, err := NewWithConfig(ctx, &Config{MemoryLimitPages: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer eng.Close(ctx)

	if _, err := eng.Compile(ctx, compileWAT(t, "(module (memory 2))")); err == nil {
		t.Error("memory above limit accepted")
	}
}

func TestFindAllocator(t *testing.T) {
	ctx := context.Background()
	eng, err := New(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer eng.Close(ctx)

	tests := []struct {
		name string
		src  string
		want string
	}{
		{"realloc", `(module (memory 1)
			(global $top (mut i32) (i32.const 64))
			(func (export "cabi_realloc") (param i32 i32 i32 i32) (result i32)
				(global.get $top)
				(global.set $top (i32.add (global.get $top) (local.get 3)))))`, CabiRealloc},
		{"simple", `(module (memory 1)
			(func (export "alloc") (param i32) (result i32) (i32.const 128)))`, simpleAlloc},
		{"wrong_signature", `(module (func (export "alloc") (param i64)))`, ""},
		{"i64_size", `(module (memory 1)
			(func (export "alloc") (param i64) (result i32) (i32.const 128)))`, ""},
		{"none", `(module)`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compiled, err := eng.Compile(ctx, compileWAT(t, tt.src))
			if err != nil {
				t.Fatal(err)
			}
			mod, err := eng.Instantiate(ctx, compiled, "")
			if err != nil {
				t.Fatal(err)
			}
			a := FindAllocator(mod)
			if tt.want == "" {
				if a != nil {
					t.Fatalf("found allocator %s", a.Name())
				}
				return
			}
			if a == nil || a.Name() != tt.want {
				t.Fatalf("allocator = %v", a)
			}
			p1, err := a.Alloc(ctx, 8, 1)
			if err != nil || p1 == 0 {
				t.Fatalf("Alloc = %d, %v", p1, err)
			}
		})
	}
}
