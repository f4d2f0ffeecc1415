package isolation

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-scripthost/diag"
	"github.com/wippyai/wasm-scripthost/errors"
	"github.com/wippyai/wasm-scripthost/wat"
)

const libWAT = `(module $lib
	(func (export "add") (param i32 i32) (result i32)
		(i32.add (local.get 0) (local.get 1))))`

const counterWAT = `(module $counter
	(global $n (export "n") (mut i32) (i32.const 0))
	(func (export "inc") (result i32)
		(global.set $n (i32.add (global.get $n) (i32.const 1)))
		(global.get $n)))`

func compile(t *testing.T, src string) []byte {
	t.Helper()
	image, diags := wat.Compile(src)
	if diag.HasErrors(diags) {
		t.Fatalf("compile: %v", diags)
	}
	return image
}

func writeModule(t *testing.T, dir, file, src string) string {
	t.Helper()
	path := filepath.Join(dir, file)
	if err := os.WriteFile(path, compile(t, src), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newUnit(t *testing.T, dir string, overrides ...string) *Unit {
	t.Helper()
	u, err := New(context.Background(), filepath.Join(dir, "app"), overrides)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = u.Unload(context.Background()) })
	return u
}

func call(t *testing.T, m api.Module, name string, args ...uint64) []uint64 {
	t.Helper()
	fn := m.ExportedFunction(name)
	if fn == nil {
		t.Fatalf("export %q missing", name)
	}
	res, err := fn.Call(context.Background(), args...)
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return res
}

func TestResolver(t *testing.T) {
	dir := t.TempDir()
	other := t.TempDir()
	writeModule(t, dir, "exact", libWAT)
	writeModule(t, other, "lib.wasm", libWAT)
	if err := os.Mkdir(filepath.Join(dir, "folder.wasm"), 0o755); err != nil {
		t.Fatal(err)
	}

	r := NewResolver(dir, "", other, dir)
	if len(r.Dirs()) != 2 {
		t.Errorf("Dirs = %v", r.Dirs())
	}

	tests := []struct {
		name string
		want string
		ok   bool
	}{
		{"exact", filepath.Join(dir, "exact"), true},
		{"lib", filepath.Join(other, "lib.wasm"), true},
		{"lib.wasm", filepath.Join(other, "lib.wasm"), true},
		{"folder", "", false},
		{"missing", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.Resolve(tt.name)
			if ok != tt.ok || got != tt.want {
				t.Errorf("Resolve(%q) = %q, %v; want %q, %v", tt.name, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestUnit_RegisterFirstWins(t *testing.T) {
	ctx := context.Background()
	u := newUnit(t, t.TempDir())

	first, err := u.RegisterModule(ctx, compile(t, libWAT))
	if err != nil {
		t.Fatal(err)
	}
	second, err := u.RegisterModule(ctx, compile(t, `(module $lib (func (export "other")))`))
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("second registration replaced the first")
	}
	if got := second.Exports(); len(got) != 1 || got[0] != "add" {
		t.Errorf("Exports = %v", got)
	}
	if names := u.Modules(); len(names) != 1 || names[0] != "lib" {
		t.Errorf("Modules = %v", names)
	}
}

func TestUnit_RegisterUnnamed(t *testing.T) {
	u := newUnit(t, t.TempDir())
	if _, err := u.RegisterModule(context.Background(), compile(t, "(module)")); err == nil {
		t.Error("module without a declared name registered")
	}
}

func TestUnit_ResolveRegistryFirst(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeModule(t, dir, "lib.wasm", libWAT)
	u := newUnit(t, dir)

	registered, err := u.RegisterModule(ctx, compile(t, libWAT))
	if err != nil {
		t.Fatal(err)
	}
	got, err := u.Resolve(ctx, "lib")
	if err != nil {
		t.Fatal(err)
	}
	if got != registered || got.Origin() != FromRegistry {
		t.Errorf("Resolve returned %s module from %q", got.Origin(), got.Path())
	}
}

func TestUnit_OverrideSkipsRegistry(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	u := newUnit(t, dir, "lib")

	if _, err := u.RegisterModule(ctx, compile(t, libWAT)); err != nil {
		t.Fatal(err)
	}
	if _, err := u.Resolve(ctx, "lib"); !errors.IsNotFound(err) {
		t.Fatalf("override resolved without a file: %v", err)
	}

	path := writeModule(t, dir, "lib.wasm", libWAT)
	got, err := u.Resolve(ctx, "lib")
	if err != nil {
		t.Fatal(err)
	}
	if got.Origin() != FromDisk || got.Path() != path {
		t.Errorf("Resolve = %s %q, want disk %q", got.Origin(), got.Path(), path)
	}
	if !u.IsOverride("lib") || u.IsOverride("other") {
		t.Error("IsOverride mismatch")
	}
}

func TestUnit_ResolveNotFound(t *testing.T) {
	u := newUnit(t, t.TempDir())
	_, err := u.LoadByName(context.Background(), "nothing")
	if !errors.IsNotFound(err) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestUnit_LoadFromPathTwice(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := writeModule(t, dir, "lib.wasm", libWAT)
	u := newUnit(t, dir)

	a, err := u.LoadFromPath(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	b, err := u.LoadByName(ctx, "lib")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("same path loaded twice")
	}
	if a.Name() != "lib" {
		t.Errorf("Name = %q", a.Name())
	}
}

func TestUnit_Unload(t *testing.T) {
	ctx := context.Background()
	u := newUnit(t, t.TempDir())
	mod, err := u.RegisterModule(ctx, compile(t, counterWAT))
	if err != nil {
		t.Fatal(err)
	}
	obj, err := mod.Instantiate(ctx)
	if err != nil {
		t.Fatal(err)
	}

	var order []string
	if err := u.OnUnloading(func() {
		order = append(order, "first:"+u.State().String())
		// dependents may still use their objects here
		call(t, obj, "inc")
	}); err != nil {
		t.Fatal(err)
	}
	if err := u.OnUnloading(func() { order = append(order, "second") }); err != nil {
		t.Fatal(err)
	}

	if err := u.Unload(ctx); err != nil {
		t.Fatalf("Unload failed: %v", err)
	}
	if err := u.Unload(ctx); err != nil {
		t.Fatalf("second Unload failed: %v", err)
	}

	if len(order) != 2 || order[0] != "first:unloading" || order[1] != "second" {
		t.Errorf("callbacks = %v", order)
	}
	if u.State() != Unloaded {
		t.Errorf("State = %s", u.State())
	}
	if len(u.Modules()) != 0 {
		t.Error("registry not cleared")
	}

	checks := map[string]func() error{
		"RegisterModule": func() error { _, err := u.RegisterModule(ctx, compile(t, libWAT)); return err },
		"Resolve":        func() error { _, err := u.Resolve(ctx, "lib"); return err },
		"LoadFromPath":   func() error { _, err := u.LoadFromPath(ctx, "x.wasm"); return err },
		"Instantiate":    func() error { _, err := mod.Instantiate(ctx); return err },
		"Static":         func() error { _, err := mod.Static(ctx); return err },
		"OnUnloading":    func() error { return u.OnUnloading(func() {}) },
	}
	for name, fn := range checks {
		if err := fn(); !errors.IsDisposed(err) {
			t.Errorf("%s after Unload: err = %v, want disposed", name, err)
		}
	}
}

func TestUnit_UnloadCallbackPanic(t *testing.T) {
	u := newUnit(t, t.TempDir())
	ran := false
	_ = u.OnUnloading(func() { panic("boom") })
	_ = u.OnUnloading(func() { ran = true })
	if err := u.Unload(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Error("callback after a panicking one did not run")
	}
}

func TestModule_InstantiateResolvesImports(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeModule(t, dir, "lib.wasm", libWAT)
	u := newUnit(t, dir)

	mod, err := u.RegisterModule(ctx, compile(t, `(module $script
		(import "lib" "add" (func $add (param i32 i32) (result i32)))
		(import "host" "log" (func $log (param i32 i32)))
		(func (export "run") (result i32)
			(call $add (i32.const 2) (i32.const 3))))`))
	if err != nil {
		t.Fatal(err)
	}
	if got := mod.Imports(); len(got) != 2 || got[0] != "lib" || got[1] != "host" {
		t.Errorf("Imports = %v", got)
	}

	for i := 0; i < 2; i++ {
		obj, err := mod.Instantiate(ctx)
		if err != nil {
			t.Fatalf("Instantiate #%d: %v", i, err)
		}
		if res := call(t, obj, "run"); api.DecodeI32(res[0]) != 5 {
			t.Errorf("run = %d", api.DecodeI32(res[0]))
		}
	}
}

func TestModule_InstantiateMissingImport(t *testing.T) {
	ctx := context.Background()
	u := newUnit(t, t.TempDir())
	mod, err := u.RegisterModule(ctx, compile(t, `(module $script
		(import "absent" "f" (func)))`))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := mod.Instantiate(ctx); !errors.IsNotFound(err) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestModule_ObjectsAreIndependent(t *testing.T) {
	ctx := context.Background()
	u := newUnit(t, t.TempDir())
	mod, err := u.RegisterModule(ctx, compile(t, counterWAT))
	if err != nil {
		t.Fatal(err)
	}

	a, err := mod.Instantiate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	b, err := mod.Instantiate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	call(t, a, "inc")
	call(t, a, "inc")
	if res := call(t, b, "inc"); res[0] != 1 {
		t.Errorf("b.inc = %d, want 1", res[0])
	}

	s1, err := mod.Static(ctx)
	if err != nil {
		t.Fatal(err)
	}
	s2, err := mod.Static(ctx)
	if err != nil {
		t.Fatal(err)
	}
	call(t, s1, "inc")
	if res := call(t, s2, "inc"); res[0] != 2 {
		t.Errorf("static instance not shared: inc = %d", res[0])
	}
	if !s1.Static() || a.Static() {
		t.Error("Static flag mismatch")
	}
	if err := s1.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if res := call(t, s2, "inc"); res[0] != 3 {
		t.Error("closing a static object released it")
	}
	if a.Source() != mod {
		t.Error("Source mismatch")
	}
}

func TestUnit_LoadImageKeepsRegistryEntry(t *testing.T) {
	ctx := context.Background()
	u := newUnit(t, t.TempDir())

	first, err := u.RegisterModule(ctx, compile(t, counterWAT))
	if err != nil {
		t.Fatal(err)
	}
	newer, err := u.LoadImage(ctx, compile(t, `(module $counter (func (export "fresh")))`))
	if err != nil {
		t.Fatal(err)
	}
	got, err := u.Register(newer)
	if err != nil {
		t.Fatal(err)
	}
	if got != first {
		t.Error("Register replaced the first module")
	}
	if exports := newer.Exports(); len(exports) != 1 || exports[0] != "fresh" {
		t.Errorf("newer Exports = %v", exports)
	}
	obj, err := newer.Instantiate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if obj.ExportedFunction("fresh") == nil {
		t.Error("unregistered module not usable")
	}
}
