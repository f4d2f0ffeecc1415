// Package scripthost compiles WebAssembly text supplied at run time, loads
// the result into an isolation unit that can be unloaded as a whole, and
// calls into the objects it produces by member name.
//
// # Architecture Overview
//
//	scripthost/          Manager, Config and presets
//	├── build/           Build pipeline: fragments, directives, Result
//	├── isolation/       Isolation units, dependency resolution, objects
//	├── proxy/           Call/Get/Set by member name, string ABI
//	├── compiler/        Compiler service interface and the WAT compiler
//	├── wat/             WAT text to wasm binary with positioned diagnostics
//	├── diag/            Diagnostics
//	├── engine/          wazero runtime wrapper and guest allocation
//	├── host/            Go functions bound into every unit
//	├── errors/          Structured error types
//	└── cmd/scripthost   Command line front end
//
// # Quick Start
//
//	ctx := context.Background()
//	cfg := scripthost.Defaults()
//	cfg.Name = "TestAssembly"
//	m, err := scripthost.NewFunctions(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer m.Close(ctx)
//
//	if err := m.AddScriptFromFile("greeter.wat"); err != nil {
//		log.Fatal(err)
//	}
//	ok, err := m.Build(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if !ok {
//		for _, d := range m.Diagnostics() {
//			fmt.Println(d)
//		}
//		return
//	}
//
//	mod, err := m.LoadModule(ctx, "TestAssembly")
//	obj, err := mod.Instantiate(ctx)
//	p := proxy.New(obj)
//	p.Set(ctx, "Value1", "Hello")
//	fmt.Println(proxy.Get[string](ctx, p, "Value1"))
//
// # Scripts
//
// A script is a list of WAT module fields. The manager wraps all fragments
// in a (module $<name> ...) form, so the built module is registered under the
// manager's name. Reference directives pull prebuilt modules in:
//
//	;; #Local:mathlib.wasm
//	(import "mathlib" "square" (func $square (param i32) (result i32)))
//	(func (export "Area") (param i32) (result i32)
//		(call $square (local.get 0)))
//
// NewFunctions starts from a header that already declares a memory and an
// allocator, so scripts can exchange strings with the host without any
// boilerplate.
//
// # Lifetime
//
// Close disposes the build pipeline, then unloads the isolation unit, which
// releases every module, instance and memory created for the manager. Close
// is idempotent. A manager that is collected without Close is unloaded by a
// cleanup, but that is a safety net: call Close.
package scripthost
