// Package host binds Go functions into isolation units as wasm host modules.
//
// A Registry collects functions by namespace (the wasm import module name).
// Every namespace becomes one host module when the registry is instantiated
// into a wazero runtime, and its signatures are handed to the compiler so
// scripts that import host functions are type checked before they run.
//
//	reg := host.NewRegistry()
//	reg.RegisterFunc("env", "now", func() int64 { return time.Now().Unix() })
//
// Handlers may take a leading context.Context. Parameters and results are
// int32, uint32, int64, uint64, float32, float64 or bool. A string parameter
// consumes two i32 values (pointer and length) and is read from the calling
// module's memory.
//
// Struct hosts register all exported methods, named in kebab-case:
//
//	type Clock struct{}
//	func (Clock) Namespace() string { return "clock" }
//	func (Clock) UnixMilli() int64  { ... } // imported as "unix-milli"
//
// NewBuiltins returns a registry with the "host" namespace every unit gets by
// default (log, abort).
package host
