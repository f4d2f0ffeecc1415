// Package isolation provides reclaimable units of loaded WebAssembly code.
//
// A Unit owns one wazero runtime. Every module compiled into it, every
// instance created from those modules and every linear memory lives in that
// runtime, so unloading the unit releases all of them at once.
//
// # Resolution
//
// Modules reach each other through wasm imports. When a module is
// instantiated, each imported module name is resolved in two tiers:
//
//  1. Names not in the unit's override set are looked up in the registry
//     of modules registered with RegisterModule. A match is reused.
//  2. Otherwise the name is resolved to a file by the unit's Resolver
//     (sibling files of the owner's location plus extra search paths) and
//     that file is loaded into this unit.
//
// Host modules (see package host) are bound into the runtime when the unit
// is created and satisfy their imports directly.
//
// # Lifecycle
//
//	unit, err := isolation.New(ctx, os.Args[0], []string{"shared"})
//	if err != nil {
//		return err
//	}
//	defer unit.Unload(ctx)
//
//	mod, err := unit.RegisterModule(ctx, image)
//	obj, err := mod.Instantiate(ctx)
//
// Unload moves the unit from Active through Unloading to Unloaded, exactly
// once. Callbacks registered with OnUnloading run before the runtime is
// closed. Every operation on an unloaded unit fails with an error for which
// errors.IsDisposed reports true. A cleanup attached with runtime.AddCleanup
// closes the runtime of a unit that is collected without Unload; it is a
// safety net and releases memory only when the collector gets to it.
package isolation
