// Package engine wraps the wazero runtime that backs one isolation unit.
//
// An Engine owns exactly one wazero.Runtime. Everything compiled or
// instantiated through it (compiled modules, instances, linear memories,
// host modules) is released when the Engine is closed:
//
//	eng, err := engine.NewWithConfig(ctx, &engine.Config{MemoryLimitPages: 256})
//	if err != nil {
//		return err
//	}
//	defer eng.Close(ctx)
//
//	compiled, err := eng.Compile(ctx, image)
//	mod, err := eng.Instantiate(ctx, compiled, "") // anonymous instance
//
// Named instances are visible to later instantiations as import providers;
// anonymous instances can be created any number of times from the same
// compiled module.
//
// # Guest Allocation
//
// Strings cross the boundary through guest memory. FindAllocator locates the
// module's allocator, preferring the canonical ABI's cabi_realloc over the
// legacy and simple alloc(size) exports.
//
// # Thread Safety
//
// Engine is safe for concurrent use. Instances returned by Instantiate are
// not; use them from one goroutine at a time.
package engine
