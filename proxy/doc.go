// Package proxy calls into wasm instances by member name.
//
// A Proxy wraps an opaque instance handle and offers three operations:
//
//	p.Call(ctx, "DoStuff", "Bob")      // exported function DoStuff
//	p.Set(ctx, "Value1", "Hello")      // global Value1, else set_Value1
//	v := p.Get(ctx, "Value1")          // global Value1, else get_Value1
//
// Members map onto exports as follows:
//
//	method    exported function <Name>
//	field     exported global <Name>
//	property  exported functions get_<Name> and set_<Name>
//
// A field shadows a property of the same name for both reads and writes.
//
// Failures never leave the proxy: a missing member, an argument that does
// not fit, a trap in guest code or a panic in a host function is logged at
// warn level and the operation returns the zero value. TryCall, TryGet and
// TrySet return the error instead.
//
// # Strings
//
// A string argument is copied into guest memory through the module's
// cabi_realloc (or alloc) export and passed as a (pointer, length) pair of
// i32 values. A string result is either two i32 results (pointer, length) or
// a single i32 pointing at such a pair. Core wasm carries no types, so a
// result is decoded as a string when the member's WIT signature says so
// (WithWIT) or when the caller asks for one through Call[string] or
// Get[string]:
//
//	p := proxy.New(obj, proxy.WithWIT(`
//		greet: func(name: string) -> string;
//		get_Value1: func() -> string;
//	`))
//	msg := proxy.Call[string](ctx, p, "greet", "Bob")
//
// Every operation resolves the export by name again; nothing is cached
// except the export list captured by New.
package proxy
