package engine

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
)

const (
	CabiRealloc = "cabi_realloc"

	// Legacy names from pre-standardization component model implementations
	legacyRealloc = "canonical_abi_realloc"
	legacyAlloc   = "allocate"
	simpleAlloc   = "alloc"
)

var allocatorNames = []string{CabiRealloc, legacyRealloc, legacyAlloc, simpleAlloc}

// Exports is the part of an instance FindAllocator needs.
type Exports interface {
	ExportedFunction(name string) api.Function
	ExportedFunctionDefinitions() map[string]api.FunctionDefinition
}

// Allocator reserves guest memory through an exported allocation function.
// Realloc-style allocators take (old, oldSize, align, size); simple ones
// take (size).
type Allocator struct {
	fn     api.Function
	name   string
	stack  [4]uint64
	simple bool
}

// FindAllocator returns the module's allocator, or nil when it exports none
// with a usable signature.
func FindAllocator(m Exports) *Allocator {
	defs := m.ExportedFunctionDefinitions()
	for _, name := range allocatorNames {
		def := defs[name]
		if def == nil {
			continue
		}
		params, results := def.ParamTypes(), def.ResultTypes()
		if len(results) != 1 || results[0] != api.ValueTypeI32 {
			continue
		}
		if !allocatorParams(params) {
			continue
		}
		fn := m.ExportedFunction(name)
		if fn == nil {
			continue
		}
		return &Allocator{fn: fn, name: name, simple: len(params) < 4}
	}
	return nil
}

// allocatorParams accepts alloc(size) and cabi_realloc(ptr, old, align, size),
// all i32.
func allocatorParams(params []api.ValueType) bool {
	if len(params) != 1 && len(params) != 4 {
		return false
	}
	for _, p := range params {
		if p != api.ValueTypeI32 {
			return false
		}
	}
	return true
}

func (a *Allocator) Name() string {
	return a.name
}

func (a *Allocator) Alloc(ctx context.Context, size, align uint32) (uint32, error) {
	var stack []uint64
	if a.simple {
		a.stack[0] = uint64(size)
		stack = a.stack[:1]
	} else {
		a.stack[0] = 0
		a.stack[1] = 0
		a.stack[2] = uint64(align)
		a.stack[3] = uint64(size)
		stack = a.stack[:4]
	}
	if err := a.fn.CallWithStack(ctx, stack); err != nil {
		return 0, fmt.Errorf("%s(%d): %w", a.name, size, err)
	}
	ptr := uint32(stack[0])
	if ptr == 0 && size > 0 {
		return 0, fmt.Errorf("%s(%d) returned null", a.name, size)
	}
	return ptr, nil
}

// IsAllocator reports whether name is one of the export names FindAllocator
// looks for.
func IsAllocator(name string) bool {
	for _, n := range allocatorNames {
		if n == name {
			return true
		}
	}
	return false
}
