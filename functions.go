package scripthost

import (
	"context"
)

// FunctionsHeader opens a module with an exported memory and a bump
// allocator, so function scripts can take and return strings.
const FunctionsHeader = `(module $%s
	(memory (export "memory") 1)
	(global $__heap (mut i32) (i32.const 1024))
	(func (export "cabi_realloc") (param $old i32) (param $old_size i32) (param $align i32) (param $size i32) (result i32)
		(local $p i32)
		(if (i32.eqz (local.get $align))
			(then (local.set $align (i32.const 1))))
		(local.set $p
			(i32.and
				(i32.add (global.get $__heap) (i32.sub (local.get $align) (i32.const 1)))
				(i32.sub (i32.const 0) (local.get $align))))
		(global.set $__heap (i32.add (local.get $p) (local.get $size)))
		(if (i32.gt_u (global.get $__heap) (i32.mul (memory.size) (i32.const 65536)))
			(then
				(if (i32.eq
						(memory.grow
							(i32.sub
								(i32.div_u (i32.add (global.get $__heap) (i32.const 65535)) (i32.const 65536))
								(memory.size)))
						(i32.const -1))
					(then unreachable))))
		(local.get $p))
`

// NewFunctions creates a manager whose scripts are plain functions. The
// header provides memory 0 and cabi_realloc; scripts add exports only.
// Header is ignored when cfg sets one.
func NewFunctions(ctx context.Context, cfg *Config) (*Manager, error) {
	if cfg == nil {
		cfg = Defaults()
	}
	c := *cfg
	if c.Name == "" {
		c.Name = "ScriptAssembly"
	}
	if c.Header == "" {
		c.Header = FunctionsHeader
	}
	return NewWithConfig(ctx, &c)
}
