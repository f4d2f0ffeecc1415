package engine

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"go.uber.org/zap"
)

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	// 256 = 16MB, 1024 = 64MB, 4096 = 256MB
	MemoryLimitPages uint32 `toml:"memory_limit_pages"`

	// EnableThreads enables the WebAssembly threads proposal (experimental).
	EnableThreads bool `toml:"enable_threads"`

	// Interpreter selects the interpreter instead of the optimizing compiler.
	// Compilation is faster, execution slower.
	Interpreter bool `toml:"interpreter"`

	// CloseOnContextDone aborts running guest code when the call's context
	// is cancelled or times out.
	CloseOnContextDone bool `toml:"close_on_context_done"`
}

// Engine owns one wazero runtime.
type Engine struct {
	runtime wazero.Runtime
	closed  atomic.Bool
}

// New creates an engine with default configuration.
func New(ctx context.Context) (*Engine, error) {
	return NewWithConfig(ctx, nil)
}

// NewWithConfig creates an engine with custom configuration.
func NewWithConfig(ctx context.Context, cfg *Config) (*Engine, error) {
	var runtimeCfg wazero.RuntimeConfig
	if cfg != nil && cfg.Interpreter {
		runtimeCfg = wazero.NewRuntimeConfigInterpreter()
	} else {
		runtimeCfg = wazero.NewRuntimeConfig()
	}

	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			if cfg.MemoryLimitPages > 65536 {
				return nil, fmt.Errorf("memory limit %d pages exceeds 65536", cfg.MemoryLimitPages)
			}
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.EnableThreads {
			runtimeCfg = runtimeCfg.WithCoreFeatures(api.CoreFeaturesV2 | experimental.CoreFeaturesThreads)
		}
		if cfg.CloseOnContextDone {
			runtimeCfg = runtimeCfg.WithCloseOnContextDone(true)
		}
	}

	return &Engine{runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg)}, nil
}

// Runtime exposes the underlying runtime, e.g. for host module builders.
func (e *Engine) Runtime() wazero.Runtime {
	return e.runtime
}

func (e *Engine) Compile(ctx context.Context, image []byte) (wazero.CompiledModule, error) {
	if e.closed.Load() {
		return nil, fmt.Errorf("engine closed")
	}
	compiled, err := e.runtime.CompileModule(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("compile failed: %w", err)
	}
	return compiled, nil
}

// Instantiate creates an instance of compiled. An empty name creates an
// anonymous instance that is never used to satisfy imports; otherwise the
// instance is registered under name.
func (e *Engine) Instantiate(ctx context.Context, compiled wazero.CompiledModule, name string) (api.Module, error) {
	if e.closed.Load() {
		return nil, fmt.Errorf("engine closed")
	}
	cfg := wazero.NewModuleConfig().WithName(name)
	mod, err := e.runtime.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		return nil, err
	}
	debugf("instantiated module %q (anonymous=%v)", name, name == "")
	return mod, nil
}

// Module returns the named instance, or nil.
func (e *Engine) Module(name string) api.Module {
	if e.closed.Load() {
		return nil
	}
	return e.runtime.Module(name)
}

// Closed reports whether Close has been called.
func (e *Engine) Closed() bool {
	return e.closed.Load()
}

// Close releases the runtime and everything created through it.
// Calling Close more than once is a no-op.
func (e *Engine) Close(ctx context.Context) error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := e.runtime.Close(ctx); err != nil {
		Logger().Warn("close runtime", zap.Error(err))
		return err
	}
	return nil
}
