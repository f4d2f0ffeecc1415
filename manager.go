package scripthost

import (
	"context"
	stderrors "errors"
	"os"
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-scripthost/build"
	"github.com/wippyai/wasm-scripthost/diag"
	"github.com/wippyai/wasm-scripthost/errors"
	"github.com/wippyai/wasm-scripthost/isolation"
	"github.com/wippyai/wasm-scripthost/proxy"
)

// Manager drives one script from source to a loaded module. It owns a build
// pipeline and the isolation unit the pipeline is parented on.
type Manager struct {
	unit     *isolation.Unit
	pipeline *build.Pipeline
	module   *isolation.Module
	log      *zap.Logger
	diags    []diag.Diagnostic
	cleanup  runtime.Cleanup
	closed   atomic.Bool
}

// New creates a manager with Defaults, building scripts into a module
// called name.
func New(ctx context.Context, name string, overrides ...string) (*Manager, error) {
	cfg := Defaults()
	cfg.Name = name
	cfg.Overrides = overrides
	return NewWithConfig(ctx, cfg)
}

func NewWithConfig(ctx context.Context, cfg *Config) (*Manager, error) {
	if cfg == nil {
		cfg = Defaults()
	}
	log := cfg.Logger
	if log == nil {
		log = Logger()
	}

	unit, err := isolation.New(ctx, cfg.Location, cfg.Overrides,
		isolation.WithEngineConfig(&cfg.Engine),
		isolation.WithHosts(cfg.Hosts),
		isolation.WithSearchPaths(cfg.SearchPaths...),
		isolation.WithLogger(log))
	if err != nil {
		return nil, err
	}

	pipeline, err := build.New(cfg.Name, unit, build.Config{
		Compiler:  cfg.Compiler,
		Logger:    log,
		Header:    cfg.Header,
		Footer:    cfg.Footer,
		SystemDir: cfg.SystemDir,
		LocalDir:  cfg.LocalDir,
	})
	if err != nil {
		_ = unit.Unload(ctx)
		return nil, err
	}

	m := &Manager{unit: unit, pipeline: pipeline, log: log}
	m.cleanup = runtime.AddCleanup(m, func(u *isolation.Unit) {
		Logger().Warn("script manager collected without Close")
		_ = u.Unload(context.Background())
	}, unit)
	return m, nil
}

func (m *Manager) Unit() *isolation.Unit         { return m.unit }
func (m *Manager) Pipeline() *build.Pipeline      { return m.pipeline }
func (m *Manager) Name() string                   { return m.pipeline.Name() }
func (m *Manager) Diagnostics() []diag.Diagnostic { return m.diags }

func (m *Manager) AddScript(src string) error {
	return m.pipeline.AppendSource(src)
}

// AddScriptFromFile appends the contents of path, applying its reference
// directives.
func (m *Manager) AddScriptFromFile(path string) error {
	if m.closed.Load() {
		return errors.Disposed(errors.PhaseBuild, "script manager")
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(errors.PhaseBuild, errors.KindInvalidInput, err, "read script "+path)
	}
	return m.pipeline.AppendSource(string(src))
}

func (m *Manager) AddReference(name string) error {
	return m.pipeline.AddReference(name)
}

func (m *Manager) AddLocalReference(name string) error {
	return m.pipeline.AddLocalReference(name)
}

// Build compiles the accumulated script. On success the module is loaded
// into the unit and registered under the manager's name; the unit keeps
// the first registration, while Module always returns the latest build.
// On failure Diagnostics holds the errors and nothing is registered.
func (m *Manager) Build(ctx context.Context) (bool, error) {
	res, err := m.pipeline.Build(ctx)
	if err != nil {
		return false, err
	}
	if !res.Success {
		m.diags = res.Diagnostics
		m.log.Info("script build failed", zap.String("name", m.Name()), zap.Int("errors", len(res.Diagnostics)))
		return false, nil
	}
	m.diags = nil

	mod, err := m.unit.LoadImage(ctx, m.pipeline.Image())
	if err != nil {
		return false, err
	}
	if _, err := m.unit.Register(mod); err != nil {
		return false, err
	}
	m.module = mod
	m.log.Info("script built", zap.String("name", m.Name()), zap.Strings("exports", mod.Exports()))
	return true, nil
}

// Module returns the module of the last successful Build, or nil.
func (m *Manager) Module() *isolation.Module {
	if m.closed.Load() {
		return nil
	}
	return m.module
}

// LoadModule resolves name inside the manager's unit.
func (m *Manager) LoadModule(ctx context.Context, name string) (*isolation.Module, error) {
	if m.closed.Load() {
		return nil, errors.Disposed(errors.PhaseIsolation, "script manager")
	}
	return m.unit.LoadByName(ctx, name)
}

// Static returns a proxy over the named instance of the last built module,
// for scripts that keep state in globals rather than in objects.
func (m *Manager) Static(ctx context.Context, opts ...proxy.Option) (*proxy.Proxy, error) {
	mod := m.Module()
	if mod == nil {
		if m.closed.Load() {
			return nil, errors.Disposed(errors.PhaseIsolation, "script manager")
		}
		return nil, errors.NotInitialized(errors.PhaseBuild, "script module")
	}
	obj, err := mod.Static(ctx)
	if err != nil {
		return nil, err
	}
	opts = append([]proxy.Option{proxy.WithLogger(m.log)}, opts...)
	return proxy.New(obj, opts...), nil
}

// Close disposes the pipeline, then unloads the unit. Only the first call
// has an effect.
func (m *Manager) Close(ctx context.Context) error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	m.cleanup.Stop()
	m.module = nil
	m.diags = nil
	return stderrors.Join(m.pipeline.Close(ctx), m.unit.Unload(ctx))
}
