package isolation

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-scripthost/compiler"
	"github.com/wippyai/wasm-scripthost/engine"
	"github.com/wippyai/wasm-scripthost/errors"
	"github.com/wippyai/wasm-scripthost/host"
)

// State is the lifecycle stage of a Unit.
type State int32

const (
	Active State = iota
	Unloading
	Unloaded
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Unloading:
		return "unloading"
	case Unloaded:
		return "unloaded"
	}
	return "unknown"
}

type options struct {
	engine      *engine.Config
	hosts       *host.Registry
	logger      *zap.Logger
	searchPaths []string
}

type Option func(*options)

func WithEngineConfig(cfg *engine.Config) Option {
	return func(o *options) { o.engine = cfg }
}

// WithHosts adds host functions to the unit. The builtin host module is
// always present.
func WithHosts(r *host.Registry) Option {
	return func(o *options) { o.hosts = r }
}

// WithSearchPaths adds directories probed after the owner's directory.
func WithSearchPaths(dirs ...string) Option {
	return func(o *options) { o.searchPaths = append(o.searchPaths, dirs...) }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Unit is an isolated, reclaimable set of modules sharing one runtime.
type Unit struct {
	eng       *engine.Engine
	resolver  *Resolver
	hosts     *host.Registry
	log       *zap.Logger
	overrides map[string]bool
	modules   map[string]*Module
	loaded    map[string]*Module
	cleanup   runtime.Cleanup
	location  string
	names     []string
	overList  []string
	onUnload  []func()
	mu        sync.Mutex
	state     State
}

// New creates a unit whose resolver is rooted at the directory of
// ownLocation. overrides names the dependencies that always resolve from
// disk, never from the registry.
func New(ctx context.Context, ownLocation string, overrides []string, opts ...Option) (*Unit, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = Logger()
	}

	eng, err := engine.NewWithConfig(ctx, o.engine)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseIsolation, errors.KindInvalidInput, err, "create engine")
	}

	hosts := host.NewRegistry()
	hosts.Merge(o.hosts)
	hosts.Merge(host.NewBuiltins(o.logger))
	if err := hosts.Instantiate(ctx, eng.Runtime()); err != nil {
		_ = eng.Close(ctx)
		return nil, err
	}

	dirs := append([]string{filepath.Dir(ownLocation)}, o.searchPaths...)
	u := &Unit{
		eng:       eng,
		resolver:  NewResolver(dirs...),
		hosts:     hosts,
		log:       o.logger,
		overrides: make(map[string]bool, len(overrides)),
		modules:   make(map[string]*Module),
		loaded:    make(map[string]*Module),
		location:  ownLocation,
	}
	for _, name := range overrides {
		if name == "" || u.overrides[name] {
			continue
		}
		u.overrides[name] = true
		u.overList = append(u.overList, name)
	}

	u.cleanup = runtime.AddCleanup(u, func(e *engine.Engine) {
		if !e.Closed() {
			Logger().Warn("isolation unit collected without Unload")
			_ = e.Close(context.Background())
		}
	}, eng)

	u.log.Debug("isolation unit created",
		zap.String("location", ownLocation),
		zap.Strings("overrides", u.overList),
		zap.Strings("search", u.resolver.Dirs()))
	return u, nil
}

func (u *Unit) State() State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// Location returns the owner location the unit was created with.
func (u *Unit) Location() string {
	return u.location
}

// Overrides returns the override names in construction order.
func (u *Unit) Overrides() []string {
	return slices.Clone(u.overList)
}

func (u *Unit) IsOverride(name string) bool {
	return u.overrides[name]
}

// ResolvePath maps name to a file with the unit's resolver.
func (u *Unit) ResolvePath(name string) (string, bool) {
	return u.resolver.Resolve(name)
}

// HostExports returns the signatures of every host function bound into
// the unit, for compiler.Request.Hosts.
func (u *Unit) HostExports() map[string]map[string]compiler.Signature {
	return u.hosts.Signatures()
}

// Modules returns the registered module names in registration order.
func (u *Unit) Modules() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return slices.Clone(u.names)
}

func (u *Unit) checkActive() error {
	if u.state != Active {
		return errors.Disposed(errors.PhaseIsolation, "isolation unit")
	}
	return nil
}

func (u *Unit) active() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.checkActive()
}

// RegisterModule compiles image into the unit and registers it under its
// declared name. When the name is taken the existing module is returned and
// the new compilation is discarded.
func (u *Unit) RegisterModule(ctx context.Context, image []byte) (*Module, error) {
	m, err := u.LoadImage(ctx, image)
	if err != nil {
		return nil, err
	}
	registered, err := u.Register(m)
	if err != nil {
		return nil, err
	}
	if registered != m {
		_ = m.compiled.Close(ctx)
	}
	return registered, nil
}

// LoadImage compiles image into the unit without registering it. The
// module must declare a name.
func (u *Unit) LoadImage(ctx context.Context, image []byte) (*Module, error) {
	if err := u.active(); err != nil {
		return nil, err
	}
	compiled, err := u.eng.Compile(ctx, image)
	if err != nil {
		return nil, errors.Load("compile module", err)
	}
	name := compiled.Name()
	if name == "" {
		_ = compiled.Close(ctx)
		return nil, errors.InvalidInput(errors.PhaseIsolation, "module has no declared name")
	}
	return &Module{unit: u, compiled: compiled, name: name, origin: FromRegistry}, nil
}

// Register adds m to the registry unless its name is taken, and returns
// the registered module for that name.
func (u *Unit) Register(m *Module) (*Module, error) {
	if m.unit != u {
		return nil, errors.InvalidInput(errors.PhaseIsolation, "module belongs to another unit")
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.checkActive(); err != nil {
		return nil, err
	}
	if existing, ok := u.modules[m.name]; ok {
		u.log.Debug("module already registered", zap.String("module", m.name))
		return existing, nil
	}
	u.modules[m.name] = m
	u.names = append(u.names, m.name)
	u.log.Debug("module registered", zap.String("module", m.name))
	return m, nil
}

// Resolve finds the module for a dependency name. Names outside the
// override set are first matched against the registry; otherwise, or on a
// registry miss, the name is resolved to a file that is loaded into this
// unit.
func (u *Unit) Resolve(ctx context.Context, name string) (*Module, error) {
	u.mu.Lock()
	if err := u.checkActive(); err != nil {
		u.mu.Unlock()
		return nil, err
	}
	if !u.overrides[name] {
		if m, ok := u.modules[name]; ok {
			u.mu.Unlock()
			return m, nil
		}
	}
	u.mu.Unlock()

	path, ok := u.resolver.Resolve(name)
	if !ok {
		u.log.Debug("dependency not found", zap.String("name", name))
		return nil, errors.NotFound(errors.PhaseIsolation, "module", name)
	}
	return u.LoadFromPath(ctx, path)
}

// LoadByName returns the module registered or resolvable under name.
func (u *Unit) LoadByName(ctx context.Context, name string) (*Module, error) {
	m, err := u.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	u.log.Debug("module loaded", zap.String("module", name), zap.Stringer("origin", m.origin))
	return m, nil
}

// LoadFromPath loads a binary module file into the unit. Loading the same
// path again returns the module loaded first.
func (u *Unit) LoadFromPath(ctx context.Context, path string) (*Module, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Load("resolve path", err)
	}

	u.mu.Lock()
	if err := u.checkActive(); err != nil {
		u.mu.Unlock()
		return nil, err
	}
	if m, ok := u.loaded[abs]; ok {
		u.mu.Unlock()
		return m, nil
	}
	u.mu.Unlock()

	image, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound(errors.PhaseLoad, "file", abs)
		}
		return nil, errors.Load("read module", err)
	}
	compiled, err := u.eng.Compile(ctx, image)
	if err != nil {
		return nil, errors.Load("compile "+abs, err)
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.checkActive(); err != nil {
		_ = compiled.Close(ctx)
		return nil, err
	}
	if m, ok := u.loaded[abs]; ok {
		_ = compiled.Close(ctx)
		return m, nil
	}
	m := &Module{
		unit:     u,
		compiled: compiled,
		name:     compiler.ModuleName(compiled, abs),
		path:     abs,
		origin:   FromDisk,
	}
	u.loaded[abs] = m
	u.log.Debug("module loaded from disk", zap.String("module", m.name), zap.String("path", abs))
	return m, nil
}

// OnUnloading registers fn to run when Unload starts, before any module is
// released. Callbacks run in registration order. Registering on a unit that
// is no longer active runs nothing and returns a disposed error.
func (u *Unit) OnUnloading(fn func()) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.checkActive(); err != nil {
		return err
	}
	u.onUnload = append(u.onUnload, fn)
	return nil
}

// Unload releases every module and instance of the unit. Only the first
// call has an effect.
func (u *Unit) Unload(ctx context.Context) error {
	u.mu.Lock()
	if u.state != Active {
		u.mu.Unlock()
		return nil
	}
	u.state = Unloading
	callbacks := u.onUnload
	u.onUnload = nil
	u.mu.Unlock()

	u.log.Debug("unloading isolation unit", zap.Int("dependents", len(callbacks)))
	for _, fn := range callbacks {
		u.notify(fn)
	}

	u.mu.Lock()
	clear(u.modules)
	clear(u.loaded)
	u.names = nil
	u.mu.Unlock()

	u.cleanup.Stop()
	err := u.eng.Close(ctx)

	u.mu.Lock()
	u.state = Unloaded
	u.mu.Unlock()

	u.log.Debug("isolation unit unloaded")
	if err != nil {
		return errors.Wrap(errors.PhaseIsolation, errors.KindInvalidData, err, "close runtime")
	}
	return nil
}

func (u *Unit) notify(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			u.log.Warn("unload callback panicked", zap.Any("panic", r))
		}
	}()
	fn()
}
