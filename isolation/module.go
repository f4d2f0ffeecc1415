package isolation

import (
	"context"
	"fmt"
	"sort"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-scripthost/errors"
)

// Origin records how a module entered its unit.
type Origin int

const (
	// FromRegistry modules were registered from an in-memory image.
	FromRegistry Origin = iota
	// FromDisk modules were resolved to a file and loaded.
	FromDisk
)

func (o Origin) String() string {
	if o == FromDisk {
		return "disk"
	}
	return "registry"
}

// Module is a compiled module loaded into a Unit.
type Module struct {
	unit     *Unit
	compiled wazero.CompiledModule
	static   api.Module
	name     string
	path     string
	origin   Origin
}

func (m *Module) Name() string   { return m.name }
func (m *Module) Origin() Origin { return m.origin }

// Path returns the file the module was loaded from; empty for registered
// modules.
func (m *Module) Path() string { return m.path }

func (m *Module) Unit() *Unit { return m.unit }

// Exports lists the exported function names, sorted.
func (m *Module) Exports() []string {
	defs := m.compiled.ExportedFunctions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Imports lists the distinct module names this module imports from, in
// first-use order.
func (m *Module) Imports() []string {
	var names []string
	seen := map[string]bool{}
	add := func(mod string) {
		if !seen[mod] {
			seen[mod] = true
			names = append(names, mod)
		}
	}
	for _, def := range m.compiled.ImportedFunctions() {
		mod, _, _ := def.Import()
		add(mod)
	}
	for _, def := range m.compiled.ImportedMemories() {
		mod, _, _ := def.Import()
		add(mod)
	}
	return names
}

// Instantiate creates a fresh anonymous instance of the module. Every
// module it imports from is resolved through the unit and bound first.
func (m *Module) Instantiate(ctx context.Context) (*Object, error) {
	if err := m.unit.active(); err != nil {
		return nil, err
	}
	if err := m.link(ctx, map[string]bool{m.name: true}); err != nil {
		return nil, err
	}
	inst, err := m.unit.eng.Instantiate(ctx, m.compiled, "")
	if err != nil {
		return nil, errors.Instantiation(m.name, err)
	}
	m.unit.log.Debug("object created", zap.String("module", m.name))
	return &Object{Module: inst, module: m}, nil
}

// Static returns the module's named instance, creating it on first use.
// The named instance is the one other modules import from.
func (m *Module) Static(ctx context.Context) (*Object, error) {
	inst, err := m.bind(ctx, m.name, map[string]bool{})
	if err != nil {
		return nil, err
	}
	return &Object{Module: inst, module: m, static: true}, nil
}

func (m *Module) bind(ctx context.Context, as string, visiting map[string]bool) (api.Module, error) {
	if err := m.unit.active(); err != nil {
		return nil, err
	}
	if m.static != nil {
		if m.static.Name() == as {
			return m.static, nil
		}
		return nil, errors.New(errors.PhaseLoad, errors.KindInstantiation).
			Path(as).
			Detail("module %q is already bound as %q", m.name, m.static.Name()).
			Build()
	}
	if m.unit.eng.Module(as) != nil {
		return nil, errors.New(errors.PhaseLoad, errors.KindInstantiation).
			Path(as).
			Detail("module name already bound to another module").
			Build()
	}
	if visiting[as] {
		return nil, errors.New(errors.PhaseLoad, errors.KindInstantiation).
			Path(as).
			Detail("import cycle").
			Build()
	}
	visiting[as] = true
	defer delete(visiting, as)

	if err := m.link(ctx, visiting); err != nil {
		return nil, err
	}
	inst, err := m.unit.eng.Instantiate(ctx, m.compiled, as)
	if err != nil {
		return nil, errors.Instantiation(as, err)
	}
	m.static = inst
	m.unit.log.Debug("module bound", zap.String("module", m.name), zap.String("as", as))
	return inst, nil
}

// link makes every imported module available in the runtime.
func (m *Module) link(ctx context.Context, visiting map[string]bool) error {
	for _, dep := range m.Imports() {
		if m.unit.hosts.Has(dep) {
			continue
		}
		if visiting[dep] {
			return errors.New(errors.PhaseLoad, errors.KindInstantiation).
				Path(m.name, dep).
				Detail("import cycle").
				Build()
		}
		mod, err := m.unit.Resolve(ctx, dep)
		if err != nil {
			return fmt.Errorf("resolve import %q of %q: %w", dep, m.name, err)
		}
		if _, err := mod.bind(ctx, dep, visiting); err != nil {
			return err
		}
	}
	return nil
}

// Object is an instance created inside a unit. Its exports are reached by
// name; see package proxy.
type Object struct {
	api.Module
	module *Module
	static bool
}

// Source returns the module the object was instantiated from.
func (o *Object) Source() *Module { return o.module }

// Static reports whether o is the module's shared named instance.
func (o *Object) Static() bool { return o.static }

// Close releases an anonymous instance before its unit unloads. Closing a
// static object is a no-op; it lives as long as the unit.
func (o *Object) Close(ctx context.Context) error {
	if o.static {
		return nil
	}
	return o.Module.Close(ctx)
}
