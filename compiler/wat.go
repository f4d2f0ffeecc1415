package compiler

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-scripthost/diag"
	"github.com/wippyai/wasm-scripthost/wat"
)

// WAT compiles WebAssembly Text sources. References and the produced image
// are decoded by a scratch interpreter runtime that lives for one Compile
// call, so nothing compiled here leaks into an isolation unit.
type WAT struct {
	logger *zap.Logger
}

type Option func(*WAT)

func WithLogger(l *zap.Logger) Option {
	return func(c *WAT) {
		c.logger = l
	}
}

func NewWAT(opts ...Option) *WAT {
	c := &WAT{}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = Logger()
	}
	return c
}

func (c *WAT) Compile(ctx context.Context, req *Request) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bag := diag.NewBag(0)
	mod, diags := wat.Parse(req.Source)
	for _, d := range diags {
		bag.Add(d)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
	defer rt.Close(ctx)

	refs, err := loadReferences(ctx, rt, req.References)
	if err != nil {
		return nil, err
	}
	for _, r := range refs {
		for _, d := range r.diags {
			bag.Add(d)
		}
	}

	if mod != nil {
		checkImports(mod, refs, req.Hosts, bag)
	}
	bag.Sort()
	if bag.HasErrors() {
		c.logger.Debug("compilation failed",
			zap.String("name", req.Name),
			zap.Int("diagnostics", bag.Len()))
		return &Output{Diagnostics: bag.Items()}, nil
	}

	image := mod.Encode()
	compiled, err := rt.CompileModule(ctx, image)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		bag.Errorf(diag.Pos{}, diag.CodeValidation, "invalid module: %v", err)
		return &Output{Diagnostics: bag.Items()}, nil
	}
	compiled.Close(ctx)

	c.logger.Debug("compiled",
		zap.String("name", req.Name),
		zap.Int("bytes", len(image)),
		zap.Int("references", len(refs)))
	return &Output{Image: image, Diagnostics: bag.Items()}, nil
}

// checkImports resolves every import of mod against the host modules first
// and the references second.
func checkImports(mod *wat.Module, refs []*refModule, hosts map[string]map[string]Signature, bag *diag.Bag) {
	byName := make(map[string]*refModule)
	for _, r := range refs {
		if !r.ok {
			continue
		}
		if prev, dup := byName[r.name]; dup {
			bag.Add(diag.Diagnostic{
				Severity: diag.SevWarning,
				Code:     diag.CodeDuplicateRef,
				Message:  "module " + r.name + " is already provided by " + prev.path + "; this reference is ignored",
				Source:   r.path,
			})
			continue
		}
		byName[r.name] = r
	}

	for _, imp := range mod.Imports {
		if host, ok := hosts[imp.Module]; ok {
			checkHostImport(imp, host, bag)
			continue
		}
		ref, ok := byName[imp.Module]
		if !ok {
			bag.Errorf(imp.Pos, diag.CodeUnresolvedMod, "unresolved module %q: no reference or host module provides it", imp.Module)
			continue
		}
		switch imp.Kind {
		case api.ExternTypeFunc:
			sig, ok := ref.funcs[imp.Name]
			if !ok {
				bag.Errorf(imp.Pos, diag.CodeMissingExport, "module %q has no exported function %q", imp.Module, imp.Name)
				continue
			}
			if !sig.Equal(imp.Params, imp.Results) {
				bag.Errorf(imp.Pos, diag.CodeSignature, "import %s.%s: expected %s, module exports %s",
					imp.Module, imp.Name, Signature{Params: imp.Params, Results: imp.Results}, sig)
			}
		case api.ExternTypeMemory:
			if !ref.memories[imp.Name] {
				bag.Errorf(imp.Pos, diag.CodeMissingExport, "module %q has no exported memory %q", imp.Module, imp.Name)
			}
		}
	}
}

func checkHostImport(imp wat.Import, host map[string]Signature, bag *diag.Bag) {
	if imp.Kind != api.ExternTypeFunc {
		bag.Errorf(imp.Pos, diag.CodeMissingExport, "host module %q only provides functions", imp.Module)
		return
	}
	sig, ok := host[imp.Name]
	if !ok {
		bag.Errorf(imp.Pos, diag.CodeMissingExport, "host module %q has no function %q", imp.Module, imp.Name)
		return
	}
	if !sig.Equal(imp.Params, imp.Results) {
		bag.Errorf(imp.Pos, diag.CodeSignature, "import %s.%s: expected %s, host provides %s",
			imp.Module, imp.Name, Signature{Params: imp.Params, Results: imp.Results}, sig)
	}
}
