package compiler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/wasm-scripthost/diag"
)

// refModule is the export surface of one loaded reference.
type refModule struct {
	funcs    map[string]Signature
	memories map[string]bool
	name     string
	path     string
	diags    []diag.Diagnostic
	ok       bool
}

// ModuleName returns the name a binary module is imported by: the module
// name from its name section, or the file base name without extension.
func ModuleName(compiled wazero.CompiledModule, path string) string {
	if name := compiled.Name(); name != "" {
		return name
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// loadReferences reads and decodes every reference concurrently. Results
// keep the order of refs. Only context cancellation is returned as an error.
func loadReferences(ctx context.Context, rt wazero.Runtime, refs []Reference) ([]*refModule, error) {
	out := make([]*refModule, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	for i, ref := range refs {
		g.Go(func() error {
			out[i] = loadReference(gctx, rt, ref)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func loadReference(ctx context.Context, rt wazero.Runtime, ref Reference) *refModule {
	m := &refModule{path: ref.Path}
	fail := func(code diag.Code, format string, args ...any) *refModule {
		m.diags = append(m.diags, diag.Diagnostic{
			Severity: diag.SevError,
			Code:     code,
			Message:  fmt.Sprintf(format, args...),
			Source:   ref.Path,
		})
		return m
	}

	image, err := os.ReadFile(ref.Path)
	if err != nil {
		return fail(diag.CodeReferenceIO, "cannot read %s reference: %v", ref.Kind, err)
	}
	compiled, err := rt.CompileModule(ctx, image)
	if err != nil {
		if ctx.Err() != nil {
			return m
		}
		return fail(diag.CodeReferenceFormat, "invalid module: %v", err)
	}
	defer compiled.Close(ctx)

	m.name = ModuleName(compiled, ref.Path)
	m.funcs = make(map[string]Signature)
	for name, def := range compiled.ExportedFunctions() {
		m.funcs[name] = Signature{Params: def.ParamTypes(), Results: def.ResultTypes()}
	}
	m.memories = make(map[string]bool)
	for name := range compiled.ExportedMemories() {
		m.memories[name] = true
	}
	m.ok = true

	Logger().Debug("loaded reference",
		zap.String("path", ref.Path),
		zap.String("module", m.name),
		zap.Int("functions", len(m.funcs)))
	return m
}
