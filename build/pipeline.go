package build

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-scripthost/compiler"
	"github.com/wippyai/wasm-scripthost/diag"
	"github.com/wippyai/wasm-scripthost/errors"
)

// Unit is what a pipeline needs from the isolation unit it is parented on.
type Unit interface {
	Overrides() []string
	ResolvePath(name string) (string, bool)
	HostExports() map[string]map[string]compiler.Signature
	OnUnloading(fn func()) error
	Unload(ctx context.Context) error
}

// Config holds pipeline settings. Zero values select the defaults.
type Config struct {
	// Compiler defaults to compiler.NewWAT.
	Compiler compiler.Service
	Logger   *zap.Logger

	// Header and Footer wrap the fragments. Header may contain %s, which is
	// replaced with the pipeline name.
	Header string
	Footer string

	// SystemDir is the runtime-library directory #System: names and
	// AddReference are joined onto.
	SystemDir string
	// LocalDir is the application directory #Local: names and
	// AddLocalReference are joined onto.
	LocalDir string
}

const (
	DefaultHeader = "(module $%s\n"
	DefaultFooter = ")\n"
)

// Result is the outcome of one Build.
type Result struct {
	// Diagnostics holds error diagnostics only and is empty on success.
	Diagnostics []diag.Diagnostic
	Success     bool
}

type Pipeline struct {
	unit      Unit
	compiler  compiler.Service
	log       *zap.Logger
	name      string
	header    string
	footer    string
	systemDir string
	localDir  string
	fragments strings.Builder
	refs      []compiler.Reference
	image     []byte
	closed    atomic.Bool
}

// New creates a pipeline producing a module named name, parented on unit.
func New(name string, unit Unit, cfg Config) (*Pipeline, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if unit == nil {
		return nil, errors.InvalidInput(errors.PhaseBuild, "pipeline requires an isolation unit")
	}

	p := &Pipeline{
		unit:      unit,
		compiler:  cfg.Compiler,
		log:       cfg.Logger,
		name:      name,
		header:    cfg.Header,
		footer:    cfg.Footer,
		systemDir: cfg.SystemDir,
		localDir:  cfg.LocalDir,
	}
	if p.log == nil {
		p.log = Logger()
	}
	if p.compiler == nil {
		p.compiler = compiler.NewWAT(compiler.WithLogger(p.log))
	}
	if p.header == "" {
		p.header = DefaultHeader
	}
	if strings.Contains(p.header, "%s") {
		p.header = fmt.Sprintf(p.header, name)
	}
	if p.footer == "" {
		p.footer = DefaultFooter
	}

	if err := unit.OnUnloading(p.release); err != nil {
		return nil, err
	}
	return p, nil
}

// checkName rejects names that cannot follow $ in a WAT identifier.
func checkName(name string) error {
	if name == "" {
		return errors.InvalidInput(errors.PhaseBuild, "assembly name cannot be empty")
	}
	for _, r := range name {
		if r <= ' ' || r > '~' || strings.ContainsRune(`"(),;[]{}`, r) {
			return errors.New(errors.PhaseBuild, errors.KindInvalidInput).
				Value(name).
				Detail("assembly name %q contains %q", name, r).
				Build()
		}
	}
	return nil
}

func (p *Pipeline) Name() string { return p.name }

// Image returns the module produced by the last successful Build, or nil.
func (p *Pipeline) Image() []byte { return p.image }

// Source returns the full text the next Build compiles.
func (p *Pipeline) Source() string {
	return p.header + p.fragments.String() + p.footer
}

// References returns the explicit reference entries in order.
func (p *Pipeline) References() []compiler.Reference {
	return append([]compiler.Reference(nil), p.refs...)
}

func (p *Pipeline) checkOpen() error {
	if p.closed.Load() {
		return errors.Disposed(errors.PhaseBuild, "build pipeline")
	}
	return nil
}

// AppendSource adds a fragment, after moving its directives into the
// reference list.
func (p *Pipeline) AppendSource(fragment string) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	text, directives := extractDirectives(fragment)
	for _, d := range directives {
		p.addReference(d.name, d.kind)
	}
	p.fragments.WriteString(text)
	p.fragments.WriteByte('\n')
	return nil
}

// AddReference adds a runtime-library reference. The file is not checked
// until Build.
func (p *Pipeline) AddReference(name string) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	p.addReference(name, compiler.KindSystem)
	return nil
}

// AddLocalReference adds a reference from the application directory.
func (p *Pipeline) AddLocalReference(name string) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	p.addReference(name, compiler.KindLocal)
	return nil
}

func (p *Pipeline) addReference(name string, kind compiler.ReferenceKind) {
	dir := p.systemDir
	if kind == compiler.KindLocal {
		dir = p.localDir
	}
	path := filepath.Join(dir, name)
	p.refs = append(p.refs, compiler.Reference{Path: path, Kind: kind})
	p.log.Debug("reference added", zap.String("path", path), zap.Stringer("kind", kind))
}

// Build compiles the current source. Problems in the source are reported
// through the Result; the error is reserved for a disposed pipeline or a
// failing compiler service.
func (p *Pipeline) Build(ctx context.Context) (*Result, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}

	refs := p.References()
	for _, name := range p.unit.Overrides() {
		if path, ok := p.unit.ResolvePath(name); ok {
			refs = append(refs, compiler.Reference{Path: path, Kind: compiler.KindLocal})
		}
	}

	req := &compiler.Request{
		Name:       p.name,
		Source:     p.Source(),
		References: refs,
		Hosts:      p.unit.HostExports(),
	}
	out, err := p.compiler.Compile(ctx, req)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseBuild, errors.KindCompile, err, "compiler service failed")
	}

	if !out.Success() {
		p.image = nil
		errs := diag.Errors(out.Diagnostics)
		p.log.Debug("build failed", zap.String("name", p.name), zap.Int("errors", len(errs)))
		return &Result{Diagnostics: errs}, nil
	}

	for _, d := range out.Diagnostics {
		p.log.Debug("build diagnostic", zap.String("name", p.name), zap.Stringer("diagnostic", d))
	}
	p.image = out.Image
	p.log.Debug("build succeeded", zap.String("name", p.name), zap.Int("bytes", len(out.Image)))
	return &Result{Success: true}, nil
}

func (p *Pipeline) release() {
	p.closed.Store(true)
	p.fragments.Reset()
	p.refs = nil
	p.image = nil
}

// Close clears the pipeline and unloads its unit. Only the first call has
// an effect.
func (p *Pipeline) Close(ctx context.Context) error {
	if p.closed.Load() {
		return nil
	}
	p.release()
	return p.unit.Unload(ctx)
}
